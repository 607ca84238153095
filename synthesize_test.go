package uhdrbake

import (
	"errors"
	"math"
	"testing"
)

func TestSynthesize_invalidOptions(t *testing.T) {
	sdr := flatJPEG(t, 32, 24, 110)
	hdr := flatJPEG(t, 32, 24, 250)
	pair := &OrderedInputPair{HDR: hdr, SDR: sdr}

	bad := []*BakeOptions{
		{BaseQuality: 0, GainmapQuality: 95, Scale: 1},
		{BaseQuality: 101, GainmapQuality: 95, Scale: 1},
		{BaseQuality: 95, GainmapQuality: 0, Scale: 1},
		{BaseQuality: 95, GainmapQuality: 101, Scale: 1},
		{BaseQuality: 95, GainmapQuality: 95, Scale: 0},
		{BaseQuality: 95, GainmapQuality: 95, Scale: -1},
		{BaseQuality: 95, GainmapQuality: 95, Scale: 1, TargetPeakNits: -1},
	}
	for i, opts := range bad {
		if _, _, err := Synthesize(pair, opts); !errors.Is(err, ErrInvalidOptions) {
			t.Errorf("case %d: got %v, want ErrInvalidOptions", i, err)
		}
	}

	for _, q := range []int{1, 100} {
		if _, _, err := Synthesize(pair, &BakeOptions{BaseQuality: q, GainmapQuality: q, Scale: 1}); err != nil {
			t.Errorf("quality %d: unexpected error %v", q, err)
		}
	}
}

func TestSynthesize_dimensionMismatch(t *testing.T) {
	pair := &OrderedInputPair{
		HDR: flatJPEG(t, 32, 24, 250),
		SDR: flatJPEG(t, 48, 24, 110),
	}
	if _, _, err := Synthesize(pair, nil); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("got %v, want ErrDimensionMismatch", err)
	}
}

func TestSynthesize_containerRoundTrip(t *testing.T) {
	container := bakeContainer(t, nil)

	sr, err := Split(container)
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	base, err := DefaultCodec().Decode(sr.PrimaryJPEG)
	if err != nil {
		t.Fatalf("decode base: %v", err)
	}
	if b := base.Bounds(); b.Dx() != 32 || b.Dy() != 24 {
		t.Errorf("base layer %dx%d, want 32x24", b.Dx(), b.Dy())
	}
	if _, err := DefaultCodec().Decode(sr.GainmapJPEG); err != nil {
		t.Errorf("decode gainmap: %v", err)
	}

	meta := sr.Meta
	if meta == nil {
		t.Fatal("no metadata recovered")
	}
	if meta.MaxContentBoost[0] < meta.MinContentBoost[0] {
		t.Errorf("max boost %.3f below min boost %.3f", meta.MaxContentBoost[0], meta.MinContentBoost[0])
	}
	if meta.MaxContentBoost[0] <= 1 {
		t.Errorf("max boost %.3f, want > 1 for a brighter HDR input", meta.MaxContentBoost[0])
	}
	if meta.HDRCapacityMax < meta.HDRCapacityMin {
		t.Errorf("capacity max %.3f below min %.3f", meta.HDRCapacityMax, meta.HDRCapacityMin)
	}
	if sr.Segs.SecondaryXMP == nil || sr.Segs.SecondaryISO == nil {
		t.Error("secondary metadata segments missing")
	}
	if sr.Segs.PrimaryXMP == nil || sr.Segs.PrimaryISO == nil {
		t.Error("primary metadata segments missing")
	}
}

func TestSynthesize_targetPeak(t *testing.T) {
	opts := DefaultBakeOptions()
	opts.TargetPeakNits = 812 // 4x SDR white

	container := bakeContainer(t, opts)
	sr, err := Split(container)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if got := float64(sr.Meta.HDRCapacityMax); math.Abs(got-4.0) > 0.01 {
		t.Errorf("HDRCapacityMax = %.4f, want 4.0", got)
	}
}

func TestSynthesize_multichannel(t *testing.T) {
	opts := DefaultBakeOptions()
	opts.Multichannel = true

	container := bakeContainer(t, opts)
	sr, err := Split(container)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	gm, err := DefaultCodec().Decode(sr.GainmapJPEG)
	if err != nil {
		t.Fatalf("decode gainmap: %v", err)
	}
	if isGrayImage(gm) {
		t.Error("multichannel bake produced a grayscale gain map")
	}
}

func TestSynthesize_gainmapScale(t *testing.T) {
	opts := DefaultBakeOptions()
	opts.Scale = 4

	container := bakeContainer(t, opts)
	sr, err := Split(container)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	gm, err := DefaultCodec().Decode(sr.GainmapJPEG)
	if err != nil {
		t.Fatalf("decode gainmap: %v", err)
	}
	if b := gm.Bounds(); b.Dx() != 8 || b.Dy() != 6 {
		t.Errorf("gainmap %dx%d, want 8x6 at scale 4", b.Dx(), b.Dy())
	}
}

func TestSynthesize_ultraHDRInput(t *testing.T) {
	// Re-baking with an already baked container as the HDR source goes
	// through gain map reconstruction instead of plain linearization.
	container := bakeContainer(t, nil)
	sdr := flatJPEG(t, 32, 24, 110)

	out, meta, err := Synthesize(&OrderedInputPair{HDR: container, SDR: sdr}, nil)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if meta.MaxContentBoost[0] <= 1 {
		t.Errorf("max boost %.3f, want > 1", meta.MaxContentBoost[0])
	}
	if _, err := Split(out); err != nil {
		t.Errorf("split re-baked container: %v", err)
	}
}

func TestSynthesize_malformedInputs(t *testing.T) {
	good := flatJPEG(t, 32, 24, 110)

	if _, _, err := Synthesize(&OrderedInputPair{HDR: []byte("junk"), SDR: good}, nil); !errors.Is(err, ErrMalformedImage) {
		t.Errorf("junk HDR: got %v, want ErrMalformedImage", err)
	}
	if _, _, err := Synthesize(&OrderedInputPair{HDR: good, SDR: []byte("junk")}, nil); !errors.Is(err, ErrMalformedImage) {
		t.Errorf("junk SDR: got %v, want ErrMalformedImage", err)
	}
}
