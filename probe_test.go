package uhdrbake

import (
	"errors"
	"reflect"
	"testing"
)

func TestProbe_deterministic(t *testing.T) {
	data := encodeJPEG(t, gradientImage(48, 32, 20, 230))

	first, err := Probe(data)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	second, err := Probe(data)
	if err != nil {
		t.Fatalf("probe again: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("probe results differ: %+v vs %+v", first, second)
	}
}

func TestProbe_malformed(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("not a jpeg"), {0xFF, 0xD8, 0xFF}} {
		if _, err := Probe(data); !errors.Is(err, ErrMalformedImage) {
			t.Errorf("Probe(%d bytes): got %v, want ErrMalformedImage", len(data), err)
		}
	}
}

func TestProbe_plainSDR(t *testing.T) {
	res, err := Probe(flatJPEG(t, 48, 32, 128))
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if res.HasEmbeddedGainMap {
		t.Error("plain JPEG reported an embedded gain map")
	}
	if res.HasExtendedDynamicRangeTag {
		t.Error("plain JPEG reported an extended range tag")
	}
	if res.Transfer != TransferSRGB {
		t.Errorf("transfer = %v, want sRGB", res.Transfer)
	}
}

func TestProbe_extendedRangeTag(t *testing.T) {
	res, err := Probe(taggedJPEG(t, flatJPEG(t, 48, 32, 128)))
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !res.HasExtendedDynamicRangeTag {
		t.Error("ISO-tagged JPEG not reported as extended range")
	}
	if res.HasEmbeddedGainMap {
		t.Error("tag-only JPEG reported an embedded gain map")
	}
}

func TestProbe_container(t *testing.T) {
	res, err := Probe(bakeContainer(t, nil))
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !res.HasEmbeddedGainMap {
		t.Error("container not reported as carrying a gain map")
	}
	if !res.HasExtendedDynamicRangeTag {
		t.Error("container not reported as extended range")
	}
}

func TestProbe_lumaOrdering(t *testing.T) {
	bright, err := Probe(flatJPEG(t, 48, 32, 250))
	if err != nil {
		t.Fatalf("probe bright: %v", err)
	}
	dark, err := Probe(flatJPEG(t, 48, 32, 60))
	if err != nil {
		t.Fatalf("probe dark: %v", err)
	}
	if bright.PeakLumaEstimate <= dark.PeakLumaEstimate {
		t.Errorf("peak luma: bright %.4f <= dark %.4f", bright.PeakLumaEstimate, dark.PeakLumaEstimate)
	}
	if bright.AverageLuma <= dark.AverageLuma {
		t.Errorf("average luma: bright %.4f <= dark %.4f", bright.AverageLuma, dark.AverageLuma)
	}
}

func TestProbe_iccGamut(t *testing.T) {
	res, err := Probe(iccJPEG(t, flatJPEG(t, 32, 24, 110)))
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if res.ColorGamut != GamutDisplayP3 {
		t.Errorf("gamut = %v, want GamutDisplayP3", res.ColorGamut)
	}
}

func TestProbe_containerKeepsICCGamut(t *testing.T) {
	// The baked container carries the ICC segments after the MPF index;
	// probing the output must still see the input's gamut.
	sdr := iccJPEG(t, flatJPEG(t, 32, 24, 110))
	hdr := flatJPEG(t, 32, 24, 250)

	container, _, err := Synthesize(&OrderedInputPair{HDR: hdr, SDR: sdr}, nil)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	res, err := Probe(container)
	if err != nil {
		t.Fatalf("probe container: %v", err)
	}
	if res.ColorGamut != GamutDisplayP3 {
		t.Errorf("container gamut = %v, want GamutDisplayP3 preserved from input", res.ColorGamut)
	}
}

func TestProbe_containerHeadroomBoostsPeak(t *testing.T) {
	container := bakeContainer(t, nil)
	base, err := Probe(flatJPEG(t, 32, 24, 110))
	if err != nil {
		t.Fatalf("probe base: %v", err)
	}
	boosted, err := Probe(container)
	if err != nil {
		t.Fatalf("probe container: %v", err)
	}
	if boosted.PeakLumaEstimate <= base.PeakLumaEstimate {
		t.Errorf("container peak %.4f not above base peak %.4f", boosted.PeakLumaEstimate, base.PeakLumaEstimate)
	}
}
