package uhdrbake

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"testing"
)

// flatImage is a single-color RGBA test image.
func flatImage(w, h int, v uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 0xFF})
		}
	}
	return img
}

// gradientImage ramps from lo at the top row to hi at the bottom row.
func gradientImage(w, h int, lo, hi uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		v := uint8(int(lo) + (int(hi)-int(lo))*y/(h-1))
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 0xFF})
		}
	}
	return img
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func flatJPEG(t *testing.T, w, h int, v uint8) []byte {
	t.Helper()

	return encodeJPEG(t, flatImage(w, h, v))
}

// testMeta uses values that survive the fractional wire encoding exactly.
func testMeta() *GainMapMetadata {
	meta := &GainMapMetadata{
		Version:        jpegrVersion,
		UseBaseCG:      true,
		HDRCapacityMin: 1,
		HDRCapacityMax: 4,
	}
	for i := 0; i < 3; i++ {
		meta.MinContentBoost[i] = 1
		meta.MaxContentBoost[i] = 4
		meta.Gamma[i] = 1
		meta.OffsetSDR[i] = 1.0 / 64.0
		meta.OffsetHDR[i] = 1.0 / 64.0
	}
	return meta
}

// taggedJPEG attaches full ISO gain map metadata to a plain JPEG, marking it
// as an extended dynamic range image without an embedded secondary.
func taggedJPEG(t *testing.T, base []byte) []byte {
	t.Helper()

	payload, err := buildISOPayload(testMeta())
	if err != nil {
		t.Fatalf("build ISO payload: %v", err)
	}
	out, err := insertAppSegments(base, []appSegment{{marker: markerAPP2, payload: payload}})
	if err != nil {
		t.Fatalf("insert segments: %v", err)
	}
	return out
}

// p3ICCProfile builds a minimal ICC profile whose colorant tags carry the
// Display P3 primaries.
func p3ICCProfile() []byte {
	s15 := func(v float64) uint32 {
		return uint32(int32(math.Round(v * 65536)))
	}
	xyzTag := func(v xyz) []byte {
		data := make([]byte, 20)
		copy(data, "XYZ ")
		binary.BigEndian.PutUint32(data[8:], s15(v.x))
		binary.BigEndian.PutUint32(data[12:], s15(v.y))
		binary.BigEndian.PutUint32(data[16:], s15(v.z))
		return data
	}

	sigs := []string{"rXYZ", "gXYZ", "bXYZ"}
	const headerSize = 128
	tableSize := 4 + len(sigs)*12
	dataStart := headerSize + tableSize

	profile := make([]byte, headerSize, dataStart+len(sigs)*20)
	table := make([]byte, 4, tableSize)
	binary.BigEndian.PutUint32(table, uint32(len(sigs)))
	var data []byte
	for i, sig := range sigs {
		entry := make([]byte, 12)
		copy(entry, sig)
		binary.BigEndian.PutUint32(entry[4:], uint32(dataStart+i*20))
		binary.BigEndian.PutUint32(entry[8:], 20)
		table = append(table, entry...)
		data = append(data, xyzTag(p3Primaries[i])...)
	}
	profile = append(profile, table...)
	profile = append(profile, data...)
	binary.BigEndian.PutUint32(profile[0:4], uint32(len(profile)))
	return profile
}

// iccJPEG attaches the Display P3 profile to a JPEG as a single-chunk ICC
// APP2 segment.
func iccJPEG(t *testing.T, base []byte) []byte {
	t.Helper()

	payload := append(append([]byte(nil), iccSig...), 1, 1)
	payload = append(payload, p3ICCProfile()...)
	out, err := insertAppSegments(base, []appSegment{{marker: markerAPP2, payload: payload}})
	if err != nil {
		t.Fatalf("insert ICC segment: %v", err)
	}
	return out
}

// bakeContainer produces a small valid UltraHDR container.
func bakeContainer(t *testing.T, opts *BakeOptions) []byte {
	t.Helper()

	sdr := flatJPEG(t, 32, 24, 110)
	hdr := flatJPEG(t, 32, 24, 250)
	container, _, err := Synthesize(&OrderedInputPair{HDR: hdr, SDR: sdr}, opts)
	if err != nil {
		t.Fatalf("synthesize fixture: %v", err)
	}
	return container
}
