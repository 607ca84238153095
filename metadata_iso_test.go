package uhdrbake

import (
	"math"
	"testing"
)

func TestISOMetadata_roundTrip(t *testing.T) {
	meta := testMeta()

	encoded, err := encodeISOMetadata(meta)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := decodeISOMetadata(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	for i := 0; i < 3; i++ {
		if decoded.MinContentBoost[i] != meta.MinContentBoost[i] {
			t.Errorf("MinContentBoost[%d] = %v, want %v", i, decoded.MinContentBoost[i], meta.MinContentBoost[i])
		}
		if decoded.MaxContentBoost[i] != meta.MaxContentBoost[i] {
			t.Errorf("MaxContentBoost[%d] = %v, want %v", i, decoded.MaxContentBoost[i], meta.MaxContentBoost[i])
		}
		if decoded.Gamma[i] != meta.Gamma[i] {
			t.Errorf("Gamma[%d] = %v, want %v", i, decoded.Gamma[i], meta.Gamma[i])
		}
		if decoded.OffsetSDR[i] != meta.OffsetSDR[i] {
			t.Errorf("OffsetSDR[%d] = %v, want %v", i, decoded.OffsetSDR[i], meta.OffsetSDR[i])
		}
	}
	if decoded.HDRCapacityMin != meta.HDRCapacityMin {
		t.Errorf("HDRCapacityMin = %v, want %v", decoded.HDRCapacityMin, meta.HDRCapacityMin)
	}
	if decoded.HDRCapacityMax != meta.HDRCapacityMax {
		t.Errorf("HDRCapacityMax = %v, want %v", decoded.HDRCapacityMax, meta.HDRCapacityMax)
	}
	if decoded.UseBaseCG != meta.UseBaseCG {
		t.Errorf("UseBaseCG = %v, want %v", decoded.UseBaseCG, meta.UseBaseCG)
	}
}

func TestISOMetadata_multichannelRoundTrip(t *testing.T) {
	meta := testMeta()
	meta.MaxContentBoost = [3]float32{4, 8, 2}

	encoded, err := encodeISOMetadata(meta)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := decodeISOMetadata(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.MaxContentBoost != meta.MaxContentBoost {
		t.Errorf("MaxContentBoost = %v, want %v", decoded.MaxContentBoost, meta.MaxContentBoost)
	}
}

func TestISOMetadata_tinyOffsets(t *testing.T) {
	meta := testMeta()
	for i := 0; i < 3; i++ {
		meta.OffsetSDR[i] = kSdrOffset
		meta.OffsetHDR[i] = kHdrOffset
	}

	encoded, err := encodeISOMetadata(meta)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := decodeISOMetadata(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if math.Abs(float64(decoded.OffsetSDR[0]-meta.OffsetSDR[0])) > 1e-9 {
		t.Errorf("OffsetSDR = %g, want %g", decoded.OffsetSDR[0], meta.OffsetSDR[0])
	}
}

func TestISOMetadata_truncated(t *testing.T) {
	encoded, err := encodeISOMetadata(testMeta())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := decodeISOMetadata(encoded[:len(encoded)-3]); err == nil {
		t.Error("truncated metadata decoded without error")
	}
	if _, err := decodeISOMetadata(nil); err == nil {
		t.Error("empty metadata decoded without error")
	}
}
