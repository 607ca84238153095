package uhdrbake

import "testing"

func TestMPF_roundTrip(t *testing.T) {
	payload := generateMPF(5000, 1200, 4800)
	if len(payload) != calculateMPFSize() {
		t.Fatalf("payload size %d, want %d", len(payload), calculateMPFSize())
	}

	info, err := parseMPF(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if info.primarySize != 5000 {
		t.Errorf("primary size %d, want 5000", info.primarySize)
	}
	if info.secondarySize != 1200 {
		t.Errorf("secondary size %d, want 1200", info.secondarySize)
	}
	if info.secondaryOffset != 4800 {
		t.Errorf("secondary offset %d, want 4800", info.secondaryOffset)
	}
}

func TestParseMPF_invalid(t *testing.T) {
	if _, err := parseMPF(nil); err == nil {
		t.Error("nil payload parsed without error")
	}
	if _, err := parseMPF([]byte("MPF\x00xx")); err == nil {
		t.Error("truncated payload parsed without error")
	}
}

func TestFindMPFInfo_container(t *testing.T) {
	container := bakeContainer(t, nil)

	primarySize, secondarySize, secondaryOffset, ok := findMPFInfo(container)
	if !ok {
		t.Fatal("MPF not found in container")
	}
	if primarySize <= 0 || secondarySize <= 0 {
		t.Fatalf("sizes %d/%d, want positive", primarySize, secondarySize)
	}
	if secondaryOffset+secondarySize != len(container) {
		t.Errorf("secondary [%d,%d) does not end at container end %d",
			secondaryOffset, secondaryOffset+secondarySize, len(container))
	}
	if container[secondaryOffset] != markerStart || container[secondaryOffset+1] != markerSOI {
		t.Error("secondary offset does not point at an SOI marker")
	}
}
