package uhdrbake

import (
	"bytes"
	"errors"
	"fmt"
)

// SplitResult is a decomposed UltraHDR container.
type SplitResult struct {
	PrimaryJPEG []byte
	GainmapJPEG []byte
	Meta        *GainMapMetadata
	Segs        *MetadataSegments
}

// assembleContainer glues a primary JPEG and a gain map JPEG into a single
// UltraHDR file. Segment order in the primary header follows libultrahdr
// output: EXIF, container XMP, ISO version, MPF, ICC. The secondary image
// carries its own hdrgm XMP and full ISO metadata block.
func assembleContainer(primaryJPEG, gainmapJPEG, exif []byte, icc [][]byte, secondaryXMP, secondaryISO []byte) ([]byte, *MetadataSegments, error) {
	if len(primaryJPEG) < 4 || len(gainmapJPEG) < 4 {
		return nil, nil, errors.New("empty image data")
	}

	secondarySegs := []appSegment{
		{marker: markerAPP1, payload: secondaryXMP},
		{marker: markerAPP2, payload: secondaryISO},
	}
	secondary, err := insertAppSegments(gainmapJPEG, secondarySegs)
	if err != nil {
		return nil, nil, fmt.Errorf("build secondary: %w", err)
	}

	primaryXMP := buildPrimaryXMP(len(secondary))
	primaryISO := buildISOVersionOnly()
	mpfLen := calculateMPFSize()

	headerSize := 2 // SOI
	headerSize += appSize(exif)
	headerSize += appSize(primaryXMP)
	headerSize += appSize(primaryISO)
	mpfSegStart := headerSize
	headerSize += 4 + mpfLen
	for _, seg := range icc {
		headerSize += appSize(seg)
	}
	primaryTotal := headerSize + len(primaryJPEG) - 2

	// MPF secondary offset is measured from its own TIFF header.
	tiffHeaderAbs := mpfSegStart + 4 + len(mpfSig)
	mpf := generateMPF(primaryTotal, len(secondary), primaryTotal-tiffHeaderAbs)
	if len(mpf) != mpfLen {
		return nil, nil, errors.New("mpf size mismatch")
	}

	var out bytes.Buffer
	out.Grow(primaryTotal + len(secondary))
	out.WriteByte(markerStart)
	out.WriteByte(markerSOI)
	if len(exif) > 0 {
		writeAppSegment(&out, markerAPP1, exif)
	}
	writeAppSegment(&out, markerAPP1, primaryXMP)
	writeAppSegment(&out, markerAPP2, primaryISO)
	writeAppSegment(&out, markerAPP2, mpf)
	for _, seg := range icc {
		writeAppSegment(&out, markerAPP2, seg)
	}
	out.Write(primaryJPEG[2:])
	if out.Len() != primaryTotal {
		return nil, nil, errors.New("primary size mismatch")
	}
	out.Write(secondary)

	segs := &MetadataSegments{
		PrimaryXMP:   primaryXMP,
		PrimaryISO:   primaryISO,
		SecondaryXMP: secondaryXMP,
		SecondaryISO: secondaryISO,
	}
	return out.Bytes(), segs, nil
}

// Split decomposes an UltraHDR container into its primary JPEG, gain map
// JPEG, recovery metadata and raw metadata segments.
func Split(data []byte) (*SplitResult, error) {
	ranges, err := scanJPEGs(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedImage, err)
	}
	if len(ranges) < 2 {
		return nil, fmt.Errorf("%w: no secondary image", ErrMalformedImage)
	}
	primary := append([]byte(nil), data[ranges[0][0]:ranges[0][1]]...)
	secondary := append([]byte(nil), data[ranges[1][0]:ranges[1][1]]...)

	pApp1, pApp2, err := extractAppSegments(primary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedImage, err)
	}
	sApp1, sApp2, err := extractAppSegments(secondary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedImage, err)
	}

	segs := &MetadataSegments{
		PrimaryXMP:   findXMP(pApp1),
		PrimaryISO:   findISO(pApp2),
		SecondaryXMP: findXMP(sApp1),
		SecondaryISO: findISO(sApp2),
	}

	var meta *GainMapMetadata
	if segs.SecondaryISO != nil {
		meta, err = decodeISOMetadata(segs.SecondaryISO[len(isoNamespace)+1:])
		if err != nil {
			return nil, fmt.Errorf("decode ISO metadata: %w", err)
		}
	} else if segs.SecondaryXMP != nil && hasHdrgmXMP(segs.SecondaryXMP) {
		meta, err = parseGainmapXMP(segs.SecondaryXMP)
		if err != nil {
			return nil, fmt.Errorf("parse gainmap XMP: %w", err)
		}
	} else {
		return nil, fmt.Errorf("%w: secondary image has no gain map metadata", ErrMalformedImage)
	}

	return &SplitResult{
		PrimaryJPEG: primary,
		GainmapJPEG: secondary,
		Meta:        meta,
		Segs:        segs,
	}, nil
}
