package uhdrbake

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	mpfNumPictures = 2
	mpfEndianSize  = 4
	mpfTagCount    = 3
	mpfTagSize     = 12

	mpfTypeLong      = 0x4
	mpfTypeUndefined = 0x7

	mpfVersionTag          = 0xB000
	mpfVersionCount        = 4
	mpfNumberOfImagesTag   = 0xB001
	mpfNumberOfImagesCount = 1
	mpfEntryTag            = 0xB002
	mpfEntrySize           = 16

	mpfAttrFormatJpeg  = 0x0000000
	mpfAttrTypePrimary = 0x030000
)

var (
	mpfSig       = []byte{'M', 'P', 'F', 0}
	mpfBigEndian = []byte{0x4D, 0x4D, 0x00, 0x2A}
	mpfVersion   = []byte{'0', '1', '0', '0'}
)

func calculateMPFSize() int {
	return len(mpfSig) + mpfEndianSize + 4 + 2 + mpfTagCount*mpfTagSize + 4 + mpfNumPictures*mpfEntrySize
}

// generateMPF builds an MPF APP2 payload for a two-image container.
// secondaryOffset is relative to the MPF TIFF header.
func generateMPF(primarySize, secondarySize, secondaryOffset int) []byte {
	buf := make([]byte, 0, calculateMPFSize())
	putU16 := func(v uint16) { tmp := make([]byte, 2); binary.BigEndian.PutUint16(tmp, v); buf = append(buf, tmp...) }
	putU32 := func(v uint32) { tmp := make([]byte, 4); binary.BigEndian.PutUint32(tmp, v); buf = append(buf, tmp...) }

	buf = append(buf, mpfSig...)
	buf = append(buf, mpfBigEndian...)

	indexIfdOffset := uint32(mpfEndianSize + len(mpfSig))
	putU32(indexIfdOffset)

	putU16(mpfTagCount)

	// Version tag
	putU16(mpfVersionTag)
	putU16(mpfTypeUndefined)
	putU32(mpfVersionCount)
	buf = append(buf, mpfVersion...)

	// Number of images
	putU16(mpfNumberOfImagesTag)
	putU16(mpfTypeLong)
	putU32(mpfNumberOfImagesCount)
	putU32(mpfNumPictures)

	// MP entries
	putU16(mpfEntryTag)
	putU16(mpfTypeUndefined)
	putU32(mpfEntrySize * mpfNumPictures)
	// Offset from TIFF header start (after MPF signature).
	mpEntryOffset := uint32(8 + 2 + mpfTagCount*mpfTagSize + 4)
	putU32(mpEntryOffset)

	// Attribute IFD offset (zero)
	putU32(0)

	// Primary entry; the primary offset is always zero.
	putU32(mpfAttrFormatJpeg | mpfAttrTypePrimary)
	putU32(uint32(primarySize))
	putU32(0)
	putU16(0)
	putU16(0)

	// Secondary entry
	putU32(mpfAttrFormatJpeg)
	putU32(uint32(secondarySize))
	putU32(uint32(secondaryOffset))
	putU16(0)
	putU16(0)

	return buf
}

type mpfInfo struct {
	primarySize     int
	secondarySize   int
	secondaryOffset int
}

// findMPFInfo walks the primary header for an MPF APP2 segment and resolves
// the secondary image offset to an absolute position in data.
func findMPFInfo(data []byte) (primarySize, secondarySize, secondaryOffset int, ok bool) {
	if len(data) < 2 || data[0] != markerStart || data[1] != markerSOI {
		return 0, 0, 0, false
	}
	pos := 2
	for pos+3 < len(data) {
		if data[pos] != markerStart {
			pos++
			continue
		}
		for pos < len(data) && data[pos] == markerStart {
			pos++
		}
		if pos >= len(data) {
			break
		}
		marker := data[pos]
		pos++
		switch marker {
		case markerSOI:
			continue
		case markerEOI, markerSOS:
			return 0, 0, 0, false
		}
		if marker >= 0xD0 && marker <= 0xD7 {
			continue
		}
		if marker == 0x01 {
			continue
		}
		if pos+1 >= len(data) {
			return 0, 0, 0, false
		}
		segLen := int(binary.BigEndian.Uint16(data[pos:]))
		if segLen < 2 || pos+segLen > len(data) {
			return 0, 0, 0, false
		}
		segStart := pos + 2
		segEnd := pos + segLen
		if marker == markerAPP2 && bytes.HasPrefix(data[segStart:segEnd], mpfSig) {
			info, err := parseMPF(data[segStart:segEnd])
			if err != nil {
				return 0, 0, 0, false
			}
			tiffHeaderAbs := segStart + len(mpfSig)
			return info.primarySize, info.secondarySize, tiffHeaderAbs + info.secondaryOffset, true
		}
		pos = segEnd
	}
	return 0, 0, 0, false
}

func parseMPF(payload []byte) (mpfInfo, error) {
	if len(payload) < len(mpfSig)+8 || !bytes.HasPrefix(payload, mpfSig) {
		return mpfInfo{}, errors.New("mpf signature missing")
	}
	tiff := payload[len(mpfSig):]
	if len(tiff) < 8 {
		return mpfInfo{}, errors.New("mpf tiff header too small")
	}
	var order binary.ByteOrder
	switch {
	case tiff[0] == 0x4D && tiff[1] == 0x4D:
		order = binary.BigEndian
	case tiff[0] == 0x49 && tiff[1] == 0x49:
		order = binary.LittleEndian
	default:
		return mpfInfo{}, errors.New("mpf endian invalid")
	}
	if order.Uint16(tiff[2:4]) != 0x002A {
		return mpfInfo{}, errors.New("mpf tiff magic invalid")
	}
	ifdOffset := int(order.Uint32(tiff[4:8]))
	if ifdOffset < 0 || ifdOffset+2 > len(tiff) {
		return mpfInfo{}, errors.New("mpf ifd offset invalid")
	}
	ifdPos := ifdOffset
	tagCount := int(order.Uint16(tiff[ifdPos : ifdPos+2]))
	ifdPos += 2
	entryOffset := -1
	for i := 0; i < tagCount; i++ {
		if ifdPos+12 > len(tiff) {
			return mpfInfo{}, errors.New("mpf ifd truncated")
		}
		tag := order.Uint16(tiff[ifdPos : ifdPos+2])
		typ := order.Uint16(tiff[ifdPos+2 : ifdPos+4])
		count := order.Uint32(tiff[ifdPos+4 : ifdPos+8])
		value := order.Uint32(tiff[ifdPos+8 : ifdPos+12])
		if tag == mpfEntryTag && typ == mpfTypeUndefined && count >= mpfEntrySize {
			entryOffset = int(value)
			break
		}
		ifdPos += 12
	}
	if entryOffset < 0 || entryOffset+mpfEntrySize*mpfNumPictures > len(tiff) {
		return mpfInfo{}, errors.New("mpf entry offset invalid")
	}
	entryPos := entryOffset
	var info mpfInfo
	for i := 0; i < mpfNumPictures; i++ {
		attr := order.Uint32(tiff[entryPos : entryPos+4])
		size := int(order.Uint32(tiff[entryPos+4 : entryPos+8]))
		offset := int(order.Uint32(tiff[entryPos+8 : entryPos+12]))
		if attr&mpfAttrTypePrimary != 0 {
			info.primarySize = size
		} else {
			info.secondarySize = size
			info.secondaryOffset = offset
		}
		entryPos += mpfEntrySize
	}
	if info.primarySize == 0 || info.secondarySize == 0 {
		return mpfInfo{}, errors.New("mpf sizes missing")
	}
	return info, nil
}
