package uhdrbake

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

const (
	markerStart = 0xFF
	markerSOI   = 0xD8
	markerEOI   = 0xD9
	markerSOS   = 0xDA
	markerAPP0  = 0xE0
	markerAPP1  = 0xE1
	markerAPP2  = 0xE2
)

const (
	xmpNamespace = "http://ns.adobe.com/xap/1.0/"
	isoNamespace = "urn:iso:std:iso:ts:21496:-1"
)

var (
	exifSig = []byte{'E', 'x', 'i', 'f', 0, 0}
	iccSig  = []byte{'I', 'C', 'C', '_', 'P', 'R', 'O', 'F', 'I', 'L', 'E', 0}
)

type appSegment struct {
	marker  byte
	payload []byte
}

// scanJPEGs locates the byte ranges of the JPEG images inside data.
// An MPF index, when present, is authoritative; otherwise images are found
// by walking markers.
func scanJPEGs(data []byte) ([][2]int, error) {
	if ranges, ok := scanJPEGsByMPF(data); ok {
		return ranges, nil
	}
	var ranges [][2]int
	i := 0
	for i+1 < len(data) {
		if data[i] == markerStart && data[i+1] == markerSOI {
			start := i
			end, err := findJPEGEnd(data, i)
			if err != nil {
				return nil, err
			}
			ranges = append(ranges, [2]int{start, end})
			i = end
			continue
		}
		i++
	}
	if len(ranges) == 0 {
		return nil, errors.New("no JPEG images found")
	}
	return ranges, nil
}

func scanJPEGsByMPF(data []byte) ([][2]int, bool) {
	if len(data) < 4 || data[0] != markerStart || data[1] != markerSOI {
		return nil, false
	}
	primarySize, secondarySize, secondaryOffset, ok := findMPFInfo(data)
	if !ok {
		return nil, false
	}
	if primarySize <= 0 || secondarySize <= 0 {
		return nil, false
	}
	primaryEnd := primarySize
	secondaryEnd := secondaryOffset + secondarySize
	if primaryEnd > len(data) || secondaryEnd > len(data) || secondaryOffset < 0 {
		return nil, false
	}
	if secondaryOffset+1 >= len(data) || data[secondaryOffset] != markerStart || data[secondaryOffset+1] != markerSOI {
		return nil, false
	}
	return [][2]int{{0, primaryEnd}, {secondaryOffset, secondaryEnd}}, true
}

// findJPEGEnd returns the offset one past the EOI of the JPEG starting at start.
func findJPEGEnd(data []byte, start int) (int, error) {
	if start+1 >= len(data) || data[start] != markerStart || data[start+1] != markerSOI {
		return 0, errors.New("not a JPEG SOI")
	}
	pos := start + 2
	inScan := false
	for pos+1 < len(data) {
		if !inScan {
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
			case markerEOI:
				return pos, nil
			case markerSOS:
				if pos+1 >= len(data) {
					return 0, errors.New("truncated SOS")
				}
				segLen := int(binary.BigEndian.Uint16(data[pos:]))
				pos += segLen
				inScan = true
				continue
			}
			if marker >= 0xD0 && marker <= 0xD7 {
				continue
			}
			if marker == 0x01 {
				continue
			}
			if pos+1 >= len(data) {
				return 0, errors.New("truncated marker segment")
			}
			segLen := int(binary.BigEndian.Uint16(data[pos:]))
			if segLen < 2 {
				return 0, errors.New("invalid marker length")
			}
			pos += segLen
			continue
		}

		// in scan data
		if data[pos] == markerStart {
			if pos+1 >= len(data) {
				return 0, errors.New("truncated scan data")
			}
			next := data[pos+1]
			switch {
			case next == 0x00:
				pos += 2
				continue
			case next >= 0xD0 && next <= 0xD7:
				pos += 2
				continue
			case next == markerEOI:
				return pos + 2, nil
			default:
				pos += 2
				if pos+1 >= len(data) {
					return 0, errors.New("truncated marker in scan")
				}
				segLen := int(binary.BigEndian.Uint16(data[pos:]))
				if segLen < 2 {
					return 0, errors.New("invalid marker length in scan")
				}
				pos += segLen
				continue
			}
		}
		pos++
	}
	return 0, errors.New("no EOI found")
}

// extractAppSegments returns APP1 and APP2 payloads from the JPEG header.
func extractAppSegments(jpegData []byte) (app1 [][]byte, app2 [][]byte, err error) {
	if len(jpegData) < 4 || jpegData[0] != markerStart || jpegData[1] != markerSOI {
		return nil, nil, errors.New("invalid JPEG")
	}
	pos := 2
	for pos+3 < len(jpegData) {
		if jpegData[pos] != markerStart {
			pos++
			continue
		}
		for pos < len(jpegData) && jpegData[pos] == markerStart {
			pos++
		}
		if pos >= len(jpegData) {
			break
		}
		marker := jpegData[pos]
		pos++
		if marker == markerSOS || marker == markerEOI {
			break
		}
		if marker >= 0xD0 && marker <= 0xD7 {
			continue
		}
		if pos+1 >= len(jpegData) {
			return nil, nil, errors.New("truncated marker")
		}
		segLen := int(binary.BigEndian.Uint16(jpegData[pos:]))
		if segLen < 2 || pos+segLen > len(jpegData) {
			return nil, nil, errors.New("invalid segment length")
		}
		segStart := pos + 2
		segEnd := pos + segLen
		switch marker {
		case markerAPP1:
			app1 = append(app1, append([]byte(nil), jpegData[segStart:segEnd]...))
		case markerAPP2:
			app2 = append(app2, append([]byte(nil), jpegData[segStart:segEnd]...))
		}
		pos = segEnd
	}
	return app1, app2, nil
}

func findXMP(app1 [][]byte) []byte {
	for _, seg := range app1 {
		if bytes.HasPrefix(seg, append([]byte(xmpNamespace), 0)) {
			return seg
		}
	}
	return nil
}

func findISO(app2 [][]byte) []byte {
	for _, seg := range app2 {
		if bytes.HasPrefix(seg, append([]byte(isoNamespace), 0)) {
			return seg
		}
	}
	return nil
}

type iccSegment struct {
	seq  int
	data []byte
}

// extractExifAndIcc returns the EXIF APP1 payload (if present) and ICC APP2
// payloads in sequence order.
func extractExifAndIcc(jpegData []byte) ([]byte, [][]byte, error) {
	app1, app2, err := extractAppSegments(jpegData)
	if err != nil {
		return nil, nil, err
	}
	var exif []byte
	for _, seg := range app1 {
		if bytes.HasPrefix(seg, exifSig) {
			exif = append([]byte(nil), seg...)
			break
		}
	}
	var iccSegs []iccSegment
	for _, seg := range app2 {
		if bytes.HasPrefix(seg, iccSig) && len(seg) >= len(iccSig)+2 {
			seq := int(seg[len(iccSig)])
			iccSegs = append(iccSegs, iccSegment{seq: seq, data: append([]byte(nil), seg...)})
		}
	}
	if len(iccSegs) == 0 {
		return exif, nil, nil
	}
	sort.Slice(iccSegs, func(i, j int) bool { return iccSegs[i].seq < iccSegs[j].seq })
	out := make([][]byte, 0, len(iccSegs))
	for _, s := range iccSegs {
		out = append(out, s.data)
	}
	return exif, out, nil
}

// collectICCProfile joins ICC APP2 payload chunks into one profile blob.
func collectICCProfile(icc [][]byte) []byte {
	chunks := make([]iccSegment, 0, len(icc))
	for _, p := range icc {
		// ICC APP2 payload: "ICC_PROFILE\0" + seq + total + profile bytes.
		if len(p) > len(iccSig)+2 && bytes.HasPrefix(p, iccSig) {
			chunks = append(chunks, iccSegment{seq: int(p[len(iccSig)]), data: append([]byte(nil), p[len(iccSig)+2:]...)})
		}
	}
	if len(chunks) == 0 {
		return nil
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].seq < chunks[j].seq })
	total := 0
	for _, c := range chunks {
		total += len(c.data)
	}
	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c.data...)
	}
	return out
}

func writeAppSegment(out *bytes.Buffer, marker byte, payload []byte) {
	out.WriteByte(markerStart)
	out.WriteByte(marker)
	length := uint16(len(payload) + 2)
	out.WriteByte(byte(length >> 8))
	out.WriteByte(byte(length))
	out.Write(payload)
}

// insertAppSegments inserts APP segments right after SOI.
func insertAppSegments(jpegData []byte, segs []appSegment) ([]byte, error) {
	if len(jpegData) < 2 || jpegData[0] != markerStart || jpegData[1] != markerSOI {
		return nil, errors.New("invalid JPEG")
	}
	var out bytes.Buffer
	out.WriteByte(markerStart)
	out.WriteByte(markerSOI)
	for _, s := range segs {
		writeAppSegment(&out, s.marker, s.payload)
	}
	out.Write(jpegData[2:])
	return out.Bytes(), nil
}

// removeMarkedSegments drops header segments for which drop returns true,
// keeping everything else byte-identical.
func removeMarkedSegments(jpegData []byte, drop func(marker byte, payload []byte) bool) ([]byte, error) {
	if len(jpegData) < 4 || jpegData[0] != markerStart || jpegData[1] != markerSOI {
		return nil, errors.New("invalid JPEG")
	}
	var out bytes.Buffer
	out.WriteByte(markerStart)
	out.WriteByte(markerSOI)
	pos := 2
	for pos+3 < len(jpegData) {
		if jpegData[pos] != markerStart {
			out.WriteByte(jpegData[pos])
			pos++
			continue
		}
		for pos < len(jpegData) && jpegData[pos] == markerStart {
			pos++
		}
		if pos >= len(jpegData) {
			break
		}
		marker := jpegData[pos]
		pos++
		if marker == markerSOS || marker == markerEOI {
			out.WriteByte(markerStart)
			out.WriteByte(marker)
			out.Write(jpegData[pos:])
			return out.Bytes(), nil
		}
		if marker >= 0xD0 && marker <= 0xD7 {
			out.WriteByte(markerStart)
			out.WriteByte(marker)
			continue
		}
		if pos+1 >= len(jpegData) {
			return nil, errors.New("truncated marker")
		}
		segLen := int(binary.BigEndian.Uint16(jpegData[pos:]))
		if segLen < 2 || pos+segLen > len(jpegData) {
			return nil, errors.New("invalid segment length")
		}
		segStart := pos + 2
		segEnd := pos + segLen
		if drop(marker, jpegData[segStart:segEnd]) {
			pos = segEnd
			continue
		}
		out.WriteByte(markerStart)
		out.WriteByte(marker)
		out.Write(jpegData[pos : pos+2])
		out.Write(jpegData[segStart:segEnd])
		pos = segEnd
	}
	return out.Bytes(), nil
}

func appSize(payload []byte) int {
	if len(payload) == 0 {
		return 0
	}
	return 4 + len(payload)
}

// validateJPEGHeader walks the segment table up to SOS and reports malformed
// input without touching entropy-coded data.
func validateJPEGHeader(data []byte) error {
	if len(data) < 4 || data[0] != markerStart || data[1] != markerSOI {
		return fmt.Errorf("%w: missing SOI marker", ErrMalformedImage)
	}
	if _, _, err := extractAppSegments(data); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedImage, err)
	}
	return nil
}
