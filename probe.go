package uhdrbake

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"unicode/utf16"

	"github.com/nfnt/resize"
)

// xyz is an ICC XYZNumber in D50-adapted profile connection space.
type xyz struct {
	x, y, z float64
}

// D50-adapted RGB primaries as stored in common ICC profiles.
var (
	srgbPrimaries = [3]xyz{
		{0.4360, 0.2225, 0.0139},
		{0.3851, 0.7169, 0.0971},
		{0.1431, 0.0606, 0.7139},
	}
	p3Primaries = [3]xyz{
		{0.5151, 0.2412, -0.0011},
		{0.2920, 0.6922, 0.0419},
		{0.1571, 0.0666, 0.7841},
	}
	bt2020Primaries = [3]xyz{
		{0.6734, 0.2790, -0.0019},
		{0.1656, 0.6753, 0.0299},
		{0.1252, 0.0457, 0.7966},
	}
)

const primariesTolerance = 0.005

// Probe inspects a JPEG header and thumbnail-scale pixel statistics.
// The result is a pure function of the input bytes.
func Probe(data []byte) (*ProbeResult, error) {
	return ProbeWithCodec(data, DefaultCodec())
}

// ProbeWithCodec is Probe with an explicit codec for the pixel statistics.
func ProbeWithCodec(data []byte, codec Codec) (*ProbeResult, error) {
	if err := validateJPEGHeader(data); err != nil {
		return nil, err
	}

	res := &ProbeResult{}

	app1, app2, err := extractAppSegments(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedImage, err)
	}

	primaryXMP := findXMP(app1)
	primaryISO := findISO(app2)
	if primaryXMP != nil && hasHdrgmXMP(primaryXMP) {
		res.HasExtendedDynamicRangeTag = true
	}
	if primaryISO != nil {
		res.HasExtendedDynamicRangeTag = true
	}

	headroom := probeSecondaryGainmap(data, res)

	profile := collectICCProfile(app2)
	if profile != nil {
		res.ColorGamut, res.Transfer = detectColorSpace(profile)
	}
	if res.Transfer == TransferUnspecified {
		res.Transfer = TransferSRGB
	}
	if res.Transfer == TransferPQ || res.Transfer == TransferHLG || res.ColorGamut == GamutBT2100 {
		res.HasExtendedDynamicRangeTag = true
	}

	if err := probeLumaStats(data, codec, headroom, res); err != nil {
		return nil, err
	}
	return res, nil
}

// probeSecondaryGainmap checks the MPF-referenced secondary image for gain
// map metadata and returns the signalled headroom factor (1.0 when absent).
func probeSecondaryGainmap(data []byte, res *ProbeResult) float64 {
	_, secondarySize, secondaryOffset, ok := findMPFInfo(data)
	if !ok {
		return 1.0
	}
	end := secondaryOffset + secondarySize
	if secondaryOffset < 0 || end > len(data) || secondaryOffset >= end {
		return 1.0
	}
	sApp1, sApp2, err := extractAppSegments(data[secondaryOffset:end])
	if err != nil {
		return 1.0
	}
	headroom := 1.0
	if iso := findISO(sApp2); iso != nil {
		res.HasEmbeddedGainMap = true
		res.HasExtendedDynamicRangeTag = true
		if meta, err := decodeISOMetadata(iso[len(isoNamespace)+1:]); err == nil {
			headroom = float64(meta.HDRCapacityMax)
		}
	} else if x := findXMP(sApp1); x != nil && hasHdrgmXMP(x) {
		res.HasEmbeddedGainMap = true
		res.HasExtendedDynamicRangeTag = true
		if meta, err := parseGainmapXMP(x); err == nil {
			headroom = float64(meta.HDRCapacityMax)
		}
	}
	if headroom < 1.0 {
		headroom = 1.0
	}
	return headroom
}

// probeLumaStats decodes the (primary) image, downsamples it and computes
// linear-light luma statistics relative to SDR white.
func probeLumaStats(data []byte, codec Codec, headroom float64, res *ProbeResult) error {
	img, err := codec.Decode(data)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedImage, err)
	}
	thumb := resize.Thumbnail(probeThumbEdge, probeThumbEdge, img, resize.Bilinear)
	b := thumb.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return fmt.Errorf("%w: empty image", ErrMalformedImage)
	}
	var sum, peak float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			l := float64(luma709(sampleLinearSRGB(thumb, x, y)))
			sum += l
			if l > peak {
				peak = l
			}
		}
	}
	n := float64(b.Dx() * b.Dy())
	res.AverageLuma = sum / n
	res.PeakLumaEstimate = peak * headroom
	return nil
}

// detectColorSpace classifies an assembled ICC profile blob by its RGB
// primaries, with the description text as a fallback hint.
func detectColorSpace(profile []byte) (ColorGamut, ColorTransfer) {
	gamut := GamutUnspecified
	transfer := TransferUnspecified

	if p, t, ok := parseCICP(profile); ok {
		gamut, transfer = p, t
	}

	if gamut == GamutUnspecified {
		if prim, ok := parseICCPrimaries(profile); ok {
			switch {
			case primariesMatch(prim, srgbPrimaries):
				gamut = GamutSRGB
			case primariesMatch(prim, p3Primaries):
				gamut = GamutDisplayP3
			case primariesMatch(prim, bt2020Primaries):
				gamut = GamutBT2100
			}
		}
	}

	desc := profileDescription(profile)
	if gamut == GamutUnspecified {
		gamut = gamutFromDescHint(desc)
	}
	if transfer == TransferUnspecified {
		transfer = transferFromDescHint(desc)
	}
	return gamut, transfer
}

func primariesMatch(a, b [3]xyz) bool {
	for i := 0; i < 3; i++ {
		if math.Abs(a[i].x-b[i].x) > primariesTolerance ||
			math.Abs(a[i].y-b[i].y) > primariesTolerance ||
			math.Abs(a[i].z-b[i].z) > primariesTolerance {
			return false
		}
	}
	return true
}

// parseICCPrimaries reads the rXYZ/gXYZ/bXYZ colorant tags.
func parseICCPrimaries(profile []byte) ([3]xyz, bool) {
	var out [3]xyz
	tags := [3]string{"rXYZ", "gXYZ", "bXYZ"}
	for i, tag := range tags {
		data := iccTagData(profile, tag)
		if len(data) < 20 || string(data[0:4]) != "XYZ " {
			return out, false
		}
		out[i] = xyz{
			x: s15Fixed16(data[8:12]),
			y: s15Fixed16(data[12:16]),
			z: s15Fixed16(data[16:20]),
		}
	}
	return out, true
}

// parseCICP reads the cicp tag (coding-independent code points) when present.
func parseCICP(profile []byte) (ColorGamut, ColorTransfer, bool) {
	data := iccTagData(profile, "cicp")
	if len(data) < 12 || string(data[0:4]) != "cicp" {
		return GamutUnspecified, TransferUnspecified, false
	}
	primaries := data[8]
	transferCode := data[9]

	gamut := GamutUnspecified
	switch primaries {
	case 1:
		gamut = GamutSRGB
	case 9:
		gamut = GamutBT2100
	case 12:
		gamut = GamutDisplayP3
	}
	transfer := TransferUnspecified
	switch transferCode {
	case 1, 6, 13, 14, 15:
		transfer = TransferSRGB
	case 16:
		transfer = TransferPQ
	case 18:
		transfer = TransferHLG
	}
	return gamut, transfer, true
}

// iccTagData resolves a tag from the ICC tag table, nil when absent.
func iccTagData(profile []byte, tag string) []byte {
	const headerSize = 128
	if len(profile) < headerSize+4 {
		return nil
	}
	count := int(binary.BigEndian.Uint32(profile[headerSize:]))
	pos := headerSize + 4
	for i := 0; i < count; i++ {
		if pos+12 > len(profile) {
			return nil
		}
		sig := string(profile[pos : pos+4])
		offset := int(binary.BigEndian.Uint32(profile[pos+4:]))
		size := int(binary.BigEndian.Uint32(profile[pos+8:]))
		if sig == tag {
			if offset < 0 || size < 0 || offset+size > len(profile) {
				return nil
			}
			return profile[offset : offset+size]
		}
		pos += 12
	}
	return nil
}

func s15Fixed16(b []byte) float64 {
	return float64(int32(binary.BigEndian.Uint32(b))) / 65536.0
}

// profileDescription extracts the profile description string from a desc or
// mluc tag, empty when unreadable.
func profileDescription(profile []byte) string {
	data := iccTagData(profile, "desc")
	if len(data) < 8 {
		return ""
	}
	switch string(data[0:4]) {
	case "desc":
		if len(data) < 12 {
			return ""
		}
		n := int(binary.BigEndian.Uint32(data[8:]))
		if n <= 0 || 12+n > len(data) {
			return ""
		}
		s := data[12 : 12+n]
		// ASCII, null terminated.
		for i, c := range s {
			if c == 0 {
				return string(s[:i])
			}
		}
		return string(s)
	case "mluc":
		if len(data) < 16 {
			return ""
		}
		count := int(binary.BigEndian.Uint32(data[8:]))
		if count <= 0 || len(data) < 28 {
			return ""
		}
		strLen := int(binary.BigEndian.Uint32(data[20:]))
		strOff := int(binary.BigEndian.Uint32(data[24:]))
		if strOff < 0 || strLen < 0 || strOff+strLen > len(data) || strLen%2 != 0 {
			return ""
		}
		u16s := make([]uint16, 0, strLen/2)
		for i := strOff; i+1 < strOff+strLen; i += 2 {
			u16s = append(u16s, binary.BigEndian.Uint16(data[i:]))
		}
		return string(utf16.Decode(u16s))
	}
	return ""
}

func gamutFromDescHint(desc string) ColorGamut {
	switch {
	case containsFold(desc, "display p3"), containsFold(desc, "p3"):
		return GamutDisplayP3
	case containsFold(desc, "2020"), containsFold(desc, "2100"):
		return GamutBT2100
	case containsFold(desc, "srgb"):
		return GamutSRGB
	}
	return GamutUnspecified
}

func transferFromDescHint(desc string) ColorTransfer {
	switch {
	case containsFold(desc, "pq"), containsFold(desc, "2084"):
		return TransferPQ
	case containsFold(desc, "hlg"):
		return TransferHLG
	case containsFold(desc, "srgb"):
		return TransferSRGB
	}
	return TransferUnspecified
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), sub)
}
