package uhdrbake

import (
	"fmt"
	"image"
)

// DefaultBakeOptions returns the bake defaults: quality 95 for both images,
// full-resolution luma gain map, no explicit peak target.
func DefaultBakeOptions() *BakeOptions {
	return &BakeOptions{
		BaseQuality:    defaultBaseQuality,
		GainmapQuality: defaultGainmapQuality,
		Scale:          defaultGainmapScale,
	}
}

func validateBakeOptions(opts *BakeOptions) error {
	if opts.BaseQuality < 1 || opts.BaseQuality > 100 {
		return fmt.Errorf("%w: base quality %d outside [1,100]", ErrInvalidOptions, opts.BaseQuality)
	}
	if opts.GainmapQuality < 1 || opts.GainmapQuality > 100 {
		return fmt.Errorf("%w: gainmap quality %d outside [1,100]", ErrInvalidOptions, opts.GainmapQuality)
	}
	if opts.Scale < 1 {
		return fmt.Errorf("%w: gainmap scale %d, must be positive", ErrInvalidOptions, opts.Scale)
	}
	if opts.TargetPeakNits < 0 {
		return fmt.Errorf("%w: target peak %.1f nits", ErrInvalidOptions, opts.TargetPeakNits)
	}
	return nil
}

// Synthesize bakes an ordered HDR/SDR pair into an UltraHDR JPEG.
func Synthesize(pair *OrderedInputPair, opts *BakeOptions) ([]byte, *GainMapMetadata, error) {
	return SynthesizeWithCodec(pair, opts, DefaultCodec())
}

// SynthesizeWithCodec bakes with an explicit JPEG codec.
//
// The SDR input becomes the base layer: it is decoded, re-encoded at the
// base quality, and keeps its EXIF and ICC segments. The HDR input supplies
// the linear-light target the gain map is derived against: an UltraHDR input
// is reconstructed through its own gain map, a PQ or HLG tagged input goes
// through the matching inverse transfer, anything else is treated as sRGB.
func SynthesizeWithCodec(pair *OrderedInputPair, opts *BakeOptions, codec Codec) ([]byte, *GainMapMetadata, error) {
	if pair == nil || len(pair.HDR) == 0 || len(pair.SDR) == 0 {
		return nil, nil, fmt.Errorf("%w: missing input", ErrInvalidOptions)
	}
	if opts == nil {
		opts = DefaultBakeOptions()
	}
	if err := validateBakeOptions(opts); err != nil {
		return nil, nil, err
	}
	if err := validateJPEGHeader(pair.SDR); err != nil {
		return nil, nil, err
	}
	if err := validateJPEGHeader(pair.HDR); err != nil {
		return nil, nil, err
	}

	sdrImg, err := codec.Decode(pair.SDR)
	if err != nil {
		return nil, nil, fmt.Errorf("decode SDR: %w", err)
	}

	hdrLinear, err := linearizeHDRInput(pair.HDR, codec)
	if err != nil {
		return nil, nil, err
	}

	sb := sdrImg.Bounds()
	if sb.Dx() != hdrLinear.w || sb.Dy() != hdrLinear.h {
		return nil, nil, fmt.Errorf("%w: SDR %dx%d vs HDR %dx%d",
			ErrDimensionMismatch, sb.Dx(), sb.Dy(), hdrLinear.w, hdrLinear.h)
	}

	gainmap, meta, err := generateGainMap(sdrImg, hdrLinear, opts)
	if err != nil {
		return nil, nil, err
	}

	baseJPEG, err := codec.Encode(sdrImg, opts.BaseQuality)
	if err != nil {
		return nil, nil, fmt.Errorf("encode base: %w", err)
	}
	gainmapJPEG, err := codec.Encode(gainmap, opts.GainmapQuality)
	if err != nil {
		return nil, nil, fmt.Errorf("encode gainmap: %w", err)
	}

	exif, icc, err := extractExifAndIcc(pair.SDR)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrMalformedImage, err)
	}

	secondaryXMP := buildGainmapXMP(meta)
	secondaryISO, err := buildISOPayload(meta)
	if err != nil {
		return nil, nil, fmt.Errorf("encode ISO metadata: %w", err)
	}

	container, _, err := assembleContainer(baseJPEG, gainmapJPEG, exif, icc, secondaryXMP, secondaryISO)
	if err != nil {
		return nil, nil, err
	}
	return container, meta, nil
}

// linearizeHDRInput produces the linear-light HDR rendition of the bake's
// HDR source.
func linearizeHDRInput(data []byte, codec Codec) (*linearImage, error) {
	if sr, err := Split(data); err == nil {
		hdr, err := reconstructLinearHDR(sr, codec)
		if err != nil {
			return nil, fmt.Errorf("reconstruct HDR input: %w", err)
		}
		return hdr, nil
	}

	img, err := codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode HDR: %w", err)
	}

	transfer := TransferSRGB
	if p, err := Probe(data); err == nil {
		transfer = p.Transfer
	}
	switch transfer {
	case TransferPQ:
		return linearizeWithEOTF(img, pqInvOetf), nil
	case TransferHLG:
		return linearizeWithEOTF(img, hlgInvOetf), nil
	default:
		return linearizeSRGB(img), nil
	}
}

func linearizeWithEOTF(img image.Image, eotf func(float32) float32) *linearImage {
	b := img.Bounds()
	out := newLinearImage(b.Dx(), b.Dy())
	for y := 0; y < out.h; y++ {
		for x := 0; x < out.w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			out.set(x, y, rgb{
				r: eotf(float32(r) / 65535.0),
				g: eotf(float32(g) / 65535.0),
				b: eotf(float32(bl) / 65535.0),
			})
		}
	}
	return out
}
