package uhdrbake

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
)

// linearImage stores a linear-light image in RGB float32 triplets.
// Values are relative to SDR white (1.0 = SDR white).
type linearImage struct {
	w, h int
	pix  []float32
}

func newLinearImage(w, h int) *linearImage {
	return &linearImage{w: w, h: h, pix: make([]float32, w*h*3)}
}

func (m *linearImage) at(x, y int) rgb {
	idx := (y*m.w + x) * 3
	return rgb{r: m.pix[idx], g: m.pix[idx+1], b: m.pix[idx+2]}
}

func (m *linearImage) set(x, y int, v rgb) {
	idx := (y*m.w + x) * 3
	m.pix[idx] = v.r
	m.pix[idx+1] = v.g
	m.pix[idx+2] = v.b
}

// linearizeSRGB converts a decoded image to linear light.
func linearizeSRGB(img image.Image) *linearImage {
	b := img.Bounds()
	out := newLinearImage(b.Dx(), b.Dy())
	for y := 0; y < out.h; y++ {
		for x := 0; x < out.w; x++ {
			out.set(x, y, sampleLinearSRGB(img, b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}

// reconstructLinearHDR rebuilds the linear HDR rendition of an UltraHDR
// container at full boost by applying its gain map to the SDR base.
func reconstructLinearHDR(sr *SplitResult, codec Codec) (*linearImage, error) {
	if sr.Meta == nil {
		return nil, errors.New("gainmap metadata missing")
	}
	base, err := codec.Decode(sr.PrimaryJPEG)
	if err != nil {
		return nil, fmt.Errorf("decode primary: %w", err)
	}
	gainmap, err := codec.Decode(sr.GainmapJPEG)
	if err != nil {
		return nil, fmt.Errorf("decode gainmap: %w", err)
	}
	b := base.Bounds()
	w, h := b.Dx(), b.Dy()
	gmBounds := gainmap.Bounds()
	gmW, gmH := gmBounds.Dx(), gmBounds.Dy()
	if gmW <= 0 || gmH <= 0 {
		return nil, errors.New("empty gainmap image")
	}
	mapScaleX := float32(w) / float32(gmW)
	mapScaleY := float32(h) / float32(gmH)

	meta := sr.Meta
	gray := isGrayImage(gainmap)
	out := newLinearImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			e := sampleLinearSRGB(base, b.Min.X+x, b.Min.Y+y)
			gx := int(float32(x)/mapScaleX + 0.5)
			gy := int(float32(y)/mapScaleY + 0.5)
			if gx >= gmW {
				gx = gmW - 1
			}
			if gy >= gmH {
				gy = gmH - 1
			}
			var hdr rgb
			if gray {
				gv := gainmapDecodeValue(grayAt(gainmap, gx, gy), meta.Gamma[0])
				hdr = applyGainSingle(e, gv, meta, 1.0)
			} else {
				gr, gg, gb := rgbAt(gainmap, gx, gy)
				gain := rgb{
					r: gainmapDecodeValue(gr, meta.Gamma[0]),
					g: gainmapDecodeValue(gg, meta.Gamma[1]),
					b: gainmapDecodeValue(gb, meta.Gamma[2]),
				}
				hdr = applyGainRGB(e, gain, meta, 1.0)
			}
			out.set(x, y, clampRGB(hdr))
		}
	}
	return out, nil
}

// generateGainMap derives the gain map image and recovery metadata from an
// SDR base and a linear HDR rendition of the same dimensions.
func generateGainMap(sdr image.Image, hdr *linearImage, opts *BakeOptions) (image.Image, *GainMapMetadata, error) {
	if sdr == nil || hdr == nil {
		return nil, nil, errors.New("missing SDR or HDR input")
	}
	b := sdr.Bounds()
	if b.Dx() != hdr.w || b.Dy() != hdr.h {
		return nil, nil, fmt.Errorf("%w: SDR %dx%d vs HDR %dx%d", ErrDimensionMismatch, b.Dx(), b.Dy(), hdr.w, hdr.h)
	}
	scale := opts.Scale
	if scale < 1 {
		return nil, nil, fmt.Errorf("%w: gainmap scale %d, must be positive", ErrInvalidOptions, scale)
	}
	mapW := b.Dx() / scale
	mapH := b.Dy() / scale
	if mapW <= 0 || mapH <= 0 {
		return nil, nil, fmt.Errorf("%w: gainmap scale too large for image", ErrInvalidOptions)
	}

	channels := 1
	if opts.Multichannel {
		channels = 3
	}
	gains := make([]float32, mapW*mapH*channels)
	gainMin := make([]float32, channels)
	gainMax := make([]float32, channels)
	for i := 0; i < channels; i++ {
		gainMin[i] = float32(math.MaxFloat32)
		gainMax[i] = -float32(math.MaxFloat32)
	}

	for y := 0; y < mapH; y++ {
		srcY := b.Min.Y + y*scale
		for x := 0; x < mapW; x++ {
			srcX := b.Min.X + x*scale
			sdrRGB := clampRGB(sampleLinearSRGB(sdr, srcX, srcY))
			hdrRGB := clampRGB(hdr.at(srcX-b.Min.X, srcY-b.Min.Y))

			if channels == 3 {
				g0 := computeGain(sdrWhiteNits*sdrRGB.r, sdrWhiteNits*hdrRGB.r)
				g1 := computeGain(sdrWhiteNits*sdrRGB.g, sdrWhiteNits*hdrRGB.g)
				g2 := computeGain(sdrWhiteNits*sdrRGB.b, sdrWhiteNits*hdrRGB.b)
				idx := (y*mapW + x) * 3
				gains[idx] = g0
				gains[idx+1] = g1
				gains[idx+2] = g2
				updateMinMax(gainMin, gainMax, g0, g1, g2)
			} else {
				sdrY := sdrWhiteNits * max3(sdrRGB.r, sdrRGB.g, sdrRGB.b)
				hdrY := sdrWhiteNits * max3(hdrRGB.r, hdrRGB.g, hdrRGB.b)
				g := computeGain(sdrY, hdrY)
				gains[y*mapW+x] = g
				if g < gainMin[0] {
					gainMin[0] = g
				}
				if g > gainMax[0] {
					gainMax[0] = g
				}
			}
		}
	}

	for i := 0; i < channels; i++ {
		gainMin[i] = clampGainLog2(gainMin[i])
		gainMax[i] = clampGainLog2(gainMax[i])
		if gainMax[i]-gainMin[i] < 1e-6 {
			gainMax[i] = gainMin[i] + 0.1
		}
	}

	// Gamma stays 1.0: the map stores the normalized quantity directly.
	const gamma = float32(1.0)

	var gainmap image.Image
	if channels == 3 {
		out := image.NewRGBA(image.Rect(0, 0, mapW, mapH))
		for y := 0; y < mapH; y++ {
			for x := 0; x < mapW; x++ {
				idx := (y*mapW + x) * 3
				r := affineMapGain(gains[idx], gainMin[0], gainMax[0], gamma)
				g := affineMapGain(gains[idx+1], gainMin[1], gainMax[1], gamma)
				bc := affineMapGain(gains[idx+2], gainMin[2], gainMax[2], gamma)
				out.SetRGBA(x, y, color.RGBA{R: r, G: g, B: bc, A: 0xFF})
			}
		}
		gainmap = out
	} else {
		out := image.NewGray(image.Rect(0, 0, mapW, mapH))
		for y := 0; y < mapH; y++ {
			for x := 0; x < mapW; x++ {
				v := affineMapGain(gains[y*mapW+x], gainMin[0], gainMax[0], gamma)
				out.SetGray(x, y, color.Gray{Y: v})
			}
		}
		gainmap = out
	}

	meta := &GainMapMetadata{
		Version:        jpegrVersion,
		UseBaseCG:      true,
		HDRCapacityMin: 1.0,
	}
	for i := 0; i < 3; i++ {
		src := 0
		if channels == 3 {
			src = i
		}
		meta.MinContentBoost[i] = exp2f(gainMin[src])
		meta.MaxContentBoost[i] = exp2f(gainMax[src])
		meta.Gamma[i] = gamma
		meta.OffsetSDR[i] = kSdrOffset
		meta.OffsetHDR[i] = kHdrOffset
	}
	if opts.TargetPeakNits > 0 {
		meta.HDRCapacityMax = float32(opts.TargetPeakNits / sdrWhiteNits)
	} else {
		meta.HDRCapacityMax = meta.MaxContentBoost[0]
	}
	if meta.HDRCapacityMax < meta.HDRCapacityMin {
		meta.HDRCapacityMax = meta.HDRCapacityMin
	}
	return gainmap, meta, nil
}

// computeGain is the log2 HDR/SDR ratio in nits, with the dark-pixel cap.
func computeGain(sdr, hdr float32) float32 {
	gain := log2f((hdr + kHdrOffset) / (sdr + kSdrOffset))
	if sdr < 2.0/255.0 {
		// Dark pixels are noise-dominated; cap their boost.
		if gain > 2.3 {
			gain = 2.3
		}
	}
	return gain
}

// clampGainLog2 bounds the observed log2 range so a single outlier cannot
// spend the whole 8-bit quantization budget.
func clampGainLog2(v float32) float32 {
	if v < -14.3 {
		return -14.3
	}
	if v > 15.6 {
		return 15.6
	}
	return v
}

func affineMapGain(gainLog2, minLog2, maxLog2, gamma float32) uint8 {
	denom := maxLog2 - minLog2
	if denom == 0 {
		denom = 1
	}
	mapped := clamp01((gainLog2 - minLog2) / denom)
	if gamma != 1 {
		mapped = float32(math.Pow(float64(mapped), float64(gamma)))
	}
	return uint8(mapped*255 + 0.5)
}

func updateMinMax(minv, maxv []float32, r, g, b float32) {
	if r < minv[0] {
		minv[0] = r
	}
	if r > maxv[0] {
		maxv[0] = r
	}
	if len(minv) < 3 {
		return
	}
	if g < minv[1] {
		minv[1] = g
	}
	if g > maxv[1] {
		maxv[1] = g
	}
	if b < minv[2] {
		minv[2] = b
	}
	if b > maxv[2] {
		maxv[2] = b
	}
}
