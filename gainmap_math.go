package uhdrbake

import (
	"image"
	"image/color"
	"math"
)

type rgb struct {
	r, g, b float32
}

func log2f(v float32) float32 { return float32(math.Log2(float64(v))) }
func exp2f(v float32) float32 { return float32(math.Exp2(float64(v))) }

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func srgbInvOetf(v float32) float32 {
	if v <= 0.04045 {
		return v / 12.92
	}
	return float32(math.Pow(float64((v+0.055)/1.055), 2.4))
}

// pqInvOetf decodes an ST.2084 encoded value to linear light relative to SDR
// white (1.0 = 203 nits).
func pqInvOetf(v float32) float32 {
	const (
		m1 = 2610.0 / 16384.0
		m2 = 2523.0 / 4096.0 * 128.0
		c1 = 3424.0 / 4096.0
		c2 = 2413.0 / 4096.0 * 32.0
		c3 = 2392.0 / 4096.0 * 32.0
	)
	e := math.Pow(float64(clamp01(v)), 1.0/m2)
	num := e - c1
	if num < 0 {
		num = 0
	}
	den := c2 - c3*e
	if den <= 0 {
		return 0
	}
	nits := 10000.0 * math.Pow(num/den, 1.0/m1)
	return float32(nits / sdrWhiteNits)
}

// hlgInvOetf decodes an ARIB STD-B67 encoded value to linear light relative
// to SDR white, assuming the nominal 1000-nit peak.
func hlgInvOetf(v float32) float32 {
	const (
		a = 0.17883277
		b = 0.28466892
		c = 0.55991073
	)
	e := float64(clamp01(v))
	var scene float64
	if e <= 0.5 {
		scene = e * e / 3.0
	} else {
		scene = (math.Exp((e-c)/a) + b) / 12.0
	}
	return float32(scene * 1000.0 / sdrWhiteNits)
}

// sampleLinearSRGB reads a pixel as linear-light RGB, clamping coordinates to
// the image bounds. Ratios must be computed in linear light, so the sRGB
// transfer is inverted here and nowhere else.
func sampleLinearSRGB(img image.Image, x, y int) rgb {
	b := img.Bounds()
	if x < b.Min.X {
		x = b.Min.X
	}
	if y < b.Min.Y {
		y = b.Min.Y
	}
	if x >= b.Max.X {
		x = b.Max.X - 1
	}
	if y >= b.Max.Y {
		y = b.Max.Y - 1
	}
	r, g, b2, _ := img.At(x, y).RGBA()
	// RGBA returns 16-bit values in [0, 65535].
	return rgb{
		r: srgbInvOetf(float32(r) / 65535.0),
		g: srgbInvOetf(float32(g) / 65535.0),
		b: srgbInvOetf(float32(b2) / 65535.0),
	}
}

func isGrayImage(img image.Image) bool {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return true
	default:
		return false
	}
}

func grayAt(img image.Image, x, y int) uint8 {
	c := color.GrayModel.Convert(img.At(img.Bounds().Min.X+x, img.Bounds().Min.Y+y)).(color.Gray)
	return c.Y
}

func rgbAt(img image.Image, x, y int) (uint8, uint8, uint8) {
	r, g, b, _ := img.At(img.Bounds().Min.X+x, img.Bounds().Min.Y+y).RGBA()
	return uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)
}

func max3(a, b, c float32) float32 {
	if a >= b && a >= c {
		return a
	}
	if b >= a && b >= c {
		return b
	}
	return c
}

// luma709 is the BT.709 luma of a linear-light pixel, used by probe stats.
func luma709(v rgb) float32 {
	return 0.2126*v.r + 0.7152*v.g + 0.0722*v.b
}

// gainmapDecodeValue maps a stored 8-bit gain sample back to the normalized
// [0,1] gain, undoing the encode gamma.
func gainmapDecodeValue(v uint8, gamma float32) float32 {
	g := float32(v) / 255.0
	if gamma != 1 {
		g = float32(math.Pow(float64(g), float64(1.0/gamma)))
	}
	return g
}

// applyGainSingle reconstructs a linear HDR pixel from an SDR pixel and a
// single-channel normalized gain. weight in [0,1] scales the boost toward
// the full HDR rendition.
func applyGainSingle(e rgb, gain float32, meta *GainMapMetadata, weight float32) rgb {
	logBoost := log2f(meta.MinContentBoost[0])*(1.0-gain) + log2f(meta.MaxContentBoost[0])*gain
	gainFactor := exp2f(logBoost * weight)
	return rgb{
		r: (e.r+meta.OffsetSDR[0])*gainFactor - meta.OffsetHDR[0],
		g: (e.g+meta.OffsetSDR[0])*gainFactor - meta.OffsetHDR[0],
		b: (e.b+meta.OffsetSDR[0])*gainFactor - meta.OffsetHDR[0],
	}
}

func applyGainRGB(e rgb, gain rgb, meta *GainMapMetadata, weight float32) rgb {
	logBoostR := log2f(meta.MinContentBoost[0])*(1.0-gain.r) + log2f(meta.MaxContentBoost[0])*gain.r
	logBoostG := log2f(meta.MinContentBoost[1])*(1.0-gain.g) + log2f(meta.MaxContentBoost[1])*gain.g
	logBoostB := log2f(meta.MinContentBoost[2])*(1.0-gain.b) + log2f(meta.MaxContentBoost[2])*gain.b
	gainFactorR := exp2f(logBoostR * weight)
	gainFactorG := exp2f(logBoostG * weight)
	gainFactorB := exp2f(logBoostB * weight)
	return rgb{
		r: (e.r+meta.OffsetSDR[0])*gainFactorR - meta.OffsetHDR[0],
		g: (e.g+meta.OffsetSDR[1])*gainFactorG - meta.OffsetHDR[1],
		b: (e.b+meta.OffsetSDR[2])*gainFactorB - meta.OffsetHDR[2],
	}
}

func clampRGB(v rgb) rgb {
	if v.r < 0 {
		v.r = 0
	}
	if v.g < 0 {
		v.g = 0
	}
	if v.b < 0 {
		v.b = 0
	}
	return v
}
