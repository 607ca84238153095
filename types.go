package uhdrbake

// ColorGamut identifies a color gamut signalled by image metadata.
type ColorGamut int

const (
	GamutUnspecified ColorGamut = iota
	GamutSRGB
	GamutDisplayP3
	GamutBT2100
)

// ColorTransfer identifies a transfer function signalled by image metadata.
type ColorTransfer int

const (
	TransferUnspecified ColorTransfer = iota
	TransferSRGB
	TransferPQ
	TransferHLG
)

// ProbeResult is a header-level classification verdict for one JPEG input.
// It is a pure function of the input bytes; probing the same bytes twice
// yields an identical result.
type ProbeResult struct {
	HasEmbeddedGainMap         bool
	HasExtendedDynamicRangeTag bool
	AverageLuma                float64
	PeakLumaEstimate           float64
	ColorGamut                 ColorGamut
	Transfer                   ColorTransfer
}

// OrderedInputPair holds the two bake inputs after classification.
// Exactly one of the source buffers was judged HDR; the pair is consumed by
// Synthesize and not retained.
type OrderedInputPair struct {
	HDR []byte
	SDR []byte
}

// ClassifyOptions tunes the auto-detection heuristic.
type ClassifyOptions struct {
	// PeakMargin is the relative peak-luma factor one input must exceed the
	// other by to be called HDR when no metadata decides. Values <= 1 fall
	// back to the default of 1.10 (10% brighter peak).
	PeakMargin float64
}

// BakeOptions controls UltraHDR synthesis.
type BakeOptions struct {
	BaseQuality    int     // SDR base JPEG quality (1-100)
	GainmapQuality int     // gain map JPEG quality (1-100)
	Scale          int     // gain map downsample factor (>=1)
	Multichannel   bool    // RGB gain map instead of luma
	TargetPeakNits float64 // optional, >0 sets the reconstruction target
}

// GainMapMetadata is the float form of the gain map recovery metadata.
// Boost values are linear factors (exp2 of the stored log2 range).
type GainMapMetadata struct {
	Version         string
	MaxContentBoost [3]float32
	MinContentBoost [3]float32
	Gamma           [3]float32
	OffsetSDR       [3]float32
	OffsetHDR       [3]float32
	HDRCapacityMin  float32
	HDRCapacityMax  float32
	UseBaseCG       bool
}

// MetadataSegments holds raw APP payloads for XMP/ISO blocks of a container.
// Payloads include the namespace prefix and null terminator.
type MetadataSegments struct {
	PrimaryXMP   []byte
	PrimaryISO   []byte
	SecondaryXMP []byte
	SecondaryISO []byte
}

// MotionOptions controls Motion Photo assembly.
type MotionOptions struct {
	// TimestampMicros is the presentation timestamp of the still frame
	// within the clip, in microseconds. Zero is a valid default.
	TimestampMicros int64
}

// MotionResult is an assembled Motion Photo container. The JPEG prefix up to
// VideoOffset remains a valid standalone JPEG, and the slice
// [VideoOffset, VideoOffset+VideoLength) reproduces the input video exactly.
type MotionResult struct {
	Container       []byte
	VideoOffset     int
	VideoLength     int
	TimestampMicros int64
}
