package uhdrbake

const (
	sdrWhiteNits = 203.0
	kSdrOffset   = 1e-7
	kHdrOffset   = 1e-7
)

const (
	defaultBaseQuality    = 95
	defaultGainmapQuality = 95
	defaultGainmapScale   = 1
	defaultPeakMargin     = 1.10
)

// probeThumbEdge caps the long edge of the probe's luma thumbnail.
const probeThumbEdge = 128

const jpegrVersion = "1.0"
