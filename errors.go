package uhdrbake

import "errors"

// Error taxonomy. Failures wrap one of these sentinels so callers can branch
// with errors.Is while still receiving a human-readable message. No component
// retries internally; everything propagates to the caller.
var (
	// ErrMalformedImage reports a JPEG whose header could not be parsed
	// (bad start-of-image marker, truncated segment table).
	ErrMalformedImage = errors.New("malformed image")

	// ErrAmbiguousOrdering reports that the classifier could not decide
	// which input is the HDR source; the caller must order explicitly.
	ErrAmbiguousOrdering = errors.New("ambiguous HDR/SDR ordering")

	// ErrDecode reports a pixel-level decode failure from the codec.
	ErrDecode = errors.New("decode failed")

	// ErrDimensionMismatch reports HDR/SDR inputs of different dimensions.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrInvalidOptions reports an option outside its contractual range.
	ErrInvalidOptions = errors.New("invalid options")

	// ErrUnsupportedPhotoFormat reports a motion-path photo that is not JPEG.
	ErrUnsupportedPhotoFormat = errors.New("unsupported photo format")

	// ErrEmptyVideo reports a zero-length motion-path video payload.
	ErrEmptyVideo = errors.New("empty video")
)
