package uhdrbake

import (
	"bytes"
	"errors"
	"fmt"
)

// maxMotionPasses bounds the XMP length fixpoint iteration. The embedded
// Item:Length changes the header size, which can change the digit count of
// the length itself; two passes settle in practice.
const maxMotionPasses = 4

// AssembleMotion splices a JPEG still and an MP4 clip into a Motion Photo.
// The still keeps decoding as a plain JPEG; the clip is appended verbatim
// after the EOI marker and located through GContainer XMP.
func AssembleMotion(photo, video []byte, opts *MotionOptions) (*MotionResult, error) {
	if len(photo) < 2 || photo[0] != markerStart || photo[1] != markerSOI {
		return nil, fmt.Errorf("%w: photo is not a JPEG", ErrUnsupportedPhotoFormat)
	}
	if err := validateJPEGHeader(photo); err != nil {
		return nil, err
	}
	if len(video) == 0 {
		return nil, ErrEmptyVideo
	}

	var timestamp int64
	if opts != nil {
		if opts.TimestampMicros < 0 {
			return nil, fmt.Errorf("%w: negative timestamp", ErrInvalidOptions)
		}
		timestamp = opts.TimestampMicros
	}

	// Re-assembly of an existing Motion Photo starts from a clean still.
	clean, err := removeMarkedSegments(photo, func(marker byte, payload []byte) bool {
		return marker == markerAPP1 && bytes.Contains(payload, []byte("GCamera:MotionPhoto"))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedImage, err)
	}

	jpegLen := len(clean)
	var still []byte
	stable := false
	for pass := 0; pass < maxMotionPasses; pass++ {
		xmp := buildMotionXMP(jpegLen, len(video), timestamp)
		still, err = insertAppSegments(clean, []appSegment{{marker: markerAPP1, payload: xmp}})
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMalformedImage, err)
		}
		if len(still) == jpegLen {
			stable = true
			break
		}
		jpegLen = len(still)
	}
	if !stable {
		return nil, errors.New("motion XMP length did not stabilize")
	}

	container := make([]byte, 0, len(still)+len(video))
	container = append(container, still...)
	container = append(container, video...)

	res := &MotionResult{
		Container:       container,
		VideoOffset:     len(still),
		VideoLength:     len(video),
		TimestampMicros: timestamp,
	}
	if err := verifyMotionContainer(res, video); err != nil {
		return nil, err
	}
	return res, nil
}

// verifyMotionContainer re-reads the assembled container and checks the
// embedded pointers against the actual layout.
func verifyMotionContainer(res *MotionResult, video []byte) error {
	end, err := findJPEGEnd(res.Container, 0)
	if err != nil {
		return fmt.Errorf("verify still: %w", err)
	}
	if end != res.VideoOffset {
		return fmt.Errorf("still length %d does not match video offset %d", end, res.VideoOffset)
	}
	if !bytes.Equal(res.Container[res.VideoOffset:res.VideoOffset+res.VideoLength], video) {
		return errors.New("video bytes not preserved")
	}
	app1, _, err := extractAppSegments(res.Container[:res.VideoOffset])
	if err != nil {
		return fmt.Errorf("verify still header: %w", err)
	}
	xmp := findXMP(app1)
	if xmp == nil {
		return errors.New("motion XMP missing")
	}
	ts, err := parseMotionTimestamp(xmp)
	if err != nil {
		return err
	}
	if ts != res.TimestampMicros {
		return fmt.Errorf("timestamp mismatch: wrote %d, read %d", res.TimestampMicros, ts)
	}
	return nil
}
