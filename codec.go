package uhdrbake

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// Codec abstracts JPEG encode/decode so callers can plug in a different
// implementation (libjpeg bindings, a fixed-quality encoder in tests).
type Codec interface {
	Decode(data []byte) (image.Image, error)
	Encode(img image.Image, quality int) ([]byte, error)
}

type jpegCodec struct{}

// DefaultCodec returns the built-in JPEG codec.
func DefaultCodec() Codec {
	return jpegCodec{}
}

func (jpegCodec) Decode(data []byte) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecode, err)
	}
	return img, nil
}

func (jpegCodec) Encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}
