// Package blob stores slot photos in the object store.
package blob

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
)

// ErrUnsupportedImage is returned when an upload cannot be decoded.
var ErrUnsupportedImage = errors.New("unsupported image")

// Photo size limits and encoding.
const (
	MaxEdge     = 500
	JPEGQuality = 70
)

// PrepareJPEG decodes r, applies the EXIF orientation, flattens any
// transparency onto white, shrinks the result to fit MaxEdge×MaxEdge and
// encodes it as JPEG. Smaller images are not enlarged.
func PrepareJPEG(r io.Reader) ([]byte, error) {
	src, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	b := src.Bounds()
	flat := imaging.New(b.Dx(), b.Dy(), color.White)
	flat = imaging.Overlay(flat, src, image.Pt(0, 0), 1.0)

	out := imaging.Fit(flat, MaxEdge, MaxEdge, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
