// Package imageproc turns captured images into model input tensors.
package imageproc

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/Brownie44l1/image-classifier/internal/model"
)

// BytesPerPixel is the size of one R,G,B,A pixel in a RawImage.
const BytesPerPixel = 4

type Size struct {
	Width  int
	Height int
}

// Square returns a Size with both edges equal to n.
func Square(n int) Size {
	return Size{Width: n, Height: n}
}

// RawImage is an interleaved, non-premultiplied R,G,B,A byte buffer. The
// pipeline only ever reads it.
type RawImage struct {
	Width  int
	Height int
	Stride int
	Pix    []byte
}

// Thumbnail is a RawImage already resampled to the model's input size.
type Thumbnail struct {
	RawImage
}

// NewRawImage wraps pix as a tightly packed width x height image.
func NewRawImage(width, height int, pix []byte) (RawImage, error) {
	img := RawImage{Width: width, Height: height, Stride: width * BytesPerPixel, Pix: pix}
	if err := img.validate(); err != nil {
		return RawImage{}, err
	}
	return img, nil
}

// FromImage copies any decoded image into a tightly packed RawImage.
func FromImage(src image.Image) (RawImage, error) {
	if src == nil {
		return RawImage{}, &model.BufferError{Reason: "nil image"}
	}
	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return RawImage{}, &model.BufferError{Reason: "zero-sized image"}
	}

	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	return RawImage{Width: b.Dx(), Height: b.Dy(), Stride: dst.Stride, Pix: dst.Pix}, nil
}

func (r RawImage) validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return &model.BufferError{Reason: "zero-sized image"}
	}
	if r.Stride < r.Width*BytesPerPixel {
		return &model.BufferError{Reason: "stride shorter than a row"}
	}
	if r.Stride%BytesPerPixel != 0 {
		return &model.BufferError{Reason: "stride is not a whole number of pixels"}
	}
	if need := (r.Height-1)*r.Stride + r.Width*BytesPerPixel; len(r.Pix) < need {
		return &model.BufferError{Reason: "pixel buffer shorter than image"}
	}
	return nil
}

// nrgba views the buffer as an image without copying it.
func (r RawImage) nrgba() *image.NRGBA {
	return &image.NRGBA{
		Pix:    r.Pix,
		Stride: r.Stride,
		Rect:   image.Rect(0, 0, r.Width, r.Height),
	}
}
