package imageproc

import (
	"github.com/Brownie44l1/image-classifier/internal/model"
)

// Channels is the number of color channels written per pixel.
const Channels = 3

// Tensor is a flat float32 buffer in model input order.
type Tensor []float32

// Extract converts t into row-major, channel-interleaved RGB floats in [0, 1].
// The alpha byte of every pixel is dropped. t must already be exactly size.
func Extract(t Thumbnail, size Size) (Tensor, error) {
	if t.Width != size.Width || t.Height != size.Height {
		return nil, &model.ShapeMismatchError{
			What: "thumbnail pixels",
			Want: size.Width * size.Height,
			Got:  t.Width * t.Height,
		}
	}
	if err := t.validate(); err != nil {
		return nil, err
	}

	rowBytes := t.Width * BytesPerPixel
	if (rowBytes*t.Height)%BytesPerPixel != 0 {
		return nil, &model.BufferError{Reason: "byte count is not a multiple of 4"}
	}

	want := t.Width * t.Height * Channels
	out := make(Tensor, 0, want)
	for y := 0; y < t.Height; y++ {
		row := t.Pix[y*t.Stride : y*t.Stride+rowBytes]
		for i, b := range row {
			if i%BytesPerPixel == 3 {
				continue
			}
			out = append(out, float32(b)/255.0)
		}
	}

	if len(out) != want {
		return nil, &model.ShapeMismatchError{What: "normalized tensor", Want: want, Got: len(out)}
	}
	return out, nil
}

// ToPlanar reorders an interleaved tensor into channel-first planes
// (all R, then all G, then all B) for models exported as NCHW.
func ToPlanar(t Tensor, size Size) (Tensor, error) {
	plane := size.Width * size.Height
	if len(t) != plane*Channels {
		return nil, &model.ShapeMismatchError{What: "normalized tensor", Want: plane * Channels, Got: len(t)}
	}

	out := make(Tensor, len(t))
	for p := 0; p < plane; p++ {
		for c := 0; c < Channels; c++ {
			out[c*plane+p] = t[p*Channels+c]
		}
	}
	return out, nil
}
