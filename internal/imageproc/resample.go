package imageproc

import (
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"

	"github.com/Brownie44l1/image-classifier/internal/model"
)

// Resample crops the largest centered square out of img and scales it to
// exactly size with a Lanczos filter.
func Resample(img RawImage, size Size) (Thumbnail, error) {
	if size.Width <= 0 || size.Height <= 0 {
		return Thumbnail{}, &model.BufferError{Reason: "non-positive target size"}
	}
	if err := img.validate(); err != nil {
		return Thumbnail{}, err
	}

	side := min(img.Width, img.Height)
	square := imaging.CropCenter(img.nrgba(), side, side)
	scaled := resize.Resize(uint(size.Width), uint(size.Height), square, resize.Lanczos3)

	raw, err := FromImage(scaled)
	if err != nil {
		return Thumbnail{}, err
	}
	if raw.Width != size.Width || raw.Height != size.Height {
		return Thumbnail{}, &model.ShapeMismatchError{
			What: "thumbnail pixels",
			Want: size.Width * size.Height,
			Got:  raw.Width * raw.Height,
		}
	}
	return Thumbnail{RawImage: raw}, nil
}
