package rimage

import (
	"image"

	"github.com/nfnt/resize"
)

// ResizeToFit downscales img so neither side exceeds maxSide, keeping the aspect ratio. Images
// that already fit are returned unchanged. Masks should pass nearest so no new values appear.
func ResizeToFit(img image.Image, maxSide uint, nearest bool) image.Image {
	if maxSide == 0 {
		return img
	}
	interp := resize.Bilinear
	if nearest {
		interp = resize.NearestNeighbor
	}
	return resize.Thumbnail(maxSide, maxSide, img, interp)
}
