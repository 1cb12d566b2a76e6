package rimage

import (
	"image"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// LabelPalette returns n visually distinct colors spread around the hue wheel. The background
// label is painted black.
func LabelPalette(n, bgLabel int) []color.NRGBA {
	palette := make([]color.NRGBA, n)
	for i := range palette {
		if i == bgLabel {
			palette[i] = color.NRGBA{A: 255}
			continue
		}
		// odd labels get a darker shade
		sat, val := 0.85, 0.95
		if i%2 == 1 {
			sat, val = 0.65, 0.8
		}
		r, g, b := colorful.Hsv(360*float64(i)/float64(n), sat, val).Clamped().RGB255()
		palette[i] = color.NRGBA{R: r, G: g, B: b, A: 255}
	}
	return palette
}

// ColorizeLabels renders a row-major label array. Labels outside the palette are painted white.
func ColorizeLabels(labels []int32, height, width, numClasses, bgLabel int) *image.NRGBA {
	palette := LabelPalette(numClasses, bgLabel)
	out := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i, l := range labels {
		if i >= height*width {
			break
		}
		c := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
		if l >= 0 && int(l) < len(palette) {
			c = palette[l]
		}
		out.SetNRGBA(i%width, i/width, c)
	}
	return out
}
