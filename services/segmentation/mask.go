package segmentation

import (
	"github.com/fcnseg/fcnseg/rimage"
)

// MaskedLabel is the label given to pixels outside the mask.
const MaskedLabel = 0

// ApplyMask forces every pixel where mask is zero to MaskedLabel with a probability vector that
// is one-hot at MaskedLabel. Pixels where mask is nonzero pass through. label and proba are
// modified in place and returned. A mask of the wrong size yields a FrameSkippedError.
func ApplyMask(label *LabelMap, proba *ProbabilityMap, mask *rimage.PixelBuffer) (*LabelMap, *ProbabilityMap, error) {
	if err := checkSameSize(label, proba); err != nil {
		return nil, nil, err
	}
	if mask == nil {
		return nil, nil, NewFrameSkippedError("mask is nil")
	}
	if err := mask.Validate(); err != nil {
		return nil, nil, NewFrameSkippedError("%v", err)
	}
	if mask.Channels != 1 {
		return nil, nil, NewFrameSkippedError("mask must have 1 channel, got %d", mask.Channels)
	}
	if mask.Height != label.Height || mask.Width != label.Width {
		return nil, nil, NewFrameSkippedError("mask is %dx%d but image is %dx%d",
			mask.Width, mask.Height, label.Width, label.Height)
	}
	for i, m := range mask.Data {
		if m != 0 {
			continue
		}
		label.Labels[i] = MaskedLabel
		pixel := proba.Pixel(i)
		for c := range pixel {
			pixel[c] = 0
		}
		pixel[MaskedLabel] = 1
	}
	return label, proba, nil
}
