package segmentation

import (
	"github.com/pkg/errors"
)

// ApplyThreshold demotes to bgLabel every pixel whose largest class probability is below
// threshold. label is modified in place and returned; proba is never modified. A threshold of
// zero leaves label unchanged.
func ApplyThreshold(label *LabelMap, proba *ProbabilityMap, threshold float32, bgLabel int32) (*LabelMap, error) {
	if err := checkSameSize(label, proba); err != nil {
		return nil, err
	}
	if threshold <= 0 {
		return label, nil
	}
	for i := range label.Labels {
		if maxOf(proba.Pixel(i)) < threshold {
			label.Labels[i] = bgLabel
		}
	}
	return label, nil
}

func maxOf(v []float32) float32 {
	m := v[0]
	for _, x := range v[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func checkSameSize(label *LabelMap, proba *ProbabilityMap) error {
	if label == nil || proba == nil {
		return errors.New("label and probability maps must not be nil")
	}
	if label.Height != proba.Height || label.Width != proba.Width {
		return errors.Errorf("label map is %dx%d but probability map is %dx%d",
			label.Width, label.Height, proba.Width, proba.Height)
	}
	if proba.Classes <= 0 || len(proba.Data) != proba.Height*proba.Width*proba.Classes {
		return errors.Errorf("probability map of %dx%dx%d holds %d values",
			proba.Width, proba.Height, proba.Classes, len(proba.Data))
	}
	if len(label.Labels) != label.Height*label.Width {
		return errors.Errorf("label map of %dx%d holds %d values", label.Width, label.Height, len(label.Labels))
	}
	return nil
}
