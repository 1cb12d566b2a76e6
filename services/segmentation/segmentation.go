// Package segmentation turns color images into per-pixel class labels and class probabilities
// using a pluggable inference backend.
package segmentation

import (
	"gorgonia.org/tensor"
)

// MeanBGR is subtracted from every input pixel before inference.
var MeanBGR = [3]float32{104.00698793, 116.66876762, 122.67891434}

// LabelMap holds one class index per pixel, row-major.
type LabelMap struct {
	Height int
	Width  int
	Labels []int32
}

// NewLabelMap allocates a zeroed label map.
func NewLabelMap(height, width int) *LabelMap {
	return &LabelMap{Height: height, Width: width, Labels: make([]int32, height*width)}
}

// At returns the label of the pixel at row y, column x.
func (lm *LabelMap) At(y, x int) int32 {
	return lm.Labels[y*lm.Width+x]
}

// Clone returns a deep copy.
func (lm *LabelMap) Clone() *LabelMap {
	out := &LabelMap{Height: lm.Height, Width: lm.Width, Labels: make([]int32, len(lm.Labels))}
	copy(out.Labels, lm.Labels)
	return out
}

// ProbabilityMap holds a probability vector over Classes classes for every pixel, row-major
// with the class axis last.
type ProbabilityMap struct {
	Height  int
	Width   int
	Classes int
	Data    []float32
}

// NewProbabilityMap allocates a zeroed probability map.
func NewProbabilityMap(height, width, classes int) *ProbabilityMap {
	return &ProbabilityMap{
		Height:  height,
		Width:   width,
		Classes: classes,
		Data:    make([]float32, height*width*classes),
	}
}

// Pixel returns the probability vector of the i-th pixel in row-major order. The returned slice
// aliases the map.
func (pm *ProbabilityMap) Pixel(i int) []float32 {
	return pm.Data[i*pm.Classes : (i+1)*pm.Classes]
}

// Clone returns a deep copy.
func (pm *ProbabilityMap) Clone() *ProbabilityMap {
	out := &ProbabilityMap{Height: pm.Height, Width: pm.Width, Classes: pm.Classes, Data: make([]float32, len(pm.Data))}
	copy(out.Data, pm.Data)
	return out
}

// RawSegmentation is the direct output of a backend, before threshold and mask are applied.
type RawSegmentation struct {
	// Scores is the model output in the runtime's own layout.
	Scores *tensor.Dense
	Labels *LabelMap
	Proba  *ProbabilityMap
	// MaxProba is the largest class probability of every pixel.
	MaxProba []float32
}

// Segmentation is the final result published for a frame.
type Segmentation struct {
	Labels *LabelMap
	Proba  *ProbabilityMap
}
