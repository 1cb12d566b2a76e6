package segmentation

import (
	"context"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/fcnseg/fcnseg/rimage"
)

// pixelScorer computes the class scores of one pixel from its mean subtracted BGR value.
type pixelScorer func(bgr [3]float32) []float32

// fakeRunner evaluates a pixelScorer on every pixel of a tensor in the given layout.
type fakeRunner struct {
	layout     Layout
	numClasses int
	score      pixelScorer
	err        error
	calls      int
	closed     bool
	// outShape overrides the shape of the returned scores when set.
	outShape []int
}

func (f *fakeRunner) Infer(input *tensor.Dense) (*tensor.Dense, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	data, ok := input.Data().([]float32)
	if !ok {
		return nil, errors.New("not float32")
	}
	shape := input.Shape()
	var h, w int
	if f.layout == ChannelFirst {
		h, w = shape[2], shape[3]
	} else {
		h, w = shape[1], shape[2]
	}
	out := make([]float32, h*w*f.numClasses)
	for p := 0; p < h*w; p++ {
		var bgr [3]float32
		for c := 0; c < 3; c++ {
			if f.layout == ChannelFirst {
				bgr[c] = data[c*h*w+p]
			} else {
				bgr[c] = data[p*3+c]
			}
		}
		scores := f.score(bgr)
		for k := 0; k < f.numClasses; k++ {
			if f.layout == ChannelFirst {
				out[k*h*w+p] = scores[k]
			} else {
				out[p*f.numClasses+k] = scores[k]
			}
		}
	}
	outShape := []int{1, f.numClasses, h, w}
	if f.layout == ChannelLast {
		outShape = []int{1, h, w, f.numClasses}
	}
	if f.outShape != nil {
		outShape = f.outShape
		out = make([]float32, volumeOf(outShape))
	}
	return tensor.New(tensor.WithShape(outShape...), tensor.WithBacking(out)), nil
}

func (f *fakeRunner) Close() error {
	f.closed = true
	return nil
}

func volumeOf(shape []int) int {
	v := 1
	for _, d := range shape {
		v *= d
	}
	return v
}

// constantScorer returns the same scores for every pixel.
func constantScorer(scores ...float32) pixelScorer {
	return func([3]float32) []float32 {
		return scores
	}
}

// colorScorer scores three classes from the pixel's blue, green and red deviation from the mean.
func colorScorer(bgr [3]float32) []float32 {
	return []float32{bgr[0] / 10, bgr[1] / 10, bgr[2] / 10}
}

func newFakeBackend(layout Layout, numClasses int, score pixelScorer) (Backend, *fakeRunner) {
	runner := &fakeRunner{layout: layout, numClasses: numClasses, score: score}
	return NewRunnerBackend("fake", runner, layout, numClasses), runner
}

func uniformImage(height, width int, b, g, r uint8) *rimage.PixelBuffer {
	img := rimage.NewPixelBuffer(height, width, 3)
	for i := 0; i < height*width; i++ {
		img.Data[i*3], img.Data[i*3+1], img.Data[i*3+2] = b, g, r
	}
	return img
}

func infer(backend Backend, img *rimage.PixelBuffer) (*RawSegmentation, error) {
	return backend.Infer(context.Background(), img)
}
