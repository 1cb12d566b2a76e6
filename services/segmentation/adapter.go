package segmentation

import (
	"context"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"gorgonia.org/tensor"

	"github.com/fcnseg/fcnseg/ml"
	"github.com/fcnseg/fcnseg/ml/inference"
	"github.com/fcnseg/fcnseg/rimage"
)

// Layout is the tensor layout a runtime consumes and produces.
type Layout int

const (
	// ChannelFirst models take [1, 3, H, W] and return [1, C, H, W].
	ChannelFirst Layout = iota
	// ChannelLast models take [1, H, W, 3] and return [1, H, W, C].
	ChannelLast
)

func (l Layout) String() string {
	if l == ChannelFirst {
		return "NCHW"
	}
	return "NHWC"
}

// runnerBackend adapts an inference.Runner to the Backend interface. It owns the mean
// subtraction, the layout conversion, the softmax and the argmax, so every runtime yields the
// same shapes.
type runnerBackend struct {
	name       string
	runner     inference.Runner
	layout     Layout
	numClasses int
}

// NewRunnerBackend wraps a loaded model. numClasses is the class count the model scores.
func NewRunnerBackend(name string, runner inference.Runner, layout Layout, numClasses int) Backend {
	return &runnerBackend{name: name, runner: runner, layout: layout, numClasses: numClasses}
}

func (rb *runnerBackend) NumClasses() int {
	return rb.numClasses
}

func (rb *runnerBackend) Close(ctx context.Context) error {
	return rb.runner.Close()
}

func (rb *runnerBackend) Infer(ctx context.Context, img *rimage.PixelBuffer) (*RawSegmentation, error) {
	_, span := trace.StartSpan(ctx, "segmentation::"+rb.name+"::Infer")
	defer span.End()

	if img == nil {
		return nil, NewFrameSkippedError("image is nil")
	}
	if err := img.Validate(); err != nil {
		return nil, NewFrameSkippedError("%v", err)
	}
	if img.Channels != 3 {
		return nil, NewFrameSkippedError("expected a 3 channel image, got %d channels", img.Channels)
	}

	input := rb.preprocess(img)
	scores, err := rb.runner.Infer(input)
	if err != nil {
		return nil, errors.Wrapf(err, "%s inference failed", rb.name)
	}

	classAxis, want := 1, []int{1, rb.numClasses, img.Height, img.Width}
	if rb.layout == ChannelLast {
		classAxis, want = 3, []int{1, img.Height, img.Width, rb.numClasses}
	}
	if !scores.Shape().Eq(tensor.Shape(want)) {
		return nil, NewFrameSkippedError("model returned scores of shape %v, expected %v", scores.Shape(), want)
	}

	proba, err := ml.Softmax(scores, classAxis)
	if err != nil {
		return nil, err
	}
	if rb.layout == ChannelFirst {
		if proba, err = ml.Permute(proba, 0, 2, 3, 1); err != nil {
			return nil, err
		}
	}
	labels, maxProba, err := ml.MaxAlongAxis(proba, 3)
	if err != nil {
		return nil, err
	}
	probaData, err := ml.Float32Data(proba)
	if err != nil {
		return nil, err
	}

	return &RawSegmentation{
		Scores:   scores,
		Labels:   &LabelMap{Height: img.Height, Width: img.Width, Labels: labels},
		Proba:    &ProbabilityMap{Height: img.Height, Width: img.Width, Classes: rb.numClasses, Data: probaData},
		MaxProba: maxProba,
	}, nil
}

// preprocess subtracts MeanBGR and lays the image out for the runtime with a batch of 1.
func (rb *runnerBackend) preprocess(img *rimage.PixelBuffer) *tensor.Dense {
	h, w := img.Height, img.Width
	data := make([]float32, 3*h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := y*w + x
			for c := 0; c < 3; c++ {
				v := float32(img.Data[p*3+c]) - MeanBGR[c]
				if rb.layout == ChannelFirst {
					data[c*h*w+p] = v
				} else {
					data[p*3+c] = v
				}
			}
		}
	}
	if rb.layout == ChannelFirst {
		return tensor.New(tensor.WithShape(1, 3, h, w), tensor.WithBacking(data))
	}
	return tensor.New(tensor.WithShape(1, h, w, 3), tensor.WithBacking(data))
}
