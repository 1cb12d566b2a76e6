// Package inference loads model files into the native runtimes used for segmentation and runs
// single-image forward passes on them.
package inference

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ErrRuntimeNotCompiled is returned when a runtime was excluded from the build.
var ErrRuntimeNotCompiled = errors.New("runtime is not compiled into this binary")

// ErrDeviceUnavailable is returned when the requested accelerator cannot be used.
var ErrDeviceUnavailable = errors.New("requested inference device is unavailable")

// Runner performs a forward pass on a loaded model. Runners are not safe for concurrent use.
type Runner interface {
	// Infer runs the model on a single float32 input tensor and returns its single float32
	// output tensor.
	Infer(input *tensor.Dense) (*tensor.Dense, error)
	Close() error
}

// DeviceCPU selects host execution.
const DeviceCPU = -1

func checkInput(input *tensor.Dense, dims int) error {
	if input == nil {
		return errors.New("input tensor is nil")
	}
	if input.Dtype() != tensor.Float32 {
		return errors.Errorf("input tensor must be float32, got %v", input.Dtype())
	}
	if input.Dims() != dims {
		return errors.Errorf("input tensor must have %d dims, got shape %v", dims, input.Shape())
	}
	return nil
}
