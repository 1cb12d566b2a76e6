//go:build no_tflite || no_cgo

package inference

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/fcnseg/fcnseg/logging"
)

// TFLiteModelLoader holds the options used to open tflite model files.
type TFLiteModelLoader struct {
	NumThreads int
	Device     int
	Logger     logging.Logger
}

// NewDefaultTFLiteModelLoader returns a CPU loader.
func NewDefaultTFLiteModelLoader(logger logging.Logger) *TFLiteModelLoader {
	return &TFLiteModelLoader{Device: DeviceCPU, Logger: logger}
}

// TFLiteStruct is unavailable in this build.
type TFLiteStruct struct{}

// CheckRuntime always fails in this build.
func (l *TFLiteModelLoader) CheckRuntime() error {
	return errors.Wrap(ErrRuntimeNotCompiled, "tflite")
}

// Load always fails in this build.
func (l *TFLiteModelLoader) Load(path string) (*TFLiteStruct, error) {
	return nil, errors.Wrap(ErrRuntimeNotCompiled, "tflite")
}

// Infer always fails in this build.
func (m *TFLiteStruct) Infer(input *tensor.Dense) (*tensor.Dense, error) {
	return nil, errors.Wrap(ErrRuntimeNotCompiled, "tflite")
}

// Close is a no-op.
func (m *TFLiteStruct) Close() error {
	return nil
}
