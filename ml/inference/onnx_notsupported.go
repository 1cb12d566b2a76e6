//go:build no_cgo

package inference

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ONNXModelLoader holds the options used to open ONNX model files.
type ONNXModelLoader struct {
	LibraryPath string
	NumThreads  int
	Device      int
}

// ONNXStruct is unavailable without cgo.
type ONNXStruct struct {
	NumClasses int
}

// CheckRuntime always fails without cgo.
func (l *ONNXModelLoader) CheckRuntime() error {
	return errors.Wrap(ErrRuntimeNotCompiled, "onnxruntime")
}

// Load always fails without cgo.
func (l *ONNXModelLoader) Load(path string) (*ONNXStruct, error) {
	return nil, errors.Wrap(ErrRuntimeNotCompiled, "onnxruntime")
}

// Infer always fails without cgo.
func (m *ONNXStruct) Infer(input *tensor.Dense) (*tensor.Dense, error) {
	return nil, errors.Wrap(ErrRuntimeNotCompiled, "onnxruntime")
}

// Close is a no-op.
func (m *ONNXStruct) Close() error {
	return nil
}
