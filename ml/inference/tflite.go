//go:build !no_tflite && !no_cgo

package inference

import (
	"runtime"

	tflite "github.com/mattn/go-tflite"
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

// NewDefaultTFLiteModelLoader returns a CPU loader using every core.
func NewDefaultTFLiteModelLoader(logger logging.Logger) *TFLiteModelLoader {
	return &TFLiteModelLoader{NumThreads: runtime.NumCPU(), Device: DeviceCPU, Logger: logger}
}

// TFLiteStruct is a loaded tflite model taking a single NHWC float32 input and producing a
// single NHWC float32 output.
type TFLiteStruct struct {
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	delegate    delegate
	inputShape  []int
}

// CheckRuntime reports whether the configured device can be opened, without loading a model.
func (l *TFLiteModelLoader) CheckRuntime() error {
	if l.Device < 0 {
		return nil
	}
	d, err := newAcceleratorDelegate(l.Device)
	if err != nil {
		return err
	}
	closeDelegate(d)
	return nil
}

// Load opens the model at path and allocates its interpreter.
func (l *TFLiteModelLoader) Load(path string) (*TFLiteStruct, error) {
	model := tflite.NewModelFromFile(path)
	if model == nil {
		return nil, errors.Errorf("failed to load %s", path)
	}
	options := tflite.NewInterpreterOptions()
	if options == nil {
		model.Delete()
		return nil, errors.New("interpreter options failed to be created")
	}
	numThreads := l.NumThreads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}
	options.SetNumThread(numThreads)
	logger := l.Logger
	if logger == nil {
		logger = logging.Global()
	}
	options.SetErrorReporter(func(msg string, _ interface{}) {
		logger.Warnw("tflite", "msg", msg)
	}, nil)

	var d delegate
	if l.Device >= 0 {
		var err error
		d, err = newAcceleratorDelegate(l.Device)
		if err != nil {
			options.Delete()
			model.Delete()
			return nil, err
		}
		options.AddDelegate(d)
	}

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		closeDelegate(d)
		options.Delete()
		model.Delete()
		return nil, errors.New("failed to create interpreter")
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		closeDelegate(d)
		options.Delete()
		model.Delete()
		return nil, errors.New("failed to allocate tensors")
	}
	return &TFLiteStruct{
		model:       model,
		options:     options,
		interpreter: interpreter,
		delegate:    d,
		inputShape:  interpreter.GetInputTensor(0).Shape(),
	}, nil
}

// Infer runs the model on a [1, H, W, 3] input and returns the [1, H, W, C] output. The input
// tensor is resized first when the image size changed since the last call.
func (m *TFLiteStruct) Infer(input *tensor.Dense) (*tensor.Dense, error) {
	if err := checkInput(input, 4); err != nil {
		return nil, err
	}
	shape := input.Shape()
	if !sameShape(shape, m.inputShape) {
		dims := make([]int32, len(shape))
		for i, d := range shape {
			dims[i] = int32(d)
		}
		if status := m.interpreter.ResizeInputTensor(0, dims); status != tflite.OK {
			return nil, errors.Errorf("could not resize input to %v", shape)
		}
		if status := m.interpreter.AllocateTensors(); status != tflite.OK {
			return nil, errors.New("failed to allocate tensors")
		}
		m.inputShape = append([]int(nil), shape...)
	}

	in := m.interpreter.GetInputTensor(0)
	if in.Type() != tflite.Float32 {
		return nil, errors.Errorf("model input must be float32, got %v", in.Type())
	}
	if status := in.CopyFromBuffer(input.Data()); status != tflite.OK {
		return nil, errors.New("copying to buffer failed")
	}
	if status := m.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.New("invoke failed")
	}

	out := m.interpreter.GetOutputTensor(0)
	if out.Type() != tflite.Float32 {
		return nil, errors.Errorf("model output must be float32, got %v", out.Type())
	}
	outShape := out.Shape()
	if len(outShape) != 4 {
		return nil, errors.Errorf("model output must have 4 dims, got %v", outShape)
	}
	data := make([]float32, len(out.Float32s()))
	copy(data, out.Float32s())
	return tensor.New(tensor.WithShape(outShape...), tensor.WithBacking(data)), nil
}

// Close deletes the interpreter and everything it was built from.
func (m *TFLiteStruct) Close() error {
	if m.interpreter == nil {
		return nil
	}
	m.interpreter.Delete()
	closeDelegate(m.delegate)
	m.options.Delete()
	m.model.Delete()
	m.interpreter = nil
	return nil
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
