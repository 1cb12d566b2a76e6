//go:build !no_cgo

package inference

import (
	"os"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"
)

var ortInitOnce struct {
	sync.Mutex
	done bool
}

// initONNXEnvironment initializes the process wide onnxruntime environment once.
func initONNXEnvironment(libraryPath string) error {
	ortInitOnce.Lock()
	defer ortInitOnce.Unlock()
	if ortInitOnce.done {
		return nil
	}
	if libraryPath == "" {
		libraryPath = os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "failed to initialize onnxruntime environment")
	}
	ortInitOnce.done = true
	return nil
}

// ONNXModelLoader holds the options used to open ONNX model files.
type ONNXModelLoader struct {
	LibraryPath string
	NumThreads  int
	Device      int
}

// CheckRuntime loads the onnxruntime shared library without opening a model.
func (l *ONNXModelLoader) CheckRuntime() error {
	return initONNXEnvironment(l.LibraryPath)
}

// ONNXStruct is a loaded ONNX model taking a single NCHW float32 input and producing a single
// NCHW float32 output.
type ONNXStruct struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	// NumClasses is the channel count of the output, or -1 when the model leaves it dynamic.
	NumClasses int
}

// Load opens the model at path and creates a session on the configured device.
func (l *ONNXModelLoader) Load(path string) (*ONNXStruct, error) {
	if err := initONNXEnvironment(l.LibraryPath); err != nil {
		return nil, err
	}
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %s", path)
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return nil, errors.Errorf("model %s must have one input and at least one output, has %d and %d",
			path, len(inputs), len(outputs))
	}
	numClasses := -1
	if dims := outputs[0].Dimensions; len(dims) == 4 && dims[1] > 0 {
		numClasses = int(dims[1])
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "could not create session options")
	}
	defer options.Destroy() //nolint:errcheck
	if l.NumThreads > 0 {
		if err := options.SetIntraOpNumThreads(l.NumThreads); err != nil {
			return nil, err
		}
	}
	if l.Device >= 0 {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, errors.Wrap(ErrDeviceUnavailable, err.Error())
		}
		defer cudaOptions.Destroy() //nolint:errcheck
		if err := cudaOptions.Update(map[string]string{"device_id": strconv.Itoa(l.Device)}); err != nil {
			return nil, errors.Wrap(ErrDeviceUnavailable, err.Error())
		}
		if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
			return nil, errors.Wrapf(ErrDeviceUnavailable, "cuda device %d: %v", l.Device, err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(path,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, options)
	if err != nil {
		return nil, errors.Wrapf(err, "could not create session for %s", path)
	}
	return &ONNXStruct{
		session:    session,
		inputName:  inputs[0].Name,
		outputName: outputs[0].Name,
		NumClasses: numClasses,
	}, nil
}

// Infer runs the model on a [1, 3, H, W] input and returns the [1, C, H, W] output.
func (m *ONNXStruct) Infer(input *tensor.Dense) (*tensor.Dense, error) {
	if err := checkInput(input, 4); err != nil {
		return nil, err
	}
	if m.NumClasses <= 0 {
		return nil, errors.Errorf("model output %q has a dynamic class dimension", m.outputName)
	}
	shape := input.Shape()
	inData, ok := input.Data().([]float32)
	if !ok {
		return nil, errors.New("input tensor data is not []float32")
	}
	inTensor, err := ort.NewTensor(ort.NewShape(int64(shape[0]), int64(shape[1]), int64(shape[2]), int64(shape[3])), inData)
	if err != nil {
		return nil, errors.Wrap(err, "could not create input tensor")
	}
	defer inTensor.Destroy() //nolint:errcheck
	outShape := ort.NewShape(int64(shape[0]), int64(m.NumClasses), int64(shape[2]), int64(shape[3]))
	outTensor, err := ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		return nil, errors.Wrap(err, "could not create output tensor")
	}
	defer outTensor.Destroy() //nolint:errcheck

	if err := m.session.Run([]ort.ArbitraryTensor{inTensor}, []ort.ArbitraryTensor{outTensor}); err != nil {
		return nil, errors.Wrap(err, "inference failed")
	}
	out := make([]float32, len(outTensor.GetData()))
	copy(out, outTensor.GetData())
	return tensor.New(
		tensor.WithShape(shape[0], m.NumClasses, shape[2], shape[3]),
		tensor.WithBacking(out),
	), nil
}

// Close releases the session.
func (m *ONNXStruct) Close() error {
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return err
}
