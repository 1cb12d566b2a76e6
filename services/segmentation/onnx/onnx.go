// Package onnx registers the "onnx" segmentation backend, which runs channel-first FCN models
// exported to ONNX through onnxruntime.
package onnx

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/fcnseg/fcnseg/logging"
	"github.com/fcnseg/fcnseg/ml/inference"
	"github.com/fcnseg/fcnseg/services/segmentation"
)

// Name is the backend selector.
const Name = "onnx"

// Models are the supported architectures.
var Models = []string{"fcn32s", "fcn16s", "fcn8s"}

func init() {
	segmentation.RegisterBackend(Name, segmentation.BackendRegistration{
		Constructor: newBackend,
		Models:      Models,
	})
}

// Attributes are the onnx specific settings.
type Attributes struct {
	ModelName string `json:"model_name"`
	ModelFile string `json:"model_file"`
	// LibraryPath is the onnxruntime shared library; defaults to $ONNXRUNTIME_SHARED_LIBRARY_PATH
	// or the system search path.
	LibraryPath string `json:"library_path"`
	NumThreads  int    `json:"num_threads"`
}

// Validate checks the attributes.
func (a *Attributes) Validate() error {
	if err := segmentation.ValidateModelName(Name, a.ModelName, Models); err != nil {
		return err
	}
	if a.ModelFile == "" {
		return segmentation.NewConfigurationError("model_file is required for the %s backend", Name)
	}
	if a.NumThreads < 0 {
		return segmentation.NewConfigurationError("num_threads must not be negative")
	}
	return nil
}

func newBackend(ctx context.Context, conf segmentation.BackendConfig, logger logging.Logger) (segmentation.Backend, error) {
	attrs, err := segmentation.NativeAttributes[Attributes](conf.Attributes)
	if err != nil {
		return nil, err
	}
	if err := attrs.Validate(); err != nil {
		return nil, err
	}
	loader := &inference.ONNXModelLoader{
		LibraryPath: attrs.LibraryPath,
		NumThreads:  attrs.NumThreads,
		Device:      conf.Device,
	}
	if err := loader.CheckRuntime(); err != nil {
		return nil, segmentation.NewRuntimeUnavailableError(Name, err)
	}
	if _, err := os.Stat(attrs.ModelFile); err != nil {
		return nil, segmentation.NewConfigurationError("cannot read model_file: %v", err)
	}

	logger.Infow("loading trained model", "backend", Name, "model_name", attrs.ModelName, "model_file", attrs.ModelFile)
	model, err := loader.Load(attrs.ModelFile)
	if err != nil {
		if errors.Is(err, inference.ErrRuntimeNotCompiled) || errors.Is(err, inference.ErrDeviceUnavailable) {
			return nil, segmentation.NewRuntimeUnavailableError(Name, err)
		}
		return nil, errors.Wrapf(err, "could not load %s", attrs.ModelFile)
	}
	logger.Infow("finished loading trained model", "backend", Name, "model_file", attrs.ModelFile)

	numClasses := model.NumClasses
	if numClasses <= 0 {
		numClasses = len(conf.TargetNames)
		model.NumClasses = numClasses
	}
	return segmentation.NewRunnerBackend(Name, model, segmentation.ChannelFirst, numClasses), nil
}
