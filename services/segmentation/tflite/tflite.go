// Package tflite registers the "tflite" segmentation backend, which runs batch-first (NHWC) FCN
// models converted to TensorFlow Lite.
package tflite

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/fcnseg/fcnseg/logging"
	"github.com/fcnseg/fcnseg/ml/inference"
	"github.com/fcnseg/fcnseg/services/segmentation"
)

// Name is the backend selector.
const Name = "tflite"

// Models are the supported architectures.
var Models = []string{"fcn32s", "fcn32s_bilinear"}

func init() {
	segmentation.RegisterBackend(Name, segmentation.BackendRegistration{
		Constructor: newBackend,
		Models:      Models,
	})
}

// Attributes are the tflite specific settings.
type Attributes struct {
	ModelName  string `json:"model_name"`
	ModelFile  string `json:"model_file"`
	NumThreads int    `json:"num_threads"`
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
	loader := inference.NewDefaultTFLiteModelLoader(logger.Sublogger(Name))
	if attrs.NumThreads > 0 {
		loader.NumThreads = attrs.NumThreads
	}
	loader.Device = conf.Device
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

	return segmentation.NewRunnerBackend(Name, model, segmentation.ChannelLast, len(conf.TargetNames)), nil
}
