package segmentation

import (
	"context"
	"testing"

	"go.viam.com/test"

	"github.com/fcnseg/fcnseg/logging"
)

type fakeAttributes struct {
	ModelName  string `json:"model_name"`
	NumThreads int    `json:"num_threads"`
}

func TestBackendRegistry(t *testing.T) {
	logger := logging.NewTestLogger(t)
	ctx := context.Background()

	var gotConf BackendConfig
	RegisterBackend("fake", BackendRegistration{
		Constructor: func(ctx context.Context, conf BackendConfig, logger logging.Logger) (Backend, error) {
			gotConf = conf
			if _, err := NativeAttributes[fakeAttributes](conf.Attributes); err != nil {
				return nil, err
			}
			backend, _ := newFakeBackend(ChannelFirst, 2, constantScorer(1, 0))
			return backend, nil
		},
		Models: []string{"tiny"},
	})
	defer DeregisterBackend("fake")

	test.That(t, RegisteredBackends(), test.ShouldContain, "fake")
	test.That(t, func() {
		RegisterBackend("fake", BackendRegistration{Constructor: func(context.Context, BackendConfig, logging.Logger) (Backend, error) {
			return nil, nil
		}})
	}, test.ShouldPanic)

	backend, err := NewBackend(ctx, BackendConfig{
		Name:        "fake",
		Device:      -1,
		TargetNames: []string{"background", "person"},
		Attributes:  map[string]interface{}{"model_name": "tiny", "num_threads": "2"},
	}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, backend.NumClasses(), test.ShouldEqual, 2)
	test.That(t, gotConf.Device, test.ShouldEqual, -1)

	_, err = NewBackend(ctx, BackendConfig{Name: "chainer", TargetNames: []string{"a"}}, logger)
	test.That(t, IsConfigurationError(err), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unsupported backend")

	_, err = NewBackend(ctx, BackendConfig{Name: "fake"}, logger)
	test.That(t, IsConfigurationError(err), test.ShouldBeTrue)

	_, err = NewBackend(ctx, BackendConfig{Name: "fake", TargetNames: []string{"a", "b", "c"}}, logger)
	test.That(t, IsConfigurationError(err), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "3 target_names")

	_, err = NewBackend(ctx, BackendConfig{
		Name:        "fake",
		TargetNames: []string{"a", "b"},
		Attributes:  map[string]interface{}{"model_nam": "typo"},
	}, logger)
	test.That(t, IsConfigurationError(err), test.ShouldBeTrue)
}

func TestValidateModelName(t *testing.T) {
	test.That(t, ValidateModelName("onnx", "fcn8s", []string{"fcn32s", "fcn8s"}), test.ShouldBeNil)
	err := ValidateModelName("onnx", "fcn4s", []string{"fcn32s", "fcn8s"})
	test.That(t, IsConfigurationError(err), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "fcn4s")
}

func TestErrorClassification(t *testing.T) {
	err := NewRuntimeUnavailableError("tflite", NewFrameSkippedError("inner"))
	test.That(t, IsRuntimeUnavailable(err), test.ShouldBeTrue)
	test.That(t, IsConfigurationError(err), test.ShouldBeFalse)
	test.That(t, err.Error(), test.ShouldContainSubstring, "tflite runtime unavailable")

	skipped := NewFrameSkippedError("bad size %dx%d", 1, 2)
	test.That(t, IsFrameSkipped(skipped), test.ShouldBeTrue)
	test.That(t, skipped.Error(), test.ShouldEqual, "frame skipped: bad size 1x2")
}
