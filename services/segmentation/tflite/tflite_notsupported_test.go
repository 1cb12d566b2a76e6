//go:build no_tflite || no_cgo

package tflite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"github.com/fcnseg/fcnseg/logging"
	"github.com/fcnseg/fcnseg/services/segmentation"
)

func TestNewBackendNotCompiled(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()
	modelFile := filepath.Join(dir, "fcn32s.tflite")
	test.That(t, os.WriteFile(modelFile, []byte("not a model"), 0o600), test.ShouldBeNil)

	for _, file := range []string{modelFile, filepath.Join(dir, "missing.tflite")} {
		_, err := segmentation.NewBackend(context.Background(), segmentation.BackendConfig{
			Name:        Name,
			Device:      -1,
			TargetNames: []string{"background", "person"},
			Attributes:  map[string]interface{}{"model_name": "fcn32s", "model_file": file},
		}, logger)
		test.That(t, segmentation.IsRuntimeUnavailable(err), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldContainSubstring, "not compiled into this binary")
	}
}
