//go:build !no_tflite && !no_cgo && !edgetpu

package inference

import (
	"github.com/mattn/go-tflite/delegates"
	"github.com/pkg/errors"
)

type delegate = delegates.Delegater

func newAcceleratorDelegate(device int) (delegate, error) {
	return nil, errors.Wrapf(ErrDeviceUnavailable, "device %d requested but this binary has no tflite accelerator support", device)
}

func closeDelegate(delegate) {}
