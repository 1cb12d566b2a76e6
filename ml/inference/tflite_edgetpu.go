//go:build !no_tflite && !no_cgo && edgetpu

package inference

import (
	"github.com/mattn/go-tflite/delegates"
	"github.com/mattn/go-tflite/delegates/edgetpu"
	"github.com/pkg/errors"
)

type delegate = delegates.Delegater

// newAcceleratorDelegate opens the Edge TPU with the given index.
func newAcceleratorDelegate(device int) (delegate, error) {
	devices, err := edgetpu.DeviceList()
	if err != nil {
		return nil, errors.Wrap(ErrDeviceUnavailable, err.Error())
	}
	if device >= len(devices) {
		return nil, errors.Wrapf(ErrDeviceUnavailable, "edgetpu %d requested, %d found", device, len(devices))
	}
	d := edgetpu.New(devices[device])
	if d == nil {
		return nil, errors.Wrapf(ErrDeviceUnavailable, "could not open edgetpu %d", device)
	}
	return d, nil
}

func closeDelegate(d delegate) {
	if d == nil {
		return
	}
	if tpu, ok := d.(*edgetpu.Delegate); ok {
		tpu.Delete()
	}
}
