// Package register registers all segmentation backends.
package register

import (
	// register backends.
	_ "github.com/fcnseg/fcnseg/services/segmentation/onnx"
	_ "github.com/fcnseg/fcnseg/services/segmentation/tflite"
)
