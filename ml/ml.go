// Package ml provides the tensor primitives shared by the segmentation backends: numeric
// conversion of runtime outputs, softmax and arg-max along an axis, and layout permutation.
package ml

import (
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
	"gorgonia.org/tensor"
)

// Tensors is a map of tensor names to the tensors themselves.
type Tensors map[string]*tensor.Dense

// number interface for converting between numbers.
type number interface {
	constraints.Integer | constraints.Float
}

// convertNumberSlice converts any number slice into another number slice.
func convertNumberSlice[T1, T2 number](t1 []T1) []T2 {
	t2 := make([]T2, len(t1))
	for i := range t1 {
		t2[i] = T2(t1[i])
	}
	return t2
}

// ConvertToFloat32Slice converts the backing data of a runtime output into float32 scores.
// Quantized runtimes hand back integer tensors; those are widened as-is.
func ConvertToFloat32Slice(slice interface{}) ([]float32, error) {
	switch v := slice.(type) {
	case []float32:
		return v, nil
	case []float64:
		return convertNumberSlice[float64, float32](v), nil
	case []uint8:
		return convertNumberSlice[uint8, float32](v), nil
	case []int8:
		return convertNumberSlice[int8, float32](v), nil
	case []int16:
		return convertNumberSlice[int16, float32](v), nil
	case []int32:
		return convertNumberSlice[int32, float32](v), nil
	case []int64:
		return convertNumberSlice[int64, float32](v), nil
	default:
		return nil, errors.Errorf("dont know how to convert slice of %T into a []float32", slice)
	}
}

// NewFloat32Tensor wraps data in a dense tensor of the given shape. The data is not copied.
func NewFloat32Tensor(data []float32, shape ...int) (*tensor.Dense, error) {
	if len(data) != volume(shape) {
		return nil, errors.Errorf("data of length %d does not fit shape %v", len(data), shape)
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)), nil
}

// Float32Data returns the float32 backing slice of t.
func Float32Data(t *tensor.Dense) ([]float32, error) {
	data, ok := t.Data().([]float32)
	if !ok {
		return ConvertToFloat32Slice(t.Data())
	}
	return data, nil
}

// Permute returns a copy of t whose axes are reordered by axes, with its data laid out
// contiguously in the new order. t is left untouched.
func Permute(t *tensor.Dense, axes ...int) (*tensor.Dense, error) {
	out, ok := t.Clone().(*tensor.Dense)
	if !ok {
		return nil, errors.Errorf("cloning %T did not produce a dense tensor", t)
	}
	if err := out.T(axes...); err != nil {
		return nil, errors.Wrapf(err, "cannot permute tensor of shape %v by %v", t.Shape(), axes)
	}
	if err := out.Transpose(); err != nil {
		return nil, errors.Wrap(err, "cannot materialize permuted tensor")
	}
	return out, nil
}

// Softmax returns a new float32 tensor of the same shape as t where every vector along axis is
// normalized to sum to one.
func Softmax(t *tensor.Dense, axis int) (*tensor.Dense, error) {
	data, err := Float32Data(t)
	if err != nil {
		return nil, err
	}
	outer, n, inner, err := axisStrides(t.Shape(), axis)
	if err != nil {
		return nil, err
	}

	out := make([]float32, len(data))
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			base := o*n*inner + i
			// subtract the max so exp never overflows on large logits.
			maxScore := math.Inf(-1)
			for k := 0; k < n; k++ {
				maxScore = math.Max(maxScore, float64(data[base+k*inner]))
			}
			sum := 0.0
			for k := 0; k < n; k++ {
				e := math.Exp(float64(data[base+k*inner]) - maxScore)
				out[base+k*inner] = float32(e)
				sum += e
			}
			for k := 0; k < n; k++ {
				out[base+k*inner] = float32(float64(out[base+k*inner]) / sum)
			}
		}
	}
	return tensor.New(tensor.WithShape(t.Shape().Clone()...), tensor.WithBacking(out)), nil
}

// MaxAlongAxis returns, for every vector along axis, the index of its largest element and the
// element itself. Both results have t's shape with axis removed, flattened row-major. Ties
// resolve to the lowest index.
func MaxAlongAxis(t *tensor.Dense, axis int) ([]int32, []float32, error) {
	data, err := Float32Data(t)
	if err != nil {
		return nil, nil, err
	}
	outer, n, inner, err := axisStrides(t.Shape(), axis)
	if err != nil {
		return nil, nil, err
	}

	indices := make([]int32, outer*inner)
	maxes := make([]float32, outer*inner)
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			base := o*n*inner + i
			best := 0
			for k := 1; k < n; k++ {
				if data[base+k*inner] > data[base+best*inner] {
					best = k
				}
			}
			indices[o*inner+i] = int32(best)
			maxes[o*inner+i] = data[base+best*inner]
		}
	}
	return indices, maxes, nil
}

// axisStrides splits shape around axis into the product of the leading dims, the axis length
// and the product of the trailing dims.
func axisStrides(shape tensor.Shape, axis int) (int, int, int, error) {
	if axis < 0 {
		axis += len(shape)
	}
	if axis < 0 || axis >= len(shape) {
		return 0, 0, 0, errors.Errorf("axis %d out of range for shape %v", axis, shape)
	}
	if shape[axis] == 0 {
		return 0, 0, 0, errors.Errorf("axis %d of shape %v is empty", axis, shape)
	}
	return volume(shape[:axis]), shape[axis], volume(shape[axis+1:]), nil
}

func volume(shape []int) int {
	v := 1
	for _, d := range shape {
		v *= d
	}
	return v
}
