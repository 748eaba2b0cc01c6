package device

import (
	"fmt"
	"math"
)

type Tensor struct {
	data    []float32
	dims    []int
	strides []int
	name    string
	device  Device
}

// NewTensor builds a 1-D host tensor over data.
func NewTensor(name string, data []float32) *Tensor {
	return &Tensor{
		data:    data,
		dims:    []int{len(data)},
		strides: []int{1},
		name:    name,
		device:  CPU,
	}
}

// NewTensorOn builds a row-major tensor with the given dims on dev.
// The product of dims must equal len(data).
func NewTensorOn(dev Device, name string, data []float32, dims ...int) (*Tensor, error) {
	if len(dims) == 0 {
		dims = []int{len(data)}
	}
	n := 1
	for _, d := range dims {
		if d < 0 {
			return nil, fmt.Errorf("tensor %q: negative dim in %v", name, dims)
		}
		n *= d
	}
	if n != len(data) {
		return nil, fmt.Errorf("tensor %q: dims %v need %d elements, got %d: %w", name, dims, n, len(data), ErrShapeMismatch)
	}
	return &Tensor{
		data:    data,
		dims:    append([]int(nil), dims...),
		strides: rowMajorStrides(dims),
		name:    name,
		device:  dev,
	}, nil
}

// Zeros allocates a 1-D zero tensor of length n on dev.
func Zeros(name string, n int, dev Device) *Tensor {
	return &Tensor{
		data:    make([]float32, n),
		dims:    []int{n},
		strides: []int{1},
		name:    name,
		device:  dev,
	}
}

func rowMajorStrides(dims []int) []int {
	strides := make([]int, len(dims))
	s := 1
	for i := len(dims) - 1; i >= 0; i-- {
		strides[i] = s
		s *= dims[i]
	}
	return strides
}

func (t *Tensor) Dims() []int {
	return t.dims
}

func (t *Tensor) Data() []float32 {
	return t.data
}

func (t *Tensor) Name() string {
	return t.name
}

func (t *Tensor) Device() Device {
	return t.device
}

// Rows is the size of the leading dimension, or 0 for a scalar.
func (t *Tensor) Rows() int {
	if len(t.dims) == 0 {
		return 0
	}
	return t.dims[0]
}

// Row returns a view of row i of a tensor with at least one dim.
func (t *Tensor) Row(i int) []float32 {
	w := t.strides[0]
	return t.data[i*w : (i+1)*w]
}

func (t *Tensor) NumElements() int {
	n := 1
	for _, d := range t.dims {
		n *= d
	}
	return n
}

func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		data:    append([]float32(nil), t.data...),
		dims:    append([]int(nil), t.dims...),
		strides: append([]int(nil), t.strides...),
		name:    t.name,
		device:  t.device,
	}
}

// SameShape reports whether t and o have identical dims.
func (t *Tensor) SameShape(o *Tensor) bool {
	if len(t.dims) != len(o.dims) {
		return false
	}
	for i := range t.dims {
		if t.dims[i] != o.dims[i] {
			return false
		}
	}
	return true
}

func (t *Tensor) checkBinary(op string, o *Tensor) error {
	if t == nil || o == nil {
		return fmt.Errorf("%s: nil operand: %w", op, ErrShapeMismatch)
	}
	if t.device != o.device {
		return fmt.Errorf("%s: %s on %s vs %s on %s: %w", op, t.name, t.device, o.name, o.device, ErrDeviceMismatch)
	}
	if !t.SameShape(o) {
		return fmt.Errorf("%s: %s%v vs %s%v: %w", op, t.name, t.dims, o.name, o.dims, ErrShapeMismatch)
	}
	return nil
}

func (t *Tensor) zip(op string, o *Tensor, f func(a, b float32) float32) (*Tensor, error) {
	if err := t.checkBinary(op, o); err != nil {
		return nil, err
	}
	out := t.Clone()
	for i, v := range o.data {
		out.data[i] = f(out.data[i], v)
	}
	return out, nil
}

// Add returns t + o elementwise.
func (t *Tensor) Add(o *Tensor) (*Tensor, error) {
	return t.zip("add", o, func(a, b float32) float32 { return a + b })
}

// Max returns the elementwise maximum of t and o.
func (t *Tensor) Max(o *Tensor) (*Tensor, error) {
	return t.zip("max", o, func(a, b float32) float32 {
		return float32(math.Max(float64(a), float64(b)))
	})
}
