package device

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	ErrShapeMismatch  = errors.New("tensor shape mismatch")
	ErrDeviceMismatch = errors.New("tensor device mismatch")
)

// Device tags where a tensor's storage lives. It is opaque to callers: it is
// copied onto derived tensors and compared for equality, nothing else.
type Device struct {
	ID   int
	Kind string
}

// CPU is the host device.
var CPU = Device{ID: -1, Kind: "cpu"}

func (d Device) String() string {
	if d.ID < 0 {
		return d.Kind
	}
	return fmt.Sprintf("%s:%d", d.Kind, d.ID)
}

type Context struct {
	device  Device
	memUsed int64
}

func NewContext() *Context {
	return NewContextOn(CPU)
}

// NewContextOn returns a context whose allocations carry dev.
func NewContextOn(dev Device) *Context {
	return &Context{device: dev}
}

func (c *Context) Device() Device {
	return c.device
}

func (c *Context) Free() {
	RecordMemory(-atomic.SwapInt64(&c.memUsed, 0))
}

// MemUsed reports the bytes allocated through this context.
func (c *Context) MemUsed() int64 {
	return atomic.LoadInt64(&c.memUsed)
}

// NewTensor wraps data with the given dims on the context device.
// With no dims the tensor is 1-D.
func (c *Context) NewTensor(name string, data []float32, dims ...int) (*Tensor, error) {
	t, err := NewTensorOn(c.device, name, data, dims...)
	if err != nil {
		return nil, err
	}
	c.track(t)
	return t, nil
}

// Zeros allocates a 1-D zero tensor of length n on the context device.
func (c *Context) Zeros(name string, n int) *Tensor {
	t := Zeros(name, n, c.device)
	c.track(t)
	return t
}

func (c *Context) track(t *Tensor) {
	n := int64(len(t.data)) * 4
	atomic.AddInt64(&c.memUsed, n)
	RecordMemory(n)
}

var allocatedBytes int64

// AllocatedBytes reports bytes currently held by all contexts.
func AllocatedBytes() int64 {
	return atomic.LoadInt64(&allocatedBytes)
}

func RecordMemory(n int64) {
	atomic.AddInt64(&allocatedBytes, n)
}
