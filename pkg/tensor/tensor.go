// Package tensor provides a small N-dimensional tensor with a runtime-checked
// shape.
//
// Only the two element types exchanged with inference engines are supported:
// float32 and int64. Every constructor and [Tensor.Reshape] validates the
// element count against the shape, so shape errors surface as a single
// well-defined error ([ErrShape]) instead of out-of-range panics further down.
//
// Tensors are values owned by whoever created them. Accessors return copies,
// so a tensor handed to an engine cannot be mutated behind its back.
package tensor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrShape reports a shape that does not match the tensor data.
	ErrShape = errors.New("tensor: shape mismatch")

	// ErrDType reports an access with the wrong element type.
	ErrDType = errors.New("tensor: dtype mismatch")
)

// DType is the element type of a tensor.
type DType int

const (
	// Float32 is a 32-bit IEEE float element.
	Float32 DType = iota + 1
	// Int64 is a 64-bit signed integer element.
	Int64
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Int64:
		return "int64"
	default:
		return fmt.Sprintf("DType(%d)", int(d))
	}
}

// Shape is the list of tensor dimensions, outermost first.
type Shape []int64

// Size returns the number of elements described by the shape. A scalar
// (empty shape) has size 1.
func (s Shape) Size() int64 {
	n := int64(1)
	for _, d := range s {
		n *= d
	}
	return n
}

// Equal reports whether two shapes have identical dimensions.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.FormatInt(d, 10)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

func (s Shape) validate() error {
	for _, d := range s {
		if d < 0 {
			return fmt.Errorf("%w: negative dimension in %s", ErrShape, s)
		}
	}
	return nil
}

func (s Shape) clone() Shape {
	return append(Shape(nil), s...)
}

// Tensor is an N-dimensional array of float32 or int64 elements.
type Tensor struct {
	dtype DType
	shape Shape
	f32   []float32
	i64   []int64
}

// NewFloat32 creates a float32 tensor. The data is copied; len(data) must
// equal shape.Size().
func NewFloat32(shape Shape, data []float32) (*Tensor, error) {
	if err := shape.validate(); err != nil {
		return nil, err
	}
	if int64(len(data)) != shape.Size() {
		return nil, fmt.Errorf("%w: %d elements for shape %s", ErrShape, len(data), shape)
	}
	return &Tensor{
		dtype: Float32,
		shape: shape.clone(),
		f32:   append([]float32(nil), data...),
	}, nil
}

// NewInt64 creates an int64 tensor. The data is copied; len(data) must
// equal shape.Size().
func NewInt64(shape Shape, data []int64) (*Tensor, error) {
	if err := shape.validate(); err != nil {
		return nil, err
	}
	if int64(len(data)) != shape.Size() {
		return nil, fmt.Errorf("%w: %d elements for shape %s", ErrShape, len(data), shape)
	}
	return &Tensor{
		dtype: Int64,
		shape: shape.clone(),
		i64:   append([]int64(nil), data...),
	}, nil
}

// Zeros creates a zero-filled float32 tensor. It panics on a negative
// dimension, which is a programming error.
func Zeros(shape Shape) *Tensor {
	if err := shape.validate(); err != nil {
		panic(err)
	}
	return &Tensor{
		dtype: Float32,
		shape: shape.clone(),
		f32:   make([]float32, shape.Size()),
	}
}

// DType returns the element type.
func (t *Tensor) DType() DType { return t.dtype }

// Shape returns a copy of the tensor dimensions.
func (t *Tensor) Shape() Shape { return t.shape.clone() }

// Len returns the number of elements.
func (t *Tensor) Len() int {
	if t.dtype == Int64 {
		return len(t.i64)
	}
	return len(t.f32)
}

// Float32s returns a copy of the float32 elements in row-major order.
func (t *Tensor) Float32s() ([]float32, error) {
	if t.dtype != Float32 {
		return nil, fmt.Errorf("%w: have %s, want float32", ErrDType, t.dtype)
	}
	return append([]float32(nil), t.f32...), nil
}

// Int64s returns a copy of the int64 elements in row-major order.
func (t *Tensor) Int64s() ([]int64, error) {
	if t.dtype != Int64 {
		return nil, fmt.Errorf("%w: have %s, want int64", ErrDType, t.dtype)
	}
	return append([]int64(nil), t.i64...), nil
}

// Reshape returns a copy of the tensor with a new shape. The element count
// must be unchanged; nothing is truncated or padded.
func (t *Tensor) Reshape(shape Shape) (*Tensor, error) {
	if err := shape.validate(); err != nil {
		return nil, err
	}
	if shape.Size() != int64(t.Len()) {
		return nil, fmt.Errorf("%w: cannot reshape %s (%d elements) to %s",
			ErrShape, t.shape, t.Len(), shape)
	}
	out := t.Clone()
	out.shape = shape.clone()
	return out, nil
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		dtype: t.dtype,
		shape: t.shape.clone(),
		f32:   append([]float32(nil), t.f32...),
		i64:   append([]int64(nil), t.i64...),
	}
}

// Fill sets every float32 element to v. It is a no-op on int64 tensors.
func (t *Tensor) Fill(v float32) {
	for i := range t.f32 {
		t.f32[i] = v
	}
}

// AddBatchAxis returns a copy with a leading dimension of size 1.
func (t *Tensor) AddBatchAxis() *Tensor {
	out := t.Clone()
	out.shape = append(Shape{1}, t.shape...)
	return out
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor<%s%s>", t.dtype, t.shape)
}
