package flat

import (
	"fmt"
	"slices"
)

// buffer is one contiguous backing store. Rows are logical slots (chunks for
// per-chunk arrays, elements for per-element arrays); each row occupies
// stride consecutive entries, stride being the product of the item shape.
type buffer interface {
	dtype() DType
	stride() int
	rows() int
	resize(rows int, fill any)
	fillRange(a, b int, fill any)
	setItem(row int, v any) error
	getItem(row int, scalar bool) any
	setFlat(startRow int, v any) error
	getFlat(a, b int) any
	clone() buffer
}

type buf[T any] struct {
	dt   DType
	strd int
	n    int
	data []T
}

func newBuf[T any](dt DType, stride, rows int, fill T) *buf[T] {
	b := &buf[T]{dt: dt, strd: stride, n: rows}
	b.data = make([]T, rows*stride)
	for i := range b.data {
		b.data[i] = fill
	}
	return b
}

func (b *buf[T]) dtype() DType { return b.dt }
func (b *buf[T]) stride() int  { return b.strd }
func (b *buf[T]) rows() int    { return b.n }

func (b *buf[T]) resize(rows int, fill any) {
	want := rows * b.strd
	if want <= len(b.data) {
		b.data = b.data[:want]
	} else {
		f := fill.(T)
		for len(b.data) < want {
			b.data = append(b.data, f)
		}
	}
	b.n = rows
}

func (b *buf[T]) fillRange(a, c int, fill any) {
	f := fill.(T)
	for i := a * b.strd; i < c*b.strd; i++ {
		b.data[i] = f
	}
}

func (b *buf[T]) setItem(row int, v any) error {
	if b.strd == 1 {
		if tv, ok := v.(T); ok {
			b.data[row] = tv
			return nil
		}
	}
	if sv, ok := v.([]T); ok {
		if len(sv) != b.strd {
			return fmt.Errorf("value has %d entries, item shape requires %d", len(sv), b.strd)
		}
		copy(b.data[row*b.strd:], sv)
		return nil
	}
	return fmt.Errorf("value of type %T does not match dtype %v", v, b.dt)
}

func (b *buf[T]) getItem(row int, scalar bool) any {
	if scalar && b.strd == 1 {
		return b.data[row]
	}
	return slices.Clone(b.data[row*b.strd : (row+1)*b.strd])
}

func (b *buf[T]) setFlat(startRow int, v any) error {
	sv, ok := v.([]T)
	if !ok {
		return fmt.Errorf("value of type %T does not match dtype %v", v, b.dt)
	}
	if len(sv)%b.strd != 0 {
		return fmt.Errorf("value has %d entries, not a multiple of item size %d", len(sv), b.strd)
	}
	copy(b.data[startRow*b.strd:], sv)
	return nil
}

func (b *buf[T]) getFlat(a, c int) any {
	return slices.Clone(b.data[a*b.strd : c*b.strd])
}

func (b *buf[T]) clone() buffer {
	return &buf[T]{dt: b.dt, strd: b.strd, n: b.n, data: slices.Clone(b.data)}
}

func newBuffer(dt DType, stride, rows int, fill any) buffer {
	switch dt {
	case Int64:
		return newBuf[int64](dt, stride, rows, fill.(int64))
	case Uint64:
		return newBuf[uint64](dt, stride, rows, fill.(uint64))
	case Float64:
		return newBuf[float64](dt, stride, rows, fill.(float64))
	case Bool:
		return newBuf[bool](dt, stride, rows, fill.(bool))
	case String:
		return newBuf[string](dt, stride, rows, fill.(string))
	case Object:
		return newBuf[any](dt, stride, rows, fill)
	default:
		panic(fmt.Sprintf("invalid dtype %v", dt))
	}
}
