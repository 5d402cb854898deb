// Package store provides fixed-capacity columnar storage for agent attributes.
// An Array exposes only its first n rows; rows n..maxN are backing capacity
// that consumers cannot reach.
package store

import (
	"errors"
	"fmt"
	"math"
)

// ErrCapacity is returned when a logical length exceeds the preallocated capacity.
var ErrCapacity = errors.New("store: capacity exceeded")

// Number is the set of element types an Array can hold.
type Number interface {
	~int8 | ~uint8 | ~int32 | ~int64 | ~float32 | ~float64
}

// Array is a growable column of fixed-width rows backed by maxN rows of storage.
type Array[T Number] struct {
	buf   []T // maxN*width
	n     int
	maxN  int
	width int
	fill  T
}

// New creates an array with n logical rows, capacity maxN and width values per row.
// Every slot starts at fill.
func New[T Number](n, maxN, width int, fill T) (*Array[T], error) {
	if width < 1 {
		return nil, fmt.Errorf("store: width %d must be positive", width)
	}
	if n < 0 || maxN < 0 {
		return nil, fmt.Errorf("store: negative length n=%d max_n=%d", n, maxN)
	}
	if n > maxN {
		return nil, fmt.Errorf("%w: n=%d max_n=%d", ErrCapacity, n, maxN)
	}
	a := &Array[T]{
		buf:   make([]T, maxN*width),
		n:     n,
		maxN:  maxN,
		width: width,
		fill:  fill,
	}
	for i := range a.buf {
		a.buf[i] = fill
	}
	return a, nil
}

// FromSlice creates an array whose logical rows are copied from values.
func FromSlice[T Number](values []T, maxN, width int, fill T) (*Array[T], error) {
	if width < 1 || len(values)%width != 0 {
		return nil, fmt.Errorf("store: %d values do not divide into rows of width %d", len(values), width)
	}
	a, err := New(len(values)/width, maxN, width, fill)
	if err != nil {
		return nil, err
	}
	copy(a.buf, values)
	return a, nil
}

// N returns the logical row count.
func (a *Array[T]) N() int { return a.n }

// MaxN returns the preallocated row capacity.
func (a *Array[T]) MaxN() int { return a.maxN }

// Width returns the number of values per row.
func (a *Array[T]) Width() int { return a.width }

// FillValue returns the value used for unset slots.
func (a *Array[T]) FillValue() T { return a.fill }

// SetN changes the logical row count. Rows that become visible are reset to
// the fill value; shrinking keeps the backing storage.
func (a *Array[T]) SetN(n int) error {
	if n < 0 {
		return fmt.Errorf("store: negative length %d", n)
	}
	if n > a.maxN {
		return fmt.Errorf("%w: n=%d max_n=%d", ErrCapacity, n, a.maxN)
	}
	for i := a.n * a.width; i < n*a.width; i++ {
		a.buf[i] = a.fill
	}
	a.n = n
	return nil
}

func (a *Array[T]) check(i int) {
	if i < 0 || i >= a.n {
		panic(fmt.Sprintf("store: row %d out of range [0, %d)", i, a.n))
	}
}

// Get returns the first value of row i.
func (a *Array[T]) Get(i int) T {
	a.check(i)
	return a.buf[i*a.width]
}

// Set stores v as the first value of row i.
func (a *Array[T]) Set(i int, v T) {
	a.check(i)
	a.buf[i*a.width] = v
}

// At returns value j of row i.
func (a *Array[T]) At(i, j int) T {
	a.check(i)
	if j < 0 || j >= a.width {
		panic(fmt.Sprintf("store: column %d out of range [0, %d)", j, a.width))
	}
	return a.buf[i*a.width+j]
}

// SetAt stores v as value j of row i.
func (a *Array[T]) SetAt(i, j int, v T) {
	a.check(i)
	if j < 0 || j >= a.width {
		panic(fmt.Sprintf("store: column %d out of range [0, %d)", j, a.width))
	}
	a.buf[i*a.width+j] = v
}

// Row returns the values of row i. The slice aliases the array and cannot be
// extended past the row.
func (a *Array[T]) Row(i int) []T {
	a.check(i)
	start := i * a.width
	return a.buf[start : start+a.width : start+a.width]
}

// Data returns the logical window (n*width values). The slice aliases the array
// and its capacity ends at the window.
func (a *Array[T]) Data() []T {
	end := a.n * a.width
	return a.buf[:end:end]
}

// CopyRow copies row src over row dst.
func (a *Array[T]) CopyRow(dst, src int) {
	copy(a.Row(dst), a.Row(src))
}

// Fill sets every logical value to v.
func (a *Array[T]) Fill(v T) {
	data := a.Data()
	for i := range data {
		data[i] = v
	}
}

// Sum returns the sum over the logical window, skipping NaN values.
func (a *Array[T]) Sum() float64 {
	var s float64
	for _, v := range a.Data() {
		f := float64(v)
		if math.IsNaN(f) {
			continue
		}
		s += f
	}
	return s
}

// Mean returns the mean over the logical window, skipping NaN values.
// An empty window yields NaN.
func (a *Array[T]) Mean() float64 {
	var s float64
	var c int
	for _, v := range a.Data() {
		f := float64(v)
		if math.IsNaN(f) {
			continue
		}
		s += f
		c++
	}
	if c == 0 {
		return math.NaN()
	}
	return s / float64(c)
}

// Count returns the number of logical values for which keep returns true.
func (a *Array[T]) Count(keep func(T) bool) int {
	c := 0
	for _, v := range a.Data() {
		if keep(v) {
			c++
		}
	}
	return c
}

// Column returns a copy of column j over the logical rows.
func (a *Array[T]) Column(j int) []T {
	out := make([]T, a.n)
	for i := range out {
		out[i] = a.buf[i*a.width+j]
	}
	return out
}
