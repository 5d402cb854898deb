package store

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestArrayCapacity(t *testing.T) {
	a, err := New[float64](3, 5, 1, math.NaN())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.N() != 3 || a.MaxN() != 5 {
		t.Fatalf("n=%d max_n=%d", a.N(), a.MaxN())
	}
	if err := a.SetN(6); !errors.Is(err, ErrCapacity) {
		t.Fatalf("SetN(6) err=%v, want ErrCapacity", err)
	}
	if _, err := New[int32](4, 3, 1, -1); !errors.Is(err, ErrCapacity) {
		t.Fatalf("New(4,3) err=%v, want ErrCapacity", err)
	}
}

func TestArrayLogicalWindow(t *testing.T) {
	a, err := FromSlice([]int32{1, 2, 3, 4, 5, 6}, 5, 2, -1)
	if err != nil {
		t.Fatalf("FromSlice: %v", err)
	}
	if a.N() != 3 {
		t.Fatalf("n=%d, want 3", a.N())
	}
	if got := a.Sum(); got != 21 {
		t.Fatalf("sum=%v, want 21", got)
	}
	if err := a.SetN(2); err != nil {
		t.Fatalf("SetN: %v", err)
	}
	data := a.Data()
	if len(data) != 4 || cap(data) != 4 {
		t.Fatalf("data len=%d cap=%d, want 4/4", len(data), cap(data))
	}
	if got := a.Sum(); got != 10 {
		t.Fatalf("sum after shrink=%v, want 10", got)
	}

	// Growing exposes fresh fill values, not the dropped row.
	if err := a.SetN(3); err != nil {
		t.Fatalf("SetN: %v", err)
	}
	if a.At(2, 0) != -1 || a.At(2, 1) != -1 {
		t.Fatalf("regrown row=%v, want fill", a.Row(2))
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("Get beyond n did not panic")
		}
	}()
	_ = a.Get(3)
}

func TestArrayRowIsBounded(t *testing.T) {
	a, _ := New[float64](2, 4, 3, 0)
	row := a.Row(0)
	if cap(row) != 3 {
		t.Fatalf("row cap=%d, want 3", cap(row))
	}
	row[2] = 7
	if a.At(0, 2) != 7 {
		t.Fatalf("row does not alias array")
	}
	a.CopyRow(1, 0)
	if a.At(1, 2) != 7 {
		t.Fatalf("CopyRow did not copy")
	}
}

func TestArrayMeanSkipsNaN(t *testing.T) {
	a, _ := FromSlice([]float64{1, math.NaN(), 3}, 3, 1, math.NaN())
	if got := a.Mean(); got != 2 {
		t.Fatalf("mean=%v, want 2", got)
	}
}

func TestHistoryShift(t *testing.T) {
	h, err := NewHistory(2, 2, 3, 0)
	if err != nil {
		t.Fatalf("NewHistory: %v", err)
	}
	h.Add(0, 1)
	h.Add(1, 10)
	h.ShiftReset()
	h.Add(0, 2)
	h.Shift(func(i int) float64 { return float64(100 + i) })

	want := []float64{100, 2, 1}
	for age, w := range want {
		if got := h.Value(0, age); got != w {
			t.Fatalf("age %d = %v, want %v (series %v)", age, got, w, h.Series(0))
		}
	}
	// A fourth year drops the oldest value.
	h.ShiftReset()
	if got := h.Series(0); got[0] != 0 || got[1] != 100 || got[2] != 2 {
		t.Fatalf("series=%v, want [0 100 2]", got)
	}
}

func TestBucketRoundTrip(t *testing.T) {
	for _, format := range []Format{Dense, Compressed} {
		t.Run(string(format), func(t *testing.T) {
			dir := t.TempDir()

			b := NewBucket("farmers")
			elev, _ := FromSlice([]float64{10, 20, 30}, 8, 1, math.NaN())
			cal, _ := FromSlice([]int32{0, 120, 90, 0, 1, 200, 100, 0, -1, -1, -1, -1}, 8, 4, -1)
			hist, _ := NewHistory(3, 8, 4, 0)
			hist.Add(2, 5)
			hist.ShiftReset()
			b.Add("elevation", elev)
			b.Add("crop_calendar", cal)
			b.Add("yearly_profits", hist)
			b.SetMeta("previous_month", "7")

			if err := b.Save(dir, format); err != nil {
				t.Fatalf("Save: %v", err)
			}

			r := NewBucket("farmers")
			elev2, _ := New[float64](0, 1, 1, math.NaN())
			cal2, _ := New[int32](0, 1, 4, -1)
			hist2, _ := NewHistory(0, 1, 4, 0)
			r.Add("elevation", elev2)
			r.Add("crop_calendar", cal2)
			r.Add("yearly_profits", hist2)
			if err := r.Load(dir); err != nil {
				t.Fatalf("Load: %v", err)
			}

			if elev2.N() != 3 || elev2.MaxN() != 8 {
				t.Fatalf("elevation n=%d max_n=%d, want 3/8", elev2.N(), elev2.MaxN())
			}
			if elev2.Get(2) != 30 {
				t.Fatalf("elevation[2]=%v", elev2.Get(2))
			}
			if cal2.At(1, 1) != 200 {
				t.Fatalf("calendar[1][1]=%v", cal2.At(1, 1))
			}
			if hist2.Value(2, 1) != 5 || hist2.Value(2, 0) != 0 {
				t.Fatalf("history series=%v, want [0 5 0 0]", hist2.Series(2))
			}
			if v, _ := r.Meta("previous_month"); v != "7" {
				t.Fatalf("meta previous_month=%q", v)
			}
			if err := r.SetN(8); err != nil {
				t.Fatalf("SetN to restored capacity: %v", err)
			}
			if err := r.SetN(9); !errors.Is(err, ErrCapacity) {
				t.Fatalf("SetN(9) err=%v", err)
			}
		})
	}
}

func TestBucketLoadRejectsMissingColumn(t *testing.T) {
	dir := t.TempDir()
	b := NewBucket("land")
	owner, _ := FromSlice([]int32{0, -1}, 2, 1, -1)
	b.Add("owner", owner)
	if err := b.Save(dir, Dense); err != nil {
		t.Fatalf("Save: %v", err)
	}

	r := NewBucket("land")
	o, _ := New[int32](0, 2, 1, -1)
	crop, _ := New[int32](0, 2, 1, -1)
	r.Add("owner", o)
	r.Add("crop", crop)
	if err := r.Load(dir); !errors.Is(err, ErrUnknownColumn) {
		t.Fatalf("Load err=%v, want ErrUnknownColumn", err)
	}
}

// shortWriter accepts limit bytes and fails after.
type shortWriter struct {
	buf   bytes.Buffer
	limit int
}

var errDiskFull = errors.New("disk full")

func (w *shortWriter) Write(p []byte) (int, error) {
	if w.buf.Len()+len(p) > w.limit {
		return 0, errDiskFull
	}
	return w.buf.Write(p)
}

func TestEncodeColumnReportsLateWriteFailure(t *testing.T) {
	elev, _ := FromSlice([]float64{10, 20, 30}, 8, 1, math.NaN())
	h := columnHeader{Name: "elevation", DType: elev.dtype(), N: 3, MaxN: 8, Width: 1, File: "elevation.bin"}

	// The encoder holds everything until it closes.
	w := &shortWriter{limit: 8}
	if err := encodeColumn(w, h, elev, Compressed); !errors.Is(err, errDiskFull) {
		t.Fatalf("compressed err=%v, want disk full", err)
	}
	w = &shortWriter{limit: 8}
	if err := encodeColumn(w, h, elev, Dense); !errors.Is(err, errDiskFull) {
		t.Fatalf("dense err=%v, want disk full", err)
	}

	w = &shortWriter{limit: 1 << 20}
	if err := encodeColumn(w, h, elev, Compressed); err != nil {
		t.Fatalf("encodeColumn: %v", err)
	}
	if w.buf.Len() == 0 {
		t.Fatal("nothing written")
	}
}
