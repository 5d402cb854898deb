package store

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"
)

// Format selects how a bucket writes its attributes.
type Format string

const (
	Dense      Format = "dense"      // raw little-endian rows
	Compressed Format = "compressed" // zstd-compressed rows
)

// ErrUnknownColumn is returned when a checkpoint names an attribute the bucket
// does not hold, or the other way round.
var ErrUnknownColumn = errors.New("store: unknown column")

// Column is an attribute that can live in a Bucket.
type Column interface {
	N() int
	MaxN() int
	Width() int
	SetN(n int) error
	CopyRow(dst, src int)

	dtype() string
	writeRows(w io.Writer) error
	readRows(r io.Reader, n, maxN int) error
}

type headed interface {
	Head() int
	SetHead(int)
}

// Bucket groups the columns of one subsystem so they resize together and are
// checkpointed together.
type Bucket struct {
	name  string
	cols  map[string]Column
	order []string
	meta  map[string]string
}

// NewBucket creates an empty bucket.
func NewBucket(name string) *Bucket {
	return &Bucket{
		name: name,
		cols: make(map[string]Column),
		meta: make(map[string]string),
	}
}

// Name returns the bucket name.
func (b *Bucket) Name() string { return b.name }

// Add registers a column under name.
func (b *Bucket) Add(name string, c Column) error {
	if _, ok := b.cols[name]; ok {
		return fmt.Errorf("store: bucket %s already holds %q", b.name, name)
	}
	b.cols[name] = c
	b.order = append(b.order, name)
	return nil
}

// Column returns the column registered under name.
func (b *Bucket) Column(name string) (Column, bool) {
	c, ok := b.cols[name]
	return c, ok
}

// Names returns the registered column names in registration order.
func (b *Bucket) Names() []string {
	return append([]string(nil), b.order...)
}

// SetMeta stores a scalar value saved with the bucket.
func (b *Bucket) SetMeta(key, value string) { b.meta[key] = value }

// Meta returns a scalar value saved with the bucket.
func (b *Bucket) Meta(key string) (string, bool) {
	v, ok := b.meta[key]
	return v, ok
}

// SetN resizes every column to n rows.
func (b *Bucket) SetN(n int) error {
	for _, name := range b.order {
		if err := b.cols[name].SetN(n); err != nil {
			return fmt.Errorf("resize %s.%s: %w", b.name, name, err)
		}
	}
	return nil
}

// CopyRow copies row src over row dst in every column.
func (b *Bucket) CopyRow(dst, src int) {
	for _, name := range b.order {
		b.cols[name].CopyRow(dst, src)
	}
}

type columnHeader struct {
	Name  string `json:"name"`
	DType string `json:"dtype"`
	N     int    `json:"n"`
	MaxN  int    `json:"max_n"`
	Width int    `json:"width"`
	Head  int    `json:"head,omitempty"`
	File  string `json:"file"`
}

type manifest struct {
	Bucket  string            `json:"bucket"`
	Format  Format            `json:"format"`
	Columns []columnHeader    `json:"columns"`
	Meta    map[string]string `json:"meta,omitempty"`
}

const manifestFile = "manifest.json"

// Save writes every column into dir/<bucket>/ in the given format, plus a
// manifest describing shapes.
func (b *Bucket) Save(dir string, format Format) error {
	if format != Dense && format != Compressed {
		return fmt.Errorf("store: unknown format %q", format)
	}
	path := filepath.Join(dir, b.name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}

	m := manifest{Bucket: b.name, Format: format, Meta: b.meta}
	for _, name := range b.order {
		c := b.cols[name]
		h := columnHeader{
			Name:  name,
			DType: c.dtype(),
			N:     c.N(),
			MaxN:  c.MaxN(),
			Width: c.Width(),
			File:  name + ".bin",
		}
		if hc, ok := c.(headed); ok {
			h.Head = hc.Head()
		}
		if format == Compressed {
			h.File += ".zst"
		}
		if err := writeColumn(filepath.Join(path, h.File), h, c, format); err != nil {
			return fmt.Errorf("save %s.%s: %w", b.name, name, err)
		}
		m.Columns = append(m.Columns, h)
	}

	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(path, manifestFile), raw, 0o644)
}

func writeColumn(path string, h columnHeader, c Column, format Format) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return encodeColumn(f, h, c, format)
}

// encodeColumn writes the header line and the rows of c to w. A compressed
// stream is complete only once its encoder closed cleanly.
func encodeColumn(w io.Writer, h columnHeader, c Column, format Format) error {
	var enc *zstd.Encoder
	if format == Compressed {
		var err error
		if enc, err = zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault)); err != nil {
			return err
		}
		w = enc
	}

	bw := bufio.NewWriterSize(w, 256*1024)
	hb, _ := json.Marshal(h)
	err := func() error {
		if _, err := bw.Write(hb); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
		if err := c.writeRows(bw); err != nil {
			return err
		}
		return bw.Flush()
	}()
	if enc == nil {
		return err
	}
	if cerr := enc.Close(); err == nil {
		err = cerr
	}
	return err
}

// Load restores every registered column from dir/<bucket>/. Each column takes
// the n and max_n recorded in the checkpoint.
func (b *Bucket) Load(dir string) error {
	path := filepath.Join(dir, b.name)
	raw, err := os.ReadFile(filepath.Join(path, manifestFile))
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}

	seen := make(map[string]bool, len(m.Columns))
	for _, h := range m.Columns {
		c, ok := b.cols[h.Name]
		if !ok {
			return fmt.Errorf("%w: %s.%s in checkpoint", ErrUnknownColumn, b.name, h.Name)
		}
		if c.dtype() != h.DType || c.Width() != h.Width {
			return fmt.Errorf("store: %s.%s shape mismatch: have %s/%d, checkpoint %s/%d",
				b.name, h.Name, c.dtype(), c.Width(), h.DType, h.Width)
		}
		if err := readColumn(filepath.Join(path, h.File), h, c, m.Format); err != nil {
			return fmt.Errorf("load %s.%s: %w", b.name, h.Name, err)
		}
		if hc, ok := c.(headed); ok {
			hc.SetHead(h.Head)
		}
		seen[h.Name] = true
	}
	var missing []string
	for _, name := range b.order {
		if !seen[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s missing %v", ErrUnknownColumn, b.name, missing)
	}
	for k, v := range m.Meta {
		b.meta[k] = v
	}
	return nil
}

func readColumn(path string, h columnHeader, c Column, format Format) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if format == Compressed {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return err
		}
		defer dec.Close()
		r = dec
	}

	br := bufio.NewReaderSize(r, 256*1024)
	// The header line duplicates the manifest entry.
	if _, err := br.ReadBytes('\n'); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	return c.readRows(br, h.N, h.MaxN)
}

func (a *Array[T]) dtype() string {
	var zero T
	return fmt.Sprintf("%T", zero)
}

func (a *Array[T]) writeRows(w io.Writer) error {
	return binary.Write(w, binary.LittleEndian, a.Data())
}

func (a *Array[T]) readRows(r io.Reader, n, maxN int) error {
	if n > maxN {
		return fmt.Errorf("%w: n=%d max_n=%d", ErrCapacity, n, maxN)
	}
	buf := make([]T, maxN*a.width)
	if err := binary.Read(r, binary.LittleEndian, buf[:n*a.width]); err != nil {
		return err
	}
	for i := n * a.width; i < len(buf); i++ {
		buf[i] = a.fill
	}
	a.buf = buf
	a.n = n
	a.maxN = maxN
	return nil
}
