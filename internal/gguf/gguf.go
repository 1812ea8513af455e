// Package gguf reads the metadata section of GGUF model files: the
// key/value header and the tensor inventory. Tensor data is never read.
package gguf

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"llmsock/internal/common/fsutil"
)

// Magic is "GGUF" read as a little-endian uint32.
const Magic uint32 = 0x46554747

// ErrNotGGUF is returned when the file does not start with the GGUF magic.
var ErrNotGGUF = errors.New("not a gguf file")

// Value types as stored on disk.
const (
	TypeUint8 uint32 = iota
	TypeInt8
	TypeUint16
	TypeInt16
	TypeUint32
	TypeInt32
	TypeFloat32
	TypeBool
	TypeString
	TypeArray
	TypeUint64
	TypeInt64
	TypeFloat64
)

// maxKeptArray is the largest scalar array kept in memory; longer arrays
// (vocabularies, merges) are skipped and recorded as Array.
const maxKeptArray = 16

// maxString bounds a single string so a corrupt header cannot force a huge
// allocation.
const maxString = 1 << 24

// Array describes an array value whose contents were skipped.
type Array struct {
	Type uint32
	Len  uint64
}

// Tensor is one entry of the tensor inventory.
type Tensor struct {
	Name   string
	Kind   uint32
	Offset uint64
	Shape  []uint64
}

// Elements is the product of the shape.
func (t Tensor) Elements() uint64 {
	n := uint64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// File is the decoded metadata of a GGUF file.
type File struct {
	Version uint32
	KV      KV
	Tensors []Tensor
}

// TensorFunc is called once per decoded tensor with its 1-based index.
type TensorFunc func(t Tensor, current, count int)

// Decode reads a GGUF header from r.
func Decode(r io.Reader) (*File, error) {
	return DecodeWithCallback(r, nil, nil)
}

// DecodeWithCallback decodes like Decode. onHeader runs after the key/values
// are read, onTensor after each tensor info.
func DecodeWithCallback(r io.Reader, onHeader func(*File), onTensor TensorFunc) (*File, error) {
	d := &decoder{r: bufio.NewReader(r), order: binary.LittleEndian}

	var magic uint32
	if err := binary.Read(d.r, d.order, &magic); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if magic != Magic {
		return nil, ErrNotGGUF
	}

	f := &File{KV: make(KV)}
	if err := binary.Read(d.r, d.order, &f.Version); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	d.version = f.Version

	var numTensor, numKV uint64
	switch f.Version {
	case 1:
		var counts struct{ NumTensor, NumKV uint32 }
		if err := binary.Read(d.r, d.order, &counts); err != nil {
			return nil, err
		}
		numTensor, numKV = uint64(counts.NumTensor), uint64(counts.NumKV)
	case 2, 3:
		var counts struct{ NumTensor, NumKV uint64 }
		if err := binary.Read(d.r, d.order, &counts); err != nil {
			return nil, err
		}
		numTensor, numKV = counts.NumTensor, counts.NumKV
	default:
		return nil, fmt.Errorf("unsupported gguf version %d", f.Version)
	}

	for i := uint64(0); i < numKV; i++ {
		k, err := d.string()
		if err != nil {
			return nil, fmt.Errorf("kv %d key: %w", i, err)
		}
		t, err := read[uint32](d)
		if err != nil {
			return nil, fmt.Errorf("kv %q type: %w", k, err)
		}
		v, err := d.value(t)
		if err != nil {
			return nil, fmt.Errorf("kv %q: %w", k, err)
		}
		f.KV[k] = v
	}
	if onHeader != nil {
		onHeader(f)
	}

	count := int(numTensor)
	for i := 0; i < count; i++ {
		t, err := d.tensor()
		if err != nil {
			return nil, fmt.Errorf("tensor %d: %w", i, err)
		}
		f.Tensors = append(f.Tensors, t)
		if onTensor != nil {
			onTensor(t, i+1, count)
		}
	}
	return f, nil
}

// Open decodes the header of the file at path ('~' expanded).
func Open(path string) (*File, error) {
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	fh, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return Decode(fh)
}

// IsGGUF reports whether the file at path starts with the GGUF magic.
func IsGGUF(path string) bool {
	fh, err := os.Open(path)
	if err != nil {
		return false
	}
	defer fh.Close()
	var magic uint32
	if err := binary.Read(fh, binary.LittleEndian, &magic); err != nil {
		return false
	}
	return magic == Magic
}

// Architecture returns general.architecture.
func (f *File) Architecture() string { return f.KV.String("general.architecture") }

// ContextLength returns <arch>.context_length, or 0.
func (f *File) ContextLength() uint64 {
	return f.KV.Uint(f.Architecture() + ".context_length")
}

// ParameterCount sums the elements of every tensor.
func (f *File) ParameterCount() uint64 {
	var n uint64
	for _, t := range f.Tensors {
		n += t.Elements()
	}
	return n
}

type decoder struct {
	r       *bufio.Reader
	order   binary.ByteOrder
	version uint32
}

func read[T any](d *decoder) (T, error) {
	var v T
	err := binary.Read(d.r, d.order, &v)
	return v, err
}

func (d *decoder) string() (string, error) {
	n, err := read[uint64](d)
	if err != nil {
		return "", err
	}
	if n > maxString {
		return "", fmt.Errorf("string length %d exceeds limit", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		return "", err
	}
	// v1 strings are NUL terminated
	if d.version == 1 && len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b), nil
}

func (d *decoder) value(t uint32) (any, error) {
	switch t {
	case TypeUint8:
		return read[uint8](d)
	case TypeInt8:
		return read[int8](d)
	case TypeUint16:
		return read[uint16](d)
	case TypeInt16:
		return read[int16](d)
	case TypeUint32:
		return read[uint32](d)
	case TypeInt32:
		return read[int32](d)
	case TypeUint64:
		return read[uint64](d)
	case TypeInt64:
		return read[int64](d)
	case TypeFloat32:
		return read[float32](d)
	case TypeFloat64:
		return read[float64](d)
	case TypeBool:
		return read[bool](d)
	case TypeString:
		return d.string()
	case TypeArray:
		return d.array()
	default:
		return nil, fmt.Errorf("invalid type: %d", t)
	}
}

func (d *decoder) array() (any, error) {
	t, err := read[uint32](d)
	if err != nil {
		return nil, err
	}
	var n uint64
	if d.version == 1 {
		v, err := read[uint32](d)
		if err != nil {
			return nil, err
		}
		n = uint64(v)
	} else if n, err = read[uint64](d); err != nil {
		return nil, err
	}

	keep := n <= maxKeptArray && t != TypeString && t != TypeArray
	var vals []any
	for i := uint64(0); i < n; i++ {
		v, err := d.value(t)
		if err != nil {
			return nil, err
		}
		if keep {
			vals = append(vals, v)
		}
	}
	if keep {
		return vals, nil
	}
	return Array{Type: t, Len: n}, nil
}

func (d *decoder) tensor() (Tensor, error) {
	name, err := d.string()
	if err != nil {
		return Tensor{}, err
	}
	dims, err := read[uint32](d)
	if err != nil {
		return Tensor{}, err
	}
	if dims > 4 {
		return Tensor{}, fmt.Errorf("tensor %q has %d dimensions", name, dims)
	}
	shape := make([]uint64, dims)
	for i := range shape {
		if shape[i], err = read[uint64](d); err != nil {
			return Tensor{}, err
		}
	}
	kind, err := read[uint32](d)
	if err != nil {
		return Tensor{}, err
	}
	offset, err := read[uint64](d)
	if err != nil {
		return Tensor{}, err
	}
	return Tensor{Name: name, Kind: kind, Offset: offset, Shape: shape}, nil
}
