package gguf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Encode writes a version 3 header holding kv (in key order) and the tensor
// inventory. Tensor data is not written. Supported values: string, bool,
// the fixed-size integer and float types, and []string.
func Encode(w io.Writer, kv KV, tensors []Tensor) error {
	bw := bufio.NewWriter(w)
	le := binary.LittleEndian
	put := func(v any) error { return binary.Write(bw, le, v) }
	str := func(s string) error {
		if err := put(uint64(len(s))); err != nil {
			return err
		}
		_, err := bw.WriteString(s)
		return err
	}

	for _, v := range []any{Magic, uint32(3), uint64(len(tensors)), uint64(len(kv))} {
		if err := put(v); err != nil {
			return err
		}
	}
	for _, k := range kv.Keys() {
		if err := str(k); err != nil {
			return err
		}
		var err error
		switch v := kv[k].(type) {
		case string:
			if err = put(TypeString); err == nil {
				err = str(v)
			}
		case []string:
			for _, x := range []any{TypeArray, TypeString, uint64(len(v))} {
				if err = put(x); err != nil {
					break
				}
			}
			for _, s := range v {
				if err != nil {
					break
				}
				err = str(s)
			}
		default:
			t, ok := typeOf(v)
			if !ok {
				return fmt.Errorf("kv %q: unsupported value type %T", k, v)
			}
			if err = put(t); err == nil {
				err = put(v)
			}
		}
		if err != nil {
			return err
		}
	}
	var offset uint64
	for _, t := range tensors {
		if err := str(t.Name); err != nil {
			return err
		}
		if err := put(uint32(len(t.Shape))); err != nil {
			return err
		}
		for _, d := range t.Shape {
			if err := put(d); err != nil {
				return err
			}
		}
		if err := put(t.Kind); err != nil {
			return err
		}
		if err := put(offset); err != nil {
			return err
		}
		offset += t.Elements() * 4
	}
	return bw.Flush()
}

func typeOf(v any) (uint32, bool) {
	switch v.(type) {
	case uint8:
		return TypeUint8, true
	case int8:
		return TypeInt8, true
	case uint16:
		return TypeUint16, true
	case int16:
		return TypeInt16, true
	case uint32:
		return TypeUint32, true
	case int32:
		return TypeInt32, true
	case float32:
		return TypeFloat32, true
	case bool:
		return TypeBool, true
	case uint64:
		return TypeUint64, true
	case int64:
		return TypeInt64, true
	case float64:
		return TypeFloat64, true
	}
	return 0, false
}
