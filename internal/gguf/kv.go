package gguf

import (
	"fmt"
	"sort"
)

// KV holds decoded header key/values.
type KV map[string]any

// String returns the string value for key, or "".
func (kv KV) String(key string) string {
	s, _ := kv[key].(string)
	return s
}

// Uint returns any unsigned or non-negative signed integer value as uint64.
func (kv KV) Uint(key string) uint64 {
	switch v := kv[key].(type) {
	case uint8:
		return uint64(v)
	case uint16:
		return uint64(v)
	case uint32:
		return uint64(v)
	case uint64:
		return v
	case int8:
		if v > 0 {
			return uint64(v)
		}
	case int16:
		if v > 0 {
			return uint64(v)
		}
	case int32:
		if v > 0 {
			return uint64(v)
		}
	case int64:
		if v > 0 {
			return uint64(v)
		}
	}
	return 0
}

// Keys returns the keys in sorted order.
func (kv KV) Keys() []string {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Format renders a value for display; skipped arrays show their length.
func Format(v any) string {
	switch v := v.(type) {
	case Array:
		return fmt.Sprintf("[%d items]", v.Len)
	case string:
		if len(v) > 64 {
			return v[:61] + "..."
		}
		return v
	default:
		return fmt.Sprint(v)
	}
}
