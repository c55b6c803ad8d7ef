package execution

import (
	"bytes"
	"encoding/json"
)

// OrderedMap is an object result. Keys keep the order of the selection set.
type OrderedMap struct {
	keys   []string
	values map[string]any
}

// NewOrderedMap returns an empty map with room for n keys.
func NewOrderedMap(n int) *OrderedMap {
	return &OrderedMap{keys: make([]string, 0, n), values: make(map[string]any, n)}
}

// Set stores v under key, appending key when new.
func (m *OrderedMap) Set(key string, v any) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Get returns the value stored under key.
func (m *OrderedMap) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (m *OrderedMap) Keys() []string { return m.keys }

// Len returns the number of keys.
func (m *OrderedMap) Len() int { return len(m.keys) }

// ToMap converts m and nested results to plain maps and slices.
func (m *OrderedMap) ToMap() map[string]any {
	out := make(map[string]any, len(m.keys))
	for _, k := range m.keys {
		out[k] = plain(m.values[k])
	}
	return out
}

func plain(v any) any {
	switch v := v.(type) {
	case *OrderedMap:
		if v == nil {
			return nil
		}
		return v.ToMap()
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = plain(e)
		}
		return out
	default:
		return v
	}
}

// MarshalJSON implements json.Marshaler.
func (m *OrderedMap) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
