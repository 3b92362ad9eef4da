package launcher

import (
	"encoding/json"

	"github.com/pandeptwidyaop/app-chooser/internal/models"
)

// KeyValueMap is an ordered lookup built from key/value pairs. A repeated key
// keeps its first position and takes the last value.
type KeyValueMap struct {
	keys   []string
	values map[string]string
}

// NewKeyValueMap folds pairs into a map without touching the input slice.
func NewKeyValueMap(pairs []models.KeyValue) *KeyValueMap {
	m := &KeyValueMap{values: make(map[string]string, len(pairs))}
	for _, kv := range pairs {
		m.Set(kv.Key, kv.Value)
	}
	return m
}

// Set stores value under key.
func (m *KeyValueMap) Set(key, value string) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for key and whether it was present.
func (m *KeyValueMap) Get(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m.values[key]
	return v, ok
}

// Len returns the number of distinct keys.
func (m *KeyValueMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in first-insertion order.
func (m *KeyValueMap) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// Pairs returns the entries in key order.
func (m *KeyValueMap) Pairs() []models.KeyValue {
	if m == nil {
		return nil
	}
	out := make([]models.KeyValue, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, models.KeyValue{Key: k, Value: m.values[k]})
	}
	return out
}

// Map returns a copy of the entries as a plain map.
func (m *KeyValueMap) Map() map[string]string {
	out := make(map[string]string, m.Len())
	if m == nil {
		return out
	}
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the entries as an ordered list of pairs.
func (m *KeyValueMap) MarshalJSON() ([]byte, error) {
	pairs := m.Pairs()
	if pairs == nil {
		pairs = []models.KeyValue{}
	}
	return json.Marshal(pairs)
}
