package settings

import (
	"errors"
	"math"
	"sort"
	"sync"
)

var (
	// ErrInvalidKey indicates an empty field name was supplied.
	ErrInvalidKey = errors.New("settings key must not be empty")
)

// Store is the subset of the settings handle that plugin components use.
type Store interface {
	Get(key string) (any, bool)
	Has(key string) bool
	Set(key string, value any) error
	Erase(key string) bool
}

// Data is the shared settings handle. Every holder of the pointer observes
// the same fields; writes are last-writer-wins.
type Data struct {
	mu     sync.RWMutex
	fields map[string]any
}

var _ Store = (*Data)(nil)

// New returns an empty settings handle.
func New() *Data {
	return &Data{fields: make(map[string]any)}
}

// FromMap returns a handle holding a shallow copy of fields.
func FromMap(fields map[string]any) *Data {
	return &Data{fields: cloneFields(fields)}
}

// Get returns the raw value stored under key.
func (d *Data) Get(key string) (any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	value, ok := d.fields[key]
	return value, ok
}

// Has reports whether key is present.
func (d *Data) Has(key string) bool {
	_, ok := d.Get(key)
	return ok
}

// Set stores value under key, replacing any previous value.
func (d *Data) Set(key string, value any) error {
	if key == "" {
		return ErrInvalidKey
	}

	d.mu.Lock()
	d.fields[key] = value
	d.mu.Unlock()

	return nil
}

// Erase removes key and reports whether it was present.
func (d *Data) Erase(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.fields[key]; !ok {
		return false
	}
	delete(d.fields, key)
	return true
}

// Keys returns the field names in sorted order.
func (d *Data) Keys() []string {
	d.mu.RLock()
	keys := make([]string, 0, len(d.fields))
	for key := range d.fields {
		keys = append(keys, key)
	}
	d.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Len returns the number of fields.
func (d *Data) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.fields)
}

// Snapshot returns a shallow copy of all fields. Nested values are shared.
func (d *Data) Snapshot() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return cloneFields(d.fields)
}

// Replace swaps the full field set in place so existing holders see the
// new contents.
func (d *Data) Replace(fields map[string]any) {
	next := cloneFields(fields)

	d.mu.Lock()
	d.fields = next
	d.mu.Unlock()
}

// Int returns key as a signed integer, or def when absent, out of range or
// not numeric.
func (d *Data) Int(key string, def int64) int64 {
	value, ok := d.Get(key)
	if !ok {
		return def
	}

	switch v := value.(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case uint:
		if uint64(v) > math.MaxInt64 {
			return def
		}
		return int64(v)
	case uint64:
		if v > math.MaxInt64 {
			return def
		}
		return int64(v)
	case float64:
		// float64(math.MaxInt64) rounds up to 2^63, which is already out of range.
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return def
		}
		return int64(v)
	default:
		return def
	}
}

// Uint returns key as an unsigned integer, or def when absent, out of range
// or not numeric.
func (d *Data) Uint(key string, def uint64) uint64 {
	value, ok := d.Get(key)
	if !ok {
		return def
	}

	switch v := value.(type) {
	case int:
		if v < 0 {
			return def
		}
		return uint64(v)
	case int64:
		if v < 0 {
			return def
		}
		return uint64(v)
	case uint64:
		return v
	case uint:
		return uint64(v)
	case float64:
		if v != math.Trunc(v) || v < 0 || v >= math.MaxUint64 {
			return def
		}
		return uint64(v)
	default:
		return def
	}
}

// String returns key as a string, or def when absent or not a string.
func (d *Data) String(key, def string) string {
	value, ok := d.Get(key)
	if !ok {
		return def
	}
	if s, ok := value.(string); ok {
		return s
	}
	return def
}

// Bool returns key as a bool, or def when absent or not a bool.
func (d *Data) Bool(key string, def bool) bool {
	value, ok := d.Get(key)
	if !ok {
		return def
	}
	if b, ok := value.(bool); ok {
		return b
	}
	return def
}

func cloneFields(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for key, value := range src {
		out[key] = value
	}
	return out
}
