package phase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDuplicate is returned when a phase result is set twice in one run.
var ErrDuplicate = errors.New("phase result already recorded")

// Results is the ordered, append-only collection of phase results for a
// run. The zero value is not usable; call NewResults.
type Results struct {
	order []Key
	byKey map[Key]Result
}

// NewResults returns an empty collection.
func NewResults() *Results {
	return &Results{byKey: make(map[Key]Result)}
}

// Set records res under its key. A key can be recorded only once.
func (r *Results) Set(res Result) error {
	if res == nil {
		return errors.New("nil phase result")
	}
	k := res.Key()
	if _, ok := r.byKey[k]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, k)
	}
	r.order = append(r.order, k)
	r.byKey[k] = res
	return nil
}

// Get returns the result recorded for k.
func (r *Results) Get(k Key) (Result, bool) {
	if r == nil {
		return nil, false
	}
	res, ok := r.byKey[k]
	return res, ok
}

// Has reports whether a result is recorded for k.
func (r *Results) Has(k Key) bool {
	_, ok := r.Get(k)
	return ok
}

// Keys returns the recorded keys in insertion order.
func (r *Results) Keys() []Key {
	if r == nil {
		return nil
	}
	return append([]Key(nil), r.order...)
}

// Len returns the number of recorded results.
func (r *Results) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// Each calls fn for every result in insertion order.
func (r *Results) Each(fn func(Result)) {
	if r == nil {
		return
	}
	for _, k := range r.order {
		fn(r.byKey[k])
	}
}

// Clone returns a shallow copy. Results themselves are shared, which is
// what resume wants: a reused result is the original record.
func (r *Results) Clone() *Results {
	c := NewResults()
	r.Each(func(res Result) { _ = c.Set(res) })
	return c
}

// TotalErrors sums ErrorCount over every result.
func (r *Results) TotalErrors() int {
	total := 0
	r.Each(func(res Result) { total += res.ErrorCount() })
	return total
}

// MarshalJSON encodes the collection as an object keyed by phase key,
// preserving insertion order.
func (r *Results) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(string(k))
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.byKey[k])
		if err != nil {
			return nil, fmt.Errorf("encode %s result: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object keyed by phase key. The key selects the
// concrete result type; unknown keys are rejected.
func (r *Results) UnmarshalJSON(data []byte) error {
	fresh := NewResults()
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*r = *fresh
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode phase results: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("decode phase results: expected object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode phase results: %w", err)
		}
		name, _ := tok.(string)
		res, err := New(Key(name))
		if err != nil {
			return fmt.Errorf("decode phase results: %w", err)
		}
		if err := dec.Decode(res); err != nil {
			return fmt.Errorf("decode %s result: %w", name, err)
		}
		if err := fresh.Set(res); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decode phase results: %w", err)
	}
	*r = *fresh
	return nil
}
