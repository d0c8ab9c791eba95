package item

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Payload is the primary data carried by an item: a string-keyed mapping of
// JSON-compatible values that preserves key order through JSON round-trips.
// Tasks read and write arbitrary keys; unknown keys are preserved by
// convention, not enforced here.
type Payload struct {
	keys   []string
	values map[string]any
}

// NewPayload returns an empty payload.
func NewPayload() *Payload {
	return &Payload{values: map[string]any{}}
}

// PayloadFromMap builds a payload from a plain map. Iteration order of Go
// maps is undefined, so keys are recorded in the order they happen to be
// visited; use Set when a specific order matters.
func PayloadFromMap(m map[string]any) *Payload {
	p := NewPayload()
	for k, v := range m {
		p.Set(k, v)
	}
	return p
}

// Set stores value under key, appending the key if it is new.
func (p *Payload) Set(key string, value any) {
	if p.values == nil {
		p.values = map[string]any{}
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Get returns the value stored under key.
func (p *Payload) Get(key string) (any, bool) {
	if p == nil || p.values == nil {
		return nil, false
	}
	v, ok := p.values[key]
	return v, ok
}

// Delete removes key from the payload.
func (p *Payload) Delete(key string) {
	if p == nil || p.values == nil {
		return
	}
	if _, ok := p.values[key]; !ok {
		return
	}
	delete(p.values, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the payload keys in order.
func (p *Payload) Keys() []string {
	if p == nil {
		return nil
	}
	keys := make([]string, len(p.keys))
	copy(keys, p.keys)
	return keys
}

// Len returns the number of keys.
func (p *Payload) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Clone returns a deep copy of the payload.
func (p *Payload) Clone() *Payload {
	if p == nil {
		return NewPayload()
	}
	c := NewPayload()
	for _, k := range p.keys {
		c.Set(k, deepCopyValue(p.values[k]))
	}
	return c
}

// Map returns a shallow map view of the payload. Mutating nested values
// through the returned map aliases the payload; callers that need isolation
// must Clone first.
func (p *Payload) Map() map[string]any {
	m := make(map[string]any, len(p.keys))
	for _, k := range p.keys {
		m[k] = p.values[k]
	}
	return m
}

// MarshalJSON emits the payload as a JSON object with keys in order.
func (p *Payload) MarshalJSON() ([]byte, error) {
	if p == nil || len(p.keys) == 0 {
		return []byte("{}"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(p.values[k])
		if err != nil {
			return nil, fmt.Errorf("marshal payload key %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, recording top-level keys in the order
// they appear in the document.
func (p *Payload) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("payload must be a JSON object")
	}

	p.keys = nil
	p.values = map[string]any{}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key := keyTok.(string)

		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decode payload key %q: %w", key, err)
		}

		p.Set(key, value)
	}

	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return err
	}

	return nil
}

// deepCopyValue copies JSON-compatible values. Values of other types are
// returned as-is; payloads are expected to hold only JSON-compatible data.
func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = deepCopyValue(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = deepCopyValue(val)
		}
		return s
	case *Payload:
		return t.Clone()
	default:
		return v
	}
}
