package protocols

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Params is a protocol's parameter map after schema validation.
type Params map[string]any

func (p Params) Float(name string, def float64) float64 {
	v, ok := p[name]
	if !ok {
		return def
	}
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
	}
	return def
}

func (p Params) Int(name string, def int) int {
	v, ok := p[name]
	if !ok {
		return def
	}
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		return int(x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}

func (p Params) String(name string, def string) string {
	if s, ok := p[name].(string); ok {
		return s
	}
	return def
}

// Normalize round-trips p through JSON so numbers become json.Number and
// nested maps become map[string]any, the shapes schema validation expects.
func (p Params) Normalize() (Params, error) {
	if len(p) == 0 {
		return Params{}, nil
	}
	b, err := json.Marshal(map[string]any(p))
	if err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}
	var out map[string]any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}
	return Params(out), nil
}
