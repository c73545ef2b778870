package strategy

import (
	"errors"
	"fmt"
	"sort"
)

// ConfigError reports a malformed or missing configuration key. It is fatal
// for the strategy instance that returned it.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Key + "]: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfig reports whether err is, or wraps, a ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Params is a loosely typed parameter map as decoded from TOML or YAML.
// The typed getters turn a present-but-wrong value into a ConfigError instead
// of silently falling back.
type Params map[string]any

// Clone returns a shallow copy; slices are copied one level deep.
func (p Params) Clone() Params {
	if p == nil {
		return Params{}
	}
	out := make(Params, len(p))
	for k, v := range p {
		switch vv := v.(type) {
		case []any:
			out[k] = append([]any(nil), vv...)
		case []string:
			out[k] = append([]string(nil), vv...)
		default:
			out[k] = v
		}
	}
	return out
}

// Keys returns the parameter names in ascending order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Float returns a numeric parameter, or def when the key is absent.
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, &ConfigError{Key: key, Err: fmt.Errorf("expected number, got %T", v)}
	}
}

// Bool returns a boolean parameter, or def when the key is absent.
func (p Params) Bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, &ConfigError{Key: key, Err: fmt.Errorf("expected bool, got %T", v)}
	}
	return b, nil
}

// Strings returns a list-of-strings parameter. The second result reports
// whether the key was present.
func (p Params) Strings(key string) ([]string, bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, false, nil
	}
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...), true, nil
	case []any:
		out := make([]string, 0, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, true, &ConfigError{Key: key, Err: fmt.Errorf("element %d: expected string, got %T", i, item)}
			}
			out = append(out, s)
		}
		return out, true, nil
	default:
		return nil, true, &ConfigError{Key: key, Err: fmt.Errorf("expected list of strings, got %T", v)}
	}
}
