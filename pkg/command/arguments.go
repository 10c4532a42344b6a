package command

import (
	"fmt"
	"sort"
)

// Arguments is the resolved parameter set of one invocation.
type Arguments map[string]any

// Clone returns a shallow copy. A nil receiver yields an empty map.
func (a Arguments) Clone() Arguments {
	out := make(Arguments, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Keys returns the argument names in sorted order.
func (a Arguments) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the named argument as a string.
func (a Arguments) String(name string) (string, error) {
	v, ok := a[name]
	if !ok {
		return "", fmt.Errorf("argument %q not set", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q: expected string, got %T", name, v)
	}
	return s, nil
}

// Int returns the named argument as an int. Whole floats are accepted since
// JSON and YAML decoders produce float64 for numbers.
func (a Arguments) Int(name string) (int, error) {
	v, ok := a[name]
	if !ok {
		return 0, fmt.Errorf("argument %q not set", name)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("argument %q: %v is not a whole number", name, n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("argument %q: expected int, got %T", name, v)
	}
}

// Float returns the named argument as a float64.
func (a Arguments) Float(name string) (float64, error) {
	v, ok := a[name]
	if !ok {
		return 0, fmt.Errorf("argument %q not set", name)
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
	default:
		return 0, fmt.Errorf("argument %q: expected number, got %T", name, v)
	}
}

// Bool returns the named argument as a bool.
func (a Arguments) Bool(name string) (bool, error) {
	v, ok := a[name]
	if !ok {
		return false, fmt.Errorf("argument %q not set", name)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("argument %q: expected bool, got %T", name, v)
	}
	return b, nil
}
