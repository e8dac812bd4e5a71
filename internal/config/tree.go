package config

import (
	"encoding/json"
	"fmt"
	"math"
)

// Decoders disagree on concrete types: encoding/json (UseNumber) yields
// json.Number, yaml.v3 yields int and float64, BurntSushi/toml yields int64,
// float64 and []map[string]any for arrays of tables. These helpers
// normalise them.

func asMap(v any, where string) (map[string]any, error) {
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case nil:
		return nil, fmt.Errorf("%w: %s is required", ErrInvalidConfig, where)
	default:
		return nil, fmt.Errorf("%w: %s must be a mapping, got %T", ErrInvalidConfig, where, v)
	}
}

func asList(v any, where string) ([]any, error) {
	switch t := v.(type) {
	case []any:
		return t, nil
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = m
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("%w: %s is required", ErrInvalidConfig, where)
	default:
		return nil, fmt.Errorf("%w: %s must be a list, got %T", ErrInvalidConfig, where, v)
	}
}

func asFloat(v any, where string) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, where, err)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidConfig, where)
	default:
		return 0, fmt.Errorf("%w: %s must be a number, got %T", ErrInvalidConfig, where, v)
	}
}

func asInt(v any, where string) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i), nil
		}
	}
	f, err := asFloat(v, where)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalidConfig, where, f)
	}
	return int(f), nil
}
