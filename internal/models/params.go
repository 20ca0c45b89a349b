package models

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/eisenhauerIO/impact-engine/internal/adapter"
)

func paramString(params map[string]any, key, fallback string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

func requireParamString(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", eris.Wrapf(adapter.ErrInvalidParameter, "models: parameter %q is required", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", eris.Wrapf(adapter.ErrInvalidParameter, "models: parameter %q must be a non-empty string (got %v)", key, v)
	}
	return s, nil
}

func paramInt(params map[string]any, key string, fallback int) (int, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return fallback, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, eris.Wrapf(adapter.ErrInvalidParameter, "models: parameter %q must be an integer (got %v)", key, v)
		}
		return int(n), nil
	}
	return 0, eris.Wrapf(adapter.ErrInvalidParameter, "models: parameter %q must be an integer (got %v)", key, v)
}

func paramFloat(params map[string]any, key string, fallback float64) float64 {
	switch n := params[key].(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return fallback
}

// paramStringSlice accepts either a single string or a list of strings. A
// bare string becomes a one-element slice.
func paramStringSlice(params map[string]any, key string) ([]string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, eris.Wrapf(adapter.ErrInvalidParameter, "models: parameter %q is required", key)
	}
	switch vv := v.(type) {
	case string:
		if vv == "" {
			return nil, eris.Wrapf(adapter.ErrInvalidParameter, "models: parameter %q must not be empty", key)
		}
		return []string{vv}, nil
	case []string:
		if len(vv) == 0 {
			return nil, eris.Wrapf(adapter.ErrInvalidParameter, "models: parameter %q must not be empty", key)
		}
		return append([]string(nil), vv...), nil
	case []any:
		if len(vv) == 0 {
			return nil, eris.Wrapf(adapter.ErrInvalidParameter, "models: parameter %q must not be empty", key)
		}
		out := make([]string, len(vv))
		for i, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil, eris.Wrapf(adapter.ErrInvalidParameter, "models: parameter %q must hold strings (got %v)", key, item)
			}
			out[i] = s
		}
		return out, nil
	}
	return nil, eris.Wrapf(adapter.ErrInvalidParameter, "models: parameter %q must be a string or list of strings (got %v)", key, v)
}

func paramMap(params map[string]any, key string) map[string]any {
	if m, ok := params[key].(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func roundTo(x float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(x*p) / p
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
