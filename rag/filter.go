package rag

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// MatchesFilter reports whether every key/value in filter equals the
// corresponding metadata value. Numbers compare by value regardless of their
// Go type, so a year decoded from JSON as float64 still matches an int filter.
func MatchesFilter(metadata map[string]any, filter map[string]any) bool {
	for key, want := range filter {
		got, ok := metadata[key]
		if !ok {
			return false
		}
		if !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// FilterToStrings renders filter values the way StringifyMetadata renders
// metadata, for backends that only support string equality.
func FilterToStrings(filter map[string]any) map[string]string {
	if len(filter) == 0 {
		return nil
	}
	out := make(map[string]string, len(filter))
	for k, v := range filter {
		out[k] = stringify(v)
	}
	return out
}

// StringifyMetadata renders every metadata value as a string.
func StringifyMetadata(metadata map[string]any) map[string]string {
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		out[k] = stringify(v)
	}
	return out
}

func stringify(v any) string {
	switch x := normalize(v).(type) {
	case string:
		return x
	case float64:
		return fmt.Sprintf("%g", x)
	case nil:
		return ""
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprintf("%v", x)
		}
		return string(b)
	}
}

func valuesEqual(a, b any) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case *int:
		if x == nil {
			return nil
		}
		return float64(*x)
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	default:
		return v
	}
}
