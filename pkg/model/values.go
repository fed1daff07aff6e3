package model

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// IsEmptyValue reports whether a property value should be treated as absent.
// Falsy scalars are empty; lists are empty unless some element is non-empty.
func IsEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case bool:
		return !val
	case float64:
		return val == 0 || math.IsNaN(val)
	case float32:
		return val == 0 || math.IsNaN(float64(val))
	case int:
		return val == 0
	case int64:
		return val == 0
	case []any:
		for _, e := range val {
			if !IsEmptyValue(e) {
				return false
			}
		}
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if !IsEmptyValue(rv.Index(i).Interface()) {
				return false
			}
		}
		return true
	case reflect.Map:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return rv.IsZero()
}

// StringValue renders a property value as display text.
// The strings "null" and "undefined" count as empty, matching values written by other tools.
func StringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		s := strings.TrimSpace(val)
		if s == "null" || s == "undefined" {
			return ""
		}
		return s
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, e := range val {
			if s := StringValue(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(val, ", ")
	case fmt.Stringer:
		return val.String()
	}
	return fmt.Sprint(v)
}
