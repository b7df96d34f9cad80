// internal/rules/coercion.go
package rules

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"
	"github.com/valyala/fastjson"
)

/*
 * Scalar coercion for rule parameters.
 *
 * Rule JSON is loosely typed the way query DSLs usually are: numbers may
 * arrive as numeric strings and booleans as "true"/"false". Coercion is
 * strict about meaning, lenient about spelling:
 *   - int: JSON numbers or numeric strings with no fractional part
 *   - bool: JSON booleans or boolean strings
 *   - string: JSON strings; numbers and booleans use their literal text
 *   - float: JSON numbers or numeric strings
 *
 * Null is never coerced; callers report it as an invalid value.
 */

var (
	errNotInteger = errors.New("expected an integer")
	errNotBool    = errors.New("expected a boolean")
	errNotString  = errors.New("expected a string")
	errNotNumber  = errors.New("expected a number")
)

// coerceInt converts v to an int in the 32-bit range.
func coerceInt(v *fastjson.Value) (int, error) {
	var f float64
	switch v.Type() {
	case fastjson.TypeNumber:
		n, err := v.Float64()
		if err != nil {
			return 0, errNotInteger
		}
		f = n
	case fastjson.TypeString:
		n, err := cast.ToFloat64E(strings.TrimSpace(string(v.GetStringBytes())))
		if err != nil {
			return 0, errNotInteger
		}
		f = n
	default:
		return 0, errNotInteger
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w, got [%s]", errNotInteger, literal(v))
	}
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, fmt.Errorf("value [%s] out of integer range", literal(v))
	}
	return int(f), nil
}

// coerceBool converts v to a bool.
func coerceBool(v *fastjson.Value) (bool, error) {
	switch v.Type() {
	case fastjson.TypeTrue:
		return true, nil
	case fastjson.TypeFalse:
		return false, nil
	case fastjson.TypeString:
		b, err := cast.ToBoolE(strings.TrimSpace(string(v.GetStringBytes())))
		if err != nil {
			return false, errNotBool
		}
		return b, nil
	default:
		return false, errNotBool
	}
}

// coerceString converts a scalar to its text.
func coerceString(v *fastjson.Value) (string, error) {
	switch v.Type() {
	case fastjson.TypeString:
		return string(v.GetStringBytes()), nil
	case fastjson.TypeNumber, fastjson.TypeTrue, fastjson.TypeFalse:
		return v.String(), nil
	default:
		return "", errNotString
	}
}

// coerceFloat converts v to a finite float64.
func coerceFloat(v *fastjson.Value) (float64, error) {
	var f float64
	switch v.Type() {
	case fastjson.TypeNumber:
		n, err := v.Float64()
		if err != nil {
			return 0, errNotNumber
		}
		f = n
	case fastjson.TypeString:
		n, err := cast.ToFloat64E(strings.TrimSpace(string(v.GetStringBytes())))
		if err != nil {
			return 0, errNotNumber
		}
		f = n
	default:
		return 0, errNotNumber
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotNumber
	}
	return f, nil
}

// toGo converts a JSON value into plain Go values for script params.
// Integral numbers become int64, other numbers float64.
func toGo(v *fastjson.Value) any {
	switch v.Type() {
	case fastjson.TypeObject:
		obj := v.GetObject()
		out := make(map[string]any, obj.Len())
		obj.Visit(func(key []byte, val *fastjson.Value) {
			out[string(key)] = toGo(val)
		})
		return out
	case fastjson.TypeArray:
		items := v.GetArray()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = toGo(item)
		}
		return out
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNumber:
		if n, err := v.Int64(); err == nil {
			return n
		}
		return v.GetFloat64()
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	default:
		return nil
	}
}

// literal renders v for error messages.
func literal(v *fastjson.Value) string {
	if v.Type() == fastjson.TypeString {
		return string(v.GetStringBytes())
	}
	return v.String()
}
