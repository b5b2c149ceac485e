package activity

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// TypeError reports a malformed argument from an observer. It is a
// programming error in the caller, not an environmental condition.
type TypeError struct {
	Field  string
	Value  any
	Reason string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("activity: invalid %s %#v (%T): %s", e.Field, e.Value, e.Value, e.Reason)
}

// parseObjectID coerces v to a non-negative integer. The coercion must not
// lose anything: 42, 42.0 and "42" are accepted, while "abc", "042",
// 42.5 and "12:3" are rejected. nil means the record has no object.
func parseObjectID(v any) (*int64, error) {
	if v == nil {
		return nil, nil
	}
	bad := func(reason string) (*int64, error) {
		return nil, &TypeError{Field: "object_id", Value: v, Reason: reason}
	}

	var n int64
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n = rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return bad("out of range")
		}
		n = int64(u)
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
			return bad("not an integer")
		}
		n = int64(f)
	case reflect.String:
		s := rv.String()
		parsed, err := strconv.ParseInt(s, 10, 64)
		if err != nil || strconv.FormatInt(parsed, 10) != s {
			return bad("not an integer")
		}
		n = parsed
	default:
		return bad("not an integer")
	}

	if n < 0 {
		return bad("negative")
	}
	return &n, nil
}
