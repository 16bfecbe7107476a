package value

import "math"

// AsInt returns v as an int64. Integral floats are accepted.
func AsInt(v Value) (int64, bool) {
	switch val := v.(type) {
	case Int:
		return int64(val), true
	case Float:
		f := float64(val)
		if f == math.Trunc(f) && math.Abs(f) < maxExactFloat {
			return int64(f), true
		}
	}
	return 0, false
}

// AsFloat returns any number as a float64.
func AsFloat(v Value) (float64, bool) {
	switch val := v.(type) {
	case Int:
		return float64(val), true
	case Float:
		return float64(val), true
	}
	return 0, false
}

// AsString returns v as a string.
func AsString(v Value) (string, bool) {
	s, ok := v.(String)
	return string(s), ok
}

// AsBool returns v as a bool.
func AsBool(v Value) (bool, bool) {
	b, ok := v.(Bool)
	return bool(b), ok
}

// AsArray returns v as an Array.
func AsArray(v Value) (Array, bool) {
	a, ok := v.(Array)
	return a, ok
}

// AsObject returns v as an Object.
func AsObject(v Value) (Object, bool) {
	o, ok := v.(Object)
	return o, ok
}

// IntSlice returns the elements of an Array of integers.
// Fails if v is not an array or any element is not integral.
func IntSlice(v Value) ([]int64, bool) {
	arr, ok := v.(Array)
	if !ok {
		return nil, false
	}
	out := make([]int64, 0, len(arr))
	for _, elem := range arr {
		n, ok := AsInt(elem)
		if !ok {
			return nil, false
		}
		out = append(out, n)
	}
	return out, true
}

// Truthy mirrors Python truthiness, which is what the remote server uses
// for empty field values (false, 0, "", [], {} and null are all falsy).
func Truthy(v Value) bool {
	switch val := v.(type) {
	case nil, Null:
		return false
	case Bool:
		return bool(val)
	case Int:
		return val != 0
	case Float:
		return val != 0
	case String:
		return val != ""
	case Array:
		return len(val) > 0
	case Object:
		return len(val) > 0
	}
	return false
}
