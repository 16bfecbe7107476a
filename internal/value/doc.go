// Package value provides the JSON value model shared by every other
// internal package.
//
// Remote procedure results are untyped: a call may return a record list,
// a boolean, an action dictionary or nothing at all. Rather than decode
// into map[string]any, results are decoded into a sealed union
// (Null, String, Int, Float, Bool, Array, Object) that callers switch on.
//
// The package also owns canonical encoding. Two values are structurally
// equal exactly when their canonical encodings are byte-identical, which
// is what update grouping and snapshot digests rely on.
//
// value imports nothing internal.
package value
