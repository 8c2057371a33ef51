// Package slices has the generic slice helpers golang.org/x/exp/slices does
// not cover.
package slices

// Concatenate returns a fresh slice holding the contents of every input in
// order. The inputs are never aliased, so appending to the result cannot
// disturb them.
func Concatenate[T any](inputs ...[]T) []T {
	total := 0
	for _, in := range inputs {
		total += len(in)
	}
	out := make([]T, 0, total)
	for _, in := range inputs {
		out = append(out, in...)
	}
	return out
}
