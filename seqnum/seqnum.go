// Package seqnum centralizes the wrap-aware comparisons that AckNum and
// OrderNum both need: every ordering decision in ack and order must route
// through here rather than re-deriving signed-subtraction arithmetic at
// each call site (spec design note: "wrap-aware sequence comparison").
package seqnum

import "github.com/lithdew/seq"

// LessThan reports whether a comes before b on a wrapping 16-bit sequence,
// i.e. lt(a,b) := (a - b) has the high bit set.
func LessThan(a, b uint16) bool {
	return seq.LT(a, b)
}

// GreaterThan reports whether a comes after b on a wrapping 16-bit sequence.
func GreaterThan(a, b uint16) bool {
	return seq.GT(a, b)
}

// LessOrEqual reports a <= b, wrap-aware.
func LessOrEqual(a, b uint16) bool {
	return a == b || LessThan(a, b)
}

// GreaterOrEqual reports a >= b, wrap-aware.
func GreaterOrEqual(a, b uint16) bool {
	return a == b || GreaterThan(a, b)
}

// Diff returns a - b as a signed distance on the wrapping sequence space,
// positive when a is ahead of b.
func Diff(a, b uint16) int16 {
	return int16(a - b)
}
