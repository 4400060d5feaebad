// Package safemath provides checked unsigned 64-bit arithmetic.
//
// Every operation reports overflow instead of wrapping; lamport and token
// amounts never silently truncate.
package safemath

import (
	"errors"
	"math"
	"math/bits"
)

var (
	ErrOverflow  = errors.New("safemath: overflow")
	ErrUnderflow = errors.New("safemath: underflow")
	ErrDivByZero = errors.New("safemath: division by zero")
)

// Add returns a+b.
func Add(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// Sub returns a-b.
func Sub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrUnderflow
	}
	return a - b, nil
}

// Mul returns a*b.
func Mul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return lo, nil
}

// Div returns a/b, truncated toward zero.
func Div(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, ErrDivByZero
	}
	return a / b, nil
}

// MulDiv returns floor(a*b/d). The product must itself fit in 64 bits, so
// a large a*b reports ErrOverflow even when the quotient would fit.
func MulDiv(a, b, d uint64) (uint64, error) {
	p, err := Mul(a, b)
	if err != nil {
		return 0, err
	}
	return Div(p, d)
}

// Sum adds all values.
func Sum(vs ...uint64) (uint64, error) {
	var total uint64
	for _, v := range vs {
		var err error
		if total, err = Add(total, v); err != nil {
			return 0, err
		}
	}
	return total, nil
}
