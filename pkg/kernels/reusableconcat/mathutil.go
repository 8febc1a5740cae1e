// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package reusableconcat

import "golang.org/x/exp/constraints"

func divUp[T constraints.Integer](a, b T) T {
	return (a + b - 1) / b
}

func rndUp[T constraints.Integer](a, b T) T {
	return divUp(a, b) * b
}

func gcd[T constraints.Integer](a, b T) T {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm[T constraints.Integer](a, b T) T {
	return a / gcd(a, b) * b
}

// pow2Divisor returns the largest power of two <= limit that divides value. Zero is divided by
// any power of two.
func pow2Divisor(value, limit int) int {
	p := 1
	for p*2 <= limit && value%(p*2) == 0 {
		p *= 2
	}
	return p
}
