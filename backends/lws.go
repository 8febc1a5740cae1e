// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

// OptimalLWS is the default local work size policy engines can use to implement
// Capabilities.OptimalLocalSize.
//
// The work-group is limited to arch.MaxWorkGroupSize() work items. Dimensions are filled starting
// at axisHint (or at 0 if axisHint is not a valid axis) and then in increasing order, each one
// taking the largest divisor of its global size that fits in the remaining budget.
func OptimalLWS(gws Range, axisHint int, arch GPUArch) Range {
	lws := Range{1, 1, 1}
	budget := arch.MaxWorkGroupSize()
	order := []int{0, 1, 2}
	if axisHint > 0 && axisHint < len(gws) {
		order = append([]int{axisHint}, append(order[:axisHint:axisHint], order[axisHint+1:]...)...)
	}
	for _, axis := range order {
		if budget <= 1 {
			break
		}
		lws[axis] = largestDivisor(gws[axis], budget)
		budget /= lws[axis]
	}
	return lws
}

// largestDivisor returns the largest divisor of value that is <= limit, or 1 if value <= 0.
func largestDivisor(value, limit int) int {
	if value <= 0 {
		return 1
	}
	for d := min(value, limit); d > 1; d-- {
		if value%d == 0 {
			return d
		}
	}
	return 1
}
