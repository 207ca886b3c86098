package voxline

import "sort"

// cachePriorityOrder ranks all volume indices by how valuable they are to
// preload, most valuable first, given the cursor position.
//
// Each index gets a priority from its wrapping distance to the cursor in
// both directions:
//
//	priority = 4/(1+forward) + 1/(1+backward)
//
// The multiplier on the forward term is the "forward bias": roughly how
// many forward-looking volumes go ahead of each backward-looking one in
// the queue, since playback makes the volumes after the cursor the likely
// next requests. The +1 smooths the metric near the cursor and prevents
// division by zero. Equal priorities fall back to the lower index, so the
// permutation is deterministic for a given (n, index).
func cachePriorityOrder(n, index int) []int {
	priorities := make([]float64, n)
	order := make([]int, n)
	for i := 0; i < n; i++ {
		forward := ((i-index)%n + n) % n
		backward := ((index-i)%n + n) % n
		priorities[i] = 4/float64(1+forward) + 1/float64(1+backward)
		order[i] = i
	}

	sort.Slice(order, func(a, b int) bool {
		pa, pb := priorities[order[a]], priorities[order[b]]
		if pa != pb {
			return pa > pb
		}
		return order[a] < order[b]
	})
	return order
}
