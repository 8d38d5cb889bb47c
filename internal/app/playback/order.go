package playback

import "math/rand"

// Play-order helpers. Every function returns a fresh slice that is a
// permutation of [0, n) for the resulting queue length; callers never
// see partial edits.

// IdentityOrder returns [0, 1, ..., n-1].
func IdentityOrder(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

// ShuffleSuffix permutes the entries strictly after cursor, leaving the
// already-played prefix (including the cursor entry) untouched. A
// cursor of -1 shuffles the whole order.
func ShuffleSuffix(order []int, cursor int, rnd *rand.Rand) []int {
	out := make([]int, len(order))
	copy(out, order)
	start := cursor + 1
	if start < 0 {
		start = 0
	}
	for i := len(out) - 1; i > start; i-- {
		j := start + rnd.Intn(i-start+1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// UnshuffleCursor resets the order to the identity permutation and
// returns the cursor position that keeps the same track selected.
func UnshuffleCursor(order []int, cursor int) ([]int, int) {
	identity := IdentityOrder(len(order))
	if cursor < 0 || cursor >= len(order) {
		return identity, -1
	}
	// The queue index the cursor pointed at is its own position in the
	// identity permutation.
	return identity, order[cursor]
}

// ExtendOrder adds n new queue indices (starting at first) to the
// order. Without shuffle they are appended in queue order; with shuffle
// each lands at a random position after the cursor, so the played
// prefix is never disturbed.
func ExtendOrder(order []int, cursor, first, n int, shuffled bool, rnd *rand.Rand) []int {
	out := make([]int, len(order), len(order)+n)
	copy(out, order)
	for k := 0; k < n; k++ {
		idx := first + k
		if !shuffled {
			out = append(out, idx)
			continue
		}
		lo := cursor + 1
		if lo < 0 {
			lo = 0
		}
		pos := lo + rnd.Intn(len(out)-lo+1)
		out = append(out, 0)
		copy(out[pos+1:], out[pos:])
		out[pos] = idx
	}
	return out
}

// SpliceOrder inserts n new queue indices (starting at insertAt, after
// existing entries at or beyond insertAt were shifted up by n) into the
// order. Without shuffle they go immediately after the cursor; with
// shuffle they follow the same random-after-cursor placement as
// ExtendOrder.
func SpliceOrder(order []int, cursor, insertAt, n int, shuffled bool, rnd *rand.Rand) []int {
	shifted := make([]int, len(order))
	for i, e := range order {
		if e >= insertAt {
			e += n
		}
		shifted[i] = e
	}
	if shuffled {
		return ExtendOrder(shifted, cursor, insertAt, n, true, rnd)
	}
	out := make([]int, 0, len(shifted)+n)
	at := cursor + 1
	if at < 0 {
		at = 0
	}
	if at > len(shifted) {
		at = len(shifted)
	}
	out = append(out, shifted[:at]...)
	for k := 0; k < n; k++ {
		out = append(out, insertAt+k)
	}
	out = append(out, shifted[at:]...)
	return out
}
