package playback

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertPermutation(t *testing.T, order []int, n int) {
	t.Helper()
	require.Len(t, order, n)
	seen := make([]bool, n)
	for _, idx := range order {
		require.GreaterOrEqual(t, idx, 0)
		require.Less(t, idx, n)
		require.False(t, seen[idx], "duplicate index %d", idx)
		seen[idx] = true
	}
}

func TestIdentityOrder(t *testing.T) {
	assert.Equal(t, []int{}, IdentityOrder(0))
	assert.Equal(t, []int{0, 1, 2, 3}, IdentityOrder(4))
}

func TestShuffleSuffix_PrefixFixed(t *testing.T) {
	tests := []struct {
		name   string
		n      int
		cursor int
	}{
		{name: "cursor mid queue", n: 10, cursor: 3},
		{name: "cursor at start", n: 10, cursor: 0},
		{name: "whole order", n: 10, cursor: -1},
		{name: "cursor at end", n: 10, cursor: 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rnd := rand.New(rand.NewSource(1))
			base := IdentityOrder(tt.n)
			for trial := 0; trial < 20; trial++ {
				out := ShuffleSuffix(base, tt.cursor, rnd)
				assertPermutation(t, out, tt.n)
				for i := 0; i <= tt.cursor; i++ {
					assert.Equal(t, base[i], out[i], "prefix entry %d moved", i)
				}
			}
		})
	}
}

func TestShuffleSuffix_DoesNotMutateInput(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	base := IdentityOrder(8)
	_ = ShuffleSuffix(base, 2, rnd)
	assert.Equal(t, IdentityOrder(8), base)
}

func TestUnshuffleCursor(t *testing.T) {
	tests := []struct {
		name       string
		order      []int
		cursor     int
		wantCursor int
	}{
		{
			name:       "cursor follows its track",
			order:      []int{2, 0, 3, 1},
			cursor:     2,
			wantCursor: 3,
		},
		{
			name:       "identity is a no-op",
			order:      []int{0, 1, 2},
			cursor:     1,
			wantCursor: 1,
		},
		{
			name:       "stopped stays stopped",
			order:      []int{1, 0},
			cursor:     -1,
			wantCursor: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, cursor := UnshuffleCursor(tt.order, tt.cursor)
			assert.Equal(t, IdentityOrder(len(tt.order)), order)
			assert.Equal(t, tt.wantCursor, cursor)
		})
	}
}

func TestExtendOrder_Sequential(t *testing.T) {
	order := []int{0, 1, 2}
	out := ExtendOrder(order, 1, 3, 2, false, nil)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, out)
}

func TestExtendOrder_ShuffledAfterCursor(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	base := []int{2, 0, 3, 1}
	cursor := 1

	for trial := 0; trial < 20; trial++ {
		out := ExtendOrder(base, cursor, 4, 2, true, rnd)
		assertPermutation(t, out, 6)
		// The played prefix keeps its entries in place.
		for i := 0; i <= cursor; i++ {
			assert.Equal(t, base[i], out[i])
		}
		// New indices never land at or before the cursor.
		for i, idx := range out {
			if idx >= 4 {
				assert.Greater(t, i, cursor)
			}
		}
	}
}

func TestSpliceOrder_Sequential(t *testing.T) {
	tests := []struct {
		name     string
		order    []int
		cursor   int
		insertAt int
		n        int
		expected []int
	}{
		{
			name:     "insert after cursor in identity",
			order:    []int{0, 1, 2},
			cursor:   0,
			insertAt: 1,
			n:        2,
			expected: []int{0, 1, 2, 3, 4},
		},
		{
			name:     "insert into empty stopped queue",
			order:    []int{},
			cursor:   -1,
			insertAt: 0,
			n:        2,
			expected: []int{0, 1},
		},
		{
			name:     "existing later entries shift",
			order:    []int{1, 0, 2},
			cursor:   1,
			insertAt: 1,
			n:        1,
			expected: []int{2, 0, 1, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := SpliceOrder(tt.order, tt.cursor, tt.insertAt, tt.n, false, nil)
			assert.Equal(t, tt.expected, out)
			assertPermutation(t, out, len(tt.order)+tt.n)
		})
	}
}

func TestSpliceOrder_Shuffled(t *testing.T) {
	rnd := rand.New(rand.NewSource(11))
	base := []int{2, 0, 3, 1}
	cursor := 1
	insertAt := 1

	for trial := 0; trial < 20; trial++ {
		out := SpliceOrder(base, cursor, insertAt, 2, true, rnd)
		assertPermutation(t, out, 6)
		// New queue indices occupy insertAt..insertAt+1 and must sit
		// after the cursor in play order.
		for i, idx := range out {
			if idx == 1 || idx == 2 {
				assert.Greater(t, i, cursor)
			}
		}
	}
}
