package board

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAllocatorValidation(t *testing.T) {
	tests := []struct {
		name    string
		spacing int
		perRow  int
		jitter  int
		wantErr bool
	}{
		{"defaults", 250, 5, 20, false},
		{"no jitter", 100, 3, 0, false},
		{"zero spacing", 0, 5, 0, true},
		{"zero per row", 250, 0, 0, true},
		{"negative jitter", 250, 5, -1, true},
		{"jitter too large", 250, 5, 125, true},
		{"jitter just under half", 250, 5, 124, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewAllocator(tt.spacing, tt.perRow, tt.jitter)

			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, a)
			} else {
				require.NoError(t, err)
				require.NotNil(t, a)
			}
		})
	}
}

func TestNextPositionGridProgression(t *testing.T) {
	a, err := NewAllocator(250, 5, 0)
	require.NoError(t, err)

	// First row fills left to right
	for i := 0; i < 5; i++ {
		pos := a.NextPosition("board-1")
		assert.Equal(t, float64(i*250), pos.X)
		assert.Equal(t, float64(0), pos.Y)
	}

	// Sixth card wraps to a new row
	pos := a.NextPosition("board-1")
	assert.Equal(t, float64(0), pos.X)
	assert.Equal(t, float64(250), pos.Y)
}

func TestNextPositionPerBoardCursors(t *testing.T) {
	a, err := NewAllocator(250, 5, 0)
	require.NoError(t, err)

	a.NextPosition("board-1")
	a.NextPosition("board-1")

	// A different board starts at the origin
	pos := a.NextPosition("board-2")
	assert.Equal(t, Position{X: 0, Y: 0}, pos)
}

func TestNextPositionConcurrentUnique(t *testing.T) {
	a, err := NewAllocator(250, 5, 0)
	require.NoError(t, err)

	const n = 50
	positions := make([]Position, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			positions[i] = a.NextPosition("board-1")
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, pos := range positions {
		key := fmt.Sprintf("%v,%v", pos.X, pos.Y)
		assert.False(t, seen[key], "position %s allocated twice", key)
		seen[key] = true
	}
}

func TestNextPositionJitterBounds(t *testing.T) {
	a, err := NewAllocator(250, 5, 20)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		pos := a.NextPosition("board-1")

		col := i % 5
		row := i / 5

		assert.LessOrEqual(t, math.Abs(pos.X-float64(col*250)), float64(20))
		assert.LessOrEqual(t, math.Abs(pos.Y-float64(row*250)), float64(20))
	}
}

func TestReset(t *testing.T) {
	a, err := NewAllocator(250, 5, 0)
	require.NoError(t, err)

	a.NextPosition("board-1")
	a.NextPosition("board-1")
	a.Reset("board-1")

	pos := a.NextPosition("board-1")
	assert.Equal(t, Position{X: 0, Y: 0}, pos)
}
