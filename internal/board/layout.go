package board

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Default grid layout settings
const (
	DefaultSpacing     = 250
	DefaultCardsPerRow = 5
	DefaultJitter      = 20
)

// Position is a card placement on a board
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// cursor is the per-board grid state
type cursor struct {
	col int
	row int
}

// Allocator hands out non-overlapping grid positions per board. The base
// progression is deterministic: left to right in fixed columns, wrapping to
// a new row after perRow cards. A bounded jitter is added afterwards for
// visual variety only; it must stay below half the spacing so jittered
// cards can never collide.
//
// All calls serialize on one mutex; the per-board cursors are the only
// shared mutable state in the card pipeline.
type Allocator struct {
	mu      sync.Mutex
	boards  map[string]*cursor
	spacing int
	perRow  int
	jitter  int
	rng     *rand.Rand
}

// NewAllocator creates an allocator. The jitter amplitude must be strictly
// smaller than half the spacing.
func NewAllocator(spacing, perRow, jitter int) (*Allocator, error) {
	if spacing <= 0 {
		return nil, fmt.Errorf("spacing must be positive, got %d", spacing)
	}
	if perRow <= 0 {
		return nil, fmt.Errorf("cards per row must be positive, got %d", perRow)
	}
	if jitter < 0 || jitter*2 >= spacing {
		return nil, fmt.Errorf("jitter %d must be non-negative and below half the spacing %d", jitter, spacing)
	}

	return &Allocator{
		boards:  make(map[string]*cursor),
		spacing: spacing,
		perRow:  perRow,
		jitter:  jitter,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// NextPosition advances the board's cursor and returns the next placement
func (a *Allocator) NextPosition(boardID string) Position {
	a.mu.Lock()
	defer a.mu.Unlock()

	c, ok := a.boards[boardID]
	if !ok {
		c = &cursor{}
		a.boards[boardID] = c
	}

	x := c.col * a.spacing
	y := c.row * a.spacing

	c.col++
	if c.col >= a.perRow {
		c.col = 0
		c.row++
	}

	return Position{
		X: float64(x + a.offset()),
		Y: float64(y + a.offset()),
	}
}

// Reset returns a board's cursor to the origin. Only meant for use between
// independent workshop runs, never mid-session.
func (a *Allocator) Reset(boardID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.boards, boardID)
}

// offset returns a random value in [-jitter, jitter]; caller holds the lock
func (a *Allocator) offset() int {
	if a.jitter == 0 {
		return 0
	}
	return a.rng.Intn(2*a.jitter+1) - a.jitter
}
