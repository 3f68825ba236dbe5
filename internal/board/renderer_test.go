package board

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestColorForTheme(t *testing.T) {
	tests := []struct {
		theme string
		want  string
	}{
		{"process_improvement", "red"},
		{"Process Improvement", "red"},
		{"member_experience", "light_blue"},
		{"member experience", "light_blue"},
		{"team_experience", "yellow"},
		{"information_gaps_and_ai_wishlist", "light_green"},
		{"information gaps", "light_green"},
		{"ai_wishlist", "light_green"},
		{"default", "gray"},
		{"", "gray"},
		{"something new", "gray"},
	}

	for _, tt := range tests {
		t.Run(tt.theme, func(t *testing.T) {
			assert.Equal(t, tt.want, ColorForTheme(tt.theme))
		})
	}
}

func TestRenderCard(t *testing.T) {
	submitted := time.Date(2025, 11, 3, 14, 30, 0, 0, time.UTC)

	card := RenderCard("shorter wait times", "Dana", "member experience", submitted)

	assert.Equal(t, "square", card.Shape)
	assert.Equal(t, 220, card.Width)
	assert.Equal(t, "light_blue", card.FillColor)
	assert.Contains(t, card.Content, "MEMBER EXPERIENCE")
	assert.Contains(t, card.Content, "shorter wait times")
	assert.Contains(t, card.Content, "Dana")
	assert.Contains(t, card.Content, "14:30")
}

func TestRenderCardZeroTime(t *testing.T) {
	card := RenderCard("idea", "Anonymous", "default", time.Time{})

	assert.Contains(t, card.Content, "now")
	assert.Equal(t, "gray", card.FillColor)
}

func TestRenderCardDeterministic(t *testing.T) {
	submitted := time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC)

	a := RenderCard("idea", "Sam", "team experience", submitted)
	b := RenderCard("idea", "Sam", "team experience", submitted)

	assert.Equal(t, a, b)
}
