package board

import (
	"fmt"
	"strings"
	"time"
)

// themeColors maps normalized theme names to the color names the board API
// accepts. Unknown themes fall back to defaultColor.
var themeColors = map[string]string{
	"process_improvement":              "red",
	"member_experience":                "light_blue",
	"team_experience":                  "yellow",
	"information_gaps_and_ai_wishlist": "light_green",
	"information_gaps":                 "light_green",
	"ai_wishlist":                      "light_green",
}

const defaultColor = "gray"

// Sticky note constants; height is assigned by the board automatically
const (
	cardShape = "square"
	cardWidth = 220
)

// RenderedCard is the board-ready representation of one idea card
type RenderedCard struct {
	Content   string
	Shape     string
	FillColor string
	Width     int
}

// ColorForTheme resolves a theme to its card color. Matching is
// case-insensitive and treats spaces as underscores; unrecognized themes
// get the default color rather than an error.
func ColorForTheme(theme string) string {
	normalized := strings.ReplaceAll(strings.ToLower(theme), " ", "_")
	if color, ok := themeColors[normalized]; ok {
		return color
	}
	return defaultColor
}

// RenderCard builds the card payload for one idea. Pure and deterministic:
// same inputs always produce the same card, and no input can make it fail.
func RenderCard(item, name, theme string, submittedAt time.Time) RenderedCard {
	timeStr := "now"
	if !submittedAt.IsZero() {
		timeStr = submittedAt.Format("15:04")
	}

	content := fmt.Sprintf(
		"<p><strong>%s</strong></p>\n<p>%s</p>\n<p><em>— %s</em></p>\n<p><small>%s</small></p>",
		strings.ToUpper(theme), item, name, timeStr,
	)

	return RenderedCard{
		Content:   content,
		Shape:     cardShape,
		FillColor: ColorForTheme(theme),
		Width:     cardWidth,
	}
}
