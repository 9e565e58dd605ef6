package observation

import (
	"fmt"
	"strings"
	"time"

	colorful "github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/spatial/r3"
)

// Palette is cycled through for new sets.
var Palette = []string{
	"#00e5ff",
	"#69ff47",
	"#ff4444",
	"#ff9800",
	"#c084fc",
	"#ffffff",
}

// Set is one observation set.
type Set struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	// Color is a #rrggbb override. Empty means speed colouring.
	Color     string    `json:"color"`
	Visible   bool      `json:"visible"`
	CreatedAt time.Time `json:"created_at"`

	Points []r3.Vec `json:"-"`
}

// PaletteColor returns the n-th palette entry, wrapping around.
func PaletteColor(n int) string {
	if n < 0 {
		n = -n
	}
	return Palette[n%len(Palette)]
}

// ParseColor parses a #rrggbb override. The empty string yields nil.
func ParseColor(s string) (*colorful.Color, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return &c, nil
}

// DefaultLabel names the n-th set (1-based) when no label is given.
func DefaultLabel(n int) string { return fmt.Sprintf("Set %d", n) }
