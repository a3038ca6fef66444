package filtergraph

import (
	"strings"

	"github.com/clipforge/clipforge/internal/models"
)

// captionStyle maps a named caption style to concrete drawtext parameters.
// Vertical placement is a fraction of the frame height so rendering is
// resolution independent.
type captionStyle struct {
	FontColor   string
	BorderColor string
	BorderW     int
	FontSizeDiv int     // fontsize = h / FontSizeDiv
	YFrac       float64 // baseline as a fraction of frame height
	Box         bool
	BoxColor    string
}

var captionStyles = map[models.CaptionStyle]captionStyle{
	models.CaptionStyleYellow: {
		FontColor:   "yellow",
		BorderColor: "black",
		BorderW:     4,
		FontSizeDiv: 14,
		YFrac:       0.72,
	},
	models.CaptionStyleWhite: {
		FontColor:   "white",
		BorderColor: "black",
		BorderW:     3,
		FontSizeDiv: 16,
		YFrac:       0.78,
	},
	models.CaptionStyleCyan: {
		FontColor:   "0x00E5FF",
		BorderColor: "black",
		BorderW:     3,
		FontSizeDiv: 15,
		YFrac:       0.75,
		Box:         true,
		BoxColor:    "black@0.35",
	},
}

var drawtextEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`:`, `\:`,
	`%`, `\%`,
)

// escapeDrawtext escapes text for use inside a drawtext text= argument.
func escapeDrawtext(s string) string {
	return drawtextEscaper.Replace(s)
}
