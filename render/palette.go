package render

import (
	"github.com/TFMV/specgraph/models"
)

// Palette provides the colors used by the render surface.
type Palette struct {
	Highlight  string
	Added      string
	Deleted    string
	Modified   string
	Unknown    string
	Link       string
	Label      string
	Background string
}

// DefaultPalette returns the light palette used by the web view.
func DefaultPalette() Palette {
	return Palette{
		Highlight:  "#FFA500", // orange
		Added:      "#34A853", // green
		Deleted:    "#EA4335", // red
		Modified:   "#4285F4", // blue
		Unknown:    "#9E9E9E", // gray
		Link:       "rgba(0,0,0,0.1)",
		Label:      "#333333",
		Background: "#ffffff",
	}
}

// DarkPalette returns a palette for dark backgrounds.
func DarkPalette() Palette {
	return Palette{
		Highlight:  "#FFD700",
		Added:      "#7FFF00",
		Deleted:    "#FF4500",
		Modified:   "#00B0FF",
		Unknown:    "#A9A9A9",
		Link:       "rgba(255,255,255,0.15)",
		Label:      "#EEEEEE",
		Background: "#1e1e1e",
	}
}

// NodeColor applies the color policy in priority order: highlighted ids
// first, then the node type, then gray.
func (p Palette) NodeColor(id string, t models.NodeType, hl models.HighlightSet) string {
	if hl.Has(id) {
		return p.Highlight
	}
	switch t {
	case models.TypeAdded:
		return p.Added
	case models.TypeDeleted:
		return p.Deleted
	case models.TypeModified:
		return p.Modified
	}
	return p.Unknown
}
