package render

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Zoom limits applied when fitting.
const (
	MinZoom = 0.01
	MaxZoom = 8.0
)

// Viewport maps graph space to screen space: screen = graph*Zoom + Pan.
type Viewport struct {
	Zoom float64
	Pan  r2.Vec
}

// Identity is the viewport that draws graph coordinates unchanged.
var Identity = Viewport{Zoom: 1}

// ToScreen converts a graph-space point to screen space.
func (v Viewport) ToScreen(p r2.Vec) r2.Vec {
	return r2.Add(r2.Scale(v.Zoom, p), v.Pan)
}

// ToGraph converts a screen-space point to graph space.
func (v Viewport) ToGraph(p r2.Vec) r2.Vec {
	return r2.Scale(1/v.Zoom, r2.Sub(p, v.Pan))
}

// FitBox returns the viewport that shows box centered on a width x height
// surface with padding screen pixels on each side.
func FitBox(box r2.Box, width, height, padding float64) Viewport {
	w := box.Max.X - box.Min.X
	h := box.Max.Y - box.Min.Y
	availW := math.Max(width-2*padding, 1)
	availH := math.Max(height-2*padding, 1)

	zoom := MaxZoom
	if w > 0 {
		zoom = math.Min(zoom, availW/w)
	}
	if h > 0 {
		zoom = math.Min(zoom, availH/h)
	}
	zoom = math.Max(zoom, MinZoom)

	center := r2.Scale(0.5, r2.Add(box.Min, box.Max))
	screenCenter := r2.Vec{X: width / 2, Y: height / 2}
	return Viewport{
		Zoom: zoom,
		Pan:  r2.Sub(screenCenter, r2.Scale(zoom, center)),
	}
}
