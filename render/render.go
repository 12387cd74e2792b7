// Package render draws simulation frames. A Context owns the drawing
// surface for the lifetime of one mounted view; Draw paints one frame of a
// simulation state and highlight set onto it.
package render

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/TFMV/specgraph/models"
	"github.com/TFMV/specgraph/physics"
)

// Options defines rendering configuration options
type Options struct {
	NodeRadius  float64 // node disc radius in graph units
	LabelSize   float64 // label font size in screen pixels
	LabelOffset r2.Vec  // label position relative to the node, graph units
	LinkWidth   float64 // link stroke width in screen pixels
	FitPadding  float64 // screen pixels kept free around a fitted graph
	ShowLabels  bool
	Palette     Palette
}

// NewDefaultOptions creates a default set of output options
func NewDefaultOptions() Options {
	return Options{
		NodeRadius:  4,
		LabelSize:   10,
		LabelOffset: r2.Vec{X: 6, Y: 4},
		LinkWidth:   1,
		FitPadding:  10,
		ShowLabels:  true,
		Palette:     DefaultPalette(),
	}
}

// Context is the render surface of one mounted view: a canvas, the
// surface dimensions and the current viewport.
type Context struct {
	Canvas   Canvas
	Width    float64
	Height   float64
	Viewport Viewport
	Options  Options
}

// NewContext creates a render context with an identity viewport.
func NewContext(canvas Canvas, width, height float64, opts Options) (*Context, error) {
	if canvas == nil {
		return nil, fmt.Errorf("render context needs a canvas")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("surface dimensions must be positive, got %gx%g", width, height)
	}
	return &Context{
		Canvas:   canvas,
		Width:    width,
		Height:   height,
		Viewport: Identity,
		Options:  opts,
	}, nil
}

// Center returns the surface center in screen coordinates. With an identity
// viewport this is also the graph-space point the simulation centers on.
func (c *Context) Center() r2.Vec {
	return r2.Vec{X: c.Width / 2, Y: c.Height / 2}
}

// Resize updates the surface dimensions.
func (c *Context) Resize(width, height float64) {
	if width > 0 && height > 0 {
		c.Width, c.Height = width, height
	}
}

// Fit sets the viewport so every node, including its disc, is visible.
func (c *Context) Fit(s physics.State) {
	box, ok := s.Bounds()
	if !ok {
		c.Viewport = Identity
		return
	}
	r := c.Options.NodeRadius
	box.Min = r2.Sub(box.Min, r2.Vec{X: r, Y: r})
	box.Max = r2.Add(box.Max, r2.Vec{X: r, Y: r})
	c.Viewport = FitBox(box, c.Width, c.Height, c.Options.FitPadding)
}

// ScreenToGraph converts pointer coordinates to graph space.
func (c *Context) ScreenToGraph(p r2.Vec) r2.Vec {
	return c.Viewport.ToGraph(p)
}

// LabelSize returns the label font size in graph units, so labels keep the
// same on-screen size at any zoom.
func (c *Context) LabelSize() float64 {
	return c.Options.LabelSize / c.Viewport.Zoom
}

// Draw paints one frame: links first in a uniform low-emphasis stroke, then
// nodes colored by the highlight-then-type policy, then labels.
func Draw(c *Context, s physics.State, hl models.HighlightSet) ([]byte, error) {
	opts := c.Options
	canvas := c.Canvas
	canvas.Begin(c.Width, c.Height, c.Viewport, opts.Palette.Background)

	linkWidth := opts.LinkWidth / c.Viewport.Zoom
	for _, sp := range s.Springs {
		canvas.Line(s.Particles[sp.Source].Pos, s.Particles[sp.Target].Pos, opts.Palette.Link, linkWidth)
	}

	for _, p := range s.Particles {
		canvas.Circle(p.Pos, opts.NodeRadius, opts.Palette.NodeColor(p.ID, p.Type, hl))
	}

	if opts.ShowLabels {
		size := c.LabelSize()
		for _, p := range s.Particles {
			canvas.Text(r2.Add(p.Pos, opts.LabelOffset), size, opts.Palette.Label, p.ID)
		}
	}

	frame, err := canvas.End()
	if err != nil {
		return nil, fmt.Errorf("rendering failed: %w", err)
	}
	return frame, nil
}
