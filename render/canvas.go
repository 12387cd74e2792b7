package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
)

// Canvas is a drawing backend. Shapes are given in graph coordinates; the
// canvas applies the viewport passed to Begin.
type Canvas interface {
	// Begin starts a frame of the given screen size.
	Begin(width, height float64, vp Viewport, background string)
	Line(a, b r2.Vec, stroke string, width float64)
	Circle(c r2.Vec, r float64, fill string)
	Text(p r2.Vec, size float64, fill, text string)
	// End finishes the frame and returns its encoding.
	End() ([]byte, error)
	// ContentType is the MIME type of the encoded frame.
	ContentType() string
}

// NewCanvas returns the canvas for a format name.
func NewCanvas(format string, palette Palette) (Canvas, error) {
	switch strings.ToLower(format) {
	case "svg":
		return &SVGCanvas{}, nil
	case "ascii", "txt":
		return NewASCIICanvas(palette), nil
	case "json":
		return &JSONCanvas{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// SVGCanvas outputs SVG format
type SVGCanvas struct {
	buf bytes.Buffer
}

// Begin writes the SVG header and opens the viewport group.
func (c *SVGCanvas) Begin(width, height float64, vp Viewport, background string) {
	c.buf.Reset()
	fmt.Fprintf(&c.buf, `<?xml version="1.0" encoding="UTF-8" standalone="no"?>
<svg width="%g" height="%g" viewBox="0 0 %g %g" xmlns="http://www.w3.org/2000/svg">
<rect width="100%%" height="100%%" fill="%s"/>
<g transform="translate(%g,%g) scale(%g)">
`, width, height, width, height, background, vp.Pan.X, vp.Pan.Y, vp.Zoom)
}

// Line draws a line segment.
func (c *SVGCanvas) Line(a, b r2.Vec, stroke string, width float64) {
	fmt.Fprintf(&c.buf, `<line x1="%g" y1="%g" x2="%g" y2="%g" stroke="%s" stroke-width="%g"/>
`, a.X, a.Y, b.X, b.Y, stroke, width)
}

// Circle draws a filled disc.
func (c *SVGCanvas) Circle(p r2.Vec, r float64, fill string) {
	fmt.Fprintf(&c.buf, `<circle cx="%g" cy="%g" r="%g" fill="%s"/>
`, p.X, p.Y, r, fill)
}

// Text draws a label.
func (c *SVGCanvas) Text(p r2.Vec, size float64, fill, text string) {
	fmt.Fprintf(&c.buf, `<text x="%g" y="%g" font-family="sans-serif" font-size="%g" fill="%s">%s</text>
`, p.X, p.Y, size, fill, html.EscapeString(text))
}

// End closes the document.
func (c *SVGCanvas) End() ([]byte, error) {
	c.buf.WriteString("</g>\n</svg>")
	out := make([]byte, c.buf.Len())
	copy(out, c.buf.Bytes())
	return out, nil
}

// ContentType returns the SVG MIME type.
func (c *SVGCanvas) ContentType() string {
	return "image/svg+xml"
}

// ASCIICanvas outputs ASCII art for terminals. Fills map to symbols through
// the palette it was created with.
type ASCIICanvas struct {
	grid    [][]rune
	vp      Viewport
	width   float64
	height  float64
	symbols map[string]rune
}

// NewASCIICanvas creates an ASCII canvas that knows the palette's fills.
func NewASCIICanvas(p Palette) *ASCIICanvas {
	return &ASCIICanvas{
		symbols: map[string]rune{
			p.Highlight: '*',
			p.Added:     '+',
			p.Deleted:   'x',
			p.Modified:  '~',
			p.Unknown:   'o',
		},
	}
}

// Begin allocates the character grid with a border.
func (c *ASCIICanvas) Begin(width, height float64, vp Viewport, _ string) {
	c.vp, c.width, c.height = vp, width, height

	cols := max(int(width/10), 40)
	rows := max(int(height/20), 20)
	c.grid = make([][]rune, rows)
	for i := range c.grid {
		c.grid[i] = make([]rune, cols)
		for j := range c.grid[i] {
			c.grid[i][j] = ' '
		}
	}
	for i := 0; i < cols; i++ {
		c.grid[0][i] = '-'
		c.grid[rows-1][i] = '-'
	}
	for i := 0; i < rows; i++ {
		c.grid[i][0] = '|'
		c.grid[i][cols-1] = '|'
	}
	c.grid[0][0], c.grid[0][cols-1] = '+', '+'
	c.grid[rows-1][0], c.grid[rows-1][cols-1] = '+', '+'
}

func (c *ASCIICanvas) cell(p r2.Vec) (int, int, bool) {
	s := c.vp.ToScreen(p)
	rows, cols := len(c.grid), len(c.grid[0])
	x := int(s.X*float64(cols-2)/c.width) + 1
	y := int(s.Y*float64(rows-2)/c.height) + 1
	if x < 1 || x > cols-2 || y < 1 || y > rows-2 {
		return x, y, false
	}
	return x, y, true
}

// Line draws a dotted segment using Bresenham's algorithm. Cells already
// holding something other than blank are left alone.
func (c *ASCIICanvas) Line(a, b r2.Vec, _ string, _ float64) {
	rows, cols := len(c.grid), len(c.grid[0])
	x1, y1, _ := c.cell(a)
	x2, y2, _ := c.cell(b)
	x1, y1 = clamp(x1, 1, cols-2), clamp(y1, 1, rows-2)
	x2, y2 = clamp(x2, 1, cols-2), clamp(y2, 1, rows-2)

	dx := abs(x2 - x1)
	dy := -abs(y2 - y1)
	sx, sy := 1, 1
	if x1 >= x2 {
		sx = -1
	}
	if y1 >= y2 {
		sy = -1
	}
	err := dx + dy
	for {
		if c.grid[y1][x1] == ' ' {
			c.grid[y1][x1] = '·'
		}
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x1 += sx
		}
		if e2 <= dx {
			err += dx
			y1 += sy
		}
	}
}

// Circle plots a node symbol.
func (c *ASCIICanvas) Circle(p r2.Vec, _ float64, fill string) {
	x, y, ok := c.cell(p)
	if !ok {
		return
	}
	sym, found := c.symbols[fill]
	if !found {
		sym = 'o'
	}
	c.grid[y][x] = sym
}

// Text writes a label starting at p, clipped to the border.
func (c *ASCIICanvas) Text(p r2.Vec, _ float64, _ string, text string) {
	x, y, ok := c.cell(p)
	if !ok {
		return
	}
	cols := len(c.grid[0])
	for _, r := range text {
		if x >= cols-1 {
			break
		}
		c.grid[y][x] = r
		x++
	}
}

// End joins the grid rows.
func (c *ASCIICanvas) End() ([]byte, error) {
	var b strings.Builder
	for _, row := range c.grid {
		b.WriteString(string(row))
		b.WriteRune('\n')
	}
	return []byte(b.String()), nil
}

// ContentType returns the plain text MIME type.
func (c *ASCIICanvas) ContentType() string {
	return "text/plain; charset=utf-8"
}

// Op is one recorded drawing primitive.
type Op struct {
	Kind   string   `json:"kind"`
	Points []r2.Vec `json:"points"`
	Radius float64  `json:"radius,omitempty"`
	Color  string   `json:"color"`
	Size   float64  `json:"size,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// JSONCanvas records primitives and encodes them as JSON, for clients that
// draw frames themselves.
type JSONCanvas struct {
	Width      float64  `json:"width"`
	Height     float64  `json:"height"`
	Viewport   Viewport `json:"viewport"`
	Background string   `json:"background"`
	Ops        []Op     `json:"ops"`
}

// Begin resets the recording.
func (c *JSONCanvas) Begin(width, height float64, vp Viewport, background string) {
	c.Width, c.Height, c.Viewport, c.Background = width, height, vp, background
	c.Ops = c.Ops[:0]
}

// Line records a line.
func (c *JSONCanvas) Line(a, b r2.Vec, stroke string, width float64) {
	c.Ops = append(c.Ops, Op{Kind: "line", Points: []r2.Vec{a, b}, Color: stroke, Size: width})
}

// Circle records a disc.
func (c *JSONCanvas) Circle(p r2.Vec, r float64, fill string) {
	c.Ops = append(c.Ops, Op{Kind: "circle", Points: []r2.Vec{p}, Radius: r, Color: fill})
}

// Text records a label.
func (c *JSONCanvas) Text(p r2.Vec, size float64, fill, text string) {
	c.Ops = append(c.Ops, Op{Kind: "text", Points: []r2.Vec{p}, Color: fill, Size: size, Text: text})
}

// End encodes the recorded frame.
func (c *JSONCanvas) End() ([]byte, error) {
	return json.Marshal(c)
}

// ContentType returns the JSON MIME type.
func (c *JSONCanvas) ContentType() string {
	return "application/json"
}

// Clamp a value between lo and hi
func clamp(val, lo, hi int) int {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}

// Absolute value of an integer
func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
