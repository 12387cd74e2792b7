package physics

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// maxDepth bounds subdivision so nearly coincident particles end up sharing
// a leaf instead of recursing without limit.
const maxDepth = 32

// quad is a Barnes-Hut cell. Leaves hold particle indices; internal cells
// hold four children. value is the summed charge of everything below and
// center its charge-weighted centroid.
type quad struct {
	x0, y0, x1, y1 float64
	children       [4]*quad
	points         []int
	value          float64
	center         r2.Vec
}

func (q *quad) leaf() bool {
	return q.children == [4]*quad{}
}

// buildQuadtree indexes positions in a square covering all of them, then
// accumulates charges bottom-up.
func buildQuadtree(pos []r2.Vec, charge float64) *quad {
	if len(pos) == 0 {
		return nil
	}
	x0, y0 := math.Inf(1), math.Inf(1)
	x1, y1 := math.Inf(-1), math.Inf(-1)
	for _, p := range pos {
		x0, y0 = math.Min(x0, p.X), math.Min(y0, p.Y)
		x1, y1 = math.Max(x1, p.X), math.Max(y1, p.Y)
	}
	size := math.Max(x1-x0, y1-y0)
	if size == 0 {
		size = 1
	}
	root := &quad{x0: x0, y0: y0, x1: x0 + size, y1: y0 + size}
	for i := range pos {
		root.insert(pos, i, 0)
	}
	root.accumulate(pos, charge)
	return root
}

func (q *quad) insert(pos []r2.Vec, i, depth int) {
	if !q.leaf() {
		q.children[q.quadrant(pos[i])].insert(pos, i, depth+1)
		return
	}
	if len(q.points) == 0 || depth >= maxDepth || pos[q.points[0]] == pos[i] {
		q.points = append(q.points, i)
		return
	}

	xm, ym := (q.x0+q.x1)/2, (q.y0+q.y1)/2
	q.children = [4]*quad{
		{x0: q.x0, y0: q.y0, x1: xm, y1: ym},
		{x0: xm, y0: q.y0, x1: q.x1, y1: ym},
		{x0: q.x0, y0: ym, x1: xm, y1: q.y1},
		{x0: xm, y0: ym, x1: q.x1, y1: q.y1},
	}
	existing := q.points
	q.points = nil
	for _, j := range existing {
		q.children[q.quadrant(pos[j])].insert(pos, j, depth+1)
	}
	q.children[q.quadrant(pos[i])].insert(pos, i, depth+1)
}

func (q *quad) contains(p r2.Vec) bool {
	return p.X >= q.x0 && p.X <= q.x1 && p.Y >= q.y0 && p.Y <= q.y1
}

func (q *quad) quadrant(p r2.Vec) int {
	xm, ym := (q.x0+q.x1)/2, (q.y0+q.y1)/2
	i := 0
	if p.X >= xm {
		i |= 1
	}
	if p.Y >= ym {
		i |= 2
	}
	return i
}

func (q *quad) accumulate(pos []r2.Vec, charge float64) {
	if q.leaf() {
		q.value = charge * float64(len(q.points))
		if len(q.points) > 0 {
			q.center = pos[q.points[0]]
		}
		return
	}

	var weight float64
	var sum r2.Vec
	for _, c := range q.children {
		c.accumulate(pos, charge)
		if c.value == 0 {
			continue
		}
		w := math.Abs(c.value)
		q.value += c.value
		weight += w
		sum = r2.Add(sum, r2.Scale(w, c.center))
	}
	if weight > 0 {
		q.center = r2.Scale(1/weight, sum)
	}
}
