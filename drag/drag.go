// Package drag turns pointer input into pin overrides on a simulation.
//
// The controller has exactly two phases. Idle moves to Dragging on a
// pointer-down over a node; Dragging returns to Idle on pointer-up or
// pointer-cancel. Only one node can be dragged at a time: a pointer-down
// while Dragging is ignored.
package drag

import (
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/TFMV/specgraph/physics"
)

// Phase is the controller state.
type Phase int

const (
	Idle Phase = iota
	Dragging
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Kind identifies a pointer event.
type Kind string

const (
	Down   Kind = "down"
	Move   Kind = "move"
	Up     Kind = "up"
	Cancel Kind = "cancel"
)

// Event is a pointer event in graph-space coordinates.
type Event struct {
	Kind Kind
	Pos  r2.Vec
}

// Controller is the drag state machine. It is not safe for concurrent use;
// the frame loop owns it.
type Controller struct {
	phase       Phase
	nodeID      string
	last        r2.Vec
	hitRadius   float64
	alphaTarget float64
	logger      *zap.Logger
}

// NewController creates an idle controller. hitRadius is the grab distance
// around a node center in graph units; alphaTarget is the temperature held
// while dragging.
func NewController(hitRadius, alphaTarget float64, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		hitRadius:   hitRadius,
		alphaTarget: alphaTarget,
		logger:      logger,
	}
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	return c.phase
}

// Grabbed returns the dragged node id and the last pointer position.
func (c *Controller) Grabbed() (string, r2.Vec, bool) {
	if c.phase != Dragging {
		return "", r2.Vec{}, false
	}
	return c.nodeID, c.last, true
}

// Handle dispatches ev and reports whether the state changed.
func (c *Controller) Handle(s physics.State, ev Event) (physics.State, bool) {
	switch ev.Kind {
	case Down:
		return c.PointerDown(s, ev.Pos)
	case Move:
		return c.PointerMove(s, ev.Pos)
	case Up, Cancel:
		return c.PointerUp(s)
	}
	return s, false
}

// PointerDown grabs the node under p, pins it there and raises the
// temperature target.
func (c *Controller) PointerDown(s physics.State, p r2.Vec) (physics.State, bool) {
	if c.phase == Dragging {
		return s, false
	}
	id, ok := HitTest(s, p, c.hitRadius)
	if !ok {
		return s, false
	}
	next, ok := s.Pin(id, p)
	if !ok {
		return s, false
	}

	c.phase = Dragging
	c.nodeID = id
	c.last = p
	c.logger.Debug("drag started", zap.String("node", id), zap.Float64("x", p.X), zap.Float64("y", p.Y))
	return next.WithAlphaTarget(c.alphaTarget), true
}

// PointerMove moves the pin of the dragged node to p.
func (c *Controller) PointerMove(s physics.State, p r2.Vec) (physics.State, bool) {
	if c.phase != Dragging {
		return s, false
	}
	next, ok := s.Pin(c.nodeID, p)
	if !ok {
		return s, false
	}
	c.last = p
	return next, true
}

// PointerUp releases the dragged node and lets the simulation cool.
func (c *Controller) PointerUp(s physics.State) (physics.State, bool) {
	if c.phase != Dragging {
		return s, false
	}
	id := c.nodeID
	c.Reset()

	next, _ := s.Unpin(id)
	c.logger.Debug("drag ended", zap.String("node", id))
	return next.WithAlphaTarget(0), true
}

// Reset drops any active drag without touching a state. Used when the
// snapshot is replaced and the dragged particle no longer exists.
func (c *Controller) Reset() {
	c.phase = Idle
	c.nodeID = ""
	c.last = r2.Vec{}
}

// HitTest returns the node whose disc of the given radius contains p. Later
// particles are drawn on top, so they win ties.
func HitTest(s physics.State, p r2.Vec, radius float64) (string, bool) {
	r2max := radius * radius
	for i := len(s.Particles) - 1; i >= 0; i-- {
		if r2.Norm2(r2.Sub(s.Particles[i].Pos, p)) <= r2max {
			return s.Particles[i].ID, true
		}
	}
	return "", false
}
