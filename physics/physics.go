// Package physics implements the force-directed layout used by the graph
// view. A simulation is an explicit State value advanced by Engine.Tick,
// which never mutates its input.
package physics

import (
	"context"
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/TFMV/specgraph/models"
)

// Params holds the simulation constants.
type Params struct {
	Center         r2.Vec  // point the centroid is pulled toward
	LinkDistance   float64 // rest length for links without their own
	Charge         float64 // many-body strength; negative repels
	Theta          float64 // Barnes-Hut accuracy; 0 is exact
	DistanceMin    float64 // charge softening distance
	AlphaMin       float64 // temperature below which ticking halts
	AlphaDecay     float64 // fraction of the gap to the target closed per tick
	VelocityDecay  float64 // friction applied to velocities per tick
	CenterStrength float64
	MaxTicks       int
}

// DefaultParams returns parameters matching the usual d3-force defaults,
// with a weak centering force.
func DefaultParams() Params {
	return Params{
		LinkDistance:   30,
		Charge:         -30,
		Theta:          0.9,
		DistanceMin:    1,
		AlphaMin:       0.001,
		AlphaDecay:     1 - math.Pow(0.001, 1.0/300),
		VelocityDecay:  0.4,
		CenterStrength: 0.1,
		MaxTicks:       1000,
	}
}

// Particle is a node with live physical state. While Pinned, Pos is forced
// to Pin every tick.
type Particle struct {
	ID     string
	Type   models.NodeType
	Pos    r2.Vec
	Vel    r2.Vec
	Pin    r2.Vec
	Pinned bool
}

// Spring is a sanitized link between two particle indices.
type Spring struct {
	Source, Target int
	RestLength     float64
	Strength       float64
	Bias           float64
}

// State is one frame of a simulation. Values are cheap to copy; every
// transition returns a new State and leaves the receiver untouched.
type State struct {
	Particles   []Particle
	Springs     []Spring
	Alpha       float64
	AlphaTarget float64
	Ticks       int

	index map[string]int
}

// Engine advances simulations. It holds only parameters, so one Engine can
// drive any number of States.
type Engine struct {
	params Params
	noise  opensimplex.Noise
}

// NewEngine creates an engine with the given parameters.
func NewEngine(params Params) *Engine {
	return &Engine{
		params: params,
		noise:  opensimplex.New(1),
	}
}

// Params returns the engine parameters.
func (e *Engine) Params() Params {
	return e.params
}

// Initialize seeds a fresh State from a snapshot. Particles start on a
// phyllotaxis spiral around the center with zero velocity and alpha 1.
// The snapshot is assumed sanitized; springs with unknown endpoints are
// skipped regardless.
func (e *Engine) Initialize(snap *models.Snapshot) State {
	s := State{
		Alpha: 1,
		index: make(map[string]int, len(snap.Nodes)),
	}

	goldenAngle := math.Pi * (3 - math.Sqrt(5))
	s.Particles = make([]Particle, 0, len(snap.Nodes))
	for i, n := range snap.Nodes {
		radius := 10 * math.Sqrt(0.5+float64(i))
		angle := float64(i) * goldenAngle
		s.index[n.ID] = len(s.Particles)
		s.Particles = append(s.Particles, Particle{
			ID:   n.ID,
			Type: n.Type,
			Pos:  r2.Add(e.params.Center, r2.Vec{X: radius * math.Cos(angle), Y: radius * math.Sin(angle)}),
		})
	}

	degree := make([]int, len(s.Particles))
	for _, l := range snap.Links {
		src, okSrc := s.index[l.Source]
		dst, okDst := s.index[l.Target]
		if !okSrc || !okDst {
			continue
		}
		rest := l.RestLength
		if rest <= 0 {
			rest = e.params.LinkDistance
		}
		degree[src]++
		degree[dst]++
		s.Springs = append(s.Springs, Spring{Source: src, Target: dst, RestLength: rest})
	}
	for i := range s.Springs {
		sp := &s.Springs[i]
		ds, dt := float64(degree[sp.Source]), float64(degree[sp.Target])
		sp.Strength = 1 / math.Min(ds, dt)
		sp.Bias = ds / (ds + dt)
	}

	return s
}

// Active reports whether Tick would move anything: either the temperature
// is above the stop threshold or a drag is holding the target up.
func (e *Engine) Active(s State) bool {
	return s.Alpha >= e.params.AlphaMin || s.AlphaTarget >= e.params.AlphaMin
}

// Tick advances the simulation by one step. A halted State is returned as is.
func (e *Engine) Tick(s State) State {
	if !e.Active(s) {
		return s
	}

	next := s.clone()
	alpha := s.Alpha
	p := next.Particles

	if len(p) > 0 {
		e.applyLinks(next, alpha)
		e.applyCharge(next, alpha)
		e.applyCenter(next)
	}

	for i := range p {
		if p[i].Pinned {
			p[i].Pos = p[i].Pin
			p[i].Vel = r2.Vec{}
			continue
		}
		p[i].Vel = r2.Scale(1-e.params.VelocityDecay, p[i].Vel)
		p[i].Pos = r2.Add(p[i].Pos, p[i].Vel)
	}

	next.Alpha += (next.AlphaTarget - next.Alpha) * e.params.AlphaDecay
	next.Ticks++
	return next
}

// Run ticks until the simulation halts, MaxTicks is reached or ctx is done.
// It reports whether the simulation came to rest.
func (e *Engine) Run(ctx context.Context, s State) (State, bool, error) {
	for i := 0; e.params.MaxTicks <= 0 || i < e.params.MaxTicks; i++ {
		if !e.Active(s) {
			return s, true, nil
		}
		if err := ctx.Err(); err != nil {
			return s, false, err
		}
		s = e.Tick(s)
	}
	return s, !e.Active(s), nil
}

// applyLinks pulls each spring toward its rest length, predicting
// positions one step ahead from current velocities.
func (e *Engine) applyLinks(s State, alpha float64) {
	p := s.Particles
	for i, sp := range s.Springs {
		src, dst := &p[sp.Source], &p[sp.Target]
		d := r2.Sub(r2.Add(dst.Pos, dst.Vel), r2.Add(src.Pos, src.Vel))
		if d.X == 0 {
			d.X = e.jiggle(i, s.Ticks)
		}
		if d.Y == 0 {
			d.Y = e.jiggle(i+1, s.Ticks)
		}
		l := r2.Norm(d)
		l = (l - sp.RestLength) / l * alpha * sp.Strength
		d = r2.Scale(l, d)
		dst.Vel = r2.Sub(dst.Vel, r2.Scale(sp.Bias, d))
		src.Vel = r2.Add(src.Vel, r2.Scale(1-sp.Bias, d))
	}
}

// applyCharge applies mutual repulsion through a Barnes-Hut quadtree.
func (e *Engine) applyCharge(s State, alpha float64) {
	if e.params.Charge == 0 {
		return
	}
	p := s.Particles
	pos := make([]r2.Vec, len(p))
	for i := range p {
		pos[i] = p[i].Pos
	}
	root := buildQuadtree(pos, e.params.Charge)
	theta2 := e.params.Theta * e.params.Theta
	distMin2 := e.params.DistanceMin * e.params.DistanceMin

	for i := range p {
		dv := e.chargeOn(root, pos, i, alpha, theta2, distMin2, s.Ticks)
		p[i].Vel = r2.Add(p[i].Vel, dv)
	}
}

func (e *Engine) chargeOn(q *quad, pos []r2.Vec, i int, alpha, theta2, distMin2 float64, tick int) r2.Vec {
	if q == nil || q.value == 0 {
		return r2.Vec{}
	}
	d := r2.Sub(q.center, pos[i])
	l := r2.Norm2(d)
	w := q.x1 - q.x0

	if theta2 > 0 && w*w/theta2 < l && !q.contains(pos[i]) {
		if l < distMin2 {
			l = math.Sqrt(distMin2 * l)
		}
		return r2.Scale(q.value*alpha/l, d)
	}

	var dv r2.Vec
	if !q.leaf() {
		for _, c := range q.children {
			dv = r2.Add(dv, e.chargeOn(c, pos, i, alpha, theta2, distMin2, tick))
		}
		return dv
	}

	for _, j := range q.points {
		if j == i {
			continue
		}
		d := r2.Sub(pos[j], pos[i])
		if d.X == 0 {
			d.X = e.jiggle(i, tick)
		}
		if d.Y == 0 {
			d.Y = e.jiggle(j, tick)
		}
		l := r2.Norm2(d)
		if l < distMin2 {
			l = math.Sqrt(distMin2 * l)
		}
		dv = r2.Add(dv, r2.Scale(e.params.Charge*alpha/l, d))
	}
	return dv
}

// applyCenter translates every particle so the centroid moves toward the
// center point.
func (e *Engine) applyCenter(s State) {
	if e.params.CenterStrength == 0 {
		return
	}
	p := s.Particles
	var sum r2.Vec
	for i := range p {
		sum = r2.Add(sum, p[i].Pos)
	}
	shift := r2.Scale(e.params.CenterStrength, r2.Sub(r2.Scale(1/float64(len(p)), sum), e.params.Center))
	for i := range p {
		p[i].Pos = r2.Sub(p[i].Pos, shift)
	}
}

// jiggle returns a tiny deterministic offset used to separate coincident
// particles.
func (e *Engine) jiggle(i, tick int) float64 {
	v := e.noise.Eval2(float64(i)*0.37+0.11, float64(tick)*0.53+0.29) * 1e-6
	if v == 0 {
		v = 1e-7
	}
	return v
}

// clone copies the particles so the receiver stays untouched. Springs and
// the id index never change after Initialize and are shared.
func (s State) clone() State {
	next := s
	next.Particles = make([]Particle, len(s.Particles))
	copy(next.Particles, s.Particles)
	return next
}
