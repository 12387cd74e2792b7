package physics

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Len returns the number of particles.
func (s State) Len() int {
	return len(s.Particles)
}

// Index returns the particle index for a node id.
func (s State) Index(id string) (int, bool) {
	i, ok := s.index[id]
	return i, ok
}

// Particle returns the particle for a node id.
func (s State) Particle(id string) (Particle, bool) {
	i, ok := s.index[id]
	if !ok {
		return Particle{}, false
	}
	return s.Particles[i], true
}

// Pin fixes a particle at p. The next Tick moves it there and keeps it
// there, whatever the forces, until Unpin.
func (s State) Pin(id string, p r2.Vec) (State, bool) {
	i, ok := s.index[id]
	if !ok {
		return s, false
	}
	next := s.clone()
	next.Particles[i].Pin = p
	next.Particles[i].Pinned = true
	return next, true
}

// Unpin releases a particle back to free motion.
func (s State) Unpin(id string) (State, bool) {
	i, ok := s.index[id]
	if !ok || !s.Particles[i].Pinned {
		return s, false
	}
	next := s.clone()
	next.Particles[i].Pin = r2.Vec{}
	next.Particles[i].Pinned = false
	return next, true
}

// WithAlphaTarget returns the state with a new temperature target. A target
// above the stop threshold keeps the simulation ticking.
func (s State) WithAlphaTarget(target float64) State {
	s.AlphaTarget = target
	return s
}

// Bounds returns the box enclosing every particle position.
func (s State) Bounds() (r2.Box, bool) {
	if len(s.Particles) == 0 {
		return r2.Box{}, false
	}
	box := r2.Box{
		Min: r2.Vec{X: math.Inf(1), Y: math.Inf(1)},
		Max: r2.Vec{X: math.Inf(-1), Y: math.Inf(-1)},
	}
	for _, p := range s.Particles {
		box.Min.X = math.Min(box.Min.X, p.Pos.X)
		box.Min.Y = math.Min(box.Min.Y, p.Pos.Y)
		box.Max.X = math.Max(box.Max.X, p.Pos.X)
		box.Max.Y = math.Max(box.Max.Y, p.Pos.Y)
	}
	return box, true
}

// Positions returns a copy of every particle position keyed by node id.
func (s State) Positions() map[string]r2.Vec {
	out := make(map[string]r2.Vec, len(s.Particles))
	for _, p := range s.Particles {
		out[p.ID] = p.Pos
	}
	return out
}
