// Package highlight holds the set of node ids the render surface paints in
// the highlight color. Replacing the set never touches the simulation.
package highlight

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/TFMV/specgraph/models"
)

// Policy decides what happens to highlights that belong to an older
// snapshot.
type Policy string

const (
	// PolicyInert keeps highlight sets across snapshot replacement and applies
	// late query responses; ids missing from the new snapshot simply match
	// nothing.
	PolicyInert Policy = "inert"
	// PolicyDiscard clears the set when the snapshot is replaced and drops
	// responses to queries issued against an older snapshot.
	PolicyDiscard Policy = "discard"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyInert, PolicyDiscard:
		return Policy(s), nil
	case "":
		return PolicyInert, nil
	}
	return "", fmt.Errorf("unknown stale highlight policy %q", s)
}

// Reconciler owns the current HighlightSet. The set is swapped atomically,
// so a frame sees either the old or the new set in full.
type Reconciler struct {
	current    atomic.Pointer[models.HighlightSet]
	generation atomic.Uint64
	policy     Policy
	onChange   func()
	logger     *zap.Logger
}

// NewReconciler creates a reconciler with an empty set. onChange, if set, is
// called after every replacement so the owner can schedule a redraw.
func NewReconciler(policy Policy, onChange func(), logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reconciler{policy: policy, onChange: onChange, logger: logger}
	empty := models.NewHighlightSet()
	r.current.Store(&empty)
	return r
}

// Policy returns the stale highlight policy.
func (r *Reconciler) Policy() Policy {
	return r.policy
}

// Current returns the set to render.
func (r *Reconciler) Current() models.HighlightSet {
	return *r.current.Load()
}

// Set replaces the highlight set wholesale.
func (r *Reconciler) Set(ids []string) {
	set := models.NewHighlightSet(ids...)
	r.current.Store(&set)
	r.logger.Debug("highlight replaced", zap.Int("ids", set.Len()))
	if r.onChange != nil {
		r.onChange()
	}
}

// Apply handles a query response issued while snapshot generation issuedAt
// was displayed. It reports whether the set was replaced.
func (r *Reconciler) Apply(ids []string, issuedAt uint64) bool {
	if r.policy == PolicyDiscard && issuedAt != r.generation.Load() {
		r.logger.Info("dropping stale highlight",
			zap.Uint64("issued_at", issuedAt),
			zap.Uint64("generation", r.generation.Load()),
			zap.Int("ids", len(ids)),
		)
		return false
	}
	r.Set(ids)
	return true
}

// Generation returns the snapshot generation the reconciler last saw.
func (r *Reconciler) Generation() uint64 {
	return r.generation.Load()
}

// SnapshotReplaced records a new snapshot generation. Under PolicyDiscard
// the current set is cleared.
func (r *Reconciler) SnapshotReplaced(generation uint64) {
	r.generation.Store(generation)
	if r.policy == PolicyDiscard && r.Current().Len() > 0 {
		r.Set(nil)
	}
}
