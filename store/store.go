// Package store implements the graph data store: it owns the current
// snapshot and its loading and error state.
package store

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/TFMV/specgraph/apperr"
	"github.com/TFMV/specgraph/metrics"
	"github.com/TFMV/specgraph/models"
)

var errEmptyResponse = errors.New("collaborator returned no snapshot")

// Fetcher obtains a sanitized snapshot from the graph-data collaborator.
// Warnings report links dropped during sanitization.
type Fetcher interface {
	FetchGraph(ctx context.Context) (snap *models.Snapshot, warnings []error, err error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) (*models.Snapshot, []error, error)

// FetchGraph calls f.
func (f FetcherFunc) FetchGraph(ctx context.Context) (*models.Snapshot, []error, error) {
	return f(ctx)
}

// Result is the outcome of one fetch, ready to be accepted.
type Result struct {
	Snapshot *models.Snapshot
	Warnings []error
	Err      error
}

// Update is delivered to subscribers whenever a snapshot is accepted.
type Update struct {
	Snapshot   *models.Snapshot
	Generation uint64
}

// Store holds the authoritative snapshot. Every successful load replaces
// it and bumps the generation, even when the new snapshot is identical.
type Store struct {
	fetcher Fetcher
	logger  *zap.Logger

	mu          sync.RWMutex
	snapshot    *models.Snapshot
	generation  uint64
	err         error
	loading     bool
	subscribers []func(Update)
}

// New creates an empty store.
func New(fetcher Fetcher, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{fetcher: fetcher, logger: logger}
}

// Subscribe registers fn to be called after each accepted snapshot.
// Callbacks run on the goroutine that accepted the snapshot.
func (s *Store) Subscribe(fn func(Update)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Fetch asks the collaborator for a snapshot without changing the store
// beyond its loading flag. The result is handed to Accept.
func (s *Store) Fetch(ctx context.Context) Result {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	snap, warnings, err := s.fetcher.FetchGraph(ctx)
	if err != nil && apperr.KindOf(err) == "" {
		err = apperr.Fetch("load graph", err)
	}
	return Result{Snapshot: snap, Warnings: warnings, Err: err}
}

// Accept applies a fetch result. On success the snapshot replaces the
// current one and subscribers are notified; on failure the last good
// snapshot is kept and the error is exposed through Err.
func (s *Store) Accept(res Result) (*models.Snapshot, error) {
	if res.Err == nil && res.Snapshot == nil {
		res.Err = apperr.Fetch("load graph", errEmptyResponse)
	}

	s.mu.Lock()
	s.loading = false
	if res.Err != nil {
		s.err = res.Err
		kept := s.snapshot
		s.mu.Unlock()

		metrics.GraphLoads.WithLabelValues(metrics.Outcome(res.Err)).Inc()
		s.logger.Warn("graph load failed, keeping last snapshot",
			zap.Error(res.Err),
			zap.Bool("has_snapshot", kept != nil),
		)
		return kept, res.Err
	}

	s.snapshot = res.Snapshot
	s.err = nil
	s.generation++
	update := Update{Snapshot: res.Snapshot, Generation: s.generation}
	subs := append([]func(Update){}, s.subscribers...)
	s.mu.Unlock()

	metrics.GraphLoads.WithLabelValues(metrics.Outcome(nil)).Inc()
	metrics.GraphNodes.Set(float64(len(res.Snapshot.Nodes)))
	metrics.MalformedLinks.Add(float64(len(res.Warnings)))
	for _, w := range res.Warnings {
		s.logger.Warn("dropped malformed link", zap.Error(w))
	}
	s.logger.Info("graph snapshot accepted",
		zap.Uint64("generation", update.Generation),
		zap.Int("nodes", len(res.Snapshot.Nodes)),
		zap.Int("links", len(res.Snapshot.Links)),
	)

	for _, fn := range subs {
		fn(update)
	}
	return res.Snapshot, nil
}

// Load fetches and accepts a snapshot in one step.
func (s *Store) Load(ctx context.Context) (*models.Snapshot, error) {
	return s.Accept(s.Fetch(ctx))
}

// Snapshot returns the current snapshot, or nil before the first success.
func (s *Store) Snapshot() *models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Generation counts accepted snapshots.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Err returns the error of the most recent load, or nil if it succeeded.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Failed reports whether the most recent load failed.
func (s *Store) Failed() bool {
	return s.Err() != nil
}

// Loading reports whether a fetch is outstanding.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}
