package scene

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/TFMV/specgraph/apperr"
	"github.com/TFMV/specgraph/drag"
	"github.com/TFMV/specgraph/highlight"
	"github.com/TFMV/specgraph/models"
	"github.com/TFMV/specgraph/store"
)

// scriptedFetcher returns its responses in order and repeats the last one.
type scriptedFetcher struct {
	mu        sync.Mutex
	responses []store.Result
	calls     int
}

func (f *scriptedFetcher) FetchGraph(ctx context.Context) (*models.Snapshot, []error, error) {
	f.mu.Lock()
	i := min(f.calls, len(f.responses)-1)
	f.calls++
	r := f.responses[i]
	f.mu.Unlock()
	return r.Snapshot, r.Warnings, r.Err
}

type fakeQuerier struct {
	result  *models.QueryResult
	err     error
	started chan struct{}
	release chan struct{}
}

func (q *fakeQuerier) Query(ctx context.Context, text string) (*models.QueryResult, error) {
	if q.started != nil {
		close(q.started)
	}
	if q.release != nil {
		<-q.release
	}
	return q.result, q.err
}

func abSnapshot() *models.Snapshot {
	snap, _ := models.NewSnapshot(
		[]models.Node{{ID: "a", Type: models.TypeAdded}, {ID: "b", Type: models.TypeDeleted}},
		[]models.Link{{Source: "a", Target: "b"}},
	)
	return snap
}

func newScene(t *testing.T, f store.Fetcher, q Querier, policy highlight.Policy) *Scene {
	t.Helper()
	opts := DefaultOptions()
	opts.Width, opts.Height = 400, 300
	opts.Format = "json"
	opts.Policy = policy
	s, err := New(store.New(f, nil), q, opts, nil)
	require.NoError(t, err)
	return s
}

// runNext executes one task posted to the frame loop, standing in for Run.
func runNext(t *testing.T, s *Scene) {
	t.Helper()
	select {
	case fn := <-s.tasks:
		fn()
	case <-time.After(5 * time.Second):
		t.Fatal("no task posted to the frame loop")
	}
}

func load(t *testing.T, s *Scene) {
	t.Helper()
	var got error
	s.startFetch(func(err error) { got = err })
	runNext(t, s)
	require.NoError(t, got)
}

func settle(t *testing.T, s *Scene) {
	t.Helper()
	for i := 0; i < 2000 && s.engine.Active(s.state); i++ {
		s.step()
	}
	require.False(t, s.engine.Active(s.state))
}

func positions(s *Scene) map[string]r2.Vec {
	return s.state.Positions()
}

func TestReloadSeedsSimulation(t *testing.T) {
	s := newScene(t, &scriptedFetcher{responses: []store.Result{{Snapshot: abSnapshot()}}}, nil, highlight.PolicyInert)
	load(t, s)

	st := s.status()
	assert.Equal(t, 2, st.Nodes)
	assert.Equal(t, 1, st.Links)
	assert.Equal(t, 1.0, st.Alpha)
	assert.True(t, st.Active)
	assert.Equal(t, uint64(1), st.Generation)
	assert.True(t, s.fitOnRest)

	for _, p := range s.state.Particles {
		sp := s.rc.Viewport.ToScreen(p.Pos)
		assert.True(t, sp.X >= 0 && sp.X <= 400 && sp.Y >= 0 && sp.Y <= 300, "node %s off screen", p.ID)
	}
}

func TestStepConvergesAndRefits(t *testing.T) {
	s := newScene(t, &scriptedFetcher{responses: []store.Result{{Snapshot: abSnapshot()}}}, nil, highlight.PolicyInert)
	load(t, s)

	settle(t, s)
	assert.False(t, s.fitOnRest)
	assert.NotNil(t, s.frame)
	assert.Positive(t, s.frames)

	a, _ := s.state.Particle("a")
	b, _ := s.state.Particle("b")
	assert.InDelta(t, 200, (a.Pos.X+b.Pos.X)/2, 1)
	assert.InDelta(t, 150, (a.Pos.Y+b.Pos.Y)/2, 1)
}

func TestRestingSceneRedrawsOnlyOnHighlight(t *testing.T) {
	s := newScene(t, &scriptedFetcher{responses: []store.Result{{Snapshot: abSnapshot()}}}, nil, highlight.PolicyInert)
	load(t, s)
	settle(t, s)

	frames := s.frames
	s.step()
	assert.Equal(t, frames, s.frames)

	before := positions(s)
	ticks := s.state.Ticks
	s.highlights.Set([]string{"b"})
	s.step()

	assert.Equal(t, frames+1, s.frames)
	assert.Equal(t, ticks, s.state.Ticks)
	assert.Equal(t, before, positions(s))
	assert.Contains(t, string(s.frame), "#FFA500")
}

type frameResult struct {
	frame       []byte
	contentType string
	err         error
}

// frameOnLoop calls Frame from another goroutine and runs its task here.
func frameOnLoop(t *testing.T, s *Scene) frameResult {
	t.Helper()
	ch := make(chan frameResult, 1)
	go func() {
		frame, contentType, err := s.Frame(context.Background())
		ch <- frameResult{frame: frame, contentType: contentType, err: err}
	}()
	runNext(t, s)
	return <-ch
}

func TestFrameReturnsLoopDrawing(t *testing.T) {
	s := newScene(t, &scriptedFetcher{responses: []store.Result{{Snapshot: abSnapshot()}}}, nil, highlight.PolicyInert)
	load(t, s)
	settle(t, s)

	frames := s.frames
	drawn := s.frame
	got := frameOnLoop(t, s)
	require.NoError(t, got.err)
	assert.Equal(t, "application/json", got.contentType)
	assert.Equal(t, drawn, got.frame)
	assert.Equal(t, frames, s.frames)

	s.highlights.Set([]string{"b"})
	got = frameOnLoop(t, s)
	require.NoError(t, got.err)
	assert.Equal(t, frames+1, s.frames)
	assert.Contains(t, string(got.frame), "#FFA500")

	s.step()
	assert.Equal(t, frames+1, s.frames)
}

func TestFormatIsNormalized(t *testing.T) {
	opts := DefaultOptions()
	opts.Width, opts.Height = 400, 300
	opts.Format = "TXT"
	s, err := New(store.New(&scriptedFetcher{responses: []store.Result{{Snapshot: abSnapshot()}}}, nil), nil, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, "ascii", s.Format())
}

func TestDragThroughScene(t *testing.T) {
	s := newScene(t, &scriptedFetcher{responses: []store.Result{{Snapshot: abSnapshot()}}}, nil, highlight.PolicyInert)
	load(t, s)
	settle(t, s)

	a, _ := s.state.Particle("a")
	phase := s.pointer(drag.Down, s.rc.Viewport.ToScreen(a.Pos))
	require.Equal(t, drag.Dragging, phase)
	assert.True(t, s.engine.Active(s.state))

	target := r2.Vec{X: a.Pos.X + 5, Y: a.Pos.Y + 5}
	s.pointer(drag.Move, s.rc.Viewport.ToScreen(target))
	for i := 0; i < 3; i++ {
		s.step()
		got, _ := s.state.Particle("a")
		assert.InDelta(t, target.X, got.Pos.X, 1e-9)
		assert.InDelta(t, target.Y, got.Pos.Y, 1e-9)
	}

	assert.Equal(t, drag.Idle, s.pointer(drag.Up, r2.Vec{}))
	held, _ := s.state.Particle("a")
	for i := 0; i < 5; i++ {
		s.step()
	}
	moved, _ := s.state.Particle("a")
	assert.NotEqual(t, held.Pos, moved.Pos)
	assert.False(t, moved.Pinned)
}

func TestPointerDownOnEmptySpaceIsIgnored(t *testing.T) {
	s := newScene(t, &scriptedFetcher{responses: []store.Result{{Snapshot: abSnapshot()}}}, nil, highlight.PolicyInert)
	load(t, s)

	assert.Equal(t, drag.Idle, s.pointer(drag.Down, r2.Vec{X: -1000, Y: -1000}))
	assert.Equal(t, drag.Idle, s.pointer(drag.Move, r2.Vec{}))
}

func TestFetchFailureKeepsLayout(t *testing.T) {
	f := &scriptedFetcher{responses: []store.Result{
		{Snapshot: abSnapshot()},
		{Err: errors.New("connection reset")},
	}}
	s := newScene(t, f, nil, highlight.PolicyInert)
	load(t, s)
	for i := 0; i < 10; i++ {
		s.step()
	}
	before := positions(s)
	ticks := s.state.Ticks

	var got error
	s.startFetch(func(err error) { got = err })
	runNext(t, s)

	assert.ErrorIs(t, got, apperr.ErrFetch)
	assert.Equal(t, before, positions(s))
	assert.Equal(t, ticks, s.state.Ticks)
	st := s.status()
	assert.NotEmpty(t, st.Error)
	assert.Equal(t, uint64(1), st.Generation)
}

func TestReplacementResetsDrag(t *testing.T) {
	s := newScene(t, &scriptedFetcher{responses: []store.Result{{Snapshot: abSnapshot()}}}, nil, highlight.PolicyInert)
	load(t, s)

	a, _ := s.state.Particle("a")
	require.Equal(t, drag.Dragging, s.pointer(drag.Down, s.rc.Viewport.ToScreen(a.Pos)))

	load(t, s)
	assert.Equal(t, drag.Idle, s.drag.Phase())
	assert.Equal(t, 1.0, s.state.Alpha)
	assert.Zero(t, s.state.AlphaTarget)
	for _, p := range s.state.Particles {
		assert.False(t, p.Pinned)
	}
}

func TestSupersededFetchIsDropped(t *testing.T) {
	first := make(chan struct{})
	calls := 0
	var mu sync.Mutex
	fetcher := store.FetcherFunc(func(ctx context.Context) (*models.Snapshot, []error, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(first)
			<-ctx.Done()
			return nil, nil, ctx.Err()
		}
		return abSnapshot(), nil, nil
	})
	s := newScene(t, fetcher, nil, highlight.PolicyInert)

	results := map[string]error{}
	s.startFetch(func(err error) { results["first"] = err })
	<-first
	s.startFetch(func(err error) { results["second"] = err })
	runNext(t, s)
	runNext(t, s)

	assert.ErrorIs(t, results["first"], ErrSuperseded)
	assert.NoError(t, results["second"])
	assert.Equal(t, uint64(1), s.store.Generation())
	assert.False(t, s.store.Failed())
}

func runScene(t *testing.T, s *Scene) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ctx
}

func TestAskAppliesHighlight(t *testing.T) {
	q := &fakeQuerier{result: &models.QueryResult{Answer: "b was removed", Highlight: []string{"b", "ghost"}}}
	s := newScene(t, &scriptedFetcher{responses: []store.Result{{Snapshot: abSnapshot()}}}, q, highlight.PolicyInert)
	ctx := runScene(t, s)

	require.NoError(t, s.Reload(ctx))
	answer, err := s.Ask(ctx, "what was removed?")
	require.NoError(t, err)
	assert.Equal(t, "b was removed", answer)

	st, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "ghost"}, st.Highlight)
	assert.Equal(t, 2, st.Nodes)

	frame, contentType, err := s.Snapshot(ctx, "svg")
	require.NoError(t, err)
	assert.Equal(t, "image/svg+xml", contentType)
	assert.Contains(t, string(frame), `fill="#FFA500"`)
	assert.Contains(t, string(frame), `fill="#34A853"`)
}

func TestAskFailureKeepsHighlight(t *testing.T) {
	q := &fakeQuerier{err: apperr.Query("POST /api/query", errors.New("timeout"))}
	s := newScene(t, &scriptedFetcher{responses: []store.Result{{Snapshot: abSnapshot()}}}, q, highlight.PolicyInert)
	ctx := runScene(t, s)
	s.highlights.Set([]string{"a"})

	answer, err := s.Ask(ctx, "anything")
	assert.Equal(t, FallbackAnswer, answer)
	assert.ErrorIs(t, err, apperr.ErrQuery)
	assert.Equal(t, []string{"a"}, s.highlights.Current().IDs())
}

func TestAskWithoutQuerier(t *testing.T) {
	s := newScene(t, &scriptedFetcher{responses: []store.Result{{Snapshot: abSnapshot()}}}, nil, highlight.PolicyInert)
	s.highlights.Set([]string{"a"})

	answer, err := s.Ask(context.Background(), "anything")
	assert.Equal(t, FallbackAnswer, answer)
	assert.ErrorIs(t, err, apperr.ErrQuery)
	assert.Equal(t, []string{"a"}, s.highlights.Current().IDs())
}

func TestLateHighlightPolicies(t *testing.T) {
	tests := []struct {
		policy highlight.Policy
		want   []string
	}{
		{policy: highlight.PolicyInert, want: []string{"a"}},
		{policy: highlight.PolicyDiscard, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			q := &fakeQuerier{
				result:  &models.QueryResult{Answer: "a", Highlight: []string{"a"}},
				started: make(chan struct{}),
				release: make(chan struct{}),
			}
			s := newScene(t, &scriptedFetcher{responses: []store.Result{{Snapshot: abSnapshot()}}}, q, tt.policy)
			ctx := runScene(t, s)
			require.NoError(t, s.Reload(ctx))

			asked := make(chan error, 1)
			go func() {
				_, err := s.Ask(ctx, "a?")
				asked <- err
			}()
			<-q.started
			require.NoError(t, s.Reload(ctx))
			close(q.release)
			require.NoError(t, <-asked)

			st, err := s.Status(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint64(2), st.Generation)
			if len(tt.want) == 0 {
				assert.Empty(t, st.Highlight)
			} else {
				assert.Equal(t, tt.want, st.Highlight)
			}
		})
	}
}

func TestOfflineRender(t *testing.T) {
	s := newScene(t, &scriptedFetcher{responses: []store.Result{{Snapshot: abSnapshot()}}}, nil, highlight.PolicyInert)
	require.NoError(t, s.Load(context.Background()))

	settled, err := s.Settle(context.Background())
	require.NoError(t, err)
	assert.True(t, settled)

	out, contentType, err := s.Render("ascii")
	require.NoError(t, err)
	assert.Equal(t, "text/plain; charset=utf-8", contentType)
	assert.Contains(t, string(out), "a")

	_, _, err = s.Render("bmp")
	assert.Error(t, err)
}

func TestStoppedScene(t *testing.T) {
	s := newScene(t, &scriptedFetcher{responses: []store.Result{{Snapshot: abSnapshot()}}}, nil, highlight.PolicyInert)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Run(ctx), context.Canceled)

	_, err := s.Status(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}
