// Package scene runs one mounted graph view: a single goroutine owns the
// simulation, the drag controller and the render context, and advances
// them one tick and one frame at a time. Network calls run elsewhere and
// hand their results back to that goroutine.
package scene

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/TFMV/specgraph/apperr"
	"github.com/TFMV/specgraph/config"
	"github.com/TFMV/specgraph/drag"
	"github.com/TFMV/specgraph/highlight"
	"github.com/TFMV/specgraph/metrics"
	"github.com/TFMV/specgraph/models"
	"github.com/TFMV/specgraph/physics"
	"github.com/TFMV/specgraph/render"
	"github.com/TFMV/specgraph/store"
)

// FallbackAnswer is shown in the chat when a query fails.
const FallbackAnswer = "❌ Failed to fetch answer."

var (
	// ErrStopped is returned when the frame loop has exited.
	ErrStopped = errors.New("scene stopped")
	// ErrSuperseded is returned by Reload when a newer reload replaced it.
	ErrSuperseded = errors.New("reload superseded by a newer request")
)

// Querier submits natural-language questions to the query collaborator.
type Querier interface {
	Query(ctx context.Context, text string) (*models.QueryResult, error)
}

// Options configures a scene.
type Options struct {
	Width           float64
	Height          float64
	FPS             int
	Format          string // canvas used for the live frame
	Render          render.Options
	Physics         physics.Params
	DragAlphaTarget float64
	Policy          highlight.Policy
}

// DefaultOptions returns options matching config.Default.
func DefaultOptions() Options {
	return FromConfig(config.Default())
}

// FromConfig builds scene options from the application configuration.
func FromConfig(cfg *config.Config) Options {
	ropts := render.NewDefaultOptions()
	ropts.NodeRadius = cfg.Surface.NodeRadius
	ropts.LabelSize = cfg.Surface.LabelSize
	ropts.FitPadding = cfg.Surface.FitPadding

	params := physics.DefaultParams()
	p := cfg.Physics
	params.LinkDistance = p.LinkDistance
	params.Charge = p.Charge
	params.Theta = p.Theta
	params.DistanceMin = p.DistanceMin
	params.AlphaMin = p.AlphaMin
	params.AlphaDecay = p.AlphaDecay
	params.VelocityDecay = p.VelocityDecay
	params.CenterStrength = p.CenterStrength
	params.MaxTicks = p.MaxTicks

	policy, err := highlight.ParsePolicy(cfg.Highlight.StalePolicy)
	if err != nil {
		policy = highlight.PolicyInert
	}

	return Options{
		Width:           cfg.Surface.Width,
		Height:          cfg.Surface.Height,
		FPS:             cfg.Surface.FPS,
		Format:          "svg",
		Render:          ropts,
		Physics:         params,
		DragAlphaTarget: p.AlphaTargetDrag,
		Policy:          policy,
	}
}

// Status summarizes a scene for the UI shell.
type Status struct {
	ID         string   `json:"id"`
	Generation uint64   `json:"generation"`
	Nodes      int      `json:"nodes"`
	Links      int      `json:"links"`
	Alpha      float64  `json:"alpha"`
	Active     bool     `json:"active"`
	Ticks      int      `json:"ticks"`
	Drag       string   `json:"drag"`
	Highlight  []string `json:"highlight"`
	Loading    bool     `json:"loading"`
	Error      string   `json:"error,omitempty"`
	Zoom       float64  `json:"zoom"`
}

// Scene is one mounted visualization. All fields below tasks are owned by
// the frame loop goroutine.
type Scene struct {
	id         string
	opts       Options
	store      *store.Store
	querier    Querier
	highlights *highlight.Reconciler
	logger     *zap.Logger

	tasks    chan func()
	stopped  chan struct{}
	stopOnce sync.Once
	dirty    chan struct{}

	engine    *physics.Engine
	drag      *drag.Controller
	rc        *render.Context
	state     physics.State
	fitOnRest bool
	frame     []byte
	frames    uint64
	pending   *r2.Vec

	fetchSeq    uint64
	fetchCancel context.CancelFunc
}

// New mounts a scene over a store and a query collaborator.
func New(st *store.Store, querier Querier, opts Options, logger *zap.Logger) (*Scene, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.FPS <= 0 {
		opts.FPS = 60
	}
	switch strings.ToLower(opts.Format) {
	case "":
		opts.Format = "svg"
	case "txt":
		opts.Format = "ascii"
	default:
		opts.Format = strings.ToLower(opts.Format)
	}

	canvas, err := render.NewCanvas(opts.Format, opts.Render.Palette)
	if err != nil {
		return nil, err
	}
	rc, err := render.NewContext(canvas, opts.Width, opts.Height, opts.Render)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	logger = logger.With(zap.String("scene", id))
	s := &Scene{
		id:      id,
		opts:    opts,
		store:   st,
		querier: querier,
		logger:  logger,
		tasks:   make(chan func()),
		stopped: make(chan struct{}),
		dirty:   make(chan struct{}, 1),
		drag:    drag.NewController(opts.Render.NodeRadius, opts.DragAlphaTarget, logger),
		rc:      rc,
	}
	s.engine = s.newEngine()
	s.highlights = highlight.NewReconciler(opts.Policy, s.markDirty, logger)
	st.Subscribe(s.replace)
	return s, nil
}

// ID returns the mount id.
func (s *Scene) ID() string {
	return s.id
}

// Highlights returns the scene's reconciler.
func (s *Scene) Highlights() *highlight.Reconciler {
	return s.highlights
}

func (s *Scene) newEngine() *physics.Engine {
	params := s.opts.Physics
	params.Center = s.rc.Center()
	return physics.NewEngine(params)
}

func (s *Scene) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// Run drives the frame loop until ctx is done. Each frame ticks an active
// simulation and redraws; a resting simulation is redrawn only when the
// highlight set changed.
func (s *Scene) Run(ctx context.Context) error {
	defer s.stop()

	ticker := time.NewTicker(time.Second / time.Duration(s.opts.FPS))
	defer ticker.Stop()

	s.logger.Info("scene mounted", zap.Int("fps", s.opts.FPS))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scene unmounted")
			return ctx.Err()
		case fn := <-s.tasks:
			fn()
		case <-ticker.C:
			s.step()
		}
	}
}

func (s *Scene) stop() {
	s.stopOnce.Do(func() {
		if s.fetchCancel != nil {
			s.fetchCancel()
		}
		close(s.stopped)
	})
}

// Do runs fn on the frame loop and waits for it to finish.
func (s *Scene) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	task := func() {
		defer close(done)
		fn()
	}
	select {
	case s.tasks <- task:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}
}

// post hands fn to the frame loop without waiting for it to run.
func (s *Scene) post(fn func()) {
	select {
	case s.tasks <- fn:
	case <-s.stopped:
	}
}

// step is one animation frame.
func (s *Scene) step() {
	redraw := false
	select {
	case <-s.dirty:
		redraw = true
	default:
	}

	if s.engine.Active(s.state) && s.state.Len() > 0 {
		s.state = s.engine.Tick(s.state)
		metrics.SimulationTicks.Inc()
		metrics.SimulationAlpha.Set(s.state.Alpha)
		redraw = true

		if s.fitOnRest && !s.engine.Active(s.state) {
			s.rc.Fit(s.state)
			s.fitOnRest = false
			s.logger.Debug("simulation at rest", zap.Int("ticks", s.state.Ticks))
		}
	}

	if redraw || s.frame == nil {
		s.draw()
	}
}

func (s *Scene) draw() {
	frame, err := render.Draw(s.rc, s.state, s.highlights.Current())
	if err != nil {
		s.logger.Error("draw failed", zap.Error(err))
		return
	}
	s.frame = frame
	s.frames++
	metrics.FramesRendered.WithLabelValues(s.opts.Format).Inc()
}

// replace re-seeds the simulation from a newly accepted snapshot. It runs
// on whichever goroutine accepted the snapshot, which for a running scene
// is the frame loop.
func (s *Scene) replace(u store.Update) {
	s.drag.Reset()
	if s.pending != nil {
		s.rc.Resize(s.pending.X, s.pending.Y)
		s.pending = nil
	}
	s.engine = s.newEngine()
	s.state = s.engine.Initialize(u.Snapshot)
	s.rc.Fit(s.state)
	s.fitOnRest = true
	s.highlights.SnapshotReplaced(u.Generation)
	s.markDirty()

	s.logger.Info("simulation seeded",
		zap.Uint64("generation", u.Generation),
		zap.Int("particles", s.state.Len()),
		zap.Int("springs", len(s.state.Springs)),
	)
}

// startFetch issues a graph fetch and cancels any fetch still in flight.
// done, if set, receives the outcome on the frame loop.
func (s *Scene) startFetch(done func(error)) {
	if s.fetchCancel != nil {
		s.fetchCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.fetchCancel = cancel
	s.fetchSeq++
	seq := s.fetchSeq

	go func() {
		res := s.store.Fetch(ctx)
		s.post(func() {
			if seq != s.fetchSeq {
				s.logger.Debug("dropping superseded fetch", zap.Uint64("seq", seq))
				if done != nil {
					done(ErrSuperseded)
				}
				return
			}
			cancel()
			s.fetchCancel = nil
			_, err := s.store.Accept(res)
			if err != nil {
				s.markDirty()
			}
			if done != nil {
				done(err)
			}
		})
	}()
}

// Reload fetches a fresh snapshot and waits until it has been accepted or
// rejected. On failure the current layout is kept.
func (s *Scene) Reload(ctx context.Context) error {
	result := make(chan error, 1)
	if err := s.Do(ctx, func() {
		s.startFetch(func(err error) { result <- err })
	}); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}
}

// Pointer feeds a pointer event given in screen coordinates to the drag
// controller.
func (s *Scene) Pointer(ctx context.Context, kind drag.Kind, screen r2.Vec) (drag.Phase, error) {
	var phase drag.Phase
	err := s.Do(ctx, func() {
		phase = s.pointer(kind, screen)
	})
	return phase, err
}

func (s *Scene) pointer(kind drag.Kind, screen r2.Vec) drag.Phase {
	ev := drag.Event{Kind: kind, Pos: s.rc.ScreenToGraph(screen)}
	next, changed := s.drag.Handle(s.state, ev)
	if changed {
		s.state = next
		s.markDirty()
	}
	return s.drag.Phase()
}

// Ask submits a question. The collaborator call runs on the caller's
// goroutine; its highlight is applied on the frame loop once the response
// arrives. On failure the fallback answer is returned with the error and the
// highlight set is left alone.
func (s *Scene) Ask(ctx context.Context, text string) (string, error) {
	if s.querier == nil {
		err := apperr.Query("ask", errors.New("no query collaborator"))
		metrics.Queries.WithLabelValues(metrics.Outcome(err)).Inc()
		return FallbackAnswer, err
	}
	issuedAt := s.highlights.Generation()

	res, err := s.querier.Query(ctx, text)
	metrics.Queries.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		s.logger.Warn("query failed", zap.Error(err))
		return FallbackAnswer, err
	}

	if err := s.Do(ctx, func() {
		s.highlights.Apply(res.Highlight, issuedAt)
	}); err != nil {
		return res.Answer, err
	}
	return res.Answer, nil
}

// Resize records new surface dimensions. They take effect on the next
// snapshot replacement, which is when the surface re-fits.
func (s *Scene) Resize(ctx context.Context, width, height float64) error {
	return s.Do(ctx, func() {
		if width > 0 && height > 0 {
			s.pending = &r2.Vec{X: width, Y: height}
		}
	})
}

// Format is the canvas format the frame loop draws with: svg, ascii or json.
func (s *Scene) Format() string {
	return s.opts.Format
}

// Frame returns the live frame drawn by the loop. A redraw that is due
// but not yet picked up by the ticker is drawn first.
func (s *Scene) Frame(ctx context.Context) ([]byte, string, error) {
	var (
		out         []byte
		contentType string
	)
	err := s.Do(ctx, func() {
		select {
		case <-s.dirty:
			s.draw()
		default:
			if s.frame == nil {
				s.draw()
			}
		}
		out = s.frame
		contentType = s.rc.Canvas.ContentType()
	})
	if err != nil {
		return nil, "", err
	}
	return out, contentType, nil
}

// Snapshot draws the current state with another canvas format, using the
// live viewport.
func (s *Scene) Snapshot(ctx context.Context, format string) ([]byte, string, error) {
	var (
		out         []byte
		contentType string
		drawErr     error
	)
	err := s.Do(ctx, func() {
		out, contentType, drawErr = s.render(format)
	})
	if err != nil {
		return nil, "", err
	}
	return out, contentType, drawErr
}

func (s *Scene) render(format string) ([]byte, string, error) {
	canvas, err := render.NewCanvas(format, s.opts.Render.Palette)
	if err != nil {
		return nil, "", err
	}
	rc := *s.rc
	rc.Canvas = canvas
	out, err := render.Draw(&rc, s.state, s.highlights.Current())
	if err != nil {
		return nil, "", err
	}
	metrics.FramesRendered.WithLabelValues(format).Inc()
	return out, canvas.ContentType(), nil
}

// Status reports the scene's current state.
func (s *Scene) Status(ctx context.Context) (Status, error) {
	var st Status
	err := s.Do(ctx, func() {
		st = s.status()
	})
	return st, err
}

func (s *Scene) status() Status {
	st := Status{
		ID:         s.id,
		Generation: s.store.Generation(),
		Nodes:      s.state.Len(),
		Links:      len(s.state.Springs),
		Alpha:      s.state.Alpha,
		Active:     s.engine.Active(s.state),
		Ticks:      s.state.Ticks,
		Drag:       s.drag.Phase().String(),
		Highlight:  s.highlights.Current().IDs(),
		Loading:    s.store.Loading(),
		Zoom:       s.rc.Viewport.Zoom,
	}
	if err := s.store.Err(); err != nil {
		st.Error = err.Error()
	}
	return st
}

// The methods below drive a scene without a frame loop, for one-shot
// rendering. They must not be called while Run is active.

// Load fetches and accepts a snapshot on the calling goroutine.
func (s *Scene) Load(ctx context.Context) error {
	_, err := s.store.Load(ctx)
	return err
}

// Settle ticks the simulation until it comes to rest or ctx is done, then
// fits the viewport. It reports whether the simulation came to rest.
func (s *Scene) Settle(ctx context.Context) (bool, error) {
	start := s.state.Ticks
	next, settled, err := s.engine.Run(ctx, s.state)
	s.state = next
	metrics.SimulationTicks.Add(float64(next.Ticks - start))
	metrics.SimulationAlpha.Set(next.Alpha)
	if settled {
		s.fitOnRest = false
	}
	s.rc.Fit(s.state)
	return settled, err
}

// Render draws the current state in the given format.
func (s *Scene) Render(format string) ([]byte, string, error) {
	return s.render(format)
}
