// Package server is the reference collaborator backend. It serves the graph
// and answers queries from a change-spec dataset, and can expose a mounted
// scene under /viz for clients that only draw frames.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/TFMV/specgraph/ingest"
	"github.com/TFMV/specgraph/models"
	"github.com/TFMV/specgraph/scene"
)

// Config for the server
type Config struct {
	Addr           string
	AllowedOrigins []string
	MaxUploadBytes int64
}

// Server holds the dataset being served and an optional mounted scene.
type Server struct {
	cfg      Config
	logger   *zap.Logger
	validate *validator.Validate

	mu       sync.RWMutex
	dataset  *ingest.Dataset
	snapshot *models.Snapshot

	scene *scene.Scene
}

// New creates a server for ds.
func New(cfg Config, ds *ingest.Dataset, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	s := &Server{cfg: cfg, logger: logger, validate: v}
	s.SetDataset(ds)
	return s
}

// SetDataset replaces the dataset being served.
func (s *Server) SetDataset(ds *ingest.Dataset) {
	if ds == nil {
		ds = &ingest.Dataset{Name: "empty"}
	}
	snap, warnings := ds.Snapshot()
	for _, w := range warnings {
		s.logger.Warn("dataset link dropped", zap.Error(w))
	}

	s.mu.Lock()
	s.dataset, s.snapshot = ds, snap
	s.mu.Unlock()

	s.logger.Info("dataset loaded",
		zap.String("name", ds.Name),
		zap.Int("nodes", len(snap.Nodes)),
		zap.Int("links", len(snap.Links)),
	)
}

func (s *Server) current() (*ingest.Dataset, *models.Snapshot) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dataset, s.snapshot
}

// FetchGraph returns the served snapshot, so a scene in the same process can
// load it without an HTTP round trip.
func (s *Server) FetchGraph(ctx context.Context) (*models.Snapshot, []error, error) {
	_, snap := s.current()
	return snap, nil, nil
}

// Query answers text from the served dataset in process.
func (s *Server) Query(ctx context.Context, text string) (*models.QueryResult, error) {
	ds, snap := s.current()
	res := Answer(ds, snap, text)
	return &res, nil
}

// Mount exposes sc under /viz.
func (s *Server) Mount(sc *scene.Scene) {
	s.scene = sc
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/graph", s.handleGraph)
		r.Post("/query", s.handleQuery)
		r.Post("/upload", s.handleUpload)
	})

	if s.scene != nil {
		r.Route("/viz", func(r chi.Router) {
			r.Get("/status", s.handleVizStatus)
			r.Get("/frame.{format}", s.handleVizFrame)
			r.Post("/pointer", s.handleVizPointer)
			r.Post("/query", s.handleVizQuery)
			r.Post("/reload", s.handleVizReload)
			r.Post("/resize", s.handleVizResize)
		})
	}

	return r
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("shutting down server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decode reads a JSON body into dst and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}
