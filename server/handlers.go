package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/TFMV/specgraph/drag"
	"github.com/TFMV/specgraph/ingest"
	"github.com/TFMV/specgraph/models"
	"github.com/TFMV/specgraph/scene"
)

type queryRequest struct {
	Query string `json:"query" validate:"max=2000"`
}

type pointerRequest struct {
	Kind string  `json:"kind" validate:"required,oneof=down move up cancel"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

type resizeRequest struct {
	Width  float64 `json:"width" validate:"gt=0,lte=16384"`
	Height float64 `json:"height" validate:"gt=0,lte=16384"`
}

// canvas formats by frame file extension
var frameFormats = map[string]string{
	"svg":  "svg",
	"txt":  "ascii",
	"json": "json",
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ds, snap := s.current()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"dataset": ds.Name,
		"nodes":   len(snap.Nodes),
		"links":   len(snap.Links),
	})
}

// handleGraph serves the current snapshot in the graph wire format.
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	_, snap := s.current()
	body, err := ingest.EncodeGraph(snap)
	if err != nil {
		s.logger.Error("encoding graph", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "error encoding graph")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

// handleQuery answers a question from the dataset.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := s.decode(w, r, &req); err != nil {
		s.logger.Warn("bad query request", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, models.QueryResult{Answer: AnswerError, Highlight: []string{}})
		return
	}

	ds, snap := s.current()
	res := Answer(ds, snap, req.Query)
	s.logger.Debug("query answered",
		zap.String("query", req.Query),
		zap.Int("highlight", len(res.Highlight)),
	)
	writeJSON(w, http.StatusOK, res)
}

// handleUpload replaces the served dataset with an uploaded JSON or CSV file.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "error parsing form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("dataFile")
	if err != nil {
		writeError(w, http.StatusBadRequest, "error retrieving file: "+err.Error())
		return
	}
	defer file.Close()

	processor, err := ingest.GetProcessor(filepath.Ext(header.Filename))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "error reading file: "+err.Error())
		return
	}
	ds, err := processor.ProcessData(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "error processing file: "+err.Error())
		return
	}
	ds.Name = filepath.Base(header.Filename)
	s.SetDataset(ds)

	_, snap := s.current()
	writeJSON(w, http.StatusOK, map[string]any{
		"dataset": ds.Name,
		"nodes":   len(snap.Nodes),
		"links":   len(snap.Links),
	})
}

func (s *Server) handleVizStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.scene.Status(r.Context())
	if err != nil {
		s.sceneError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleVizFrame(w http.ResponseWriter, r *http.Request) {
	format, ok := frameFormats[chi.URLParam(r, "format")]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown frame format")
		return
	}
	var (
		frame       []byte
		contentType string
		err         error
	)
	if format == s.scene.Format() {
		frame, contentType, err = s.scene.Frame(r.Context())
	} else {
		frame, contentType, err = s.scene.Snapshot(r.Context(), format)
	}
	if err != nil {
		s.sceneError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(frame)
}

func (s *Server) handleVizPointer(w http.ResponseWriter, r *http.Request) {
	var req pointerRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	phase, err := s.scene.Pointer(r.Context(), drag.Kind(req.Kind), r2.Vec{X: req.X, Y: req.Y})
	if err != nil {
		s.sceneError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"phase": phase.String()})
}

func (s *Server) handleVizQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	answer, err := s.scene.Ask(r.Context(), req.Query)
	res := map[string]any{
		"answer":    answer,
		"highlight": s.scene.Highlights().Current().IDs(),
	}
	if err != nil {
		if isSceneGone(err) {
			s.sceneError(w, err)
			return
		}
		res["error"] = err.Error()
		writeJSON(w, http.StatusBadGateway, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleVizReload(w http.ResponseWriter, r *http.Request) {
	err := s.scene.Reload(r.Context())
	if isSceneGone(err) {
		s.sceneError(w, err)
		return
	}
	st, serr := s.scene.Status(r.Context())
	if serr != nil {
		s.sceneError(w, serr)
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadGateway, st)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleVizResize(w http.ResponseWriter, r *http.Request) {
	var req resizeRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.scene.Resize(r.Context(), req.Width, req.Height); err != nil {
		s.sceneError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func isSceneGone(err error) bool {
	return errors.Is(err, scene.ErrStopped) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (s *Server) sceneError(w http.ResponseWriter, err error) {
	if errors.Is(err, scene.ErrStopped) {
		writeError(w, http.StatusServiceUnavailable, "scene is not running")
		return
	}
	s.logger.Warn("scene request failed", zap.Error(err))
	writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("scene request failed: %v", err))
}
