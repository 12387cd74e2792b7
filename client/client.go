// Package client talks to the graph-data and query collaborators over HTTP.
// Calls go through a circuit breaker so a dead backend fails fast instead
// of stalling every reload.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/TFMV/specgraph/apperr"
	"github.com/TFMV/specgraph/ingest"
	"github.com/TFMV/specgraph/models"
)

const maxBodyBytes = 32 << 20

// BreakerConfig holds configuration for the circuit breaker
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns a default configuration for the circuit breaker
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      3,
	}
}

// Client calls GET /api/graph and POST /api/query on a base URL.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	cbCfg   BreakerConfig
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithBreaker sets the circuit breaker configuration.
func WithBreaker(cfg BreakerConfig) Option {
	return func(c *Client) { c.cbCfg = cfg }
}

// New creates a client for the collaborators at baseURL.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		cbCfg:   DefaultBreakerConfig(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.breaker = newBreaker(c.cbCfg, c.logger)
	return c
}

func newBreaker(cfg BreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "collaborator",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			// A cancelled reload says nothing about the backend's health.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// FetchGraph loads and sanitizes the graph snapshot. Every failure is an
// apperr FetchFailure.
func (c *Client) FetchGraph(ctx context.Context) (*models.Snapshot, []error, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/graph", nil)
	if err != nil {
		return nil, nil, apperr.Fetch("GET /api/graph", err)
	}
	snap, warnings, err := ingest.DecodeGraph(body)
	if err != nil {
		return nil, nil, apperr.Fetch("decode graph", err)
	}
	return snap, warnings, nil
}

// Query submits a natural-language question. Every failure is an apperr
// QueryFailure.
func (c *Client) Query(ctx context.Context, text string) (*models.QueryResult, error) {
	payload, err := json.Marshal(struct {
		Query string `json:"query"`
	}{Query: text})
	if err != nil {
		return nil, apperr.Query("encode query", err)
	}
	body, err := c.do(ctx, http.MethodPost, "/api/query", payload)
	if err != nil {
		return nil, apperr.Query("POST /api/query", err)
	}
	res, err := ingest.DecodeQueryResult(body)
	if err != nil {
		return nil, apperr.Query("decode answer", err)
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		requestID := uuid.NewString()
		req.Header.Set("X-Request-ID", requestID)

		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}
		c.logger.Debug("collaborator call",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("request_id", requestID),
			zap.Duration("duration", time.Since(start)),
		)
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}
