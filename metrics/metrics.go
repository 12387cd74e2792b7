// Package metrics exposes Prometheus instrumentation for the graph view.
// Metrics are registered with promauto on the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts requests served, by method, route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "specgraph_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures server response time.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "specgraph_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	// GraphLoads counts snapshot loads by outcome (ok, error).
	GraphLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "specgraph_graph_loads_total",
			Help: "Graph snapshot loads by outcome",
		},
		[]string{"outcome"},
	)

	// MalformedLinks counts links dropped because an endpoint was unknown.
	MalformedLinks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "specgraph_malformed_links_total",
		Help: "Links dropped during snapshot sanitization",
	})

	// GraphNodes tracks the node count of the current snapshot.
	GraphNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "specgraph_graph_nodes",
		Help: "Nodes in the current graph snapshot",
	})

	// Queries counts query round trips by outcome (ok, error).
	Queries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "specgraph_queries_total",
			Help: "Query requests by outcome",
		},
		[]string{"outcome"},
	)

	// SimulationTicks counts simulation steps taken by all scenes.
	SimulationTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "specgraph_simulation_ticks_total",
		Help: "Force simulation ticks executed",
	})

	// SimulationAlpha tracks the temperature of the most recently ticked scene.
	SimulationAlpha = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "specgraph_simulation_alpha",
		Help: "Current simulation temperature",
	})

	// FramesRendered counts frames drawn, by canvas format.
	FramesRendered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "specgraph_frames_rendered_total",
			Help: "Frames drawn by the render surface",
		},
		[]string{"format"},
	)
)

// Outcome maps an error to the outcome label value.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
