package lib

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

/* Dev-ops telemetry for the node in the form of prometheus metrics */

const metricsPattern = "/metrics"

// Metrics exposes the consensus core's health over a prometheus endpoint.
// All update methods are nil-safe so components may run without telemetry.
type Metrics struct {
	server *http.Server
	config MetricsConfig
	log    LoggerI

	BestHeight      prometheus.Gauge   // the height of the current best head
	FinalizedHeight prometheus.Gauge   // the height of the finalized head
	FinalityRound   prometheus.Gauge   // the current finality round
	BlockImports    prometheus.Counter // blocks accepted by the import queue
	BlocksAuthored  prometheus.Counter // blocks authored by this node
	OrphansHeld     prometheus.Gauge   // blocks waiting on an unknown parent
	Equivocations   prometheus.Counter // double-sign events detected
	RoundsStalled   prometheus.Counter // finality rounds that timed out
}

// NewMetrics() registers the consensus metrics on a fresh registry and
// prepares the serving endpoint
func NewMetrics(config MetricsConfig, log LoggerI) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	mux := http.NewServeMux()
	mux.Handle(metricsPattern, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return &Metrics{
		server: &http.Server{Addr: config.PrometheusAddress, Handler: mux},
		config: config,
		log:    log,
		BestHeight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chain_best_height", Help: "height of the current best head",
		}),
		FinalizedHeight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chain_finalized_height", Help: "height of the finalized head",
		}),
		FinalityRound: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chain_finality_round", Help: "current finality round",
		}),
		BlockImports: factory.NewCounter(prometheus.CounterOpts{
			Name: "chain_block_imports_total", Help: "blocks accepted by the import queue",
		}),
		BlocksAuthored: factory.NewCounter(prometheus.CounterOpts{
			Name: "chain_blocks_authored_total", Help: "blocks authored by this node",
		}),
		OrphansHeld: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chain_orphans_held", Help: "blocks waiting on an unknown parent",
		}),
		Equivocations: factory.NewCounter(prometheus.CounterOpts{
			Name: "chain_equivocations_total", Help: "double-sign events detected",
		}),
		RoundsStalled: factory.NewCounter(prometheus.CounterOpts{
			Name: "chain_finality_rounds_stalled_total", Help: "finality rounds that timed out",
		}),
	}
}

// Start() serves the metrics endpoint if enabled
func (m *Metrics) Start() {
	if m == nil || !m.config.Enabled {
		return
	}
	go func() {
		m.log.Infof("Serving metrics on %s%s", m.config.PrometheusAddress, metricsPattern)
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.log.Errorf("metrics server failed: %s", err.Error())
		}
	}()
}

// Stop() shuts the metrics endpoint down
func (m *Metrics) Stop() {
	if m == nil || !m.config.Enabled {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = m.server.Shutdown(ctx)
}

// UpdateHeads() records the chain head positions
func (m *Metrics) UpdateHeads(best, finalized uint64) {
	if m == nil {
		return
	}
	m.BestHeight.Set(float64(best))
	m.FinalizedHeight.Set(float64(finalized))
}

// UpdateRound() records the current finality round
func (m *Metrics) UpdateRound(round uint64) {
	if m == nil {
		return
	}
	m.FinalityRound.Set(float64(round))
}

// AddImport() counts an accepted block
func (m *Metrics) AddImport() {
	if m == nil {
		return
	}
	m.BlockImports.Inc()
}

// AddAuthored() counts a locally authored block
func (m *Metrics) AddAuthored() {
	if m == nil {
		return
	}
	m.BlocksAuthored.Inc()
}

// SetOrphans() records the orphan pool size
func (m *Metrics) SetOrphans(n int) {
	if m == nil {
		return
	}
	m.OrphansHeld.Set(float64(n))
}

// AddEquivocation() counts a detected double-sign
func (m *Metrics) AddEquivocation() {
	if m == nil {
		return
	}
	m.Equivocations.Inc()
}

// AddStalledRound() counts a finality round timeout
func (m *Metrics) AddStalledRound() {
	if m == nil {
		return
	}
	m.RoundsStalled.Inc()
}
