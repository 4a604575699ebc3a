// Package metrics exposes Prometheus counters for the pairing components.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrijs2005/gophpair/internal/logging"
)

const namespace = "gophpair"

// Handshake results.
const (
	ResultOK        = "ok"
	ResultInvalid   = "invalid"
	ResultError     = "error"
	ResultTimeout   = "timeout"
	ResultCancelled = "cancelled"
	ResultReplay    = "replay"
	ResultNoSession = "no_session"
	ResultDisabled  = "disabled"
)

// Token directions.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Metrics holds the counters on a private registry. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	handshakes   *prometheus.CounterVec
	attestations *prometheus.CounterVec
	tokens       *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_total",
			Help:      "Colocated key exchanges by result.",
		}, []string{"result"}),
		attestations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attestations_total",
			Help:      "Received peer attestations by validation result.",
		}, []string{"result"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Secondary channel tokens relayed, by direction and result.",
		}, []string{"direction", "result"}),
	}
	m.registry.MustRegister(m.handshakes, m.attestations, m.tokens)
	return m
}

func (m *Metrics) Handshake(result string) {
	if m == nil {
		return
	}
	m.handshakes.WithLabelValues(result).Inc()
}

func (m *Metrics) Attestation(result string) {
	if m == nil {
		return
	}
	m.attestations.WithLabelValues(result).Inc()
}

func (m *Metrics) Token(direction, result string) {
	if m == nil {
		return
	}
	m.tokens.With(prometheus.Labels{"direction": direction, "result": result}).Inc()
}

// Registry is exposed for tests and for callers adding their own collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger logging.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info(ctx, "Stopping metrics server...")
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info(ctx, "Starting metrics server", "address", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
