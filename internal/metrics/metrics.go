// Package metrics exposes engine state as Prometheus instruments on a
// private registry, served over net/http with promhttp.HandlerFor. This
// engine has no collector/exporter pipeline to feed, so a direct
// client_golang registry is the simpler fit; see DESIGN.md.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradeguard/internal/core"
)

// Registry holds every instrument this engine publishes, each on a
// private *prometheus.Registry so tests can spin up isolated instances.
type Registry struct {
	reg *prometheus.Registry

	SignalsAccepted  *prometheus.CounterVec
	SignalsRejected  *prometheus.CounterVec
	SignalsDropped   prometheus.Counter
	OrdersPlaced     *prometheus.CounterVec
	OrdersFilled     *prometheus.CounterVec
	OpenPositions    prometheus.Gauge
	UnrealizedPnL    prometheus.Gauge
	RealizedPnL      prometheus.Gauge
	KillSwitchActive prometheus.Gauge
	ReconcileLatency prometheus.Histogram
	ExchangeLatency  prometheus.Histogram
	Incidents        *prometheus.CounterVec
}

// New builds a Registry with every instrument registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		SignalsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeguard_signals_accepted_total",
			Help: "Signals that passed router, governor, and filter admission.",
		}, []string{"stage"}),
		SignalsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeguard_signals_rejected_total",
			Help: "Signals rejected, labeled by the stage and reason that rejected them.",
		}, []string{"stage", "reason"}),
		SignalsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradeguard_signals_dropped_total",
			Help: "Signals dropped from the bounded queue under backpressure.",
		}),
		OrdersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeguard_orders_placed_total",
			Help: "Orders submitted to the exchange adapter, labeled by intent.",
		}, []string{"intent"}),
		OrdersFilled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeguard_orders_filled_total",
			Help: "Fill events applied, labeled by intent.",
		}, []string{"intent"}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradeguard_open_positions",
			Help: "Currently open positions across all virtual accounts.",
		}),
		UnrealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradeguard_unrealized_pnl",
			Help: "Sum of unrealized PnL across all open positions.",
		}),
		RealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradeguard_realized_pnl",
			Help: "Sum of realized PnL across all virtual accounts.",
		}),
		KillSwitchActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradeguard_kill_switch_active",
			Help: "1 if any virtual account's kill switch is engaged, else 0.",
		}),
		ReconcileLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "tradeguard_reconcile_duration_seconds",
			Help: "Duration of a reconciliation pass.",
			Buckets: prometheus.DefBuckets,
		}),
		ExchangeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradeguard_exchange_call_duration_seconds",
			Help:    "Duration of an exchange adapter call.",
			Buckets: prometheus.DefBuckets,
		}),
		Incidents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeguard_incidents_total",
			Help: "Alerts raised, labeled by severity.",
		}, []string{"level"}),
	}

	reg.MustRegister(
		r.SignalsAccepted, r.SignalsRejected, r.SignalsDropped,
		r.OrdersPlaced, r.OrdersFilled,
		r.OpenPositions, r.UnrealizedPnL, r.RealizedPnL, r.KillSwitchActive,
		r.ReconcileLatency, r.ExchangeLatency, r.Incidents,
	)
	return r
}

// Handler returns the promhttp handler for this registry's instruments.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Server runs the /metrics endpoint on its own listener.
type Server struct {
	addr   string
	logger core.ILogger
	srv    *http.Server
}

// NewServer builds a metrics Server bound to addr (e.g. ":9090").
func NewServer(addr string, reg *Registry, logger core.ILogger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	return &Server{
		addr:   addr,
		logger: logger.WithField("component", "metrics_server"),
		srv:    &http.Server{Addr: addr, Handler: mux},
	}
}

// Start runs the server in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info("starting metrics server", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server failed", "error", err)
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
