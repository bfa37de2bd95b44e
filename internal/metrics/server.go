// Package metrics exposes a Prometheus endpoint plus the small HTTP control
// surface (pause/resume/status) that an operator or the loop manager's NATS
// listener can use to drive a running agent process without a dashboard.
package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry bundles the process's Prometheus collectors. The loop manager
// records LoopStatus; the cycle, decision, trade, risk-rejection and
// sentiment-error collectors are registered and exported, but no package
// records against them. It is constructed once per process and passed
// explicitly to every package that needs it, rather than relying on the
// default global registry.
type Registry struct {
	Registerer prometheus.Registerer

	CyclesTotal       *prometheus.CounterVec
	CycleDuration     *prometheus.HistogramVec
	DecisionsTotal    *prometheus.CounterVec
	TradesTotal       *prometheus.CounterVec
	RiskRejections    *prometheus.CounterVec
	SentimentFetchErr *prometheus.CounterVec
	LoopStatus        *prometheus.GaugeVec
}

// NewRegistry creates a fresh Prometheus registry and registers the
// standard process/Go collectors alongside the domain metrics below.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	reg.MustRegister(prometheus.NewGoCollector())

	factory := promauto.With(reg)

	return &Registry{
		Registerer: reg,
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrader_cycles_total",
			Help: "Decision cycles run, by agent and outcome.",
		}, []string{"agent_id", "outcome"}),
		CycleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentrader_cycle_duration_seconds",
			Help:    "Wall-clock duration of a full decision cycle.",
			Buckets: prometheus.DefBuckets,
		}, []string{"agent_id"}),
		DecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrader_decisions_total",
			Help: "Decisions produced, by agent and action.",
		}, []string{"agent_id", "action"}),
		TradesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrader_trades_total",
			Help: "Trades executed, by agent and result.",
		}, []string{"agent_id", "result"}),
		RiskRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrader_risk_rejections_total",
			Help: "Decisions rejected by the risk validator, by failing check.",
		}, []string{"agent_id", "check"}),
		SentimentFetchErr: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrader_sentiment_fetch_errors_total",
			Help: "Sentiment source fetch failures, by source.",
		}, []string{"source"}),
		LoopStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agentrader_loop_status",
			Help: "Loop status (0=stopped, 1=running, 2=paused, 3=error).",
		}, []string{"agent_id"}),
	}
}

// LoopController is the subset of internal/loop.Manager the control
// endpoints need. Declared here, implemented there, to avoid an import
// cycle between the two packages.
type LoopController interface {
	Pause(agentID string) error
	Resume(agentID string) error
	Status(agentID string) (any, error)
}

// Server hosts /metrics plus /pause, /resume, and /status control
// endpoints on one port.
type Server struct {
	httpServer *http.Server
	log        zerolog.Logger
}

// NewServer builds the metrics/control HTTP server. It does not start
// listening until Start is called.
func NewServer(addr string, reg *Registry, controller LoopController, log zerolog.Logger) *Server {
	mux := http.NewServeMux()

	if promReg, ok := reg.Registerer.(*prometheus.Registry); ok {
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("/pause", controlHandler(controller.Pause))
	mux.HandleFunc("/resume", controlHandler(controller.Resume))
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		agentID := r.URL.Query().Get("agent_id")
		status, err := controller.Status(agentID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status)
	})

	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: mux},
		log:        log,
	}
}

func controlHandler(action func(agentID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID := r.URL.Query().Get("agent_id")
		if agentID == "" {
			http.Error(w, "agent_id is required", http.StatusBadRequest)
			return
		}
		if err := action(agentID); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info().Msg("shutting down metrics server")
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
