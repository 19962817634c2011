// Package metrics — Prometheus metrics for the Queen orchestrator.
//
// Endpoint: GET /metrics on 127.0.0.1:9090 (configurable).
// Bind: loopback only — no external exposure.
//
// Metric naming convention: queen_<subsystem>_<name>_<unit>
//
// All metrics are registered on a dedicated prometheus.Registry (not
// the default global registry) to avoid collisions with other
// instrumented libraries sharing the process.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric descriptor for the Queen.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Bus ──────────────────────────────────────────────────────────
	BusMessagesSentTotal     *prometheus.CounterVec // labels: lane
	BusMessagesDroppedTotal  *prometheus.CounterVec // labels: reason
	BusMessagesReceivedTotal *prometheus.CounterVec // labels: lane
	BusQueueDepth            *prometheus.GaugeVec   // labels: recipient, lane
	BusBackendDegraded       prometheus.Gauge

	// ─── Board ────────────────────────────────────────────────────────
	BoardPostsTotal    *prometheus.CounterVec // labels: category
	BoardPostsExpired  prometheus.Counter
	BoardQueriesTotal  prometheus.Counter
	BoardSearchesTotal prometheus.Counter

	// ─── Security pipeline ────────────────────────────────────────────
	SecurityGateDecisionsTotal *prometheus.CounterVec // labels: decision
	SecurityRiskScore          prometheus.Histogram
	SecurityUsersBlockedTotal  prometheus.Counter
	SecurityQuarantineDepth    prometheus.Gauge

	// ─── Registry / dispatcher ────────────────────────────────────────
	WorkerTasksTotal        *prometheus.CounterVec // labels: worker, outcome
	WorkerCircuitOpenTotal  *prometheus.CounterVec // labels: worker
	DispatcherTaskLatency   prometheus.Histogram
	DispatcherTimeoutsTotal prometheus.Counter

	// ─── Consensus ────────────────────────────────────────────────────
	ConsensusDecisionsTotal *prometheus.CounterVec // labels: action
	ConsensusScore          prometheus.Histogram

	// ─── Proposals ────────────────────────────────────────────────────
	ProposalsTotal      *prometheus.CounterVec // labels: final_status
	ProposalFixAttempts prometheus.Histogram

	// ─── Lifecycle ────────────────────────────────────────────────────
	InstanceUptimeSeconds prometheus.Gauge
	ShutdownDurationMs    prometheus.Gauge

	// ─── Push channel ─────────────────────────────────────────────────
	PushConnectionsActive *prometheus.GaugeVec // labels: topic
	PushRejectedTotal     *prometheus.CounterVec

	startTime time.Time
}

// New creates and registers every Queen Prometheus metric on a fresh,
// process-dedicated registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		BusMessagesSentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "queen", Subsystem: "bus", Name: "messages_sent_total",
			Help: "Total messages accepted by send(), by lane.",
		}, []string{"lane"}),

		BusMessagesDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "queen", Subsystem: "bus", Name: "messages_dropped_total",
			Help: "Total messages dropped, by reason.",
		}, []string{"reason"}),

		BusMessagesReceivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "queen", Subsystem: "bus", Name: "messages_received_total",
			Help: "Total messages delivered by receive(), by lane.",
		}, []string{"lane"}),

		BusQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "queen", Subsystem: "bus", Name: "queue_depth",
			Help: "Current queue depth by recipient and lane.",
		}, []string{"recipient", "lane"}),

		BusBackendDegraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "queen", Subsystem: "bus", Name: "backend_degraded",
			Help: "1 if the durable backend is unreachable and the process-local fallback is active.",
		}),

		BoardPostsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "queen", Subsystem: "board", Name: "posts_total",
			Help: "Total posts created, by category.",
		}, []string{"category"}),

		BoardPostsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "queen", Subsystem: "board", Name: "posts_expired_total",
			Help: "Total posts removed by TTL garbage collection.",
		}),

		BoardQueriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "queen", Subsystem: "board", Name: "queries_total",
			Help: "Total query() calls.",
		}),

		BoardSearchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "queen", Subsystem: "board", Name: "searches_total",
			Help: "Total search() calls.",
		}),

		SecurityGateDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "queen", Subsystem: "security", Name: "gate_decisions_total",
			Help: "Total Gate 3 decisions, by decision (allow, quarantine, block).",
		}, []string{"decision"}),

		SecurityRiskScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "queen", Subsystem: "security", Name: "risk_score",
			Help:    "Distribution of Gate 2 risk scores.",
			Buckets: []float64{5, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),

		SecurityUsersBlockedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "queen", Subsystem: "security", Name: "users_blocked_total",
			Help: "Total users transitioned to blocked.",
		}),

		SecurityQuarantineDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "queen", Subsystem: "security", Name: "quarantine_depth",
			Help: "Current number of items held in the quarantine ring buffer.",
		}),

		WorkerTasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "queen", Subsystem: "registry", Name: "worker_tasks_total",
			Help: "Total tasks processed, by worker and outcome (success, error, timeout).",
		}, []string{"worker", "outcome"}),

		WorkerCircuitOpenTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "queen", Subsystem: "registry", Name: "worker_circuit_open_total",
			Help: "Total times a worker's circuit breaker tripped open.",
		}, []string{"worker"}),

		DispatcherTaskLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "queen", Subsystem: "dispatcher", Name: "task_latency_seconds",
			Help:    "Per-worker task call latency.",
			Buckets: prometheus.DefBuckets,
		}),

		DispatcherTimeoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "queen", Subsystem: "dispatcher", Name: "timeouts_total",
			Help: "Total worker calls that exceeded their deadline.",
		}),

		ConsensusDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "queen", Subsystem: "consensus", Name: "decisions_total",
			Help: "Total decisions produced, by action.",
		}, []string{"action"}),

		ConsensusScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "queen", Subsystem: "consensus", Name: "score",
			Help:    "Distribution of final consensus scores.",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),

		ProposalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "queen", Subsystem: "proposal", Name: "proposals_total",
			Help: "Total proposals reaching a terminal status.",
		}, []string{"final_status"}),

		ProposalFixAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "queen", Subsystem: "proposal", Name: "fix_attempts",
			Help:    "Number of auto-fix attempts consumed per proposal.",
			Buckets: []float64{0, 1, 2, 3, 4, 5},
		}),

		InstanceUptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "queen", Subsystem: "lifecycle", Name: "instance_uptime_seconds",
			Help: "Seconds since this instance booted.",
		}),

		ShutdownDurationMs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "queen", Subsystem: "lifecycle", Name: "shutdown_duration_ms",
			Help: "Duration of the most recent graceful shutdown sequence.",
		}),

		PushConnectionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "queen", Subsystem: "push", Name: "connections_active",
			Help: "Current number of active push-channel connections, by topic.",
		}, []string{"topic"}),

		PushRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "queen", Subsystem: "push", Name: "rejected_total",
			Help: "Total connection attempts rejected for exceeding the per-topic cap.",
		}, []string{"topic"}),
	}

	reg.MustRegister(
		m.BusMessagesSentTotal, m.BusMessagesDroppedTotal, m.BusMessagesReceivedTotal,
		m.BusQueueDepth, m.BusBackendDegraded,
		m.BoardPostsTotal, m.BoardPostsExpired, m.BoardQueriesTotal, m.BoardSearchesTotal,
		m.SecurityGateDecisionsTotal, m.SecurityRiskScore, m.SecurityUsersBlockedTotal, m.SecurityQuarantineDepth,
		m.WorkerTasksTotal, m.WorkerCircuitOpenTotal, m.DispatcherTaskLatency, m.DispatcherTimeoutsTotal,
		m.ConsensusDecisionsTotal, m.ConsensusScore,
		m.ProposalsTotal, m.ProposalFixAttempts,
		m.InstanceUptimeSeconds, m.ShutdownDurationMs,
		m.PushConnectionsActive, m.PushRejectedTotal,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// Serve starts the Prometheus HTTP metrics server on addr. Blocks
// until ctx is cancelled or the server fails to start.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go m.updateUptime(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}

func (m *Metrics) updateUptime(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.InstanceUptimeSeconds.Set(time.Since(m.startTime).Seconds())
		case <-ctx.Done():
			return
		}
	}
}
