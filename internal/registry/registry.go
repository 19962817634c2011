// Package registry implements the Worker Registry (C4): worker
// lifecycle, health classification, statistics, and a best-effort
// peer-wiring pass.
//
// Grounded on the teacher's internal/operator/server.go (the
// StateRegistry-style name-to-handle map and status snapshot shape)
// and contrib/scorer.go (registration-by-name plugin pattern, reused
// for registering Worker constructors before Initialize binds them),
// plus original_source's bees/manager.py for the 16-worker roster
// shape, the LLM-enabled subset, and the best-effort wiring pass that
// logs a warning rather than failing init when a peer is missing.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/omakh-hive/queen/internal/metrics"
)

// Status is a worker's derived lifecycle state.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusBusy     Status = "busy"
	StatusActive   Status = "active"
	StatusDegraded Status = "degraded"
	StatusError    Status = "error"
)

// Task is the unit of work dispatched to a Worker.
type Task struct {
	ID       string
	Type     string
	Payload  map[string]any
	Priority string
	Deadline *time.Time
	Origin   string
	Parallel bool
}

// Result is what a Worker produces for a Task.
type Result struct {
	TaskID     string
	WorkerName string
	Success    bool
	Data       map[string]any
	Error      string
	ErrorKind  string
	Duration   time.Duration
	LLMUsed    bool
	Confidence *float64
}

// Worker is the single operation every registered worker implements.
type Worker interface {
	Name() string
	Process(ctx context.Context, task Task) Result
}

// PeerWirer is implemented by workers that need references to named
// peers after every worker has been constructed. Wiring is
// best-effort: a missing peer is logged and does not fail Initialize.
type PeerWirer interface {
	WirePeers(lookup func(name string) (Worker, bool))
}

type workerEntry struct {
	mu          sync.Mutex
	worker      Worker
	breaker     *gobreaker.CircuitBreaker
	status      Status
	taskCount   int
	successCount int
	errorCount  int
	lastTaskAt  time.Time
	lastOK      bool
	recentOK    []bool // bounded ring of last 100 outcomes
}

// Registry holds every known worker and derives health/statistics on
// demand rather than storing them.
type Registry struct {
	metrics *metrics.Metrics
	log     *zap.Logger

	mu      sync.RWMutex
	workers map[string]*workerEntry
	order   []string
}

// New builds an empty Registry.
func New(m *metrics.Metrics, log *zap.Logger) *Registry {
	return &Registry{metrics: m, log: log, workers: make(map[string]*workerEntry)}
}

// Register adds w to the registry, in stable registration order. Each
// worker gets its own circuit breaker so a misbehaving worker cannot
// drag down unrelated calls.
func (r *Registry) Register(w Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := w.Name()
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if r.log != nil {
				r.log.Warn("worker circuit breaker state change", zap.String("worker", name), zap.String("from", from.String()), zap.String("to", to.String()))
			}
			if to == gobreaker.StateOpen && r.metrics != nil {
				r.metrics.WorkerCircuitOpenTotal.WithLabelValues(name).Inc()
			}
		},
	})

	r.workers[name] = &workerEntry{worker: w, breaker: cb, status: StatusIdle}
	r.order = append(r.order, name)
}

// Initialize runs the best-effort peer-wiring pass over every
// registered PeerWirer.
func (r *Registry) Initialize() {
	r.mu.RLock()
	names := append([]string{}, r.order...)
	r.mu.RUnlock()

	lookup := func(name string) (Worker, bool) {
		r.mu.RLock()
		defer r.mu.RUnlock()
		e, ok := r.workers[name]
		if !ok {
			return nil, false
		}
		return e.worker, true
	}

	for _, name := range names {
		r.mu.RLock()
		e := r.workers[name]
		r.mu.RUnlock()
		wirer, ok := e.worker.(PeerWirer)
		if !ok {
			continue
		}
		func() {
			defer func() {
				if rec := recover(); rec != nil && r.log != nil {
					r.log.Warn("peer wiring panicked, continuing init", zap.String("worker", name), zap.Any("recover", rec))
				}
			}()
			wirer.WirePeers(func(peer string) (Worker, bool) {
				w, ok := lookup(peer)
				if !ok && r.log != nil {
					r.log.Warn("worker referenced a missing peer during wiring", zap.String("worker", name), zap.String("peer", peer))
				}
				return w, ok
			})
		}()
	}
}

// Execute invokes a single named worker, through its circuit breaker
// and bounded by a deadline.
func (r *Registry) Execute(ctx context.Context, name string, task Task, defaultDeadline time.Duration) Result {
	r.mu.RLock()
	e, ok := r.workers[name]
	r.mu.RUnlock()
	if !ok {
		return Result{TaskID: task.ID, WorkerName: name, Success: false, Error: "unknown worker", ErrorKind: "worker-unavailable"}
	}
	return r.executeEntry(ctx, name, e, task, defaultDeadline)
}

// ExecuteMulti invokes every named worker, in order, sequentially.
func (r *Registry) ExecuteMulti(ctx context.Context, names []string, task Task, defaultDeadline time.Duration) []Result {
	results := make([]Result, len(names))
	for i, name := range names {
		results[i] = r.Execute(ctx, name, task, defaultDeadline)
	}
	return results
}

func (r *Registry) executeEntry(ctx context.Context, name string, e *workerEntry, task Task, defaultDeadline time.Duration) Result {
	deadline := defaultDeadline
	if task.Deadline != nil {
		if d := time.Until(*task.Deadline); d > 0 {
			deadline = d
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	e.mu.Lock()
	e.status = StatusBusy
	e.mu.Unlock()

	start := time.Now()
	raw, err := e.breaker.Execute(func() (any, error) {
		return e.worker.Process(callCtx, task), callCtx.Err()
	})
	duration := time.Since(start)

	var result Result
	if err != nil {
		if err == context.DeadlineExceeded {
			if r.metrics != nil {
				r.metrics.DispatcherTimeoutsTotal.Inc()
			}
			result = Result{TaskID: task.ID, WorkerName: name, Success: false, Error: "timeout", ErrorKind: "timeout", Duration: duration}
		} else {
			result = Result{TaskID: task.ID, WorkerName: name, Success: false, Error: err.Error(), ErrorKind: "worker-unavailable", Duration: duration}
		}
	} else {
		result, _ = raw.(Result)
		result.Duration = duration
	}

	r.recordOutcome(name, e, result)
	return result
}

func (r *Registry) recordOutcome(name string, e *workerEntry, result Result) {
	e.mu.Lock()
	e.taskCount++
	e.lastTaskAt = time.Now()
	e.lastOK = result.Success
	if result.Success {
		e.successCount++
	} else {
		e.errorCount++
	}
	e.recentOK = append(e.recentOK, result.Success)
	if len(e.recentOK) > 100 {
		e.recentOK = e.recentOK[len(e.recentOK)-100:]
	}
	e.status = deriveStatus(e)
	e.mu.Unlock()

	if r.metrics != nil {
		outcome := "success"
		if !result.Success {
			outcome = "error"
			if result.ErrorKind == "timeout" {
				outcome = "timeout"
			}
		}
		r.metrics.WorkerTasksTotal.WithLabelValues(name, outcome).Inc()
		r.metrics.DispatcherTaskLatency.Observe(result.Duration.Seconds())
	}
}

// deriveStatus implements spec.md's health rules: active if a task
// completed successfully within the last 10s, error if the last op
// failed, degraded if the error-rate over the last 100 ops exceeds
// 20%, idle otherwise. Caller must hold e.mu.
func deriveStatus(e *workerEntry) Status {
	errorRate := 0.0
	if n := len(e.recentOK); n > 0 {
		failures := 0
		for _, ok := range e.recentOK {
			if !ok {
				failures++
			}
		}
		errorRate = float64(failures) / float64(n)
	}
	if errorRate > 0.2 {
		return StatusDegraded
	}
	if !e.lastOK {
		return StatusError
	}
	if time.Since(e.lastTaskAt) <= 10*time.Second {
		return StatusActive
	}
	return StatusIdle
}

// WorkerStats is a point-in-time snapshot of one worker's statistics.
type WorkerStats struct {
	Name         string
	Status       Status
	TaskCount    int
	SuccessCount int
	ErrorCount   int
	LastTaskAt   time.Time
}

// Stats returns a snapshot for every registered worker.
func (r *Registry) Stats() []WorkerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]WorkerStats, 0, len(r.order))
	for _, name := range r.order {
		e := r.workers[name]
		e.mu.Lock()
		out = append(out, WorkerStats{
			Name: name, Status: e.status, TaskCount: e.taskCount,
			SuccessCount: e.successCount, ErrorCount: e.errorCount, LastTaskAt: e.lastTaskAt,
		})
		e.mu.Unlock()
	}
	return out
}

// HealthSummary reports the registry-wide health rollup.
type HealthSummary struct {
	AllHealthy bool
	AnyCritical bool
	PerWorker  map[string]Status
}

// HealthCheck returns the current health rollup across every worker.
func (r *Registry) HealthCheck() HealthSummary {
	stats := r.Stats()
	summary := HealthSummary{AllHealthy: true, PerWorker: make(map[string]Status, len(stats))}
	for _, s := range stats {
		summary.PerWorker[s.Name] = s.Status
		if s.Status == StatusError || s.Status == StatusDegraded {
			summary.AllHealthy = false
		}
		if s.Status == StatusError {
			summary.AnyCritical = true
		}
	}
	return summary
}

// Names returns every registered worker name in stable registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.order...)
}
