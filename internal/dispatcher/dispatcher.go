// Package dispatcher implements the Dispatcher (C5): a thin routing
// layer over the Worker Registry supporting single-worker,
// sequential multi-worker, and parallel multi-worker task routing.
//
// Grounded on the teacher's internal/kernel/events.go for the
// context-deadline + synthetic-timeout-result shape (reused via
// internal/registry.Execute) and golang.org/x/sync/errgroup for the
// parallel=true fan-out, chosen because it is the idiomatic way the
// rest of the pack expresses bounded concurrent work with first-error
// propagation while still preserving per-slot results.
package dispatcher

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/omakh-hive/queen/internal/registry"
)

// Dispatcher routes tasks to one or more workers via the Registry.
type Dispatcher struct {
	reg             *registry.Registry
	defaultDeadline time.Duration
}

// New builds a Dispatcher bound to reg.
func New(reg *registry.Registry, defaultDeadline time.Duration) *Dispatcher {
	return &Dispatcher{reg: reg, defaultDeadline: defaultDeadline}
}

// Route dispatches task to a single named worker.
func (d *Dispatcher) Route(ctx context.Context, worker string, task registry.Task) registry.Result {
	return d.reg.Execute(ctx, worker, task, d.defaultDeadline)
}

// RouteMulti dispatches task to every named worker. Sequential by
// default; if task.Parallel is set, workers run concurrently via
// errgroup while results preserve the input order regardless of
// completion order.
func (d *Dispatcher) RouteMulti(ctx context.Context, workers []string, task registry.Task) []registry.Result {
	if !task.Parallel {
		return d.reg.ExecuteMulti(ctx, workers, task, d.defaultDeadline)
	}

	results := make([]registry.Result, len(workers))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range workers {
		i, name := i, name
		g.Go(func() error {
			results[i] = d.reg.Execute(gctx, name, task, d.defaultDeadline)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// RouteByCapability dispatches task to every worker registered under
// a capability tag, resolved by the caller (the Registry itself has
// no capability index — capability-to-worker resolution is a
// Supervisor-level concern since capabilities are declared alongside
// worker construction, not discovered).
func (d *Dispatcher) RouteByCapability(ctx context.Context, workers []string, task registry.Task) []registry.Result {
	return d.RouteMulti(ctx, workers, task)
}
