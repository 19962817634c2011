package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/omakh-hive/queen/internal/registry"
)

type fakeWorker struct {
	name  string
	delay time.Duration
	ok    bool
}

func (w *fakeWorker) Name() string { return w.name }
func (w *fakeWorker) Process(ctx context.Context, task registry.Task) registry.Result {
	select {
	case <-time.After(w.delay):
	case <-ctx.Done():
		return registry.Result{TaskID: task.ID, WorkerName: w.name, Success: false, Error: "timeout", ErrorKind: "timeout"}
	}
	return registry.Result{TaskID: task.ID, WorkerName: w.name, Success: w.ok}
}

func TestDispatcher_RouteSingleWorker(t *testing.T) {
	reg := registry.New(nil, nil)
	reg.Register(&fakeWorker{name: "w1", ok: true})
	d := New(reg, 30*time.Second)

	result := d.Route(context.Background(), "w1", registry.Task{ID: "t1"})
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
}

func TestDispatcher_RouteMultiSequentialPreservesOrder(t *testing.T) {
	reg := registry.New(nil, nil)
	reg.Register(&fakeWorker{name: "w1", ok: true})
	reg.Register(&fakeWorker{name: "w2", ok: false})
	d := New(reg, 30*time.Second)

	results := d.RouteMulti(context.Background(), []string{"w1", "w2"}, registry.Task{ID: "t1"})
	if len(results) != 2 || results[0].WorkerName != "w1" || results[1].WorkerName != "w2" {
		t.Fatalf("expected order w1,w2, got %+v", results)
	}
}

func TestDispatcher_RouteMultiParallelPreservesInputOrder(t *testing.T) {
	reg := registry.New(nil, nil)
	reg.Register(&fakeWorker{name: "slow", ok: true, delay: 50 * time.Millisecond})
	reg.Register(&fakeWorker{name: "fast", ok: true})
	d := New(reg, 30*time.Second)

	results := d.RouteMulti(context.Background(), []string{"slow", "fast"}, registry.Task{ID: "t1", Parallel: true})
	if results[0].WorkerName != "slow" || results[1].WorkerName != "fast" {
		t.Fatalf("expected input order preserved despite fast finishing first, got %+v", results)
	}
}

func TestDispatcher_DeadlineProducesSyntheticTimeout(t *testing.T) {
	reg := registry.New(nil, nil)
	reg.Register(&fakeWorker{name: "slow", delay: time.Second})
	d := New(reg, 10*time.Millisecond)

	result := d.Route(context.Background(), "slow", registry.Task{ID: "t1"})
	if result.Success || result.ErrorKind != "timeout" {
		t.Fatalf("expected a synthetic timeout result, got %+v", result)
	}
}
