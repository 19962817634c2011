package lifecycle

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/omakh-hive/queen/internal/bus"
	"github.com/omakh-hive/queen/internal/metrics"
)

func TestManager_ShutdownFlushesOpsAndSessions(t *testing.T) {
	b := bus.NewMemory(100, 1000, metrics.New())
	defer b.Close()
	m := New(b, testConfig(), metrics.New(), zap.NewNop())
	ctx := context.Background()
	if _, err := m.Boot(ctx); err != nil {
		t.Fatal(err)
	}

	marked := false
	logsFlushed := false
	report := m.Shutdown(ctx,
		func() { marked = true },
		func() []PendingOp { return []PendingOp{{ID: "op1", Recipient: "w", Type: "retry"}} },
		func() []Session { return []Session{{ID: "s1", UserID: "u1"}} },
		func() error { logsFlushed = true; return nil },
	)

	if !marked || !logsFlushed {
		t.Fatal("expected unhealthy-mark and log-flush callbacks invoked")
	}
	if report.PendingOpsFlushed != 1 || report.SessionsPersisted != 1 {
		t.Fatalf("expected 1 op and 1 session flushed, got %+v", report)
	}
	if report.HitDrainTimeout || report.HitFallback {
		t.Fatalf("expected a clean fast shutdown, got %+v", report)
	}
}

func TestManager_ShutdownHitsFallbackWhenStuck(t *testing.T) {
	b := bus.NewMemory(100, 1000, metrics.New())
	defer b.Close()
	cfg := testConfig()
	cfg.ShutdownDrainTimeout = 20 * time.Millisecond
	cfg.ShutdownFallbackTimeout = 60 * time.Millisecond
	m := New(b, cfg, metrics.New(), zap.NewNop())
	ctx := context.Background()
	if _, err := m.Boot(ctx); err != nil {
		t.Fatal(err)
	}

	slowOps := func() []PendingOp {
		time.Sleep(200 * time.Millisecond)
		return nil
	}

	report := m.Shutdown(ctx, nil, slowOps, nil, nil)
	if !report.HitFallback {
		t.Fatalf("expected fallback cutoff, got %+v", report)
	}
}
