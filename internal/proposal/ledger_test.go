package proposal

import (
	"testing"
	"time"

	"github.com/omakh-hive/queen/internal/storage"
)

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(t.TempDir() + "/ledger.db")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLedger_RecordsAndChains(t *testing.T) {
	db := openTestDB(t)
	l, err := NewLedger(db)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}

	now := time.Now()
	if err := l.Record("p1", StatusDraft, StatusValidating, "start", now); err != nil {
		t.Fatalf("record 1: %v", err)
	}
	if err := l.Record("p1", StatusValidating, StatusReady, "passed", now.Add(time.Second)); err != nil {
		t.Fatalf("record 2: %v", err)
	}

	history, err := l.History("p1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(history))
	}
	if history[0].ParentHash != "" {
		t.Fatal("expected first entry to have no parent hash")
	}

	var second LedgerEntry
	for _, e := range history {
		if e.ToStatus == StatusReady {
			second = e
		}
	}
	if second.ParentHash == "" {
		t.Fatal("expected second entry to chain to the first")
	}
}

func TestLedger_IsolatesSeparateProposals(t *testing.T) {
	db := openTestDB(t)
	l, err := NewLedger(db)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	l.Record("p1", StatusDraft, StatusValidating, "a", now)
	l.Record("p2", StatusDraft, StatusValidating, "b", now)

	h1, _ := l.History("p1")
	h2, _ := l.History("p2")
	if len(h1) != 1 || len(h2) != 1 {
		t.Fatalf("expected isolated histories, got h1=%d h2=%d", len(h1), len(h2))
	}
}
