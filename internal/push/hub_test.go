package push

import (
	"testing"

	"go.uber.org/zap"

	"github.com/omakh-hive/queen/internal/metrics"
)

func TestHub_JoinRejectsOverCapacity(t *testing.T) {
	h := NewHub(1, metrics.New(), zap.NewNop())
	c1 := &conn{}
	c2 := &conn{}

	if err := h.Join(TopicRegistry, c1); err != nil {
		t.Fatalf("first join should succeed: %v", err)
	}
	if err := h.Join(TopicRegistry, c2); err == nil {
		t.Fatal("expected ErrChannelFull on the second join")
	} else if _, ok := err.(ErrChannelFull); !ok {
		t.Fatalf("expected ErrChannelFull, got %T", err)
	}
}

func TestHub_LeaveFreesCapacity(t *testing.T) {
	h := NewHub(1, metrics.New(), zap.NewNop())
	c1 := &conn{}
	c2 := &conn{}

	if err := h.Join(TopicRegistry, c1); err != nil {
		t.Fatal(err)
	}
	h.Leave(TopicRegistry, c1)
	if err := h.Join(TopicRegistry, c2); err != nil {
		t.Fatalf("expected join to succeed after leave: %v", err)
	}
}

func TestHub_PushIfChangedDedupes(t *testing.T) {
	h := NewHub(10, metrics.New(), zap.NewNop())

	calls := 0
	count := func() (any, error) { return map[string]int{"n": 1}, nil }
	push := func() {
		data, _ := count()
		if err := h.pushIfChanged(TopicAnalytics, data); err != nil {
			t.Fatal(err)
		}
		calls++
	}

	ts := h.state(TopicAnalytics)
	push()
	first := ts.lastHash
	push() // identical data, should not change lastHash
	if ts.lastHash != first {
		t.Fatal("expected hash to remain stable across identical pushes")
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls recorded, got %d", calls)
	}
}

func TestHub_PushIfChangedDetectsDiff(t *testing.T) {
	h := NewHub(10, metrics.New(), zap.NewNop())
	ts := h.state(TopicAnalytics)

	if err := h.pushIfChanged(TopicAnalytics, map[string]int{"n": 1}); err != nil {
		t.Fatal(err)
	}
	first := ts.lastHash

	if err := h.pushIfChanged(TopicAnalytics, map[string]int{"n": 2}); err != nil {
		t.Fatal(err)
	}
	if ts.lastHash == first {
		t.Fatal("expected hash to change after differing snapshot")
	}
}

func TestHub_CountReflectsJoinsAndLeaves(t *testing.T) {
	h := NewHub(10, metrics.New(), zap.NewNop())
	c1, c2 := &conn{}, &conn{}

	_ = h.Join(TopicDecisions, c1)
	_ = h.Join(TopicDecisions, c2)
	if n := h.Count(TopicDecisions); n != 2 {
		t.Fatalf("expected 2 subscribers, got %d", n)
	}

	h.Leave(TopicDecisions, c1)
	if n := h.Count(TopicDecisions); n != 1 {
		t.Fatalf("expected 1 subscriber after leave, got %d", n)
	}
}

func TestHub_TopicsAreIndependent(t *testing.T) {
	h := NewHub(1, metrics.New(), zap.NewNop())
	c1, c2 := &conn{}, &conn{}

	if err := h.Join(TopicRegistry, c1); err != nil {
		t.Fatal(err)
	}
	if err := h.Join(TopicDecisions, c2); err != nil {
		t.Fatalf("a full registry topic must not affect decisions: %v", err)
	}
}
