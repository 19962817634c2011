package push

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/omakh-hive/queen/internal/metrics"
)

func newTestServer(t *testing.T, sources map[Topic]Source) (*Server, *httptest.Server) {
	t.Helper()
	hub := NewHub(2, metrics.New(), zap.NewNop())
	intervals := map[Topic]time.Duration{
		TopicRegistry:  20 * time.Millisecond,
		TopicAnalytics: 20 * time.Millisecond,
	}
	s := NewServer(hub, sources, intervals, 20*time.Millisecond, metrics.New(), zap.NewNop())
	ts := httptest.NewServer(s.Mux())
	t.Cleanup(ts.Close)
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server, topic Topic) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/admin/" + string(topic)
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return ws
}

func TestServer_SendsInitialSnapshotOnConnect(t *testing.T) {
	sources := map[Topic]Source{
		TopicRegistry: func() (any, error) { return map[string]int{"workers": 3}, nil },
	}
	_, ts := newTestServer(t, sources)

	ws := dial(t, ts, TopicRegistry)
	defer ws.Close()

	var env Envelope
	if err := ws.ReadJSON(&env); err != nil {
		t.Fatal(err)
	}
	if env.Type != "hive_update" {
		t.Fatalf("expected hive_update, got %s", env.Type)
	}
}

func TestServer_RejectsOverCapacityWithCloseCode(t *testing.T) {
	sources := map[Topic]Source{
		TopicRegistry: func() (any, error) { return map[string]int{}, nil },
	}
	_, ts := newTestServer(t, sources)

	w1 := dial(t, ts, TopicRegistry)
	defer w1.Close()
	w2 := dial(t, ts, TopicRegistry)
	defer w2.Close()

	w3 := dial(t, ts, TopicRegistry)
	defer w3.Close()

	_, _, err := w3.ReadMessage()
	if err == nil {
		t.Fatal("expected the third connection to be closed as channel full")
	}
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected a close error, got %T: %v", err, err)
	}
	if closeErr.Code != websocket.ClosePolicyViolation {
		t.Fatalf("expected close code %d, got %d", websocket.ClosePolicyViolation, closeErr.Code)
	}
}

func TestServer_PushesOnChangeDuringRun(t *testing.T) {
	count := 0
	sources := map[Topic]Source{
		TopicAnalytics: func() (any, error) {
			count++
			return map[string]int{"n": count}, nil
		},
	}
	s, ts := newTestServer(t, sources)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := s.hub
	go func() {
		poller := NewPoller(TopicAnalytics, 10*time.Millisecond, sources[TopicAnalytics], hub, nil)
		poller.Run(ctx)
	}()

	ws := dial(t, ts, TopicAnalytics)
	defer ws.Close()

	var first Envelope
	if err := ws.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}

	var second Envelope
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := ws.ReadJSON(&second); err != nil {
		t.Fatalf("expected a follow-up push once data changed: %v", err)
	}
}
