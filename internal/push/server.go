package push

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/omakh-hive/queen/internal/metrics"
)

// Server exposes the Hub's topics over HTTP as upgradeable websocket
// endpoints, one per topic, plus a broadcast entry point for other
// components. Grounded on the teacher's internal/metrics.Serve for
// the http.Server lifecycle (mux, graceful Shutdown raced against
// ctx.Done) and original_source's router.websocket handlers for the
// per-topic accept/initial-send/loop shape.
type Server struct {
	hub      *Hub
	upgrader websocket.Upgrader
	log      *zap.Logger
	metrics  *metrics.Metrics

	heartbeatInterval time.Duration
	sources           map[Topic]Source
	intervals         map[Topic]time.Duration
}

// NewServer builds a Server backed by hub. sources maps each topic to
// the function that produces its snapshot; intervals maps each topic
// to its poll cadence (config.PushConfig.TopicIntervals).
func NewServer(hub *Hub, sources map[Topic]Source, intervals map[Topic]time.Duration, heartbeatInterval time.Duration, m *metrics.Metrics, log *zap.Logger) *Server {
	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Admin dashboards are same-origin deployments behind the
			// operator's own reverse proxy; origin checks are its job.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log:               log,
		metrics:           m,
		heartbeatInterval: heartbeatInterval,
		sources:           sources,
		intervals:         intervals,
	}
}

// Mux builds the HTTP handler exposing /ws/admin/{topic} for every
// topic known to s.sources.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	for topic := range s.sources {
		t := topic
		mux.HandleFunc(fmt.Sprintf("/ws/admin/%s", t), func(w http.ResponseWriter, r *http.Request) {
			s.handleSubscribe(w, r, t)
		})
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request, topic Topic) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.log != nil {
			s.log.Warn("websocket upgrade failed", zap.String("topic", string(topic)), zap.Error(err))
		}
		return
	}
	c := newConn(ws)

	if err := s.hub.Join(topic, c); err != nil {
		_ = c.closeWithCode(websocket.ClosePolicyViolation, "channel full")
		if s.log != nil {
			s.log.Warn("connection rejected, topic at capacity", zap.String("topic", string(topic)))
		}
		return
	}
	defer s.hub.Leave(topic, c)
	defer ws.Close()

	if source, ok := s.sources[topic]; ok {
		if data, err := source(); err == nil {
			_ = c.writeJSON(newEnvelope(topic, data))
		}
	}

	// Drain inbound frames (client keepalives, close frames) until the
	// peer disconnects; this connection's outbound side is driven
	// entirely by the topic's Poller and HeartbeatLoop goroutines.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

// Run starts one Poller and one heartbeat loop per topic, then serves
// HTTP on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	for topic, source := range s.sources {
		interval := s.intervals[topic]
		poller := NewPoller(topic, interval, source, s.hub, s.log)
		go poller.Run(ctx)
		go HeartbeatLoop(ctx, s.hub, topic, s.heartbeatInterval)
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Mux(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 0, // long-lived websocket connections
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("push server on %s: %w", addr, err)
	}
	return nil
}
