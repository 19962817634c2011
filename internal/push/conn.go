package push

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// conn wraps a *websocket.Conn with a write mutex — gorilla/websocket
// connections may not be written to concurrently from more than one
// goroutine, but both the poller and a heartbeat ticker write to the
// same connection.
type conn struct {
	ws         *websocket.Conn
	mu         sync.Mutex
	lastPongAt time.Time
}

func newConn(ws *websocket.Conn) *conn {
	c := &conn{ws: ws, lastPongAt: time.Now()}
	ws.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.lastPongAt = time.Now()
		c.mu.Unlock()
		return nil
	})
	return c
}

func (c *conn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteJSON(v)
}

func (c *conn) writePing() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}

func (c *conn) stale(since time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastPongAt) > since
}

func (c *conn) closeWithCode(code int, reason string) error {
	deadline := time.Now().Add(2 * time.Second)
	msg := websocket.FormatCloseMessage(code, reason)
	c.mu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
	c.mu.Unlock()
	return c.ws.Close()
}
