// Package wsconn adapts gorilla/websocket connections to a
// single-writer send pump so a connection's read loop and any
// out-of-band callback (ICE candidates, keepalive pings) never race
// writing to the same socket.
package wsconn

import (
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// closeWriteWait bounds how long Close waits for the close control
// frame to reach the socket before tearing the connection down anyway.
const closeWriteWait = 5 * time.Second

// Upgrader mirrors the origin-check policy used elsewhere in this
// codebase: always allow an empty Origin header, allow anything
// outside of a production environment, and otherwise reject the
// request. There is no allow-list: with ENVIRONMENT=production every
// request carrying an Origin header is refused.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if os.Getenv("ENVIRONMENT") != "production" {
			return true
		}
		return false
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Conn wraps a *websocket.Conn with a bounded send channel and a
// dedicated write pump goroutine. Callers enqueue outgoing frames with
// Send; only the pump goroutine ever calls WriteMessage.
type Conn struct {
	ws        *websocket.Conn
	send      chan []byte
	log       *slog.Logger
	closeOnce sync.Once
}

// New wraps ws and starts its write pump. Close must be called when
// the connection's owner is done with it; further calls are no-ops.
func New(ws *websocket.Conn, log *slog.Logger) *Conn {
	c := &Conn{
		ws:   ws,
		send: make(chan []byte, 64),
		log:  log,
	}
	go c.writePump()
	return c
}

// Send enqueues a text frame for delivery. It never blocks the
// caller indefinitely against a slow reader: a full queue drops the
// connection rather than backing up memory, since a signaling socket
// that cannot keep up is already useless to its peer.
func (c *Conn) Send(payload []byte) {
	select {
	case c.send <- payload:
	default:
		c.log.Warn("signaling send queue full, closing connection")
		c.Close()
	}
}

// ReadMessage reads the next text/binary frame, blocking the caller.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

// Close sends a WebSocket close frame, then shuts down the write pump
// and the underlying socket. Safe to call more than once. WriteControl
// is safe to call concurrently with the pump's WriteMessage calls, so
// this never needs to go through the send channel.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(closeWriteWait)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := c.ws.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			c.log.Warn("failed to send websocket close frame", "error", err)
		}
		close(c.send)
	})
}

func (c *Conn) writePump() {
	defer c.ws.Close()
	for msg := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.log.Warn("signaling write error", "error", err)
			return
		}
	}
}
