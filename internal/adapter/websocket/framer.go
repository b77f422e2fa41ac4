package websocket

import (
	"context"
	"fmt"
	"net/http"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/karelxkk/svx-dashboard/internal/domain"
)

const (
	writeTimeout = 5 * time.Second
	maxReadSize  = 512
)

type message struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

// Framer writes events as JSON text messages and heartbeats as pings.
type Framer struct {
	conn *ws.Conn
}

func NewFramer(conn *ws.Conn) *Framer {
	return &Framer{conn: conn}
}

func (f *Framer) Transport() string { return "websocket" }

// Open is a no-op: WebSocket clients reconnect on their own schedule and need no preamble.
func (f *Framer) Open(time.Duration) error { return nil }

func (f *Framer) WriteEvent(e domain.Event) error {
	_ = f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := f.conn.WriteJSON(message{Event: e.Type, Data: e.Payload}); err != nil {
		return fmt.Errorf("write websocket message: %w", err)
	}
	return nil
}

func (f *Framer) Heartbeat() error {
	if err := f.conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("write websocket ping: %w", err)
	}
	return nil
}

// Close sends a close frame and closes the connection.
func (f *Framer) Close() error {
	_ = f.conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseGoingAway, ""), time.Now().Add(time.Second))
	return f.conn.Close()
}

// ReadLoop discards client messages and cancels when the peer goes away or stays silent for
// longer than idle. Pongs extend the deadline. It blocks; run it in its own goroutine.
func ReadLoop(conn *ws.Conn, idle time.Duration, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxReadSize)
	_ = conn.SetReadDeadline(time.Now().Add(idle))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(idle))
	}
}

// NewUpgrader creates an upgrader with the given origin policy.
func NewUpgrader(checkOrigin func(r *http.Request) bool) *ws.Upgrader {
	return &ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin,
	}
}
