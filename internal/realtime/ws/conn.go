// Package ws adapts websocket connections to the realtime hub. One reader
// goroutine dispatches client requests in arrival order; one writer
// goroutine serializes all outbound frames, which is what keeps per-origin
// event order intact on the wire.
package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/novachat/nova/internal/realtime"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
	maxFrameSize   = 1 << 20
)

var errConnClosed = errors.New("ws: connection closed")

// Conn wraps a websocket connection behind the realtime.Conn interface.
type Conn struct {
	id   string
	sock *websocket.Conn

	out  chan any
	done chan struct{}

	closeOnce sync.Once
}

func newConn(sock *websocket.Conn) *Conn {
	return &Conn{
		id:   uuid.NewString(),
		sock: sock,
		out:  make(chan any, sendBufferSize),
		done: make(chan struct{}),
	}
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() string { return c.id }

// Send queues an event for delivery. Events queue in call order; a full
// buffer means the client has stopped draining and the send is rejected so
// the registry can log it.
func (c *Conn) Send(event realtime.Event) error {
	return c.enqueue(event)
}

// enqueue pushes any frame onto the writer. Request responses and pushed
// events share the queue so they interleave in submission order.
func (c *Conn) enqueue(frame any) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.out <- frame:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		return errors.New("ws: send buffer full")
	}
}

// Close shuts the socket down. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.sock.Close()
	})
	return nil
}

// writePump owns all writes to the socket. It exits when the connection
// closes or a write fails.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case frame := <-c.out:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
