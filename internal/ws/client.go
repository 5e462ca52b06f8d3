package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// peer is what the hub needs from a live connection.
type peer interface {
	write(mt int, data []byte) error
	close()
}

type clientConn struct {
	rawConn   *websocket.Conn
	mu        sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

var _ peer = (*clientConn)(nil)

func newClientConn(raw *websocket.Conn) *clientConn {
	return &clientConn{rawConn: raw, done: make(chan struct{})}
}

func (c *clientConn) write(mt int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.rawConn.WriteMessage(mt, data) // Text/Binary only
}

func (c *clientConn) writeText(s string) error {
	return c.write(websocket.TextMessage, []byte(s))
}

// ping may run concurrently with write; gorilla allows WriteControl alongside
// the single writer.
func (c *clientConn) ping() error {
	return c.rawConn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *clientConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.rawConn.Close()
	})
}
