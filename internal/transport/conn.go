// Package transport implements the TLS WebSocket-style endpoint that
// carries framed control messages between peer and server.
package transport

import (
	"errors"
	"io"
	"net"
	"sync"

	"github.com/gorilla/websocket"
)

// Conn wraps a gorilla/websocket connection with a one-frame-per-line
// discipline and serializes writes, since gorilla's own contract allows
// only one concurrent writer per connection — the pump and the dispatcher
// both write through this same lock.
type Conn struct {
	ws         *websocket.Conn
	remoteAddr string

	writeMu sync.Mutex
}

// NewConn wraps an upgraded websocket connection. remoteAddr is the peer
// key: the host portion only, port stripped.
func NewConn(ws *websocket.Conn, remoteAddr string) *Conn {
	return &Conn{ws: ws, remoteAddr: remoteAddr}
}

// ReadFrame blocks for the next frame line. Binary frames are accepted and
// decoded as UTF-8. An ordinary close (a normal or going-away close frame
// from the peer, or this side closing the connection) is reported as io.EOF.
func (c *Conn) ReadFrame() (string, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, net.ErrClosed) {
			return "", io.EOF
		}
		return "", err
	}
	return string(data), nil
}

// WriteFrame sends one frame line as a text message.
func (c *Conn) WriteFrame(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, []byte(line))
}

// RemoteAddr returns the peer key this connection was admitted under.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.ws.Close()
}

// HostOnly strips the port from a net.Addr-formatted "host:port" string;
// the peer key is the remote IP address, not host:port.
func HostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
