// Package network is the MQTT broker's transport layer: TCP, TLS, and
// WebSocket/WSS listeners feeding a shared accept loop and per-connection
// packet handler, generalized from the teacher's gRPC/HTTP listen-and-serve
// shape (pkg/api.Server.Start, pkg/ingress.Proxy.Start) to MQTT's own wire
// framing.
package network

import (
	"bufio"
	"io"
	"net"
	"time"
)

// Transport identifies which wire transport a Conn was accepted over.
type Transport int

const (
	TransportTCP Transport = iota
	TransportTLS
	TransportWebSocket
	TransportWebSocketTLS
	// TransportQUIC is represented structurally (Transport, ListenerConfig,
	// metrics labels) but Server.bind does not implement it: no QUIC library
	// is available to ground an implementation on, and hand-rolling RFC 9000
	// is out of scope for this layer. Configuring a QUIC ListenerConfig
	// fails at bind time with a clear error instead of silently falling
	// back to TCP.
	TransportQUIC
)

func (t Transport) String() string {
	switch t {
	case TransportTCP:
		return "tcp"
	case TransportTLS:
		return "tls"
	case TransportWebSocket:
		return "ws"
	case TransportWebSocketTLS:
		return "wss"
	case TransportQUIC:
		return "quic"
	default:
		return "unknown"
	}
}

// Conn is a byte stream carrying MQTT packets, regardless of whether the
// underlying transport is a raw TCP/TLS socket or a WebSocket connection
// framing each read/write in WebSocket binary frames.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
	RemoteAddr() net.Addr
	Transport() Transport
	SetDeadline(t time.Time) error
}

// rawConn adapts a plain net.Conn (TCP or TLS) to Conn.
type rawConn struct {
	net.Conn
	transport Transport
	r         *bufio.Reader
}

func newRawConn(c net.Conn, transport Transport) *rawConn {
	return &rawConn{Conn: c, transport: transport, r: bufio.NewReader(c)}
}

func (c *rawConn) Read(p []byte) (int, error)  { return c.r.Read(p) }
func (c *rawConn) Transport() Transport        { return c.transport }
func (c *rawConn) RemoteAddr() net.Addr        { return c.Conn.RemoteAddr() }
