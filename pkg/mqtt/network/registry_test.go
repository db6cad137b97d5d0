package network_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robustmq/robustmq/pkg/mqtt/network"
	"github.com/robustmq/robustmq/pkg/mqtt/packet"
)

// fakeConn is a minimal network.Conn shared across this package's tests: it
// records every Write and never blocks on Read.
type fakeConn struct {
	writes [][]byte
	closed bool
}

func (f *fakeConn) Read(p []byte) (int, error)  { return 0, nil }
func (f *fakeConn) Write(p []byte) (int, error) { f.writes = append(f.writes, append([]byte(nil), p...)); return len(p), nil }
func (f *fakeConn) Close() error                { f.closed = true; return nil }
func (f *fakeConn) RemoteAddr() net.Addr        { return nil }
func (f *fakeConn) Transport() network.Transport { return network.TransportTCP }
func (f *fakeConn) SetDeadline(t time.Time) error { return nil }

func TestRegistryRegisterGetRemove(t *testing.T) {
	r := network.NewRegistry()
	conn := &fakeConn{}

	state := r.Register(conn, network.TransportTCP)
	require.NotEmpty(t, state.ID)
	assert.Equal(t, packet.Version311, state.Version)
	assert.Equal(t, 1, r.Count())

	got, ok := r.Get(state.ID)
	require.True(t, ok)
	assert.Same(t, state, got)

	r.SetVersion(state.ID, packet.Version5)
	got, _ = r.Get(state.ID)
	assert.Equal(t, packet.Version5, got.Version)

	r.Remove(state.ID)
	_, ok = r.Get(state.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Count())
}

func TestRegistryDistinctIDsPerConnection(t *testing.T) {
	r := network.NewRegistry()
	a := r.Register(&fakeConn{}, network.TransportTCP)
	b := r.Register(&fakeConn{}, network.TransportWebSocket)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, r.Count())
}
