package network_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robustmq/robustmq/pkg/mqtt/network"
	"github.com/robustmq/robustmq/pkg/mqtt/packet"
)

// TestServerTCPRoundTrip exercises the full acceptor -> registry -> pipeline
// -> handler -> responder path over a real TCP loopback connection with a
// minimal CONNECT/CONNACK exchange.
func TestServerTCPRoundTrip(t *testing.T) {
	registry := network.NewRegistry()

	process := func(req network.Request) []network.Response {
		connect, ok := req.Packet.(*packet.Connect)
		if !ok {
			return nil
		}
		registry.SetVersion(req.ConnID, connect.ProtocolVersion)
		return []network.Response{{
			ConnID: req.ConnID,
			Packet: &packet.ConnAck{SessionPresent: false, ReasonCode: 0},
		}}
	}

	srv := network.New(registry, 2, 2, process)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := srv.Listen(ctx, []network.ListenerConfig{{Transport: network.TransportTCP, Addr: "127.0.0.1:0"}})
	require.NoError(t, err)
	defer srv.Shutdown(time.Second)

	addr := srv.Addrs()[0].String()
	client, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer client.Close()

	connect := &packet.Connect{
		ProtocolName:    "MQTT",
		ProtocolVersion: packet.Version311,
		CleanStart:      true,
		KeepAlive:       60,
		ClientID:        "test-client",
	}
	encoded, err := packet.Encode(connect, packet.Version311)
	require.NoError(t, err)

	_, err = client.Write(encoded)
	require.NoError(t, err)

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := packet.Decode(client, packet.Version311)
	require.NoError(t, err)

	connAck, ok := resp.(*packet.ConnAck)
	require.True(t, ok, "expected a ConnAck, got %T", resp)
	require.Equal(t, byte(0), connAck.ReasonCode)
}

// TestServerShutdownClosesListeners verifies Shutdown stops accepting new
// connections and returns once no connections remain active.
func TestServerShutdownClosesListeners(t *testing.T) {
	registry := network.NewRegistry()
	srv := network.New(registry, 1, 1, func(req network.Request) []network.Response { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, srv.Listen(ctx, []network.ListenerConfig{{Transport: network.TransportTCP, Addr: "127.0.0.1:0"}}))

	addr := srv.Addrs()[0].String()

	err := srv.Shutdown(time.Second)
	require.NoError(t, err)

	_, dialErr := net.Dial("tcp", addr)
	require.Error(t, dialErr)
}
