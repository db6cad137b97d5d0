package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/robustmq/robustmq/pkg/cache"
	"github.com/robustmq/robustmq/pkg/types"
)

// UpdateCacheRequest carries one cache.Update push to a broker (spec 4.6).
type UpdateCacheRequest struct {
	Update cache.Update `json:"update"`
}

// UpdateCacheReply acknowledges a cache push.
type UpdateCacheReply struct{}

// DeleteSessionRequest asks a broker to tear down one client's live
// session state (used when another broker takes over the client).
type DeleteSessionRequest struct {
	ClientID string `json:"client_id"`
}

// DeleteSessionReply acknowledges a session teardown.
type DeleteSessionReply struct{}

// SendLastWillMessageRequest asks a broker to publish a disconnecting
// client's last will on its behalf (spec 4.11).
type SendLastWillMessageRequest struct {
	ClientID string         `json:"client_id"`
	LastWill types.LastWill `json:"last_will"`
}

// SendLastWillMessageReply acknowledges a last-will publish.
type SendLastWillMessageReply struct{}

// BrokerInnerServer is implemented by the MQTT broker process.
type BrokerInnerServer interface {
	UpdateCache(ctx context.Context, req *UpdateCacheRequest) (*UpdateCacheReply, error)
	DeleteSession(ctx context.Context, req *DeleteSessionRequest) (*DeleteSessionReply, error)
	SendLastWillMessage(ctx context.Context, req *SendLastWillMessageRequest) (*SendLastWillMessageReply, error)
}

func brokerHandler[Req, Resp any](call func(BrokerInnerServer, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BrokerInnerServer), ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: brokerServiceDesc.ServiceName}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(BrokerInnerServer), ctx, req.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}

var brokerServiceDesc = grpc.ServiceDesc{
	ServiceName: "robustmq.broker.BrokerInnerService",
	HandlerType: (*BrokerInnerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "UpdateCache", Handler: brokerHandler(BrokerInnerServer.UpdateCache)},
		{MethodName: "DeleteSession", Handler: brokerHandler(BrokerInnerServer.DeleteSession)},
		{MethodName: "SendLastWillMessage", Handler: brokerHandler(BrokerInnerServer.SendLastWillMessage)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "robustmq/broker_service.proto",
}

// RegisterBrokerInnerServer registers srv's RPCs on s.
func RegisterBrokerInnerServer(s *grpc.Server, srv BrokerInnerServer) {
	s.RegisterService(&brokerServiceDesc, srv)
}

// BrokerClient is a thin wrapper dialing one broker's inner-call endpoint,
// implementing pkg/innercall.Pusher.
type BrokerClient struct {
	conn *grpc.ClientConn
}

// NewBrokerClient wraps an already-dialed connection to a broker.
func NewBrokerClient(conn *grpc.ClientConn) *BrokerClient {
	return &BrokerClient{conn: conn}
}

// Push implements pkg/innercall.Pusher by invoking UpdateCache.
func (c *BrokerClient) Push(ctx context.Context, _ string, update cache.Update) error {
	req := &UpdateCacheRequest{Update: update}
	reply := new(UpdateCacheReply)
	fullMethod := "/" + brokerServiceDesc.ServiceName + "/UpdateCache"
	return c.conn.Invoke(ctx, fullMethod, req, reply, grpc.CallContentSubtype(codecName))
}
