package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// MetaServer is implemented by the meta-service process and invoked by
// the hand-built ServiceDesc below — the same role protoc-gen-go-grpc's
// generated server interface plays, written by hand since no .proto/.pb.go
// exists in this module's lineage.
type MetaServer interface {
	Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteReply, error)
	RegisterNode(ctx context.Context, req *RegisterNodeRequest) (*RegisterNodeReply, error)
	Heartbeat(ctx context.Context, req *HeartbeatRequest) (*HeartbeatReply, error)
	ClusterStatus(ctx context.Context, req *ClusterStatusRequest) (*ClusterStatusReply, error)
	GetNode(ctx context.Context, req *GetNodeRequest) (*GetNodeReply, error)
	GetSession(ctx context.Context, req *GetSessionRequest) (*GetSessionReply, error)
	ListSubscriptions(ctx context.Context, req *ListSubscriptionsRequest) (*ListSubscriptionsReply, error)
	GetShard(ctx context.Context, req *GetShardRequest) (*GetShardReply, error)
	ListSegments(ctx context.Context, req *ListSegmentsRequest) (*ListSegmentsReply, error)
	GetShareGroupLeader(ctx context.Context, req *GetShareGroupLeaderRequest) (*GetShareGroupLeaderReply, error)
	GetOffset(ctx context.Context, req *GetOffsetRequest) (*GetOffsetReply, error)
	GetUser(ctx context.Context, req *GetUserRequest) (*GetUserReply, error)
}

func metaHandler[Req, Resp any](call func(MetaServer, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MetaServer), ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: metaServiceDesc.ServiceName}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MetaServer), ctx, req.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}

// metaServiceDesc is the hand-written equivalent of a generated
// *_grpc.pb.go ServiceDesc: one entry per RPC, each wired to a MetaServer
// method via metaHandler's generic glue.
var metaServiceDesc = grpc.ServiceDesc{
	ServiceName: "robustmq.meta.MetaService",
	HandlerType: (*MetaServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Execute", Handler: metaHandler(MetaServer.Execute)},
		{MethodName: "RegisterNode", Handler: metaHandler(MetaServer.RegisterNode)},
		{MethodName: "Heartbeat", Handler: metaHandler(MetaServer.Heartbeat)},
		{MethodName: "ClusterStatus", Handler: metaHandler(MetaServer.ClusterStatus)},
		{MethodName: "GetNode", Handler: metaHandler(MetaServer.GetNode)},
		{MethodName: "GetSession", Handler: metaHandler(MetaServer.GetSession)},
		{MethodName: "ListSubscriptions", Handler: metaHandler(MetaServer.ListSubscriptions)},
		{MethodName: "GetShard", Handler: metaHandler(MetaServer.GetShard)},
		{MethodName: "ListSegments", Handler: metaHandler(MetaServer.ListSegments)},
		{MethodName: "GetShareGroupLeader", Handler: metaHandler(MetaServer.GetShareGroupLeader)},
		{MethodName: "GetOffset", Handler: metaHandler(MetaServer.GetOffset)},
		{MethodName: "GetUser", Handler: metaHandler(MetaServer.GetUser)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "robustmq/meta_service.proto",
}

// RegisterMetaServer registers srv's RPCs on s.
func RegisterMetaServer(s *grpc.Server, srv MetaServer) {
	s.RegisterService(&metaServiceDesc, srv)
}
