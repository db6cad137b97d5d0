package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// JournalServer is implemented by the journal-server process.
type JournalServer interface {
	CreateShard(ctx context.Context, req *CreateShardRequest) (*CreateShardReply, error)
	DeleteShard(ctx context.Context, req *DeleteShardRequest) (*DeleteShardReply, error)
	BatchWrite(ctx context.Context, req *BatchWriteRequest) (*BatchWriteReply, error)
	ReadByOffset(ctx context.Context, req *ReadByOffsetRequest) (*ReadReply, error)
	ReadByKey(ctx context.Context, req *ReadByKeyRequest) (*ReadReply, error)
	ReadByTag(ctx context.Context, req *ReadByTagRequest) (*ReadReply, error)
	GetOffsetByTimestamp(ctx context.Context, req *GetOffsetByTimestampRequest) (*GetOffsetByTimestampReply, error)
}

func journalHandler[Req, Resp any](call func(JournalServer, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(JournalServer), ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: journalServiceDesc.ServiceName}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(JournalServer), ctx, req.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}

var journalServiceDesc = grpc.ServiceDesc{
	ServiceName: "robustmq.journal.JournalService",
	HandlerType: (*JournalServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateShard", Handler: journalHandler(JournalServer.CreateShard)},
		{MethodName: "DeleteShard", Handler: journalHandler(JournalServer.DeleteShard)},
		{MethodName: "BatchWrite", Handler: journalHandler(JournalServer.BatchWrite)},
		{MethodName: "ReadByOffset", Handler: journalHandler(JournalServer.ReadByOffset)},
		{MethodName: "ReadByKey", Handler: journalHandler(JournalServer.ReadByKey)},
		{MethodName: "ReadByTag", Handler: journalHandler(JournalServer.ReadByTag)},
		{MethodName: "GetOffsetByTimestamp", Handler: journalHandler(JournalServer.GetOffsetByTimestamp)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "robustmq/journal_service.proto",
}

// RegisterJournalServer registers srv's RPCs on s.
func RegisterJournalServer(s *grpc.Server, srv JournalServer) {
	s.RegisterService(&journalServiceDesc, srv)
}

// JournalClient dials one journal node's gRPC endpoint.
type JournalClient struct {
	conn *grpc.ClientConn
}

// DialJournal wraps an already-established connection to a journal node.
func DialJournal(conn *grpc.ClientConn) *JournalClient {
	return &JournalClient{conn: conn}
}

// Close closes the underlying connection.
func (c *JournalClient) Close() error {
	return c.conn.Close()
}

func (c *JournalClient) invoke(ctx context.Context, method string, req, reply any) error {
	fullMethod := "/" + journalServiceDesc.ServiceName + "/" + method
	return c.conn.Invoke(ctx, fullMethod, req, reply, grpc.CallContentSubtype(codecName))
}

func (c *JournalClient) CreateShard(ctx context.Context, req *CreateShardRequest) (*CreateShardReply, error) {
	reply := new(CreateShardReply)
	return reply, c.invoke(ctx, "CreateShard", req, reply)
}

func (c *JournalClient) DeleteShard(ctx context.Context, req *DeleteShardRequest) (*DeleteShardReply, error) {
	reply := new(DeleteShardReply)
	return reply, c.invoke(ctx, "DeleteShard", req, reply)
}

func (c *JournalClient) BatchWrite(ctx context.Context, req *BatchWriteRequest) (*BatchWriteReply, error) {
	reply := new(BatchWriteReply)
	return reply, c.invoke(ctx, "BatchWrite", req, reply)
}

func (c *JournalClient) ReadByOffset(ctx context.Context, req *ReadByOffsetRequest) (*ReadReply, error) {
	reply := new(ReadReply)
	return reply, c.invoke(ctx, "ReadByOffset", req, reply)
}

func (c *JournalClient) ReadByKey(ctx context.Context, req *ReadByKeyRequest) (*ReadReply, error) {
	reply := new(ReadReply)
	return reply, c.invoke(ctx, "ReadByKey", req, reply)
}

func (c *JournalClient) ReadByTag(ctx context.Context, req *ReadByTagRequest) (*ReadReply, error) {
	reply := new(ReadReply)
	return reply, c.invoke(ctx, "ReadByTag", req, reply)
}

func (c *JournalClient) GetOffsetByTimestamp(ctx context.Context, req *GetOffsetByTimestampRequest) (*GetOffsetByTimestampReply, error) {
	reply := new(GetOffsetByTimestampReply)
	return reply, c.invoke(ctx, "GetOffsetByTimestamp", req, reply)
}
