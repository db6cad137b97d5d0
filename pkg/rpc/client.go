package rpc

import (
	"context"
	"crypto/tls"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// MetaClient is a thin wrapper around a grpc.ClientConn dialed against one
// meta-service node, generalizing the teacher's pkg/client.Client (one
// ClientConn plus generated stub calls) to this package's hand-invoked,
// JSON-coded RPCs.
type MetaClient struct {
	conn *grpc.ClientConn
}

// DialMeta connects to a meta-service node at addr. When tlsConfig is nil
// the connection is plaintext (suitable only for local development).
func DialMeta(addr string, tlsConfig *tls.Config) (*MetaClient, error) {
	creds := insecure.NewCredentials()
	if tlsConfig != nil {
		creds = credentials.NewTLS(tlsConfig)
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("rpc: dial meta service at %s: %w", addr, err)
	}
	return &MetaClient{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *MetaClient) Close() error { return c.conn.Close() }

func (c *MetaClient) invoke(ctx context.Context, method string, req, reply any) error {
	fullMethod := fmt.Sprintf("/%s/%s", metaServiceDesc.ServiceName, method)
	return c.conn.Invoke(ctx, fullMethod, req, reply, grpc.CallContentSubtype(codecName))
}

func (c *MetaClient) Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteReply, error) {
	reply := new(ExecuteReply)
	if err := c.invoke(ctx, "Execute", req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *MetaClient) RegisterNode(ctx context.Context, req *RegisterNodeRequest) (*RegisterNodeReply, error) {
	reply := new(RegisterNodeReply)
	if err := c.invoke(ctx, "RegisterNode", req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *MetaClient) Heartbeat(ctx context.Context, req *HeartbeatRequest) (*HeartbeatReply, error) {
	reply := new(HeartbeatReply)
	if err := c.invoke(ctx, "Heartbeat", req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *MetaClient) ClusterStatus(ctx context.Context, req *ClusterStatusRequest) (*ClusterStatusReply, error) {
	reply := new(ClusterStatusReply)
	if err := c.invoke(ctx, "ClusterStatus", req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *MetaClient) GetNode(ctx context.Context, req *GetNodeRequest) (*GetNodeReply, error) {
	reply := new(GetNodeReply)
	if err := c.invoke(ctx, "GetNode", req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *MetaClient) GetSession(ctx context.Context, req *GetSessionRequest) (*GetSessionReply, error) {
	reply := new(GetSessionReply)
	if err := c.invoke(ctx, "GetSession", req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *MetaClient) ListSubscriptions(ctx context.Context, req *ListSubscriptionsRequest) (*ListSubscriptionsReply, error) {
	reply := new(ListSubscriptionsReply)
	if err := c.invoke(ctx, "ListSubscriptions", req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *MetaClient) GetShard(ctx context.Context, req *GetShardRequest) (*GetShardReply, error) {
	reply := new(GetShardReply)
	if err := c.invoke(ctx, "GetShard", req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *MetaClient) ListSegments(ctx context.Context, req *ListSegmentsRequest) (*ListSegmentsReply, error) {
	reply := new(ListSegmentsReply)
	if err := c.invoke(ctx, "ListSegments", req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *MetaClient) GetShareGroupLeader(ctx context.Context, req *GetShareGroupLeaderRequest) (*GetShareGroupLeaderReply, error) {
	reply := new(GetShareGroupLeaderReply)
	if err := c.invoke(ctx, "GetShareGroupLeader", req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *MetaClient) GetOffset(ctx context.Context, req *GetOffsetRequest) (*GetOffsetReply, error) {
	reply := new(GetOffsetReply)
	if err := c.invoke(ctx, "GetOffset", req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *MetaClient) GetUser(ctx context.Context, req *GetUserRequest) (*GetUserReply, error) {
	reply := new(GetUserReply)
	if err := c.invoke(ctx, "GetUser", req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}
