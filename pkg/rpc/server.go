package rpc

import (
	"crypto/tls"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/robustmq/robustmq/pkg/log"
)

// Server wraps a grpc.Server hosting the meta service and/or the broker
// inner-call service, following the teacher's pkg/api/server.go mTLS
// scaffold (NewServer builds credentials, Start listens and serves, Stop
// gracefully drains).
type Server struct {
	grpc *grpc.Server
}

// NewServer builds a Server. When cert/key paths are empty the server
// listens in plaintext, suitable only for local development; production
// deployments pass a certificate pair per spec section 6's TLS
// requirement.
func NewServer(certFile, keyFile string) (*Server, error) {
	var opts []grpc.ServerOption
	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("rpc: load server certificate: %w", err)
		}
		tlsConfig := &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}
	return &Server{grpc: grpc.NewServer(opts...)}, nil
}

// RegisterMeta registers a MetaServer implementation on this server.
func (s *Server) RegisterMeta(srv MetaServer) { RegisterMetaServer(s.grpc, srv) }

// RegisterBroker registers a BrokerInnerServer implementation on this server.
func (s *Server) RegisterBroker(srv BrokerInnerServer) { RegisterBrokerInnerServer(s.grpc, srv) }

// RegisterJournal registers a JournalServer implementation on this server.
func (s *Server) RegisterJournal(srv JournalServer) { RegisterJournalServer(s.grpc, srv) }

// Start listens on addr and serves until the listener or server stops.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc: listen on %s: %w", addr, err)
	}
	log.Logger.Info().Str("addr", addr).Msg("rpc: gRPC server listening")
	return s.grpc.Serve(lis)
}

// Stop gracefully drains in-flight RPCs then stops the server.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
}
