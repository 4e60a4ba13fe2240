package grpctransport

import (
	"context"
	"errors"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ryandielhenn/zephyrgossip/pkg/gossip"
)

// Handler accepts inbound requests. *gossip.Controller implements it.
type Handler interface {
	Enqueue(req *gossip.Request) (*gossip.Deferred, error)
}

// Server exposes a Handler over gRPC. Each call waits for the controller
// to resolve the request's Deferred or for the caller's deadline.
type Server struct {
	handler Handler
	grpc    *grpc.Server
	log     *zap.Logger
}

func NewServer(h Handler, log *zap.Logger, opts ...grpc.ServerOption) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{handler: h, log: log}
	s.grpc = grpc.NewServer(opts...)
	s.grpc.RegisterService(&serviceDesc, s)
	return s
}

func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("gossip transport listening", zap.String("addr", lis.Addr().String()))
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop drains in-flight calls until ctx expires, then closes every
// connection.
func (s *Server) Stop(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
	}
}

func (s *Server) serve(ctx context.Context, req *gossip.Request) (*gossip.Response, error) {
	d, err := s.handler.Enqueue(req)
	if err != nil {
		s.log.Debug("inbound request rejected",
			zap.String("id", req.ID),
			zap.Stringer("type", req.Type),
			zap.String("from", req.From),
			zap.Error(err))
		return nil, status.Error(codes.ResourceExhausted, err.Error())
	}
	select {
	case <-d.Done():
		if resp, ok := d.Result(); ok {
			return resp, nil
		}
		return nil, status.Error(codes.Unavailable, "request dropped")
	case <-ctx.Done():
		d.Abort()
		return nil, status.FromContextError(ctx.Err()).Err()
	}
}
