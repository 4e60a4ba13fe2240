package grpctransport

import (
	"context"

	"google.golang.org/grpc"

	"github.com/ryandielhenn/zephyrgossip/pkg/gossip"
)

const (
	serviceName  = "zephyrgossip.Gossip"
	gossipMethod = "/" + serviceName + "/Gossip"
	probeMethod  = "/" + serviceName + "/Probe"
)

type gossipService interface {
	serve(ctx context.Context, req *gossip.Request) (*gossip.Response, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*gossipService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Gossip", Handler: gossipHandler},
		{MethodName: "Probe", Handler: probeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "zephyrgossip/gossip",
}

func gossipHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return handle(srv, ctx, dec, interceptor, gossip.MsgGossip, gossipMethod)
}

func probeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return handle(srv, ctx, dec, interceptor, gossip.MsgProbe, probeMethod)
}

func handle(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor, kind gossip.MsgType, method string) (any, error) {
	req := new(gossip.Request)
	if err := dec(req); err != nil {
		return nil, err
	}
	// The method decides the kind, whatever the payload says.
	req.Type = kind
	svc := srv.(gossipService)
	if interceptor == nil {
		return svc.serve(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
	return interceptor(ctx, req, info, func(ctx context.Context, r any) (any, error) {
		return svc.serve(ctx, r.(*gossip.Request))
	})
}

func methodFor(kind gossip.MsgType) string {
	if kind == gossip.MsgProbe {
		return probeMethod
	}
	return gossipMethod
}
