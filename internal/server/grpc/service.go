package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName   = "sitekeeper.identity.v1.Identity"
	ResolveMethod = "/" + ServiceName + "/Resolve"
	RequireMethod = "/" + ServiceName + "/Require"
)

// IdentityServer answers identity decisions for other services. Messages
// are plain structpb.Struct values:
//
//	Resolve {}            -> {"user": {...} | null}
//	Require {"role": "x"} -> {"allowed": bool, "reason": "unauthenticated" | "forbidden" | ""}
type IdentityServer interface {
	Resolve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Require(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var identityServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IdentityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Resolve", Handler: unaryHandler(ResolveMethod, IdentityServer.Resolve)},
		{MethodName: "Require", Handler: unaryHandler(RequireMethod, IdentityServer.Require)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sitekeeper/identity/v1/identity.proto",
}

func RegisterIdentityServer(s grpc.ServiceRegistrar, srv IdentityServer) {
	s.RegisterService(&identityServiceDesc, srv)
}

type method func(IdentityServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call method) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(IdentityServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(IdentityServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// IdentityClient calls the identity service. The caller's access token is
// attached with WithAccessToken.
type IdentityClient struct {
	cc grpc.ClientConnInterface
}

func NewIdentityClient(cc grpc.ClientConnInterface) *IdentityClient {
	return &IdentityClient{cc: cc}
}

func (c *IdentityClient) Resolve(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ResolveMethod, &structpb.Struct{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *IdentityClient) Require(ctx context.Context, role string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"role": role})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, RequireMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
