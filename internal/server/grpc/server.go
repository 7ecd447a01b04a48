// Package grpc serves identity decisions (who is the caller, may they act
// as a role) to other services over gRPC.
package grpc

import (
	"context"
	"errors"
	"net"

	"github.com/dmitrijs2005/sitekeeper/internal/common"
	"github.com/dmitrijs2005/sitekeeper/internal/logging"
	"github.com/dmitrijs2005/sitekeeper/internal/server/auth"
	"github.com/dmitrijs2005/sitekeeper/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type Gate interface {
	Authenticate(ctx context.Context, claims *auth.AccessClaims) (*services.User, error)
	Require(ctx context.Context, claims *auth.AccessClaims, role string) error
}

type TokenVerifier interface {
	Verify(ctx context.Context, token string, kind auth.TokenKind) (*auth.AccessClaims, error)
}

type GRPCServer struct {
	address  string
	gate     Gate
	verifier TokenVerifier
	logger   logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, gate Gate, verifier TokenVerifier) *GRPCServer {
	return &GRPCServer{
		address:  a,
		gate:     gate,
		verifier: verifier,
		logger:   l.With("module", "grpc_server"),
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {
	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on listen until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))
	RegisterIdentityServer(srv, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (s *GRPCServer) Resolve(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	user, err := s.gate.Authenticate(ctx, claimsFromContext(ctx))
	if err != nil {
		if errors.Is(err, common.ErrUnauthenticated) {
			return structpb.NewStruct(map[string]any{"user": nil})
		}
		s.logger.Error(ctx, "resolve", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}

	roles := make([]any, len(user.Roles))
	for i, r := range user.Roles {
		roles[i] = r
	}
	return structpb.NewStruct(map[string]any{
		"user": map[string]any{
			"id":     user.ID,
			"email":  user.Email,
			"locale": user.Locale,
			"roles":  roles,
		},
	})
}

func (s *GRPCServer) Require(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	role := req.GetFields()["role"].GetStringValue()
	if role == "" {
		return nil, status.Error(codes.InvalidArgument, "role is required")
	}

	err := s.gate.Require(ctx, claimsFromContext(ctx), role)
	switch {
	case err == nil:
		return decision(true, "")
	case errors.Is(err, common.ErrUnauthenticated):
		return decision(false, "unauthenticated")
	case errors.Is(err, common.ErrForbidden):
		return decision(false, "forbidden")
	default:
		s.logger.Error(ctx, "require", "role", role, "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
}

func decision(allowed bool, reason string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"allowed": allowed, "reason": reason})
}
