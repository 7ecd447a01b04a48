package grpc

import (
	"context"

	"github.com/dmitrijs2005/sitekeeper/internal/common"
	"github.com/dmitrijs2005/sitekeeper/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

type ctxKey string

const claimsKey ctxKey = "claims"

// WithAccessToken attaches token to outgoing calls made with ctx.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, common.AccessTokenHeaderName, token)
}

func claimsFromContext(ctx context.Context) *auth.AccessClaims {
	claims, _ := ctx.Value(claimsKey).(*auth.AccessClaims)
	return claims
}

// accessTokenInterceptor verifies the access_token metadata value and puts
// the claims in the context. A missing or invalid token leaves the caller
// anonymous; the methods themselves decide what that means.
func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.AccessTokenHeaderName); len(values) > 0 {
			accessToken = values[0]
		}
	}

	if accessToken != "" {
		claims, err := s.verifier.Verify(ctx, accessToken, auth.KindAccess)
		if err == nil {
			ctx = context.WithValue(ctx, claimsKey, claims)
		} else {
			s.logger.Debug(ctx, "rejected access token", "method", info.FullMethod)
		}
	}

	return handler(ctx, req)
}
