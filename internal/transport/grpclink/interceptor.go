package grpclink

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/gophpair/internal/transport"
)

type ctxKey string

const (
	senderKey         ctxKey = "sender"
	characteristicKey ctxKey = "characteristic"
)

// addressingInterceptor requires the sender endpoint and target
// characteristic in the call metadata and moves them into the context.
func (l *Link) addressingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if info.FullMethod != writeMethod {
		return handler(ctx, req)
	}

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "missing metadata")
	}
	from := first(md.Get(mdEndpoint))
	ch := first(md.Get(mdCharacteristic))
	if from == "" || ch == "" {
		return nil, status.Error(codes.InvalidArgument, "missing sender endpoint or characteristic")
	}

	ctx = context.WithValue(ctx, senderKey, transport.Endpoint(from))
	ctx = context.WithValue(ctx, characteristicKey, transport.Characteristic(ch))
	return handler(ctx, req)
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
