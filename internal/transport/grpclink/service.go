package grpclink

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	serviceName = "gophpair.link.v1.Link"
	writeMethod = "/" + serviceName + "/Write"

	mdCharacteristic = "x-characteristic"
	mdEndpoint       = "x-endpoint"
)

// linkServer is the server side of the Link service. The wire messages are
// protobuf well-known wrappers, so no generated code is needed.
type linkServer interface {
	Write(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error)
}

var linkServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*linkServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Write", Handler: writeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gophpair/link/v1/link.proto",
}

func writeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(linkServer).Write(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: writeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(linkServer).Write(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}
