package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "intervalq.v1.IntervalService"

// IntervalServiceServer is the server API for IntervalService. Requests
// and responses are google.protobuf.Struct so no generated code is needed.
type IntervalServiceServer interface {
	Compile(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PutMapping(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetMapping(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(IntervalServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(IntervalServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(IntervalServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// IntervalServiceDesc describes IntervalService for grpc.Server.RegisterService.
var IntervalServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IntervalServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("Compile", IntervalServiceServer.Compile),
		unaryHandler("PutMapping", IntervalServiceServer.PutMapping),
		unaryHandler("GetMapping", IntervalServiceServer.GetMapping),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "intervalq/v1/interval_service.proto",
}

// RegisterIntervalServiceServer registers srv on s.
func RegisterIntervalServiceServer(s grpc.ServiceRegistrar, srv IntervalServiceServer) {
	s.RegisterService(&IntervalServiceDesc, srv)
}

// Client is a client for IntervalService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a client connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Compile calls IntervalService.Compile.
func (c *Client) Compile(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Compile", in, opts...)
}

// PutMapping calls IntervalService.PutMapping.
func (c *Client) PutMapping(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "PutMapping", in, opts...)
}

// GetMapping calls IntervalService.GetMapping.
func (c *Client) GetMapping(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetMapping", in, opts...)
}
