// Package api declares the kennel.store.v1.RecordStore gRPC service.
//
// Messages are google.protobuf.Struct documents; the field layout of each
// request and response is defined by package convert.
package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "kennel.store.v1.RecordStore"

// Method names.
const (
	MethodLogin              = "Login"
	MethodQuery              = "Query"
	MethodQueryModifiedSince = "QueryModifiedSince"
	MethodCreate             = "Create"
	MethodUpdate             = "Update"
	MethodPatch              = "Patch"
	MethodDelete             = "Delete"
)

// FullMethod returns "/kennel.store.v1.RecordStore/<method>".
func FullMethod(method string) string { return "/" + ServiceName + "/" + method }

// RecordStoreServer is the server API for the RecordStore service.
type RecordStoreServer interface {
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Query(context.Context, *structpb.Struct) (*structpb.Struct, error)
	QueryModifiedSince(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Create(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Update(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Patch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Delete(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type call func(RecordStoreServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func handler(method string, fn call) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return fn(srv.(RecordStoreServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return fn(srv.(RecordStoreServer), ctx, req.(*structpb.Struct))
		})
	}
}

// ServiceDesc describes the RecordStore service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RecordStoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodLogin, Handler: handler(MethodLogin, RecordStoreServer.Login)},
		{MethodName: MethodQuery, Handler: handler(MethodQuery, RecordStoreServer.Query)},
		{MethodName: MethodQueryModifiedSince, Handler: handler(MethodQueryModifiedSince, RecordStoreServer.QueryModifiedSince)},
		{MethodName: MethodCreate, Handler: handler(MethodCreate, RecordStoreServer.Create)},
		{MethodName: MethodUpdate, Handler: handler(MethodUpdate, RecordStoreServer.Update)},
		{MethodName: MethodPatch, Handler: handler(MethodPatch, RecordStoreServer.Patch)},
		{MethodName: MethodDelete, Handler: handler(MethodDelete, RecordStoreServer.Delete)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kennel/store/v1/record_store.proto",
}

// RegisterRecordStoreServer registers srv on s.
func RegisterRecordStoreServer(s grpc.ServiceRegistrar, srv RecordStoreServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Invoke performs one unary call against the service.
func Invoke(ctx context.Context, cc grpc.ClientConnInterface, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
