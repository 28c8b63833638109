package api

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "cipherlog.v1.StoreService"

func unaryHandler[Req, Resp any](method string, call func(*StoreService, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			svc := srv.(*StoreService)
			if interceptor == nil {
				return call(svc, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(svc, ctx, req.(*Req))
			})
		},
	}
}

var storeServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("GetStatus", (*StoreService).GetStatus),
		unaryHandler("GetIdentity", (*StoreService).GetIdentity),
		unaryHandler("ListContacts", (*StoreService).ListContacts),
		unaryHandler("ListGroups", (*StoreService).ListGroups),
		unaryHandler("ReadConversation", (*StoreService).ReadConversation),
		unaryHandler("EnableTimers", (*StoreService).EnableTimers),
	},
	Metadata: "cipherlog/v1/store.json",
}

// Register adds the StoreService to srv.
func Register(srv grpc.ServiceRegistrar, svc *StoreService) {
	srv.RegisterService(&storeServiceDesc, svc)
}
