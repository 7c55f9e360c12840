package control

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "servicepro.sync.v1.Control"

// ControlServer is the server API of the control service.
type ControlServer interface {
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
	Drain(context.Context, *DrainRequest) (*DrainResponse, error)
	ListPending(context.Context, *ListPendingRequest) (*ListPendingResponse, error)
	Submit(context.Context, *SubmitRequest) (*SubmitResponse, error)
	ListJobs(context.Context, *ListJobsRequest) (*ListJobsResponse, error)
	ClearCache(context.Context, *ClearCacheRequest) (*ClearCacheResponse, error)
	WatchSync(*WatchRequest, EventSender) error
}

// EventSender is the server side of a WatchSync stream.
type EventSender interface {
	Send(*Event) error
	Context() context.Context
}

// ServiceDesc describes the control service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Status", ControlServer.Status),
		unary("Drain", ControlServer.Drain),
		unary("ListPending", ControlServer.ListPending),
		unary("Submit", ControlServer.Submit),
		unary("ListJobs", ControlServer.ListJobs),
		unary("ClearCache", ControlServer.ClearCache),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchSync",
			Handler:       watchSyncHandler,
			ServerStreams: true,
		},
	},
	Metadata: "servicepro/sync/v1/control",
}

// Register adds srv to s.
func Register(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary[Req, Resp any](name string, call func(ControlServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ControlServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ControlServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

type eventSender struct {
	grpc.ServerStream
}

func (s eventSender) Send(e *Event) error {
	return s.SendMsg(e)
}

func watchSyncHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ControlServer).WatchSync(in, eventSender{stream})
}
