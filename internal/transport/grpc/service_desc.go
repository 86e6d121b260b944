package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "clinicbook.v1.AppointmentsService"

// AppointmentsServiceServer is the server API for clinicbook.v1.AppointmentsService.
// Requests and responses are google.protobuf.Struct documents.
type AppointmentsServiceServer interface {
	CreateAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CancelAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListAppointments(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SearchAppointments(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	DeleteAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListAvailableSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListTimeSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(AppointmentsServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

var AppointmentsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AppointmentsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		methodDesc("CreateAppointment", AppointmentsServiceServer.CreateAppointment),
		methodDesc("CancelAppointment", AppointmentsServiceServer.CancelAppointment),
		methodDesc("ListAppointments", AppointmentsServiceServer.ListAppointments),
		methodDesc("SearchAppointments", AppointmentsServiceServer.SearchAppointments),
		methodDesc("DeleteAppointment", AppointmentsServiceServer.DeleteAppointment),
		methodDesc("ListAvailableSlots", AppointmentsServiceServer.ListAvailableSlots),
		methodDesc("ListTimeSlots", AppointmentsServiceServer.ListTimeSlots),
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterAppointmentsServiceServer(s grpc.ServiceRegistrar, srv AppointmentsServiceServer) {
	s.RegisterService(&AppointmentsServiceDesc, srv)
}

func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func methodDesc(name string, call unaryMethod) grpc.MethodDesc {
	fullMethod := FullMethod(name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AppointmentsServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AppointmentsServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// AppointmentsClient calls AppointmentsService over any client connection.
type AppointmentsClient struct {
	cc grpc.ClientConnInterface
}

func NewAppointmentsClient(cc grpc.ClientConnInterface) *AppointmentsClient {
	return &AppointmentsClient{cc: cc}
}

func (c *AppointmentsClient) Call(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
