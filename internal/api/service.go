package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "clientkeeper.BackupService"

const (
	BackupService_Ping_FullMethodName              = "/clientkeeper.BackupService/Ping"
	BackupService_RegisterUser_FullMethodName      = "/clientkeeper.BackupService/RegisterUser"
	BackupService_GetSalt_FullMethodName           = "/clientkeeper.BackupService/GetSalt"
	BackupService_Login_FullMethodName             = "/clientkeeper.BackupService/Login"
	BackupService_RefreshToken_FullMethodName      = "/clientkeeper.BackupService/RefreshToken"
	BackupService_InsertSnapshot_FullMethodName    = "/clientkeeper.BackupService/InsertSnapshot"
	BackupService_GetLatestSnapshot_FullMethodName = "/clientkeeper.BackupService/GetLatestSnapshot"
	BackupService_ListSnapshots_FullMethodName     = "/clientkeeper.BackupService/ListSnapshots"
	BackupService_DeleteSnapshots_FullMethodName   = "/clientkeeper.BackupService/DeleteSnapshots"
	BackupService_Subscribe_FullMethodName         = "/clientkeeper.BackupService/Subscribe"
)

// PublicMethods may be called without an access token.
var PublicMethods = map[string]struct{}{
	BackupService_Ping_FullMethodName:         {},
	BackupService_RegisterUser_FullMethodName: {},
	BackupService_GetSalt_FullMethodName:      {},
	BackupService_Login_FullMethodName:        {},
	BackupService_RefreshToken_FullMethodName: {},
}

// BackupServiceClient is the client API for BackupService.
type BackupServiceClient interface {
	Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error)
	RegisterUser(ctx context.Context, in *RegisterUserRequest, opts ...grpc.CallOption) (*RegisterUserResponse, error)
	GetSalt(ctx context.Context, in *GetSaltRequest, opts ...grpc.CallOption) (*GetSaltResponse, error)
	Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error)
	RefreshToken(ctx context.Context, in *RefreshTokenRequest, opts ...grpc.CallOption) (*RefreshTokenResponse, error)
	InsertSnapshot(ctx context.Context, in *InsertSnapshotRequest, opts ...grpc.CallOption) (*InsertSnapshotResponse, error)
	GetLatestSnapshot(ctx context.Context, in *GetLatestSnapshotRequest, opts ...grpc.CallOption) (*GetLatestSnapshotResponse, error)
	ListSnapshots(ctx context.Context, in *ListSnapshotsRequest, opts ...grpc.CallOption) (*ListSnapshotsResponse, error)
	DeleteSnapshots(ctx context.Context, in *DeleteSnapshotsRequest, opts ...grpc.CallOption) (*DeleteSnapshotsResponse, error)
	Subscribe(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[SnapshotEvent], error)
}

type backupServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewBackupServiceClient(cc grpc.ClientConnInterface) BackupServiceClient {
	return &backupServiceClient{cc}
}

func (c *backupServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *backupServiceClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	out := new(PingResponse)
	if err := c.invoke(ctx, BackupService_Ping_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *backupServiceClient) RegisterUser(ctx context.Context, in *RegisterUserRequest, opts ...grpc.CallOption) (*RegisterUserResponse, error) {
	out := new(RegisterUserResponse)
	if err := c.invoke(ctx, BackupService_RegisterUser_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *backupServiceClient) GetSalt(ctx context.Context, in *GetSaltRequest, opts ...grpc.CallOption) (*GetSaltResponse, error) {
	out := new(GetSaltResponse)
	if err := c.invoke(ctx, BackupService_GetSalt_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *backupServiceClient) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error) {
	out := new(LoginResponse)
	if err := c.invoke(ctx, BackupService_Login_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *backupServiceClient) RefreshToken(ctx context.Context, in *RefreshTokenRequest, opts ...grpc.CallOption) (*RefreshTokenResponse, error) {
	out := new(RefreshTokenResponse)
	if err := c.invoke(ctx, BackupService_RefreshToken_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *backupServiceClient) InsertSnapshot(ctx context.Context, in *InsertSnapshotRequest, opts ...grpc.CallOption) (*InsertSnapshotResponse, error) {
	out := new(InsertSnapshotResponse)
	if err := c.invoke(ctx, BackupService_InsertSnapshot_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *backupServiceClient) GetLatestSnapshot(ctx context.Context, in *GetLatestSnapshotRequest, opts ...grpc.CallOption) (*GetLatestSnapshotResponse, error) {
	out := new(GetLatestSnapshotResponse)
	if err := c.invoke(ctx, BackupService_GetLatestSnapshot_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *backupServiceClient) ListSnapshots(ctx context.Context, in *ListSnapshotsRequest, opts ...grpc.CallOption) (*ListSnapshotsResponse, error) {
	out := new(ListSnapshotsResponse)
	if err := c.invoke(ctx, BackupService_ListSnapshots_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *backupServiceClient) DeleteSnapshots(ctx context.Context, in *DeleteSnapshotsRequest, opts ...grpc.CallOption) (*DeleteSnapshotsResponse, error) {
	out := new(DeleteSnapshotsResponse)
	if err := c.invoke(ctx, BackupService_DeleteSnapshots_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *backupServiceClient) Subscribe(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[SnapshotEvent], error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &BackupService_ServiceDesc.Streams[0], BackupService_Subscribe_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[SubscribeRequest, SnapshotEvent]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// BackupServiceServer is the server API for BackupService.
type BackupServiceServer interface {
	Ping(context.Context, *PingRequest) (*PingResponse, error)
	RegisterUser(context.Context, *RegisterUserRequest) (*RegisterUserResponse, error)
	GetSalt(context.Context, *GetSaltRequest) (*GetSaltResponse, error)
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	RefreshToken(context.Context, *RefreshTokenRequest) (*RefreshTokenResponse, error)
	InsertSnapshot(context.Context, *InsertSnapshotRequest) (*InsertSnapshotResponse, error)
	GetLatestSnapshot(context.Context, *GetLatestSnapshotRequest) (*GetLatestSnapshotResponse, error)
	ListSnapshots(context.Context, *ListSnapshotsRequest) (*ListSnapshotsResponse, error)
	DeleteSnapshots(context.Context, *DeleteSnapshotsRequest) (*DeleteSnapshotsResponse, error)
	Subscribe(*SubscribeRequest, grpc.ServerStreamingServer[SnapshotEvent]) error
}

// UnimplementedBackupServiceServer can be embedded to keep forward compatibility.
type UnimplementedBackupServiceServer struct{}

func (UnimplementedBackupServiceServer) Ping(context.Context, *PingRequest) (*PingResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Ping not implemented")
}
func (UnimplementedBackupServiceServer) RegisterUser(context.Context, *RegisterUserRequest) (*RegisterUserResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method RegisterUser not implemented")
}
func (UnimplementedBackupServiceServer) GetSalt(context.Context, *GetSaltRequest) (*GetSaltResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetSalt not implemented")
}
func (UnimplementedBackupServiceServer) Login(context.Context, *LoginRequest) (*LoginResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Login not implemented")
}
func (UnimplementedBackupServiceServer) RefreshToken(context.Context, *RefreshTokenRequest) (*RefreshTokenResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method RefreshToken not implemented")
}
func (UnimplementedBackupServiceServer) InsertSnapshot(context.Context, *InsertSnapshotRequest) (*InsertSnapshotResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method InsertSnapshot not implemented")
}
func (UnimplementedBackupServiceServer) GetLatestSnapshot(context.Context, *GetLatestSnapshotRequest) (*GetLatestSnapshotResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetLatestSnapshot not implemented")
}
func (UnimplementedBackupServiceServer) ListSnapshots(context.Context, *ListSnapshotsRequest) (*ListSnapshotsResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ListSnapshots not implemented")
}
func (UnimplementedBackupServiceServer) DeleteSnapshots(context.Context, *DeleteSnapshotsRequest) (*DeleteSnapshotsResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method DeleteSnapshots not implemented")
}
func (UnimplementedBackupServiceServer) Subscribe(*SubscribeRequest, grpc.ServerStreamingServer[SnapshotEvent]) error {
	return status.Errorf(codes.Unimplemented, "method Subscribe not implemented")
}

func RegisterBackupServiceServer(s grpc.ServiceRegistrar, srv BackupServiceServer) {
	s.RegisterService(&BackupService_ServiceDesc, srv)
}

func unaryHandler[Req any](
	method string,
	call func(srv BackupServiceServer, ctx context.Context, req *Req) (any, error),
) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BackupServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(BackupServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	m := new(SubscribeRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(BackupServiceServer).Subscribe(m, &grpc.GenericServerStream[SubscribeRequest, SnapshotEvent]{ServerStream: stream})
}

// BackupService_ServiceDesc is the grpc.ServiceDesc for BackupService.
var BackupService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BackupServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Ping",
			Handler: unaryHandler(BackupService_Ping_FullMethodName, func(s BackupServiceServer, ctx context.Context, r *PingRequest) (any, error) {
				return s.Ping(ctx, r)
			}),
		},
		{
			MethodName: "RegisterUser",
			Handler: unaryHandler(BackupService_RegisterUser_FullMethodName, func(s BackupServiceServer, ctx context.Context, r *RegisterUserRequest) (any, error) {
				return s.RegisterUser(ctx, r)
			}),
		},
		{
			MethodName: "GetSalt",
			Handler: unaryHandler(BackupService_GetSalt_FullMethodName, func(s BackupServiceServer, ctx context.Context, r *GetSaltRequest) (any, error) {
				return s.GetSalt(ctx, r)
			}),
		},
		{
			MethodName: "Login",
			Handler: unaryHandler(BackupService_Login_FullMethodName, func(s BackupServiceServer, ctx context.Context, r *LoginRequest) (any, error) {
				return s.Login(ctx, r)
			}),
		},
		{
			MethodName: "RefreshToken",
			Handler: unaryHandler(BackupService_RefreshToken_FullMethodName, func(s BackupServiceServer, ctx context.Context, r *RefreshTokenRequest) (any, error) {
				return s.RefreshToken(ctx, r)
			}),
		},
		{
			MethodName: "InsertSnapshot",
			Handler: unaryHandler(BackupService_InsertSnapshot_FullMethodName, func(s BackupServiceServer, ctx context.Context, r *InsertSnapshotRequest) (any, error) {
				return s.InsertSnapshot(ctx, r)
			}),
		},
		{
			MethodName: "GetLatestSnapshot",
			Handler: unaryHandler(BackupService_GetLatestSnapshot_FullMethodName, func(s BackupServiceServer, ctx context.Context, r *GetLatestSnapshotRequest) (any, error) {
				return s.GetLatestSnapshot(ctx, r)
			}),
		},
		{
			MethodName: "ListSnapshots",
			Handler: unaryHandler(BackupService_ListSnapshots_FullMethodName, func(s BackupServiceServer, ctx context.Context, r *ListSnapshotsRequest) (any, error) {
				return s.ListSnapshots(ctx, r)
			}),
		},
		{
			MethodName: "DeleteSnapshots",
			Handler: unaryHandler(BackupService_DeleteSnapshots_FullMethodName, func(s BackupServiceServer, ctx context.Context, r *DeleteSnapshotsRequest) (any, error) {
				return s.DeleteSnapshots(ctx, r)
			}),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
}
