package client

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/clientkeeper/internal/api"
	"github.com/dmitrijs2005/clientkeeper/internal/client/models"
	"github.com/dmitrijs2005/clientkeeper/internal/common"
	"github.com/dmitrijs2005/clientkeeper/internal/logging"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

/*************
 * Fake api client
 *************/

type fakeAPI struct {
	mu sync.Mutex

	// inputs captured
	lastRefreshTokenReq *api.RefreshTokenRequest
	lastGetSaltReq      *api.GetSaltRequest
	lastLoginReq        *api.LoginRequest
	lastRegisterReq     *api.RegisterUserRequest
	lastInsertReq       *api.InsertSnapshotRequest
	lastDeleteReq       *api.DeleteSnapshotsRequest
	subscribeCalls      int

	// outputs preset
	refreshTokenResp *api.RefreshTokenResponse
	refreshTokenErr  error

	pingResp *api.PingResponse
	pingErr  error

	getSaltResp *api.GetSaltResponse
	getSaltErr  error

	loginResp *api.LoginResponse
	loginErr  error

	registerErr error

	insertResp *api.InsertSnapshotResponse
	insertErr  error

	latestResp *api.GetLatestSnapshotResponse
	latestErr  error

	listResp *api.ListSnapshotsResponse
	listErr  error

	deleteErr error

	// each Subscribe call pops the next stream
	streams []*fakeStream
}

func (f *fakeAPI) RefreshToken(ctx context.Context, in *api.RefreshTokenRequest, opts ...grpc.CallOption) (*api.RefreshTokenResponse, error) {
	f.lastRefreshTokenReq = in
	return f.refreshTokenResp, f.refreshTokenErr
}
func (f *fakeAPI) Ping(ctx context.Context, in *api.PingRequest, opts ...grpc.CallOption) (*api.PingResponse, error) {
	return f.pingResp, f.pingErr
}
func (f *fakeAPI) GetSalt(ctx context.Context, in *api.GetSaltRequest, opts ...grpc.CallOption) (*api.GetSaltResponse, error) {
	f.lastGetSaltReq = in
	return f.getSaltResp, f.getSaltErr
}
func (f *fakeAPI) Login(ctx context.Context, in *api.LoginRequest, opts ...grpc.CallOption) (*api.LoginResponse, error) {
	f.lastLoginReq = in
	return f.loginResp, f.loginErr
}
func (f *fakeAPI) RegisterUser(ctx context.Context, in *api.RegisterUserRequest, opts ...grpc.CallOption) (*api.RegisterUserResponse, error) {
	f.lastRegisterReq = in
	return &api.RegisterUserResponse{}, f.registerErr
}
func (f *fakeAPI) InsertSnapshot(ctx context.Context, in *api.InsertSnapshotRequest, opts ...grpc.CallOption) (*api.InsertSnapshotResponse, error) {
	f.lastInsertReq = in
	return f.insertResp, f.insertErr
}
func (f *fakeAPI) GetLatestSnapshot(ctx context.Context, in *api.GetLatestSnapshotRequest, opts ...grpc.CallOption) (*api.GetLatestSnapshotResponse, error) {
	return f.latestResp, f.latestErr
}
func (f *fakeAPI) ListSnapshots(ctx context.Context, in *api.ListSnapshotsRequest, opts ...grpc.CallOption) (*api.ListSnapshotsResponse, error) {
	return f.listResp, f.listErr
}
func (f *fakeAPI) DeleteSnapshots(ctx context.Context, in *api.DeleteSnapshotsRequest, opts ...grpc.CallOption) (*api.DeleteSnapshotsResponse, error) {
	f.lastDeleteReq = in
	return &api.DeleteSnapshotsResponse{Deleted: int64(len(in.IDs))}, f.deleteErr
}
func (f *fakeAPI) Subscribe(ctx context.Context, in *api.SubscribeRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[api.SnapshotEvent], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeCalls++
	if len(f.streams) == 0 {
		return &fakeStream{ctx: ctx, block: true}, nil
	}
	s := f.streams[0]
	f.streams = f.streams[1:]
	s.ctx = ctx
	return s, nil
}

type fakeStream struct {
	grpc.ClientStream
	ctx    context.Context
	events []api.SnapshotEvent
	err    error
	block  bool
}

func (s *fakeStream) Recv() (*api.SnapshotEvent, error) {
	if len(s.events) > 0 {
		ev := s.events[0]
		s.events = s.events[1:]
		return &ev, nil
	}
	if s.block {
		<-s.ctx.Done()
		return nil, s.ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, io.EOF
}

/*************
 * accessTokenInterceptor tests
 *************/

func TestInterceptor_RefreshesTokenOnExpiredAndRetries(t *testing.T) {
	f := &fakeAPI{
		refreshTokenResp: &api.RefreshTokenResponse{AccessToken: "A2", RefreshToken: "R2"},
	}
	c := &GRPCClient{
		client:       f,
		accessToken:  "A1",
		refreshToken: "R1",
	}

	callCount := 0
	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		callCount++
		md, _ := metadata.FromOutgoingContext(ctx)
		toks := md.Get(common.AccessTokenHeaderName)
		require.Len(t, toks, 1)

		if callCount == 1 {
			require.Equal(t, "A1", toks[0])
			return status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
		}
		require.Equal(t, "A2", toks[0])
		return nil
	}

	err := c.accessTokenInterceptor(context.Background(), api.BackupService_InsertSnapshot_FullMethodName, nil, nil, nil, invoker)
	require.NoError(t, err)
	require.Equal(t, 2, callCount)
	require.Equal(t, "A2", c.accessToken)
	require.Equal(t, "R2", c.refreshToken)
	require.Equal(t, "R1", f.lastRefreshTokenReq.RefreshToken)
}

func TestInterceptor_PublicMethodsCarryNoToken(t *testing.T) {
	c := &GRPCClient{accessToken: "A1"}
	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		require.Empty(t, md.Get(common.AccessTokenHeaderName))
		return nil
	}
	require.NoError(t, c.accessTokenInterceptor(context.Background(), api.BackupService_Login_FullMethodName, nil, nil, nil, invoker))
}

func TestInterceptor_NoRefreshIfNoRefreshToken(t *testing.T) {
	f := &fakeAPI{}
	c := &GRPCClient{
		client:      f,
		accessToken: "A1",
	}

	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		return status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
	}

	err := c.accessTokenInterceptor(context.Background(), "/svc/Method", nil, nil, nil, invoker)
	require.Error(t, err)
	require.Nil(t, f.lastRefreshTokenReq)
}

func TestInterceptor_IgnoresOtherErrors(t *testing.T) {
	c := &GRPCClient{accessToken: "X", refreshToken: "R"}
	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		return status.Error(codes.Unauthenticated, "some other reason")
	}
	err := c.accessTokenInterceptor(context.Background(), "/svc/Method", nil, nil, nil, invoker)
	require.Error(t, err)
}

/*************
 * mapError tests
 *************/

func TestMapError(t *testing.T) {
	c := &GRPCClient{}

	require.Equal(t, ErrUnauthorized, c.mapError(status.Error(codes.Unauthenticated, "x")))
	require.Equal(t, ErrUnauthorized, c.mapError(status.Error(codes.PermissionDenied, "x")))
	require.Equal(t, ErrUnavailable, c.mapError(status.Error(codes.Unavailable, "x")))
	require.Equal(t, ErrUnavailable, c.mapError(status.Error(codes.DeadlineExceeded, "x")))
	require.Equal(t, ErrUnavailable, c.mapError(context.DeadlineExceeded))
	require.Equal(t, ErrNotFound, c.mapError(status.Error(codes.NotFound, "x")))
	require.Equal(t, ErrUserExists, c.mapError(status.Error(codes.AlreadyExists, "x")))
	require.ErrorContains(t, c.mapError(errors.New("plain")), "rpc error:")
	require.NoError(t, c.mapError(nil))
}

/*************
 * Auth tests
 *************/

func TestPing(t *testing.T) {
	c := &GRPCClient{client: &fakeAPI{pingResp: &api.PingResponse{Status: "OK"}}}
	require.NoError(t, c.Ping(context.Background()))

	c = &GRPCClient{client: &fakeAPI{pingResp: &api.PingResponse{Status: "NOT_OK"}}}
	require.ErrorIs(t, c.Ping(context.Background()), ErrUnavailable)

	c = &GRPCClient{client: &fakeAPI{pingErr: status.Error(codes.Unavailable, "down")}}
	require.ErrorIs(t, c.Ping(context.Background()), ErrUnavailable)
}

func TestGetSalt_Success(t *testing.T) {
	f := &fakeAPI{getSaltResp: &api.GetSaltResponse{Salt: []byte{1, 2, 3}}}
	c := &GRPCClient{client: f}
	salt, err := c.GetSalt(context.Background(), "u")
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, salt)
	require.Equal(t, "u", f.lastGetSaltReq.Username)
}

func TestLogin_SetsTokensAndOwner(t *testing.T) {
	f := &fakeAPI{loginResp: &api.LoginResponse{UserID: "owner-1", AccessToken: "A", RefreshToken: "R"}}
	c := &GRPCClient{client: f}

	owner, err := c.Login(context.Background(), "u", []byte{9})
	require.NoError(t, err)
	require.Equal(t, "owner-1", owner)
	require.Equal(t, "A", c.accessToken)
	require.Equal(t, "R", c.refreshToken)
	require.Equal(t, []byte{9}, f.lastLoginReq.VerifierCandidate)

	c.Logout()
	require.Empty(t, c.accessToken)
	require.Empty(t, c.ownerID)
}

func TestRegister_MapsError(t *testing.T) {
	f := &fakeAPI{registerErr: status.Error(codes.PermissionDenied, "no")}
	c := &GRPCClient{client: f}
	err := c.Register(context.Background(), "u", []byte{1}, []byte{2})
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, []byte{1}, f.lastRegisterReq.Salt)
	require.Equal(t, []byte{2}, f.lastRegisterReq.Verifier)
}

/*************
 * BackupStore tests
 *************/

func TestInsertSnapshot_MapsReqAndResp(t *testing.T) {
	created := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	f := &fakeAPI{insertResp: &api.InsertSnapshotResponse{Snapshot: api.SnapshotInfo{
		ID: "s1", OwnerID: "o", CreatedAt: created, ClientsCount: 3, RemindersCount: 4,
	}}}
	c := &GRPCClient{client: f, ownerID: "o"}

	meta, err := c.InsertSnapshot(context.Background(), "o", models.NewSnapshot{
		ID: "s1", ClientsCount: 3, RemindersCount: 4, Payload: []byte("p"), Nonce: []byte("n"),
	})
	require.NoError(t, err)
	require.Equal(t, models.SnapshotMeta{ID: "s1", OwnerID: "o", CreatedAt: created, ClientsCount: 3, RemindersCount: 4}, meta)
	require.Equal(t, "s1", f.lastInsertReq.ID)
	require.Equal(t, []byte("p"), f.lastInsertReq.Payload)
	require.Equal(t, []byte("n"), f.lastInsertReq.Nonce)
}

func TestOwnerMismatchIsUnauthorized(t *testing.T) {
	c := &GRPCClient{client: &fakeAPI{}, ownerID: "o"}
	_, err := c.InsertSnapshot(context.Background(), "other", models.NewSnapshot{})
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = c.GetLatestSnapshot(context.Background(), "other")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestGetLatestSnapshot_NotFound(t *testing.T) {
	c := &GRPCClient{client: &fakeAPI{latestErr: status.Error(codes.NotFound, "none")}}
	_, err := c.GetLatestSnapshot(context.Background(), "o")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetLatestSnapshot_Success(t *testing.T) {
	f := &fakeAPI{latestResp: &api.GetLatestSnapshotResponse{Snapshot: api.Snapshot{
		SnapshotInfo: api.SnapshotInfo{ID: "s9", OwnerID: "o"},
		Payload:      []byte("ct"),
		Nonce:        []byte("nn"),
	}}}
	c := &GRPCClient{client: f}
	s, err := c.GetLatestSnapshot(context.Background(), "o")
	require.NoError(t, err)
	require.Equal(t, "s9", s.ID)
	require.Equal(t, []byte("ct"), s.Payload)
	require.Equal(t, []byte("nn"), s.Nonce)
}

func TestListSnapshotIDs_KeepsOrder(t *testing.T) {
	f := &fakeAPI{listResp: &api.ListSnapshotsResponse{Snapshots: []api.SnapshotInfo{{ID: "c"}, {ID: "b"}, {ID: "a"}}}}
	c := &GRPCClient{client: f}
	ids, err := c.ListSnapshotIDs(context.Background(), "o")
	require.NoError(t, err)
	require.Equal(t, []string{"c", "b", "a"}, ids)
}

func TestDeleteSnapshots(t *testing.T) {
	f := &fakeAPI{}
	c := &GRPCClient{client: f}

	require.NoError(t, c.DeleteSnapshots(context.Background(), "o", nil))
	require.Nil(t, f.lastDeleteReq, "empty delete is a no-op")

	require.NoError(t, c.DeleteSnapshots(context.Background(), "o", []string{"x", "y"}))
	require.Equal(t, []string{"x", "y"}, f.lastDeleteReq.IDs)

	f.deleteErr = status.Error(codes.Unavailable, "x")
	require.ErrorIs(t, c.DeleteSnapshots(context.Background(), "o", []string{"z"}), ErrUnavailable)
}

func TestSubscribeToInserts_DeliversAndReconnects(t *testing.T) {
	f := &fakeAPI{streams: []*fakeStream{
		{events: []api.SnapshotEvent{{ID: "s1", OwnerID: "o"}, {ID: "foreign", OwnerID: "x"}}, err: status.Error(codes.Unavailable, "reset")},
		{events: []api.SnapshotEvent{{ID: "s2", OwnerID: "o"}}, block: true},
	}}
	c := &GRPCClient{client: f, logger: logging.NewDiscardLogger()}

	var mu sync.Mutex
	var got []string
	unsubscribe, err := c.SubscribeToInserts(context.Background(), "o", func(m models.SnapshotMeta) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, m.ID)
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 5*time.Second, 10*time.Millisecond)

	unsubscribe()

	mu.Lock()
	require.Equal(t, []string{"s1", "s2"}, got)
	mu.Unlock()

	f.mu.Lock()
	require.Equal(t, 2, f.subscribeCalls)
	f.mu.Unlock()
}
