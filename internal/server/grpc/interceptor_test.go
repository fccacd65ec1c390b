package grpc

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/clientkeeper/internal/api"
	"github.com/dmitrijs2005/clientkeeper/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func newTestServer() *GRPCServer {
	return &GRPCServer{
		logger: nopLogger{},
		users: &fakeUser{
			tokens:  map[string]string{"good": "user-123"},
			expired: map[string]bool{"old": true},
		},
	}
}

func tokenCtx(token string) context.Context {
	md := metadata.New(map[string]string{common.AccessTokenHeaderName: token})
	return metadata.NewIncomingContext(context.Background(), md)
}

func TestInterceptor_PublicMethod_AllowsWithoutToken(t *testing.T) {
	s := newTestServer()

	info := &grpc.UnaryServerInfo{FullMethod: api.BackupService_Login_FullMethodName}
	handlerCalled := false

	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		handlerCalled = true
		return "ok", nil
	}

	resp, err := s.accessTokenInterceptor(context.Background(), nil, info, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Fatal("handler was not called")
	}
	if resp != "ok" {
		t.Fatalf("unexpected handler resp: %v", resp)
	}
}

func TestInterceptor_Protected_MissingToken(t *testing.T) {
	s := newTestServer()
	info := &grpc.UnaryServerInfo{FullMethod: api.BackupService_InsertSnapshot_FullMethodName}

	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler should not be called when token missing")
		return nil, nil
	}

	_, err := s.accessTokenInterceptor(context.Background(), nil, info, h)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", status.Code(err))
	}
	if status.Convert(err).Message() != "missing token" {
		t.Fatalf("expected 'missing token', got %q", status.Convert(err).Message())
	}
}

func TestInterceptor_Protected_InvalidAndExpiredToken(t *testing.T) {
	s := newTestServer()
	info := &grpc.UnaryServerInfo{FullMethod: api.BackupService_ListSnapshots_FullMethodName}

	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler should not be called for a rejected token")
		return nil, nil
	}

	_, err := s.accessTokenInterceptor(tokenCtx("not-a-valid-jwt"), nil, info, h)
	if status.Code(err) != codes.Unauthenticated || status.Convert(err).Message() != common.ErrInvalidToken.Error() {
		t.Fatalf("expected invalid token status, got %v", err)
	}

	_, err = s.accessTokenInterceptor(tokenCtx("old"), nil, info, h)
	if status.Code(err) != codes.Unauthenticated || status.Convert(err).Message() != common.ErrTokenExpired.Error() {
		t.Fatalf("expected expired token status, got %v", err)
	}
}

func TestInterceptor_Protected_ValidToken_SetsUserID(t *testing.T) {
	s := newTestServer()
	info := &grpc.UnaryServerInfo{FullMethod: api.BackupService_InsertSnapshot_FullMethodName}

	var gotFromCtx any
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		gotFromCtx = ctx.Value(UserIDKey)
		return "ok", nil
	}

	resp, err := s.accessTokenInterceptor(tokenCtx("good"), nil, info, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "ok" {
		t.Fatalf("unexpected handler resp: %v", resp)
	}
	if gotFromCtx != "user-123" {
		t.Fatalf("user id not propagated in context: got %v", gotFromCtx)
	}
}

type ctxStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (c *ctxStream) Context() context.Context { return c.ctx }

func TestStreamInterceptor(t *testing.T) {
	s := newTestServer()
	info := &grpc.StreamServerInfo{FullMethod: api.BackupService_Subscribe_FullMethodName}

	err := s.streamAccessTokenInterceptor(nil, &ctxStream{ctx: context.Background()}, info, func(srv interface{}, ss grpc.ServerStream) error {
		t.Fatal("handler should not be called without a token")
		return nil
	})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}

	var got any
	err = s.streamAccessTokenInterceptor(nil, &ctxStream{ctx: tokenCtx("good")}, info, func(srv interface{}, ss grpc.ServerStream) error {
		got = ss.Context().Value(UserIDKey)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "user-123" {
		t.Fatalf("stream context lacks user id: %v", got)
	}
}
