package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/clientkeeper/internal/api"
	"github.com/dmitrijs2005/clientkeeper/internal/client/models"
	"github.com/dmitrijs2005/clientkeeper/internal/common"
	"github.com/dmitrijs2005/clientkeeper/internal/logging"
	"github.com/sethvargo/go-retry"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	feedBackoffBase = 500 * time.Millisecond
	feedBackoffCap  = 30 * time.Second
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      api.BackupServiceClient
	logger      logging.Logger

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	ownerID      string
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken
}

func (s *GRPCClient) setTokens(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = access
	s.refreshToken = refresh
}

func isTokenExpired(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.Unauthenticated && st.Message() == common.ErrTokenExpired.Error()
}

// refresh swaps the refresh token for a new pair. The stale access token is
// compared so concurrent callers refresh only once.
func (s *GRPCClient) refresh(ctx context.Context, stale string) error {
	s.mu.Lock()
	if s.accessToken != stale {
		s.mu.Unlock()
		return nil
	}
	refreshToken := s.refreshToken
	s.mu.Unlock()

	if refreshToken == "" {
		return status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
	}

	resp, err := s.client.RefreshToken(ctx, &api.RefreshTokenRequest{RefreshToken: refreshToken})
	if err != nil {
		return err
	}
	s.setTokens(resp.AccessToken, resp.RefreshToken)
	return nil
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if _, public := api.PublicMethods[method]; public {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	token := s.token()
	err := invoker(withAccessToken(ctx, token), method, req, reply, cc, opts...)
	if err == nil || !isTokenExpired(err) {
		return err
	}

	if rerr := s.refresh(ctx, token); rerr != nil {
		return err
	}

	return invoker(withAccessToken(ctx, s.token()), method, req, reply, cc, opts...)
}

func (s *GRPCClient) streamTokenInterceptor(
	ctx context.Context,
	desc *grpc.StreamDesc,
	cc *grpc.ClientConn,
	method string,
	streamer grpc.Streamer,
	opts ...grpc.CallOption,
) (grpc.ClientStream, error) {
	return streamer(withAccessToken(ctx, s.token()), desc, cc, method, opts...)
}

func NewGRPCClient(endpointURL string, l logging.Logger) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, logger: l.With("module", "grpc_client")}
	if err := c.InitGRPCClient(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient() error {
	conn, err := grpc.NewClient(s.endpointURL,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
		grpc.WithStreamInterceptor(s.streamTokenInterceptor),
	)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = api.NewBackupServiceClient(conn)
	return nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) Register(ctx context.Context, userName string, salt []byte, verifier []byte) error {
	req := &api.RegisterUserRequest{Username: userName, Salt: salt, Verifier: verifier}

	if _, err := s.client.RegisterUser(ctx, req); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *GRPCClient) GetSalt(ctx context.Context, userName string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 12*time.Second)
	defer cancel()

	resp, err := s.client.GetSalt(ctx, &api.GetSaltRequest{Username: userName})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Salt, nil
}

func (s *GRPCClient) Login(ctx context.Context, userName string, verifier []byte) (string, error) {
	req := &api.LoginRequest{Username: userName, VerifierCandidate: verifier}

	resp, err := s.client.Login(ctx, req)
	if err != nil {
		return "", s.mapError(err)
	}

	s.mu.Lock()
	s.accessToken = resp.AccessToken
	s.refreshToken = resp.RefreshToken
	s.ownerID = resp.UserID
	s.mu.Unlock()

	return resp.UserID, nil
}

// Logout forgets the tokens.
func (s *GRPCClient) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken, s.refreshToken, s.ownerID = "", "", ""
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	resp, err := s.client.Ping(ctx, &api.PingRequest{})
	if err != nil {
		return s.mapError(err)
	}
	if resp.Status != "OK" {
		return ErrUnavailable
	}
	return nil
}

// checkOwner guards against using one account's token for another owner.
// An empty remembered owner (offline login) defers to the server.
func (s *GRPCClient) checkOwner(ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownerID != "" && ownerID != s.ownerID {
		return ErrUnauthorized
	}
	return nil
}

func (s *GRPCClient) InsertSnapshot(ctx context.Context, ownerID string, n models.NewSnapshot) (models.SnapshotMeta, error) {
	if err := s.checkOwner(ownerID); err != nil {
		return models.SnapshotMeta{}, err
	}

	resp, err := s.client.InsertSnapshot(ctx, &api.InsertSnapshotRequest{
		ID:             n.ID,
		ClientsCount:   n.ClientsCount,
		RemindersCount: n.RemindersCount,
		Payload:        n.Payload,
		Nonce:          n.Nonce,
	})
	if err != nil {
		return models.SnapshotMeta{}, s.mapError(err)
	}
	return metaFromAPI(resp.Snapshot), nil
}

func (s *GRPCClient) GetLatestSnapshot(ctx context.Context, ownerID string) (*models.Snapshot, error) {
	if err := s.checkOwner(ownerID); err != nil {
		return nil, err
	}

	resp, err := s.client.GetLatestSnapshot(ctx, &api.GetLatestSnapshotRequest{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return &models.Snapshot{
		SnapshotMeta: metaFromAPI(resp.Snapshot.SnapshotInfo),
		Payload:      resp.Snapshot.Payload,
		Nonce:        resp.Snapshot.Nonce,
	}, nil
}

func (s *GRPCClient) ListSnapshots(ctx context.Context, ownerID string) ([]models.SnapshotMeta, error) {
	if err := s.checkOwner(ownerID); err != nil {
		return nil, err
	}

	resp, err := s.client.ListSnapshots(ctx, &api.ListSnapshotsRequest{})
	if err != nil {
		return nil, s.mapError(err)
	}

	out := make([]models.SnapshotMeta, 0, len(resp.Snapshots))
	for _, si := range resp.Snapshots {
		out = append(out, metaFromAPI(si))
	}
	return out, nil
}

func (s *GRPCClient) ListSnapshotIDs(ctx context.Context, ownerID string) ([]string, error) {
	metas, err := s.ListSnapshots(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(metas))
	for _, m := range metas {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (s *GRPCClient) DeleteSnapshots(ctx context.Context, ownerID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.checkOwner(ownerID); err != nil {
		return err
	}

	if _, err := s.client.DeleteSnapshots(ctx, &api.DeleteSnapshotsRequest{IDs: ids}); err != nil {
		return s.mapError(err)
	}
	return nil
}

// SubscribeToInserts keeps a Subscribe stream open in the background,
// reconnecting with capped exponential backoff, until unsubscribed.
func (s *GRPCClient) SubscribeToInserts(ctx context.Context, ownerID string, cb func(models.SnapshotMeta)) (func(), error) {
	if err := s.checkOwner(ownerID); err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	go func() {
		defer close(done)
		s.feedLoop(subCtx, ownerID, cb)
	}()

	return func() {
		cancel()
		<-done
	}, nil
}

func newFeedBackoff() retry.Backoff {
	return retry.WithCappedDuration(feedBackoffCap, retry.NewExponential(feedBackoffBase))
}

func (s *GRPCClient) feedLoop(ctx context.Context, ownerID string, cb func(models.SnapshotMeta)) {
	backoff := newFeedBackoff()

	for {
		token := s.token()
		received, err := s.consumeFeed(ctx, ownerID, cb)
		if ctx.Err() != nil {
			return
		}
		if received {
			backoff = newFeedBackoff()
		}

		if isTokenExpired(err) {
			if rerr := s.refresh(ctx, token); rerr != nil {
				s.logger.Warn(ctx, "feed token refresh failed", "error", rerr)
			}
		} else if err != nil {
			s.logger.Warn(ctx, "change feed interrupted", "error", s.mapError(err))
		}

		wait, stop := backoff.Next()
		if stop {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (s *GRPCClient) consumeFeed(ctx context.Context, ownerID string, cb func(models.SnapshotMeta)) (bool, error) {
	stream, err := s.client.Subscribe(ctx, &api.SubscribeRequest{})
	if err != nil {
		return false, err
	}

	received := false
	for {
		ev, err := stream.Recv()
		if err != nil {
			return received, err
		}
		received = true
		if ev.OwnerID != "" && ev.OwnerID != ownerID {
			continue
		}
		cb(models.SnapshotMeta{ID: ev.ID, OwnerID: ev.OwnerID, CreatedAt: ev.CreatedAt})
	}
}

func metaFromAPI(si api.SnapshotInfo) models.SnapshotMeta {
	return models.SnapshotMeta{
		ID:             si.ID,
		OwnerID:        si.OwnerID,
		CreatedAt:      si.CreatedAt,
		ClientsCount:   si.ClientsCount,
		RemindersCount: si.RemindersCount,
	}
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrUnavailable
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return ErrUnavailable
	case codes.NotFound:
		return ErrNotFound
	case codes.AlreadyExists:
		return ErrUserExists
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
