package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/clientkeeper/internal/api"
	"github.com/dmitrijs2005/clientkeeper/internal/common"
	"github.com/dmitrijs2005/clientkeeper/internal/server/models"
	"github.com/dmitrijs2005/clientkeeper/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// mapError turns service errors into gRPC statuses. Unexpected errors are
// logged and reported as Internal without details.
func (s *GRPCServer) mapError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrRefreshTokenExpired):
		return status.Error(codes.Unauthenticated, common.ErrRefreshTokenExpired.Error())
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrInvalidToken):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, common.ErrorConflict):
		return status.Error(codes.AlreadyExists, "already exists")
	case errors.Is(err, common.ErrorInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		s.logger.Error(ctx, "request failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
}

func (s *GRPCServer) Ping(ctx context.Context, req *api.PingRequest) (*api.PingResponse, error) {
	return &api.PingResponse{Status: "OK"}, nil
}

func (s *GRPCServer) RegisterUser(ctx context.Context, req *api.RegisterUserRequest) (*api.RegisterUserResponse, error) {
	s.logger.Info(ctx, "Registration request")

	result, err := s.users.Register(ctx, req.Username, req.Salt, req.Verifier)
	if err != nil {
		return nil, s.mapError(ctx, err)
	}

	s.logger.Info(ctx, "Registered", "username", req.Username)
	return &api.RegisterUserResponse{UserID: result.ID}, nil
}

func (s *GRPCServer) GetSalt(ctx context.Context, req *api.GetSaltRequest) (*api.GetSaltResponse, error) {
	result, err := s.users.GetSalt(ctx, req.Username)
	if err != nil {
		return nil, s.mapError(ctx, err)
	}
	return &api.GetSaltResponse{Salt: result}, nil
}

func (s *GRPCServer) Login(ctx context.Context, req *api.LoginRequest) (*api.LoginResponse, error) {
	tokens, err := s.users.Login(ctx, req.Username, req.VerifierCandidate)
	if err != nil {
		return nil, s.mapError(ctx, err)
	}
	return &api.LoginResponse{UserID: tokens.UserID, AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil
}

func (s *GRPCServer) RefreshToken(ctx context.Context, req *api.RefreshTokenRequest) (*api.RefreshTokenResponse, error) {
	tokens, err := s.users.RefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return nil, s.mapError(ctx, err)
	}
	return &api.RefreshTokenResponse{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil
}

func (s *GRPCServer) InsertSnapshot(ctx context.Context, req *api.InsertSnapshotRequest) (*api.InsertSnapshotResponse, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	snap, err := s.snapshots.Insert(ctx, userID, services.NewSnapshot{
		ID:             req.ID,
		ClientsCount:   req.ClientsCount,
		RemindersCount: req.RemindersCount,
		Payload:        req.Payload,
		Nonce:          req.Nonce,
	})
	if err != nil {
		return nil, s.mapError(ctx, err)
	}
	return &api.InsertSnapshotResponse{Snapshot: infoFromModel(snap)}, nil
}

func (s *GRPCServer) GetLatestSnapshot(ctx context.Context, req *api.GetLatestSnapshotRequest) (*api.GetLatestSnapshotResponse, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	snap, err := s.snapshots.Latest(ctx, userID)
	if err != nil {
		return nil, s.mapError(ctx, err)
	}
	return &api.GetLatestSnapshotResponse{Snapshot: api.Snapshot{
		SnapshotInfo: infoFromModel(snap),
		Payload:      snap.Payload,
		Nonce:        snap.Nonce,
	}}, nil
}

func (s *GRPCServer) ListSnapshots(ctx context.Context, req *api.ListSnapshotsRequest) (*api.ListSnapshotsResponse, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	list, err := s.snapshots.List(ctx, userID, req.Limit)
	if err != nil {
		return nil, s.mapError(ctx, err)
	}

	out := make([]api.SnapshotInfo, 0, len(list))
	for i := range list {
		out = append(out, infoFromModel(&list[i]))
	}
	return &api.ListSnapshotsResponse{Snapshots: out}, nil
}

func (s *GRPCServer) DeleteSnapshots(ctx context.Context, req *api.DeleteSnapshotsRequest) (*api.DeleteSnapshotsResponse, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	n, err := s.snapshots.Delete(ctx, userID, req.IDs)
	if err != nil {
		return nil, s.mapError(ctx, err)
	}
	return &api.DeleteSnapshotsResponse{Deleted: n}, nil
}

// Subscribe streams the caller's insert events until the client goes away
// or the server stops.
func (s *GRPCServer) Subscribe(req *api.SubscribeRequest, stream grpc.ServerStreamingServer[api.SnapshotEvent]) error {
	ctx := stream.Context()
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return err
	}

	events, cancel := s.feed.Subscribe(userID)
	defer cancel()

	s.logger.Debug(ctx, "feed subscriber attached", "owner", userID)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopping:
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := stream.Send(&api.SnapshotEvent{ID: ev.ID, OwnerID: ev.OwnerID, CreatedAt: ev.CreatedAt}); err != nil {
				return err
			}
		}
	}
}

func infoFromModel(s *models.Snapshot) api.SnapshotInfo {
	return api.SnapshotInfo{
		ID:             s.ID,
		OwnerID:        s.OwnerID,
		CreatedAt:      s.CreatedAt,
		ClientsCount:   s.ClientsCount,
		RemindersCount: s.RemindersCount,
	}
}
