// Package grpc exposes the backup server's BackupService over gRPC.
package grpc

import (
	"context"
	"net"
	"sync"

	"github.com/dmitrijs2005/clientkeeper/internal/api"
	"github.com/dmitrijs2005/clientkeeper/internal/logging"
	"github.com/dmitrijs2005/clientkeeper/internal/server/models"
	"github.com/dmitrijs2005/clientkeeper/internal/server/services"
	"google.golang.org/grpc"
)

type userSvc interface {
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Register(ctx context.Context, username string, salt, verifier []byte) (*models.User, error)
	GetSalt(ctx context.Context, username string) ([]byte, error)
	Login(ctx context.Context, username string, verifierCandidate []byte) (*services.TokenPair, error)
	Authenticate(accessToken string) (string, error)
}

type snapshotSvc interface {
	Insert(ctx context.Context, ownerID string, in services.NewSnapshot) (*models.Snapshot, error)
	Latest(ctx context.Context, ownerID string) (*models.Snapshot, error)
	List(ctx context.Context, ownerID string, limit int) ([]models.Snapshot, error)
	Delete(ctx context.Context, ownerID string, ids []string) (int64, error)
}

type feedSvc interface {
	Subscribe(ownerID string) (<-chan models.SnapshotEvent, func())
}

type GRPCServer struct {
	api.UnimplementedBackupServiceServer
	address   string
	users     userSvc
	snapshots snapshotSvc
	feed      feedSvc
	logger    logging.Logger

	// stopping is closed on shutdown so open Subscribe streams return and
	// GracefulStop can finish.
	stopping chan struct{}
	stopOnce sync.Once
}

func NewGRPCServer(a string, l logging.Logger, us userSvc, ss snapshotSvc, feed feedSvc) (*GRPCServer, error) {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		users:     us,
		snapshots: ss,
		feed:      feed,
		stopping:  make(chan struct{}),
	}, nil
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.accessTokenInterceptor),
		grpc.ChainStreamInterceptor(s.streamAccessTokenInterceptor),
	)
	api.RegisterBackupServiceServer(srv, s)
	return srv
}

func (s *GRPCServer) stop() {
	s.stopOnce.Do(func() {
		if s.stopping != nil {
			close(s.stopping)
		}
	})
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.serve(ctx, listen)
}

func (s *GRPCServer) serve(ctx context.Context, listen net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.stop()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
