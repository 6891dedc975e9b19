package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"wheres-my-laundry/internal/orderservice/auth"
	trackingdb "wheres-my-laundry/internal/trackingservice/db"
	"wheres-my-laundry/internal/trackingservice/handler"
	"wheres-my-laundry/internal/trackingservice/service"
	"wheres-my-laundry/pkg/config"
	"wheres-my-laundry/pkg/db"
	"wheres-my-laundry/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Server struct {
	port       int
	config     *config.Config
	logger     *logger.Logger
	httpServer *http.Server
	dbPool     *pgxpool.Pool
}

func NewServer(port int, cfg *config.Config, log *logger.Logger) *Server {
	return &Server{
		port:   port,
		config: cfg,
		logger: log,
	}
}

func (s *Server) Start() error {
	if s.config.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}

	dbPool, err := db.ConnectDB(&s.config.Database, s.logger)
	if err != nil {
		return err
	}
	s.dbPool = dbPool

	repo := trackingdb.NewTrackingDB(s.dbPool, s.logger)
	trackingService := service.NewTrackingService(repo, auth.NewBranchGuard(repo), s.logger)
	trackingHandler := handler.NewTrackingHandler(trackingService, s.logger)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      handler.NewRouter(trackingHandler, auth.NewMiddleware(s.config.Auth.JWTSecret, s.logger)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("startup", "server_started", fmt.Sprintf("Tracking Service started on port %d", s.port))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	if s.dbPool != nil {
		s.dbPool.Close()
	}
	return err
}
