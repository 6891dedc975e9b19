package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"wheres-my-laundry/internal/lifecycle"
	"wheres-my-laundry/internal/metrics"
	"wheres-my-laundry/internal/orderservice/auth"
	orderdb "wheres-my-laundry/internal/orderservice/db"
	"wheres-my-laundry/internal/orderservice/handler"
	"wheres-my-laundry/internal/orderservice/idempotency"
	"wheres-my-laundry/internal/orderservice/memstore"
	"wheres-my-laundry/internal/orderservice/message"
	"wheres-my-laundry/pkg/config"
	"wheres-my-laundry/pkg/db"
	"wheres-my-laundry/pkg/logger"
	"wheres-my-laundry/pkg/models"
	"wheres-my-laundry/pkg/rabbitmq"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	devSecret   = "dev-secret"
	devBranch   = "branch-main"
	devEmployee = "employee-dev"
)

type Server struct {
	port       int
	storeKind  string
	config     *config.Config
	logger     *logger.Logger
	httpServer *http.Server
	dbPool     *pgxpool.Pool
	rabbitMQ   *rabbitmq.RabbitMQ
	cache      idempotency.Cache
}

func NewServer(port int, storeKind string, cfg *config.Config, log *logger.Logger) *Server {
	return &Server{
		port:      port,
		storeKind: storeKind,
		config:    cfg,
		logger:    log,
	}
}

func (s *Server) Start(ctx context.Context) error {
	var (
		store    lifecycle.Store
		assigned auth.Assignments
		notifier lifecycle.Notifier
		health   handler.HealthCheck
	)

	secret := s.config.Auth.JWTSecret

	switch s.storeKind {
	case StorePostgres:
		if secret == "" {
			return errors.New("auth.jwt_secret is required with the postgres store")
		}

		pool, err := db.ConnectDB(&s.config.Database, s.logger)
		if err != nil {
			return err
		}
		s.dbPool = pool
		if err := db.ApplySchema(ctx, pool); err != nil {
			return err
		}

		rm, err := rabbitmq.ConnectRabbitMQ(&s.config.RabbitMQ, s.logger)
		if err != nil {
			return err
		}
		s.rabbitMQ = rm

		orders := orderdb.NewOrderDB(pool, s.logger)
		store, assigned = orders, orders
		notifier = message.NewMessageService(rm, s.logger)
		s.cache = idempotency.NewRedisCache(s.config.Redis.Addr, s.config.Redis.Password, s.config.Redis.DB, "order-service")
		health = func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				return fmt.Errorf("database: %w", err)
			}
			if err := idempotency.Ping(ctx, s.cache); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			return nil
		}

	case StoreMemory:
		mem := seededMemstore()
		store, assigned = mem, mem
		notifier = message.NewLogNotifier(s.logger)
		s.cache = idempotency.NewMemoryCache("order-service")

		if secret == "" {
			secret = devSecret
		}
		token, err := auth.IssueToken(secret, devEmployee, 24*time.Hour)
		if err != nil {
			return err
		}
		s.logger.Warn("startup", "memory_store", fmt.Sprintf(
			"Running with in-memory store; branch %s, employee %s, token: %s", devBranch, devEmployee, token))

	default:
		return fmt.Errorf("unknown store %q", s.storeKind)
	}

	m := metrics.New("order-service")
	engine := lifecycle.NewEngine(store, notifier, auth.NewBranchGuard(assigned), s.logger,
		lifecycle.WithObserver(m),
		lifecycle.WithHistoryLimit(s.config.Lifecycle.HistoryLimit),
	)
	orderHandler := handler.NewOrderHandler(engine, s.cache, s.logger)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      handler.NewRouter(orderHandler, auth.NewMiddleware(secret, s.logger), m, health),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("startup", "server_started", fmt.Sprintf("Order Service started on port %d (%s store)", s.port, s.storeKind))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	if s.rabbitMQ != nil {
		s.rabbitMQ.Close()
	}
	if s.cache != nil {
		if cerr := idempotency.Close(s.cache); cerr != nil {
			s.logger.Error("shutdown", "redis_close_failed", "Failed to close redis client", cerr)
		}
	}
	if s.dbPool != nil {
		s.dbPool.Close()
	}
	return err
}

func seededMemstore() *memstore.Store {
	mem := memstore.New()
	mem.Assign(devBranch, devEmployee)
	mem.AddService(models.Service{ID: "wash-fold", BranchID: devBranch, Name: "Wash & Fold", PricePerKg: decimal.NewFromInt(30)})
	mem.AddService(models.Service{ID: "wash-dry-press", BranchID: devBranch, Name: "Wash, Dry & Press", PricePerKg: decimal.NewFromInt(55)})
	return mem
}
