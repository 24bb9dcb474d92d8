package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"newsletter.backend/internal/config"
	"newsletter.backend/internal/infrastructure/datasources/postgres"
	"newsletter.backend/internal/infrastructure/jobs"
	"newsletter.backend/internal/infrastructure/mailer"
	"newsletter.backend/internal/infrastructure/repositories"
	"newsletter.backend/internal/interfaces/http/handlers"
	"newsletter.backend/internal/interfaces/http/middleware"
	"newsletter.backend/internal/usecases"
	"newsletter.backend/pkg/logger"
	"newsletter.backend/pkg/redis"
)

const shutdownTimeout = 10 * time.Second

var (
	loadDotenv = godotenv.Load
	loadCfg    = config.Load
	initLog    = logger.Init
	initRedis  = redis.Init
	openDB     = postgres.NewConnection
	migrateDB  = postgres.Migrate
	newGorm    = postgres.NewGorm
	newMailer  = mailer.New
	runServer  = serve
)

func main() {
	if err := runMainProcess(); err != nil {
		log.Fatal(err)
	}
}

func runMainProcess() error {
	if err := loadDotenv(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := loadCfg()

	initLog(cfg.Server.Env)
	ctx := context.Background()
	logger.Info(ctx, "Logger initialized",
		zap.String("env", cfg.Server.Env),
		zap.String("stage", cfg.Tables.Stage),
	)

	// Redis only backs rate limiting; without it the limiter lets requests through
	if cfg.Redis.URL != "" {
		if err := initRedis(cfg.Redis.URL, cfg.Redis.PASSWORD); err != nil {
			logger.Error(ctx, "Failed to initialize Redis", zap.Error(err))
			return fmt.Errorf("failed to initialize redis: %w", err)
		}
		defer redis.Close()
		logger.Info(ctx, "Redis initialized")
	} else {
		logger.Warn(ctx, "REDIS_URL not set, rate limiting disabled")
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	sqlDB, err := openDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer sqlDB.Close()
	logger.Info(ctx, "Connected to PostgreSQL")

	if cfg.Database.AutoMigrate {
		if err := migrateDB(sqlDB, cfg.Tables); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		logger.Info(ctx, "Migrations applied",
			zap.String("subscribers_table", cfg.Tables.Subscribers),
			zap.String("tokens_table", cfg.Tables.Tokens),
		)
	}

	db, err := newGorm(sqlDB)
	if err != nil {
		return err
	}

	notifier, err := newMailer(cfg.Mail)
	if err != nil {
		return fmt.Errorf("failed to initialize mailer: %w", err)
	}

	subscriptionHandler, tokenRepo := buildSubscription(cfg, db, notifier)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cleanupJob := jobs.NewTokenCleanupJob(tokenRepo, cfg.Jobs)
	go cleanupJob.Start(ctx)
	defer cleanupJob.Stop()

	r := newRouter(cfg, routeDeps{
		subscriptionHandler: subscriptionHandler,
		rateLimit: func(scope string) gin.HandlerFunc {
			return middleware.RateLimitMiddleware(scope, cfg.RateLimit.Requests, cfg.RateLimit.Window)
		},
	})

	logger.Info(ctx, "Newsletter backend starting",
		zap.String("port", cfg.Server.Port),
		zap.Int("routes", len(r.Routes())),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := runServer(ctx, srv); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	logger.Info(context.Background(), "Server stopped")
	return nil
}

func buildSubscription(cfg *config.Config, db *gorm.DB, notifier usecases.Notifier) (*handlers.SubscriptionHandler, *repositories.TokenRepository) {
	subscriberRepo := repositories.NewSubscriberRepository(db, cfg.Tables.Subscribers)
	tokenRepo := repositories.NewTokenRepository(db, cfg.Tables.Tokens)
	uow := repositories.NewUnitOfWork(db)

	subscriptionUsecase := usecases.NewSubscriptionUsecase(
		subscriberRepo,
		tokenRepo,
		uow,
		usecases.NewTokenGenerator(cfg.Tokens.MaxAttempts),
		notifier,
		usecases.NewLinkBuilder(cfg.Links),
		usecases.NewSubscriptionSettings(cfg.Tokens, cfg.Mail),
	)
	return handlers.NewSubscriptionHandler(subscriptionUsecase), tokenRepo
}

func newRouter(cfg *config.Config, deps routeDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware())

	applyCORSMiddleware(r, cfg.Server.AllowedOrigins)
	registerHealthRoute(r)
	registerMetricsRoute(r)

	r.Use(middleware.RequestTimeoutMiddleware(cfg.Server.RequestTimeout))
	registerAPIV1Routes(r, deps)
	return r
}

// serve runs srv until ctx is done, then drains in-flight requests
func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info(context.Background(), "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
