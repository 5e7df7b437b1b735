package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/issuedesk/internal/app"
	"github.com/odyssey-erp/issuedesk/internal/auth"
	"github.com/odyssey-erp/issuedesk/internal/issues"
	"github.com/odyssey-erp/issuedesk/internal/observability"
	"github.com/odyssey-erp/issuedesk/internal/platform/cache"
	"github.com/odyssey-erp/issuedesk/internal/platform/db"
	"github.com/odyssey-erp/issuedesk/internal/rbac"
	"github.com/odyssey-erp/issuedesk/internal/users"
	"github.com/odyssey-erp/issuedesk/jobs"
)

// purger is satisfied by the queue and the inline fallback.
type purger interface {
	PurgeAttachments(ctx context.Context, refs ...string) error
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Default().Warn("load .env", slog.Any("error", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGQueryTimeout)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if err := db.Migrate(ctx, dbpool); err != nil {
		logger.Error("bootstrap schema", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	store, uploadDir, err := app.NewFileStore(ctx, cfg)
	if err != nil {
		logger.Error("init attachment store", slog.Any("error", err))
		os.Exit(1)
	}
	purgeJob := jobs.NewPurgeJob(store, logger, metrics.Jobs())

	var (
		redisClient *redis.Client
		revocations auth.Revoker
		attachments purger = jobs.NewInlinePurger(purgeJob)
		jobHandler  = jobs.NewHandler(nil, logger)
	)
	redisClient, err = cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		logger.Warn("redis unavailable, logout revocation and purge queue disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		revocations = auth.NewRevocationList(redisClient)

		enqueuer := jobs.NewEnqueuer(cfg.RedisOptions().AsynqOpt())
		defer func() {
			if err := enqueuer.Close(); err != nil {
				logger.Warn("asynq client close", slog.Any("error", err))
			}
		}()
		attachments = enqueuer

		inspector := asynq.NewInspector(cfg.RedisOptions().AsynqOpt())
		defer func() { _ = inspector.Close() }()
		jobHandler = jobs.NewHandler(inspector, logger)
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	authService := auth.NewService(auth.NewRepository(dbpool), tokens, revocations, logger)
	if err := authService.EnsureAdmin(ctx, cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		logger.Error("seed admin", slog.Any("error", err))
		os.Exit(1)
	}

	rbacMiddleware := rbac.Middleware{Logger: logger}

	issueService := issues.NewService(issues.NewRepository(dbpool), store, attachments, logger, cfg.ExportMaxRows)
	userService := users.NewService(users.NewRepository(dbpool), store, attachments, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		AuthService:    authService,
		AuthHandler:    auth.NewHandler(logger, authService, rbacMiddleware, app.AuthRateLimit(cfg.AuthRateLimit)),
		IssuesHandler:  issues.NewHandler(logger, issueService, rbacMiddleware, cfg.UploadMaxBytes),
		UsersHandler:   users.NewHandler(logger, userService, rbacMiddleware),
		RBACMiddleware: rbacMiddleware,
		JobHandler:     jobHandler,
		Metrics:        metrics,
		UploadDir:      uploadDir,
		Ready: func(r *http.Request) error {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			return dbpool.Ping(ctx)
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
