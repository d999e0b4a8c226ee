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

	"github.com/beacon-api/beacon/internal/app"
	"github.com/beacon-api/beacon/internal/auth"
	"github.com/beacon-api/beacon/internal/observability"
	"github.com/beacon-api/beacon/internal/platform/cache"
	"github.com/beacon-api/beacon/internal/platform/db"
	"github.com/beacon-api/beacon/internal/ratelimit"
	"github.com/beacon-api/beacon/internal/shared"
	"github.com/beacon-api/beacon/internal/token"
	"github.com/beacon-api/beacon/internal/users"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	hasher := shared.BcryptHasher{Cost: cfg.BcryptCost}
	tokens := token.NewService([]byte(cfg.JWTSecret), cfg.JWTTTL)
	limiter := ratelimit.NewLimiter(redisClient, logger)

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo, hasher)

	authService := auth.NewService(usersRepo, hasher, tokens)
	authMW := auth.Middleware{Service: authService, Logger: logger}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()

	authHandler := auth.NewHandler(logger, authService, usersService, limiter, asynqClient)
	usersHandler := users.NewHandler(logger, usersService, limiter, authMW.RequireUser, authMW.RequireAdmin)
	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		AuthHandler:  authHandler,
		UsersHandler: usersHandler,
		AuthMW:       authMW,
		Limiter:      limiter,
		Metrics:      metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", slog.Any("error", err))
	}
}
