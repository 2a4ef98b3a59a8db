package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chess-arena/internal/archive"
	"chess-arena/internal/auth"
	"chess-arena/internal/config"
	"chess-arena/internal/handlers"
	"chess-arena/internal/matchmaking"
	"chess-arena/internal/middleware"
	"chess-arena/internal/obslog"
	"chess-arena/internal/presence"
	"chess-arena/internal/registry"
	"chess-arena/internal/room"

	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	logger := obslog.L()
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("server_failed", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// Load configuration
	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		return err
	}
	logger.Info("server_starting", zap.String("env", cfg.Environment), zap.String("addr", cfg.Addr()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Finished-game archive
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	store, err := archive.Open(openCtx, archive.Config{
		Driver:   cfg.Archive.Driver,
		URI:      cfg.Archive.URI,
		Database: cfg.Archive.Database,
	})
	cancel()
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(ctx); err != nil {
			logger.Warn("archive_close_failed", zap.Error(err))
		}
	}()
	logger.Info("archive_ready", zap.String("driver", cfg.Archive.Driver))

	// Presence: shared through Redis when configured, in-process otherwise
	var tracker presence.Tracker = presence.NewLocal()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		tracker = presence.NewRedis(rdb, cfg.Redis.PresenceTTL)
		logger.Info("presence_redis", zap.String("addr", cfg.Redis.Addr))
	}

	// Identity
	tokens := auth.NewTokenService(cfg.Auth.Secret, cfg.Auth.Issuer)
	authenticator := auth.NewAuthenticator(tokens, cfg.Auth.Required)

	// Rooms and matchmaking
	reg := registry.New(registry.Config{
		Retention: cfg.Room.Retention,
		Logger:    logger,
		Archiver:  store,
		Room: room.Config{
			GracePeriod:      cfg.Room.GracePeriod,
			ForfeitOnAbandon: *cfg.Room.ForfeitOnAbandon,
		},
	})
	defer reg.Close()

	queue := matchmaking.NewQueue(logger)
	queue.SetInterval(cfg.Matchmaking.SweepInterval)

	wsHandler := handlers.NewWebSocketHandler(handlers.WebSocketOptions{
		Auth:           authenticator,
		Presence:       tracker,
		Queue:          queue,
		Registry:       reg,
		Logger:         logger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
	queue.SetMatchNotifier(wsHandler.NotifyMatch)
	queue.Start()
	defer queue.Stop()

	limiter := middleware.NewLimiter()
	defer limiter.Close()

	router := handlers.NewRouter(handlers.RouterOptions{
		WebSocket:   wsHandler,
		Status:      handlers.NewStatusHandler(reg, queue, tracker, wsHandler.Hub()),
		Auth:        middleware.NewAuthMiddleware(tokens),
		RateLimiter: limiter,
		UpgradeRate: middleware.Limit{Requests: cfg.RateLimit.UpgradesPerMinute, Window: time.Minute},
		HSTS:        cfg.Server.HSTS,
	})

	// CORS middleware
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     corsHandler.Handler(router),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server_listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("server_shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server_stopped")
	return nil
}
