package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatrelay/internal/config"
	"chatrelay/internal/database/db_client"
	"chatrelay/internal/http/http_server"
	"chatrelay/internal/redis/namecache"
	"chatrelay/internal/redis/redis_client"
	"chatrelay/internal/services/chatstore"
	"chatrelay/internal/services/moderation"
	"chatrelay/internal/ws"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))
	gin.SetMode(cfg.GinMode)

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Postgres db client + schema
	pgDb, err := db_client.Open(ctx, cfg.PostgresDSN())
	if err != nil {
		Log.Fatal("pg-open", zap.Error(err))
	}
	defer pgDb.Close()

	if err := chatstore.EnsureSchema(ctx, pgDb); err != nil {
		Log.Fatal("pg-schema", zap.Error(err))
	}

	store := chatstore.NewChatStore(pgDb)

	// 4. Optional Redis cache in front of the device → name lookups
	if cfg.RedisEnabled {
		redisClient, err := redis_client.NewRedisClient(ctx, redis_client.Options{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			Log.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()
		store = namecache.New(store, redisClient, cfg.NameCacheTTL)
		Log.Debug("Redis name cache enabled", zap.Duration("ttl", cfg.NameCacheTTL))
	}

	// 5. Rooms + presence
	hub := ws.NewHub()

	// 6. Initialize the WS server
	wsSrv := ws.NewWsServer(hub, store, moderation.NewDefault(), ws.Options{
		HistoryLimit:  cfg.HistoryLimit,
		MaxImageBytes: cfg.MaxImageBytes,
		ReadLimit:     cfg.WsReadLimit,
		AuthTimeout:   cfg.AuthTimeout,
	})

	// 7. HTTP + WS server
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, cfg.StaticDir, wsSrv, store)
	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			Log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	case <-ctx.Done():
		Log.Info("shutdown signal received")
	}

	// 8. Graceful shutdown
	if err := httpServer.Dispose(); err != nil {
		Log.Error("http-dispose", zap.Error(err))
	}
	if err := wsSrv.Shutdown(10 * time.Second); err != nil {
		Log.Error("ws-shutdown", zap.Error(err))
	}
}
