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

	"github.com/gin-gonic/gin"

	"campus-portal/internal/auth"
	"campus-portal/internal/config"
	"campus-portal/internal/database"
	"campus-portal/internal/httpapi"
	"campus-portal/internal/identity"
	"campus-portal/internal/notify"
	"campus-portal/internal/uploads"
	"campus-portal/internal/workflow"
)

func main() {
	config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		config.Exitf("config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	gin.SetMode(cfg.GinMode)

	// Connect DB
	db, err := database.Setup(cfg.DatabaseURL)
	if err != nil {
		config.Exitf("database: %v", err)
	}
	slog.Info("database ready")

	assets, err := uploads.NewDir(cfg.UploadDir)
	if err != nil {
		config.Exitf("uploads: %v", err)
	}

	var store auth.Store = auth.NewMemoryStore()
	if cfg.RedisURL != "" {
		client, err := auth.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			config.Exitf("redis: %v", err)
		}
		defer client.Close()
		store = auth.NewRedisStore(client)
		slog.Info("sessions stored in redis")
	}
	sessions := auth.NewSessions(store, cfg.SecretKey, cfg.SessionTTL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := notify.NewHub()
	go hub.Run(ctx)

	srv := &httpapi.Server{
		Engine:    workflow.NewEngine(db, assets, hub, cfg.PageSize),
		Identity:  identity.NewService(db, auth.Bcrypt{Cost: cfg.BcryptCost}),
		Sessions:  sessions,
		Hub:       hub,
		UploadDir: cfg.UploadDir,
	}

	r := gin.New()
	r.Use(gin.Recovery(), httpapi.RequestLogger(), httpapi.CORSMiddleware(cfg.CORSOrigins))
	srv.SetupRoutes(r)

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	slog.Info("server exited")
}
