package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskeer/internal/api"
	"taskeer/internal/config"
	"taskeer/internal/database"
	"taskeer/internal/handlers"
	"taskeer/internal/websocket"
)

func main() {
	cfg := config.Load()

	logger := log.New()
	logger.SetFormatter(&log.JSONFormatter{})
	if lvl, err := log.ParseLevel(strings.ToLower(cfg.LogLevel)); err == nil {
		logger.SetLevel(lvl)
	}
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		logger.Fatalf("migrations: %v", err)
	}

	hub := websocket.NewHub(db, db, logger)
	notifier := handlers.NewNotifier(db, hub, db, logger)
	hub.SetNotifier(notifier)

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		rc := redis.NewClient(opts)
		defer rc.Close()

		bridge := websocket.NewBridge(rc, cfg.Redis.Channel, hub, logger)
		go bridge.Run(ctx)
		hub.SetPublisher(bridge)
		logger.WithField("channel", cfg.Redis.Channel).Info("hub bridge enabled")
	}

	go hub.Run(ctx)

	router := api.SetupRouter(db, hub, notifier, cfg, logger)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server shutdown")
	}
}
