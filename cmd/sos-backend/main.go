package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/jalvrz/go-sos-relay/internal/api"
	"github.com/jalvrz/go-sos-relay/internal/backend"
	"github.com/jalvrz/go-sos-relay/internal/config"
	"github.com/jalvrz/go-sos-relay/internal/location"
	"github.com/jalvrz/go-sos-relay/internal/logging"
	"github.com/jalvrz/go-sos-relay/internal/recording"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("backend starting", "host", cfg.Backend.Host, "port", cfg.Backend.Port)

	callLog, err := backend.NewCallLog(cfg.Backend.DBPath)
	if err != nil {
		logging.Fatalf("Failed to open call log: %v", err)
	}
	defer callLog.Close()

	rec, err := recording.NewStore(cfg.Recording.Dir)
	if err != nil {
		logging.Fatalf("Failed to open recording store: %v", err)
	}

	geo := location.NewProvider(cfg.Geocoder.URL, cfg.Geocoder.CachePath, cfg.Geocoder.Timeout)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}))
	router.Use(api.RateLimitMiddleware(20, 40))

	handler := backend.NewHandler(callLog, geo, rec)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Backend.Host, cfg.Backend.Port),
		Handler: router,
	}

	go func() {
		slog.Info("backend listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
