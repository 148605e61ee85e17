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
	"github.com/jalvrz/go-sos-relay/internal/config"
	"github.com/jalvrz/go-sos-relay/internal/connectivity"
	"github.com/jalvrz/go-sos-relay/internal/coordinator"
	"github.com/jalvrz/go-sos-relay/internal/gateway"
	"github.com/jalvrz/go-sos-relay/internal/logging"
	"github.com/jalvrz/go-sos-relay/internal/queue"
	"github.com/jalvrz/go-sos-relay/internal/recording"
	"github.com/jalvrz/go-sos-relay/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("relay starting", "host", cfg.Server.Host, "port", cfg.Server.Port, "backend", cfg.Gateway.BaseURL)

	q, err := queue.NewSQLiteQueue(cfg.Queue.Path)
	if err != nil {
		logging.Fatalf("Failed to open offline queue: %v", err)
	}
	defer q.Close()

	rec, err := recording.NewStore(cfg.Recording.Dir)
	if err != nil {
		logging.Fatalf("Failed to open recording store: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw := gateway.NewHTTPGateway(cfg.Gateway.BaseURL, cfg.Gateway.SendTimeout)

	monitor := connectivity.NewMonitor(gw.HealthCheck, cfg.Connectivity.ProbeInterval)
	monitor.Start(ctx)

	pool := worker.NewPool(cfg.Worker.Count, cfg.Worker.BufferSize)
	pool.Start(ctx)

	coord := coordinator.New(q, gw, monitor, pool, cfg.Gateway.SendTimeout)
	coord.Start(ctx)

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
	router.Use(api.RateLimitMiddleware(10, 20))

	handler := api.NewHandler(coord, q, monitor, rec)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("intake listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	coord.Stop()
	monitor.Close()
	pool.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
