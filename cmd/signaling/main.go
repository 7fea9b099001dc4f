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

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/airtext/config"
	"github.com/mossy-p/airtext/internal/handlers"
	"github.com/mossy-p/airtext/internal/logger"
	"github.com/mossy-p/airtext/internal/metrics"
	"github.com/mossy-p/airtext/internal/ratelimit"
	"github.com/mossy-p/airtext/internal/redis"
	"github.com/mossy-p/airtext/internal/rooms"
	"github.com/mossy-p/airtext/internal/signaling"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	ipIdleTimeout     = 10 * time.Minute
)

func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:          "signaling",
		Short:        "AirText signaling server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), config.ResolvePath(configPath))
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a yaml config file (default $AIRTEXT_CONFIG)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	registry := rooms.NewRegistry()
	limiter := ratelimit.New(ratelimit.Config{
		MaxTokens:       cfg.RateLimit.MaxTokens,
		RefillRate:      cfg.RateLimit.RefillRate,
		CleanupInterval: cfg.RateLimit.CleanupInterval,
	}, ratelimit.RealClock{})

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var coord *signaling.Coordinator
	m, err := metrics.New(promRegistry, metrics.Gauges{
		Rooms:    registry.Len,
		Sessions: func() int { return coord.SessionCount() },
	})
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	opts := []signaling.Option{signaling.WithObserver(m)}

	// Connect to Redis
	if cfg.Redis.Enabled {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		log.Info("Redis connection established", zap.String("addr", cfg.Redis.Addr()))

		mirror := redis.NewMirror(client, cfg.Rooms.TTL, log.Named("mirror"))
		go mirror.Run(ctx)
		opts = append(opts, signaling.WithObserver(mirror))
	}

	coord = signaling.New(registry, limiter, log.Named("signaling"), opts...)

	go limiter.Run(ctx)
	go coord.RunSweeper(ctx, cfg.Rooms.TTL, cfg.Rooms.SweepInterval)

	ipLimiter := handlers.NewIPLimiter(cfg.Upgrade.RequestsPerSecond, cfg.Upgrade.Burst, ipIdleTimeout)
	go ipLimiter.Run(ctx, time.Minute)

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), handlers.GinLogger(log.Named("http")))

	// Global CORS middleware (runs before routing)
	router.Use(handlers.OriginFilter(cfg.AllowedOrigins))

	h := handlers.New(coord, handlers.Options{
		JWTSecret:  cfg.JWTSecret,
		SessionTTL: cfg.SessionTTL,
		ICEServers: cfg.ICEServers,
	}, log.Named("handlers"))
	h.Mount(router, ipLimiter.Middleware(log.Named("upgrade")))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("Starting AirText signaling server", zap.String("port", cfg.Port), zap.String("environment", cfg.Environment))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
