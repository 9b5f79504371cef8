package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lexmeet/internal/core/services"
	handlers "lexmeet/internal/handlers/http"
	"lexmeet/internal/infrastructure/middleware"
	"lexmeet/internal/infrastructure/monitoring"
	"lexmeet/internal/infrastructure/repositories"
	relay "lexmeet/internal/infrastructure/signal"
	"lexmeet/pkg/config"
	"lexmeet/pkg/logger"
	"lexmeet/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	cfg, configPath, err := config.LoadFirst(
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/lexmeet/config.yaml",
		"config.yaml",
	)
	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.FromFormat(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()
	if err != nil {
		log.Warnw("invalid configuration, using defaults", "error", err)
	} else if configPath != "" {
		log.Infow("loaded configuration", "path", configPath)
	}

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "lexmeet-signal",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialise tracing", "error", err)
	}

	repoFactory := repositories.NewRepositoryFactory(cfg, log)
	rooms := repoFactory.CreateRoomRepository()

	collector := monitoring.NewRelayCollector(prometheus.DefaultRegisterer)
	relayServer := relay.NewRelayServer(relay.RelayConfigFrom(cfg), rooms, collector, log)

	health := monitoring.NewHealthChecker()
	health.AddRoomRepositoryCheck(rooms, 2*time.Second)
	if client := repoFactory.RedisClient(); client != nil {
		health.AddRedisCheck(client, 2*time.Second)
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.TracingMiddleware(),
		middleware.ErrorHandlerMiddleware(log),
	)
	if cfg.RateLimiting.Enabled {
		router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	}

	ws := []gin.HandlerFunc{relayServer.HandleWebSocket}
	if cfg.Auth.Enabled {
		authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
		ws = append([]gin.HandlerFunc{middleware.SignalAuthMiddleware(authService)}, ws...)
		router.GET("/rooms/:id", middleware.SignalAuthMiddleware(authService), relayServer.RoomMembers)
		if cfg.Auth.IssuerKey != "" {
			handlers.NewAuthHandler(authService, cfg.Auth.IssuerKey).SetupRoutes(router)
		}
	} else {
		router.GET("/rooms/:id", relayServer.RoomMembers)
	}
	router.GET("/ws", ws...)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"timestamp":   time.Now(),
			"uptime":      time.Since(startTime).String(),
			"connections": relayServer.Connections(),
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status := health.CheckAll(ctx)
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:        cfg.Server.Address,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		// WriteTimeout is left unset: it would cut long-lived WebSocket connections.
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting LexMeet signaling relay on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down LexMeet signaling relay...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer", "error", err)
	}
	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	log.Info("LexMeet signaling relay stopped")
}
