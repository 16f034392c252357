package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"nexo/internal/core/services"
	httphandlers "nexo/internal/handlers/http"
	"nexo/internal/infrastructure/events"
	"nexo/internal/infrastructure/middleware"
	"nexo/internal/infrastructure/monitoring"
	"nexo/internal/infrastructure/relay"
	repositories "nexo/internal/infrastructure/repositories"
	signalstream "nexo/internal/infrastructure/signal"
	"nexo/pkg/config"
	"nexo/pkg/logger"
	"nexo/pkg/tracing"
)

func main() {
	// Try multiple config paths
	configPaths := []string{
		os.Getenv("NEXO_CONFIG"),
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/nexo/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error
	for _, path := range configPaths {
		if path == "" {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if cfg == nil {
		// no usable file: defaults plus env overrides
		cfg, err = config.Load("")
		if err != nil {
			cfg = config.DefaultConfig()
		}
	}

	zapLogger, err := logger.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		zapLogger, _ = logger.New("info")
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Warnw("tracing disabled", "error", err)
		tp, _ = tracing.Init(tracing.Config{})
	}

	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	roster := repoFactory.CreateRosterRepository()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := events.NewHub(uuid.NewString(), log)
	if client := repoFactory.RedisClient(); client != nil {
		hub.AttachRemote(client, cfg.Redis.Channel)
		go func() {
			if err := hub.RunRemote(ctx); err != nil {
				log.Warnw("remote event forwarding stopped", "error", err)
			}
		}()
	}

	var collector *monitoring.PrometheusCollector
	metricsService := services.NewMetricsService(nil)
	if cfg.Monitoring.PrometheusEnabled {
		collector = monitoring.NewPrometheusCollector()
		metricsService = services.NewMetricsService(collector)
	}

	limiter := middleware.NewConnLimiter(cfg.Relay.ConnectionsPerMinute, cfg.Relay.MaxConcurrent)
	deps := relay.Deps{
		Roster:    roster,
		Events:    hub,
		Metrics:   metricsService,
		Admission: limiter,
	}

	video := relay.NewServer(relay.OptionsFromConfig("video", cfg.Relay.Video), deps, log.With("relay", "video"))
	audio := relay.NewServer(relay.OptionsFromConfig("audio", cfg.Relay.Audio), deps, log.With("relay", "audio"))
	for _, srv := range []*relay.Server{video, audio} {
		metricsService.Register(srv.Name())
		if err := srv.Listen(); err != nil {
			log.Fatalw("relay listen failed", "relay", srv.Name(), "error", err)
		}
	}

	health := monitoring.NewHealthChecker()
	health.AddRosterCheck(roster, 30*time.Second, 2*time.Second)
	if client := repoFactory.RedisClient(); client != nil {
		health.AddRedisCheck(client, 30*time.Second, 2*time.Second)
	}
	for _, srv := range []*relay.Server{video, audio} {
		health.AddListenerCheck(srv.Name()+"_listener", func() bool { return srv.Addr() != nil }, 30*time.Second)
	}

	stream := signalstream.NewEventStreamServer(hub, log)
	stream.SetPingInterval(cfg.Admin.PingInterval)

	opts := httphandlers.AdminOptions{
		Roster: roster,
		Stats:  metricsService,
		Ready:  health,
		Events: stream.HandleWebSocket,
	}
	if collector != nil {
		opts.Metrics = collector.Handler()
		log.Info("Prometheus metrics enabled")
	}
	admin := httphandlers.NewAdminHandler([]httphandlers.RelayView{video, audio}, opts)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.TracingMiddleware(),
		middleware.RequestLogMiddleware(logger.NewContextLogger(zapLogger)),
		middleware.ErrorHandlerMiddleware(log),
		middleware.NewHTTPRateLimitMiddleware(cfg),
	)
	admin.SetupRoutes(router)

	srv := &http.Server{
		Addr:         cfg.Admin.Address,
		Handler:      router,
		ReadTimeout:  cfg.Admin.ReadTimeout,
		WriteTimeout: cfg.Admin.WriteTimeout,
	}

	serverErr := make(chan error, 3)
	for _, r := range []*relay.Server{video, audio} {
		go func() {
			if err := r.Serve(ctx); err != nil {
				serverErr <- err
			}
		}()
	}
	go func() {
		log.Infof("Starting NEXO admin server on %s", cfg.Admin.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Errorw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down NEXO relay...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Admin.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during admin server shutdown", "error", err)
		srv.Close()
	}

	cancel()
	video.Close()
	audio.Close()
	hub.Close()

	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer", "error", err)
	}
	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	log.Info("NEXO relay stopped")
}
