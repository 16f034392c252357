package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nexo/internal/core/services"
	httphandlers "nexo/internal/handlers/http"
	"nexo/internal/infrastructure/callsession"
	"nexo/internal/infrastructure/devices"
	"nexo/internal/infrastructure/events"
	"nexo/internal/infrastructure/middleware"
	"nexo/internal/infrastructure/presentation"
	redisrepo "nexo/internal/infrastructure/repositories/redis"
	signalstream "nexo/internal/infrastructure/signal"
	"nexo/pkg/config"
	"nexo/pkg/logger"
	"nexo/pkg/tracing"
	"nexo/pkg/validation"
)

type CallOptions struct {
	ConfigPath string
	Username   string
	Host       string
	VideoPort  int
	AudioPort  int
	Viewer     string
	NoStart    bool
}

func NewCallCommand() *cobra.Command {
	opts := &CallOptions{}

	cmd := &cobra.Command{
		Use:   "nexo-call",
		Short: "Join a NEXO video call",
		Long:  "Connect to the video and audio relays and serve the call window on a local HTTP viewer",
		Example: `  nexo-call --username alice --host relay.example.com
  nexo-call --config configs/config.yaml --no-start`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.ConfigPath, "config", "configs/config.yaml", "Path to the YAML configuration")
	flags.StringVarP(&opts.Username, "username", "u", "", "Name announced to the video relay")
	flags.StringVar(&opts.Host, "host", "", "Relay host (overrides client.server_host)")
	flags.IntVar(&opts.VideoPort, "video-port", 0, "Video relay port (overrides client.video_port)")
	flags.IntVar(&opts.AudioPort, "audio-port", 0, "Audio relay port (overrides client.audio_port)")
	flags.StringVar(&opts.Viewer, "viewer", "", "Viewer listen address (overrides client.viewer_address)")
	flags.BoolVar(&opts.NoStart, "no-start", false, "Wait for POST /call/start instead of joining right away")

	return cmd
}

// applyFlags copies explicitly set flags over the loaded client config.
func applyFlags(cmd *cobra.Command, opts *CallOptions, cfg *config.ClientConfig) {
	flags := cmd.Flags()
	if flags.Changed("username") {
		cfg.Username = opts.Username
	}
	if flags.Changed("host") {
		cfg.ServerHost = opts.Host
	}
	if flags.Changed("video-port") {
		cfg.VideoPort = opts.VideoPort
	}
	if flags.Changed("audio-port") {
		cfg.AudioPort = opts.AudioPort
	}
	if flags.Changed("viewer") {
		cfg.ViewerAddress = opts.Viewer
	}
}

func runCall(cmd *cobra.Command, opts *CallOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cmd, opts, &cfg.Client)
	if err := cfg.Client.Validate(); err != nil {
		return fmt.Errorf("invalid client config: %w", err)
	}
	if err := validation.ValidateUsername(cfg.Client.Username); err != nil {
		return fmt.Errorf("invalid username: %w", err)
	}

	zapLogger, err := logger.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar().With("username", cfg.Client.Username)

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName + "-call",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Warnw("tracing disabled", "error", err)
		tp, _ = tracing.Init(tracing.Config{})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := events.NewHub(uuid.NewString(), log)
	defer hub.Close()
	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, log)
		if err != nil {
			log.Warnw("call events stay local, redis unreachable", "error", err)
		} else {
			defer redisrepo.CloseRedisClient(client)
			hub.AttachRemote(client, cfg.Redis.Channel)
		}
	}

	dispatcher := presentation.NewDispatcher(cfg.Client.UIQueueSize, log)
	defer dispatcher.Stop()
	presenter := presentation.NewHeadlessPresenter(log)

	coordinator := services.NewCallCoordinator(
		events.NewCallObserver(hub, cfg.Client.Username, log),
		log,
	)

	clientCfg := cfg.Client
	newSession := func() httphandlers.StartableSession {
		devs := devices.FromConfig(clientCfg.Devices)
		return callsession.New(clientCfg.Username, clientCfg, callsession.Deps{
			Lifecycle:  coordinator,
			Dispatcher: dispatcher,
			Presenter:  presenter,
			Camera:     devs.Camera,
			Microphone: devs.Microphone,
			Speaker:    devs.Speaker,
		}, log)
	}

	stream := signalstream.NewEventStreamServer(hub, log)
	stream.SetPingInterval(cfg.Admin.PingInterval)
	viewer := httphandlers.NewViewerHandler(ctx, coordinator, presenter, newSession, stream.HandleWebSocket)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.TracingMiddleware(),
		middleware.ErrorHandlerMiddleware(log),
	)
	viewer.SetupRoutes(router)

	srv := &http.Server{
		Addr:         clientCfg.ViewerAddress,
		Handler:      router,
		ReadTimeout:  cfg.Admin.ReadTimeout,
		WriteTimeout: cfg.Admin.WriteTimeout,
	}
	serverErr := make(chan error, 1)
	go func() {
		log.Infow("Viewer listening", "address", clientCfg.ViewerAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	if !opts.NoStart {
		if err := startCall(ctx, coordinator, newSession(), log); err != nil {
			log.Warnw("call not started", "error", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case runErr = <-serverErr:
		log.Errorw("Viewer failed", "error", runErr)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	active := coordinator.ActiveCall()
	coordinator.EndCall()
	if s, ok := active.(*callsession.Session); ok {
		waitSession(s, 5*time.Second, log)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Admin.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during viewer shutdown", "error", err)
		srv.Close()
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer", "error", err)
	}
	return runErr
}

func startCall(ctx context.Context, coordinator *services.CallCoordinator, s httphandlers.StartableSession, log *zap.SugaredLogger) error {
	if !coordinator.StartCall(s) {
		return fmt.Errorf("call %s rejected: %s", s.ID(), coordinator.State())
	}
	if err := s.Start(ctx); err != nil {
		s.Disconnect("start failed")
		return err
	}
	log.Infow("Call placed", "call_id", s.ID())
	return nil
}

func waitSession(s *callsession.Session, timeout time.Duration, log *zap.SugaredLogger) {
	select {
	case <-s.Done():
	case <-time.After(timeout):
		log.Warnw("call teardown timed out", "call_id", s.ID())
	}
}
