package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"nexo/pkg/validation"
)

// RelayConfig configures one relay instance (video or audio).
type RelayConfig struct {
	Address        string        `yaml:"address"`
	MaxFrameBytes  int           `yaml:"max_frame_bytes"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	SocketBuffer   int           `yaml:"socket_buffer"`
	ReadUsername   bool          `yaml:"read_username"`
	BroadcastCount bool          `yaml:"broadcast_count"`
}

// VideoConfig configures the client video pipelines.
type VideoConfig struct {
	FrameInterval   time.Duration `yaml:"frame_interval"`
	PreviewInterval time.Duration `yaml:"preview_interval"`
	SendIdleSleep   time.Duration `yaml:"send_idle_sleep"`
	JPEGQuality     int           `yaml:"jpeg_quality"`
	Width           int           `yaml:"width"`
	Height          int           `yaml:"height"`
	MaxFrameBytes   int           `yaml:"max_frame_bytes"`
}

// AudioConfig configures the client audio pipelines.
type AudioConfig struct {
	SampleRate      int     `yaml:"sample_rate"`
	FrameDurationMs int     `yaml:"frame_duration_ms"`
	GateThreshold   float64 `yaml:"gate_threshold"`
	FadeSamples     int     `yaml:"fade_samples"`
	HighPassCutoff  float64 `yaml:"high_pass_cutoff"`
	QueueCapacity   int     `yaml:"queue_capacity"`
	MaxFrameBytes   int     `yaml:"max_frame_bytes"`
}

// TileConfig configures remote tile expiry.
type TileConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DeviceConfig selects capture and playback backends.
type DeviceConfig struct {
	Camera        string  `yaml:"camera"`     // pattern | none
	Microphone    string  `yaml:"microphone"` // tone | silence | none
	Speaker       string  `yaml:"speaker"`    // null | file | none
	SpeakerFile   string  `yaml:"speaker_file"`
	ToneFrequency float64 `yaml:"tone_frequency"`
}

// ClientConfig is everything a call session needs.
type ClientConfig struct {
	Username       string        `yaml:"username"`
	ServerHost     string        `yaml:"server_host"`
	VideoPort      int           `yaml:"video_port"`
	AudioPort      int           `yaml:"audio_port"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ViewerAddress  string        `yaml:"viewer_address"`
	UIQueueSize    int           `yaml:"ui_queue_size"`
	Video          VideoConfig   `yaml:"video"`
	Audio          AudioConfig   `yaml:"audio"`
	Tiles          TileConfig    `yaml:"tiles"`
	Devices        DeviceConfig  `yaml:"devices"`
}

type Config struct {
	Relay struct {
		Video RelayConfig `yaml:"video"`
		Audio RelayConfig `yaml:"audio"`

		ConnectionsPerMinute int `yaml:"connections_per_minute"`
		MaxConcurrent        int `yaml:"max_concurrent_connections"`
	} `yaml:"relay"`

	Admin struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		PingInterval    time.Duration `yaml:"ping_interval"`
	} `yaml:"admin"`

	Client ClientConfig `yaml:"client"`

	Monitoring struct {
		PrometheusEnabled bool          `yaml:"prometheus_enabled"`
		MetricsInterval   time.Duration `yaml:"metrics_interval"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
		Channel  string `yaml:"channel"`
	} `yaml:"redis"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Relay
	for name, r := range map[string]RelayConfig{"video": c.Relay.Video, "audio": c.Relay.Audio} {
		if err := validation.ValidateAddress(r.Address, "relay."+name+".address"); err != nil {
			return err
		}
		if r.MaxFrameBytes <= 0 {
			return fmt.Errorf("relay.%s.max_frame_bytes must be > 0", name)
		}
		if r.WriteTimeout <= 0 {
			return fmt.Errorf("relay.%s.write_timeout must be > 0", name)
		}
		if r.SocketBuffer < 0 {
			return fmt.Errorf("relay.%s.socket_buffer must be >= 0", name)
		}
	}
	if c.Relay.ConnectionsPerMinute < 0 {
		return fmt.Errorf("relay.connections_per_minute must be >= 0")
	}
	if c.Relay.MaxConcurrent < 0 {
		return fmt.Errorf("relay.max_concurrent_connections must be >= 0")
	}

	// Admin
	if c.Admin.Address == "" {
		return fmt.Errorf("admin.address must not be empty")
	}
	if c.Admin.ReadTimeout <= 0 {
		return fmt.Errorf("admin.read_timeout must be > 0")
	}
	if c.Admin.WriteTimeout <= 0 {
		return fmt.Errorf("admin.write_timeout must be > 0")
	}
	if c.Admin.ShutdownTimeout <= 0 {
		return fmt.Errorf("admin.shutdown_timeout must be > 0")
	}
	if c.Admin.PingInterval <= 0 {
		return fmt.Errorf("admin.ping_interval must be > 0")
	}

	if err := c.Client.Validate(); err != nil {
		return err
	}

	// Monitoring
	if c.Monitoring.MetricsInterval <= 0 {
		return fmt.Errorf("monitoring.metrics_interval must be > 0")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Validate checks the client section. The username is checked separately
// when a call is placed since it usually comes from the chat login.
func (c *ClientConfig) Validate() error {
	if err := validation.ValidateHost(c.ServerHost); err != nil {
		return fmt.Errorf("client.server_host: %w", err)
	}
	if err := validation.ValidatePort(c.VideoPort, "client.video_port"); err != nil {
		return err
	}
	if err := validation.ValidatePort(c.AudioPort, "client.audio_port"); err != nil {
		return err
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("client.connect_timeout must be > 0")
	}
	if c.UIQueueSize <= 0 {
		return fmt.Errorf("client.ui_queue_size must be > 0")
	}

	v := c.Video
	if v.FrameInterval <= 0 || v.PreviewInterval <= 0 || v.SendIdleSleep <= 0 {
		return fmt.Errorf("client.video intervals must be > 0")
	}
	if err := validation.ValidateRange(v.JPEGQuality, 1, 100, "client.video.jpeg_quality"); err != nil {
		return err
	}
	if v.Width <= 0 || v.Height <= 0 {
		return fmt.Errorf("client.video capture size must be > 0")
	}
	if v.MaxFrameBytes <= 0 {
		return fmt.Errorf("client.video.max_frame_bytes must be > 0")
	}

	a := c.Audio
	if a.SampleRate <= 0 {
		return fmt.Errorf("client.audio.sample_rate must be > 0")
	}
	if a.FrameDurationMs <= 0 || a.SampleRate*a.FrameDurationMs/1000 == 0 {
		return fmt.Errorf("client.audio.frame_duration_ms must yield at least one sample")
	}
	if a.GateThreshold < 0 {
		return fmt.Errorf("client.audio.gate_threshold must be >= 0")
	}
	if a.FadeSamples <= 0 {
		return fmt.Errorf("client.audio.fade_samples must be > 0")
	}
	if a.HighPassCutoff <= 0 || a.HighPassCutoff >= float64(a.SampleRate)/2 {
		return fmt.Errorf("client.audio.high_pass_cutoff must be within (0, sample_rate/2)")
	}
	if a.QueueCapacity <= 0 {
		return fmt.Errorf("client.audio.queue_capacity must be > 0")
	}
	if a.MaxFrameBytes < a.SampleRate*a.FrameDurationMs/1000*2 {
		return fmt.Errorf("client.audio.max_frame_bytes must hold one audio frame")
	}

	if c.Tiles.Timeout <= 0 || c.Tiles.SweepInterval <= 0 {
		return fmt.Errorf("client.tiles timeout and sweep_interval must be > 0")
	}

	d := c.Devices
	switch d.Camera {
	case "pattern", "none":
	default:
		return fmt.Errorf("client.devices.camera must be one of pattern, none")
	}
	switch d.Microphone {
	case "tone", "silence", "none":
	default:
		return fmt.Errorf("client.devices.microphone must be one of tone, silence, none")
	}
	switch d.Speaker {
	case "null", "none":
	case "file":
		if d.SpeakerFile == "" {
			return fmt.Errorf("client.devices.speaker_file is required when speaker=file")
		}
	default:
		return fmt.Errorf("client.devices.speaker must be one of null, file, none")
	}
	if d.Microphone == "tone" && (d.ToneFrequency <= 0 || d.ToneFrequency >= float64(a.SampleRate)/2) {
		return fmt.Errorf("client.devices.tone_frequency must be within (0, sample_rate/2)")
	}
	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Relay.Video = RelayConfig{
		Address:        ":5000",
		MaxFrameBytes:  50 * 1024 * 1024,
		WriteTimeout:   2 * time.Second,
		SocketBuffer:   128 * 1024,
		ReadUsername:   true,
		BroadcastCount: true,
	}
	cfg.Relay.Audio = RelayConfig{
		Address:       ":6000",
		MaxFrameBytes: 2 * 1024 * 1024,
		WriteTimeout:  time.Second,
		SocketBuffer:  64 * 1024,
	}
	cfg.Relay.ConnectionsPerMinute = 0
	cfg.Relay.MaxConcurrent = 0

	cfg.Admin.Address = ":8080"
	cfg.Admin.ReadTimeout = 30 * time.Second
	cfg.Admin.WriteTimeout = 30 * time.Second
	cfg.Admin.ShutdownTimeout = 10 * time.Second
	cfg.Admin.PingInterval = 30 * time.Second

	cfg.Client = DefaultClientConfig()

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.MetricsInterval = 15 * time.Second

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10
	cfg.Redis.Channel = "nexo:relay:events"

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "nexo"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0

	return cfg
}

// DefaultClientConfig returns the client defaults: 320x240 JPEG q40 every
// 50 ms, 44.1 kHz audio in 40 ms frames.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ServerHost:     "localhost",
		VideoPort:      5000,
		AudioPort:      6000,
		ConnectTimeout: 5 * time.Second,
		ViewerAddress:  "127.0.0.1:8090",
		UIQueueSize:    256,
		Video: VideoConfig{
			FrameInterval:   50 * time.Millisecond,
			PreviewInterval: 100 * time.Millisecond,
			SendIdleSleep:   5 * time.Millisecond,
			JPEGQuality:     40,
			Width:           320,
			Height:          240,
			MaxFrameBytes:   50 * 1024 * 1024,
		},
		Audio: AudioConfig{
			SampleRate:      44100,
			FrameDurationMs: 40,
			GateThreshold:   200,
			FadeSamples:     64,
			HighPassCutoff:  100,
			QueueCapacity:   50,
			MaxFrameBytes:   2 * 1024 * 1024,
		},
		Tiles: TileConfig{
			Timeout:       4 * time.Second,
			SweepInterval: time.Second,
		},
		Devices: DeviceConfig{
			Camera:        "pattern",
			Microphone:    "tone",
			Speaker:       "null",
			ToneFrequency: 440,
		},
	}
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("NEXO_VIDEO_ADDRESS"); addr != "" {
		c.Relay.Video.Address = addr
	}
	if addr := os.Getenv("NEXO_AUDIO_ADDRESS"); addr != "" {
		c.Relay.Audio.Address = addr
	}
	if addr := os.Getenv("NEXO_ADMIN_ADDRESS"); addr != "" {
		c.Admin.Address = addr
	}
	if host := os.Getenv("NEXO_SERVER_HOST"); host != "" {
		c.Client.ServerHost = host
	}
	if port, err := strconv.Atoi(os.Getenv("NEXO_VIDEO_PORT")); err == nil {
		c.Client.VideoPort = port
	}
	if port, err := strconv.Atoi(os.Getenv("NEXO_AUDIO_PORT")); err == nil {
		c.Client.AudioPort = port
	}
	if name := os.Getenv("NEXO_USERNAME"); name != "" {
		c.Client.Username = name
	}
	if level := os.Getenv("NEXO_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if addr := os.Getenv("NEXO_REDIS_ADDRESS"); addr != "" {
		c.Redis.Enabled = true
		c.Redis.Address = addr
	}
}
