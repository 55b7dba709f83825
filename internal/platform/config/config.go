package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	RolePrimary = "primary"
	RoleReplica = "replica"
)

// Relay configures cmd/relay.
type Relay struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8765"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	RedisURL string `env:"REDIS_URL"`
	Role     string `env:"RELAY_ROLE" default:"primary"`

	IngestRate         float64 `env:"INGEST_RATE" default:"20"`
	IngestBurst        int     `env:"INGEST_BURST" default:"40"`
	MaxSubscribers     int     `env:"MAX_SUBSCRIBERS" default:"1000"`
	MaxStreamsPerIP    int     `env:"MAX_STREAMS_PER_IP" default:"20"`
	StreamConnectRate  float64 `env:"STREAM_CONNECT_RATE" default:"5"`
	StreamConnectBurst int     `env:"STREAM_CONNECT_BURST" default:"10"`
	CentrifugeEnabled  bool    `env:"CENTRIFUGE_ENABLED" default:"true"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" default:"*"`

	MockInterval time.Duration `env:"MOCK_INTERVAL" default:"0s"`
}

// Viewer configures cmd/viewer. Empty connection fields fall back to the persisted settings.
type Viewer struct {
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	Protocol     string `env:"VIEWER_PROTOCOL"`
	Backend      string `env:"VIEWER_BACKEND"`
	Theme        string `env:"VIEWER_THEME"`
	SystemTheme  string `env:"VIEWER_SYSTEM_THEME" default:"dark"`
	SettingsPath string `env:"VIEWER_SETTINGS_PATH"`

	PollInterval   time.Duration `env:"VIEWER_POLL_INTERVAL" default:"0s"`
	BackoffFloor   time.Duration `env:"VIEWER_BACKOFF_FLOOR" default:"1s"`
	BackoffCeiling time.Duration `env:"VIEWER_BACKOFF_CEILING" default:"30s"`

	SinkAddr   string `env:"VIEWER_SINK_ADDR" default:"127.0.0.1:24701"`
	AssetsDir  string `env:"VIEWER_ASSETS_DIR" default:"Resources"`
	FPS        int    `env:"VIEWER_FPS" default:"10"`
	PiPCommand string `env:"VIEWER_PIP_COMMAND" default:"mpv"`

	MemoryLimit   int64   `env:"VIEWER_MEMORY_LIMIT" default:"0"`
	MemoryWarn    float64 `env:"VIEWER_MEMORY_WARN" default:"0.8"`
	MemoryConfirm float64 `env:"VIEWER_MEMORY_CONFIRM" default:"0.9"`
}

// Producer configures cmd/mockproducer.
type Producer struct {
	LogLevel  string        `env:"LOG_LEVEL" default:"info"`
	LogFormat string        `env:"LOG_FORMAT" default:"text"`
	RelayURL  string        `env:"RELAY_URL" default:"http://127.0.0.1:8765"`
	Interval  time.Duration `env:"MOCK_INTERVAL" default:"5s"`
}

func loadEnv() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}
}

func LoadRelay() (*Relay, error) {
	loadEnv()

	var cfg Relay
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := validateRelay(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func LoadViewer() (*Viewer, error) {
	loadEnv()

	var cfg Viewer
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := validateViewer(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func LoadProducer() (*Producer, error) {
	loadEnv()

	var cfg Producer
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if cfg.RelayURL == "" {
		return nil, errors.New("RELAY_URL is required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("MOCK_INTERVAL must be positive")
	}
	return &cfg, nil
}

func validateRelay(cfg *Relay) error {
	if cfg.Role != RolePrimary && cfg.Role != RoleReplica {
		return fmt.Errorf("RELAY_ROLE must be %q or %q, got %q", RolePrimary, RoleReplica, cfg.Role)
	}
	if cfg.Role == RoleReplica && cfg.RedisURL == "" {
		return errors.New("REDIS_URL is required when RELAY_ROLE is replica")
	}
	if cfg.IngestRate <= 0 || cfg.IngestBurst <= 0 {
		return errors.New("INGEST_RATE and INGEST_BURST must be positive")
	}
	if cfg.MaxSubscribers <= 0 {
		return errors.New("MAX_SUBSCRIBERS must be positive")
	}
	if cfg.MaxStreamsPerIP <= 0 || cfg.StreamConnectRate <= 0 || cfg.StreamConnectBurst <= 0 {
		return errors.New("MAX_STREAMS_PER_IP, STREAM_CONNECT_RATE and STREAM_CONNECT_BURST must be positive")
	}
	if len(cfg.AllowedOrigins) == 0 {
		return errors.New("ALLOWED_ORIGINS must not be empty")
	}
	if cfg.MockInterval < 0 {
		return errors.New("MOCK_INTERVAL must not be negative")
	}
	return nil
}

func (cfg *Relay) IsDevelopment() bool {
	return cfg.AppEnv == "development"
}

func validateViewer(cfg *Viewer) error {
	switch cfg.Protocol {
	case "", "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("VIEWER_PROTOCOL must be one of http, https, ws, wss, got %q", cfg.Protocol)
	}
	if cfg.Backend != "" {
		if _, _, err := net.SplitHostPort(cfg.Backend); err != nil {
			return fmt.Errorf("VIEWER_BACKEND must be host:port: %w", err)
		}
	}
	if cfg.BackoffFloor <= 0 || cfg.BackoffCeiling < cfg.BackoffFloor {
		return errors.New("VIEWER_BACKOFF_FLOOR must be positive and not above VIEWER_BACKOFF_CEILING")
	}
	if cfg.FPS <= 0 || cfg.FPS > 60 {
		return fmt.Errorf("VIEWER_FPS must be between 1 and 60, got %d", cfg.FPS)
	}
	if cfg.MemoryWarn <= 0 || cfg.MemoryWarn > 1 || cfg.MemoryConfirm <= 0 || cfg.MemoryConfirm > 1 {
		return errors.New("VIEWER_MEMORY_WARN and VIEWER_MEMORY_CONFIRM must be fractions in (0,1]")
	}
	if cfg.MemoryLimit < 0 {
		return errors.New("VIEWER_MEMORY_LIMIT must not be negative")
	}
	return nil
}
