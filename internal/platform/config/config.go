package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv     string `env:"APP_ENV" default:"development"`
	HTTPAddr   string `env:"HTTP_ADDR" default:"127.0.0.1:8090"`
	SSEPath    string `env:"SSE_PATH" default:"/events"`
	WSPath     string `env:"WS_PATH" default:"/ws"`
	CORSOrigin string `env:"CORS_ORIGIN" default:"*"`
	TrustProxy bool   `env:"TRUST_PROXY" default:"false"`

	ControlAddr         string   `env:"CONTROL_ADDR" default:"127.0.0.1:8091"`
	ControlAllowedCIDRs []string `env:"CONTROL_ALLOWED_CIDRS" default:"127.0.0.0/8,::1/128"`

	StatusCSV     string `env:"STATUS_CSV" default:"/run/svxlink/status.csv"`
	HistoryCSV    string `env:"HISTORY_CSV" default:"/run/svxlink/history.csv"`
	CSVDelim      string `env:"CSV_DELIM" default:";"`
	HistoryTail   int    `env:"HISTORY_TAIL" default:"28"`
	HistoryFormat string `env:"HISTORY_FORMAT" default:"lines"`
	DeltaMode     string `env:"DELTA_MODE" default:"delta"`

	WatchFiles   bool          `env:"WATCH_FILES" default:"false"`
	PollInterval time.Duration `env:"POLL_INTERVAL" default:"1s"`

	MaxClients       int  `env:"MAX_CLIENTS" default:"300"`
	SoftPerOrigin    int  `env:"SOFT_PER_ORIGIN" default:"50"`
	HardPerOrigin    int  `env:"HARD_PER_ORIGIN" default:"150"`
	ReserveSlots     int  `env:"RESERVE_SLOTS" default:"30"`
	AdmissionEnabled bool `env:"ADMISSION_ENABLED" default:"true"`

	ConnectRate  float64 `env:"CONNECT_RATE" default:"0"`
	ConnectBurst int     `env:"CONNECT_BURST" default:"10"`

	MailboxSize       int           `env:"MAILBOX_SIZE" default:"256"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" default:"15s"`
	DrainTimeout      time.Duration `env:"DRAIN_TIMEOUT" default:"500ms"`
	RetryHint         time.Duration `env:"RETRY_HINT" default:"5s"`

	RedisURL            string `env:"REDIS_URL"`
	RedisControlChannel string `env:"REDIS_CONTROL_CHANNEL" default:"svx:control"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
	LogFile   string `env:"LOG_FILE"`

	MetricsEnabled bool `env:"METRICS_ENABLED" default:"true"`
}

// FullResend reports whether status changes resend the whole snapshot.
func (c *Config) FullResend() bool {
	return c.DeltaMode == "full"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, &env.Options{SliceSep: ","}); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	var errs []error

	if _, _, err := net.SplitHostPort(cfg.HTTPAddr); err != nil {
		errs = append(errs, fmt.Errorf("HTTP_ADDR: %w", err))
	}
	if cfg.ControlAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.ControlAddr); err != nil {
			errs = append(errs, fmt.Errorf("CONTROL_ADDR: %w", err))
		}
	}
	for _, raw := range cfg.ControlAllowedCIDRs {
		if _, err := netip.ParsePrefix(strings.TrimSpace(raw)); err != nil {
			errs = append(errs, fmt.Errorf("CONTROL_ALLOWED_CIDRS: %w", err))
		}
	}

	if !strings.HasPrefix(cfg.SSEPath, "/") {
		errs = append(errs, errors.New("SSE_PATH must start with /"))
	}
	if cfg.WSPath != "" && !strings.HasPrefix(cfg.WSPath, "/") {
		errs = append(errs, errors.New("WS_PATH must start with /"))
	}

	if len(cfg.CSVDelim) != 1 {
		errs = append(errs, errors.New("CSV_DELIM must be a single character"))
	}
	if cfg.HistoryTail < 1 {
		errs = append(errs, errors.New("HISTORY_TAIL must be at least 1"))
	}
	if cfg.HistoryFormat != "lines" && cfg.HistoryFormat != "json" {
		errs = append(errs, fmt.Errorf("HISTORY_FORMAT must be lines or json, got %q", cfg.HistoryFormat))
	}
	if cfg.DeltaMode != "delta" && cfg.DeltaMode != "full" {
		errs = append(errs, fmt.Errorf("DELTA_MODE must be delta or full, got %q", cfg.DeltaMode))
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}

	if cfg.MaxClients < 0 || cfg.SoftPerOrigin < 0 || cfg.HardPerOrigin < 0 || cfg.ReserveSlots < 0 {
		errs = append(errs, errors.New("admission limits must not be negative"))
	}
	if cfg.SoftPerOrigin > cfg.HardPerOrigin {
		errs = append(errs, fmt.Errorf("SOFT_PER_ORIGIN (%d) must not exceed HARD_PER_ORIGIN (%d)", cfg.SoftPerOrigin, cfg.HardPerOrigin))
	}
	if cfg.ReserveSlots > cfg.MaxClients {
		errs = append(errs, fmt.Errorf("RESERVE_SLOTS (%d) must not exceed MAX_CLIENTS (%d)", cfg.ReserveSlots, cfg.MaxClients))
	}
	if cfg.ConnectRate < 0 || cfg.ConnectBurst < 1 {
		errs = append(errs, errors.New("CONNECT_RATE must be >= 0 and CONNECT_BURST >= 1"))
	}

	if cfg.MailboxSize < 1 {
		errs = append(errs, errors.New("MAILBOX_SIZE must be at least 1"))
	}
	if cfg.HeartbeatInterval <= 0 || cfg.DrainTimeout <= 0 {
		errs = append(errs, errors.New("HEARTBEAT_INTERVAL and DRAIN_TIMEOUT must be positive"))
	}
	if cfg.DrainTimeout > cfg.HeartbeatInterval {
		errs = append(errs, errors.New("DRAIN_TIMEOUT must not exceed HEARTBEAT_INTERVAL"))
	}
	if cfg.RetryHint < 0 {
		errs = append(errs, errors.New("RETRY_HINT must not be negative"))
	}

	return errors.Join(errs...)
}
