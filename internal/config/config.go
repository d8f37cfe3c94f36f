// Package config defines the top-level configuration for the execution
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRADEXEC_* environment variables.
type Config struct {
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Feed       FeedConfig       `toml:"feed"`
	Risk       RiskConfig       `toml:"risk"`
	KillSwitch KillSwitchConfig `toml:"kill_switch"`
	Dispatch   DispatchConfig   `toml:"dispatch"`
	Execution  ExecutionConfig  `toml:"execution"`
	Audit      AuditConfig      `toml:"audit"`
	Notify     NotifyConfig     `toml:"notify"`
	LogLevel   string           `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters for the ledger and
// audit mirror stores.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the result cache and the
// recon hand-off stream.
type RedisConfig struct {
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	ResultTTL    duration `toml:"result_ttl"`
	StreamMaxLen int64    `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters for audit segment
// archival. Archival is disabled when Bucket is empty.
type S3Config struct {
	Endpoint        string   `toml:"endpoint"`
	Region          string   `toml:"region"`
	Bucket          string   `toml:"bucket"`
	AccessKey       string   `toml:"access_key"`
	SecretKey       string   `toml:"secret_key"`
	UseSSL          bool     `toml:"use_ssl"`
	ForcePathStyle  bool     `toml:"force_path_style"`
	ArchiveInterval duration `toml:"archive_interval"`
}

// FeedConfig holds market data feed parameters.
type FeedConfig struct {
	WsURL        string   `toml:"ws_url"`
	Symbols      []string `toml:"symbols"`
	MaxStaleness duration `toml:"max_staleness"`
}

// RiskConfig holds the pre-trade risk limits and the initial account equity.
type RiskConfig struct {
	InitialEquity     float64 `toml:"initial_equity"`
	MaxPositionWeight float64 `toml:"max_position_weight"`
	MaxGrossExposure  float64 `toml:"max_gross_exposure"`
	MaxNetExposure    float64 `toml:"max_net_exposure"`
	MaxVaR            float64 `toml:"max_var"`
	MaxCVaR           float64 `toml:"max_cvar"`
	VaRAlpha          float64 `toml:"var_alpha"`
	VaRWindow         int     `toml:"var_window"`
}

// KillSwitchConfig holds kill-switch state persistence, recovery, and
// monitoring parameters.
type KillSwitchConfig struct {
	StatePath           string   `toml:"state_path"`
	BackupDir           string   `toml:"backup_dir"`
	BackupRetain        int      `toml:"backup_retain"`
	ApprovalToken       string   `toml:"approval_token"`
	Cooldown            duration `toml:"cooldown"`
	Stage2After         duration `toml:"stage2_after"`
	FullAfter           duration `toml:"full_after"`
	MonitorInterval     duration `toml:"monitor_interval"`
	MaxDispatchFailures int      `toml:"max_dispatch_failures"`
	MinAvailableMemMB   int      `toml:"min_available_mem_mb"`
	MaxCPUPercent       float64  `toml:"max_cpu_percent"`
}

// DispatchConfig holds adapter retry parameters.
type DispatchConfig struct {
	MaxAttempts    int      `toml:"max_attempts"`
	AttemptTimeout duration `toml:"attempt_timeout"`
	InitialBackoff duration `toml:"initial_backoff"`
	MaxBackoff     duration `toml:"max_backoff"`
}

// ExecutionConfig selects the execution mode and its parameters.
type ExecutionConfig struct {
	// Mode selects the adapter: "paper", "shadow", or "live".
	Mode string `toml:"mode"`
	// LiveEnabled must be set explicitly before live routing is permitted.
	LiveEnabled bool `toml:"live_enabled"`
	// PaperFeeRate is the simulated fee as a fraction of notional.
	PaperFeeRate float64 `toml:"paper_fee_rate"`
	// Session tags intents for idempotency, e.g. a trading date.
	Session string `toml:"session"`
}

// AuditConfig holds audit trail parameters.
type AuditConfig struct {
	Dir            string `toml:"dir"`
	MaxSegmentSize int64  `toml:"max_segment_size"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "tradexec",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     20,
			MaxRetries:   3,
			TLSEnabled:   false,
			ResultTTL:    duration{24 * time.Hour},
			StreamMaxLen: 10000,
		},
		S3: S3Config{
			Endpoint:        "http://localhost:9000",
			Region:          "us-east-1",
			Bucket:          "",
			UseSSL:          false,
			ForcePathStyle:  true,
			ArchiveInterval: duration{time.Hour},
		},
		Feed: FeedConfig{
			WsURL:        "",
			MaxStaleness: duration{10 * time.Second},
		},
		Risk: RiskConfig{
			InitialEquity:     1_000_000,
			MaxPositionWeight: 0.10,
			MaxGrossExposure:  2.0,
			MaxNetExposure:    1.0,
			MaxVaR:            0.05,
			MaxCVaR:           0.08,
			VaRAlpha:          0.99,
			VaRWindow:         250,
		},
		KillSwitch: KillSwitchConfig{
			StatePath:           "data/killswitch/state.json",
			BackupDir:           "data/killswitch/backups",
			BackupRetain:        10,
			Cooldown:            duration{5 * time.Minute},
			Stage2After:         duration{time.Hour},
			FullAfter:           duration{2 * time.Hour},
			MonitorInterval:     duration{10 * time.Second},
			MaxDispatchFailures: 5,
			MinAvailableMemMB:   256,
			MaxCPUPercent:       95,
		},
		Dispatch: DispatchConfig{
			MaxAttempts:    4,
			AttemptTimeout: duration{5 * time.Second},
			InitialBackoff: duration{200 * time.Millisecond},
			MaxBackoff:     duration{5 * time.Second},
		},
		Execution: ExecutionConfig{
			Mode:         "paper",
			LiveEnabled:  false,
			PaperFeeRate: 0.001,
			Session:      "default",
		},
		Audit: AuditConfig{
			Dir:            "data/audit",
			MaxSegmentSize: 64 * 1024 * 1024,
		},
		Notify: NotifyConfig{
			Events: []string{"kill_switch", "hard_breach"},
		},
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for ExecutionConfig.Mode.
var validModes = map[string]bool{
	"paper":  true,
	"shadow": true,
	"live":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Execution
	if !validModes[strings.ToLower(c.Execution.Mode)] {
		errs = append(errs, fmt.Sprintf("execution: unknown mode %q (valid: paper, shadow, live)", c.Execution.Mode))
	}
	if strings.ToLower(c.Execution.Mode) == "live" && !c.Execution.LiveEnabled {
		errs = append(errs, "execution: live mode requires live_enabled = true")
	}
	if c.Execution.PaperFeeRate < 0 {
		errs = append(errs, "execution: paper_fee_rate must be >= 0")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}
	if c.Redis.ResultTTL.Duration <= 0 {
		errs = append(errs, "redis: result_ttl must be > 0")
	}

	// S3: archival is optional, but a configured bucket needs a region.
	if c.S3.Bucket != "" && c.S3.Region == "" {
		errs = append(errs, "s3: region must not be empty when bucket is set")
	}

	// Feed
	if c.Feed.WsURL != "" && len(c.Feed.Symbols) == 0 {
		errs = append(errs, "feed: symbols must not be empty when ws_url is set")
	}
	if c.Feed.MaxStaleness.Duration <= 0 {
		errs = append(errs, "feed: max_staleness must be > 0")
	}

	// Risk
	if c.Risk.InitialEquity <= 0 {
		errs = append(errs, "risk: initial_equity must be > 0")
	}
	if c.Risk.MaxPositionWeight <= 0 || c.Risk.MaxPositionWeight > 1 {
		errs = append(errs, "risk: max_position_weight must be in (0, 1]")
	}
	if c.Risk.MaxGrossExposure <= 0 {
		errs = append(errs, "risk: max_gross_exposure must be > 0")
	}
	if c.Risk.MaxNetExposure <= 0 {
		errs = append(errs, "risk: max_net_exposure must be > 0")
	}
	if c.Risk.VaRAlpha <= 0.5 || c.Risk.VaRAlpha >= 1 {
		errs = append(errs, "risk: var_alpha must be in (0.5, 1)")
	}
	if c.Risk.VaRWindow < 2 {
		errs = append(errs, "risk: var_window must be >= 2")
	}

	// Kill switch
	if c.KillSwitch.StatePath == "" {
		errs = append(errs, "kill_switch: state_path must not be empty")
	}
	if c.KillSwitch.BackupDir == "" {
		errs = append(errs, "kill_switch: backup_dir must not be empty")
	}
	if c.KillSwitch.BackupRetain < 1 {
		errs = append(errs, "kill_switch: backup_retain must be >= 1")
	}
	if c.KillSwitch.ApprovalToken == "" {
		errs = append(errs, "kill_switch: approval_token must be set")
	}
	if c.KillSwitch.Cooldown.Duration <= 0 {
		errs = append(errs, "kill_switch: cooldown must be > 0")
	}
	if c.KillSwitch.Stage2After.Duration <= 0 {
		errs = append(errs, "kill_switch: stage2_after must be > 0")
	}
	if c.KillSwitch.FullAfter.Duration <= c.KillSwitch.Stage2After.Duration {
		errs = append(errs, "kill_switch: full_after must exceed stage2_after")
	}
	if c.KillSwitch.MonitorInterval.Duration <= 0 {
		errs = append(errs, "kill_switch: monitor_interval must be > 0")
	}

	// Dispatch
	if c.Dispatch.MaxAttempts < 1 {
		errs = append(errs, "dispatch: max_attempts must be >= 1")
	}
	if c.Dispatch.AttemptTimeout.Duration <= 0 {
		errs = append(errs, "dispatch: attempt_timeout must be > 0")
	}

	// Audit
	if c.Audit.Dir == "" {
		errs = append(errs, "audit: dir must not be empty")
	}
	if c.Audit.MaxSegmentSize < 0 {
		errs = append(errs, "audit: max_segment_size must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
