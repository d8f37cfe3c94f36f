package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRADEXEC_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRADEXEC_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TRADEXEC_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TRADEXEC_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRADEXEC_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRADEXEC_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRADEXEC_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRADEXEC_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRADEXEC_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRADEXEC_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRADEXEC_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRADEXEC_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TRADEXEC_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADEXEC_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADEXEC_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADEXEC_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADEXEC_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADEXEC_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.ResultTTL, "TRADEXEC_REDIS_RESULT_TTL")
	setInt64(&cfg.Redis.StreamMaxLen, "TRADEXEC_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "TRADEXEC_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRADEXEC_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRADEXEC_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRADEXEC_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRADEXEC_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRADEXEC_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRADEXEC_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.S3.ArchiveInterval, "TRADEXEC_S3_ARCHIVE_INTERVAL")

	// ── Feed ──
	setStr(&cfg.Feed.WsURL, "TRADEXEC_FEED_WS_URL")
	setStringSlice(&cfg.Feed.Symbols, "TRADEXEC_FEED_SYMBOLS")
	setDuration(&cfg.Feed.MaxStaleness, "TRADEXEC_FEED_MAX_STALENESS")

	// ── Risk ──
	setFloat64(&cfg.Risk.InitialEquity, "TRADEXEC_RISK_INITIAL_EQUITY")
	setFloat64(&cfg.Risk.MaxPositionWeight, "TRADEXEC_RISK_MAX_POSITION_WEIGHT")
	setFloat64(&cfg.Risk.MaxGrossExposure, "TRADEXEC_RISK_MAX_GROSS_EXPOSURE")
	setFloat64(&cfg.Risk.MaxNetExposure, "TRADEXEC_RISK_MAX_NET_EXPOSURE")
	setFloat64(&cfg.Risk.MaxVaR, "TRADEXEC_RISK_MAX_VAR")
	setFloat64(&cfg.Risk.MaxCVaR, "TRADEXEC_RISK_MAX_CVAR")
	setFloat64(&cfg.Risk.VaRAlpha, "TRADEXEC_RISK_VAR_ALPHA")
	setInt(&cfg.Risk.VaRWindow, "TRADEXEC_RISK_VAR_WINDOW")

	// ── Kill switch ──
	setStr(&cfg.KillSwitch.StatePath, "TRADEXEC_KILL_SWITCH_STATE_PATH")
	setStr(&cfg.KillSwitch.BackupDir, "TRADEXEC_KILL_SWITCH_BACKUP_DIR")
	setInt(&cfg.KillSwitch.BackupRetain, "TRADEXEC_KILL_SWITCH_BACKUP_RETAIN")
	setStr(&cfg.KillSwitch.ApprovalToken, "TRADEXEC_KILL_SWITCH_APPROVAL_TOKEN")
	setDuration(&cfg.KillSwitch.Cooldown, "TRADEXEC_KILL_SWITCH_COOLDOWN")
	setDuration(&cfg.KillSwitch.Stage2After, "TRADEXEC_KILL_SWITCH_STAGE2_AFTER")
	setDuration(&cfg.KillSwitch.FullAfter, "TRADEXEC_KILL_SWITCH_FULL_AFTER")
	setDuration(&cfg.KillSwitch.MonitorInterval, "TRADEXEC_KILL_SWITCH_MONITOR_INTERVAL")
	setInt(&cfg.KillSwitch.MaxDispatchFailures, "TRADEXEC_KILL_SWITCH_MAX_DISPATCH_FAILURES")
	setInt(&cfg.KillSwitch.MinAvailableMemMB, "TRADEXEC_KILL_SWITCH_MIN_AVAILABLE_MEM_MB")
	setFloat64(&cfg.KillSwitch.MaxCPUPercent, "TRADEXEC_KILL_SWITCH_MAX_CPU_PERCENT")

	// ── Dispatch ──
	setInt(&cfg.Dispatch.MaxAttempts, "TRADEXEC_DISPATCH_MAX_ATTEMPTS")
	setDuration(&cfg.Dispatch.AttemptTimeout, "TRADEXEC_DISPATCH_ATTEMPT_TIMEOUT")
	setDuration(&cfg.Dispatch.InitialBackoff, "TRADEXEC_DISPATCH_INITIAL_BACKOFF")
	setDuration(&cfg.Dispatch.MaxBackoff, "TRADEXEC_DISPATCH_MAX_BACKOFF")

	// ── Execution ──
	setStr(&cfg.Execution.Mode, "TRADEXEC_EXECUTION_MODE")
	setBool(&cfg.Execution.LiveEnabled, "TRADEXEC_EXECUTION_LIVE_ENABLED")
	setFloat64(&cfg.Execution.PaperFeeRate, "TRADEXEC_EXECUTION_PAPER_FEE_RATE")
	setStr(&cfg.Execution.Session, "TRADEXEC_EXECUTION_SESSION")

	// ── Audit ──
	setStr(&cfg.Audit.Dir, "TRADEXEC_AUDIT_DIR")
	setInt64(&cfg.Audit.MaxSegmentSize, "TRADEXEC_AUDIT_MAX_SEGMENT_SIZE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRADEXEC_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADEXEC_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRADEXEC_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRADEXEC_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "TRADEXEC_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
