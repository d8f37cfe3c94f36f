package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig is a Defaults() copy with the required secrets filled in.
func validConfig() Config {
	cfg := Defaults()
	cfg.KillSwitch.ApprovalToken = "secret-token"
	return cfg
}

func TestDefaultsValidateExceptApprovalToken(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "approval_token")

	cfg.KillSwitch.ApprovalToken = "secret-token"
	require.NoError(t, cfg.Validate())
}

func TestValidateLiveModeRequiresExplicitFlag(t *testing.T) {
	cfg := validConfig()
	cfg.Execution.Mode = "live"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "live_enabled")

	cfg.Execution.LiveEnabled = true
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := validConfig()
	cfg.Execution.Mode = "backtest"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "backtest"`)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.Redis.Addr = ""
	cfg.Risk.InitialEquity = 0
	cfg.KillSwitch.Stage2After = duration{2 * time.Hour}
	cfg.KillSwitch.FullAfter = duration{time.Hour}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "initial_equity")
	assert.Contains(t, err.Error(), "full_after must exceed stage2_after")
}

func TestValidateBucketRequiresRegion(t *testing.T) {
	cfg := validConfig()
	cfg.S3.Bucket = "tradexec-audit"
	cfg.S3.Region = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3: region")
}

func TestValidateFeedRequiresSymbols(t *testing.T) {
	cfg := validConfig()
	cfg.Feed.WsURL = "wss://feed.example.com/ws"
	cfg.Feed.Symbols = nil

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed: symbols")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
log_level = "debug"

[risk]
max_position_weight = 0.25

[kill_switch]
approval_token = "file-token"
cooldown = "90s"

[execution]
mode = "shadow"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 0.25, cfg.Risk.MaxPositionWeight)
	assert.Equal(t, "file-token", cfg.KillSwitch.ApprovalToken)
	assert.Equal(t, 90*time.Second, cfg.KillSwitch.Cooldown.Duration)
	assert.Equal(t, "shadow", cfg.Execution.Mode)

	// Untouched sections keep their defaults.
	assert.Equal(t, 2.0, cfg.Risk.MaxGrossExposure)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[kill_switch]\napproval_token = \"file-token\"\n"), 0o644))

	t.Setenv("TRADEXEC_KILL_SWITCH_APPROVAL_TOKEN", "env-token")
	t.Setenv("TRADEXEC_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("TRADEXEC_RISK_MAX_VAR", "0.03")
	t.Setenv("TRADEXEC_POSTGRES_RUN_MIGRATIONS", "false")
	t.Setenv("TRADEXEC_FEED_SYMBOLS", "BTC-USD, ETH-USD")
	t.Setenv("TRADEXEC_DISPATCH_ATTEMPT_TIMEOUT", "30s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.KillSwitch.ApprovalToken, "env must win over the file")
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 0.03, cfg.Risk.MaxVaR)
	assert.False(t, cfg.Postgres.RunMigrations)
	assert.Equal(t, []string{"BTC-USD", "ETH-USD"}, cfg.Feed.Symbols)
	assert.Equal(t, 30*time.Second, cfg.Dispatch.AttemptTimeout.Duration)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestDurationRoundTrip(t *testing.T) {
	var d duration
	require.NoError(t, d.UnmarshalText([]byte("2h30m")))
	assert.Equal(t, 2*time.Hour+30*time.Minute, d.Duration)

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2h30m0s", string(text))
}
