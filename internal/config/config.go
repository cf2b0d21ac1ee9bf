// Package config centralizes configuration loaded from environment variables (and an
// optional .env file). Configuration is read once at startup; nothing here is mutated
// at runtime.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// RPC holds RPC Client Fabric tuning (spec §4.1, §6).
type RPC struct {
	Endpoints             []string
	TimeoutSec            float64
	MaxRetries            int
	CircuitBreakerFailures int
	CircuitBreakerPauseSec float64
	JitterBase             float64
	JitterMax              float64
	Mode                   string // "live" or "fixtures"
	FixturesDir            string
}

// Alerting holds the Alert Engine's filter thresholds and buffers (spec §4.5, §6).
type Alerting struct {
	ProfitThreshold    float64
	GainFilter         float64
	WinRateFilter      float64
	CooldownSec        int
	NewWalletGain      float64
	NewWalletMinTrx    int
	WatchlistMaxSize   int
	WatchlistTTLSec    int
	AlertBatchSize     int
	DryRun             bool
	StateTTLSeconds    int
	MaxSeenSignatures  int
	IncludePaywallHint bool
}

// Loop holds Scheduler/Loop cadence settings (spec §4.10, §6).
type Loop struct {
	TxRefreshSeconds       int
	TxLookback             int
	ReportRefreshSeconds   int
	HeartbeatIntervalSec   int
	MaxConcurrency         int
	SnapshotEveryNCycles   int
}

// Metrics holds observability tuning (spec §6).
type Metrics struct {
	Port                 int
	BalanceTolerancePct   float64
}

// Pricing holds Price Cache / oracle settings (spec §4.2, §6, §9).
type Pricing struct {
	BirdeyeAPIKey     string
	FiatSolApproxUSD  float64
}

// API holds the Signal API Service's listener and per-tier rate limits (spec §4.7/4.8).
type API struct {
	Host          string
	Port          int
	RateLimitFree  int
	RateLimitPro   int
	RateLimitElite int
}

// Billing holds billing-webhook-surface settings (spec §6; body format out of scope).
type Billing struct {
	FakeCheckoutEnabled bool
	StripeWebhookSecret string
}

// SnapshotBackup holds optional S3/R2 sqlite snapshot backup settings (ambient).
type SnapshotBackup struct {
	Enabled       bool
	Bucket        string
	Endpoint      string
	Region        string
	RetentionDays int
}

// Webhook holds outbound chat-webhook fan-out settings (spec §4.9).
type Webhook struct {
	URL                     string
	CircuitPauseSec         float64
	DedupWindowSec          float64
	SystemDedupWindowSec    float64
}

// Config is the fully-resolved process configuration.
type Config struct {
	DataDir        string
	LogLevel       string
	LogPretty      bool
	RPC            RPC
	Alerting       Alerting
	Loop           Loop
	Metrics        Metrics
	Pricing        Pricing
	API            API
	Billing        Billing
	SnapshotBackup SnapshotBackup
	Webhook        Webhook
	CopyTraderEnabled bool
	DaasMode          bool
	LiveStreamEnabled bool
	HealthStaleSeconds int
}

// Load reads configuration from environment variables, loading a .env file first if
// one is present. Missing variables fall back to the spec's documented defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(absDataDir, 0o755); err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:   absDataDir,
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", false),
		RPC: RPC{
			Endpoints:              getEnvAsList("RPC_ENDPOINTS", []string{"https://api.mainnet-beta.solana.com"}),
			TimeoutSec:             getEnvAsFloat("RPC_TIMEOUT_SEC", 2.5),
			MaxRetries:             getEnvAsInt("RPC_MAX_RETRIES", 3),
			CircuitBreakerFailures: getEnvAsInt("RPC_CIRCUIT_BREAKER_FAILURES", 3),
			CircuitBreakerPauseSec: getEnvAsFloat("RPC_CIRCUIT_BREAKER_PAUSE_SEC", 5.0),
			JitterBase:             getEnvAsFloat("RPC_RETRY_JITTER_BASE", 0.5),
			JitterMax:              getEnvAsFloat("RPC_RETRY_JITTER_MAX", 0.2),
			Mode:                   strings.ToLower(getEnv("RPC_MODE", "live")),
			FixturesDir:            getEnv("FIXTURES_DIR", "tests/fixtures"),
		},
		Alerting: Alerting{
			ProfitThreshold:    getEnvAsFloat("PROFIT_ALERT_THRESHOLD", 2.0),
			GainFilter:         getEnvAsFloat("GAIN_FILTER", 5.0),
			WinRateFilter:      getEnvAsFloat("WIN_RATE_FILTER", 80.0),
			CooldownSec:        getEnvAsInt("ALERT_COOLDOWN_SEC", 300),
			NewWalletGain:      getEnvAsFloat("NEW_WALLET_GAIN", 7.0),
			NewWalletMinTrx:    getEnvAsInt("NEW_WALLET_MIN_TRX", 12),
			WatchlistMaxSize:   getEnvAsInt("WATCHLIST_MAX_SIZE", 100),
			WatchlistTTLSec:    getEnvAsInt("WATCHLIST_TTL_SEC", 3600),
			AlertBatchSize:     getEnvAsInt("ALERT_BATCH_SIZE", 10),
			DryRun:             getEnvAsBool("DRY_RUN", true),
			StateTTLSeconds:    getEnvAsInt("STATE_TTL_SECONDS", 3600),
			MaxSeenSignatures:  getEnvAsInt("MAX_SEEN_SIGNATURES", 50000),
			IncludePaywallHint: getEnvAsBool("INCLUDE_PAYWALL_PROMPT", true),
		},
		Loop: Loop{
			TxRefreshSeconds:     getEnvAsInt("TX_REFRESH_SECONDS", 60),
			TxLookback:           getEnvAsInt("TX_LOOKBACK", 20),
			ReportRefreshSeconds: getEnvAsInt("REPORT_REFRESH_SECONDS", 600),
			HeartbeatIntervalSec: getEnvAsInt("HEARTBEAT_INTERVAL_SECONDS", 300),
			MaxConcurrency:       getEnvAsInt("MAX_CONCURRENCY", 10),
			SnapshotEveryNCycles: getEnvAsInt("SNAPSHOT_EVERY_N_CYCLES", 10),
		},
		Metrics: Metrics{
			Port:                getEnvAsInt("METRICS_PORT", 8000),
			BalanceTolerancePct: getEnvAsFloat("BALANCE_TOLERANCE_PCT", 10.0),
		},
		Pricing: Pricing{
			BirdeyeAPIKey:    getEnv("BIRDEYE_API_KEY", ""),
			FiatSolApproxUSD: getEnvAsFloat("FIAT_SOL_APPROX_USD", 150.0),
		},
		API: API{
			Host:           getEnv("API_HOST", "0.0.0.0"),
			Port:           getEnvAsInt("API_PORT", 8002),
			RateLimitFree:  getEnvAsInt("RATE_LIMIT_FREE", 10),
			RateLimitPro:   getEnvAsInt("RATE_LIMIT_PRO", 1000),
			RateLimitElite: getEnvAsInt("RATE_LIMIT_ELITE", 10000),
		},
		Billing: Billing{
			FakeCheckoutEnabled: getEnvAsBool("FAKE_CHECKOUT_ENABLED", true),
			StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
		SnapshotBackup: SnapshotBackup{
			Enabled:       getEnvAsBool("SNAPSHOT_BACKUP_ENABLED", false),
			Bucket:        getEnv("SNAPSHOT_BACKUP_BUCKET", ""),
			Endpoint:      getEnv("SNAPSHOT_BACKUP_ENDPOINT", ""),
			Region:        getEnv("SNAPSHOT_BACKUP_REGION", "auto"),
			RetentionDays: getEnvAsInt("SNAPSHOT_BACKUP_RETENTION_DAYS", 14),
		},
		Webhook: Webhook{
			URL:                  getEnv("DISCORD_WEBHOOK", ""),
			CircuitPauseSec:      30.0,
			DedupWindowSec:       30.0,
			SystemDedupWindowSec: getEnvAsFloat("SYSTEM_WEBHOOK_DEDUP_SECONDS", 5.0),
		},
		CopyTraderEnabled:  getEnvAsBool("COPY_TRADER_ENABLED", false),
		DaasMode:           getEnvAsBool("DAAS_MODE", true),
		LiveStreamEnabled:  getEnvAsBool("LIVE_STREAM_ENABLED", false),
		HealthStaleSeconds: getEnvAsInt("HEALTH_STALE_SECONDS", 180),
	}

	return cfg, nil
}

// StateDBPath is the sqlite file holding seen-signature/last-alert/price-cache/api-key
// state (spec §6 persisted state layout).
func (c *Config) StateDBPath() string {
	return filepath.Join(c.DataDir, "state.db")
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// HeartbeatInterval returns the heartbeat cadence as a time.Duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Loop.HeartbeatIntervalSec) * time.Second
}
