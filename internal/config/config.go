package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/didinska21/wallet-hunter/internal/domain/model"
)

type Config struct {
	Scan     ScanConfig
	Oracle   OracleConfig
	Telegram TelegramConfig
	Notify   NotifyConfig
	Store    StoreConfig
	DB       DBConfig
	Redis    RedisConfig
	Server   ServerConfig
	Log      LogConfig
	Tracing  TracingConfig
	Alert    AlertConfig
	Audit    AuditConfig
}

type ScanConfig struct {
	Target  int
	Workers int
}

type OracleConfig struct {
	DebankAccessKey  string
	DebankAPIURL     string
	DebankTimeout    time.Duration
	AlchemyAPIKey    string
	Chains           []model.Chain
	RPCURLs          map[model.Chain]string
	CallTimeout      time.Duration
	RequestsPerSec   float64
	Burst            int
	RetryMaxAttempts int
	BackoffInitial   time.Duration
	BackoffMax       time.Duration
}

type TelegramConfig struct {
	BotToken string
	ChatID   string
}

func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

type NotifyConfig struct {
	BatchInterval       time.Duration
	RetryMaxAttempts    int
	RetryBackoffInitial time.Duration
	GlobalPerSecond     int
	RecipientPerMinute  int
	WebhookURL          string
}

type StoreConfig struct {
	FoundPath string
	EmptyPath string
}

type DBConfig struct {
	URL             string
	MigrationsDir   string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL    string
	Stream string
}

type ServerConfig struct {
	HealthPort      int
	MetricsUsername string
	MetricsPassword string
}

type LogConfig struct {
	Level string
}

type TracingConfig struct {
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

type AlertConfig struct {
	SlackWebhookURL string
	WebhookURL      string
	Cooldown        time.Duration
}

type AuditConfig struct {
	Interval time.Duration
}

// defaultRPCTemplates mirror the chain set the original deployment ran with.
// ${ALCHEMY_API_KEY} is expanded at load time; chains whose URL still holds
// the placeholder afterwards are checked via the portfolio API only.
var defaultRPCTemplates = map[model.Chain]string{
	model.ChainEthereum: "https://eth-mainnet.g.alchemy.com/v2/${ALCHEMY_API_KEY}",
	model.ChainBSC:      "https://bsc-dataseed.binance.org",
	model.ChainPolygon:  "https://polygon-mainnet.g.alchemy.com/v2/${ALCHEMY_API_KEY}",
	model.ChainArbitrum: "https://arb-mainnet.g.alchemy.com/v2/${ALCHEMY_API_KEY}",
	model.ChainOptimism: "https://opt-mainnet.g.alchemy.com/v2/${ALCHEMY_API_KEY}",
	model.ChainBase:     "https://base-mainnet.g.alchemy.com/v2/${ALCHEMY_API_KEY}",
}

func Load() (*Config, error) {
	// .env is optional; set process env always wins.
	_ = godotenv.Load()

	cfg := &Config{
		Scan: ScanConfig{
			Target:  getEnvInt("SCAN_TARGET", 1000),
			Workers: getEnvInt("CONCURRENT_WORKERS", 16),
		},
		Oracle: OracleConfig{
			DebankAccessKey:  getEnv("DEBANK_ACCESS_KEY", ""),
			DebankAPIURL:     getEnv("DEBANK_API_URL", "https://pro-openapi.debank.com"),
			DebankTimeout:    time.Duration(getEnvInt("DEBANK_TIMEOUT_SEC", 15)) * time.Second,
			AlchemyAPIKey:    getEnv("ALCHEMY_API_KEY", ""),
			CallTimeout:      time.Duration(getEnvInt("ORACLE_CALL_TIMEOUT_SEC", 10)) * time.Second,
			RequestsPerSec:   getEnvFloat("ORACLE_RPS", 10),
			Burst:            getEnvInt("ORACLE_BURST", 20),
			RetryMaxAttempts: getEnvInt("ORACLE_RETRY_MAX_ATTEMPTS", 3),
			BackoffInitial:   time.Duration(getEnvInt("ORACLE_BACKOFF_INITIAL_MS", 250)) * time.Millisecond,
			BackoffMax:       time.Duration(getEnvInt("ORACLE_BACKOFF_MAX_MS", 5000)) * time.Millisecond,
		},
		Telegram: TelegramConfig{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		},
		Notify: NotifyConfig{
			BatchInterval:       time.Duration(getEnvInt("TELEGRAM_BATCH_INTERVAL_SEC", 60)) * time.Second,
			RetryMaxAttempts:    getEnvInt("NOTIFY_RETRY_MAX_ATTEMPTS", 5),
			RetryBackoffInitial: time.Duration(getEnvInt("NOTIFY_BACKOFF_INITIAL_MS", 500)) * time.Millisecond,
			GlobalPerSecond:     getEnvInt("NOTIFY_GLOBAL_PER_SECOND", 30),
			RecipientPerMinute:  getEnvInt("NOTIFY_RECIPIENT_PER_MINUTE", 20),
			WebhookURL:          getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
		Store: StoreConfig{
			FoundPath: getEnv("OUTPUT_FILE", "hasil.json"),
			EmptyPath: getEnv("EMPTY_WALLETS_FILE", "empty_wallets.json"),
		},
		DB: DBConfig{
			URL:             getEnv("DB_URL", ""),
			MigrationsDir:   getEnv("DB_MIGRATIONS_DIR", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 30)) * time.Minute,
		},
		Redis: RedisConfig{
			URL:    getEnv("REDIS_URL", ""),
			Stream: getEnv("REDIS_STREAM", "hunter:notifications"),
		},
		Server: ServerConfig{
			HealthPort:      getEnvInt("HEALTH_PORT", 8080),
			MetricsUsername: getEnv("METRICS_USERNAME", ""),
			MetricsPassword: getEnv("METRICS_PASSWORD", ""),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Tracing: TracingConfig{
			Endpoint:    getEnv("TRACING_ENDPOINT", ""),
			Insecure:    getEnvBool("TRACING_INSECURE", true),
			SampleRatio: getEnvFloat("TRACING_SAMPLE_RATIO", 1),
		},
		Alert: AlertConfig{
			SlackWebhookURL: getEnv("SLACK_WEBHOOK_URL", ""),
			WebhookURL:      getEnv("ALERT_WEBHOOK_URL", ""),
			Cooldown:        time.Duration(getEnvInt("ALERT_COOLDOWN_MIN", 5)) * time.Minute,
		},
		Audit: AuditConfig{
			Interval: time.Duration(getEnvInt("AUDIT_INTERVAL_MIN", 5)) * time.Minute,
		},
	}

	chains, rpcURLs, err := resolveChains(cfg.Oracle.AlchemyAPIKey)
	if err != nil {
		return nil, err
	}
	cfg.Oracle.Chains = chains
	cfg.Oracle.RPCURLs = rpcURLs

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolveChains(alchemyKey string) ([]model.Chain, map[model.Chain]string, error) {
	raw := getEnv("CHAINS", "eth,bsc,polygon,arbitrum,optimism,base")

	var chains []model.Chain
	rpcURLs := make(map[model.Chain]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		chain, err := model.ParseChain(part)
		if err != nil {
			return nil, nil, fmt.Errorf("CHAINS: %w", err)
		}
		chains = append(chains, chain)

		url := getEnv("RPC_URL_"+strings.ToUpper(part), defaultRPCTemplates[chain])
		url = strings.ReplaceAll(url, "${ALCHEMY_API_KEY}", alchemyKey)
		if url == "" || strings.Contains(url, "${") || strings.HasSuffix(url, "/v2/") {
			// No key available for this provider; skip direct RPC checks.
			continue
		}
		rpcURLs[chain] = url
	}
	return chains, rpcURLs, nil
}

func (c *Config) validate() error {
	if c.Scan.Target <= 0 {
		return fmt.Errorf("SCAN_TARGET must be positive")
	}
	if c.Scan.Workers <= 0 {
		return fmt.Errorf("CONCURRENT_WORKERS must be positive")
	}
	if len(c.Oracle.Chains) == 0 {
		return fmt.Errorf("CHAINS must name at least one chain")
	}
	if c.Oracle.DebankAccessKey == "" && len(c.Oracle.RPCURLs) == 0 {
		return fmt.Errorf("no balance source configured: set DEBANK_ACCESS_KEY or an RPC url")
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == "" {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	if c.Notify.BatchInterval <= 0 {
		return fmt.Errorf("TELEGRAM_BATCH_INTERVAL_SEC must be positive")
	}
	if c.Notify.GlobalPerSecond <= 0 || c.Notify.RecipientPerMinute <= 0 {
		return fmt.Errorf("notification rate limits must be positive")
	}
	if c.Notify.RetryMaxAttempts <= 0 || c.Oracle.RetryMaxAttempts <= 0 {
		return fmt.Errorf("retry attempt limits must be positive")
	}
	if c.Store.FoundPath == "" || c.Store.EmptyPath == "" {
		return fmt.Errorf("OUTPUT_FILE and EMPTY_WALLETS_FILE are required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
