// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"marketpulse/internal/domain"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for databases (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	// Feed endpoints. Concrete providers are swappable; only the response
	// shapes matter to the rest of the system.
	MarketDataBaseURL  string
	ForecastServiceURL string
	NewsServiceURL     string

	// Orchestration
	DefaultSymbol      domain.Symbol
	Universe           []domain.Symbol
	UniverseSize       int           // ranked list truncation limit
	SentimentWindow    int           // days of news history per sentiment query
	PriceInterval      time.Duration // priceRefresh task cadence
	ForecastInterval   time.Duration // forecastRefresh task cadence
	CandleInterval     time.Duration // candleCheck task cadence
	HistoryRetention   time.Duration // snapshot history kept before cleanup
	CandleTimePeriod   string        // candle dataset granularity requested from the feed
	MaintenanceEnabled bool          // daily cron jobs (cleanup, backup)

	Backup *BackupConfig
}

// BackupConfig holds S3-compatible backup settings. Backup is disabled unless
// all credential fields are present.
type BackupConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Prefix          string
}

// Enabled reports whether the backup target is fully configured.
func (b *BackupConfig) Enabled() bool {
	return b != nil && b.AccessKeyID != "" && b.SecretAccessKey != "" && b.Bucket != ""
}

// DefaultUniverse is the fixed instrument universe scanned by the fan-out
// aggregator when MARKET_UNIVERSE is not set.
var DefaultUniverse = []domain.Symbol{
	"BTC", "ETH", "USDT", "BNB", "SOL", "XRP", "USDC", "ADA", "AVAX", "DOGE",
	"TRX", "DOT", "LINK", "MATIC", "TON", "ICP", "SHIB", "LTC", "BCH", "UNI",
	"ATOM", "ETC", "XLM", "NEAR", "APT", "FIL", "HBAR", "ARB", "VET", "OP",
	"MKR", "GRT", "INJ", "ALGO", "QNT", "AAVE", "STX", "EGLD", "SAND", "THETA",
	"IMX", "XTZ", "MANA", "EOS", "FLOW", "AXS", "CHZ", "NEO", "KAVA", "ZEC",
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("MARKETPULSE_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:            absDataDir,
		Port:               getEnvAsInt("PORT", 8080),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DevMode:            getEnvAsBool("DEV_MODE", false),
		MarketDataBaseURL:  getEnv("MARKET_DATA_URL", "https://api.coingecko.com/api/v3"),
		ForecastServiceURL: getEnv("FORECAST_SERVICE_URL", "http://localhost:9100"),
		NewsServiceURL:     getEnv("NEWS_SERVICE_URL", "http://localhost:9200"),
		DefaultSymbol:      domain.Symbol(getEnv("DEFAULT_SYMBOL", "BTC")),
		Universe:           parseUniverse(getEnv("MARKET_UNIVERSE", "")),
		UniverseSize:       getEnvAsInt("UNIVERSE_SIZE", 50),
		SentimentWindow:    getEnvAsInt("SENTIMENT_WINDOW_DAYS", 7),
		PriceInterval:      getEnvAsDuration("PRICE_REFRESH_INTERVAL", 60*time.Second),
		ForecastInterval:   getEnvAsDuration("FORECAST_REFRESH_INTERVAL", 300*time.Second),
		CandleInterval:     getEnvAsDuration("CANDLE_CHECK_INTERVAL", 3600*time.Second),
		HistoryRetention:   getEnvAsDuration("HISTORY_RETENTION", 30*24*time.Hour),
		CandleTimePeriod:   getEnv("CANDLE_TIME_PERIOD", "1d"),
		MaintenanceEnabled: getEnvAsBool("MAINTENANCE_ENABLED", true),
		Backup:             loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.DefaultSymbol == "" {
		return fmt.Errorf("default symbol must not be empty")
	}
	if c.UniverseSize <= 0 {
		return fmt.Errorf("universe size must be positive, got %d", c.UniverseSize)
	}
	if len(c.Universe) == 0 {
		return fmt.Errorf("universe must not be empty")
	}
	return nil
}

// parseUniverse splits a comma-separated symbol list, falling back to the
// default universe when the value is empty.
func parseUniverse(value string) []domain.Symbol {
	if value == "" {
		return DefaultUniverse
	}
	parts := strings.Split(value, ",")
	symbols := make([]domain.Symbol, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			symbols = append(symbols, domain.Symbol(strings.ToUpper(p)))
		}
	}
	if len(symbols) == 0 {
		return DefaultUniverse
	}
	return symbols
}

// loadBackupConfig reads S3/R2 backup settings. Returns a config whose
// Enabled() is false when credentials are absent.
func loadBackupConfig() *BackupConfig {
	return &BackupConfig{
		Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
		Region:          getEnv("BACKUP_S3_REGION", "auto"),
		AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
		Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
		Prefix:          getEnv("BACKUP_S3_PREFIX", "marketpulse"),
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
