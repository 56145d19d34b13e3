package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the order gateway.
type Config struct {
	Port string

	// Binance USDT-M futures
	BinanceAPIKey    string
	BinanceAPISecret string
	BinanceTestnet   bool
	RecvWindowMs     int64

	// Symbols streamed by the market feed
	Symbols []string

	// Cache / sync tuning
	FilterTTL        time.Duration
	TimeSyncInterval time.Duration
	MaxRetries       int

	// Stop parameter overrides (YAML), optional
	StopsConfigPath string

	// API auth
	JWTSecret   string
	APIUser     string
	APIPassword string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the gateway still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:             getEnv("PORT", "8080"),
		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret: os.Getenv("BINANCE_API_SECRET"),
		BinanceTestnet:   getEnv("BINANCE_TESTNET", "false") == "true",
		RecvWindowMs:     int64(getEnvInt("RECV_WINDOW_MS", 5000)),
		Symbols:          splitAndTrim(getEnv("SYMBOLS", "BTCUSDT,ETHUSDT")),
		FilterTTL:        time.Duration(getEnvInt("FILTER_TTL_SECONDS", 600)) * time.Second,
		TimeSyncInterval: time.Duration(getEnvInt("TIME_SYNC_INTERVAL_SECONDS", 300)) * time.Second,
		MaxRetries:       getEnvInt("MAX_RETRIES", 3),
		StopsConfigPath:  getEnv("STOPS_CONFIG_PATH", ""),
		JWTSecret:        getEnv("JWT_SECRET", "dev-secret"),
		APIUser:          getEnv("API_USER", "operator"),
		APIPassword:      getEnv("API_PASSWORD", ""),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
