package config

import (
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

// Config carries everything the sync client needs. Values come from the
// environment with sane defaults so a bare `go run` against a local
// simserver just works.
type Config struct {
	SocketURL  string
	APIBaseURL string

	PingInterval   time.Duration
	StaleAfter     time.Duration
	CashoutTimeout time.Duration

	ReconnectDelay time.Duration
	MaxReconnects  int

	MinStake float64
	MaxStake float64

	HistorySize int
}

func Load() Config {
	return Config{
		SocketURL:      getEnv("AVIATOR_WS_URL", "ws://localhost:8080/ws"),
		APIBaseURL:     getEnv("AVIATOR_API_URL", "http://localhost:8080/api/v1"),
		PingInterval:   getEnvAsDuration("AVIATOR_PING_INTERVAL", 10*time.Second),
		StaleAfter:     getEnvAsDuration("AVIATOR_STALE_AFTER", 15*time.Second),
		CashoutTimeout: getEnvAsDuration("AVIATOR_CASHOUT_TIMEOUT", 3*time.Second),
		ReconnectDelay: getEnvAsDuration("AVIATOR_RECONNECT_DELAY", 2*time.Second),
		MaxReconnects:  getEnvAsInt("AVIATOR_MAX_RECONNECTS", 5),
		MinStake:       getEnvAsFloat("AVIATOR_MIN_STAKE", 1.0),
		MaxStake:       getEnvAsFloat("AVIATOR_MAX_STAKE", 10000.0),
		HistorySize:    getEnvAsInt("AVIATOR_HISTORY_SIZE", 16),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
