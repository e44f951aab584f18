// Package config はエージェントの設定を環境変数から読み込む。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Backend
	APIBaseURL     string
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int

	// Sync
	SyncPollInterval time.Duration
	SyncDisplayDelay time.Duration

	// Credentials
	CredentialsPath string

	// Agent
	AgentPort string
	UIOrigin  string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envファイルがあれば先に読み込む（未存在は無視）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	cfg.APIBaseURL = os.Getenv("API_BASE_URL")
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("required environment variable is not set: API_BASE_URL")
	}

	// Optional fields with defaults
	cfg.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", 15*time.Second)
	cfg.RateLimitRPS = getEnvFloat("RATE_LIMIT_RPS", 10)
	cfg.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 20)
	cfg.SyncPollInterval = getEnvDuration("SYNC_POLL_INTERVAL", 1500*time.Millisecond)
	cfg.SyncDisplayDelay = getEnvDuration("SYNC_DISPLAY_DELAY", 5*time.Second)
	cfg.AgentPort = getEnvString("AGENT_PORT", "8787")
	cfg.UIOrigin = getEnvString("UI_ORIGIN", "http://localhost:3000")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	credPath := os.Getenv("CREDENTIALS_PATH")
	if credPath == "" {
		p, err := DefaultCredentialsPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve credentials path: %w", err)
		}
		credPath = p
	}
	cfg.CredentialsPath = credPath

	return cfg, nil
}

// DefaultCredentialsPath はOS標準の設定ディレクトリ配下の
// 認証情報ファイルパスを返す。
func DefaultCredentialsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "healthsync", "credentials.json"), nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
