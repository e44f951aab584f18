package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("API_BASE_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("API_BASE_URL未設定時はエラーを返さなければならない")
	}
	if !strings.Contains(err.Error(), "API_BASE_URL") {
		t.Errorf("エラーメッセージに変数名が含まれていない: %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://api.example.com")
	t.Setenv("CREDENTIALS_PATH", "/tmp/credentials.json")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load がエラーを返した: %v", err)
	}

	if cfg.RequestTimeout != 15*time.Second {
		t.Errorf("RequestTimeout = %v, want 15s", cfg.RequestTimeout)
	}
	if cfg.SyncPollInterval != 1500*time.Millisecond {
		t.Errorf("SyncPollInterval = %v, want 1.5s", cfg.SyncPollInterval)
	}
	if cfg.SyncDisplayDelay != 5*time.Second {
		t.Errorf("SyncDisplayDelay = %v, want 5s", cfg.SyncDisplayDelay)
	}
	if cfg.AgentPort != "8787" {
		t.Errorf("AgentPort = %v, want 8787", cfg.AgentPort)
	}
	if cfg.UIOrigin != "http://localhost:3000" {
		t.Errorf("UIOrigin = %v, want http://localhost:3000", cfg.UIOrigin)
	}
	if cfg.RateLimitRPS != 10 {
		t.Errorf("RateLimitRPS = %v, want 10", cfg.RateLimitRPS)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://api.example.com")
	t.Setenv("CREDENTIALS_PATH", "/tmp/credentials.json")
	t.Setenv("SYNC_POLL_INTERVAL", "500ms")
	t.Setenv("SYNC_DISPLAY_DELAY", "2s")
	t.Setenv("AGENT_PORT", "9999")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load がエラーを返した: %v", err)
	}

	if cfg.SyncPollInterval != 500*time.Millisecond {
		t.Errorf("SyncPollInterval = %v, want 500ms", cfg.SyncPollInterval)
	}
	if cfg.SyncDisplayDelay != 2*time.Second {
		t.Errorf("SyncDisplayDelay = %v, want 2s", cfg.SyncDisplayDelay)
	}
	if cfg.AgentPort != "9999" {
		t.Errorf("AgentPort = %v, want 9999", cfg.AgentPort)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Errorf("RateLimitRPS = %v, want 2.5", cfg.RateLimitRPS)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
	if cfg.CredentialsPath != "/tmp/credentials.json" {
		t.Errorf("CredentialsPath = %v, want /tmp/credentials.json", cfg.CredentialsPath)
	}
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://api.example.com")
	t.Setenv("CREDENTIALS_PATH", "/tmp/credentials.json")
	t.Setenv("SYNC_POLL_INTERVAL", "不正な値")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load がエラーを返した: %v", err)
	}
	if cfg.SyncPollInterval != 1500*time.Millisecond {
		t.Errorf("不正な値の場合はデフォルトに戻るべき: %v", cfg.SyncPollInterval)
	}
}
