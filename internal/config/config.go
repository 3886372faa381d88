// Package config はアプリケーション設定の読み込みを提供する。
// 実行環境の設定（DB接続先・ポート等）は環境変数から、
// カレンダー定義（参加者・日付範囲・クォーラム）はYAMLファイルから読み込む。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の実行環境設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Calendar
	CalendarConfigPath string

	// Recompute
	DebounceWindow time.Duration

	// Rate Limit（req/min単位）
	RateLimitGeneral int
	RateLimitWrite   int

	// ICS Import
	ICSFetchTimeout time.Duration

	// Listener（LISTEN/NOTIFY再接続間隔）
	ListenerMinReconnect time.Duration
	ListenerMaxReconnect time.Duration

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.CalendarConfigPath = getEnvString("CALENDAR_CONFIG_PATH", "calendar.yaml")
	cfg.DebounceWindow = getEnvDuration("DEBOUNCE_WINDOW", 100*time.Millisecond)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitWrite = getEnvInt("RATE_LIMIT_WRITE", 30)
	cfg.ICSFetchTimeout = getEnvDuration("ICS_FETCH_TIMEOUT", 10*time.Second)
	cfg.ListenerMinReconnect = getEnvDuration("LISTENER_MIN_RECONNECT", 10*time.Second)
	cfg.ListenerMaxReconnect = getEnvDuration("LISTENER_MAX_RECONNECT", time.Minute)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
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
