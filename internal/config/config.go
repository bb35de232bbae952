package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config はAPIサーバーとワーカーの設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Supabase（認証プロバイダー）
	SupabaseURL            string
	SupabaseAnonKey        string
	SupabaseServiceRoleKey string
	SupabaseJWTSecret      string

	// Token cache
	RedisURL      string
	TokenCacheTTL time.Duration

	// Rate Limit
	RateLimitGeneral int
	RateLimitSignup  int

	// FTMO proof check
	ProofCheckInterval      time.Duration
	ProofCheckTimeout       time.Duration
	ProofCheckMaxConcurrent int
	FTMORetentionDays       int

	// Course
	QuizPassingScore int

	// Server
	ServerPort  string
	APIBasePath string

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel string
}

// HasAuthProvider はトークン検証に必要な認証プロバイダー設定が揃っているかを返す。
func (c *Config) HasAuthProvider() bool {
	return c.SupabaseURL != "" && c.SupabaseAnonKey != ""
}

// HasServiceRole はアカウント作成に必要なサービスロール設定が揃っているかを返す。
func (c *Config) HasServiceRole() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceRoleKey != ""
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// Supabase関連の値は任意で、未設定の場合は /health で未構成として報告される。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.SupabaseURL = strings.TrimRight(os.Getenv("SUPABASE_URL"), "/")
	cfg.SupabaseAnonKey = os.Getenv("SUPABASE_ANON_KEY")
	cfg.SupabaseServiceRoleKey = os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	cfg.SupabaseJWTSecret = os.Getenv("SUPABASE_JWT_SECRET")

	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.TokenCacheTTL = getEnvDuration("TOKEN_CACHE_TTL", 5*time.Minute)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSignup = getEnvInt("RATE_LIMIT_SIGNUP", 10)
	cfg.ProofCheckInterval = getEnvDuration("PROOF_CHECK_INTERVAL", 10*time.Minute)
	cfg.ProofCheckTimeout = getEnvDuration("PROOF_CHECK_TIMEOUT", 10*time.Second)
	cfg.ProofCheckMaxConcurrent = getEnvInt("PROOF_CHECK_MAX_CONCURRENT", 5)
	cfg.FTMORetentionDays = getEnvInt("FTMO_RETENTION_DAYS", 365)
	cfg.QuizPassingScore = getEnvInt("QUIZ_PASSING_SCORE", 80)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.APIBasePath = NormalizeBasePath(getEnvString("API_BASE_PATH", ""))
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "*")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

// ClientConfig はCLIクライアント（signup / login / diagnose）の設定を保持する。
type ClientConfig struct {
	APIBaseURL        string
	SupabaseURL       string
	SupabaseAnonKey   string
	SessionFile       string
	SignupSettleDelay time.Duration
	RequestTimeout    time.Duration
	LogLevel          string
}

// LoadClient は環境変数からClientConfigを読み込む。
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{}

	var missing []string

	cfg.APIBaseURL = strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	if cfg.APIBaseURL == "" {
		missing = append(missing, "API_BASE_URL")
	}

	cfg.SupabaseURL = strings.TrimRight(os.Getenv("SUPABASE_URL"), "/")
	if cfg.SupabaseURL == "" {
		missing = append(missing, "SUPABASE_URL")
	}

	cfg.SupabaseAnonKey = os.Getenv("SUPABASE_ANON_KEY")
	if cfg.SupabaseAnonKey == "" {
		missing = append(missing, "SUPABASE_ANON_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.SessionFile = getEnvString("SESSION_FILE", defaultSessionFile())
	cfg.SignupSettleDelay = getEnvDuration("SIGNUP_SETTLE_DELAY", 1500*time.Millisecond)
	cfg.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", 15*time.Second)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "warn")

	return cfg, nil
}

// defaultSessionFile はセッションキャッシュの既定パスを返す。
func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".pipnation-session.json"
	}
	return filepath.Join(home, ".pipnation", "session.json")
}

// NormalizeBasePath はマウントパスを "/a/b" 形式に揃える。空文字はルートを表す。
func NormalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
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
