package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the API server and supporting services.
type Config struct {
	ListenAddr      string
	LogLevel        string
	RequestDeadline time.Duration

	MySQLDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LLMAPIKey      string
	LLMBaseURL     string
	LLMModel       string
	RequestTimeout time.Duration
	MaxAttempts    int
	RetryDelay     time.Duration

	JWTSecret string

	AdminUsername string
	AdminPassword string

	GuestDailyLimit int

	SignupBonus         int
	DefaultMonthlyLimit int

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	const defaultLLMBaseURL = "https://openrouter.ai/api/v1"

	cfg := Config{
		ListenAddr:          getEnv("HTTP_LISTEN_ADDR", ":8080"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		RequestDeadline:     time.Second * time.Duration(getInt("REQUEST_DEADLINE_SECONDS", 180)),
		RedisAddr:           getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             getInt("REDIS_DB", 0),
		LLMBaseURL:          normalizeBaseURL(getEnv("LLM_BASE_URL", defaultLLMBaseURL), defaultLLMBaseURL),
		LLMModel:            getEnv("LLM_MODEL", "openai/gpt-4o-mini"),
		RequestTimeout:      time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 120)),
		MaxAttempts:         getInt("LLM_MAX_ATTEMPTS", 3),
		RetryDelay:          time.Second * time.Duration(getInt("LLM_RETRY_DELAY_SECONDS", 2)),
		AdminUsername:       getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:       getEnv("ADMIN_PASSWORD", "change-me"),
		GuestDailyLimit:     getInt("GUEST_DAILY_LIMIT", 3),
		SignupBonus:         getInt("SIGNUP_BONUS_COINS", 10),
		DefaultMonthlyLimit: getInt("DEFAULT_MONTHLY_LIMIT", 0),
		S3Endpoint:          getEnv("S3_ENDPOINT", ""),
		S3Region:            os.Getenv("S3_REGION"),
		S3AccessKey:         os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:         os.Getenv("S3_SECRET_KEY"),
		S3Bucket:            os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:     os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:      getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:            getEnv("S3_PREFIX", "shares"),
	}

	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.LLMAPIKey = os.Getenv("LLM_API_KEY")
	cfg.JWTSecret = os.Getenv("JWT_SECRET")

	var missing []string
	if cfg.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if cfg.LLMAPIKey == "" {
		missing = append(missing, "LLM_API_KEY")
	}
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

// ShareUploadsEnabled reports whether the optional S3 share-link feature is configured.
func (c Config) ShareUploadsEnabled() bool {
	return c.S3Region != "" && c.S3AccessKey != "" && c.S3SecretKey != "" &&
		c.S3Bucket != "" && c.S3PublicBaseURL != ""
}

// normalizeBaseURL keeps the upstream base URL scheme-qualified so request
// building never produces relative URLs.
func normalizeBaseURL(raw string, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fallback
	}

	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	if parsed.Host == "" {
		parsed.Host = parsed.Path
		parsed.Path = ""
	}

	return strings.TrimRight(parsed.String(), "/")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	// No env file is fine; the process environment is authoritative in containers.
	return nil
}
