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

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreMySQL  = "mysql"

	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Config aggregates runtime configuration for the engine and its front-ends.
type Config struct {
	LogLevel string

	StoreDriver        string
	SQLitePath         string
	MySQLDSN           string
	StoreWriteAttempts int
	StoreRetryBase     time.Duration

	DiagnosisProvider  string
	DiagnosisMaxTokens int
	AnthropicAPIKey    string
	AnthropicBaseURL   string
	AnthropicModel     string
	GeminiAPIKey       string
	GeminiBaseURL      string
	GeminiModel        string
	RequestTimeout     time.Duration

	FreePlantLimit       int
	FreeMonthlyDiagnoses int
	FreePhotosPerPlant   int

	APIListenAddr string
	JWTSecret     string
	SessionTTL    time.Duration

	BotToken string

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string
}

// Load reads configuration from environment variables, applying defaults. Only
// settings every entry point needs are validated here; front-end specific
// settings are checked by RequireAPI and RequireBot.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	const defaultAnthropicBaseURL = "https://api.anthropic.com"

	cfg := Config{
		LogLevel:             strings.ToLower(getEnv("LOG_LEVEL", "info")),
		StoreDriver:          strings.ToLower(getEnv("STORE_DRIVER", StoreSQLite)),
		SQLitePath:           getEnv("SQLITE_PATH", "plantdoctor.db"),
		MySQLDSN:             os.Getenv("MYSQL_DSN"),
		StoreWriteAttempts:   getInt("STORE_WRITE_ATTEMPTS", 3),
		StoreRetryBase:       time.Millisecond * time.Duration(getInt("STORE_RETRY_BASE_MS", 100)),
		DiagnosisProvider:    strings.ToLower(getEnv("DIAGNOSIS_PROVIDER", ProviderAnthropic)),
		DiagnosisMaxTokens:   getInt("DIAGNOSIS_MAX_TOKENS", 1000),
		AnthropicAPIKey:      os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicBaseURL:     normalizeBaseURL(getEnv("ANTHROPIC_BASE_URL", defaultAnthropicBaseURL), defaultAnthropicBaseURL),
		AnthropicModel:       getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		GeminiAPIKey:         os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL:        os.Getenv("GEMINI_BASE_URL"),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		RequestTimeout:       time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 60)),
		FreePlantLimit:       getInt("FREE_PLANT_LIMIT", 3),
		FreeMonthlyDiagnoses: getInt("FREE_MONTHLY_DIAGNOSES", 2),
		FreePhotosPerPlant:   getInt("FREE_PHOTOS_PER_PLANT", 5),
		APIListenAddr:        getEnv("API_LISTEN_ADDR", ":8080"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		SessionTTL:           time.Hour * time.Duration(getInt("SESSION_TTL_HOURS", 24*7)),
		BotToken:             os.Getenv("TELEGRAM_BOT_TOKEN"),
		S3Endpoint:           getEnv("S3_ENDPOINT", ""),
		S3Region:             os.Getenv("S3_REGION"),
		S3AccessKey:          os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:          os.Getenv("S3_SECRET_KEY"),
		S3Bucket:             os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:      os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:       getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:             getEnv("S3_PREFIX", "photos"),
	}

	var missing []string
	switch cfg.StoreDriver {
	case StoreMemory:
	case StoreSQLite:
		if cfg.SQLitePath == "" {
			missing = append(missing, "SQLITE_PATH")
		}
	case StoreMySQL:
		if cfg.MySQLDSN == "" {
			missing = append(missing, "MYSQL_DSN")
		}
	default:
		return Config{}, fmt.Errorf("unsupported STORE_DRIVER: %s", cfg.StoreDriver)
	}

	switch cfg.DiagnosisProvider {
	case ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			missing = append(missing, "ANTHROPIC_API_KEY")
		}
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			missing = append(missing, "GEMINI_API_KEY")
		}
	default:
		return Config{}, fmt.Errorf("unsupported DIAGNOSIS_PROVIDER: %s", cfg.DiagnosisProvider)
	}

	if cfg.StoreWriteAttempts < 1 {
		cfg.StoreWriteAttempts = 1
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}
	return cfg, nil
}

// RequireAPI checks the settings the HTTP API cannot start without.
func (c Config) RequireAPI() error {
	var missing []string
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.APIListenAddr == "" {
		missing = append(missing, "API_LISTEN_ADDR")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

// RequireBot checks the settings the Telegram bot cannot start without.
func (c Config) RequireBot() error {
	if c.BotToken == "" {
		return fmt.Errorf("missing required environment variables: %v", []string{"TELEGRAM_BOT_TOKEN"})
	}
	return nil
}

// S3Enabled reports whether photos should go to object storage. Without a
// bucket photos are stored inline in the plant record.
func (c Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

// normalizeBaseURL adds a scheme when the value is a bare host and drops any
// trailing slash so paths can be appended directly.
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

// loadEnvFile overlays the first env file found onto the process environment.
// Running without an env file is fine; the variables may come from the shell.
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
	return nil
}
