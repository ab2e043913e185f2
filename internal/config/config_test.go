package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_ENV_PATH", "LOG_LEVEL", "STORE_DRIVER", "SQLITE_PATH", "MYSQL_DSN",
		"STORE_WRITE_ATTEMPTS", "STORE_RETRY_BASE_MS", "DIAGNOSIS_PROVIDER",
		"ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL", "ANTHROPIC_MODEL", "DIAGNOSIS_MAX_TOKENS", "GEMINI_BASE_URL",
		"GEMINI_API_KEY", "GEMINI_MODEL", "HTTP_TIMEOUT_SECONDS", "FREE_PLANT_LIMIT",
		"FREE_MONTHLY_DIAGNOSES", "FREE_PHOTOS_PER_PLANT", "API_LISTEN_ADDR", "JWT_SECRET",
		"SESSION_TTL_HOURS", "TELEGRAM_BOT_TOKEN", "S3_BUCKET",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreSQLite, cfg.StoreDriver)
	assert.Equal(t, ProviderAnthropic, cfg.DiagnosisProvider)
	assert.Equal(t, "https://api.anthropic.com", cfg.AnthropicBaseURL)
	assert.Equal(t, 3, cfg.StoreWriteAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.StoreRetryBase)
	assert.Equal(t, 3, cfg.FreePlantLimit)
	assert.Equal(t, 2, cfg.FreeMonthlyDiagnoses)
	assert.Equal(t, 5, cfg.FreePhotosPerPlant)
	assert.Equal(t, 7*24*time.Hour, cfg.SessionTTL)
	assert.False(t, cfg.S3Enabled())
}

func TestLoad_MissingCredential(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "mysql")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MYSQL_DSN")
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
}

func TestLoad_GeminiProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv("DIAGNOSIS_PROVIDER", "Gemini")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, cfg.DiagnosisProvider)
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
}

func TestLoad_UnknownDriver(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("STORE_DRIVER", "redis")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("ANTHROPIC_API_KEY=from-file\nFREE_PLANT_LIMIT=10\n"), 0o600))
	t.Setenv("CONFIG_ENV_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.AnthropicAPIKey)
	assert.Equal(t, 10, cfg.FreePlantLimit)
}

func TestRequireFrontEnds(t *testing.T) {
	var cfg Config
	assert.Error(t, cfg.RequireBot())
	assert.Error(t, cfg.RequireAPI())

	cfg.BotToken = "123:abc"
	cfg.JWTSecret = "secret"
	cfg.APIListenAddr = ":0"
	assert.NoError(t, cfg.RequireBot())
	assert.NoError(t, cfg.RequireAPI())
}

func TestNormalizeBaseURL(t *testing.T) {
	assert.Equal(t, "https://api.example.com", normalizeBaseURL("api.example.com", "x"))
	assert.Equal(t, "http://localhost:9000", normalizeBaseURL("http://localhost:9000/", "x"))
	assert.Equal(t, "fallback", normalizeBaseURL("  ", "fallback"))
}
