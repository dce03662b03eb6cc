package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"

	PhotoBackendLocal = "local"
	PhotoBackendGCS   = "gcs"
)

// Config is the service configuration, read from the environment.
type Config struct {
	Port string

	Log struct {
		Level  string
		Format string
	}

	Store struct {
		Driver     string // "sqlite" or "mongo"
		SQLitePath string
		MongoURI   string
		MongoDB    string
	}

	Redis struct {
		Addr     string // empty disables Redis; statistics are cached in memory
		Password string
		DB       int
	}
	StatsCacheTTL time.Duration

	NATS struct {
		Enabled bool
		Port    int
		DataDir string
	}

	Auth struct {
		JWTSecret      string
		TokenTTL       time.Duration
		BootstrapAdmin string
	}

	Photos struct {
		Backend       string // "local" or "gcs"
		UploadDir     string
		PublicBaseURL string
		GCSBucket     string
		GCSPrefix     string
	}
}

// Load reads .env (when present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.Port = getEnv("PORT", "8080")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Store.Driver = strings.ToLower(getEnv("STORE_DRIVER", StoreSQLite))
	cfg.Store.SQLitePath = getEnv("SQLITE_PATH", "./db/vialactivo.db")
	cfg.Store.MongoURI = getEnv("MONGODB_URI", "mongodb://localhost:27017")
	cfg.Store.MongoDB = getEnv("MONGODB_DB", "vialactivo")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)
	cfg.StatsCacheTTL = getEnvDuration("STATS_CACHE_TTL", 30*time.Second)

	cfg.NATS.Enabled = getEnv("NATS_ENABLED", "true") == "true"
	cfg.NATS.Port = getEnvInt("NATS_PORT", 4222)
	cfg.NATS.DataDir = getEnv("NATS_DATA_DIR", "./data/nats")

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", "")
	cfg.Auth.TokenTTL = getEnvDuration("JWT_TTL", time.Hour)
	cfg.Auth.BootstrapAdmin = getEnv("ADMIN_BOOTSTRAP_EMAIL", "")

	cfg.Photos.Backend = strings.ToLower(getEnv("PHOTO_BACKEND", PhotoBackendLocal))
	cfg.Photos.UploadDir = getEnv("UPLOAD_DIR", "./uploads/evidencias")
	cfg.Photos.PublicBaseURL = getEnv("PUBLIC_BASE_URL", "")
	cfg.Photos.GCSBucket = getEnv("GCS_BUCKET", "")
	cfg.Photos.GCSPrefix = getEnv("GCS_PREFIX", "evidencias")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MinJWTSecretLen is the shortest JWT_SECRET Validate accepts.
const MinJWTSecretLen = 16

// Validate rejects unknown drivers, incomplete backend settings and a
// missing or short JWT_SECRET.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreSQLite, StoreMongo:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q (want %s or %s)", c.Store.Driver, StoreSQLite, StoreMongo)
	}
	switch c.Photos.Backend {
	case PhotoBackendLocal:
	case PhotoBackendGCS:
		if c.Photos.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET is required when PHOTO_BACKEND=%s", PhotoBackendGCS)
		}
	default:
		return fmt.Errorf("unknown PHOTO_BACKEND %q (want %s or %s)", c.Photos.Backend, PhotoBackendLocal, PhotoBackendGCS)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.Auth.JWTSecret) < MinJWTSecretLen {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", MinJWTSecretLen)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}
