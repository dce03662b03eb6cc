package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef-test"

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no .env file
	for _, key := range []string{"PORT", "STORE_DRIVER", "REDIS_ADDR", "STATS_CACHE_TTL", "JWT_TTL", "PHOTO_BACKEND", "NATS_ENABLED", "ADMIN_BOOTSTRAP_EMAIL"} {
		t.Setenv(key, "")
	}
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StoreSQLite, cfg.Store.Driver)
	assert.Equal(t, "", cfg.Redis.Addr)
	assert.Equal(t, 30*time.Second, cfg.StatsCacheTTL)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "", cfg.Auth.BootstrapAdmin)
	assert.Equal(t, PhotoBackendLocal, cfg.Photos.Backend)
	assert.True(t, cfg.NATS.Enabled)
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("ADMIN_BOOTSTRAP_EMAIL", "root@root.com")
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_DRIVER", "Mongo")
	t.Setenv("MONGODB_URI", "mongodb://db:27017")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("STATS_CACHE_TTL", "5m")
	t.Setenv("NATS_ENABLED", "false")
	t.Setenv("JWT_TTL", "2h")
	t.Setenv("PHOTO_BACKEND", "gcs")
	t.Setenv("GCS_BUCKET", "vialactivo-evidencias")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, StoreMongo, cfg.Store.Driver)
	assert.Equal(t, "mongodb://db:27017", cfg.Store.MongoURI)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 5*time.Minute, cfg.StatsCacheTTL)
	assert.False(t, cfg.NATS.Enabled)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "vialactivo-evidencias", cfg.Photos.GCSBucket)
	assert.Equal(t, testSecret, cfg.Auth.JWTSecret)
	assert.Equal(t, "root@root.com", cfg.Auth.BootstrapAdmin)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", testSecret)

	t.Setenv("STORE_DRIVER", "postgres")
	_, err := Load()
	assert.ErrorContains(t, err, "STORE_DRIVER")

	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("PHOTO_BACKEND", "gcs")
	t.Setenv("GCS_BUCKET", "")
	_, err = Load()
	assert.ErrorContains(t, err, "GCS_BUCKET")
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"STORE_DRIVER", "PHOTO_BACKEND", "JWT_TTL"} {
		t.Setenv(key, "")
	}

	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET is required")

	t.Setenv("JWT_SECRET", "short")
	_, err = Load()
	assert.ErrorContains(t, err, "at least 16 characters")

	t.Setenv("JWT_SECRET", testSecret)
	_, err = Load()
	assert.NoError(t, err)
}
