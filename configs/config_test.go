package configs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("GO_ENV", "test")
	t.Setenv("DB_PORT", "")
	t.Setenv("REDIS_PORT", "")
	t.Setenv("PORT", "")
	t.Setenv("APP_ENV", "")

	cfg := LoadConfig()

	assert.Equal(t, 5432, cfg.DBPort)
	assert.Equal(t, 6379, cfg.RedisPort)
	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, "development", cfg.AppEnv)
	assert.NotEmpty(t, cfg.AccessTokenSecret)
	assert.NotEmpty(t, cfg.RefreshTokenSecret)
	assert.NotEqual(t, cfg.AccessTokenSecret, cfg.RefreshTokenSecret)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("GO_ENV", "test")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "15432")
	t.Setenv("PORT", "9000")
	t.Setenv("APP_ENV", "production")
	t.Setenv("ACCESS_TOKEN_SECRET", "aaa")
	t.Setenv("REFRESH_TOKEN_SECRET", "bbb")

	cfg := LoadConfig()

	assert.Equal(t, "db.internal", cfg.DBHost)
	assert.Equal(t, 15432, cfg.DBPort)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "production", cfg.AppEnv)
	assert.Equal(t, "aaa", cfg.AccessTokenSecret)
	assert.Equal(t, "bbb", cfg.RefreshTokenSecret)
}
