package config_test

import (
	"testing"
	"time"

	"uniqsocial/client/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadClient_Defaults(t *testing.T) {
	cfg, err := config.LoadClient()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.APIURL)
	assert.Equal(t, "ws://localhost:8080", cfg.WSURL)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "default", cfg.Profile)
	assert.Empty(t, cfg.RedisAddr, "no redis address means in-memory credentials")
}

func TestLoadClient_FromEnvironment(t *testing.T) {
	t.Setenv("UNIQ_API_URL", "https://api.example.test")
	t.Setenv("UNIQ_HTTP_TIMEOUT", "3s")
	t.Setenv("UNIQ_REDIS_DB", "4")

	cfg, err := config.LoadClient()
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.test", cfg.APIURL)
	assert.Equal(t, 3*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 4, cfg.RedisDB)
}

func TestLoadClient_InvalidDuration(t *testing.T) {
	t.Setenv("UNIQ_HTTP_TIMEOUT", "soon")

	_, err := config.LoadClient()
	assert.Error(t, err)
}

func TestLoadServer_Defaults(t *testing.T) {
	cfg, err := config.LoadServer()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 15*time.Minute, cfg.JWTAccessTTL)
	assert.Equal(t, 168*time.Hour, cfg.JWTRefreshTTL)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestEngineConstants(t *testing.T) {
	assert.Equal(t, 20, config.WindowOpenHour)
	assert.Equal(t, 24, config.WindowCloseHour)
	assert.Equal(t, 5, config.ReconnectMaxAttempts)
	assert.Equal(t, 3*time.Second, config.TypingIndicatorTimeout)
	assert.Less(t, config.PingPeriod, config.PongWait)
}
