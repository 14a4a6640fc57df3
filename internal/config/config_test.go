package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/improv-battle/backend/internal/service/credential"
	"github.com/zhouzirui/improv-battle/backend/internal/service/relay"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "CORS_ALLOWED_ORIGINS",
		"LIVEKIT_API_KEY", "LIVEKIT_API_SECRET", "LIVEKIT_URL", "LIVEKIT_TOKEN_TTL",
		"RELAY_REDIS_ADDR", "RELAY_REDIS_STREAM_PREFIX",
		"RELAY_REDIS_STREAM_MAXLEN", "RELAY_REDIS_STREAM_TTL",
		"LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Nil(t, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.LiveKit.Enabled())
	assert.Equal(t, credential.DefaultServerURL, cfg.LiveKit.URL)
	assert.Equal(t, 6*time.Hour, cfg.LiveKit.TokenTTL)
	assert.False(t, cfg.Relay.UsesRedis())
	assert.Equal(t, relay.DefaultStreamMaxLen, cfg.Relay.StreamMaxLen)
	assert.Equal(t, relay.DefaultStreamIdleTTL, cfg.Relay.StreamTTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000, https://improv.example")
	t.Setenv("LIVEKIT_API_KEY", " devkey ")
	t.Setenv("LIVEKIT_API_SECRET", "secret")
	t.Setenv("LIVEKIT_URL", "wss://lk.example")
	t.Setenv("LIVEKIT_TOKEN_TTL", "30m")
	t.Setenv("RELAY_REDIS_ADDR", "localhost:6379")
	t.Setenv("RELAY_REDIS_STREAM_MAXLEN", "200")
	t.Setenv("RELAY_REDIS_STREAM_TTL", "10m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, []string{"http://localhost:3000", "https://improv.example"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.LiveKit.Enabled())

	issuerCfg := cfg.LiveKit.IssuerConfig()
	assert.Equal(t, "devkey", issuerCfg.APIKey)
	assert.Equal(t, "wss://lk.example", issuerCfg.ServerURL)
	assert.Equal(t, 30*time.Minute, issuerCfg.TTL)

	assert.True(t, cfg.Relay.UsesRedis())
	assert.Equal(t, "localhost:6379", cfg.Relay.RedisConfig().Addr)
	assert.Equal(t, "improv.room.", cfg.Relay.RedisConfig().StreamPrefix)
	assert.Equal(t, int64(200), cfg.Relay.RedisConfig().MaxLen)
	assert.Equal(t, 10*time.Minute, cfg.Relay.RedisConfig().IdleTTL)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "80 80")
	_, err := Load()
	assert.Error(t, err)

	clearEnv(t)
	t.Setenv("LIVEKIT_TOKEN_TTL", "soon")
	_, err = Load()
	assert.Error(t, err)

	clearEnv(t)
	t.Setenv("LIVEKIT_TOKEN_TTL", "-1h")
	_, err = Load()
	assert.Error(t, err)

	clearEnv(t)
	t.Setenv("RELAY_REDIS_STREAM_MAXLEN", "0")
	_, err = Load()
	assert.Error(t, err)
}
