package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zhouzirui/improv-battle/backend/internal/service/credential"
	"github.com/zhouzirui/improv-battle/backend/internal/service/relay"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	LiveKit LiveKitConfig
	Relay   RelayConfig
	Log     LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	livekit, err := loadLiveKitConfig()
	if err != nil {
		return nil, err
	}

	relayCfg, err := loadRelayConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		LiveKit: livekit,
		Relay:   relayCfg,
		Log:     loadLogConfig(),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	origins := parseListEnv("CORS_ALLOWED_ORIGINS")

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if _, err := strconv.Atoi(port); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// LiveKitConfig holds the token signing credentials and the media endpoint.
// Missing credentials are not a load error: the connection-details endpoint
// reports them per request.
type LiveKitConfig struct {
	APIKey    string
	APISecret string
	URL       string
	TokenTTL  time.Duration
}

// Enabled 表示是否提供了签名凭证。
func (c LiveKitConfig) Enabled() bool {
	return c.APIKey != "" && c.APISecret != ""
}

// IssuerConfig converts to the credential service configuration.
func (c LiveKitConfig) IssuerConfig() credential.Config {
	return credential.Config{
		APIKey:    c.APIKey,
		APISecret: c.APISecret,
		ServerURL: c.URL,
		TTL:       c.TokenTTL,
	}
}

func loadLiveKitConfig() (LiveKitConfig, error) {
	ttl, err := parseDurationEnv("LIVEKIT_TOKEN_TTL", credential.DefaultTTL)
	if err != nil {
		return LiveKitConfig{}, err
	}
	if ttl <= 0 {
		return LiveKitConfig{}, fmt.Errorf("invalid LIVEKIT_TOKEN_TTL value %q: must be positive", os.Getenv("LIVEKIT_TOKEN_TTL"))
	}

	return LiveKitConfig{
		APIKey:    strings.TrimSpace(os.Getenv("LIVEKIT_API_KEY")),
		APISecret: strings.TrimSpace(os.Getenv("LIVEKIT_API_SECRET")),
		URL:       getEnvOrDefault("LIVEKIT_URL", credential.DefaultServerURL),
		TokenTTL:  ttl,
	}, nil
}

// RelayConfig 描述房间事件总线配置；未配置 Redis 时使用进程内总线。
type RelayConfig struct {
	RedisAddr    string
	StreamPrefix string
	StreamMaxLen int64
	StreamTTL    time.Duration
}

func (c RelayConfig) UsesRedis() bool { return c.RedisAddr != "" }

func (c RelayConfig) RedisConfig() relay.RedisConfig {
	return relay.RedisConfig{
		Addr:         c.RedisAddr,
		StreamPrefix: c.StreamPrefix,
		MaxLen:       c.StreamMaxLen,
		IdleTTL:      c.StreamTTL,
	}
}

func loadRelayConfig() (RelayConfig, error) {
	maxLen, err := parseIntEnv("RELAY_REDIS_STREAM_MAXLEN", relay.DefaultStreamMaxLen)
	if err != nil {
		return RelayConfig{}, err
	}
	ttl, err := parseDurationEnv("RELAY_REDIS_STREAM_TTL", relay.DefaultStreamIdleTTL)
	if err != nil {
		return RelayConfig{}, err
	}
	if maxLen <= 0 || ttl <= 0 {
		return RelayConfig{}, fmt.Errorf("relay stream limits must be positive (maxlen=%d, ttl=%s)", maxLen, ttl)
	}

	return RelayConfig{
		RedisAddr:    strings.TrimSpace(os.Getenv("RELAY_REDIS_ADDR")),
		StreamPrefix: getEnvOrDefault("RELAY_REDIS_STREAM_PREFIX", relay.DefaultTopicPrefix),
		StreamMaxLen: maxLen,
		StreamTTL:    ttl,
	}, nil
}

// LogConfig 描述日志级别与输出格式。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  getEnvOrDefault("LOG_LEVEL", "info"),
		Format: getEnvOrDefault("LOG_FORMAT", "console"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseIntEnv(key string, defaultValue int64) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseListEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}

	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
