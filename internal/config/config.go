package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/wellnest-io/chat-client/internal/log"
)

type Config struct {
	Chat      ChatConfig
	Auth      AuthConfig
	WebSocket WebSocketConfig
	Session   SessionConfig
	Archive   ArchiveConfig
	Log       log.Config
}

type ChatConfig struct {
	Endpoint     string        `mapstructure:"endpoint"`
	WelcomeText  string        `mapstructure:"welcome_text"`
	DedupeWindow time.Duration `mapstructure:"dedupe_window"`
}

type AuthConfig struct {
	TokenURL string `mapstructure:"token_url"`
	UserID   string `mapstructure:"user_id"`
}

type WebSocketConfig struct {
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
	ReconnectCap     time.Duration `mapstructure:"reconnect_cap"`
	MaxRetries       int           `mapstructure:"max_retries"`
}

type SessionConfig struct {
	Backend string `mapstructure:"backend"` // file, redis, or memory
	Path    string `mapstructure:"path"`
	Redis   RedisConfig
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func Load() (*Config, error) {
	v, err := load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("chat.endpoint", "ws://localhost:8088/ws/chat")
	v.SetDefault("chat.welcome_text", "Hi! I'm your wellness assistant. How can I help you today?")
	v.SetDefault("chat.dedupe_window", "5s")
	v.SetDefault("auth.token_url", "http://localhost:8088/auth/token")
	v.SetDefault("auth.user_id", "")
	v.SetDefault("websocket.handshake_timeout", "10s")
	v.SetDefault("websocket.ping_interval", "25s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 65536)
	v.SetDefault("websocket.reconnect_cap", "30s")
	v.SetDefault("websocket.max_retries", 8)
	v.SetDefault("session.backend", "file")
	v.SetDefault("session.path", "")
	v.SetDefault("session.redis.address", "localhost:6379")
	v.SetDefault("session.redis.password", "")
	v.SetDefault("session.redis.db", 0)
	v.SetDefault("session.redis.prefix", "chat")
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.path", "chat-archive.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.service_name", "chat-client")

	// Override from environment
	v.BindEnv("chat.endpoint", "CHAT_ENDPOINT")
	v.BindEnv("auth.token_url", "AUTH_TOKEN_URL")
	v.BindEnv("auth.user_id", "CHAT_USER_ID")
	v.BindEnv("session.backend", "SESSION_BACKEND")
	v.BindEnv("session.redis.address", "REDIS_ADDRESS")
	v.BindEnv("session.redis.password", "REDIS_PASSWORD")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.Chat.DedupeWindow = parseDuration(v, "chat.dedupe_window", 5*time.Second)
	cfg.WebSocket.HandshakeTimeout = parseDuration(v, "websocket.handshake_timeout", 10*time.Second)
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 25*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.WebSocket.ReconnectCap = parseDuration(v, "websocket.reconnect_cap", 30*time.Second)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
