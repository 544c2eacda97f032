package config

import (
	"fmt"
	"strings"
	"time"
)

// Radius filter modes for candidate discovery.
const (
	// RadiusUnboundedAtZero treats a search radius of 0 as "no distance filter".
	RadiusUnboundedAtZero = "unbounded-at-zero"
	// RadiusStrict treats the radius as a pure distance bound, 0 included.
	RadiusStrict = "strict"
)

type Config struct {
	App       AppConfig       `koanf:"app"`
	Log       LogConfig       `koanf:"log"`
	DB        DBConfig        `koanf:"db"`
	Redis     RedisConfig     `koanf:"redis"`
	GRPC      GRPCConfig      `koanf:"grpc"`
	HTTP      HTTPConfig      `koanf:"http"`
	Auth      AuthConfig      `koanf:"auth"`
	Discovery DiscoveryConfig `koanf:"discovery"`
	Chat      ChatConfig      `koanf:"chat"`
	Realtime  RealtimeConfig  `koanf:"realtime"`
}

type AppConfig struct {
	Env  string `koanf:"env"`
	Name string `koanf:"name"`
}

type LogConfig struct {
	Level     string `koanf:"level"`
	Format    string `koanf:"format"`
	Component string `koanf:"component"`
	Source    bool   `koanf:"source"`
	Output    string `koanf:"output"`
}

// DBConfig selects the gorm dialector. When DSN is empty it is assembled
// from the discrete fields for mysql and postgres.
type DBConfig struct {
	Driver   string `koanf:"driver"`
	DSN      string `koanf:"dsn"`
	Host     string `koanf:"host"`
	Port     string `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Name     string `koanf:"name"`
}

type RedisConfig struct {
	Addr         string        `koanf:"addr"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	LikeCountTTL time.Duration `koanf:"like_count_ttl"`
}

type GRPCConfig struct {
	Host string `koanf:"host"`
	Port string `koanf:"port"`
}

type HTTPConfig struct {
	Host           string        `koanf:"host"`
	Port           string        `koanf:"port"`
	ReadTimeout    time.Duration `koanf:"read_timeout"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
	RateLimit      int           `koanf:"rate_limit"`
	RateWindow     time.Duration `koanf:"rate_window"`
}

type AuthConfig struct {
	JWTSecret        string        `koanf:"jwt_secret"`
	TokenTTL         time.Duration `koanf:"token_ttl"`
	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`
}

type DiscoveryConfig struct {
	DefaultLimit     int    `koanf:"default_limit"`
	MaxLimit         int    `koanf:"max_limit"`
	RadiusFilterMode string `koanf:"radius_filter_mode"`
	MaxRadiusKm      int    `koanf:"max_radius_km"`
}

type ChatConfig struct {
	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`
}

type RealtimeConfig struct {
	SendBuffer        int     `koanf:"send_buffer"`
	EventsPerSecond   float64 `koanf:"events_per_second"`
	EventBurst        int     `koanf:"event_burst"`
	BroadcastPresence bool    `koanf:"broadcast_presence"`
}

// Default returns the built-in configuration used as the lowest layer.
func Default() *Config {
	return &Config{
		App: AppConfig{Env: "production", Name: "muzz-connect"},
		Log: LogConfig{
			Level:     "info",
			Format:    "text",
			Component: "muzz_connect",
			Output:    "stdout",
		},
		DB: DBConfig{
			Driver:   "mysql",
			Host:     "localhost",
			Port:     "3306",
			User:     "root",
			Password: "root",
			Name:     "muzz",
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			LikeCountTTL: time.Hour,
		},
		GRPC: GRPCConfig{Host: "127.0.0.1", Port: "50051"},
		HTTP: HTTPConfig{
			Host:           "0.0.0.0",
			Port:           "8080",
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			RequestTimeout: 10 * time.Second,
			AllowedOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
			RateLimit:      120,
			RateWindow:     time.Minute,
		},
		Auth: AuthConfig{
			TokenTTL:         30 * 24 * time.Hour,
			HandshakeTimeout: 10 * time.Second,
		},
		Discovery: DiscoveryConfig{
			DefaultLimit:     30,
			MaxLimit:         100,
			RadiusFilterMode: RadiusUnboundedAtZero,
			MaxRadiusKm:      150,
		},
		Chat: ChatConfig{DefaultPageSize: 50, MaxPageSize: 200},
		Realtime: RealtimeConfig{
			SendBuffer:        256,
			EventsPerSecond:   20,
			EventBurst:        40,
			BroadcastPresence: true,
		},
	}
}

// IsDevelopment reports whether the process runs in development mode.
func (c *Config) IsDevelopment() bool {
	switch strings.ToLower(strings.TrimSpace(c.App.Env)) {
	case "dev", "development", "local":
		return true
	}
	return false
}

// Validate checks cross-field constraints after all layers are merged.
func (c *Config) Validate() error {
	switch c.Discovery.RadiusFilterMode {
	case RadiusUnboundedAtZero, RadiusStrict:
	default:
		return fmt.Errorf("discovery.radius_filter_mode: unknown mode %q", c.Discovery.RadiusFilterMode)
	}

	switch c.DB.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("db.driver: unsupported driver %q", c.DB.Driver)
	}

	if c.Auth.JWTSecret == "" && !c.IsDevelopment() {
		return fmt.Errorf("auth.jwt_secret is required outside development")
	}
	if c.Discovery.DefaultLimit <= 0 || c.Discovery.MaxLimit < c.Discovery.DefaultLimit {
		return fmt.Errorf("discovery limits invalid: default=%d max=%d", c.Discovery.DefaultLimit, c.Discovery.MaxLimit)
	}
	if c.Chat.DefaultPageSize <= 0 || c.Chat.MaxPageSize < c.Chat.DefaultPageSize {
		return fmt.Errorf("chat page sizes invalid: default=%d max=%d", c.Chat.DefaultPageSize, c.Chat.MaxPageSize)
	}
	if c.Auth.HandshakeTimeout <= 0 {
		return fmt.Errorf("auth.handshake_timeout must be positive")
	}
	return nil
}

// DevJWTSecret signs tokens in development when auth.jwt_secret is unset.
const DevJWTSecret = "muzz-dev-secret"

// TokenSecret returns the signing secret, falling back to DevJWTSecret.
// Validate rejects an empty secret outside development.
func (c *Config) TokenSecret() string {
	if c.Auth.JWTSecret == "" {
		return DevJWTSecret
	}
	return c.Auth.JWTSecret
}

// DatabaseDSN returns the configured DSN or builds one for the driver.
func (c *Config) DatabaseDSN() string {
	if c.DB.DSN != "" {
		return c.DB.DSN
	}
	switch c.DB.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name,
		)
	case "sqlite":
		return "file:muzz.db?cache=shared"
	default:
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name,
		)
	}
}

func (c *Config) HTTPAddr() string { return c.HTTP.Host + ":" + c.HTTP.Port }
func (c *Config) GRPCAddr() string { return c.GRPC.Host + ":" + c.GRPC.Port }
