package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar points at an optional YAML file layered over the defaults.
const ConfigPathEnvVar = "CONFIG_PATH"

// envMappings maps environment variables to koanf paths. Variables not
// listed here are ignored.
var envMappings = map[string]string{
	"app_env":  "app.env",
	"env":      "app.env",
	"app_name": "app.name",

	"log_level":     "log.level",
	"log_format":    "log.format",
	"log_component": "log.component",
	"log_source":    "log.source",
	"log_output":    "log.output",

	"db_driver":   "db.driver",
	"db_dsn":      "db.dsn",
	"mysql_dsn":   "db.dsn",
	"db_host":     "db.host",
	"db_port":     "db.port",
	"db_user":     "db.user",
	"db_password": "db.password",
	"db_name":     "db.name",

	"redis_addr":           "redis.addr",
	"redis_password":       "redis.password",
	"redis_db":             "redis.db",
	"redis_like_count_ttl": "redis.like_count_ttl",

	"grpc_host": "grpc.host",
	"grpc_port": "grpc.port",

	"http_host":            "http.host",
	"http_port":            "http.port",
	"http_read_timeout":    "http.read_timeout",
	"http_write_timeout":   "http.write_timeout",
	"http_request_timeout": "http.request_timeout",
	"http_allowed_origins": "http.allowed_origins",
	"http_rate_limit":      "http.rate_limit",
	"http_rate_window":     "http.rate_window",

	"jwt_secret":             "auth.jwt_secret",
	"auth_jwt_secret":        "auth.jwt_secret",
	"auth_token_ttl":         "auth.token_ttl",
	"auth_handshake_timeout": "auth.handshake_timeout",

	"discovery_default_limit":      "discovery.default_limit",
	"discovery_max_limit":          "discovery.max_limit",
	"discovery_radius_filter_mode": "discovery.radius_filter_mode",
	"discovery_max_radius_km":      "discovery.max_radius_km",

	"chat_default_page_size": "chat.default_page_size",
	"chat_max_page_size":     "chat.max_page_size",

	"realtime_send_buffer":        "realtime.send_buffer",
	"realtime_events_per_second":  "realtime.events_per_second",
	"realtime_event_burst":        "realtime.event_burst",
	"realtime_broadcast_presence": "realtime.broadcast_presence",
}

// New loads configuration from defaults, an optional YAML file and the
// environment, in that order of precedence, and validates the result.
func New() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := getEnvDefault(ConfigPathEnvVar, ""); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.HTTP.AllowedOrigins = splitList(cfg.HTTP.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func envTransformFunc(key string) string {
	if path, ok := envMappings[strings.ToLower(key)]; ok {
		return path
	}
	return ""
}

// splitList flattens comma-separated entries coming from env or YAML scalars.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}
