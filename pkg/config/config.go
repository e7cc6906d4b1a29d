// Package config loads the immutable process configuration. Sources are
// layered: code defaults, then chatrelay.yaml, then chatrelay.local.yaml,
// then the ~/.chatrelay/env file, then real environment variables. Higher
// layers win. The result is validated once and never mutated afterwards.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes YAML scalars like "300s" or "1m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration document.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Stream    StreamConfig    `yaml:"stream"`
	Auth      AuthConfig      `yaml:"auth"`
	Title     TitleConfig     `yaml:"title"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig covers the HTTP listener.
type ServerConfig struct {
	Addr              string   `yaml:"addr"`
	ReadHeaderTimeout Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   Duration `yaml:"shutdown_timeout"`
	CORSOrigins       []string `yaml:"cors_origins"`
}

// UpstreamConfig covers the completion API client.
type UpstreamConfig struct {
	APIKey       string   `yaml:"api_key"`
	BaseURL      string   `yaml:"base_url"`
	Timeout      Duration `yaml:"timeout"`
	MaxTokens    int      `yaml:"max_tokens"`
	MaxAttempts  int      `yaml:"max_attempts"`
	DefaultModel string   `yaml:"default_model"`
}

// StreamConfig covers SSE delivery.
type StreamConfig struct {
	Timeout Duration `yaml:"timeout"`
	Buffer  int      `yaml:"buffer"`
}

// Auth modes.
const (
	AuthOff    = "off"
	AuthAPIKey = "api-key"
	AuthJWT    = "jwt"
)

// AuthConfig covers request authentication. JWT stays behind the mode gate.
type AuthConfig struct {
	Mode        string   `yaml:"mode"`
	APIKeys     []string `yaml:"api_keys"`
	JWTSecret   string   `yaml:"jwt_secret"`
	JWTIssuer   string   `yaml:"jwt_issuer"`
	JWTAudience string   `yaml:"jwt_audience"`
}

// TitleConfig covers the conversation title generator.
type TitleConfig struct {
	Model     string   `yaml:"model"`
	Timeout   Duration `yaml:"timeout"`
	MaxLength int      `yaml:"max_length"`
}

// TelemetryConfig covers OTLP trace export. An empty endpoint disables it.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// LogConfig covers structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the code-default configuration layer.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: Duration(10 * time.Second),
			ShutdownTimeout:   Duration(15 * time.Second),
		},
		Upstream: UpstreamConfig{
			BaseURL:      "https://api.openai.com",
			Timeout:      Duration(120 * time.Second),
			MaxTokens:    4096,
			MaxAttempts:  3,
			DefaultModel: "gpt-4o",
		},
		Stream: StreamConfig{
			Timeout: Duration(300 * time.Second),
			Buffer:  16,
		},
		Auth: AuthConfig{Mode: AuthOff},
		Title: TitleConfig{
			Model:     "gpt-4o-mini",
			Timeout:   Duration(10 * time.Second),
			MaxLength: 50,
		},
		Telemetry: TelemetryConfig{ServiceName: "chatrelay"},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
