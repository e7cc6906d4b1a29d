package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var validLogFormats = map[string]bool{"json": true, "text": true}

// Validate enforces cross-field constraints after all layers are applied.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil config")
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("config: server.addr is required")
	}
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		return errors.New("config: upstream.base_url is required")
	}
	if c.Upstream.MaxTokens <= 0 {
		return fmt.Errorf("config: upstream.max_tokens must be positive, got %d", c.Upstream.MaxTokens)
	}
	if c.Upstream.MaxAttempts <= 0 {
		return fmt.Errorf("config: upstream.max_attempts must be positive, got %d", c.Upstream.MaxAttempts)
	}
	if c.Stream.Timeout.Std() < 0 {
		return errors.New("config: stream.timeout must not be negative")
	}
	if c.Stream.Buffer <= 0 {
		return fmt.Errorf("config: stream.buffer must be positive, got %d", c.Stream.Buffer)
	}
	switch c.Auth.Mode {
	case AuthOff:
	case AuthAPIKey:
		if len(c.Auth.APIKeys) == 0 {
			return errors.New("config: auth.api_keys is required in api-key mode")
		}
	case AuthJWT:
		if strings.TrimSpace(c.Auth.JWTSecret) == "" {
			return errors.New("config: auth.jwt_secret is required in jwt mode")
		}
	default:
		return fmt.Errorf("config: unknown auth.mode %q", c.Auth.Mode)
	}
	if strings.TrimSpace(c.Title.Model) == "" {
		return errors.New("config: title.model is required")
	}
	if c.Title.Timeout.Std() <= 0 {
		return errors.New("config: title.timeout must be positive")
	}
	if c.Title.MaxLength <= 0 {
		return fmt.Errorf("config: title.max_length must be positive, got %d", c.Title.MaxLength)
	}
	if _, err := c.Log.ParseLevel(); err != nil {
		return err
	}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("config: unknown log.format %q", c.Log.Format)
	}
	return nil
}

// ParseLevel maps the configured level name onto a slog level.
func (lc LogConfig) ParseLevel() (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("config: unknown log.level %q", lc.Level)
}
