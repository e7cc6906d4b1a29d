package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envPrefix    = "CHATRELAY_"
	envDelimiter = "__"

	baseFileName  = "chatrelay.yaml"
	localFileName = "chatrelay.local.yaml"
	envFileName   = "env"
	homeDirName   = ".chatrelay"
)

// Loader resolves configuration for one directory. Lookup and home are
// injectable for tests.
type Loader struct {
	dir    string
	home   string
	lookup func(string) (string, bool)
}

// LoaderOption customizes loader behaviour.
type LoaderOption func(*Loader)

// WithLookup replaces the environment lookup function.
func WithLookup(fn func(string) (string, bool)) LoaderOption {
	return func(l *Loader) { l.lookup = fn }
}

// WithHome overrides the home directory that hosts ~/.chatrelay/env.
func WithHome(path string) LoaderOption {
	return func(l *Loader) { l.home = path }
}

// NewLoader wires a loader rooted at dir.
func NewLoader(dir string, opts ...LoaderOption) *Loader {
	l := &Loader{dir: dir, lookup: os.LookupEnv}
	if home, err := os.UserHomeDir(); err == nil {
		l.home = home
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Load layers every source and validates the result.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()
	for _, name := range []string{baseFileName, localFileName} {
		if err := mergeFile(cfg, filepath.Join(l.dir, name)); err != nil {
			return nil, err
		}
	}
	fileEnv, err := l.readEnvFile()
	if err != nil {
		return nil, err
	}
	lookup := func(key string) (string, bool) {
		if value, ok := l.lookup(key); ok {
			return value, true
		}
		value, ok := fileEnv[key]
		return value, ok
	}
	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// readEnvFile parses ~/.chatrelay/env as KEY=VALUE lines. Blank lines and
// #-comments are skipped. Real environment variables shadow these entries.
func (l *Loader) readEnvFile() (map[string]string, error) {
	if l.home == "" {
		return nil, nil
	}
	path := filepath.Join(l.home, homeDirName, envFileName)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	entries := map[string]string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("config: %s: malformed line %q", path, line)
		}
		entries[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return entries, nil
}

// applyEnv overlays CHATRELAY_SECTION__FIELD variables onto the config.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	bindings := []struct {
		key string
		set func(string) error
	}{
		{"SERVER" + envDelimiter + "ADDR", setString(&cfg.Server.Addr)},
		{"SERVER" + envDelimiter + "READ_HEADER_TIMEOUT", setDuration(&cfg.Server.ReadHeaderTimeout)},
		{"SERVER" + envDelimiter + "SHUTDOWN_TIMEOUT", setDuration(&cfg.Server.ShutdownTimeout)},
		{"SERVER" + envDelimiter + "CORS_ORIGINS", setList(&cfg.Server.CORSOrigins)},
		{"UPSTREAM" + envDelimiter + "API_KEY", setString(&cfg.Upstream.APIKey)},
		{"UPSTREAM" + envDelimiter + "BASE_URL", setString(&cfg.Upstream.BaseURL)},
		{"UPSTREAM" + envDelimiter + "TIMEOUT", setDuration(&cfg.Upstream.Timeout)},
		{"UPSTREAM" + envDelimiter + "MAX_TOKENS", setInt(&cfg.Upstream.MaxTokens)},
		{"UPSTREAM" + envDelimiter + "MAX_ATTEMPTS", setInt(&cfg.Upstream.MaxAttempts)},
		{"UPSTREAM" + envDelimiter + "DEFAULT_MODEL", setString(&cfg.Upstream.DefaultModel)},
		{"STREAM" + envDelimiter + "TIMEOUT", setDuration(&cfg.Stream.Timeout)},
		{"STREAM" + envDelimiter + "BUFFER", setInt(&cfg.Stream.Buffer)},
		{"AUTH" + envDelimiter + "MODE", setString(&cfg.Auth.Mode)},
		{"AUTH" + envDelimiter + "API_KEYS", setList(&cfg.Auth.APIKeys)},
		{"AUTH" + envDelimiter + "JWT_SECRET", setString(&cfg.Auth.JWTSecret)},
		{"AUTH" + envDelimiter + "JWT_ISSUER", setString(&cfg.Auth.JWTIssuer)},
		{"AUTH" + envDelimiter + "JWT_AUDIENCE", setString(&cfg.Auth.JWTAudience)},
		{"TITLE" + envDelimiter + "MODEL", setString(&cfg.Title.Model)},
		{"TITLE" + envDelimiter + "TIMEOUT", setDuration(&cfg.Title.Timeout)},
		{"TITLE" + envDelimiter + "MAX_LENGTH", setInt(&cfg.Title.MaxLength)},
		{"TELEMETRY" + envDelimiter + "ENDPOINT", setString(&cfg.Telemetry.Endpoint)},
		{"TELEMETRY" + envDelimiter + "INSECURE", setBool(&cfg.Telemetry.Insecure)},
		{"TELEMETRY" + envDelimiter + "SERVICE_NAME", setString(&cfg.Telemetry.ServiceName)},
		{"LOG" + envDelimiter + "LEVEL", setString(&cfg.Log.Level)},
		{"LOG" + envDelimiter + "FORMAT", setString(&cfg.Log.Format)},
	}
	for _, b := range bindings {
		name := envPrefix + b.key
		value, ok := lookup(name)
		if !ok {
			continue
		}
		if err := b.set(value); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	return nil
}

func setString(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func setInt(dst *int) func(string) error {
	return func(v string) error {
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse int %q", v)
		}
		*dst = parsed
		return nil
	}
}

func setBool(dst *bool) func(string) error {
	return func(v string) error {
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse bool %q", v)
		}
		*dst = parsed
		return nil
	}
}

func setDuration(dst *Duration) func(string) error {
	return func(v string) error {
		parsed, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse duration %q", v)
		}
		*dst = Duration(parsed)
		return nil
	}
}

func setList(dst *[]string) func(string) error {
	return func(v string) error {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		*dst = out
		return nil
	}
}
