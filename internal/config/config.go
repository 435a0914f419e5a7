package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const EnvPrefix = "BLOG_"

// Config is the service configuration. Values come from the yaml file named
// by BLOG_CONFIG (if any), then BLOG_* environment variables, then flags.
type Config struct {
	Addr     string `yaml:"addr"`
	DiagAddr string `yaml:"diag_addr"`
	Routes   bool   `yaml:"routes"`
	Debug    bool   `yaml:"debug"`

	Database string `yaml:"database"`

	// AnonKey must accompany every request in the apikey header.
	AnonKey string `yaml:"anon_key"`
	// JWTSecret signs access tokens.
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`

	// SubscriberBuffer is the number of change events queued per realtime
	// subscriber before it is dropped.
	SubscriberBuffer int           `yaml:"subscriber_buffer"`
	PingInterval     time.Duration `yaml:"ping_interval"`
}

func Default() Config {
	return Config{
		Addr:             ":3333",
		DiagAddr:         ":9999",
		Database:         "blog.db",
		TokenTTL:         time.Hour,
		SubscriberBuffer: 64,
		PingInterval:     30 * time.Second,
	}
}

// Load returns the defaults overlaid with the file at path (skipped when
// path is empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.Addr = GetEnv(EnvPrefix+"ADDR", cfg.Addr)
	cfg.DiagAddr = GetEnv(EnvPrefix+"DIAG_ADDR", cfg.DiagAddr)
	cfg.Routes = GetEnvBool(EnvPrefix+"ROUTES", cfg.Routes)
	cfg.Debug = GetEnvBool(EnvPrefix+"DEBUG", cfg.Debug)
	cfg.Database = GetEnv(EnvPrefix+"DATABASE", cfg.Database)
	cfg.AnonKey = GetEnv(EnvPrefix+"ANON_KEY", cfg.AnonKey)
	cfg.JWTSecret = GetEnv(EnvPrefix+"JWT_SECRET", cfg.JWTSecret)
	cfg.TokenTTL = GetEnvDuration(EnvPrefix+"TOKEN_TTL", cfg.TokenTTL)
	cfg.PingInterval = GetEnvDuration(EnvPrefix+"PING_INTERVAL", cfg.PingInterval)

	return cfg, nil
}

func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("jwt_secret is required")
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("jwt_secret must be at least 32 bytes")
	}
	if c.AnonKey == "" {
		return errors.New("anon_key is required")
	}
	if c.Database == "" {
		return errors.New("database is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token_ttl must be positive, got %s", c.TokenTTL)
	}
	if c.SubscriberBuffer <= 0 {
		return fmt.Errorf("subscriber_buffer must be positive, got %d", c.SubscriberBuffer)
	}

	return nil
}

// ClientConfig is what a client needs to reach the service.
type ClientConfig struct {
	URL         string        `yaml:"url"`
	AnonKey     string        `yaml:"anon_key"`
	Timeout     time.Duration `yaml:"timeout"`
	SessionFile string        `yaml:"session_file"`
}

// LoadClient reads the client configuration from path (optional) and the
// BLOG_URL, BLOG_ANON_KEY and BLOG_SESSION_FILE variables.
func LoadClient(path string) (ClientConfig, error) {
	cfg := ClientConfig{
		URL:     "http://localhost:3333",
		Timeout: 10 * time.Second,
	}
	if home, err := os.UserHomeDir(); err == nil {
		cfg.SessionFile = home + "/.blogctl/session.yaml"
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	cfg.URL = GetEnv(EnvPrefix+"URL", cfg.URL)
	cfg.AnonKey = GetEnv(EnvPrefix+"ANON_KEY", cfg.AnonKey)
	cfg.SessionFile = GetEnv(EnvPrefix+"SESSION_FILE", cfg.SessionFile)

	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return cfg, fmt.Errorf("invalid url %q", cfg.URL)
	}
	cfg.URL = strings.TrimSuffix(cfg.URL, "/")

	return cfg, nil
}

func GetEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}

	return fallback
}

func GetEnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}

	return b
}

func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}

	return d
}
