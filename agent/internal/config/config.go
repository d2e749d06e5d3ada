package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/logship/logship/pkg/types"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultAuthURL        = "http://20.244.56.144/evaluation-service/auth"
	DefaultLogsURL        = "http://20.244.56.144/evaluation-service/logs"
	DefaultSource         = "url-shortener-app"
	DefaultVersion        = "1.0.0"
	DefaultBatchSize      = 10
	DefaultMaxPending     = 1000
	DefaultRequestTimeout = 10 * time.Second
	DefaultFlushTimeout   = 2 * time.Second
	DefaultLease          = 3600 * time.Second
	DefaultRetryInitial   = 1 * time.Second
	DefaultRetryMax       = 60 * time.Second
	DefaultUserAgent      = "logship-go/1.0"
)

// Config is the top-level configuration file. Only the `agent:` section is
// read by the client; the collector reads `server:` from the same file.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all client-side settings.
type AgentConfig struct {
	// AuthURL is the authentication endpoint credentials are posted to.
	AuthURL string `yaml:"auth_url"`

	// LogsURL is the collector endpoint batches are posted to.
	LogsURL string `yaml:"logs_url"`

	// Source and Version are stamped on every batch.
	Source  string `yaml:"source"`
	Version string `yaml:"version"`

	// BatchSize is the maximum number of events per request.
	BatchSize int `yaml:"batch_size"`

	// MaxPending caps the pending queue; the oldest events are dropped beyond it.
	MaxPending int `yaml:"max_pending"`

	// RequestTimeout bounds each auth and log request.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// FlushTimeout bounds the final flush performed by Close.
	FlushTimeout time.Duration `yaml:"flush_timeout"`

	// DefaultLease is the token lifetime used when the auth response omits expiresIn.
	DefaultLease time.Duration `yaml:"default_lease"`

	// Retry controls the backoff between failed drains.
	Retry RetryConfig `yaml:"retry"`

	// Compression is one of: none | gzip.
	Compression string `yaml:"compression"`

	// UserAgent is stamped on events when the caller supplies no client context.
	UserAgent string `yaml:"user_agent"`

	// ReportFailures sends delivery failures to the local fallback logger.
	// Nil means true.
	ReportFailures *bool `yaml:"report_failures"`

	// Credentials identify the client to AuthURL.
	Credentials CredentialsConfig `yaml:"credentials"`
}

// RetryConfig is the truncated exponential backoff applied after a failed drain.
type RetryConfig struct {
	Initial time.Duration `yaml:"initial"`
	Max     time.Duration `yaml:"max"`
}

// CredentialsConfig mirrors types.Credentials. Secrets may be given inline or
// via the named environment variables; the environment wins when set.
type CredentialsConfig struct {
	types.Credentials `yaml:",inline"`

	// AccessCodeEnv names the environment variable holding the access code.
	AccessCodeEnv string `yaml:"access_code_env"`

	// ClientSecretEnv names the environment variable holding the client secret.
	ClientSecretEnv string `yaml:"client_secret_env"`
}

// Resolve returns the credentials with environment secrets applied, merged
// over types.DefaultCredentials.
func (c CredentialsConfig) Resolve() types.Credentials {
	creds := c.Credentials
	if c.AccessCodeEnv != "" {
		if v := os.Getenv(c.AccessCodeEnv); v != "" {
			creds.AccessCode = v
		}
	}
	if c.ClientSecretEnv != "" {
		if v := os.Getenv(c.ClientSecretEnv); v != "" {
			creds.ClientSecret = v
		}
	}
	return types.DefaultCredentials.Merge(creds)
}

// Reporting reports whether failures go to the fallback logger.
func (a AgentConfig) Reporting() bool {
	return a.ReportFailures == nil || *a.ReportFailures
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{Agent: Defaults()}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := Validate(cfg.Agent); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns an AgentConfig pre-populated with default values.
func Defaults() AgentConfig {
	return AgentConfig{
		AuthURL:        DefaultAuthURL,
		LogsURL:        DefaultLogsURL,
		Source:         DefaultSource,
		Version:        DefaultVersion,
		BatchSize:      DefaultBatchSize,
		MaxPending:     DefaultMaxPending,
		RequestTimeout: DefaultRequestTimeout,
		FlushTimeout:   DefaultFlushTimeout,
		DefaultLease:   DefaultLease,
		Retry: RetryConfig{
			Initial: DefaultRetryInitial,
			Max:     DefaultRetryMax,
		},
		Compression: "none",
		UserAgent:   DefaultUserAgent,
	}
}

// Validate checks required fields and structural constraints. Every failure
// is a *types.ConfigError.
func Validate(a AgentConfig) error {
	for _, u := range []struct{ field, value string }{
		{"agent.auth_url", a.AuthURL},
		{"agent.logs_url", a.LogsURL},
	} {
		if u.value == "" {
			return &types.ConfigError{Field: u.field, Message: "is required"}
		}
		parsed, err := url.Parse(u.value)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return &types.ConfigError{Field: u.field, Message: fmt.Sprintf("%q is not an absolute URL", u.value)}
		}
	}
	if a.Source == "" {
		return &types.ConfigError{Field: "agent.source", Message: "is required"}
	}
	if a.BatchSize <= 0 {
		return &types.ConfigError{Field: "agent.batch_size", Message: "must be positive"}
	}
	if a.MaxPending < a.BatchSize {
		return &types.ConfigError{Field: "agent.max_pending", Message: "must be at least batch_size"}
	}
	if a.RequestTimeout <= 0 {
		return &types.ConfigError{Field: "agent.request_timeout", Message: "must be positive"}
	}
	if a.FlushTimeout < 0 {
		return &types.ConfigError{Field: "agent.flush_timeout", Message: "must not be negative"}
	}
	if a.DefaultLease <= 0 {
		return &types.ConfigError{Field: "agent.default_lease", Message: "must be positive"}
	}
	if a.Retry.Initial <= 0 || a.Retry.Max < a.Retry.Initial {
		return &types.ConfigError{Field: "agent.retry", Message: "needs 0 < initial <= max"}
	}
	switch a.Compression {
	case "none", "gzip", "":
	default:
		return &types.ConfigError{Field: "agent.compression", Message: fmt.Sprintf("unknown value %q: want none|gzip", a.Compression)}
	}
	return a.Credentials.Resolve().Validate()
}
