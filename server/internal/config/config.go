package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the collector configuration.
const (
	DefaultHTTPPort   = 8080
	DefaultAuthPath   = "/evaluation-service/auth"
	DefaultLogsPath   = "/evaluation-service/logs"
	DefaultTokenLease = time.Hour
	DefaultRetention  = 15 * time.Minute
	DefaultMaxBody    = 1 << 20
)

// Config holds the collector configuration parsed from the `server:` section
// of config.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all collector settings.
type ServerConfig struct {
	// HTTPPort is the port every endpoint listens on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// AuthPath is where clients exchange credentials for a token.
	AuthPath string `yaml:"auth_path"`

	// LogsPath is where clients post batches.
	LogsPath string `yaml:"logs_path"`

	// MaxBody caps the decoded size of a request body in bytes.
	MaxBody int64 `yaml:"max_body"`

	Auth  AuthConfig  `yaml:"auth"`
	Store StoreConfig `yaml:"store"`
}

// AuthConfig controls token issuance and verification.
type AuthConfig struct {
	// Mode is one of: jwt | none. With "none" the logs endpoint accepts
	// requests without a bearer token.
	Mode string `yaml:"mode"`

	// SigningKeyEnv names the environment variable holding the HMAC key.
	// When it resolves empty the collector signs with a random per-process key.
	SigningKeyEnv string `yaml:"signing_key_env"`

	// TokenLease is the lifetime of issued tokens, reported as expiresIn.
	TokenLease time.Duration `yaml:"token_lease"`

	// Clients lists the identities allowed to authenticate. Empty accepts any
	// client ID.
	Clients []ClientConfig `yaml:"clients"`
}

// ClientConfig is one registered client.
type ClientConfig struct {
	ClientID string `yaml:"client_id"`

	// ClientSecretEnv names the environment variable holding the secret.
	ClientSecretEnv string `yaml:"client_secret_env"`
}

// Secret returns the client secret resolved from the environment.
func (c ClientConfig) Secret() string {
	if c.ClientSecretEnv == "" {
		return ""
	}
	return os.Getenv(c.ClientSecretEnv)
}

// SigningKey returns the HMAC key resolved from the environment.
func (a AuthConfig) SigningKey() []byte {
	if a.SigningKeyEnv == "" {
		return nil
	}
	return []byte(os.Getenv(a.SigningKeyEnv))
}

// Secrets maps each registered client ID to its resolved secret.
func (a AuthConfig) Secrets() map[string]string {
	out := make(map[string]string, len(a.Clients))
	for _, c := range a.Clients {
		out[c.ClientID] = c.Secret()
	}
	return out
}

// StoreConfig controls retention of received batches.
type StoreConfig struct {
	// Retention is how long a batch is kept after it was received. Zero keeps
	// batches until the process exits.
	Retention time.Duration `yaml:"retention"`
}

// Load reads and parses the config file at path, returning the collector configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	return cfg, nil
}

// Defaults returns the collector configuration used when no file is given.
func Defaults() *Config {
	return defaults()
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			AuthPath: DefaultAuthPath,
			LogsPath: DefaultLogsPath,
			MaxBody:  DefaultMaxBody,
			Auth: AuthConfig{
				Mode:       "jwt",
				TokenLease: DefaultTokenLease,
			},
			Store: StoreConfig{
				Retention: DefaultRetention,
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	for _, p := range []struct{ field, value string }{
		{"server.auth_path", s.AuthPath},
		{"server.logs_path", s.LogsPath},
	} {
		if !strings.HasPrefix(p.value, "/") {
			return fmt.Errorf("%s %q must start with /", p.field, p.value)
		}
		if strings.HasPrefix(p.value, "/api/") {
			return fmt.Errorf("%s %q collides with the query API", p.field, p.value)
		}
	}
	if s.AuthPath == s.LogsPath {
		return fmt.Errorf("server.auth_path and server.logs_path must differ")
	}
	if s.MaxBody <= 0 {
		return fmt.Errorf("server.max_body must be positive")
	}
	switch s.Auth.Mode {
	case "jwt", "none":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want jwt|none", s.Auth.Mode)
	}
	if s.Auth.TokenLease <= 0 {
		return fmt.Errorf("server.auth.token_lease must be positive")
	}
	seen := make(map[string]bool, len(s.Auth.Clients))
	for i, c := range s.Auth.Clients {
		if c.ClientID == "" {
			return fmt.Errorf("server.auth.clients[%d].client_id is required", i)
		}
		if seen[c.ClientID] {
			return fmt.Errorf("server.auth.clients[%d]: duplicate client_id %q", i, c.ClientID)
		}
		seen[c.ClientID] = true
	}
	if s.Store.Retention < 0 {
		return fmt.Errorf("server.store.retention must not be negative")
	}
	return nil
}
