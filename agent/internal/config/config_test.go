package config

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/logship/logship/pkg/types"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
agent:
  auth_url: "http://localhost:8080/evaluation-service/auth"
  logs_url: "http://localhost:8080/evaluation-service/logs"
  source: shortener
  batch_size: 5
  max_pending: 50
  flush_timeout: 500ms
  compression: gzip
  credentials:
    email: dev@example.com
    client_id: cid
`
	cfg := loadFromString(t, yaml)

	if cfg.Agent.LogsURL != "http://localhost:8080/evaluation-service/logs" {
		t.Errorf("logs_url: got %q", cfg.Agent.LogsURL)
	}
	if cfg.Agent.BatchSize != 5 {
		t.Errorf("batch_size: got %d", cfg.Agent.BatchSize)
	}
	if cfg.Agent.FlushTimeout != 500*time.Millisecond {
		t.Errorf("flush_timeout: got %v", cfg.Agent.FlushTimeout)
	}
	if cfg.Agent.Compression != "gzip" {
		t.Errorf("compression: got %q", cfg.Agent.Compression)
	}
	creds := cfg.Agent.Credentials.Resolve()
	if creds.Email != "dev@example.com" || creds.ClientID != "cid" {
		t.Errorf("credentials: got %+v", creds)
	}
	if creds.Name != types.DefaultCredentials.Name {
		t.Errorf("credentials.name should fall back to default, got %q", creds.Name)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, "agent: {}\n")

	if cfg.Agent.BatchSize != DefaultBatchSize {
		t.Errorf("default batch_size: got %d, want %d", cfg.Agent.BatchSize, DefaultBatchSize)
	}
	if cfg.Agent.DefaultLease != DefaultLease {
		t.Errorf("default lease: got %v, want %v", cfg.Agent.DefaultLease, DefaultLease)
	}
	if cfg.Agent.Source != DefaultSource || cfg.Agent.Version != DefaultVersion {
		t.Errorf("source/version: got %q/%q", cfg.Agent.Source, cfg.Agent.Version)
	}
	if !cfg.Agent.Reporting() {
		t.Error("report_failures should default to true")
	}
}

func TestLoad_ReportFailuresOff(t *testing.T) {
	cfg := loadFromString(t, "agent:\n  report_failures: false\n")
	if cfg.Agent.Reporting() {
		t.Error("report_failures: false was ignored")
	}
}

func TestLoad_InvalidIsConfigError(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"relative url", "agent:\n  logs_url: /logs\n", "agent.logs_url"},
		{"zero batch", "agent:\n  batch_size: 0\n", "agent.batch_size"},
		{"cap below batch", "agent:\n  batch_size: 10\n  max_pending: 3\n", "agent.max_pending"},
		{"bad compression", "agent:\n  compression: brotli\n", "agent.compression"},
		{"bad retry", "agent:\n  retry:\n    initial: 5s\n    max: 1s\n", "agent.retry"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadStringErr(t, tc.yaml)
			var cfgErr *types.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("got %v, want *types.ConfigError", err)
			}
			if cfgErr.Field != tc.field {
				t.Errorf("field: got %q, want %q", cfgErr.Field, tc.field)
			}
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := loadStringErr(t, "agent: [unclosed\n")
	if err == nil {
		t.Fatal("expected parse error, got nil")
	}
}

func TestCredentialsConfig_EnvSecrets(t *testing.T) {
	t.Setenv("TEST_CLIENT_SECRET", "from-env")
	t.Setenv("TEST_ACCESS_CODE", "code-env")
	c := CredentialsConfig{
		Credentials:     types.Credentials{ClientSecret: "inline"},
		ClientSecretEnv: "TEST_CLIENT_SECRET",
		AccessCodeEnv:   "TEST_ACCESS_CODE",
	}
	got := c.Resolve()
	if got.ClientSecret != "from-env" {
		t.Errorf("ClientSecret: got %q, want from-env", got.ClientSecret)
	}
	if got.AccessCode != "code-env" {
		t.Errorf("AccessCode: got %q, want code-env", got.AccessCode)
	}
}

func TestCredentialsConfig_EnvUnsetKeepsInline(t *testing.T) {
	c := CredentialsConfig{
		Credentials:     types.Credentials{ClientSecret: "inline"},
		ClientSecretEnv: "TEST_UNSET_SECRET_VAR",
	}
	if got := c.Resolve().ClientSecret; got != "inline" {
		t.Errorf("ClientSecret: got %q, want inline", got)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("agent:\n  credentials:\n    email: one@example.com\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan *Config, 4)
	go Watch(ctx, path, func(c *Config) { got <- c }) //nolint:errcheck

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("agent:\n  credentials:\n    email: two@example.com\n"), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	// A rewrite may surface as truncate then write; wait for the final content.
	for {
		select {
		case c := <-got:
			if c.Agent.Credentials.Resolve().Email == "two@example.com" {
				return
			}
		case <-ctx.Done():
			t.Fatal("Watch did not report the change")
		}
	}
}

func TestWatch_AtomicRenameAndInvalidUpdates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("agent:\n  credentials:\n    email: one@example.com\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan *Config, 4)
	go Watch(ctx, path, func(c *Config) { got <- c }) //nolint:errcheck
	time.Sleep(100 * time.Millisecond)

	// An invalid save is skipped.
	if err := os.WriteFile(path, []byte("agent:\n  batch_size: 0\n"), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	// Editors save by writing a temp file and renaming it over the original.
	tmp := filepath.Join(dir, ".config.yaml.swp")
	if err := os.WriteFile(tmp, []byte("agent:\n  credentials:\n    email: three@example.com\n"), 0o600); err != nil {
		t.Fatalf("write temp: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("rename: %v", err)
	}

	select {
	case c := <-got:
		if email := c.Agent.Credentials.Resolve().Email; email != "three@example.com" {
			t.Errorf("first reload: got email %q, want three@example.com", email)
		}
	case <-ctx.Done():
		t.Fatal("Watch did not report the renamed file")
	}
}

func TestWatch_ReloadLogOmitsCredentials(t *testing.T) {
	var buf syncBuffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("agent:\n  credentials:\n    email: one@example.com\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got := make(chan *Config, 4)
	go Watch(ctx, path, func(c *Config) { got <- c }) //nolint:errcheck

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("agent:\n  credentials:\n    email: private@example.com\n    client_secret: hunter2\n"), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	select {
	case <-got:
	case <-ctx.Done():
		t.Fatal("Watch did not report the change")
	}

	out := buf.String()
	if !strings.Contains(out, "config: reloaded") {
		t.Fatalf("reload not logged: %q", out)
	}
	for _, secret := range []string{"private@example.com", "hunter2"} {
		if strings.Contains(out, secret) {
			t.Errorf("reload log leaks %q: %s", secret, out)
		}
	}
}

// syncBuffer is a bytes.Buffer safe for the watcher goroutine and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}
