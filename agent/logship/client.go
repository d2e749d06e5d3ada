package logship

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/logship/logship/agent/internal/auth"
	"github.com/logship/logship/agent/internal/config"
	"github.com/logship/logship/agent/internal/shipper"
	"github.com/logship/logship/pkg/types"
)

// Stats combines the shipper counters with the number of token exchanges.
type Stats struct {
	shipper.Stats
	TokenFetches int64
}

// Option customises a Client.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	httpClient *http.Client
	context    func() types.ClientContext
	now        func() time.Time
}

// WithLogger sets the fallback sink delivery failures are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithHTTPClient replaces the HTTP client used for both endpoints.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithContextProvider supplies the user agent and current URL stamped on
// each event.
func WithContextProvider(fn func() types.ClientContext) Option {
	return func(o *options) { o.context = fn }
}

// WithClock replaces the time source used for event timestamps and token
// expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Client is the logging entry point shared by an application.
type Client struct {
	cfg     Config
	tokens  *auth.Manager
	shipper *shipper.Shipper
	logger  *slog.Logger
	context func() types.ClientContext
	now     func() time.Time
	creds   atomic.Pointer[types.Credentials]
}

// DefaultConfig returns the built-in client configuration.
func DefaultConfig() Config {
	return config.Defaults()
}

// LoadConfig reads the `agent:` section of a YAML config file.
func LoadConfig(path string) (Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return Config{}, err
	}
	return cfg.Agent, nil
}

// New validates cfg and builds a Client. Invalid settings or credentials are
// returned as *ConfigError.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	o := options{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if !cfg.Reporting() {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.context == nil {
		ua := cfg.UserAgent
		o.context = func() types.ClientContext { return types.ClientContext{UserAgent: ua} }
	}

	tokens := auth.New(auth.Options{
		URL:          cfg.AuthURL,
		DefaultLease: cfg.DefaultLease,
		Timeout:      cfg.RequestTimeout,
		Client:       o.httpClient,
		Logger:       o.logger,
	})
	tokens.SetClock(o.now)

	c := &Client{
		cfg:     cfg,
		tokens:  tokens,
		logger:  o.logger,
		context: o.context,
		now:     o.now,
	}
	creds := cfg.Credentials.Resolve()
	c.creds.Store(&creds)

	shipOpts := []shipper.Option{shipper.WithLogger(o.logger)}
	if o.httpClient != nil {
		shipOpts = append(shipOpts, shipper.WithHTTPClient(o.httpClient))
	}
	c.shipper = shipper.New(cfg, tokens, c.Credentials, shipOpts...)
	return c, nil
}

// Log stamps an event with the current time and client context and queues
// it. level is one of info, warn, error or debug in any case; anything else
// resolves the Receipt with an error and nothing is queued.
func (c *Client) Log(stack, level, pkg, message string) *Receipt {
	lvl, err := types.ParseLevel(level)
	if err != nil {
		c.logger.Warn("logship: dropping event with invalid level",
			"level", level, "stack", stack, "package", pkg)
		return shipper.ResolvedReceipt(err)
	}
	return c.emit(c.now(), stack, lvl, pkg, message)
}

// Debug logs at DEBUG.
func (c *Client) Debug(stack, pkg, message string) *Receipt {
	return c.emit(c.now(), stack, types.LevelDebug, pkg, message)
}

// Info logs at INFO.
func (c *Client) Info(stack, pkg, message string) *Receipt {
	return c.emit(c.now(), stack, types.LevelInfo, pkg, message)
}

// Warn logs at WARN.
func (c *Client) Warn(stack, pkg, message string) *Receipt {
	return c.emit(c.now(), stack, types.LevelWarn, pkg, message)
}

// Error logs at ERROR.
func (c *Client) Error(stack, pkg, message string) *Receipt {
	return c.emit(c.now(), stack, types.LevelError, pkg, message)
}

func (c *Client) emit(t time.Time, stack string, level types.Level, pkg, message string) *Receipt {
	ev := types.NewLogEvent(t, stack, level, pkg, message, c.context())
	return c.shipper.Enqueue(ev)
}

// Credentials returns the identity used for the next authentication.
func (c *Client) Credentials() types.Credentials {
	return *c.creds.Load()
}

// UpdateCredentials merges the non-empty fields of update over the current
// credentials. If the identity changed, the cached token is dropped so the
// next batch authenticates as the new identity.
func (c *Client) UpdateCredentials(update types.Credentials) error {
	cur := c.Credentials()
	next := cur.Merge(update)
	if err := next.Validate(); err != nil {
		return err
	}
	if next == cur {
		return nil
	}
	c.creds.Store(&next)
	c.tokens.Invalidate()
	c.logger.Info("logship: credentials updated", "client_id", next.ClientID)
	return nil
}

// WatchCredentials re-applies the credentials from the config file at path
// each time it changes. It blocks until ctx is cancelled.
func (c *Client) WatchCredentials(ctx context.Context, path string) error {
	return config.Watch(ctx, path, func(cfg *config.Config) {
		if err := c.UpdateCredentials(cfg.Agent.Credentials.Resolve()); err != nil {
			c.logger.Error("logship: ignoring reloaded credentials", "path", path, "err", err)
		}
	})
}

// Flush delivers everything queued, stopping at the first failed batch or
// when ctx ends.
func (c *Client) Flush(ctx context.Context) error {
	return c.shipper.Flush(ctx)
}

// Close flushes and stops the client. When ctx has no deadline the
// configured flush_timeout bounds the flush.
func (c *Client) Close(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok && c.cfg.FlushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.FlushTimeout)
		defer cancel()
	}
	return c.shipper.Close(ctx)
}

// Stats returns the current shipping counters.
func (c *Client) Stats() Stats {
	return Stats{Stats: c.shipper.Stats(), TokenFetches: c.tokens.Fetches()}
}
