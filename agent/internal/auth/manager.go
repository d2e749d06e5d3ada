package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/logship/logship/pkg/types"
)

// AuthError reports a failed credential exchange. StatusCode is zero when the
// request never got a response.
type AuthError struct {
	StatusCode int
	Cause      error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("auth: authentication failed: status %d: %v", e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("auth: authentication failed: %v", e.Cause)
}

func (e *AuthError) Unwrap() error { return e.Cause }

// Token is a bearer token together with its absolute expiry.
type Token struct {
	Value  string
	Expiry time.Time
}

// Valid reports whether the token is usable at now.
func (t Token) Valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.Expiry)
}

// Options configures a Manager.
type Options struct {
	// URL is the authentication endpoint.
	URL string

	// DefaultLease is used when the response omits expiresIn.
	DefaultLease time.Duration

	// Timeout bounds one exchange. Zero means 10s.
	Timeout time.Duration

	// Client overrides the HTTP client. Nil builds one with Timeout.
	Client *http.Client

	// Logger receives token refresh events. Nil means slog.Default().
	Logger *slog.Logger
}

// Manager owns the cached token. The zero value is not usable; call New.
type Manager struct {
	url     string
	lease   time.Duration
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
	now     func() time.Time // injectable for deterministic tests

	mu    sync.Mutex
	token Token
	gen   uint64 // bumped by Invalidate; an exchange only caches under its own gen

	group   singleflight.Group
	fetches atomic.Int64
}

// New creates a Manager for the given options.
func New(opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.DefaultLease <= 0 {
		opts.DefaultLease = time.Hour
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		url:     opts.URL,
		lease:   opts.DefaultLease,
		timeout: opts.Timeout,
		client:  client,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock replaces the time source. It is meant for tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Token returns a currently valid token value for creds, authenticating only
// when the cache is empty or expired.
func (m *Manager) Token(ctx context.Context, creds types.Credentials) (string, error) {
	tok, gen, ok := m.cached()
	if ok {
		return tok, nil
	}

	// Callers arriving after an Invalidate must not join an exchange that
	// started before it.
	ch := m.group.DoChan(strconv.FormatUint(gen, 10), func() (interface{}, error) {
		// Another caller may have refreshed while we queued for the group.
		if tok, _, ok := m.cached(); ok {
			return tok, nil
		}
		// The exchange is shared, so one caller's cancellation must not abort it.
		return m.fetch(context.WithoutCancel(ctx), creds, gen)
	})

	select {
	case <-ctx.Done():
		return "", &AuthError{Cause: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate clears the cached token so the next Token call re-authenticates.
// An exchange already in flight still answers its own callers but its token
// is not cached.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = Token{}
	m.gen++
}

// Current returns the cached token, valid or not.
func (m *Manager) Current() Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Fetches returns the number of credential exchanges attempted.
func (m *Manager) Fetches() int64 {
	return m.fetches.Load()
}

func (m *Manager) cached() (string, uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token.Valid(m.now()) {
		return m.token.Value, m.gen, true
	}
	return "", m.gen, false
}

func (m *Manager) fetch(ctx context.Context, creds types.Credentials, gen uint64) (string, error) {
	m.fetches.Add(1)

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	body, err := json.Marshal(creds)
	if err != nil {
		return "", &AuthError{Cause: fmt.Errorf("encode credentials: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return "", &AuthError{Cause: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", &AuthError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &AuthError{
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("unexpected status: %s", bytes.TrimSpace(msg)),
		}
	}

	var ar types.AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return "", &AuthError{StatusCode: resp.StatusCode, Cause: fmt.Errorf("decode response: %w", err)}
	}
	if ar.Token == "" {
		return "", &AuthError{StatusCode: resp.StatusCode, Cause: fmt.Errorf("response carried no token")}
	}

	lease := m.lease
	if ar.ExpiresIn > 0 {
		lease = time.Duration(ar.ExpiresIn) * time.Second
	}

	m.mu.Lock()
	stale := gen != m.gen
	if !stale {
		m.token = Token{Value: ar.Token, Expiry: m.now().Add(lease)}
	}
	m.mu.Unlock()

	if stale {
		m.logger.Debug("auth: discarding token from invalidated exchange", "client_id", creds.ClientID)
	} else {
		m.logger.Debug("auth: token refreshed", "client_id", creds.ClientID, "lease", lease)
	}
	return ar.Token, nil
}
