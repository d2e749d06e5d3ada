package shipper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/logship/logship/agent/internal/config"
	"github.com/logship/logship/pkg/types"
)

var (
	// ErrDropped resolves the Receipt of an event evicted by the queue cap.
	ErrDropped = errors.New("shipper: event dropped, queue full")

	// ErrClosed resolves the Receipt of an event refused or abandoned by Close.
	ErrClosed = errors.New("shipper: closed")
)

// DeliveryError reports a failed batch POST. StatusCode is zero when no
// response was received.
type DeliveryError struct {
	StatusCode int
	Cause      error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("shipper: delivery failed: status %d: %v", e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("shipper: delivery failed: %v", e.Cause)
}

func (e *DeliveryError) Unwrap() error { return e.Cause }

// TokenSource supplies bearer tokens. *auth.Manager implements it.
type TokenSource interface {
	Token(ctx context.Context, creds types.Credentials) (string, error)
	Invalidate()
}

// Stats is a point-in-time view of the shipper counters.
type Stats struct {
	Enqueued      int64
	Sent          int64
	Dropped       int64
	FailedBatches int64
	DrainRuns     int64
	Pending       int
}

// Option customises a Shipper.
type Option func(*Shipper)

// WithHTTPClient replaces the client used for log requests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Shipper) { s.client = c }
}

// WithLogger sets the fallback sink failures are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(s *Shipper) { s.logger = l }
}

type pending struct {
	event   types.LogEvent
	receipt *Receipt
}

// Shipper owns the pending queue and the single drain goroutine.
// Enqueue is safe for concurrent use.
type Shipper struct {
	cfg    config.AgentConfig
	tokens TokenSource
	creds  func() types.Credentials
	client *http.Client
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	queue     []pending
	draining  bool
	drainDone chan struct{} // closed when the current drain exits
	drainErr  error         // outcome of the most recent drain
	closed    bool
	retry     *time.Timer
	bo        *backoff

	enqueued      atomic.Int64
	sent          atomic.Int64
	dropped       atomic.Int64
	failedBatches atomic.Int64
	drainRuns     atomic.Int64
	active        atomic.Int32
	peakActive    atomic.Int32
}

// New creates a Shipper. creds is called before every token request so
// credential updates apply to the next authentication.
func New(cfg config.AgentConfig, tokens TokenSource, creds func() types.Credentials, opts ...Option) *Shipper {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Shipper{
		cfg:    cfg,
		tokens: tokens,
		creds:  creds,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		logger: slog.Default(),
		ctx:    ctx,
		cancel: cancel,
		bo:     newBackoff(cfg.Retry.Initial, cfg.Retry.Max),
	}
	for _, opt := range opts {
		opt(s)
	}
	if !cfg.Reporting() {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}

// Enqueue appends ev to the pending queue and starts a drain if none is
// running. It never blocks on I/O.
func (s *Shipper) Enqueue(ev types.LogEvent) *Receipt {
	r := newReceipt()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		r.resolve(ErrClosed)
		return r
	}
	s.queue = append(s.queue, pending{event: ev, receipt: r})
	s.enqueued.Add(1)
	s.trimLocked()
	s.kickLocked()
	return r
}

// Flush drives delivery until the queue is empty, a batch fails, or ctx ends.
func (s *Shipper) Flush(ctx context.Context) error {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 && !s.draining {
			s.mu.Unlock()
			return nil
		}
		s.kickLocked()
		if !s.draining {
			// Shut down: nothing can drain any more.
			s.mu.Unlock()
			return ErrClosed
		}
		done := s.drainDone
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
		}

		s.mu.Lock()
		err := s.drainErr
		s.mu.Unlock()
		if err != nil {
			return err
		}
	}
}

// Close refuses new events, flushes within ctx, then aborts any in-flight
// request and waits for the drain goroutine. Events still queued afterwards
// are lost and their Receipts resolve with ErrClosed.
func (s *Shipper) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	s.mu.Unlock()

	err := s.Flush(ctx)

	// Cancel under mu so no drain can be started after wg.Wait begins.
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()

	s.mu.Lock()
	left := len(s.queue)
	for _, p := range s.queue {
		p.receipt.resolve(ErrClosed)
	}
	s.mu.Unlock()

	if left > 0 {
		s.logger.Warn("shipper: closed with undelivered events", "pending", left, "err", err)
	}
	return err
}

// Stats returns the current counters.
func (s *Shipper) Stats() Stats {
	pendingN := s.queued()
	return Stats{
		Enqueued:      s.enqueued.Load(),
		Sent:          s.sent.Load(),
		Dropped:       s.dropped.Load(),
		FailedBatches: s.failedBatches.Load(),
		DrainRuns:     s.drainRuns.Load(),
		Pending:       pendingN,
	}
}

func (s *Shipper) queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// kickLocked starts a drain when the queue is non-empty and none is running.
// s.mu must be held.
func (s *Shipper) kickLocked() {
	if s.draining || len(s.queue) == 0 || s.ctx.Err() != nil {
		return
	}
	s.draining = true
	s.drainDone = make(chan struct{})
	s.wg.Add(1)
	go s.drain(s.drainDone)
}

// trimLocked evicts the oldest events beyond MaxPending. s.mu must be held.
func (s *Shipper) trimLocked() {
	over := len(s.queue) - s.cfg.MaxPending
	if over <= 0 {
		return
	}
	for _, p := range s.queue[:over] {
		p.receipt.resolve(ErrDropped)
	}
	clear(s.queue[:over])
	s.queue = s.queue[over:]
	total := s.dropped.Add(int64(over))
	s.logger.Warn("shipper: queue full, evicted oldest events",
		"evicted", over, "dropped_total", total, "max_pending", s.cfg.MaxPending)
}

// scheduleRetryLocked arms the backoff timer after a failed drain.
// s.mu must be held.
func (s *Shipper) scheduleRetryLocked() time.Duration {
	if s.closed || s.ctx.Err() != nil {
		return 0
	}
	if s.retry != nil {
		s.retry.Stop()
	}
	wait := s.bo.next()
	s.retry = time.AfterFunc(wait, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.retry = nil
		s.kickLocked()
	})
	return wait
}

// drain sends batches until the queue is empty or a batch fails.
func (s *Shipper) drain(done chan struct{}) {
	defer s.wg.Done()
	s.drainRuns.Add(1)
	if n := s.active.Add(1); n > s.peakActive.Load() {
		s.peakActive.Store(n)
	}

	var failure error
	defer func() {
		s.active.Add(-1)
		s.mu.Lock()
		defer s.mu.Unlock()
		s.draining = false
		s.drainErr = failure
		close(done)
		if failure != nil {
			wait := s.scheduleRetryLocked()
			s.logger.Warn("shipper: delivery failed, batch requeued",
				"err", failure, "pending", len(s.queue), "retry_in", wait)
			return
		}
		// Pick up events enqueued after the last empty check.
		s.kickLocked()
	}()

	for {
		if s.queued() == 0 {
			return
		}
		// Events stay queued until a token is in hand.
		token, err := s.tokens.Token(s.ctx, s.creds())
		if err != nil {
			failure = err
			s.failFront(err)
			return
		}
		batch := s.take()
		if len(batch) == 0 {
			return
		}
		if err := s.send(s.ctx, token, batch); err != nil {
			failure = err
			s.restore(batch, err)
			return
		}
		s.complete(batch)
	}
}

// take removes up to BatchSize events from the front of the queue.
func (s *Shipper) take() []pending {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := min(len(s.queue), s.cfg.BatchSize)
	if n == 0 {
		return nil
	}
	batch := make([]pending, n)
	copy(batch, s.queue[:n])
	clear(s.queue[:n])
	s.queue = s.queue[n:]
	return batch
}

// failFront resolves the Receipts of the batch that would have been sent
// when no token could be obtained. The events themselves stay queued.
func (s *Shipper) failFront(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.queue[:min(len(s.queue), s.cfg.BatchSize)] {
		p.receipt.resolve(err)
	}
	s.failedBatches.Add(1)
}

// restore puts exactly the failed batch back at the front, in order.
func (s *Shipper) restore(batch []pending, err error) {
	for _, p := range batch {
		p.receipt.resolve(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(batch[:len(batch):len(batch)], s.queue...)
	s.failedBatches.Add(1)
	s.trimLocked()
}

func (s *Shipper) complete(batch []pending) {
	s.sent.Add(int64(len(batch)))
	for _, p := range batch {
		p.receipt.resolve(nil)
	}
	s.mu.Lock()
	s.bo.reset()
	s.mu.Unlock()
}

// send posts one batch with token. Failures are wrapped in *DeliveryError.
func (s *Shipper) send(ctx context.Context, token string, batch []pending) error {
	payload := types.Batch{
		Logs:    make([]types.LogEvent, len(batch)),
		Source:  s.cfg.Source,
		Version: s.cfg.Version,
	}
	for i, p := range batch {
		payload.Logs[i] = p.event
	}
	body, gzipped, err := s.encode(payload)
	if err != nil {
		return &DeliveryError{Cause: err}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.LogsURL, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Cause: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if gzipped {
		req.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &DeliveryError{Cause: err}
	}
	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		s.logger.Debug("shipper: batch delivered", "events", len(batch))
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// The collector no longer accepts the cached token.
		s.tokens.Invalidate()
	}
	return &DeliveryError{
		StatusCode: resp.StatusCode,
		Cause:      fmt.Errorf("unexpected status: %s", bytes.TrimSpace(msg)),
	}
}

func (s *Shipper) encode(b types.Batch) ([]byte, bool, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, false, fmt.Errorf("encode batch: %w", err)
	}
	if s.cfg.Compression != "gzip" {
		return raw, false, nil
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, false, fmt.Errorf("gzip batch: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, false, fmt.Errorf("gzip batch: %w", err)
	}
	return buf.Bytes(), true, nil
}
