package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/logship/logship/pkg/types"
)

// Entry is a batch together with who sent it and when it arrived.
type Entry struct {
	ID         string
	Subject    string
	Version    string
	Logs       []types.LogEvent
	ReceivedAt time.Time
	seq        uint64
}

// Store is a thread-safe in-memory batch store, keyed by batch source.
// A background goroutine (Run) periodically evicts batches older than the
// configured retention.
type Store struct {
	mu        sync.RWMutex
	data      map[string][]*Entry
	seq       uint64
	retention time.Duration
	now       func() time.Time // injectable for deterministic tests
}

// New creates a Store. A zero retention keeps batches forever.
func New(retention time.Duration) *Store {
	return &Store{
		data:      make(map[string][]*Entry),
		retention: retention,
		now:       time.Now,
	}
}

// Append records b as received now and returns the stored entry.
func (s *Store) Append(id, subject string, b types.Batch) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	e := &Entry{
		ID:         id,
		Subject:    subject,
		Version:    b.Version,
		Logs:       b.Logs,
		ReceivedAt: s.now(),
		seq:        s.seq,
	}
	s.data[b.Source] = append(s.data[b.Source], e)
	return *e
}

// List returns the live batches for source in arrival order. An empty source
// lists every source, still in global arrival order.
func (s *Store) List(source string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	collect := func(entries []*Entry) {
		for _, e := range entries {
			if s.live(e) {
				out = append(out, *e)
			}
		}
	}
	if source != "" {
		collect(s.data[source])
		return out
	}
	for _, entries := range s.data {
		collect(entries)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Events flattens List(source) into individual events.
func (s *Store) Events(source string) []types.LogEvent {
	var out []types.LogEvent
	for _, e := range s.List(source) {
		out = append(out, e.Logs...)
	}
	return out
}

// Sources returns the sources with at least one stored batch, sorted.
func (s *Store) Sources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for src := range s.data {
		out = append(out, src)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of batches and events currently held, including
// ones past retention that have not been evicted yet.
func (s *Store) Count() (batches, events int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entries := range s.data {
		batches += len(entries)
		for _, e := range entries {
			events += len(e.Logs)
		}
	}
	return batches, events
}

// Retention returns the configured retention.
func (s *Store) Retention() time.Duration { return s.retention }

// Evict removes batches received at or before now minus retention and
// returns how many were removed.
func (s *Store) Evict(now time.Time) int {
	if s.retention <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.retention)
	removed := 0
	for src, entries := range s.data {
		// Entries are in arrival order, so the stale ones form a prefix.
		i := sort.Search(len(entries), func(i int) bool { return entries[i].ReceivedAt.After(cutoff) })
		removed += i
		if i == len(entries) {
			delete(s.data, src)
			continue
		}
		s.data[src] = entries[i:]
	}
	return removed
}

// Run starts the background eviction loop. It ticks at half the retention
// (minimum 1 second) and blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	if s.retention <= 0 {
		<-ctx.Done()
		return
	}
	interval := max(s.retention/2, time.Second)
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted expired batches", "count", n)
			}
		}
	}
}

func (s *Store) live(e *Entry) bool {
	return s.retention <= 0 || e.ReceivedAt.After(s.now().Add(-s.retention))
}
