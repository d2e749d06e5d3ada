// Package shipper batches log events and posts them to the collector.
//
// Shipper.Enqueue is non-blocking: the event is appended to an in-memory
// queue (capacity max_pending; beyond it the oldest events are dropped and
// counted) and, if no drain is running, a drain goroutine is started. At most
// one drain runs at a time; a drain re-checks the queue before exiting, so
// events enqueued while it runs are picked up by the same drain.
//
// A drain takes up to batch_size events from the front, obtains a bearer
// token from the TokenSource and POSTs {logs, source, version}. When a batch
// fails (network error, non-2xx, or an auth failure) exactly that batch is
// put back at the front of the queue, the drain stops, and a retry is
// scheduled with truncated exponential backoff (initial→max, ±25% jitter).
// A later Enqueue also restarts delivery. 401 and 403 responses invalidate the
// cached token first.
//
// Every Enqueue returns a Receipt that resolves once the event's batch has
// been attempted, or when the event is dropped or refused after Close.
// Failures never reach the caller of Enqueue; they are reported to the
// fallback slog.Logger.
package shipper
