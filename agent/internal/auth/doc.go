// Package auth manages the bearer token the agent presents to the collector.
//
// Manager caches one token and its absolute expiry. Token(ctx, creds) returns
// the cached value while now < expiry and otherwise performs one credential
// exchange against the auth URL. Concurrent callers that miss the cache share
// a single in-flight exchange (singleflight). Invalidate drops the cache so
// the next call re-authenticates; the shipper calls it on 401/403.
//
// Every exchange failure is an *AuthError, which callers treat as retryable.
package auth
