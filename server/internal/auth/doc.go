// Package auth issues and checks the bearer tokens used by the collector.
//
// An Issuer exchanges a registered client ID and secret for an HS256 JWT
// whose subject is the client ID. BearerMiddleware rejects requests without
// a valid token with 401; with mode "none" every request passes through,
// which is useful for local development with auth disabled.
package auth
