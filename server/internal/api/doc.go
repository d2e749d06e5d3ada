// Package api implements the collector's HTTP surface.
//
// New(cfg, store, issuer) returns an http.Handler that serves:
//
//	POST <auth_path>       credentials in, {"token","expiresIn"} out
//	POST <logs_path>       a batch in (gzip accepted); bearer token required in jwt mode
//	GET  /api/v1/health    status plus stored batch and event counts
//	GET  /api/v1/logs      stored events, optionally filtered with ?source=
//
// Responses are JSON. Wrong methods get 405 and malformed bodies get 400.
package api
