// Package logship is the client applications use to ship logs.
//
// A Client is constructed once at process start and passed to every call
// site that logs:
//
//	cfg, err := logship.LoadConfig("config.yaml")
//	if err != nil { ... }            // *logship.ConfigError for bad settings
//	client, err := logship.New(cfg)
//	if err != nil { ... }
//	defer client.Close(context.Background())
//
//	client.Log("backend", "error", "handler", "received nil user")
//	client.Info("backend", "db", "connected")
//
// Log never blocks on the network and never returns delivery failures; it
// returns a Receipt that resolves once the event's batch has been attempted,
// for callers that must know the event left the process. Failures are
// reported to the fallback slog.Logger (WithLogger) unless report_failures is
// off.
//
// UpdateCredentials replaces the identity used for the next authentication;
// WatchCredentials does the same whenever the config file changes. Handler
// adapts the Client to slog, and MetricsHandler exposes the shipping counters
// in the Prometheus text format.
package logship
