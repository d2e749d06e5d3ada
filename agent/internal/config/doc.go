// Package config loads and watches the agent configuration file.
//
// Top-level types:
//   - Config{Agent}: the `agent:` section of config.yaml
//   - AgentConfig: auth_url, logs_url, source, version, batch_size,
//     max_pending, request_timeout, flush_timeout, default_lease, retry,
//     compression, user_agent, report_failures, credentials
//   - CredentialsConfig: the six credential fields plus access_code_env and
//     client_secret_env; Resolve() applies the environment and merges over
//     types.DefaultCredentials
//
// Load(path) reads the YAML file, applies defaults (batch 10, queue cap 1000,
// lease 3600s, 2s flush), then validates. Validation failures are
// *types.ConfigError so startup code can tell them apart from I/O errors.
//
// Watch(ctx, path, onChange) watches the file's directory with fsnotify so
// atomic-save renames are seen, and reloads once per burst of events.
package config
