// Package config loads the collector configuration from the `server:` section
// of config.yaml (the `agent:` key is ignored by the collector binary).
//
// Config fields:
//   - HTTPPort: listen port (default 8080)
//   - AuthPath / LogsPath: endpoint paths the client posts to
//   - Auth.Mode: "jwt" or "none"
//   - Auth.SigningKeyEnv: environment variable holding the HMAC key
//   - Auth.TokenLease: lifetime of issued tokens (default 1h)
//   - Auth.Clients: registered client IDs and their secret env vars
//   - Store.Retention: how long received batches are kept (default 15m)
//
// Load(path) applies defaults before unmarshalling, then validates.
package config
