// Package types defines the wire types shared by the logship agent and the
// development collector: credentials, log events, batch payloads and the
// authentication response. Field names follow the collector's JSON contract.
package types
