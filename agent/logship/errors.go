package logship

import (
	"github.com/logship/logship/agent/internal/auth"
	"github.com/logship/logship/agent/internal/config"
	"github.com/logship/logship/agent/internal/shipper"
	"github.com/logship/logship/pkg/types"
)

// Re-exported so callers can use errors.As and configure the client without
// importing internal packages.
type (
	Config            = config.AgentConfig
	RetryConfig       = config.RetryConfig
	CredentialsConfig = config.CredentialsConfig
	Receipt           = shipper.Receipt
	AuthError         = auth.AuthError
	DeliveryError     = shipper.DeliveryError
	ConfigError       = types.ConfigError
)

var (
	ErrDropped = shipper.ErrDropped
	ErrClosed  = shipper.ErrClosed
)
