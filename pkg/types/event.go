package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Level is the severity of a LogEvent.
type Level string

// The four severities accepted by the collector.
const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// ErrInvalidLevel is returned by ParseLevel for anything outside the four
// supported severities.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel accepts a severity name in any case.
func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToUpper(strings.TrimSpace(s))); l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return l, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLevel, s)
}

// TimestampLayout is RFC 3339 with millisecond precision, always in UTC.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// LogEvent is one structured log line as shipped to the collector.
type LogEvent struct {
	Timestamp string `json:"timestamp"`
	Stack     string `json:"stack"`
	Level     Level  `json:"level"`
	Package   string `json:"package"`
	Message   string `json:"message"`
	UserAgent string `json:"userAgent"`
	URL       string `json:"url"`
}

// ClientContext describes where an event was emitted from.
type ClientContext struct {
	UserAgent string
	URL       string
}

// NewLogEvent stamps an event with t and the given client context.
func NewLogEvent(t time.Time, stack string, level Level, pkg, message string, cc ClientContext) LogEvent {
	return LogEvent{
		Timestamp: t.UTC().Format(TimestampLayout),
		Stack:     stack,
		Level:     level,
		Package:   pkg,
		Message:   message,
		UserAgent: cc.UserAgent,
		URL:       cc.URL,
	}
}

// Batch is the request body posted to the logs endpoint.
type Batch struct {
	Logs    []LogEvent `json:"logs"`
	Source  string     `json:"source"`
	Version string     `json:"version"`
}

// AuthResponse is the body returned by the authentication endpoint.
// ExpiresIn is the lease in seconds; zero means the server omitted it.
type AuthResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn,omitempty"`
}
