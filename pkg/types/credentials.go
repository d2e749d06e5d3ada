package types

import "fmt"

// Credentials identifies the client to the authentication endpoint.
// The JSON shape is the body posted to the auth URL.
type Credentials struct {
	Email        string `json:"email" yaml:"email"`
	Name         string `json:"name" yaml:"name"`
	RollNo       string `json:"rollNo" yaml:"roll_no"`
	AccessCode   string `json:"accessCode" yaml:"access_code"`
	ClientID     string `json:"clientID" yaml:"client_id"`
	ClientSecret string `json:"clientSecret" yaml:"client_secret"`
}

// DefaultCredentials are the placeholder credentials used until the real
// identity is supplied.
var DefaultCredentials = Credentials{
	Email:        "student@example.com",
	Name:         "Student Name",
	RollNo:       "123456789",
	AccessCode:   "ACCESS_CODE",
	ClientID:     "CLIENT_ID",
	ClientSecret: "CLIENT_SECRET",
}

// Merge returns c with every non-empty field of update applied over it.
// Empty fields in update keep the value from c, so the result is never
// partially blank when c is complete.
func (c Credentials) Merge(update Credentials) Credentials {
	out := c
	if update.Email != "" {
		out.Email = update.Email
	}
	if update.Name != "" {
		out.Name = update.Name
	}
	if update.RollNo != "" {
		out.RollNo = update.RollNo
	}
	if update.AccessCode != "" {
		out.AccessCode = update.AccessCode
	}
	if update.ClientID != "" {
		out.ClientID = update.ClientID
	}
	if update.ClientSecret != "" {
		out.ClientSecret = update.ClientSecret
	}
	return out
}

// Validate reports the first missing field as a *ConfigError.
func (c Credentials) Validate() error {
	fields := []struct {
		name, value string
	}{
		{"email", c.Email},
		{"name", c.Name},
		{"roll_no", c.RollNo},
		{"access_code", c.AccessCode},
		{"client_id", c.ClientID},
		{"client_secret", c.ClientSecret},
	}
	for _, f := range fields {
		if f.value == "" {
			return &ConfigError{Field: "credentials." + f.name, Message: "is required"}
		}
	}
	return nil
}

// Redacted returns a copy safe to log.
func (c Credentials) Redacted() Credentials {
	out := c
	if out.ClientSecret != "" {
		out.ClientSecret = "***"
	}
	if out.AccessCode != "" {
		out.AccessCode = "***"
	}
	return out
}

// ConfigError reports malformed configuration or credentials. Unlike delivery
// and authentication failures it is not retryable and should stop startup.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Message
	}
	return fmt.Sprintf("config: %s %s", e.Field, e.Message)
}
