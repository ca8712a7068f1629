package audit

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Actions recorded by the authentication flow.
const (
	ActionLogin        = "oauth2.login"
	ActionInvalidState = "oauth2.invalid_state"
	ActionRefresh      = "oauth2.refresh"
)

// Event represents an audit log event.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Action    string    `json:"action"`
	User      string    `json:"user,omitempty"`
	Target    string    `json:"target,omitempty"`
	Details   string    `json:"details,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

var auditLogger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// SetOutput replaces the audit destination.
func SetOutput(l zerolog.Logger) {
	auditLogger = l
}

// Log records an audit event. service is the provider name, target the session or
// credential key the event concerns.
func Log(service, action, user, target, details string, success bool, err error) {
	event := Event{
		Timestamp: time.Now().UTC(),
		Service:   service,
		Action:    action,
		User:      user,
		Target:    target,
		Details:   details,
		Success:   success,
	}
	if err != nil {
		event.Error = err.Error()
	}

	entry, marshalErr := json.Marshal(event)
	if marshalErr != nil {
		log.Error().Err(marshalErr).Msg("Failed to marshal audit event to JSON")
		return
	}

	level := zerolog.InfoLevel
	if !success {
		level = zerolog.WarnLevel
	}
	auditLogger.WithLevel(level).RawJSON("audit_event", entry).Msg("")
}
