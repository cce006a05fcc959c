// Package dispatch runs folio commands against the embedded host's local API when one is
// present and falls back to the remote service otherwise.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
)

// Source tells the caller which backend produced a Result.
type Source string

const (
	// SourceOffline means the local API accepted the command and it was journaled.
	SourceOffline Source = "offline"
	// SourceBrowser means no local executor is configured; the remote service handled it.
	SourceBrowser Source = "browser"
	// SourceNoLocalAPI means the local host lacks the namespace or method.
	SourceNoLocalAPI Source = "no-local-api"
	// SourceOfflineError means the local call failed and the remote service was used instead.
	SourceOfflineError Source = "offline-error"
)

// ErrNoLocalAPI is returned by a local executor whose host does not expose the command.
var ErrNoLocalAPI = errors.New("local api not available")

// Command is one operation addressed to both backends. Namespace and Method name the local
// API entry point; Path is the remote endpoint the same payload is posted to.
type Command struct {
	ID        string            `json:"id"`
	Namespace string            `json:"namespace"`
	Method    string            `json:"method"`
	Path      string            `json:"path"`
	EntityIDs map[string]string `json:"entity_ids,omitempty"`
	Payload   json.RawMessage   `json:"payload"`
}

// Type is the journal event type, e.g. folio.postAdjustment.
func (c Command) Type() string {
	return c.Namespace + "." + c.Method
}

func (c Command) validate() error {
	if c.Namespace == "" || c.Method == "" {
		return errors.New("command namespace and method are required")
	}
	if c.Path == "" {
		return errors.New("command path is required")
	}
	return nil
}

// Executor runs a command and returns the backend's data payload.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (json.RawMessage, error)
}

// Result never carries a Go error; Error is empty on success.
type Result struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
	Source Source          `json:"source"`
}

func (r Result) OK() bool { return r.Error == "" }
