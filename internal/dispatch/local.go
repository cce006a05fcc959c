package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// LocalExecutor calls the embedded host's loopback API at {BaseURL}/{namespace}/{method}.
// A 404 means the host does not offer the command and is not counted against the breaker.
type LocalExecutor struct {
	BaseURL string
	Client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewLocalExecutor opens the breaker after five consecutive failures and probes again after timeout.
func NewLocalExecutor(baseURL string, client *http.Client, timeout time.Duration) *LocalExecutor {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LocalExecutor{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  client,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "local-api",
			MaxRequests: 1,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrNoLocalAPI)
			},
		}),
	}
}

type localResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (e *LocalExecutor) Execute(ctx context.Context, cmd Command) (json.RawMessage, error) {
	out, err := e.breaker.Execute(func() (interface{}, error) {
		return e.call(ctx, cmd)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("local api unavailable (circuit breaker): %w", err)
		}
		return nil, err
	}
	return out.(json.RawMessage), nil
}

// State reports the breaker state for diagnostics.
func (e *LocalExecutor) State() string {
	return e.breaker.State().String()
}

func (e *LocalExecutor) call(ctx context.Context, cmd Command) (json.RawMessage, error) {
	body := cmd.Payload
	if len(body) == 0 {
		body = json.RawMessage("{}")
	}
	url := e.BaseURL + "/" + cmd.Namespace + "/" + cmd.Method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("local api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoLocalAPI
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("local api: read response: %w", err)
	}
	var lr localResponse
	if err := json.Unmarshal(raw, &lr); err != nil {
		return nil, fmt.Errorf("local api: decode response (status %d): %w", resp.StatusCode, err)
	}
	if !lr.Success {
		msg := lr.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("local api rejected %s: %s", cmd.Type(), msg)
	}
	if len(lr.Data) == 0 {
		return json.RawMessage("null"), nil
	}
	return lr.Data, nil
}
