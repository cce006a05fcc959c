package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RemoteExecutor posts commands to the folio service. The command id is sent as the
// Idempotency-Key so a retried command is answered from the replay cache.
type RemoteExecutor struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewRemoteExecutor(baseURL, token string, timeout time.Duration) *RemoteExecutor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RemoteExecutor{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: timeout},
	}
}

type remoteEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code   int    `json:"code"`
		Reason string `json:"reason"`
	} `json:"error"`
}

func (e *RemoteExecutor) Execute(ctx context.Context, cmd Command) (json.RawMessage, error) {
	body := cmd.Payload
	if len(body) == 0 {
		body = json.RawMessage("{}")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+cmd.Path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.Token != "" {
		req.Header.Set("Authorization", "Bearer "+e.Token)
	}
	if cmd.ID != "" {
		req.Header.Set("Idempotency-Key", cmd.ID)
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote api: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("remote api: read response: %w", err)
	}
	var env remoteEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("remote api: decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 || env.Status == "error" {
		reason := http.StatusText(resp.StatusCode)
		if env.Error != nil && env.Error.Reason != "" {
			reason = env.Error.Reason
		}
		if env.Message != "" {
			return nil, fmt.Errorf("%s: %s", reason, env.Message)
		}
		return nil, fmt.Errorf("remote api: %s", reason)
	}
	return env.Data, nil
}
