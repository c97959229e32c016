package terminal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"tillsync/internal/config"
	"tillsync/internal/domain"
)

// RejectedError is a business-rule rejection from the server. The
// reconciler dead-letters the operation instead of retrying it.
type RejectedError struct {
	Status int
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rejected (%d): %s", e.Status, e.Reason)
}

// Client submits queued operations to the server. Any non-rejection
// failure is transient by definition: the reconciler retries with backoff.
type Client struct {
	BaseURL     string
	TerminalID  string
	TerminalKey string
	HTTP        *http.Client
}

func NewClient(cfg config.TerminalConfig) *Client {
	return &Client{
		BaseURL:     cfg.ServerURL,
		TerminalID:  cfg.ID,
		TerminalKey: cfg.Key,
		HTTP:        &http.Client{Timeout: cfg.SubmitTimeout},
	}
}

// Submit replays one queued operation. nil means committed or already
// applied; *RejectedError means a semantic rejection; anything else is
// transient.
func (c *Client) Submit(ctx context.Context, op *domain.QueuedOperation) error {
	if op.Resource != "inventory" {
		return &RejectedError{Status: 0, Reason: fmt.Sprintf("unsupported resource %q", op.Resource)}
	}

	// Inject the queue-derived idempotency token into the stored payload.
	var body map[string]any
	if err := json.Unmarshal(op.Payload, &body); err != nil {
		return &RejectedError{Status: 0, Reason: "malformed payload"}
	}
	body["idempotency_token"] = op.IdempotencyToken
	raw, err := json.Marshal(body)
	if err != nil {
		return &RejectedError{Status: 0, Reason: "malformed payload"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/v1/inventory/adjust", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Terminal-Id", c.TerminalID)
	req.Header.Set("X-Terminal-Key", c.TerminalKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict ||
		resp.StatusCode == http.StatusBadRequest ||
		resp.StatusCode == http.StatusNotFound ||
		resp.StatusCode == http.StatusUnprocessableEntity:
		return &RejectedError{Status: resp.StatusCode, Reason: rejectionReason(resp.Body)}
	default:
		return fmt.Errorf("server error: status %d", resp.StatusCode)
	}
}

// Probe is the monitor's reachability check.
func (c *Client) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthz: status %d", resp.StatusCode)
	}
	return nil
}

func rejectionReason(r io.Reader) string {
	var body struct {
		Error string `json:"error"`
	}
	raw, err := io.ReadAll(io.LimitReader(r, 4<<10))
	if err == nil && json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error
	}
	return "rejected by server"
}
