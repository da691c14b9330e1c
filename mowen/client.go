// Package mowen is the client for the Mowen open API: note creation and
// editing, visibility, the two-phase asset upload protocol, and
// connection testing.
//
// Every API call goes through the shared pacer when one is configured,
// so the server's minimum inter-request spacing holds globally no
// matter how many callers are in flight. Responses use an envelope
// {code, message, data}; a non-zero code is a failure even when the
// HTTP status says 200.
package mowen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/yult97/mowen-plugin-sub000/pacer"
)

// DefaultBaseURL is the production API origin.
const DefaultBaseURL = "https://open.mowen.cn"

const maxResponseBytes = 1 << 20

// Config configures the API client.
type Config struct {
	BaseURL string        // default DefaultBaseURL
	APIKey  string        // bearer token, required
	Timeout time.Duration // per-request. Default: 30s.
	Pacer   *pacer.Pacer  // gates every API call when set
	Client  *http.Client  // optional, built from Timeout otherwise
	Logger  *slog.Logger
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Client == nil {
		c.Client = &http.Client{Timeout: c.Timeout}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client talks to the Mowen open API.
type Client struct {
	cfg Config
}

// NewClient creates an API client.
func NewClient(cfg Config) *Client {
	cfg.defaults()
	return &Client{cfg: cfg}
}

// envelope is the response wrapper on every API endpoint.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// errPayload is the part of an error response worth keeping: a note may
// have been created even though the call reported failure.
type errPayload struct {
	NoteID string `json:"noteId"`
}

// post performs one paced API call and decodes the envelope data into
// out (which may be nil).
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	call := func(ctx context.Context) error {
		return c.doPost(ctx, path, body, out)
	}
	if c.cfg.Pacer != nil {
		return c.cfg.Pacer.Schedule(ctx, call)
	}
	return call(ctx)
}

func (c *Client) doPost(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("mowen: marshal %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("mowen: build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.cfg.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return &APIError{Kind: ErrTimeout, Message: err.Error()}
		}
		return &APIError{Kind: ErrServiceUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &APIError{Kind: ErrTimeout, Status: resp.StatusCode, Message: err.Error()}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return &APIError{Kind: ErrUnknown, Status: resp.StatusCode, Message: "undecodable response body"}
		}
		env.Message = strings.TrimSpace(string(raw))
	}

	c.cfg.Logger.Debug("api call",
		"path", path, "status", resp.StatusCode, "code", env.Code,
		"duration", time.Since(start))

	if env.Code != 0 || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			Kind:    classify(resp.StatusCode, env.Code, env.Message),
			Status:  resp.StatusCode,
			Code:    env.Code,
			Message: env.Message,
		}
		var salvage errPayload
		if len(env.Data) > 0 && json.Unmarshal(env.Data, &salvage) == nil {
			apiErr.NoteID = salvage.NoteID
		}
		return apiErr
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("mowen: decode %s response: %w", path, err)
		}
	}
	return nil
}
