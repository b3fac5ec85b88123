// Package client is the HTTP client for the CampusKV row table API,
// including the WebSocket change feed used by the sync facade.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// ErrNotFound is returned when the remote table has no row for a key
var ErrNotFound = errors.New("key not found")

// Row mirrors the remote table row shape
type Row struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	Origin    string          `json:"origin,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Event mirrors a change feed event
type Event struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value,omitempty"`
	Origin    string          `json:"origin,omitempty"`
	Deleted   bool            `json:"deleted,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RetryConfig defines retry behavior for remote operations
type RetryConfig struct {
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// DefaultRetryConfig returns default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		RetryDelay: 100 * time.Millisecond,
		Timeout:    5 * time.Second,
	}
}

// Config configures a Client
type Config struct {
	// BaseURL is the root of the server, e.g. "http://localhost:8080"
	BaseURL string
	// APIKey is sent as X-API-Key; empty disables auth
	APIKey string
	// Origin identifies the calling context on writes
	Origin string
	Retry  RetryConfig
}

// Client talks to the remote row table over HTTP
type Client struct {
	baseURL    string
	apiKey     string
	origin     string
	httpClient *http.Client
	retry      RetryConfig
}

// New creates a new client instance
func New(cfg Config) *Client {
	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		origin:  cfg.Origin,
		httpClient: &http.Client{
			Timeout: retry.Timeout,
		},
		retry: retry,
	}
}

// Origin returns the context identifier attached to this client's writes
func (c *Client) Origin() string {
	return c.origin
}

func (c *Client) newRequest(ctx context.Context, method, key string, body []byte) (*http.Request, error) {
	url := fmt.Sprintf("%s/api/v1/keys/%s", c.baseURL, key)
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if c.origin != "" {
		req.Header.Set("X-Origin", c.origin)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Get retrieves the row for a key
func (c *Client) Get(ctx context.Context, key string) (Row, error) {
	req, err := c.newRequest(ctx, http.MethodGet, key, nil)
	if err != nil {
		return Row{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Row{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Row{}, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return Row{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var row Row
	if err := json.NewDecoder(resp.Body).Decode(&row); err != nil {
		return Row{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return row, nil
}

// Set upserts the row for a key. value must be valid JSON.
func (c *Client) Set(ctx context.Context, key string, value json.RawMessage) error {
	var lastErr error
	for i := 0; i < c.retry.MaxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retry.RetryDelay):
			}
		}

		req, err := c.newRequest(ctx, http.MethodPut, key, value)
		if err != nil {
			return err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)

		// Client errors will not heal on retry.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return lastErr
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Delete removes the row for a key
func (c *Client) Delete(ctx context.Context, key string) error {
	var lastErr error
	for i := 0; i < c.retry.MaxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retry.RetryDelay):
			}
		}

		req, err := c.newRequest(ctx, http.MethodDelete, key, nil)
		if err != nil {
			return err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return ErrNotFound
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		}
		lastErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// List returns all rows in the remote table
func (c *Client) List(ctx context.Context) ([]Row, error) {
	url := fmt.Sprintf("%s/api/v1/keys", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var rows []Row
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return rows, nil
}

// Subscribe opens the change feed for a key. Events arrive on the returned
// channel until ctx is canceled, at which point the channel is closed. The
// feed reconnects with a delay after transport failures; events emitted
// while disconnected are lost, matching the at-most-once contract.
func (c *Client) Subscribe(ctx context.Context, key string) <-chan Event {
	url := fmt.Sprintf("%s/api/v1/subscribe/%s", c.baseURL, key)
	if c.apiKey != "" {
		url += "?api_key=" + c.apiKey
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		for {
			if ctx.Err() != nil {
				return
			}
			c.readFeed(ctx, url, events)

			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retry.RetryDelay * 10):
			}
		}
	}()
	return events
}

// readFeed dials the feed once and pumps events until the connection drops
func (c *Client) readFeed(ctx context.Context, url string, events chan<- Event) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			continue
		}
		select {
		case events <- event:
		default:
			// Listener is not keeping up; drop rather than block.
		}
	}
}
