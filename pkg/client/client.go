// Package client provides an HTTP client for a running servhub daemon.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Client talks to the servhub HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080/api",
		Timeout: 10 * time.Second,
	}
}

func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080/api"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		client:  &http.Client{Timeout: config.Timeout},
		logger:  config.Logger,
	}
}

// ServerStatus mirrors the API's list entry shape.
type ServerStatus struct {
	Key       string         `json:"key"`
	Name      string         `json:"name"`
	Title     string         `json:"title,omitempty"`
	Version   string         `json:"version"`
	Type      string         `json:"type"`
	Functions []string       `json:"functions,omitempty"`
	LocalPath string         `json:"local_path,omitempty"`
	Setting   map[string]any `json:"setting,omitempty"`
	Status    string         `json:"status"`
}

// List returns all managed servers with their runtime status.
func (c *Client) List(ctx context.Context) ([]ServerStatus, error) {
	var out []ServerStatus
	if err := c.do(ctx, http.MethodGet, "/servers", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Refresh asks the daemon to rescan local server instances.
func (c *Client) Refresh(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/refresh", nil, nil, nil)
}

// Start starts the server identified by key (name@version).
func (c *Client) Start(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodPost, "/start", url.Values{"key": {key}}, nil, nil)
}

// Stop stops the server identified by key.
func (c *Client) Stop(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodPost, "/stop", url.Values{"key": {key}}, nil, nil)
}

// Delete removes the server identified by key.
func (c *Client) Delete(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodDelete, "/servers", url.Values{"key": {key}}, nil, nil)
}

// UpdateSetting merges partial setting values into the server's config.
func (c *Client) UpdateSetting(ctx context.Context, key string, setting map[string]any) error {
	body := map[string]any{"key": key, "setting": setting}
	return c.do(ctx, http.MethodPatch, "/servers/setting", nil, body, nil)
}

// Status returns the runtime status of one server.
func (c *Client) Status(ctx context.Context, key string) (string, error) {
	var out struct {
		Key    string `json:"key"`
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/status", url.Values{"key": {key}}, nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", u, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		if derr := json.NewDecoder(resp.Body).Decode(&e); derr == nil && e.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, e.Error)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
