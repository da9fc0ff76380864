// Package rest is the client for the persistence layer's row-level REST
// resources. All writes from this subsystem go through here; the realtime
// client is read-only by design.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"comm-terminal/internal/config"
	"comm-terminal/internal/logger"
	"comm-terminal/internal/session"
	appErrors "comm-terminal/pkg/errors"
)

const anonKeyHeader = "X-API-Key"

type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
}

func NewClient(cfg *config.BackendConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		anonKey: cfg.AnonKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// Get fetches a row resource. The response body is returned raw so callers
// can decode records individually.
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, appErrors.NewTransportError("failed to build request", err)
	}
	return c.do(req)
}

func (c *Client) Post(ctx context.Context, path string, body interface{}) ([]byte, error) {
	return c.send(ctx, http.MethodPost, path, body)
}

func (c *Client) Patch(ctx context.Context, path string, body interface{}) ([]byte, error) {
	return c.send(ctx, http.MethodPatch, path, body)
}

func (c *Client) send(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, appErrors.NewValidationError("failed to encode request body", err)
	}

	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(payload))
	if err != nil {
		return nil, appErrors.NewTransportError("failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	// Bearer auth when a session exists, anonymous key otherwise.
	if token, ok := session.Token(req.Context()); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	} else if c.anonKey != "" {
		req.Header.Set(anonKeyHeader, c.anonKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, appErrors.NewTransportError("request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, appErrors.NewTransportError("failed to read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Warn("Backend request rejected",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode),
		)
		return nil, appErrors.NewTransportError(
			fmt.Sprintf("backend returned %d for %s %s", resp.StatusCode, req.Method, req.URL.Path),
			nil,
		)
	}

	return data, nil
}

// Health probes the backend root so the health endpoint can report
// reachability.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("backend unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
