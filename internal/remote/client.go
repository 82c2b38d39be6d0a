// Package remote defines the contract with the multi-tenant backend and its
// HTTP implementation.
//
// Per entity table the backend exposes a row-level upsert-by-id call, a
// row-level delete-by-filter call, a select ordered by last-modified
// timestamp, and a persistent websocket change feed delivering row-level
// insert/update/delete notifications.
package remote

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

	"github.com/mkessler/taskloom/internal/model"
)

// ChangeType classifies a change-feed notification.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Change is one row-level notification from the change feed.
type Change struct {
	Type  ChangeType `json:"type"`
	Table string     `json:"table"`
	Row   model.Row  `json:"row"`
}

// Feed is an open change-feed subscription for one table.
type Feed interface {
	// Next blocks until the next change arrives, the feed fails, or ctx is
	// cancelled.
	Next(ctx context.Context) (Change, error)
	Close() error
}

// Client is the remote backend contract consumed by the sync engines and
// repositories.
type Client interface {
	// Upsert writes one row keyed by its id.
	Upsert(ctx context.Context, table string, row model.Row) error
	// Delete removes rows matching the column filter.
	Delete(ctx context.Context, table string, filter map[string]string) error
	// Select returns all rows ordered ascending by orderColumn.
	Select(ctx context.Context, table, orderColumn string) ([]model.Row, error)
	// Subscribe opens a persistent change feed for the table.
	Subscribe(ctx context.Context, table string) (Feed, error)
	// Health performs a bounded health check. Any HTTP response counts as
	// reachable; only transport-level failures return an error.
	Health(ctx context.Context) error
}

// HTTPOptions configures the HTTP client.
type HTTPOptions struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	UserAgent  string
}

// HTTPClient talks to the backend's REST and websocket endpoints.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	userAgent  string
}

// NewHTTPClient creates a backend client. A nil HTTPClient gets a bounded
// default timeout.
func NewHTTPClient(opts HTTPOptions) *HTTPClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		token:      opts.Token,
		httpClient: httpClient,
		userAgent:  strings.TrimSpace(opts.UserAgent),
	}
}

// Host returns the backend hostname, used by the network health monitor for
// DNS probes.
func (c *HTTPClient) Host() string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// HTTPStatusError reports a non-2xx backend response.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Body)
}

func (c *HTTPClient) Upsert(ctx context.Context, table string, row model.Row) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/"+table+"/upsert", row, nil)
}

func (c *HTTPClient) Delete(ctx context.Context, table string, filter map[string]string) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/"+table+"/delete", filter, nil)
}

func (c *HTTPClient) Select(ctx context.Context, table, orderColumn string) ([]model.Row, error) {
	var out []model.Row
	path := fmt.Sprintf("/v1/%s?order=%s", table, url.QueryEscape(orderColumn))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Health issues a GET against the health endpoint. Error status codes are
// still "reachable": only a failed round trip is an error.
func (c *HTTPClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
