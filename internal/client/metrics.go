// Package client talks to the remote monitoring API.
package client

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

	"cloudscale/internal/models"
)

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("monitoring api returned %d: %s", e.StatusCode, e.Body)
}

// MetricsClient reads and writes metrics records on the monitoring API.
type MetricsClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewMetricsClient creates a client for baseURL, e.g. http://localhost:8000/api/v1/monitoring.
func NewMetricsClient(baseURL, token string, timeout time.Duration) *MetricsClient {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &MetricsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetMetrics returns the history of a resource, newest first.
func (c *MetricsClient) GetMetrics(ctx context.Context, resourceID string) ([]models.Metrics, error) {
	var out []models.Metrics
	if err := c.do(ctx, http.MethodGet, "/metrics/"+url.PathEscape(resourceID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetLatest returns the API host's own latest reading.
func (c *MetricsClient) GetLatest(ctx context.Context) (*models.Metrics, error) {
	var out models.Metrics
	if err := c.do(ctx, http.MethodGet, "/", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateMetrics posts a record and returns the stored copy.
func (c *MetricsClient) CreateMetrics(ctx context.Context, m *models.Metrics) (*models.Metrics, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metrics: %w", err)
	}
	var out models.Metrics
	if err := c.do(ctx, http.MethodPost, "/metrics/", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *MetricsClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
