// Package objectstore uploads binary objects to the asset-storage service
// over its HTTP API.
package objectstore

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

	"lobang-bot/internal/domain"
	"lobang-bot/internal/infra/metrics"
)

// Client writes objects under a bucket and returns public URLs.
type Client struct {
	http    *http.Client
	baseURL string
	bucket  string
	apiKey  string
}

var _ domain.ObjectStore = (*Client)(nil)

// NewClient creates the storage client.
func NewClient(baseURL, bucket, apiKey string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
		bucket:  bucket,
		apiKey:  apiKey,
	}
}

type putResponse struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// Put uploads data under the given key and returns the object URL.
func (c *Client) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("objectstore: base url is empty")
	}
	endpoint := c.baseURL + "/v1/buckets/" + url.PathEscape(c.bucket) + "/objects/" + escapeKey(key)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("objectstore: build request: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("objectstore", "put", c.bucket, start, err)
		return "", fmt.Errorf("objectstore: do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveNetworkRequest("objectstore", "put", c.bucket, start, err)
		return "", fmt.Errorf("objectstore: read response: %w", err)
	}

	var parsed putResponse
	if resp.StatusCode >= 400 {
		if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
			err = fmt.Errorf("objectstore: %s", parsed.Error)
		} else {
			err = fmt.Errorf("objectstore: unexpected status %d", resp.StatusCode)
		}
		metrics.ObserveNetworkRequest("objectstore", "put", c.bucket, start, err)
		return "", err
	}
	metrics.ObserveNetworkRequest("objectstore", "put", c.bucket, start, nil)

	if err := json.Unmarshal(body, &parsed); err == nil && parsed.URL != "" {
		return parsed.URL, nil
	}
	// Services that reply with an empty body serve objects at the PUT URL.
	return endpoint, nil
}

// Key segments keep their slashes so uploads group under a prefix.
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
