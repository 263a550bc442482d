// Package generator calls the external media-generation service that
// composes marketing assets for operator deals.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lobang-bot/internal/domain"
	"lobang-bot/internal/infra/metrics"
)

// Client performs generation requests.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

var _ domain.MediaGenerator = (*Client)(nil)

// NewClient creates the generator client. Generation runs for minutes, so
// the timeout should be generous.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

type generateRequest struct {
	DealText     string   `json:"deal_text"`
	Restaurant   string   `json:"restaurant"`
	Address      string   `json:"address"`
	Phone        string   `json:"phone,omitempty"`
	Website      string   `json:"website,omitempty"`
	OpeningHours []string `json:"opening_hours,omitempty"`
	ImageURLs    []string `json:"image_urls,omitempty"`
}

type generateResponse struct {
	AssetURL string `json:"asset_url"`
	Kind     string `json:"kind"`
	Error    string `json:"error"`
}

// Generate submits a generation request and waits for the composed asset.
func (c *Client) Generate(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error) {
	if c.baseURL == "" {
		return domain.GenerationResult{}, fmt.Errorf("generator: base url is empty")
	}
	payload := generateRequest{
		DealText:     req.DealText,
		Restaurant:   req.Profile.Name,
		Address:      req.Profile.Address,
		Phone:        req.Profile.Phone,
		Website:      req.Profile.Website,
		OpeningHours: req.Profile.OpeningHours,
		ImageURLs:    req.ImageURLs,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.GenerationResult{}, fmt.Errorf("generator: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return domain.GenerationResult{}, fmt.Errorf("generator: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.ObserveNetworkRequest("generator", "generate", "media", start, err)
		return domain.GenerationResult{}, fmt.Errorf("generator: do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveNetworkRequest("generator", "generate", "media", start, err)
		return domain.GenerationResult{}, fmt.Errorf("generator: read response: %w", err)
	}

	var parsed generateResponse
	if resp.StatusCode >= 400 {
		if err := json.Unmarshal(respBody, &parsed); err == nil && parsed.Error != "" {
			err = fmt.Errorf("generator: %s", parsed.Error)
		} else {
			err = fmt.Errorf("generator: unexpected status %d", resp.StatusCode)
		}
		metrics.ObserveNetworkRequest("generator", "generate", "media", start, err)
		return domain.GenerationResult{}, err
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		metrics.ObserveNetworkRequest("generator", "generate", "media", start, err)
		return domain.GenerationResult{}, fmt.Errorf("generator: decode response: %w", err)
	}
	metrics.ObserveNetworkRequest("generator", "generate", "media", start, nil)

	if parsed.AssetURL == "" {
		return domain.GenerationResult{}, fmt.Errorf("generator: empty asset url")
	}
	return domain.GenerationResult{AssetURL: parsed.AssetURL, Kind: parsed.Kind}, nil
}
