// Package websearch implements the web fallback for deal discovery on the
// Custom Search JSON API.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"lobang-bot/internal/domain"
	"lobang-bot/internal/infra/metrics"
)

const (
	defaultBaseURL = "https://www.googleapis.com/customsearch/v1"

	// The search API serves at most ten results per request.
	maxResultsPerRequest = 10
)

// Client runs country- and language-constrained text searches.
type Client struct {
	http        *http.Client
	baseURL     string
	apiKey      string
	engineID    string
	countryCode string
}

var _ domain.WebSearcher = (*Client)(nil)

// NewClient creates the search client.
func NewClient(apiKey, engineID, baseURL, countryCode string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http:        &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		apiKey:      apiKey,
		engineID:    engineID,
		countryCode: strings.ToLower(countryCode),
	}
}

type searchResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"items"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Search executes one query and returns up to limit hits.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error) {
	if limit <= 0 || limit > maxResultsPerRequest {
		limit = maxResultsPerRequest
	}

	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("cx", c.engineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(limit))
	params.Set("lr", "lang_en")
	if c.countryCode != "" {
		params.Set("gl", c.countryCode)
		params.Set("cr", "country"+strings.ToUpper(c.countryCode))
	}
	endpoint := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websearch: build request: %w", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("websearch", "search", c.engineID, start, err)
		return nil, fmt.Errorf("websearch: do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveNetworkRequest("websearch", "search", c.engineID, start, err)
		return nil, fmt.Errorf("websearch: read response: %w", err)
	}

	var parsed searchResponse
	if resp.StatusCode >= 400 {
		if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
			err = fmt.Errorf("websearch: %s", parsed.Error.Message)
		} else {
			err = fmt.Errorf("websearch: unexpected status %d", resp.StatusCode)
		}
		metrics.ObserveNetworkRequest("websearch", "search", c.engineID, start, err)
		return nil, err
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		metrics.ObserveNetworkRequest("websearch", "search", c.engineID, start, err)
		return nil, fmt.Errorf("websearch: decode response: %w", err)
	}
	metrics.ObserveNetworkRequest("websearch", "search", c.engineID, start, nil)

	hits := make([]domain.SearchHit, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		hits = append(hits, domain.SearchHit{
			Title:   item.Title,
			Snippet: item.Snippet,
			Link:    item.Link,
		})
	}
	return hits, nil
}
