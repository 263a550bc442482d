package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lobang-bot/internal/infra/metrics"
)

const defaultBaseURL = "https://graph.facebook.com/v19.0"

// Client sends messages through the WhatsApp Business Cloud API.
type Client struct {
	http          *http.Client
	baseURL       string
	token         string
	phoneNumberID string
}

// Config holds Cloud API connection parameters.
type Config struct {
	BaseURL       string
	Token         string
	PhoneNumberID string
	Timeout       time.Duration
}

// NewClient creates a Cloud API client.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http:          &http.Client{Timeout: timeout},
		baseURL:       strings.TrimRight(baseURL, "/"),
		token:         cfg.Token,
		phoneNumberID: cfg.PhoneNumberID,
	}
}

// Send serializes a composed message and posts it to the user.
func (c *Client) Send(ctx context.Context, to string, msg Message) error {
	payload, err := buildPayload(to, msg)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("whatsapp: marshal payload: %w", err)
	}
	endpoint := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("whatsapp: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ObserveNetworkRequest("whatsapp", "send_message", string(msg.Type), start, err)
	if err != nil {
		return fmt.Errorf("whatsapp: do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("whatsapp: send failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return nil
}

// DownloadMedia resolves a webhook media ID and fetches its bytes.
func (c *Client) DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	metaURL := fmt.Sprintf("%s/%s", c.baseURL, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metaURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp: build media request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ObserveNetworkRequest("whatsapp", "media_meta", mediaID, start, err)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp: media meta: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("whatsapp: media meta: status %d", resp.StatusCode)
	}
	var meta struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, "", fmt.Errorf("whatsapp: decode media meta: %w", err)
	}

	dataReq, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.URL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp: build media download: %w", err)
	}
	dataReq.Header.Set("Authorization", "Bearer "+c.token)

	start = time.Now()
	dataResp, err := c.http.Do(dataReq)
	metrics.ObserveNetworkRequest("whatsapp", "media_download", mediaID, start, err)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp: media download: %w", err)
	}
	defer dataResp.Body.Close()
	if dataResp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("whatsapp: media download: status %d", dataResp.StatusCode)
	}
	data, err := io.ReadAll(dataResp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp: read media: %w", err)
	}
	return data, meta.MimeType, nil
}

func buildPayload(to string, msg Message) (map[string]any, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
	}
	switch msg.Type {
	case TypeText:
		payload["type"] = "text"
		payload["text"] = map[string]any{"body": msg.Body, "preview_url": false}
	case TypeButtons:
		buttons := make([]map[string]any, 0, len(msg.Buttons))
		for _, b := range msg.Buttons {
			buttons = append(buttons, map[string]any{
				"type":  "reply",
				"reply": map[string]string{"id": b.ID, "title": b.Title},
			})
		}
		payload["type"] = "interactive"
		payload["interactive"] = interactivePayload(msg, "button", map[string]any{"buttons": buttons})
	case TypeList:
		sections := make([]map[string]any, 0, len(msg.Sections))
		for _, sec := range msg.Sections {
			rows := make([]map[string]any, 0, len(sec.Rows))
			for _, row := range sec.Rows {
				entry := map[string]any{"id": row.ID, "title": row.Title}
				if row.Description != "" {
					entry["description"] = row.Description
				}
				rows = append(rows, entry)
			}
			sections = append(sections, map[string]any{"title": sec.Title, "rows": rows})
		}
		payload["type"] = "interactive"
		payload["interactive"] = interactivePayload(msg, "list", map[string]any{
			"button":   msg.ButtonText,
			"sections": sections,
		})
	case TypeCatalog:
		items := make([]map[string]string, 0, len(msg.ProductIDs))
		for _, id := range msg.ProductIDs {
			items = append(items, map[string]string{"product_retailer_id": id})
		}
		payload["type"] = "interactive"
		payload["interactive"] = interactivePayload(msg, "product_list", map[string]any{
			"catalog_id": msg.CatalogID,
			"sections":   []map[string]any{{"title": msg.Header, "product_items": items}},
		})
	case TypeImage:
		image := map[string]any{"link": msg.ImageURL}
		if msg.Caption != "" {
			image["caption"] = msg.Caption
		}
		payload["type"] = "image"
		payload["image"] = image
	default:
		return nil, fmt.Errorf("whatsapp: unsupported message type %q", msg.Type)
	}
	return payload, nil
}

func interactivePayload(msg Message, kind string, action map[string]any) map[string]any {
	interactive := map[string]any{
		"type":   kind,
		"body":   map[string]string{"text": msg.Body},
		"action": action,
	}
	if msg.Header != "" {
		interactive["header"] = map[string]string{"type": "text", "text": msg.Header}
	}
	if msg.Footer != "" {
		interactive["footer"] = map[string]string{"text": msg.Footer}
	}
	return interactive
}
