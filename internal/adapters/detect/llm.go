// Package detect decides whether free operator text is a deal submission.
package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"lobang-bot/internal/domain"
	openai "lobang-bot/internal/infra/openai"
)

type chatCompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// LLMClassifier asks the model whether a message describes an offer.
type LLMClassifier struct {
	client  chatCompletionClient
	model   string
	timeout time.Duration
}

var _ domain.DealClassifier = (*LLMClassifier)(nil)

// NewLLM creates the model-backed classifier.
func NewLLM(client chatCompletionClient, model string, timeout time.Duration) *LLMClassifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LLMClassifier{client: client, model: model, timeout: timeout}
}

type llmVerdict struct {
	IsDeal bool `json:"is_deal"`
}

// IsDealSubmission classifies one message. Callers fall back to the
// keyword rule on any error.
func (c *LLMClassifier) IsDealSubmission(ctx context.Context, text string) (bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatMessage{
			{
				Role:    openai.RoleSystem,
				Content: "You classify WhatsApp messages from restaurant owners. A deal submission describes a concrete promotional offer: a discount, a price, a freebie or a limited-time promotion for their restaurant. Questions, greetings and general chat are not deal submissions.",
			},
			{
				Role:    openai.RoleUser,
				Content: fmt.Sprintf("Is the following message a deal submission? Reply strictly as JSON: {\"is_deal\": true|false}.\n\nMessage:\n%s", text),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ResponseFormatTypeJSONObject,
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return false, fmt.Errorf("classify deal: %w", err)
	}
	if len(resp.Choices) == 0 {
		return false, fmt.Errorf("classify deal: empty response")
	}

	var verdict llmVerdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Choices[0].Message.Content)), &verdict); err != nil {
		return false, fmt.Errorf("classify deal: decode verdict: %w", err)
	}
	return verdict.IsDeal, nil
}
