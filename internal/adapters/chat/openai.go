// Package chat implements the bounded free-text assistant used in chat
// mode.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lobang-bot/internal/domain"
	openai "lobang-bot/internal/infra/openai"
)

type chatCompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Assistant produces short conversational replies.
type Assistant struct {
	client  chatCompletionClient
	model   string
	timeout time.Duration
}

var _ domain.ChatAI = (*Assistant)(nil)

// NewAssistant creates the chat adapter.
func NewAssistant(client chatCompletionClient, model string, timeout time.Duration) *Assistant {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Assistant{client: client, model: model, timeout: timeout}
}

// Reply answers the conversation with at most maxChars characters. The
// cap is enforced locally regardless of what the model returns.
func (a *Assistant) Reply(ctx context.Context, system string, conversation []domain.ConversationEntry, maxChars int) (string, error) {
	if maxChars <= 0 {
		maxChars = 500
	}

	messages := make([]openai.ChatMessage, 0, len(conversation)+1)
	messages = append(messages, openai.ChatMessage{Role: openai.RoleSystem, Content: system})
	for _, entry := range conversation {
		role := openai.RoleUser
		if entry.Role == domain.RoleAssistant {
			role = openai.RoleAssistant
		}
		messages = append(messages, openai.ChatMessage{Role: role, Content: entry.Content})
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   300,
	})
	if err != nil {
		return "", fmt.Errorf("chat reply: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat reply: empty response")
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	runes := []rune(reply)
	if len(runes) > maxChars {
		reply = strings.TrimSpace(string(runes[:maxChars-1])) + "…"
	}
	return reply, nil
}
