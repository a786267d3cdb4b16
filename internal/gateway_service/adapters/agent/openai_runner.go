package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mercatto/wagateway/internal/gateway_service/repository"
)

// OpenAIRunner answers customer turns with a chat-completion call,
// grounding the model with the customer's recent conversation history.
// History persistence is best-effort: a failed write degrades context
// quality but never fails the turn.
type OpenAIRunner struct {
	client       *openai.Client
	history      repository.ChatHistoryRepository
	model        string
	systemPrompt string
	windowSize   int
	logger       *slog.Logger
}

func NewOpenAIRunner(
	apiKey, baseURL, model, systemPrompt string,
	history repository.ChatHistoryRepository,
	windowSize int,
	logger *slog.Logger,
) *OpenAIRunner {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIRunner{
		client:       openai.NewClientWithConfig(cfg),
		history:      history,
		model:        model,
		systemPrompt: systemPrompt,
		windowSize:   windowSize,
		logger:       logger.With("component", "openai_runner"),
	}
}

// Run produces the agent's reply for one aggregated customer message.
func (r *OpenAIRunner) Run(ctx context.Context, customerID, text string) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: r.systemPrompt},
	}

	if r.history != nil {
		window, err := r.history.RecentWindow(ctx, customerID, r.windowSize)
		if err != nil {
			r.logger.WarnContext(ctx, "Failed to load chat history, answering without context",
				"error", err, "customer_id", customerID)
		}
		for _, msg := range window {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    chatRole(msg.Role),
				Content: msg.Content,
			})
		}
	}

	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    r.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion for %s: %w", customerID, err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	output := resp.Choices[0].Message.Content

	r.appendHistory(ctx, customerID, "user", text)
	r.appendHistory(ctx, customerID, "assistant", output)

	return output, nil
}

func (r *OpenAIRunner) appendHistory(ctx context.Context, customerID, role, content string) {
	if r.history == nil || strings.TrimSpace(content) == "" {
		return
	}
	if err := r.history.Append(ctx, customerID, role, content); err != nil {
		r.logger.WarnContext(ctx, "Failed to persist chat history entry",
			"error", err, "customer_id", customerID, "role", role)
	}
}

// chatRole maps stored roles onto the API's role constants, defaulting
// unknown values to user so stale rows never break a request.
func chatRole(role string) string {
	switch role {
	case "assistant":
		return openai.ChatMessageRoleAssistant
	case "system":
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}
