// Package rollout produces the assistant turn a row is scored on.
package rollout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/signalnine/rftgrader/internal/eval"
)

// Processor fills in a row before it is scored.
type Processor interface {
	Rollout(ctx context.Context, row *eval.EvaluationRow) (*eval.EvaluationRow, error)
}

// NoOp scores rows exactly as they were loaded.
type NoOp struct{}

func (NoOp) Rollout(_ context.Context, row *eval.EvaluationRow) (*eval.EvaluationRow, error) {
	return row, nil
}

// ChatCompleter is the subset of *openai.Client the chat processor uses.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type ChatOptions struct {
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// Chat asks a chat completion model to answer the row's transcript and
// appends the reply as the final assistant message.
type Chat struct {
	client ChatCompleter
	opts   ChatOptions
}

var _ Processor = (*Chat)(nil)

func NewChat(client ChatCompleter, opts ChatOptions) (*Chat, error) {
	if client == nil {
		return nil, errors.New("chat rollout needs a client")
	}
	if opts.Model == "" {
		return nil, errors.New("chat rollout needs a model")
	}
	return &Chat{client: client, opts: opts}, nil
}

// NewOpenAIClient builds a go-openai client against baseURL.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return openai.NewClientWithConfig(cfg)
}

func (c *Chat) Rollout(ctx context.Context, row *eval.EvaluationRow) (*eval.EvaluationRow, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.opts.Model,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
		Messages:    toChatMessages(row.Messages),
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat rollout: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat rollout: no choices returned")
	}

	out := row.Clone()
	out.Messages = append(out.Messages, eval.TextMessage(eval.RoleAssistant, resp.Choices[0].Message.Content))
	out.Usage = &eval.Usage{
		Model:            c.opts.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	c.opts.Logger.Debug().
		Str("model", c.opts.Model).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("rollout completed")
	return out, nil
}

func toChatMessages(msgs []eval.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		cm := openai.ChatCompletionMessage{Role: string(m.Role)}
		if m.Content.IsText() {
			cm.Content = m.Content.Text
		} else {
			// Only text parts are forwarded.
			for _, p := range m.Content.Parts {
				if p.Type == "text" {
					cm.MultiContent = append(cm.MultiContent, openai.ChatMessagePart{
						Type: openai.ChatMessagePartTypeText,
						Text: p.Text,
					})
				}
			}
		}
		out = append(out, cm)
	}
	return out
}
