package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/pkoukk/tiktoken-go"

	"ai-playground/internal/domain"
	"ai-playground/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.AIServiceAdapter = (*OpenAIAdapter)(nil)

// OpenAIAdapter implements adapter.AIServiceAdapter using Chat Completions.
// Any OpenAI-compatible gateway works by pointing base at it.
type OpenAIAdapter struct {
	base  string // e.g., https://api.openai.com/v1
	model string
}

func NewOpenAIAdapter(model, base string) (*OpenAIAdapter, error) {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	return &OpenAIAdapter{base: strings.TrimRight(base, "/"), model: model}, nil
}

func (o *OpenAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{o.model}, nil
}

func (o *OpenAIAdapter) GetModelInfo(model string) (adapter.ModelInfo, error) {
	name := modelOrDefault(model, o.model)
	return adapter.ModelInfo{Name: name, Provider: "openai", Description: "OpenAI chat completions", ContextWindow: openAIContext(name)}, nil
}

// CountTokens counts locally with tiktoken; unknown models use cl100k_base.
func (o *OpenAIAdapter) CountTokens(ctx context.Context, req adapter.ChatRequest) (int, error) {
	enc, err := tiktoken.EncodingForModel(modelOrDefault(req.Model, o.model))
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return 0, err
		}
	}
	n := 0
	if req.System != "" {
		n += len(enc.Encode(req.System, nil, nil)) + 4
	}
	for _, m := range req.Messages {
		// ~4 tokens of per-message framing
		n += len(enc.Encode(m.Content, nil, nil)) + 4
	}
	return n, nil
}

func (o *OpenAIAdapter) Chat(ctx context.Context, req adapter.ChatRequest) (string, error) {
	reply, _, err := o.ChatWithUsage(ctx, req)
	return reply, err
}

func (o *OpenAIAdapter) ChatWithUsage(ctx context.Context, req adapter.ChatRequest) (string, adapter.Usage, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return "", adapter.Usage{}, domain.ErrCredentialMissing
	}
	if len(req.Messages) == 0 {
		return "", adapter.Usage{}, errors.New("openai: no messages")
	}
	client := openai.NewClient(
		option.WithAPIKey(req.APIKey),
		option.WithBaseURL(o.base),
		option.WithMaxRetries(0),
	)

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch strings.ToLower(m.Role) {
		case "assistant", "model":
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		case "system":
			msgs = append(msgs, openai.SystemMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelOrDefault(req.Model, o.model)),
		Messages: msgs,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(float64(req.Temperature))
	}
	if req.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxOutputTokens))
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", adapter.Usage{}, fmt.Errorf("%w: %s", domain.ErrUpstream, err.Error())
	}
	u := adapter.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	for _, c := range resp.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, u, nil
		}
	}
	return "", u, fmt.Errorf("%w: no choice content", domain.ErrUpstream)
}

// openAIContext knows the published context sizes of the common families.
func openAIContext(model string) int {
	switch m := strings.ToLower(model); {
	case strings.HasPrefix(m, "gpt-4.1"):
		return 1 << 20
	case strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return 200_000
	case strings.HasPrefix(m, "gpt-4o"), strings.HasPrefix(m, "gpt-4-turbo"):
		return 128_000
	case strings.HasPrefix(m, "gpt-3.5"):
		return 16_385
	}
	return 0
}
