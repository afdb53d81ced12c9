package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"ai-playground/internal/domain"
	"ai-playground/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*GeminiAdapter)(nil)

// GeminiAdapter calls the Gemini API through the genai SDK. Keys belong to
// playground users and arrive with each request, so a client is built per
// call rather than held.
type GeminiAdapter struct {
	baseURL      string
	defaultModel string
	models       []string
	dial         func(ctx context.Context, apiKey string) (*genai.Client, error)
}

// NewGeminiAdapter targets baseURL, or the public endpoint when empty.
// models lists what the playground offers; it defaults to defaultModel.
func NewGeminiAdapter(baseURL, defaultModel string, models []string) (*GeminiAdapter, error) {
	if strings.TrimSpace(defaultModel) == "" {
		return nil, errors.New("gemini: empty default model")
	}
	g := &GeminiAdapter{baseURL: baseURL, defaultModel: defaultModel, models: models}
	g.dial = func(ctx context.Context, apiKey string) (*genai.Client, error) {
		return genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:      apiKey,
			Backend:     genai.BackendGeminiAPI,
			HTTPOptions: genai.HTTPOptions{BaseURL: g.baseURL},
		})
	}
	return g, nil
}

func (g *GeminiAdapter) ListModels(context.Context) ([]string, error) {
	if len(g.models) == 0 {
		return []string{g.defaultModel}, nil
	}
	return append([]string(nil), g.models...), nil
}

func (g *GeminiAdapter) GetModelInfo(model string) (adapter.ModelInfo, error) {
	name := modelOrDefault(model, g.defaultModel)
	window := 1 << 20 // 1.5 and later
	if strings.HasPrefix(name, "gemini-1.0") || strings.HasPrefix(name, "gemini-pro") {
		window = 32 << 10
	}
	return adapter.ModelInfo{Name: name, Provider: "gemini", Description: "Google Gemini", ContextWindow: window}, nil
}

// CountTokens asks the API; the system instruction is not counted.
func (g *GeminiAdapter) CountTokens(ctx context.Context, req adapter.ChatRequest) (int, error) {
	c, err := g.connect(ctx, req.APIKey)
	if err != nil {
		return 0, err
	}
	resp, err := c.Models.CountTokens(ctx, modelOrDefault(req.Model, g.defaultModel), contents(req.Messages), nil)
	if err != nil {
		return 0, upstream(err)
	}
	return int(resp.TotalTokens), nil
}

func (g *GeminiAdapter) Chat(ctx context.Context, req adapter.ChatRequest) (string, error) {
	reply, _, err := g.ChatWithUsage(ctx, req)
	return reply, err
}

func (g *GeminiAdapter) ChatWithUsage(ctx context.Context, req adapter.ChatRequest) (string, adapter.Usage, error) {
	if err := checkTurns(req.Messages); err != nil {
		return "", adapter.Usage{}, err
	}
	c, err := g.connect(ctx, req.APIKey)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	resp, err := c.Models.GenerateContent(ctx, modelOrDefault(req.Model, g.defaultModel), contents(req.Messages), generation(req))
	if err != nil {
		return "", adapter.Usage{}, upstream(err)
	}

	var usage adapter.Usage
	if m := resp.UsageMetadata; m != nil {
		usage = adapter.Usage{
			PromptTokens:     int(m.PromptTokenCount),
			CompletionTokens: int(m.CandidatesTokenCount),
			TotalTokens:      int(m.TotalTokenCount),
		}
	}
	text, finish := replyText(resp)
	if text == "" && finish != "" && finish != genai.FinishReasonStop {
		return "", usage, fmt.Errorf("%w: reply withheld (%s)", domain.ErrUpstream, finish)
	}
	return text, usage, nil
}

// replyText reads candidates[0].content.parts[0].text. Later parts are not
// joined in; the reply is expected in the first one.
func replyText(resp *genai.GenerateContentResponse) (string, genai.FinishReason) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "", ""
	}
	c := resp.Candidates[0]
	if c.Content == nil || len(c.Content.Parts) == 0 || c.Content.Parts[0] == nil {
		return "", c.FinishReason
	}
	return c.Content.Parts[0].Text, c.FinishReason
}

func (g *GeminiAdapter) connect(ctx context.Context, apiKey string) (*genai.Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, domain.ErrCredentialMissing
	}
	c, err := g.dial(ctx, apiKey)
	if err != nil {
		return nil, upstream(err)
	}
	return c, nil
}

// checkTurns enforces what generateContent requires: at least one turn, and
// the last one from the user.
func checkTurns(msgs []adapter.Message) error {
	if len(msgs) == 0 {
		return errors.New("gemini: no messages")
	}
	if !strings.EqualFold(msgs[len(msgs)-1].Role, "user") {
		return errors.New("gemini: last message must be from user")
	}
	return nil
}

func generation(req adapter.ChatRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxOutputTokens)
	}
	if req.Temperature > 0 {
		t := req.Temperature
		cfg.Temperature = &t
	}
	if s := strings.TrimSpace(req.System); s != "" {
		cfg.SystemInstruction = genai.NewContentFromText(s, genai.RoleUser)
	}
	return cfg
}

// contents maps turns onto Gemini roles. Gemini has no system role in the
// history, so stray system turns travel as user text.
func contents(msgs []adapter.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		var role genai.Role = genai.RoleUser
		if r := strings.ToLower(m.Role); r == "assistant" || r == "model" {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(m.Content, role))
	}
	return out
}

// upstream wraps a provider failure; its message reaches the user verbatim.
func upstream(err error) error {
	return fmt.Errorf("%w: %s", domain.ErrUpstream, err.Error())
}

func modelOrDefault(model, def string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return def
}
