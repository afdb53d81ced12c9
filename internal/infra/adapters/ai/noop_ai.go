package ai

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ai-playground/internal/domain"
	"ai-playground/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAIAdapter)(nil)

// NoopAIAdapter implements adapter.AIServiceAdapter for local/dev testing.
// It logs requests and answers with a fixed reply containing one code block,
// so the extract/apply/preview path can be exercised without a provider.
type NoopAIAdapter struct {
	log   *zerolog.Logger
	delay time.Duration
}

// NewNoopAIAdapter constructs the noop adapter.
func NewNoopAIAdapter(logger *zerolog.Logger) *NoopAIAdapter {
	return &NoopAIAdapter{log: logger, delay: 100 * time.Millisecond}
}

const noopReply = "This is a noop AI response. Here is a small change:\n\n" +
	"```css:styles.css\nbody {\n  font-family: system-ui, sans-serif;\n  background: #eef6ff;\n}\n```\n"

func (a *NoopAIAdapter) wait(ctx context.Context) error {
	// Simulate slight processing time and respect ctx
	select {
	case <-time.After(a.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *NoopAIAdapter) Chat(ctx context.Context, req adapter.ChatRequest) (string, error) {
	reply, _, err := a.ChatWithUsage(ctx, req)
	return reply, err
}

func (a *NoopAIAdapter) ChatWithUsage(ctx context.Context, req adapter.ChatRequest) (string, adapter.Usage, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return "", adapter.Usage{}, domain.ErrCredentialMissing
	}
	if err := a.wait(ctx); err != nil {
		return "", adapter.Usage{}, err
	}
	if a.log != nil {
		a.log.Debug().Int("messages", len(req.Messages)).Str("model", req.Model).Msg("noop-ai chat")
	}
	return noopReply, adapter.Usage{}, nil
}

func (a *NoopAIAdapter) CountTokens(ctx context.Context, req adapter.ChatRequest) (int, error) {
	n := len(strings.Fields(req.System))
	for _, m := range req.Messages {
		n += len(strings.Fields(m.Content))
	}
	return n, nil
}

// GetModelInfo returns dummy model info.
func (a *NoopAIAdapter) GetModelInfo(model string) (adapter.ModelInfo, error) {
	return adapter.ModelInfo{Name: "noop-ai-model", Provider: "noop", Description: "Canned replies for local runs", ContextWindow: 4096}, nil
}

func (a *NoopAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{"noop-ai-model"}, nil
}
