package ai

import (
	"context"

	"golang.org/x/sync/semaphore"

	"ai-playground/internal/domain/ports/adapter"
	"ai-playground/internal/infra/metrics"
)

var _ adapter.AIServiceAdapter = (*Limited)(nil)

// Limited caps how many provider calls run at once across all sessions.
// Listing and model info are local and bypass the cap.
type Limited struct {
	adapter.AIServiceAdapter
	slots *semaphore.Weighted
}

// NewLimitedAI wraps inner with n call slots; n <= 0 returns inner as is.
// A caller waiting for a slot gives up when its context ends.
func NewLimitedAI(inner adapter.AIServiceAdapter, n int) adapter.AIServiceAdapter {
	if n <= 0 {
		return inner
	}
	return &Limited{AIServiceAdapter: inner, slots: semaphore.NewWeighted(int64(n))}
}

func (l *Limited) enter(ctx context.Context) (func(), error) {
	if err := l.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	metrics.AddAIInFlight(1)
	return func() {
		metrics.AddAIInFlight(-1)
		l.slots.Release(1)
	}, nil
}

func (l *Limited) CountTokens(ctx context.Context, req adapter.ChatRequest) (int, error) {
	leave, err := l.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer leave()
	return l.AIServiceAdapter.CountTokens(ctx, req)
}

func (l *Limited) Chat(ctx context.Context, req adapter.ChatRequest) (string, error) {
	leave, err := l.enter(ctx)
	if err != nil {
		return "", err
	}
	defer leave()
	return l.AIServiceAdapter.Chat(ctx, req)
}

func (l *Limited) ChatWithUsage(ctx context.Context, req adapter.ChatRequest) (string, adapter.Usage, error) {
	leave, err := l.enter(ctx)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	defer leave()
	return l.AIServiceAdapter.ChatWithUsage(ctx, req)
}
