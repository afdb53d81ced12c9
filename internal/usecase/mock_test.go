//go:build !integration

package usecase_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"ai-playground/internal/domain"
	"ai-playground/internal/domain/model"
	"ai-playground/internal/domain/ports/adapter"
	"ai-playground/internal/domain/ports/repository"
	"ai-playground/internal/infra/worker"
)

// =============================
// Adapters
// =============================

// MockAI answers through ReplyFunc and records every request.
type MockAI struct {
	mu       sync.Mutex
	Requests []adapter.ChatRequest

	ReplyFunc func(ctx context.Context, req adapter.ChatRequest) (string, error)
}

var _ adapter.AIServiceAdapter = (*MockAI)(nil)

func (m *MockAI) record(req adapter.ChatRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
}

func (m *MockAI) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

func (m *MockAI) ListModels(ctx context.Context) ([]string, error) {
	return []string{"mock-model"}, nil
}

func (m *MockAI) GetModelInfo(model string) (adapter.ModelInfo, error) {
	return adapter.ModelInfo{Name: model}, nil
}

func (m *MockAI) CountTokens(ctx context.Context, req adapter.ChatRequest) (int, error) {
	return len(req.Messages), nil
}

func (m *MockAI) Chat(ctx context.Context, req adapter.ChatRequest) (string, error) {
	reply, _, err := m.ChatWithUsage(ctx, req)
	return reply, err
}

func (m *MockAI) ChatWithUsage(ctx context.Context, req adapter.ChatRequest) (string, adapter.Usage, error) {
	m.record(req)
	if m.ReplyFunc == nil {
		return "ok", adapter.Usage{}, nil
	}
	reply, err := m.ReplyFunc(ctx, req)
	return reply, adapter.Usage{PromptTokens: 3, CompletionTokens: 5, TotalTokens: 8}, err
}

func replyWith(text string) func(context.Context, adapter.ChatRequest) (string, error) {
	return func(context.Context, adapter.ChatRequest) (string, error) { return text, nil }
}

// =============================
// Repositories
// =============================

// MockSnapshotRepo keeps snapshots in memory.
type MockSnapshotRepo struct {
	mu    sync.Mutex
	snaps map[string]*model.Snapshot
}

var _ repository.SnapshotRepository = (*MockSnapshotRepo)(nil)

func NewMockSnapshotRepo() *MockSnapshotRepo {
	return &MockSnapshotRepo{snaps: map[string]*model.Snapshot{}}
}

func (r *MockSnapshotRepo) Save(ctx context.Context, qx any, s *model.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.snaps[s.ID] = &cp
	return nil
}

func (r *MockSnapshotRepo) FindByID(ctx context.Context, qx any, id string) (*model.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.snaps[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MockSnapshotRepo) ListBySession(ctx context.Context, qx any, sessionID string, limit int) ([]*model.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Snapshot
	for _, s := range r.snaps {
		if s.SessionID == sessionID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MockSnapshotRepo) PruneSession(ctx context.Context, qx any, sessionID string, keep int) (int64, error) {
	list, _ := r.ListBySession(ctx, qx, sessionID, 0)
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i, s := range list {
		if i >= keep {
			delete(r.snaps, s.ID)
			n++
		}
	}
	return n, nil
}

func (r *MockSnapshotRepo) DeleteOlderThan(ctx context.Context, qx any, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.snaps {
		if s.CreatedAt.Before(cutoff) {
			delete(r.snaps, id)
			n++
		}
	}
	return n, nil
}

func (r *MockSnapshotRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

// MockTxManager runs fn inline and counts transactions.
type MockTxManager struct {
	mu  sync.Mutex
	Txs int
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func (m *MockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.mu.Lock()
	m.Txs++
	m.mu.Unlock()
	return fn(ctx, nil)
}

// InlineSubmitter runs tasks synchronously.
type InlineSubmitter struct {
	mu     sync.Mutex
	Ran    int
	Errs   []error
	Reject error
}

func (s *InlineSubmitter) Submit(task worker.Task) error {
	if s.Reject != nil {
		return s.Reject
	}
	err := task(context.Background())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Ran++
	if err != nil {
		s.Errs = append(s.Errs, err)
	}
	return nil
}

// DenyLimiter rejects every chat request.
type DenyLimiter struct{}

func (DenyLimiter) AllowChat(context.Context, string) (bool, error) { return false, nil }
