//go:build !integration

package web

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"ai-playground/internal/domain/model"
	"ai-playground/internal/domain/ports/adapter"
	"ai-playground/internal/infra/memstore"
	"ai-playground/internal/preview"
	"ai-playground/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// stubAI returns a fixed reply or error and remembers the last request.
type stubAI struct {
	mu    sync.Mutex
	reply string
	err   error
	last  adapter.ChatRequest
}

var _ adapter.AIServiceAdapter = (*stubAI)(nil)

func (s *stubAI) ListModels(ctx context.Context) ([]string, error) {
	return []string{"stub-1", "stub-2"}, nil
}

func (s *stubAI) GetModelInfo(m string) (adapter.ModelInfo, error) {
	return adapter.ModelInfo{Name: m}, nil
}

func (s *stubAI) CountTokens(ctx context.Context, req adapter.ChatRequest) (int, error) {
	return 0, nil
}

func (s *stubAI) Chat(ctx context.Context, req adapter.ChatRequest) (string, error) {
	r, _, err := s.ChatWithUsage(ctx, req)
	return r, err
}

func (s *stubAI) ChatWithUsage(ctx context.Context, req adapter.ChatRequest) (string, adapter.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = req
	return s.reply, adapter.Usage{}, s.err
}

// failingUC answers every session read with err. Calls it does not override
// panic through the nil embedded interface.
type failingUC struct {
	usecase.PlaygroundUseCase
	err error
}

func (f *failingUC) GetSession(ctx context.Context, id string) (*model.Session, error) {
	return nil, f.err
}

func (f *failingUC) ListFiles(ctx context.Context, id string) ([]model.VirtualFile, error) {
	return nil, f.err
}

func (f *failingUC) Preview(ctx context.Context, id string) (preview.Frame, error) {
	return preview.Frame{}, f.err
}

func (f *failingUC) Transcript(ctx context.Context, id string) ([]model.ChatMessage, error) {
	panic("boom")
}

const testSecret = "test-playground-jwt-secret"

// newTestServer wires the real use case over the in-memory store.
func newTestServer(ai adapter.AIServiceAdapter) (*Server, *AuthManager) {
	uc := usecase.NewPlaygroundUseCase(
		memstore.NewSessionStore(), nil, ai, nil, nil, nil, nil, nil,
		usecase.Options{Model: "stub-1"}, newTestLogger(),
	)
	auth := NewAuthManager(testSecret, false, "", 0)
	return NewServer(uc, auth, nil, 0, newTestLogger()), auth
}
