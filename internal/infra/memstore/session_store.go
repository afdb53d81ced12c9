// Package memstore keeps playground sessions in process memory. It backs dev
// mode and use-case tests; state is lost on restart.
package memstore

import (
	"context"
	"sync"
	"time"

	"ai-playground/internal/domain"
	"ai-playground/internal/domain/model"
	"ai-playground/internal/domain/ports/repository"
)

var (
	_ repository.SessionStore = (*SessionStore)(nil)
	_ repository.ChatLimiter  = (*ChatLimiter)(nil)
)

// entry holds encoded state so callers never share mutable values with the
// store, matching what a networked store gives them.
type entry struct {
	files      []byte
	transcript []byte
	apiKey     string
	seq        int64
	frame      int64
	lock       chan struct{}
}

type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*entry
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*entry)}
}

func (s *SessionStore) get(id string) (*entry, error) {
	e, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e, nil
}

func (s *SessionStore) Create(_ context.Context, sess *model.Session) error {
	files, err := model.EncodeFiles(sess.Files)
	if err != nil {
		return err
	}
	transcript, err := model.EncodeTranscript(sess.Transcript)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.sessions[sess.ID]; dup {
		return domain.ErrInvalidArgument
	}
	s.sessions[sess.ID] = &entry{files: files, transcript: transcript, lock: make(chan struct{}, 1)}
	return nil
}

func (s *SessionStore) Load(_ context.Context, id string) (*model.Session, error) {
	s.mu.Lock()
	e, err := s.get(id)
	var files, transcript []byte
	if err == nil {
		files, transcript = e.files, e.transcript
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	fs, err := model.DecodeFiles(files)
	if err != nil {
		return nil, err
	}
	msgs, err := model.DecodeTranscript(transcript)
	if err != nil {
		return nil, err
	}
	return &model.Session{ID: id, Files: fs, Transcript: msgs}, nil
}

func (s *SessionStore) SaveFiles(_ context.Context, id string, files *model.FileStore) error {
	b, err := model.EncodeFiles(files)
	if err != nil {
		return err
	}
	return s.update(id, func(e *entry) { e.files = b })
}

func (s *SessionStore) SaveTranscript(_ context.Context, id string, msgs []model.ChatMessage) error {
	b, err := model.EncodeTranscript(msgs)
	if err != nil {
		return err
	}
	return s.update(id, func(e *entry) { e.transcript = b })
}

func (s *SessionStore) GetAPIKey(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.get(id)
	if err != nil {
		return "", err
	}
	return e.apiKey, nil
}

func (s *SessionStore) SetAPIKey(_ context.Context, id, key string) error {
	return s.update(id, func(e *entry) { e.apiKey = key })
}

func (s *SessionStore) ClearAPIKey(_ context.Context, id string) error {
	return s.update(id, func(e *entry) { e.apiKey = "" })
}

func (s *SessionStore) NextSeq(_ context.Context, id string) (int64, error) {
	var n int64
	err := s.update(id, func(e *entry) {
		e.seq++
		n = e.seq
	})
	return n, err
}

func (s *SessionStore) CurrentSeq(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.get(id)
	if err != nil {
		return 0, err
	}
	return e.seq, nil
}

func (s *SessionStore) FrameGen(_ context.Context, id string, bump bool) (int64, error) {
	var g int64
	err := s.update(id, func(e *entry) {
		if e.frame == 0 || bump {
			e.frame++
		}
		g = e.frame
	})
	return g, err
}

// Lock waits for the session's slot or for ctx to end.
func (s *SessionStore) Lock(ctx context.Context, id string) (func(), error) {
	s.mu.Lock()
	e, err := s.get(id)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	select {
	case e.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() { once.Do(func() { <-e.lock }) }, nil
}

func (s *SessionStore) update(id string, fn func(*entry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.get(id)
	if err != nil {
		return err
	}
	fn(e)
	return nil
}

// ChatLimiter is a fixed-window per-session counter.
type ChatLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	now    func() time.Time
	hits   map[string]windowCount
}

type windowCount struct {
	start time.Time
	n     int
}

func NewChatLimiter(limit int, window time.Duration) *ChatLimiter {
	return &ChatLimiter{limit: limit, window: window, now: time.Now, hits: make(map[string]windowCount)}
}

func (l *ChatLimiter) AllowChat(_ context.Context, sessionID string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	w := l.hits[sessionID]
	if now.Sub(w.start) >= l.window {
		w = windowCount{start: now}
	}
	w.n++
	l.hits[sessionID] = w
	return w.n <= l.limit, nil
}
