package repository

import (
	"context"

	"ai-playground/internal/domain/model"
)

// SessionStore is the load/save boundary for playground session state. It
// keeps three values per session (api key, files, transcript) and writes each
// one whole; there are no incremental updates.
type SessionStore interface {
	// Load returns domain.ErrNotFound when the session does not exist.
	Load(ctx context.Context, sessionID string) (*model.Session, error)
	Create(ctx context.Context, s *model.Session) error

	SaveFiles(ctx context.Context, sessionID string, files *model.FileStore) error
	SaveTranscript(ctx context.Context, sessionID string, msgs []model.ChatMessage) error

	// GetAPIKey returns "" with a nil error when no key is set.
	GetAPIKey(ctx context.Context, sessionID string) (string, error)
	SetAPIKey(ctx context.Context, sessionID, key string) error
	ClearAPIKey(ctx context.Context, sessionID string) error

	// NextSeq returns a strictly increasing per-session request number.
	NextSeq(ctx context.Context, sessionID string) (int64, error)
	// CurrentSeq returns the last number handed out by NextSeq (0 if none).
	CurrentSeq(ctx context.Context, sessionID string) (int64, error)

	// FrameGen returns the session's preview frame generation. It advances
	// when bump is set or when no generation was handed out yet.
	FrameGen(ctx context.Context, sessionID string, bump bool) (int64, error)

	// Lock serializes read-modify-write cycles on one session.
	Lock(ctx context.Context, sessionID string) (unlock func(), err error)
}

// ChatLimiter throttles chat requests per session.
type ChatLimiter interface {
	AllowChat(ctx context.Context, sessionID string) (bool, error)
}
