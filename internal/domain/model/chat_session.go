package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one transcript entry. Messages are append-only.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Error     bool      `json:"error,omitempty"` // assistant notice standing in for a failed reply
	CreatedAt time.Time `json:"created_at"`
}

// Session is the whole playground state of one user: the project files and
// the chat transcript. It is loaded once per operation and saved after every
// mutation through a SessionStore.
type Session struct {
	ID         string
	Files      *FileStore
	Transcript []ChatMessage
	CreatedAt  time.Time
}

func NewSession() *Session {
	return &Session{
		ID:         uuid.NewString(),
		Files:      NewSeededFileStore(),
		Transcript: make([]ChatMessage, 0, 8),
		CreatedAt:  time.Now().UTC(),
	}
}

// AddMessage appends to the transcript and returns the stored message.
func (s *Session) AddMessage(role Role, content string) ChatMessage {
	m := ChatMessage{
		ID:        ulid.Make().String(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	s.Transcript = append(s.Transcript, m)
	return m
}

// AddError appends an assistant notice for a failed request.
func (s *Session) AddError(notice string) ChatMessage {
	m := s.AddMessage(RoleAssistant, notice)
	m.Error = true
	s.Transcript[len(s.Transcript)-1] = m
	return m
}

// Conversation returns at most n trailing messages, leaving out error
// notices since they never came from the model.
func (s *Session) Conversation(n int) []ChatMessage {
	out := make([]ChatMessage, 0, len(s.Transcript))
	for _, m := range s.Transcript {
		if !m.Error {
			out = append(out, m)
		}
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}
