package model

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is a durable, named copy of a session's files.
type Snapshot struct {
	ID        string
	SessionID string
	Name      string
	Files     []VirtualFile
	CreatedAt time.Time
}

func NewSnapshot(sessionID, name string, files *FileStore) *Snapshot {
	return &Snapshot{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Name:      name,
		Files:     files.Files(),
		CreatedAt: time.Now().UTC(),
	}
}

// Store rebuilds a FileStore from the snapshot.
func (s *Snapshot) Store() *FileStore {
	fs := NewFileStore()
	for _, f := range s.Files {
		fs.insert(f)
	}
	return fs
}
