package model

import (
	"encoding/json"
	"fmt"

	"ai-playground/internal/domain"
)

// stateVersion guards stored payloads. A payload with another version is
// reported as corrupt instead of being loaded half-parsed.
const stateVersion = 1

type filesEnvelope struct {
	Version int           `json:"version"`
	Files   []VirtualFile `json:"files"`
}

type transcriptEnvelope struct {
	Version  int           `json:"version"`
	Messages []ChatMessage `json:"messages"`
}

// EncodeFiles serializes the whole store.
func EncodeFiles(s *FileStore) ([]byte, error) {
	return json.Marshal(filesEnvelope{Version: stateVersion, Files: s.Files()})
}

func DecodeFiles(data []byte) (*FileStore, error) {
	var env filesEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: files: %v", domain.ErrCorruptState, err)
	}
	if env.Version != stateVersion {
		return nil, fmt.Errorf("%w: files version %d", domain.ErrCorruptState, env.Version)
	}
	s := NewFileStore()
	for _, f := range env.Files {
		if f.Name == "" {
			return nil, fmt.Errorf("%w: file without name", domain.ErrCorruptState)
		}
		if _, dup := s.files[f.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate file %q", domain.ErrCorruptState, f.Name)
		}
		if f.Language == "" {
			f.Language = LanguageUnknown
		}
		s.insert(f)
	}
	return s, nil
}

func EncodeTranscript(msgs []ChatMessage) ([]byte, error) {
	if msgs == nil {
		msgs = []ChatMessage{}
	}
	return json.Marshal(transcriptEnvelope{Version: stateVersion, Messages: msgs})
}

func DecodeTranscript(data []byte) ([]ChatMessage, error) {
	var env transcriptEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: transcript: %v", domain.ErrCorruptState, err)
	}
	if env.Version != stateVersion {
		return nil, fmt.Errorf("%w: transcript version %d", domain.ErrCorruptState, env.Version)
	}
	if env.Messages == nil {
		env.Messages = []ChatMessage{}
	}
	return env.Messages, nil
}
