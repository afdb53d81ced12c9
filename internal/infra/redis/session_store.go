// File: internal/infra/redis/session_store.go
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"ai-playground/internal/domain"
	"ai-playground/internal/domain/model"
	"ai-playground/internal/domain/ports/repository"
	"ai-playground/internal/infra/security"
)

var _ repository.SessionStore = (*SessionStore)(nil)

const (
	lockLease = 30 * time.Second
	lockWait  = 2 * time.Second
)

// SessionStore keeps each session under playground:{id}:* keys. Every write
// replaces a whole value and refreshes the TTL of all of the session's keys.
type SessionStore struct {
	cli  *redis.Client
	lock *keyLock
	box  security.SecretBox
	ttl  time.Duration
}

func NewSessionStore(c *Client, box security.SecretBox, ttl time.Duration) *SessionStore {
	return &SessionStore{cli: c.cli, lock: newKeyLock(c.cli, lockLease, lockWait), box: box, ttl: ttl}
}

func key(sessionID, part string) string {
	return "playground:" + sessionID + ":" + part
}

func allKeys(sessionID string) []string {
	return []string{
		key(sessionID, "files"),
		key(sessionID, "transcript"),
		key(sessionID, "api_key"),
		key(sessionID, "seq"),
		key(sessionID, "frame"),
	}
}

func (s *SessionStore) Create(ctx context.Context, sess *model.Session) error {
	files, err := model.EncodeFiles(sess.Files)
	if err != nil {
		return err
	}
	transcript, err := model.EncodeTranscript(sess.Transcript)
	if err != nil {
		return err
	}
	ok, err := s.cli.SetNX(ctx, key(sess.ID, "files"), files, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: session %s exists", domain.ErrInvalidArgument, sess.ID)
	}
	return s.cli.Set(ctx, key(sess.ID, "transcript"), transcript, s.ttl).Err()
}

// Load reads files and transcript in one round trip.
func (s *SessionStore) Load(ctx context.Context, sessionID string) (*model.Session, error) {
	vals, err := s.cli.MGet(ctx, key(sessionID, "files"), key(sessionID, "transcript")).Result()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	filesRaw, ok := vals[0].(string)
	if !ok {
		return nil, domain.ErrNotFound
	}
	files, err := model.DecodeFiles([]byte(filesRaw))
	if err != nil {
		return nil, err
	}
	transcript := []model.ChatMessage{}
	if raw, ok := vals[1].(string); ok {
		if transcript, err = model.DecodeTranscript([]byte(raw)); err != nil {
			return nil, err
		}
	}
	s.touch(ctx, sessionID)
	return &model.Session{ID: sessionID, Files: files, Transcript: transcript}, nil
}

func (s *SessionStore) SaveFiles(ctx context.Context, sessionID string, files *model.FileStore) error {
	b, err := model.EncodeFiles(files)
	if err != nil {
		return err
	}
	return s.save(ctx, sessionID, "files", b)
}

func (s *SessionStore) SaveTranscript(ctx context.Context, sessionID string, msgs []model.ChatMessage) error {
	b, err := model.EncodeTranscript(msgs)
	if err != nil {
		return err
	}
	return s.save(ctx, sessionID, "transcript", b)
}

func (s *SessionStore) GetAPIKey(ctx context.Context, sessionID string) (string, error) {
	sealed, err := s.cli.Get(ctx, key(sessionID, "api_key")).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	k, err := s.box.Open(sessionID, sealed)
	if err != nil {
		return "", fmt.Errorf("%w: api key: %v", domain.ErrCorruptState, err)
	}
	return k, nil
}

func (s *SessionStore) SetAPIKey(ctx context.Context, sessionID, apiKey string) error {
	sealed, err := s.box.Seal(sessionID, apiKey)
	if err != nil {
		return err
	}
	return s.save(ctx, sessionID, "api_key", sealed)
}

func (s *SessionStore) ClearAPIKey(ctx context.Context, sessionID string) error {
	return s.cli.Del(ctx, key(sessionID, "api_key")).Err()
}

func (s *SessionStore) NextSeq(ctx context.Context, sessionID string) (int64, error) {
	k := key(sessionID, "seq")
	n, err := s.cli.Incr(ctx, k).Result()
	if err != nil {
		return 0, err
	}
	_ = s.cli.Expire(ctx, k, s.ttl).Err()
	return n, nil
}

func (s *SessionStore) CurrentSeq(ctx context.Context, sessionID string) (int64, error) {
	v, err := s.cli.Get(ctx, key(sessionID, "seq")).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

var frameGen = redis.NewScript(`
local g = redis.call("GET", KEYS[1])
if not g or ARGV[1] == "1" then
	g = redis.call("INCR", KEYS[1])
end
if tonumber(ARGV[2]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return tonumber(g)`)

func (s *SessionStore) FrameGen(ctx context.Context, sessionID string, bump bool) (int64, error) {
	flag := "0"
	if bump {
		flag = "1"
	}
	return frameGen.Run(ctx, s.cli, []string{key(sessionID, "frame")}, flag, s.ttl.Milliseconds()).Int64()
}

// Lock takes the session's lease. The returned func releases it even when
// ctx has already been cancelled.
func (s *SessionStore) Lock(ctx context.Context, sessionID string) (func(), error) {
	return s.lock.acquire(ctx, key(sessionID, "lock"))
}

func (s *SessionStore) save(ctx context.Context, sessionID, part string, value interface{}) error {
	if err := s.cli.Set(ctx, key(sessionID, part), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("save %s: %w", part, err)
	}
	s.touch(ctx, sessionID)
	return nil
}

func (s *SessionStore) touch(ctx context.Context, sessionID string) {
	_, _ = s.cli.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, k := range allKeys(sessionID) {
			p.Expire(ctx, k, s.ttl)
		}
		return nil
	})
}
