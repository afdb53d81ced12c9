//go:build integration

package redis

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"ai-playground/internal/config"
	"ai-playground/internal/domain"
	"ai-playground/internal/domain/model"
	"ai-playground/internal/infra/security"
)

func newTestStore(t *testing.T) (*SessionStore, *Client) {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/15"
	}
	ctx := context.Background()
	c, err := NewClient(ctx, &config.RedisConfig{URL: url})
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	box, err := security.NewAESBox("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("encryption: %v", err)
	}
	return NewSessionStore(c, box, time.Minute), c
}

func TestSessionStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, c := newTestStore(t)

	sess := model.NewSession()
	t.Cleanup(func() { _ = c.Del(ctx, allKeys(sess.ID)...) })

	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, sess); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("second create should fail, got %v", err)
	}

	_ = sess.Files.Set(model.AppJS, "console.log(1)")
	if err := store.SaveFiles(ctx, sess.ID, sess.Files); err != nil {
		t.Fatalf("save files: %v", err)
	}
	sess.AddMessage(model.RoleUser, "hi")
	if err := store.SaveTranscript(ctx, sess.ID, sess.Transcript); err != nil {
		t.Fatalf("save transcript: %v", err)
	}

	got, err := store.Load(ctx, sess.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Files.Content(model.AppJS) != "console.log(1)" || len(got.Transcript) != 1 {
		t.Fatalf("unexpected session %+v", got)
	}

	if _, err := store.Load(ctx, "missing-session"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionStore_APIKeyEncryptedAtRest(t *testing.T) {
	ctx := context.Background()
	store, c := newTestStore(t)
	id := "k-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { _ = c.Del(ctx, allKeys(id)...) })

	if k, err := store.GetAPIKey(ctx, id); err != nil || k != "" {
		t.Fatalf("expected empty key, got %q %v", k, err)
	}
	if err := store.SetAPIKey(ctx, id, "AIza-test"); err != nil {
		t.Fatalf("set: %v", err)
	}
	raw, _ := c.Get(ctx, key(id, "api_key"))
	if raw == "AIza-test" {
		t.Fatal("api key stored in plaintext")
	}
	if k, _ := store.GetAPIKey(ctx, id); k != "AIza-test" {
		t.Fatalf("unexpected key %q", k)
	}
	if err := store.ClearAPIKey(ctx, id); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if k, _ := store.GetAPIKey(ctx, id); k != "" {
		t.Fatalf("key not cleared: %q", k)
	}
}

func TestSessionStore_FrameGenExpires(t *testing.T) {
	ctx := context.Background()
	store, c := newTestStore(t)
	id := "f-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { _ = c.Del(ctx, allKeys(id)...) })

	g1, err := store.FrameGen(ctx, id, false)
	if err != nil || g1 != 1 {
		t.Fatalf("first generation = %d, %v", g1, err)
	}
	if g, _ := store.FrameGen(ctx, id, false); g != 1 {
		t.Fatalf("generation moved without a bump: %d", g)
	}
	if g, _ := store.FrameGen(ctx, id, true); g != 2 {
		t.Fatalf("bump gave %d, want 2", g)
	}
	if ttl := c.cli.PTTL(ctx, key(id, "frame")).Val(); ttl <= 0 {
		t.Fatalf("frame key must expire with the session, ttl %v", ttl)
	}
}

func TestSessionStore_SeqAndLock(t *testing.T) {
	ctx := context.Background()
	store, c := newTestStore(t)
	id := "l-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { _ = c.Del(ctx, append(allKeys(id), key(id, "lock"))...) })

	a, _ := store.NextSeq(ctx, id)
	b, _ := store.NextSeq(ctx, id)
	if b != a+1 {
		t.Fatalf("seq not monotonic: %d %d", a, b)
	}
	if cur, _ := store.CurrentSeq(ctx, id); cur != b {
		t.Fatalf("current %d, want %d", cur, b)
	}

	var mu sync.Mutex
	inside := 0
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := store.Lock(ctx, id)
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > 1 {
				t.Errorf("lock not exclusive")
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
}

func TestRateLimiter_AllowChat(t *testing.T) {
	ctx := context.Background()
	_, c := newTestStore(t)
	id := "r-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { _ = c.Del(ctx, rateKey(id)) })

	rl := NewRateLimiter(c, 2, time.Minute)
	for i := 0; i < 2; i++ {
		if ok, err := rl.AllowChat(ctx, id); err != nil || !ok {
			t.Fatalf("request %d should pass: %v", i, err)
		}
	}
	if ok, _ := rl.AllowChat(ctx, id); ok {
		t.Fatal("third request should be throttled")
	}
	if _, left, err := c.Hit(ctx, rateKey(id), time.Minute); err != nil || left <= 0 || left > time.Minute {
		t.Fatalf("window ttl %v %v", left, err)
	}
}

func TestLock_BusyWhenHeld(t *testing.T) {
	ctx := context.Background()
	_, c := newTestStore(t)
	k := "playground:lock-test-" + time.Now().Format("150405.000000") + ":lock"
	t.Cleanup(func() { _ = c.Del(ctx, k) })

	l := newKeyLock(c.cli, time.Second, 50*time.Millisecond)
	release, err := l.acquire(ctx, k)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := l.acquire(ctx, k); !errors.Is(err, domain.ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy, got %v", err)
	}
	release()
	again, err := l.acquire(ctx, k)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	again()
}
