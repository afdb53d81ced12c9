//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ai-playground/internal/domain"
	"ai-playground/internal/domain/model"
	"ai-playground/internal/domain/ports/adapter"
	"ai-playground/internal/infra/memstore"
	"ai-playground/internal/infra/worker"
	"ai-playground/internal/preview"
	"ai-playground/internal/usecase"
)

type fixture struct {
	uc    usecase.PlaygroundUseCase
	store *memstore.SessionStore
	ai    *MockAI
	snaps *MockSnapshotRepo
	tm    *MockTxManager
	jobs  *InlineSubmitter
}

func newFixture(t *testing.T, opts usecase.Options) *fixture {
	t.Helper()
	f := &fixture{
		store: memstore.NewSessionStore(),
		ai:    &MockAI{},
		snaps: NewMockSnapshotRepo(),
		tm:    &MockTxManager{},
		jobs:  &InlineSubmitter{},
	}
	if opts.Model == "" {
		opts.Model = "mock-model"
	}
	f.uc = usecase.NewPlaygroundUseCase(f.store, nil, f.ai, preview.NewRenderer(0), f.snaps, f.tm, f.jobs, nil, opts, nil)
	return f
}

func (f *fixture) start(t *testing.T, withKey bool) *model.Session {
	t.Helper()
	s, err := f.uc.StartSession(context.Background())
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if withKey {
		if err := f.uc.SetAPIKey(context.Background(), s.ID, "test-key"); err != nil {
			t.Fatalf("SetAPIKey: %v", err)
		}
	}
	return s
}

func TestSendMessage_NoAPIKey(t *testing.T) {
	f := newFixture(t, usecase.Options{})
	ctx := context.Background()
	s := f.start(t, false)

	out, err := f.uc.SendMessage(ctx, s.ID, "Build a calculator")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if !errors.Is(out.Err, domain.ErrCredentialMissing) || !out.NoChange {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if f.ai.Calls() != 0 {
		t.Fatal("the model must not be called without a key")
	}

	msgs, _ := f.uc.Transcript(ctx, s.ID)
	if len(msgs) != 2 {
		t.Fatalf("expected exactly 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || msgs[0].Content != "Build a calculator" {
		t.Errorf("unexpected user message %+v", msgs[0])
	}
	if msgs[1].Role != model.RoleAssistant || !msgs[1].Error || !strings.Contains(msgs[1].Content, "API key") {
		t.Errorf("expected a credential notice, got %+v", msgs[1])
	}

	files, _ := f.uc.ListFiles(ctx, s.ID)
	if !sameFiles(files, model.NewSeededFileStore().Files()) {
		t.Error("files must be unchanged")
	}
}

func TestSendMessage_AppliesBlocks(t *testing.T) {
	f := newFixture(t, usecase.Options{Autosave: true, KeepSnapshots: 5})
	ctx := context.Background()
	s := f.start(t, true)
	f.ai.ReplyFunc = replyWith("Here you go.\n\n```javascript:app.js\nconsole.log('new');\n```\n\n```css:styles.css\nbody { color: red; }\n```\n")

	out, err := f.uc.SendMessage(ctx, s.ID, "make it red")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if out.NoChange || out.Stale || out.Err != nil {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(out.Changes) != 2 || !strings.Contains(out.Notice, "app.js") {
		t.Fatalf("expected two changes in the notice, got %+v", out)
	}

	js, _ := f.uc.GetFile(ctx, s.ID, model.AppJS)
	css, _ := f.uc.GetFile(ctx, s.ID, model.StylesCSS)
	html, _ := f.uc.GetFile(ctx, s.ID, model.IndexHTML)
	if js.Content != "console.log('new');" || css.Content != "body { color: red; }" {
		t.Fatalf("blocks not applied: %q %q", js.Content, css.Content)
	}
	if html.Content != model.NewSeededFileStore().Content(model.IndexHTML) {
		t.Fatal("index.html must be untouched")
	}

	frame, err := f.uc.Preview(ctx, s.ID)
	if err != nil || frame.Failed {
		t.Fatalf("preview: %+v %v", frame, err)
	}
	if !strings.Contains(frame.SrcDoc, "console.log('new');") || !strings.Contains(frame.SrcDoc, "color: red") ||
		!strings.Contains(frame.SrcDoc, "Hello, Playground!") {
		t.Error("preview must combine the new assets with the old index.html")
	}

	req := f.ai.Requests[0]
	if req.APIKey != "test-key" || req.Model != "mock-model" {
		t.Errorf("unexpected request %+v", req)
	}
	if !strings.Contains(req.System, "index.html, app.js, styles.css") {
		t.Errorf("system prompt must list the files: %q", req.System)
	}

	if f.jobs.Ran != 1 || f.snaps.Count() != 1 || f.tm.Txs != 1 {
		t.Errorf("expected one autosave in a tx, got ran=%d snaps=%d txs=%d", f.jobs.Ran, f.snaps.Count(), f.tm.Txs)
	}
}

func TestSendMessage_NoFences(t *testing.T) {
	f := newFixture(t, usecase.Options{})
	ctx := context.Background()
	s := f.start(t, true)
	f.ai.ReplyFunc = replyWith("Sure! A calculator needs buttons and a display.")

	out, err := f.uc.SendMessage(ctx, s.ID, "explain")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if !out.NoChange || out.Err != nil || len(out.Changes) != 0 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if !strings.Contains(out.Notice, "No code blocks") {
		t.Errorf("unexpected notice %q", out.Notice)
	}
	if out.Assistant.Error || out.Assistant.Content != "Sure! A calculator needs buttons and a display." {
		t.Errorf("assistant reply must be stored verbatim: %+v", out.Assistant)
	}
}

func TestSendMessage_UnterminatedFence(t *testing.T) {
	f := newFixture(t, usecase.Options{})
	s := f.start(t, true)
	f.ai.ReplyFunc = replyWith("```html:index.html\n<p>cut off")

	out, err := f.uc.SendMessage(context.Background(), s.ID, "go")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if !errors.Is(out.Err, domain.ErrParse) || len(out.Issues) != 1 {
		t.Fatalf("expected a parse failure with one issue, got %+v", out)
	}
	html, _ := f.uc.GetFile(context.Background(), s.ID, model.IndexHTML)
	if strings.Contains(html.Content, "cut off") {
		t.Fatal("a broken fence must not be applied")
	}
}

func TestSendMessage_UpstreamError(t *testing.T) {
	f := newFixture(t, usecase.Options{})
	ctx := context.Background()
	s := f.start(t, true)
	f.ai.ReplyFunc = func(context.Context, adapter.ChatRequest) (string, error) {
		return "", errors.Join(domain.ErrUpstream, errors.New("429 RESOURCE_EXHAUSTED: quota exceeded"))
	}

	out, err := f.uc.SendMessage(ctx, s.ID, "hi")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if !errors.Is(out.Err, domain.ErrUpstream) || !out.Assistant.Error {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if !strings.Contains(out.Assistant.Content, "quota exceeded") {
		t.Errorf("provider message must be forwarded verbatim: %q", out.Assistant.Content)
	}

	// the failed turn does not block the next one
	f.ai.ReplyFunc = replyWith("fine now")
	if out, err := f.uc.SendMessage(ctx, s.ID, "again"); err != nil || out.Err != nil {
		t.Fatalf("retry failed: %+v %v", out, err)
	}
	last := f.ai.Requests[len(f.ai.Requests)-1]
	for _, m := range last.Messages {
		if strings.Contains(m.Content, "quota exceeded") {
			t.Fatal("error notices must not be sent back to the model")
		}
	}
}

func TestSendMessage_TimeoutIsReported(t *testing.T) {
	f := newFixture(t, usecase.Options{Timeout: 10 * time.Millisecond})
	s := f.start(t, true)
	f.ai.ReplyFunc = func(ctx context.Context, _ adapter.ChatRequest) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	out, err := f.uc.SendMessage(context.Background(), s.ID, "slow")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if !errors.Is(out.Err, context.DeadlineExceeded) || !strings.Contains(out.Notice, "in time") {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestSendMessage_StaleReplyRecordedNotApplied(t *testing.T) {
	f := newFixture(t, usecase.Options{})
	ctx := context.Background()
	s := f.start(t, true)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.ai.ReplyFunc = func(_ context.Context, req adapter.ChatRequest) (string, error) {
		last := req.Messages[len(req.Messages)-1].Content
		if last == "first" {
			close(entered)
			<-release
			return "```javascript:app.js\nold();\n```", nil
		}
		return "```javascript:app.js\nnewer();\n```", nil
	}

	type result struct {
		out *usecase.ChatOutcome
		err error
	}
	firstDone := make(chan result, 1)
	go func() {
		out, err := f.uc.SendMessage(ctx, s.ID, "first")
		firstDone <- result{out, err}
	}()
	<-entered

	second, err := f.uc.SendMessage(ctx, s.ID, "second")
	if err != nil || second.Stale || len(second.Changes) != 1 {
		t.Fatalf("second turn should apply: %+v %v", second, err)
	}
	close(release)
	first := <-firstDone
	if first.err != nil {
		t.Fatalf("first turn: %v", first.err)
	}
	if !first.out.Stale || !errors.Is(first.out.Err, domain.ErrStaleResponse) || len(first.out.Changes) != 0 {
		t.Fatalf("first reply should be stale: %+v", first.out)
	}

	js, _ := f.uc.GetFile(ctx, s.ID, model.AppJS)
	if js.Content != "newer();" {
		t.Fatalf("stale reply overwrote newer files: %q", js.Content)
	}
	msgs, _ := f.uc.Transcript(ctx, s.ID)
	if len(msgs) != 4 {
		t.Fatalf("both turns must be recorded, got %d messages", len(msgs))
	}
	if msgs[3].Content != "```javascript:app.js\nold();\n```" {
		t.Errorf("stale reply must still be in the transcript: %+v", msgs[3])
	}
}

func TestSendMessage_Validation(t *testing.T) {
	f := newFixture(t, usecase.Options{})
	ctx := context.Background()
	s := f.start(t, true)

	if _, err := f.uc.SendMessage(ctx, s.ID, "   \n"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := f.uc.SendMessage(ctx, "missing", "hi"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	limited := usecase.NewPlaygroundUseCase(f.store, DenyLimiter{}, f.ai, nil, nil, nil, nil, nil, usecase.Options{}, nil)
	if _, err := limited.SendMessage(ctx, s.ID, "hi"); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if msgs, _ := f.uc.Transcript(ctx, s.ID); len(msgs) != 0 {
		t.Fatalf("rejected requests must not touch the transcript, got %d", len(msgs))
	}
}

func TestPreview_FallbackAndRefresh(t *testing.T) {
	store := memstore.NewSessionStore()
	uc := usecase.NewPlaygroundUseCase(store, nil, &MockAI{}, preview.NewRenderer(64), nil, nil, nil, nil, usecase.Options{}, nil)
	ctx := context.Background()
	s, _ := uc.StartSession(ctx)

	frame, err := uc.Preview(ctx, s.ID)
	if err != nil {
		t.Fatalf("render failures must not propagate: %v", err)
	}
	if !frame.Failed || frame.SrcDoc != preview.ErrorDocument || frame.Sandbox != preview.SandboxPolicy {
		t.Fatalf("expected the static error frame, got %+v", frame)
	}

	again, _ := uc.Preview(ctx, s.ID)
	refreshed, _ := uc.Refresh(ctx, s.ID)
	if again.Key != frame.Key {
		t.Errorf("preview must keep its key: %s vs %s", again.Key, frame.Key)
	}
	if refreshed.Key == frame.Key {
		t.Error("refresh must produce a new key")
	}

	// The key lives with the session, so another instance on the same store
	// serves the refreshed frame.
	other := usecase.NewPlaygroundUseCase(store, nil, &MockAI{}, preview.NewRenderer(64), nil, nil, nil, nil, usecase.Options{}, nil)
	if shared, _ := other.Preview(ctx, s.ID); shared.Key != refreshed.Key {
		t.Errorf("frame key must come from the session store: %s vs %s", shared.Key, refreshed.Key)
	}

	if _, err := uc.Preview(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEditFileAndAPIKey(t *testing.T) {
	f := newFixture(t, usecase.Options{})
	ctx := context.Background()
	s := f.start(t, false)

	vf, err := f.uc.EditFile(ctx, s.ID, "notes.md", "# todo")
	if err != nil {
		t.Fatalf("EditFile: %v", err)
	}
	if vf.Language != model.LanguageMarkdown {
		t.Errorf("language should be inferred, got %s", vf.Language)
	}
	if _, err := f.uc.EditFile(ctx, s.ID, "", "x"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := f.uc.GetFile(ctx, s.ID, "nope.js"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if has, _ := f.uc.HasAPIKey(ctx, s.ID); has {
		t.Fatal("new sessions have no key")
	}
	if err := f.uc.SetAPIKey(ctx, s.ID, "  "); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	_ = f.uc.SetAPIKey(ctx, s.ID, "k")
	if has, _ := f.uc.HasAPIKey(ctx, s.ID); !has {
		t.Fatal("key should be set")
	}
	_ = f.uc.ClearAPIKey(ctx, s.ID)
	if has, _ := f.uc.HasAPIKey(ctx, s.ID); has {
		t.Fatal("key should be cleared")
	}
}

func TestSnapshots(t *testing.T) {
	f := newFixture(t, usecase.Options{KeepSnapshots: 2, SnapshotRetention: time.Hour})
	ctx := context.Background()
	s := f.start(t, false)

	snap, err := f.uc.SaveSnapshot(ctx, s.ID, " v1 ")
	if err != nil || snap.Name != "v1" {
		t.Fatalf("SaveSnapshot: %+v %v", snap, err)
	}
	_, _ = f.uc.EditFile(ctx, s.ID, model.AppJS, "changed()")

	restored, err := f.uc.RestoreSnapshot(ctx, s.ID, snap.ID)
	if err != nil {
		t.Fatalf("RestoreSnapshot: %v", err)
	}
	if restored.Files.Content(model.AppJS) == "changed()" {
		t.Fatal("restore must bring back the snapshot files")
	}
	if js, _ := f.uc.GetFile(ctx, s.ID, model.AppJS); js.Content == "changed()" {
		t.Fatal("restore must be saved")
	}

	other := f.start(t, false)
	if _, err := f.uc.RestoreSnapshot(ctx, other.ID, snap.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("snapshots belong to their session, got %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := f.uc.SaveSnapshot(ctx, s.ID, ""); err != nil {
			t.Fatalf("SaveSnapshot: %v", err)
		}
	}
	list, _ := f.uc.ListSnapshots(ctx, s.ID)
	if len(list) != 2 {
		t.Fatalf("history must be pruned to 2, got %d", len(list))
	}

	if n, err := f.uc.PruneSnapshots(ctx); err != nil || n != 0 {
		t.Fatalf("fresh snapshots must survive retention: %d %v", n, err)
	}

	bare := usecase.NewPlaygroundUseCase(f.store, nil, f.ai, nil, nil, nil, nil, nil, usecase.Options{}, nil)
	if _, err := bare.SaveSnapshot(ctx, s.ID, "x"); !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestAutosaveDroppedWhenQueueFull(t *testing.T) {
	f := newFixture(t, usecase.Options{Autosave: true})
	f.jobs.Reject = worker.ErrQueueFull
	s := f.start(t, true)
	f.ai.ReplyFunc = replyWith("```css:styles.css\np{}\n```")

	out, err := f.uc.SendMessage(context.Background(), s.ID, "go")
	if err != nil || len(out.Changes) != 1 {
		t.Fatalf("a full queue must not fail the turn: %+v %v", out, err)
	}
	if f.snaps.Count() != 0 {
		t.Fatal("dropped autosave must not write")
	}
}

func sameFiles(a, b []model.VirtualFile) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSendMessage_TrimsHistoryToPromptBudget(t *testing.T) {
	// MockAI counts one token per message.
	f := newFixture(t, usecase.Options{MaxPromptTokens: 3})
	ctx := context.Background()
	s := f.start(t, true)
	f.ai.ReplyFunc = replyWith("noted")

	for _, text := range []string{"one", "two", "three"} {
		if _, err := f.uc.SendMessage(ctx, s.ID, text); err != nil {
			t.Fatalf("SendMessage(%s): %v", text, err)
		}
	}
	last := f.ai.Requests[len(f.ai.Requests)-1]
	if len(last.Messages) != 3 {
		t.Fatalf("expected history trimmed to 3 messages, got %d", len(last.Messages))
	}
	if got := last.Messages[len(last.Messages)-1]; got.Role != "user" || got.Content != "three" {
		t.Fatalf("latest user message must survive trimming, got %+v", got)
	}
	if last.Messages[0].Content != "two" {
		t.Errorf("oldest pair must go first, got %+v", last.Messages[0])
	}
}

func TestListModels_DefaultFirst(t *testing.T) {
	f := newFixture(t, usecase.Options{Model: "chosen", ProviderOf: func(string) string { return "mock" }})
	models, err := f.uc.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 || models[0].Name != "chosen" || models[1].Name != "mock-model" {
		t.Fatalf("unexpected models %+v", models)
	}
	if models[1].Provider != "mock" {
		t.Errorf("provider must be filled in, got %q", models[1].Provider)
	}
}
