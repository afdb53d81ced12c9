// File: internal/usecase/playground_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"ai-playground/internal/domain"
	"ai-playground/internal/domain/model"
	"ai-playground/internal/domain/ports/adapter"
	"ai-playground/internal/domain/ports/repository"
	"ai-playground/internal/infra/logging"
	"ai-playground/internal/infra/metrics"
	"ai-playground/internal/infra/worker"
	"ai-playground/internal/patch"
	"ai-playground/internal/preview"
)

// Compile-time check
var _ PlaygroundUseCase = (*playgroundUC)(nil)

type PlaygroundUseCase interface {
	StartSession(ctx context.Context) (*model.Session, error)
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
	ListFiles(ctx context.Context, sessionID string) ([]model.VirtualFile, error)
	GetFile(ctx context.Context, sessionID, name string) (model.VirtualFile, error)
	EditFile(ctx context.Context, sessionID, name, content string) (model.VirtualFile, error)

	SendMessage(ctx context.Context, sessionID, text string) (*ChatOutcome, error)
	Transcript(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
	ListModels(ctx context.Context) ([]adapter.ModelInfo, error)

	Preview(ctx context.Context, sessionID string) (preview.Frame, error)
	Refresh(ctx context.Context, sessionID string) (preview.Frame, error)

	SetAPIKey(ctx context.Context, sessionID, key string) error
	ClearAPIKey(ctx context.Context, sessionID string) error
	HasAPIKey(ctx context.Context, sessionID string) (bool, error)

	SaveSnapshot(ctx context.Context, sessionID, name string) (*model.Snapshot, error)
	RestoreSnapshot(ctx context.Context, sessionID, snapshotID string) (*model.Session, error)
	ListSnapshots(ctx context.Context, sessionID string) ([]*model.Snapshot, error)
	PruneSnapshots(ctx context.Context) (int64, error)
}

// ChatOutcome describes what one chat turn did. Err is the typed failure, if
// any; Notice is its rendered text (or a summary of applied changes).
type ChatOutcome struct {
	User      model.ChatMessage `json:"user"`
	Assistant model.ChatMessage `json:"assistant"`
	Changes   []patch.Change    `json:"changes,omitempty"`
	Issues    []patch.Issue     `json:"issues,omitempty"`
	NoChange  bool              `json:"no_change"`
	Stale     bool              `json:"stale"`
	Notice    string            `json:"notice,omitempty"`
	Err       error             `json:"-"`
}

// Options tunes the chat and snapshot behaviour.
type Options struct {
	Model           string
	Temperature     float32
	MaxOutputTokens int
	HistoryMessages int
	// MaxPromptTokens drops the oldest history until the prompt fits;
	// 0 sends HistoryMessages unchanged.
	MaxPromptTokens int
	Timeout         time.Duration

	// ProviderOf names the provider serving a model, for metrics labels.
	ProviderOf func(model string) string

	KeepSnapshots     int           // per session; 0 keeps all
	SnapshotRetention time.Duration // 0 disables PruneSnapshots
	Autosave          bool
}

// Submitter is the slice of worker.Pool used for autosave.
type Submitter interface {
	Submit(task worker.Task) error
}

type playgroundUC struct {
	store     repository.SessionStore
	limiter   repository.ChatLimiter
	ai        adapter.AIServiceAdapter
	renderer  *preview.Renderer
	snapshots repository.SnapshotRepository
	tm        repository.TransactionManager
	jobs      Submitter
	present   *Presenter
	opts      Options
	log       *zerolog.Logger
}

// NewPlaygroundUseCase wires the playground. limiter, snapshots, tm and jobs
// may be nil; snapshot operations then return domain.ErrUnavailable.
func NewPlaygroundUseCase(
	store repository.SessionStore,
	limiter repository.ChatLimiter,
	ai adapter.AIServiceAdapter,
	renderer *preview.Renderer,
	snapshots repository.SnapshotRepository,
	tm repository.TransactionManager,
	jobs Submitter,
	present *Presenter,
	opts Options,
	logger *zerolog.Logger,
) *playgroundUC {
	if renderer == nil {
		renderer = preview.NewRenderer(0)
	}
	if present == nil {
		present = defaultPresenter
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.ProviderOf == nil {
		opts.ProviderOf = func(string) string { return "default" }
	}
	l := logger.With().Str("component", "PlaygroundUC").Logger()
	return &playgroundUC{
		store:     store,
		limiter:   limiter,
		ai:        ai,
		renderer:  renderer,
		snapshots: snapshots,
		tm:        tm,
		jobs:      jobs,
		present:   present,
		opts:      opts,
		log:       &l,
	}
}

// -----------------------------
// Session and files
// -----------------------------

func (u *playgroundUC) StartSession(ctx context.Context) (*model.Session, error) {
	defer logging.Timed(u.log, "playground.start_session")()
	s := model.NewSession()
	if err := u.store.Create(ctx, s); err != nil {
		return nil, err
	}
	logging.With(logging.WithSession(ctx, s.ID), u.log).Info().Msg("session started")
	return s, nil
}

func (u *playgroundUC) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	return u.store.Load(ctx, sessionID)
}

func (u *playgroundUC) ListFiles(ctx context.Context, sessionID string) ([]model.VirtualFile, error) {
	s, err := u.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.Files.Files(), nil
}

func (u *playgroundUC) GetFile(ctx context.Context, sessionID, name string) (model.VirtualFile, error) {
	s, err := u.store.Load(ctx, sessionID)
	if err != nil {
		return model.VirtualFile{}, err
	}
	f, ok := s.Files.Get(name)
	if !ok {
		return model.VirtualFile{}, fmt.Errorf("%w: file %q", domain.ErrNotFound, name)
	}
	return f, nil
}

// EditFile creates or overwrites a file from the editor.
func (u *playgroundUC) EditFile(ctx context.Context, sessionID, name, content string) (model.VirtualFile, error) {
	defer logging.Timed(u.log, "playground.edit_file")()
	var out model.VirtualFile
	err := u.mutate(ctx, sessionID, func(s *model.Session) error {
		if err := s.Files.Set(name, content); err != nil {
			return err
		}
		out, _ = s.Files.Get(name)
		return u.store.SaveFiles(ctx, sessionID, s.Files)
	})
	return out, err
}

func (u *playgroundUC) Transcript(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	s, err := u.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.Transcript, nil
}

// ListModels describes every selectable model. The configured default is
// always listed first.
func (u *playgroundUC) ListModels(ctx context.Context) ([]adapter.ModelInfo, error) {
	names, err := u.ai.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUpstream, err.Error())
	}
	out := make([]adapter.ModelInfo, 0, len(names)+1)
	add := func(name string) {
		info, err := u.ai.GetModelInfo(name)
		if err != nil || info.Name == "" {
			info = adapter.ModelInfo{Name: name}
		}
		if info.Provider == "" {
			info.Provider = u.opts.ProviderOf(name)
		}
		out = append(out, info)
	}
	if u.opts.Model != "" {
		add(u.opts.Model)
	}
	for _, n := range names {
		if n != u.opts.Model {
			add(n)
		}
	}
	return out, nil
}

// -----------------------------
// Chat
// -----------------------------

// SendMessage runs one chat turn. Failures of the turn itself (no key,
// provider error, unreadable fences, stale reply) are recorded in the
// transcript and reported through the outcome; the returned error is kept for
// requests that never reached the transcript.
//
// The session lock is held while recording the request and while recording
// the reply, never across the model call. Each turn takes a sequence number;
// a reply whose number is no longer current is recorded but not applied.
func (u *playgroundUC) SendMessage(ctx context.Context, sessionID, text string) (*ChatOutcome, error) {
	defer logging.Timed(u.log, "playground.send_message")()
	ctx = logging.WithSession(ctx, sessionID)
	log := logging.With(ctx, u.log)

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty message", domain.ErrInvalidArgument)
	}
	if u.limiter != nil {
		ok, err := u.limiter.AllowChat(ctx, sessionID)
		switch {
		case err != nil:
			// fail open: a limiter outage must not block chatting
			log.Warn().Err(err).Msg("chat limiter unavailable")
		case !ok:
			metrics.IncChatRateLimited()
			return nil, domain.ErrRateLimited
		}
	}

	turn, err := u.recordRequest(ctx, sessionID, text)
	if err != nil {
		return nil, err
	}
	if turn.done != nil {
		return turn.done, nil
	}

	u.fitPrompt(ctx, &turn.req)
	reply, callErr := u.callModel(ctx, turn.req)
	if callErr != nil {
		log.Warn().Err(callErr).Int64("seq", turn.seq).Msg("model call failed")
	}

	// the reply is recorded even if the caller went away meanwhile
	return u.recordReply(context.WithoutCancel(ctx), sessionID, turn, reply, callErr)
}

type chatTurn struct {
	user model.ChatMessage
	seq  int64
	req  adapter.ChatRequest
	done *ChatOutcome // set when the turn ended without a model call
}

func (u *playgroundUC) recordRequest(ctx context.Context, sessionID, text string) (*chatTurn, error) {
	turn := &chatTurn{}
	err := u.mutate(ctx, sessionID, func(s *model.Session) error {
		turn.user = s.AddMessage(model.RoleUser, text)

		apiKey, err := u.store.GetAPIKey(ctx, sessionID)
		if err != nil {
			return err
		}
		if apiKey == "" {
			out := &ChatOutcome{User: turn.user, NoChange: true, Err: domain.ErrCredentialMissing}
			out.Notice = u.present.Present(out.Err)
			out.Assistant = s.AddError(out.Notice)
			turn.done = out
			return u.store.SaveTranscript(ctx, sessionID, s.Transcript)
		}

		if turn.seq, err = u.store.NextSeq(ctx, sessionID); err != nil {
			return err
		}
		turn.req = adapter.ChatRequest{
			APIKey:          apiKey,
			Model:           u.opts.Model,
			System:          u.systemPrompt(s.Files),
			Messages:        toAdapterMessages(s.Conversation(u.opts.HistoryMessages)),
			Temperature:     u.opts.Temperature,
			MaxOutputTokens: u.opts.MaxOutputTokens,
		}
		return u.store.SaveTranscript(ctx, sessionID, s.Transcript)
	})
	if err != nil {
		return nil, err
	}
	return turn, nil
}

// fitPrompt trims req.Messages from the front, a user/assistant pair at a
// time, until the provider's token count is within MaxPromptTokens. The
// latest user message is always kept. Counting errors leave req as is.
func (u *playgroundUC) fitPrompt(ctx context.Context, req *adapter.ChatRequest) {
	if u.opts.MaxPromptTokens <= 0 {
		return
	}
	for len(req.Messages) > 1 {
		n, err := u.ai.CountTokens(ctx, *req)
		if err != nil {
			logging.With(ctx, u.log).Debug().Err(err).Msg("token count unavailable; sending full history")
			return
		}
		if n <= u.opts.MaxPromptTokens {
			return
		}
		drop := 2
		if len(req.Messages)-drop < 1 {
			drop = len(req.Messages) - 1
		}
		req.Messages = req.Messages[drop:]
	}
}

func (u *playgroundUC) callModel(ctx context.Context, req adapter.ChatRequest) (string, error) {
	if u.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.opts.Timeout)
		defer cancel()
	}
	start := time.Now()
	reply, usage, err := u.ai.ChatWithUsage(ctx, req)
	call := metrics.ModelCall{
		Provider:         u.opts.ProviderOf(req.Model),
		Model:            req.Model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		Elapsed:          time.Since(start),
	}
	if err != nil {
		call.ErrKind = errorKind(err)
	}
	metrics.ObserveModelCall(call)
	return reply, err
}

func (u *playgroundUC) recordReply(ctx context.Context, sessionID string, turn *chatTurn, reply string, callErr error) (*ChatOutcome, error) {
	out := &ChatOutcome{User: turn.user}
	var applied *model.FileStore

	err := u.mutate(ctx, sessionID, func(s *model.Session) error {
		if callErr != nil {
			out.NoChange = true
			out.Err = callErr
			out.Notice = u.present.Present(callErr)
			out.Assistant = s.AddError(out.Notice)
			return u.store.SaveTranscript(ctx, sessionID, s.Transcript)
		}

		out.Assistant = s.AddMessage(model.RoleAssistant, reply)
		res := patch.Extract(reply)
		out.Issues = res.Issues
		for _, is := range res.Issues {
			metrics.IncPatchIssue(string(is.Kind))
		}

		current, err := u.store.CurrentSeq(ctx, sessionID)
		if err != nil {
			return err
		}
		switch {
		case res.Empty():
			out.NoChange = true
			out.Err = res.Err()
		case current > turn.seq:
			out.Stale = true
			out.NoChange = true
			out.Err = domain.ErrStaleResponse
			metrics.IncStaleReply()
		default:
			out.Changes = patch.Apply(s.Files, res.Blocks)
			for _, c := range out.Changes {
				if !c.Unchanged {
					metrics.IncPatchApplied(string(c.Language), c.Created)
				}
			}
			if err := u.store.SaveFiles(ctx, sessionID, s.Files); err != nil {
				return err
			}
			applied = s.Files.Clone()
		}
		out.Notice = u.notice(out)
		return u.store.SaveTranscript(ctx, sessionID, s.Transcript)
	})
	if err != nil {
		return nil, err
	}

	logging.With(ctx, u.log).Debug().
		Int64("seq", turn.seq).
		Int("changes", len(out.Changes)).
		Int("issues", len(out.Issues)).
		Bool("stale", out.Stale).
		Msg("chat turn recorded")

	if applied != nil {
		u.autosave(sessionID, applied)
	}
	return out, nil
}

func (u *playgroundUC) notice(out *ChatOutcome) string {
	switch {
	case out.Err != nil:
		return u.present.Present(out.Err)
	case out.NoChange:
		return u.present.T("notice_no_change")
	default:
		return u.present.T("notice_applied", len(out.Changes), patch.Summary(out.Changes))
	}
}

func (u *playgroundUC) systemPrompt(files *model.FileStore) string {
	return strings.TrimSpace(u.present.T("system_prompt", strings.Join(files.Names(), ", ")))
}

func toAdapterMessages(msgs []model.ChatMessage) []adapter.Message {
	out := make([]adapter.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, adapter.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrCredentialMissing):
		return "credential"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "upstream"
	}
}

// -----------------------------
// Preview
// -----------------------------

func (u *playgroundUC) Preview(ctx context.Context, sessionID string) (preview.Frame, error) {
	return u.frame(ctx, sessionID, false)
}

// Refresh rebuilds the document under a new frame key so clients remount it.
func (u *playgroundUC) Refresh(ctx context.Context, sessionID string) (preview.Frame, error) {
	return u.frame(ctx, sessionID, true)
}

// frame never fails for render reasons; those yield the static error frame.
func (u *playgroundUC) frame(ctx context.Context, sessionID string, bump bool) (preview.Frame, error) {
	s, err := u.store.Load(ctx, sessionID)
	if err != nil {
		return preview.Frame{}, err
	}
	gen, err := u.store.FrameGen(ctx, sessionID, bump)
	if err != nil {
		return preview.Frame{}, fmt.Errorf("frame generation: %w", err)
	}
	doc, err := u.compose(s.Files)
	if err != nil {
		metrics.IncPreviewRender(false)
		logging.With(logging.WithSession(ctx, sessionID), u.log).Warn().Err(err).Msg("preview render failed")
		return preview.ErrorFrame(gen), nil
	}
	metrics.IncPreviewRender(true)
	return preview.NewFrame(doc, gen), nil
}

func (u *playgroundUC) compose(files *model.FileStore) (doc string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", domain.ErrRender, r)
		}
	}()
	return u.renderer.Compose(files)
}

// -----------------------------
// API key
// -----------------------------

func (u *playgroundUC) SetAPIKey(ctx context.Context, sessionID, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: empty api key", domain.ErrInvalidArgument)
	}
	if _, err := u.store.Load(ctx, sessionID); err != nil {
		return err
	}
	if err := u.store.SetAPIKey(ctx, sessionID, key); err != nil {
		return err
	}
	logging.With(logging.WithSession(ctx, sessionID), u.log).Info().Str("key", logging.MaskKey(key)).Msg("api key stored")
	return nil
}

func (u *playgroundUC) ClearAPIKey(ctx context.Context, sessionID string) error {
	if _, err := u.store.Load(ctx, sessionID); err != nil {
		return err
	}
	return u.store.ClearAPIKey(ctx, sessionID)
}

func (u *playgroundUC) HasAPIKey(ctx context.Context, sessionID string) (bool, error) {
	k, err := u.store.GetAPIKey(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return k != "", nil
}

// -----------------------------
// Snapshots
// -----------------------------

const autosaveName = "autosave"

func (u *playgroundUC) SaveSnapshot(ctx context.Context, sessionID, name string) (*model.Snapshot, error) {
	defer logging.Timed(u.log, "playground.save_snapshot")()
	if u.snapshots == nil {
		return nil, domain.ErrUnavailable
	}
	s, err := u.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "snapshot " + time.Now().UTC().Format(time.RFC3339)
	}
	snap := model.NewSnapshot(sessionID, name, s.Files)
	if err := u.storeSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// storeSnapshot saves and trims the session's history in one transaction.
func (u *playgroundUC) storeSnapshot(ctx context.Context, snap *model.Snapshot) error {
	return u.withTx(ctx, func(ctx context.Context, qx repository.Tx) error {
		if err := u.snapshots.Save(ctx, qx, snap); err != nil {
			return err
		}
		if u.opts.KeepSnapshots > 0 {
			if _, err := u.snapshots.PruneSession(ctx, qx, snap.SessionID, u.opts.KeepSnapshots); err != nil {
				return err
			}
		}
		return nil
	})
}

func (u *playgroundUC) RestoreSnapshot(ctx context.Context, sessionID, snapshotID string) (*model.Session, error) {
	defer logging.Timed(u.log, "playground.restore_snapshot")()
	if u.snapshots == nil {
		return nil, domain.ErrUnavailable
	}
	snap, err := u.snapshots.FindByID(ctx, repository.NoTX, snapshotID)
	if err != nil {
		return nil, err
	}
	if snap.SessionID != sessionID {
		return nil, fmt.Errorf("%w: snapshot %s", domain.ErrNotFound, snapshotID)
	}
	var out *model.Session
	err = u.mutate(ctx, sessionID, func(s *model.Session) error {
		s.Files = snap.Store()
		out = s
		return u.store.SaveFiles(ctx, sessionID, s.Files)
	})
	return out, err
}

func (u *playgroundUC) ListSnapshots(ctx context.Context, sessionID string) ([]*model.Snapshot, error) {
	if u.snapshots == nil {
		return nil, domain.ErrUnavailable
	}
	return u.snapshots.ListBySession(ctx, repository.NoTX, sessionID, 50)
}

func (u *playgroundUC) PruneSnapshots(ctx context.Context) (int64, error) {
	if u.snapshots == nil || u.opts.SnapshotRetention <= 0 {
		return 0, nil
	}
	return u.snapshots.DeleteOlderThan(ctx, repository.NoTX, time.Now().Add(-u.opts.SnapshotRetention))
}

func (u *playgroundUC) autosave(sessionID string, files *model.FileStore) {
	if !u.opts.Autosave || u.snapshots == nil || u.jobs == nil {
		return
	}
	snap := model.NewSnapshot(sessionID, autosaveName, files)
	err := u.jobs.Submit(func(ctx context.Context) error {
		if err := u.storeSnapshot(ctx, snap); err != nil {
			metrics.IncAutosaveJob("failed")
			return fmt.Errorf("autosave %s: %w", sessionID, err)
		}
		metrics.IncAutosaveJob("completed")
		return nil
	})
	if err != nil {
		metrics.IncAutosaveJob("dropped")
		u.log.Warn().Err(err).Str("session_id", sessionID).Msg("autosave dropped")
	}
}

// -----------------------------
// helpers
// -----------------------------

// mutate runs fn on a freshly loaded session while holding its lock.
func (u *playgroundUC) mutate(ctx context.Context, sessionID string, fn func(s *model.Session) error) error {
	unlock, err := u.store.Lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()
	s, err := u.store.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	return fn(s)
}

func (u *playgroundUC) withTx(ctx context.Context, fn func(ctx context.Context, qx repository.Tx) error) error {
	if u.tm == nil {
		return fn(ctx, repository.NoTX)
	}
	return u.tm.WithTx(ctx, pgx.TxOptions{}, fn)
}
