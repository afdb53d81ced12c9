package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ai-playground/internal/domain"
	"ai-playground/internal/domain/model"
	"ai-playground/internal/domain/ports/adapter"
	"ai-playground/internal/infra/logging"
	"ai-playground/internal/preview"
	"ai-playground/internal/usecase"
	"ai-playground/internal/views"
)

// maxBody caps JSON request bodies; file contents travel inside them.
const maxBody = 4 << 20

type sessionView struct {
	ID         string              `json:"id"`
	Files      []model.VirtualFile `json:"files"`
	Transcript []model.ChatMessage `json:"transcript"`
	HasAPIKey  bool                `json:"has_api_key"`
	CreatedAt  time.Time           `json:"created_at"`
	Token      string              `json:"token,omitempty"`
}

func newSessionView(s *model.Session, hasKey bool) sessionView {
	return sessionView{
		ID:         s.ID,
		Files:      s.Files.Files(),
		Transcript: s.Transcript,
		HasAPIKey:  hasKey,
		CreatedAt:  s.CreatedAt,
	}
}

type snapshotView struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Files     []model.VirtualFile `json:"files,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

func newSnapshotView(s *model.Snapshot, withFiles bool) snapshotView {
	v := snapshotView{ID: s.ID, Name: s.Name, CreatedAt: s.CreatedAt}
	if withFiles {
		v.Files = s.Files
	}
	return v
}

type chatResponse struct {
	*usecase.ChatOutcome
	Error string `json:"error,omitempty"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

// -----------------------------
// Sessions
// -----------------------------

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.uc.StartSession(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tok, err := s.auth.Mint(w, sess.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	v := newSessionView(sess, false)
	v.Token = tok
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	ctx, id := s.sessionCtx(r)
	sess, err := s.uc.GetSession(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	hasKey, err := s.uc.HasAPIKey(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(sess, hasKey))
}

// forgetSession drops the browser's binding; the stored state expires with
// its TTL.
func (s *Server) forgetSession(w http.ResponseWriter, r *http.Request) {
	s.auth.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// -----------------------------
// Files
// -----------------------------

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	ctx, id := s.sessionCtx(r)
	files, err := s.uc.ListFiles(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[model.VirtualFile]{Items: files})
}

func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	ctx, id := s.sessionCtx(r)
	f, err := s.uc.GetFile(ctx, id, chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) putFile(w http.ResponseWriter, r *http.Request) {
	ctx, id := s.sessionCtx(r)
	var req struct {
		Content *string `json:"content"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Content == nil {
		s.writeError(w, r, fmt.Errorf("%w: content is required", domain.ErrInvalidArgument))
		return
	}
	f, err := s.uc.EditFile(ctx, id, chi.URLParam(r, "name"), *req.Content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// -----------------------------
// Chat
// -----------------------------

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	ctx, id := s.sessionCtx(r)
	var req struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.uc.SendMessage(ctx, id, req.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// a failed turn is still a recorded turn, so the status stays 200
	resp := chatResponse{ChatOutcome: out}
	if out.Err != nil {
		resp.Error = errorCode(out.Err)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) messages(w http.ResponseWriter, r *http.Request) {
	ctx, id := s.sessionCtx(r)
	msgs, err := s.uc.Transcript(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "html" {
		page, err := views.RenderTranscript(msgs)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeHTML(w, page)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[model.ChatMessage]{Items: msgs})
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.uc.ListModels(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[adapter.ModelInfo]{Items: models})
}

// -----------------------------
// Preview
// -----------------------------

// preview serves the composed document itself. The CSP sandbox applies the
// same restrictions as the iframe when the document is opened directly.
func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	ctx, id := s.sessionCtx(r)
	f, err := s.uc.Preview(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Security-Policy", "sandbox "+preview.SandboxPolicy)
	w.Header().Set("X-Preview-Key", f.Key)
	writeHTML(w, []byte(f.SrcDoc))
}

// frame serves a host page embedding the sandboxed iframe; ?refresh=1 forces
// a new frame key. format=json returns the frame description instead.
func (s *Server) frame(w http.ResponseWriter, r *http.Request) {
	ctx, id := s.sessionCtx(r)
	get := s.uc.Preview
	if r.URL.Query().Get("refresh") == "1" {
		get = s.uc.Refresh
	}
	f, err := get(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, f)
		return
	}
	page, err := preview.HostPage(f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeHTML(w, page)
}

// -----------------------------
// API key
// -----------------------------

func (s *Server) setAPIKey(w http.ResponseWriter, r *http.Request) {
	ctx, id := s.sessionCtx(r)
	var req struct {
		APIKey string `json:"api_key"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.uc.SetAPIKey(ctx, id, req.APIKey); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearAPIKey(w http.ResponseWriter, r *http.Request) {
	ctx, id := s.sessionCtx(r)
	if err := s.uc.ClearAPIKey(ctx, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// -----------------------------
// Snapshots
// -----------------------------

func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request) {
	ctx, id := s.sessionCtx(r)
	snaps, err := s.uc.ListSnapshots(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items := make([]snapshotView, 0, len(snaps))
	for _, sn := range snaps {
		items = append(items, newSnapshotView(sn, false))
	}
	writeJSON(w, http.StatusOK, listResponse[snapshotView]{Items: items})
}

func (s *Server) saveSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx, id := s.sessionCtx(r)
	var req struct {
		Name string `json:"name"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	snap, err := s.uc.SaveSnapshot(ctx, id, req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSnapshotView(snap, true))
}

func (s *Server) restoreSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx, id := s.sessionCtx(r)
	sess, err := s.uc.RestoreSnapshot(ctx, id, chi.URLParam(r, "sid"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	hasKey, err := s.uc.HasAPIKey(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(sess, hasKey))
}

// -----------------------------
// helpers
// -----------------------------

func (s *Server) sessionCtx(r *http.Request) (context.Context, string) {
	id := chi.URLParam(r, "id")
	return logging.WithSession(r.Context(), id), id
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			return fmt.Errorf("%w: request body too large", domain.ErrInvalidArgument)
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: empty request body", domain.ErrInvalidArgument)
		default:
			return fmt.Errorf("%w: malformed JSON", domain.ErrInvalidArgument)
		}
	}
	return nil
}

// writeError is the HTTP side of the presentation boundary: the status comes
// from the error kind and the message from the presenter.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeStatus(w, status, errorCode(err), s.present(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrCredentialMissing):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrSessionBusy):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusNotImplemented
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// errorCode is the stable machine-readable name of an error kind.
func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrCredentialMissing):
		return "credential_missing"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domain.ErrUpstream):
		return "upstream"
	case errors.Is(err, domain.ErrParse):
		return "parse"
	case errors.Is(err, domain.ErrRender):
		return "render"
	case errors.Is(err, domain.ErrStaleResponse):
		return "stale"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrSessionBusy):
		return "session_busy"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, domain.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, domain.ErrCorruptState):
		return "corrupt_state"
	default:
		return "internal"
	}
}

func writeStatus(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}{code, message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeHTML(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
