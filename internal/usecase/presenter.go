// File: internal/usecase/presenter.go
package usecase

import (
	"context"
	"errors"
	"strings"

	"ai-playground/internal/domain"
	"ai-playground/internal/infra/i18n"
)

// Presenter is the one place where errors become user-facing text. Chat
// bubbles, preview banners and HTTP error bodies all go through it.
type Presenter struct {
	tr *i18n.Translator
}

func NewPresenter(tr *i18n.Translator) *Presenter {
	return &Presenter{tr: tr}
}

var defaultPresenter = func() *Presenter {
	tr, err := i18n.NewTranslator(i18n.LocalesFS, "en")
	if err != nil {
		panic(err)
	}
	return NewPresenter(tr)
}()

// Present renders err with the embedded English messages.
func Present(err error) string { return defaultPresenter.Present(err) }

func (p *Presenter) Present(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrCredentialMissing):
		return p.tr.T("err_credential_missing")
	case errors.Is(err, context.DeadlineExceeded):
		return p.tr.T("err_timeout")
	case errors.Is(err, domain.ErrUpstream):
		return p.tr.T("err_upstream", detail(err, domain.ErrUpstream))
	case errors.Is(err, domain.ErrParse):
		return p.tr.T("err_parse")
	case errors.Is(err, domain.ErrRender):
		return p.tr.T("err_render")
	case errors.Is(err, domain.ErrStaleResponse):
		return p.tr.T("err_stale")
	case errors.Is(err, domain.ErrRateLimited):
		return p.tr.T("err_rate_limited")
	case errors.Is(err, domain.ErrSessionBusy):
		return p.tr.T("err_session_busy")
	case errors.Is(err, domain.ErrNotFound):
		return p.tr.T("err_not_found")
	case errors.Is(err, domain.ErrInvalidArgument):
		return p.tr.T("err_invalid_argument", detail(err, domain.ErrInvalidArgument))
	case errors.Is(err, domain.ErrCorruptState):
		return p.tr.T("err_corrupt_state")
	case errors.Is(err, domain.ErrUnavailable):
		return p.tr.T("err_unavailable")
	default:
		return p.tr.T("err_internal")
	}
}

// T exposes plain notices (no-change, applied) through the same translator.
func (p *Presenter) T(key string, args ...interface{}) string {
	return p.tr.T(key, args...)
}

// detail strips the sentinel prefix so the provider's own message is shown
// verbatim. A bare sentinel yields its own text.
func detail(err, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	return msg
}
