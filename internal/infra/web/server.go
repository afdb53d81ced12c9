package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"ai-playground/internal/infra/metrics"
	"ai-playground/internal/usecase"
)

// Server exposes the playground over HTTP.
type Server struct {
	uc      usecase.PlaygroundUseCase
	auth    *AuthManager
	present func(error) string
	timeout time.Duration
	log     *zerolog.Logger
}

// NewServer builds the HTTP front. present may be nil for the embedded
// English messages; timeout bounds every request and 0 disables it.
func NewServer(
	uc usecase.PlaygroundUseCase,
	auth *AuthManager,
	present *usecase.Presenter,
	timeout time.Duration,
	logger *zerolog.Logger,
) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &Server{uc: uc, auth: auth, timeout: timeout, log: logger, present: usecase.Present}
	if present != nil {
		s.present = present.Present
	}
	return s
}

// Routes returns the complete handler tree.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log), Timeout(s.timeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/models", s.listModels)
		r.Post("/sessions", s.startSession)

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Use(s.auth.RequireSession)

			r.Get("/", s.getSession)
			r.Delete("/", s.forgetSession)

			r.Get("/files", s.listFiles)
			r.Get("/files/{name}", s.getFile)
			r.Put("/files/{name}", s.putFile)

			r.Post("/chat", s.chat)
			r.Get("/messages", s.messages)

			r.Get("/preview", s.preview)
			r.Get("/frame", s.frame)

			r.Put("/api-key", s.setAPIKey)
			r.Delete("/api-key", s.clearAPIKey)

			r.Get("/snapshots", s.listSnapshots)
			r.Post("/snapshots", s.saveSnapshot)
			r.Post("/snapshots/{sid}/restore", s.restoreSnapshot)
		})
	})
	return r
}
