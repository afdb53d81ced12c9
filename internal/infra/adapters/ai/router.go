package ai

import (
	"context"
	"errors"
	"sort"
	"strings"

	"ai-playground/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*Router)(nil)

var errNoProvider = errors.New("ai: no provider configured")

// prefixRoutes maps well-known model name prefixes to providers. Checked in
// order, so longer prefixes must come first.
var prefixRoutes = []struct{ prefix, provider string }{
	{"gemini", "gemini"},
	{"chatgpt", "openai"},
	{"gpt", "openai"},
	{"o1", "openai"},
	{"o3", "openai"},
	{"o4", "openai"},
}

// Router sends each request to the provider that serves the requested model.
// Configured routes win over name prefixes; anything else goes to the
// default provider.
type Router struct {
	fallback  string
	providers map[string]adapter.AIServiceAdapter
	routes    map[string]string // model -> provider
}

func NewRouter(defaultProvider string, providers map[string]adapter.AIServiceAdapter, routes map[string]string) *Router {
	r := &Router{
		fallback:  strings.ToLower(defaultProvider),
		providers: make(map[string]adapter.AIServiceAdapter, len(providers)),
		routes:    make(map[string]string, len(routes)),
	}
	for name, a := range providers {
		if a != nil {
			r.providers[strings.ToLower(name)] = a
		}
	}
	for model, p := range routes {
		r.routes[model] = strings.ToLower(p)
	}
	return r
}

// Provider names the provider a model routes to. It is also the label used
// for per-provider metrics.
func (r *Router) Provider(model string) string {
	if p, ok := r.routes[model]; ok {
		return p
	}
	l := strings.ToLower(model)
	for _, pr := range prefixRoutes {
		if strings.HasPrefix(l, pr.prefix) {
			return pr.provider
		}
	}
	return r.fallback
}

func (r *Router) target(model string) (adapter.AIServiceAdapter, error) {
	if a, ok := r.providers[r.Provider(model)]; ok {
		return a, nil
	}
	if a, ok := r.providers[r.fallback]; ok {
		return a, nil
	}
	return nil, errNoProvider
}

// ListModels returns the configured models plus whatever each provider
// advertises, sorted and without duplicates. A provider that fails to list
// is skipped unless every provider fails.
func (r *Router) ListModels(ctx context.Context) ([]string, error) {
	set := make(map[string]struct{}, len(r.routes))
	for m := range r.routes {
		set[m] = struct{}{}
	}
	var errs []error
	for _, a := range r.providers {
		names, err := a.ListModels(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				set[n] = struct{}{}
			}
		}
	}
	if len(set) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func (r *Router) GetModelInfo(model string) (adapter.ModelInfo, error) {
	a, err := r.target(model)
	if err != nil {
		return adapter.ModelInfo{Name: model, Provider: r.Provider(model)}, nil
	}
	return a.GetModelInfo(model)
}

func (r *Router) CountTokens(ctx context.Context, req adapter.ChatRequest) (int, error) {
	a, err := r.target(req.Model)
	if err != nil {
		return 0, err
	}
	return a.CountTokens(ctx, req)
}

func (r *Router) Chat(ctx context.Context, req adapter.ChatRequest) (string, error) {
	a, err := r.target(req.Model)
	if err != nil {
		return "", err
	}
	return a.Chat(ctx, req)
}

func (r *Router) ChatWithUsage(ctx context.Context, req adapter.ChatRequest) (string, adapter.Usage, error) {
	a, err := r.target(req.Model)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	return a.ChatWithUsage(ctx, req)
}
