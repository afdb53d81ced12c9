package metrics

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every playground collector plus the Go runtime and process
// collectors. It is separate from the global default registry so tests and
// tools can import this package without side effects.
var Registry = prometheus.NewRegistry()

var (
	registerOnce sync.Once
	pending      []prometheus.Collector
)

// register queues collectors declared in this package's init functions.
func register(cs ...prometheus.Collector) {
	pending = append(pending, cs...)
}

// MustRegister attaches the queued collectors to Registry. Later calls are
// no-ops.
func MustRegister() {
	registerOnce.Do(func() {
		Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		Registry.MustRegister(pending...)
	})
}

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	MustRegister()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// norm lowercases label values so "OpenAI" and "openai " share a series.
func norm(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return s
}
