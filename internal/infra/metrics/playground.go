package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		patchesAppliedTotal,
		patchIssuesTotal,
		previewRendersTotal,
		staleRepliesTotal,
		chatRateLimitedTotal,
		httpRequestsTotal,
	)
}

var (
	patchesAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playground_patches_applied_total",
			Help: "Files written from model replies, labeled by language and whether the file was new.",
		},
		[]string{"language", "created"},
	)

	patchIssuesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playground_patch_issues_total",
			Help: "Malformed fences found in model replies.",
		},
		[]string{"kind"},
	)

	previewRendersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playground_preview_renders_total",
			Help: "Preview compositions by result (ok|failed).",
		},
		[]string{"result"},
	)

	staleRepliesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playground_stale_replies_total",
			Help: "Replies recorded but not applied because a newer request started.",
		},
	)

	chatRateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playground_chat_rate_limited_total",
			Help: "Chat requests rejected by the per-session limiter.",
		},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playground_http_requests_total",
			Help: "HTTP requests by route pattern, method and status code.",
		},
		[]string{"route", "method", "code"},
	)
)

func IncPatchApplied(language string, created bool) {
	c := "false"
	if created {
		c = "true"
	}
	patchesAppliedTotal.WithLabelValues(norm(language), c).Inc()
}

func IncPatchIssue(kind string) {
	patchIssuesTotal.WithLabelValues(norm(kind)).Inc()
}

func IncPreviewRender(ok bool) {
	r := "ok"
	if !ok {
		r = "failed"
	}
	previewRendersTotal.WithLabelValues(r).Inc()
}

func IncStaleReply() { staleRepliesTotal.Inc() }

func IncChatRateLimited() { chatRateLimitedTotal.Inc() }

func IncHTTPRequest(route, method, code string) {
	httpRequestsTotal.WithLabelValues(route, method, code).Inc()
}
