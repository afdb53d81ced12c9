package adapter

import "context"

// Message is one conversation turn sent to a model. Role is "user",
// "assistant" or "system".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ModelInfo is what the playground shows about a selectable model.
// ContextWindow is 0 when the provider does not say.
type ModelInfo struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	Description   string `json:"description,omitempty"`
	ContextWindow int    `json:"context_window,omitempty"`
}

// Usage is the token accounting a provider reports for one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatRequest is one completion call made on behalf of a playground user.
// APIKey is the end user's own key; adapters never fall back to a server key
// and report domain.ErrCredentialMissing when it is empty.
type ChatRequest struct {
	APIKey          string
	Model           string
	System          string
	Messages        []Message
	Temperature     float32
	MaxOutputTokens int
}

// AIServiceAdapter talks to one model provider, or routes between several.
type AIServiceAdapter interface {
	ListModels(ctx context.Context) ([]string, error)
	GetModelInfo(model string) (ModelInfo, error)

	// CountTokens estimates the prompt size of req. Exactness depends on
	// the provider.
	CountTokens(ctx context.Context, req ChatRequest) (int, error)

	Chat(ctx context.Context, req ChatRequest) (string, error)
	ChatWithUsage(ctx context.Context, req ChatRequest) (string, Usage, error)
}
