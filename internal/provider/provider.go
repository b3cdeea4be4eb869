// Package provider defines the Provider interface, the normalized
// request/response contract, and the closed identity/capability enums
// every adapter is built against.
//
// Every upstream LLM backend (OpenAI-style, Anthropic-style, a local
// inference daemon, an OAuth-gated hosted service, or a proxying
// meta-provider) implements the Provider interface. The rest of the
// gateway — registry, selector, dispatch loop, router, streaming pipeline —
// works only with these unified types, so none of them need to know which
// upstream is actually serving a request.
package provider

import "context"

// ID is the closed set of upstream provider identities. Exactly one
// adapter may be registered per ID; re-registering replaces the prior one.
type ID string

const (
	OpenAI      ID = "openai"
	Claude      ID = "claude"
	Copilot     ID = "copilot"
	Proxy       ID = "proxy"
	LocalDaemon ID = "local_daemon"
	DeepSeek    ID = "deepseek"
)

// ParseID parses a stringly-typed provider id, as authored in a config
// file or carried on the wire (e.g. the provider-switch endpoint).
func ParseID(s string) (ID, bool) {
	switch ID(s) {
	case OpenAI, Claude, Copilot, Proxy, LocalDaemon, DeepSeek:
		return ID(s), true
	default:
		return "", false
	}
}

func (id ID) String() string { return string(id) }

// Capability is a declared feature a request may require of a provider.
// The selector only considers providers whose configured capability set
// contains the one being requested.
type Capability string

const (
	CapChatCompletion   Capability = "chat_completion"
	CapCodeCompletion   Capability = "code_completion"
	CapCodeAnalysis     Capability = "code_analysis"
	CapCodeExplanation  Capability = "code_explanation"
	CapCodeRefactoring  Capability = "code_refactoring"
	CapTestGeneration   Capability = "test_generation"
	CapProjectContext   Capability = "project_context"
	CapCommitGeneration Capability = "commit_generation"
	CapSecurityScanning Capability = "security_scanning"
	CapStreaming        Capability = "streaming"
)

// AllCapabilities enumerates every known capability, in declaration order.
var AllCapabilities = []Capability{
	CapChatCompletion,
	CapCodeCompletion,
	CapCodeAnalysis,
	CapCodeExplanation,
	CapCodeRefactoring,
	CapTestGeneration,
	CapProjectContext,
	CapCommitGeneration,
	CapSecurityScanning,
	CapStreaming,
}

// Defaults applied by chat_completion when the caller omits them.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2048
)

// Provider is the interface every upstream backend must satisfy. Go
// interfaces are implicit — any struct with these methods satisfies
// Provider automatically, no "implements" keyword needed.
type Provider interface {
	// ID returns the provider's identity, used for logging, metrics
	// labels, and the ChatResponse.Provider field.
	ID() ID

	// DefaultModel returns the model name used when a request omits one.
	DefaultModel() string

	// ChatCompletion sends a request and returns the complete response.
	// Implementations translate the normalized request to the vendor
	// wire shape, post over HTTPS with the adapter's configured timeout
	// and auth, and translate the response back. Non-2xx responses
	// surface as a *gwerrors.Error with the appropriate Kind (Auth for
	// 401, Network/ProviderUnavailable otherwise).
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// ChatCompletionStream sends a request and returns a channel that
	// delivers response chunks as they arrive. The adapter owns the
	// channel: it creates it, writes chunks from an internal goroutine,
	// and closes it when the stream ends or the context is cancelled.
	ChatCompletionStream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)

	// HealthCheck reports liveness. It never panics; any failure to
	// reach the upstream (timeout, connection refused, non-2xx) maps to
	// false rather than propagating an error.
	HealthCheck(ctx context.Context) bool
}

// Message is a single turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the normalized request every adapter accepts. Handlers
// decode the inbound wire format (OpenAI-compatible or Anthropic-compatible,
// per route) into this struct before handing it to the router.
type ChatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// ResolvedModel returns req.Model, falling back to the adapter's default
// model when the request didn't name one.
func (r *ChatRequest) ResolvedModel(adapterDefault string) string {
	if r.Model != "" {
		return r.Model
	}
	return adapterDefault
}

// ResolvedTemperature returns req.Temperature, defaulting to 0.7.
func (r *ChatRequest) ResolvedTemperature() float64 {
	if r.Temperature != nil {
		return *r.Temperature
	}
	return DefaultTemperature
}

// ResolvedMaxTokens returns req.MaxTokens, defaulting to 2048.
func (r *ChatRequest) ResolvedMaxTokens() int {
	if r.MaxTokens != nil {
		return *r.MaxTokens
	}
	return DefaultMaxTokens
}

// Usage holds token-count accounting. Not every adapter returns this; it's
// a pointer everywhere it's optional so the zero value stays "absent"
// rather than "zero tokens".
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the normalized, complete (non-streaming) response.
// Provider names the adapter that actually served the request, which is
// not necessarily the one the selector picked first — the dispatch loop
// may have fallen through to a later provider in the list.
type ChatResponse struct {
	Content  string `json:"content"`
	Model    string `json:"model"`
	Provider ID     `json:"provider"`
	Usage    *Usage `json:"usage,omitempty"`
}

// StreamChunk is one piece of a streaming response. Adapters with native
// streaming send these directly off the wire; adapters without it are
// backed by the streaming package's word-slicing synthesizer instead.
//
// A chunk with Finished=true is always the last of its sequence and
// carries an empty Delta. Err, when non-nil, also terminates the sequence
// — the consumer should treat it the same way Finished is treated, but report
// the error upstream instead of a clean finish.
type StreamChunk struct {
	Delta    string
	Model    string
	Provider ID
	Finished bool
	Usage    *Usage
	Err      error
}
