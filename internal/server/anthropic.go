package server

import (
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/aiprovidergw/gateway/internal/provider"
	"github.com/aiprovidergw/gateway/internal/streaming"
)

// anthropicMessagesRequest is the Anthropic Messages API-compatible
// request shape accepted by POST /v1/messages(/stream)?.
type anthropicMessagesRequest struct {
	Model       string              `json:"model"`
	Messages    []anthropicMessage  `json:"messages"`
	System      string              `json:"system,omitempty"`
	MaxTokens   *int                `json:"max_tokens,omitempty"`
	Temperature *float64            `json:"temperature,omitempty"`
	Stream      bool                `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicMessagesResponse is the non-streaming response shape.
type anthropicMessagesResponse struct {
	ID         string                   `json:"id"`
	Type       string                   `json:"type"`
	Role       string                   `json:"role"`
	Content    []anthropicContentBlock  `json:"content"`
	Model      string                   `json:"model"`
	StopReason string                   `json:"stop_reason"`
	Usage      anthropicResponseUsage   `json:"usage"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponseUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// toProviderRequest folds the request's top-level system prompt into a
// leading system message, matching how the Anthropic-family adapter
// itself folds system messages back out (§4.1 system-message folding).
func toProviderRequest(req anthropicMessagesRequest) *provider.ChatRequest {
	messages := make([]provider.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, provider.Message{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, provider.Message{Role: m.Role, Content: m.Content})
	}

	return &provider.ChatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      req.Stream,
	}
}

func fromProviderResponse(resp *provider.ChatResponse) anthropicMessagesResponse {
	out := anthropicMessagesResponse{
		ID:         "msg_" + uuid.NewString(),
		Type:       "message",
		Role:       "assistant",
		Content:    []anthropicContentBlock{{Type: "text", Text: resp.Content}},
		Model:      resp.Model,
		StopReason: "end_turn",
	}
	if resp.Usage != nil {
		out.Usage = anthropicResponseUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}
	return out
}

// handleAnthropicMessages handles POST /v1/messages.
func (s *Server) handleAnthropicMessages(w http.ResponseWriter, r *http.Request) {
	var req anthropicMessagesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := s.gw.Dispatch(r.Context(), provider.CapChatCompletion, toProviderRequest(req))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, fromProviderResponse(resp))
}

// handleAnthropicMessagesStream handles POST /v1/messages/stream.
func (s *Server) handleAnthropicMessagesStream(w http.ResponseWriter, r *http.Request) {
	var req anthropicMessagesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	chunks, err := s.gw.DispatchStream(r.Context(), provider.CapChatCompletion, toProviderRequest(req))
	if err != nil {
		writeError(w, err)
		return
	}

	if err := streaming.WriteAnthropic(w, chunks); err != nil {
		log.Printf("server: anthropic stream write error: %v", err)
	}
}
