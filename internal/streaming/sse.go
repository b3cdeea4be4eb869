package streaming

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/aiprovidergw/gateway/internal/provider"
)

// openAISSEChunk is the OpenAI-compatible SSE event shape used by
// /api/v1/chat/stream.
type openAISSEChunk struct {
	Object  string         `json:"object"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   *openAIUsage   `json:"usage,omitempty"`
}

type openAIChoice struct {
	Index        int         `json:"index"`
	Delta        openAIDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

type openAIDelta struct {
	Content string `json:"content,omitempty"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// WriteOpenAI reads StreamChunks from chunks and writes them to w as
// OpenAI-compatible Server-Sent Events, ending with the "[DONE]" sentinel.
func WriteOpenAI(w http.ResponseWriter, chunks <-chan provider.StreamChunk) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("response writer does not support flushing (http.Flusher)")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for chunk := range chunks {
		if chunk.Err != nil {
			log.Printf("stream error: %v", chunk.Err)
			return chunk.Err
		}

		event := openAISSEChunk{
			Object:  "chat.completion.chunk",
			Model:   chunk.Model,
			Choices: []openAIChoice{{Index: 0, Delta: openAIDelta{Content: chunk.Delta}}},
		}

		if chunk.Finished {
			if chunk.Delta != "" {
				if err := writeSSEEvent(w, event); err != nil {
					return err
				}
				flusher.Flush()
			}

			reason := "stop"
			event.Choices[0].FinishReason = &reason
			event.Choices[0].Delta = openAIDelta{}
			if chunk.Usage != nil {
				event.Usage = &openAIUsage{
					PromptTokens:     chunk.Usage.PromptTokens,
					CompletionTokens: chunk.Usage.CompletionTokens,
					TotalTokens:      chunk.Usage.TotalTokens,
				}
			}
		}

		if err := writeSSEEvent(w, event); err != nil {
			return err
		}
		flusher.Flush()
	}

	if _, err := fmt.Fprint(w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("writing SSE done marker: %w", err)
	}
	flusher.Flush()
	return nil
}

func writeSSEEvent(w http.ResponseWriter, v any) error {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling SSE chunk: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonBytes); err != nil {
		return fmt.Errorf("writing SSE event: %w", err)
	}
	return nil
}

// anthropicSSEEvent covers the named Anthropic Messages-API streaming
// events this gateway emits on /v1/messages/stream: message_start,
// content_block_delta, and message_stop.
type anthropicSSEEvent struct {
	Type    string               `json:"type"`
	Message *anthropicSSEMessage `json:"message,omitempty"`
	Index   int                  `json:"index,omitempty"`
	Delta   *anthropicSSEDelta   `json:"delta,omitempty"`
}

type anthropicSSEMessage struct {
	Model string `json:"model"`
	Role  string `json:"role"`
}

type anthropicSSEDelta struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// WriteAnthropic reads StreamChunks from chunks and writes them to w as
// Anthropic Messages-API-compatible Server-Sent Events.
func WriteAnthropic(w http.ResponseWriter, chunks <-chan provider.StreamChunk) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("response writer does not support flushing (http.Flusher)")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	started := false

	for chunk := range chunks {
		if chunk.Err != nil {
			log.Printf("stream error: %v", chunk.Err)
			return chunk.Err
		}

		if !started {
			started = true
			event := anthropicSSEEvent{
				Type:    "message_start",
				Message: &anthropicSSEMessage{Model: chunk.Model, Role: "assistant"},
			}
			if err := writeNamedSSEEvent(w, "message_start", event); err != nil {
				return err
			}
			flusher.Flush()
		}

		if chunk.Finished {
			if err := writeNamedSSEEvent(w, "message_stop", anthropicSSEEvent{Type: "message_stop"}); err != nil {
				return err
			}
			flusher.Flush()
			continue
		}

		event := anthropicSSEEvent{
			Type:  "content_block_delta",
			Delta: &anthropicSSEDelta{Type: "text_delta", Text: chunk.Delta},
		}
		if err := writeNamedSSEEvent(w, "content_block_delta", event); err != nil {
			return err
		}
		flusher.Flush()
	}

	return nil
}

func writeNamedSSEEvent(w http.ResponseWriter, name string, v any) error {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling SSE event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, jsonBytes); err != nil {
		return fmt.Errorf("writing SSE event: %w", err)
	}
	return nil
}
