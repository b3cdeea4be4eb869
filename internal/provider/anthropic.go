package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aiprovidergw/gateway/internal/gwerrors"
)

// AnthropicProvider implements Provider for Anthropic's Messages API. It is
// the system's Anthropic-family adapter: the one that folds role=system
// messages into a dedicated top-level "system" string, per the message-shape
// translator rule every Anthropic-family adapter must follow.
type AnthropicProvider struct {
	apiKey       string
	baseURL      string // e.g. "https://api.anthropic.com/v1"
	defaultModel string
	client       *http.Client
}

// NewAnthropicProvider creates an AnthropicProvider ready to make API calls.
func NewAnthropicProvider(apiKey, baseURL, defaultModel string, client *http.Client) *AnthropicProvider {
	return &AnthropicProvider{
		apiKey:       apiKey,
		baseURL:      baseURL,
		defaultModel: defaultModel,
		client:       client,
	}
}

func (a *AnthropicProvider) ID() ID               { return Claude }
func (a *AnthropicProvider) DefaultModel() string { return a.defaultModel }

const anthropicAPIVersion = "2023-06-01"

// anthropicRequest is the top-level body for Anthropic's /v1/messages.
// Unlike our unified ChatRequest, "system" is a top-level string rather
// than a message in the list, and max_tokens is required.
type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Stream    bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID         string                  `json:"id"`
	Content    []anthropicContentBlock `json:"content"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// anthropicStreamEvent is a wrapper wide enough to decode any of Anthropic's
// named SSE events (message_start, content_block_delta, message_delta,
// message_stop); only the fields relevant to event.Type are populated.
type anthropicStreamEvent struct {
	Type    string                 `json:"type"`
	Message *anthropicEventMessage `json:"message,omitempty"`
	Delta   *anthropicEventDelta   `json:"delta,omitempty"`
	Usage   *anthropicUsage        `json:"usage,omitempty"`
}

type anthropicEventMessage struct {
	ID    string         `json:"id"`
	Model string         `json:"model"`
	Usage anthropicUsage `json:"usage"`
}

type anthropicEventDelta struct {
	Type       string `json:"type,omitempty"`
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

// toAnthropicRequest folds role=system messages into the top-level system
// string (joined with newlines) and rewrites any unrecognized role to
// "user", per §4.1's message-shape translator rule.
func toAnthropicRequest(req *ChatRequest, model string) *anthropicRequest {
	ar := &anthropicRequest{
		Model:     model,
		MaxTokens: req.ResolvedMaxTokens(),
	}

	var systemParts []string
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			systemParts = append(systemParts, msg.Content)
			continue
		}
		role := msg.Role
		if role != "user" && role != "assistant" {
			role = "user"
		}
		ar.Messages = append(ar.Messages, anthropicMessage{Role: role, Content: msg.Content})
	}

	if len(systemParts) > 0 {
		ar.System = strings.Join(systemParts, "\n")
	}
	return ar
}

func (a *AnthropicProvider) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	url := fmt.Sprintf("%s/messages", a.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.Network, "building anthropic request", err).WithProvider(string(Claude))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)
	return httpReq, nil
}

// classifyStatus maps a non-2xx upstream response to the gateway's error
// taxonomy: 401 is always Auth (caller misconfiguration, never retried by
// the dispatch loop); everything else is ProviderUnavailable (retried).
func classifyStatus(status int, body []byte, id ID) error {
	msg := fmt.Sprintf("upstream returned status %d: %s", status, string(body))
	if status == http.StatusUnauthorized {
		return gwerrors.New(gwerrors.Auth, msg).WithProvider(string(id))
	}
	return gwerrors.New(gwerrors.ProviderUnavailable, msg).WithProvider(string(id))
}

func (a *AnthropicProvider) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	model := req.ResolvedModel(a.defaultModel)
	anthropicReq := toAnthropicRequest(req, model)

	body, err := json.Marshal(anthropicReq)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.InvalidInput, "marshaling anthropic request", err)
	}

	httpReq, err := a.newRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.Network, "sending request to anthropic", err).WithProvider(string(Claude))
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		raw, _ := json.Marshal(errBody)
		return nil, classifyStatus(httpResp.StatusCode, raw, Claude)
	}

	var anthropicResp anthropicResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&anthropicResp); err != nil {
		return nil, gwerrors.Wrap(gwerrors.UnexpectedResponse, "decoding anthropic response", err).WithProvider(string(Claude))
	}

	var text string
	for _, block := range anthropicResp.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	return &ChatResponse{
		Content:  text,
		Model:    anthropicResp.Model,
		Provider: Claude,
		Usage: &Usage{
			PromptTokens:     anthropicResp.Usage.InputTokens,
			CompletionTokens: anthropicResp.Usage.OutputTokens,
			TotalTokens:      anthropicResp.Usage.InputTokens + anthropicResp.Usage.OutputTokens,
		},
	}, nil
}

func (a *AnthropicProvider) ChatCompletionStream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	model := req.ResolvedModel(a.defaultModel)
	anthropicReq := toAnthropicRequest(req, model)
	anthropicReq.Stream = true

	body, err := json.Marshal(anthropicReq)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.InvalidInput, "marshaling anthropic stream request", err)
	}

	httpReq, err := a.newRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.Network, "sending stream request to anthropic", err).WithProvider(string(Claude))
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		raw, _ := json.Marshal(errBody)
		return nil, classifyStatus(httpResp.StatusCode, raw, Claude)
	}

	ch := make(chan StreamChunk)

	go func() {
		defer close(ch)
		defer httpResp.Body.Close()

		var (
			model        string
			inputTokens  int
			outputTokens int
		)

		scanner := bufio.NewScanner(httpResp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			jsonData := strings.TrimPrefix(line, "data: ")

			var event anthropicStreamEvent
			if err := json.Unmarshal([]byte(jsonData), &event); err != nil {
				ch <- StreamChunk{Provider: Claude, Finished: true, Err: fmt.Errorf("decoding anthropic stream event: %w", err)}
				return
			}

			switch event.Type {
			case "message_start":
				if event.Message != nil {
					model = event.Message.Model
					inputTokens = event.Message.Usage.InputTokens
				}

			case "content_block_delta":
				if event.Delta == nil {
					continue
				}
				chunk := StreamChunk{Delta: event.Delta.Text, Model: model, Provider: Claude}
				select {
				case ch <- chunk:
				case <-ctx.Done():
					return
				}

			case "message_delta":
				if event.Usage != nil {
					outputTokens = event.Usage.OutputTokens
				}

			case "message_stop":
				chunk := StreamChunk{
					Model:    model,
					Provider: Claude,
					Finished: true,
					Usage: &Usage{
						PromptTokens:     inputTokens,
						CompletionTokens: outputTokens,
						TotalTokens:      inputTokens + outputTokens,
					},
				}
				select {
				case ch <- chunk:
				case <-ctx.Done():
				}
				return
			}
		}

		if err := scanner.Err(); err != nil {
			select {
			case ch <- StreamChunk{Provider: Claude, Finished: true, Err: fmt.Errorf("reading anthropic stream: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

func (a *AnthropicProvider) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req := &ChatRequest{
		Model:     a.defaultModel,
		Messages:  []Message{{Role: "user", Content: "ping"}},
		MaxTokens: intPtr(1),
	}
	_, err := a.ChatCompletion(ctx, req)
	return err == nil
}

func intPtr(v int) *int { return &v }
