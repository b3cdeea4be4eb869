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

// OpenAIProvider implements Provider for OpenAI-style chat completions
// (api.openai.com and any OpenAI-compatible wire-format deployment). Roles
// map straight across — no system-message folding is needed here, unlike
// the Anthropic-family adapter.
type OpenAIProvider struct {
	id           ID
	apiKey       string
	baseURL      string // e.g. "https://api.openai.com/v1"
	defaultModel string
	client       *http.Client
}

// NewOpenAIProvider creates an OpenAI-wire-format adapter registered under
// the given id. DeepSeek reuses this adapter under ID DeepSeek since its
// chat completions endpoint is OpenAI-compatible.
func NewOpenAIProvider(id ID, apiKey, baseURL, defaultModel string, client *http.Client) *OpenAIProvider {
	return &OpenAIProvider{id: id, apiKey: apiKey, baseURL: baseURL, defaultModel: defaultModel, client: client}
}

func (o *OpenAIProvider) ID() ID               { return o.id }
func (o *OpenAIProvider) DefaultModel() string { return o.defaultModel }

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
	Stream      bool            `json:"stream,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
}

type openAIChoice struct {
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// openAIStreamChunk is one line of an OpenAI SSE stream: a partial choice
// with a `delta` instead of a full `message`.
type openAIStreamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta        openAIMessage `json:"delta"`
		FinishReason *string       `json:"finish_reason"`
	} `json:"choices"`
	Usage *openAIUsage `json:"usage"`
}

func toOpenAIRequest(req *ChatRequest, model string) *openAIRequest {
	or := &openAIRequest{
		Model:       model,
		Temperature: req.ResolvedTemperature(),
		MaxTokens:   req.ResolvedMaxTokens(),
	}
	for _, msg := range req.Messages {
		or.Messages = append(or.Messages, openAIMessage{Role: msg.Role, Content: msg.Content})
	}
	return or
}

func (o *OpenAIProvider) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	url := fmt.Sprintf("%s/chat/completions", o.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.Network, "building request", err).WithProvider(string(o.id))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	return httpReq, nil
}

func (o *OpenAIProvider) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	model := req.ResolvedModel(o.defaultModel)
	body, err := json.Marshal(toOpenAIRequest(req, model))
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.InvalidInput, "marshaling request", err)
	}

	httpReq, err := o.newRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	httpResp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.Network, "sending request", err).WithProvider(string(o.id))
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		raw, _ := json.Marshal(errBody)
		return nil, classifyStatus(httpResp.StatusCode, raw, o.id)
	}

	var resp openAIResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, gwerrors.Wrap(gwerrors.UnexpectedResponse, "decoding response", err).WithProvider(string(o.id))
	}

	var content string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	return &ChatResponse{
		Content:  content,
		Model:    resp.Model,
		Provider: o.id,
		Usage: &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (o *OpenAIProvider) ChatCompletionStream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	model := req.ResolvedModel(o.defaultModel)
	oreq := toOpenAIRequest(req, model)
	oreq.Stream = true

	body, err := json.Marshal(oreq)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.InvalidInput, "marshaling stream request", err)
	}

	httpReq, err := o.newRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	httpResp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.Network, "sending stream request", err).WithProvider(string(o.id))
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		raw, _ := json.Marshal(errBody)
		return nil, classifyStatus(httpResp.StatusCode, raw, o.id)
	}

	ch := make(chan StreamChunk)

	go func() {
		defer close(ch)
		defer httpResp.Body.Close()

		scanner := bufio.NewScanner(httpResp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				select {
				case ch <- StreamChunk{Provider: o.id, Finished: true}:
				case <-ctx.Done():
				}
				return
			}

			var event openAIStreamChunk
			if err := json.Unmarshal([]byte(payload), &event); err != nil {
				ch <- StreamChunk{Provider: o.id, Finished: true, Err: fmt.Errorf("decoding stream event: %w", err)}
				return
			}

			if len(event.Choices) == 0 {
				continue
			}
			choice := event.Choices[0]

			if choice.FinishReason != nil {
				var usage *Usage
				if event.Usage != nil {
					usage = &Usage{
						PromptTokens:     event.Usage.PromptTokens,
						CompletionTokens: event.Usage.CompletionTokens,
						TotalTokens:      event.Usage.TotalTokens,
					}
				}
				select {
				case ch <- StreamChunk{Model: event.Model, Provider: o.id, Finished: true, Usage: usage}:
				case <-ctx.Done():
				}
				return
			}

			select {
			case ch <- StreamChunk{Delta: choice.Delta.Content, Model: event.Model, Provider: o.id}:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil {
			select {
			case ch <- StreamChunk{Provider: o.id, Finished: true, Err: fmt.Errorf("reading stream: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

func (o *OpenAIProvider) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/models", o.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
