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

// LocalDaemonProvider implements Provider for a locally-running inference
// daemon (an Ollama-style server). No authentication header is sent — local
// daemons are reached over loopback or a trusted network and gate access
// at the transport layer, not with a bearer token.
type LocalDaemonProvider struct {
	baseURL      string // e.g. "http://localhost:11434"
	defaultModel string
	client       *http.Client
}

func NewLocalDaemonProvider(baseURL, defaultModel string, client *http.Client) *LocalDaemonProvider {
	return &LocalDaemonProvider{baseURL: baseURL, defaultModel: defaultModel, client: client}
}

func (l *LocalDaemonProvider) ID() ID               { return LocalDaemon }
func (l *LocalDaemonProvider) DefaultModel() string { return l.defaultModel }

// localDaemonRequest mirrors Ollama's /api/chat body: a flat role+content
// message list, no system-message folding, an explicit stream flag.
type localDaemonRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  localDaemonOpts `json:"options,omitempty"`
}

type localDaemonOpts struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// localDaemonMessageEvent is one line of Ollama's newline-delimited JSON
// stream — not SSE, just one JSON object per line, with `done` on the last.
type localDaemonMessageEvent struct {
	Model   string        `json:"model"`
	Message openAIMessage `json:"message"`
	Done    bool          `json:"done"`

	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

func toLocalDaemonRequest(req *ChatRequest, model string) *localDaemonRequest {
	lr := &localDaemonRequest{
		Model:  model,
		Stream: req.Stream,
		Options: localDaemonOpts{
			Temperature: req.ResolvedTemperature(),
			NumPredict:  req.ResolvedMaxTokens(),
		},
	}
	for _, msg := range req.Messages {
		lr.Messages = append(lr.Messages, openAIMessage{Role: msg.Role, Content: msg.Content})
	}
	return lr
}

func (l *LocalDaemonProvider) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	model := req.ResolvedModel(l.defaultModel)
	lreq := toLocalDaemonRequest(req, model)
	lreq.Stream = false

	body, err := json.Marshal(lreq)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.InvalidInput, "marshaling request", err)
	}

	url := fmt.Sprintf("%s/api/chat", l.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.Network, "building request", err).WithProvider(string(LocalDaemon))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := l.client.Do(httpReq)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.Network, "sending request to local daemon", err).WithProvider(string(LocalDaemon))
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		raw, _ := json.Marshal(errBody)
		return nil, classifyStatus(httpResp.StatusCode, raw, LocalDaemon)
	}

	var event localDaemonMessageEvent
	if err := json.NewDecoder(httpResp.Body).Decode(&event); err != nil {
		return nil, gwerrors.Wrap(gwerrors.UnexpectedResponse, "decoding local daemon response", err).WithProvider(string(LocalDaemon))
	}

	return &ChatResponse{
		Content:  event.Message.Content,
		Model:    event.Model,
		Provider: LocalDaemon,
		Usage: &Usage{
			PromptTokens:     event.PromptEvalCount,
			CompletionTokens: event.EvalCount,
			TotalTokens:      event.PromptEvalCount + event.EvalCount,
		},
	}, nil
}

func (l *LocalDaemonProvider) ChatCompletionStream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	model := req.ResolvedModel(l.defaultModel)
	lreq := toLocalDaemonRequest(req, model)
	lreq.Stream = true

	body, err := json.Marshal(lreq)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.InvalidInput, "marshaling stream request", err)
	}

	url := fmt.Sprintf("%s/api/chat", l.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.Network, "building stream request", err).WithProvider(string(LocalDaemon))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := l.client.Do(httpReq)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.Network, "sending stream request", err).WithProvider(string(LocalDaemon))
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		raw, _ := json.Marshal(errBody)
		return nil, classifyStatus(httpResp.StatusCode, raw, LocalDaemon)
	}

	ch := make(chan StreamChunk)

	go func() {
		defer close(ch)
		defer httpResp.Body.Close()

		scanner := bufio.NewScanner(httpResp.Body)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			var event localDaemonMessageEvent
			if err := json.Unmarshal([]byte(line), &event); err != nil {
				ch <- StreamChunk{Provider: LocalDaemon, Finished: true, Err: fmt.Errorf("decoding local daemon stream line: %w", err)}
				return
			}

			if event.Done {
				select {
				case ch <- StreamChunk{
					Model:    event.Model,
					Provider: LocalDaemon,
					Finished: true,
					Usage: &Usage{
						PromptTokens:     event.PromptEvalCount,
						CompletionTokens: event.EvalCount,
						TotalTokens:      event.PromptEvalCount + event.EvalCount,
					},
				}:
				case <-ctx.Done():
				}
				return
			}

			select {
			case ch <- StreamChunk{Delta: event.Message.Content, Model: event.Model, Provider: LocalDaemon}:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil {
			select {
			case ch <- StreamChunk{Provider: LocalDaemon, Finished: true, Err: fmt.Errorf("reading local daemon stream: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

func (l *LocalDaemonProvider) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/api/tags", l.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := l.client.Do(httpReq)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
