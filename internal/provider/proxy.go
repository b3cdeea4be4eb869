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

// ProxyProvider implements Provider for the "meta-provider": a single
// upstream service (itself a gateway, or a hosted multiplexer) that the
// router's Proxy mode sends every request to regardless of capability.
// Its API key is optional — some meta-provider deployments sit entirely
// behind a private network and need no bearer token.
type ProxyProvider struct {
	baseURL      string // e.g. "http://localhost:8080"
	apiKey       string // optional
	defaultModel string
	client       *http.Client
}

func NewProxyProvider(baseURL, apiKey, defaultModel string, client *http.Client) *ProxyProvider {
	return &ProxyProvider{baseURL: baseURL, apiKey: apiKey, defaultModel: defaultModel, client: client}
}

func (p *ProxyProvider) ID() ID               { return Proxy }
func (p *ProxyProvider) DefaultModel() string { return p.defaultModel }

func (p *ProxyProvider) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	url := fmt.Sprintf("%s/v1/chat/completions", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.Network, "building proxy request", err).WithProvider(string(Proxy))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	return httpReq, nil
}

func (p *ProxyProvider) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	model := req.ResolvedModel(p.defaultModel)
	body, err := json.Marshal(toOpenAIRequest(req, model))
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.InvalidInput, "marshaling proxy request", err)
	}

	httpReq, err := p.newRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.Network, "sending request to proxy", err).WithProvider(string(Proxy))
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		raw, _ := json.Marshal(errBody)
		return nil, classifyStatus(httpResp.StatusCode, raw, Proxy)
	}

	var resp openAIResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, gwerrors.Wrap(gwerrors.UnexpectedResponse, "decoding proxy response", err).WithProvider(string(Proxy))
	}

	var content string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	return &ChatResponse{
		Content:  content,
		Model:    resp.Model,
		Provider: Proxy,
		Usage: &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (p *ProxyProvider) ChatCompletionStream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	model := req.ResolvedModel(p.defaultModel)
	preq := toOpenAIRequest(req, model)
	preq.Stream = true

	body, err := json.Marshal(preq)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.InvalidInput, "marshaling proxy stream request", err)
	}

	httpReq, err := p.newRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.Network, "sending proxy stream request", err).WithProvider(string(Proxy))
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		raw, _ := json.Marshal(errBody)
		return nil, classifyStatus(httpResp.StatusCode, raw, Proxy)
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
				case ch <- StreamChunk{Provider: Proxy, Finished: true}:
				case <-ctx.Done():
				}
				return
			}

			var event openAIStreamChunk
			if err := json.Unmarshal([]byte(payload), &event); err != nil {
				ch <- StreamChunk{Provider: Proxy, Finished: true, Err: fmt.Errorf("decoding proxy stream event: %w", err)}
				return
			}
			if len(event.Choices) == 0 {
				continue
			}
			choice := event.Choices[0]
			if choice.FinishReason != nil {
				select {
				case ch <- StreamChunk{Model: event.Model, Provider: Proxy, Finished: true}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case ch <- StreamChunk{Delta: choice.Delta.Content, Model: event.Model, Provider: Proxy}:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil {
			select {
			case ch <- StreamChunk{Provider: Proxy, Finished: true, Err: fmt.Errorf("reading proxy stream: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

// HealthCheck hits the proxy's own /health endpoint. This is also what the
// router's Auto-mode resolution calls at startup (§4.5), wrapped in a
// bounded-timeout, backoff-retried probe.
func (p *ProxyProvider) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/health", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
