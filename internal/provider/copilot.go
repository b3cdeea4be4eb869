package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/aiprovidergw/gateway/internal/gwerrors"
)

// refreshWindow is how far ahead of expiry a cached token is considered
// stale. Per §4.1's OAuth adapter rule, a token "needs refresh" when it
// expires within 300s, not only once it has actually expired.
const refreshWindow = 300 * time.Second

// CopilotProvider implements Provider for an OAuth-gated hosted service
// (Copilot-style). It holds its own cached token cell — deliberately
// adapter-local rather than a package-level singleton, so multiple
// CopilotProvider instances (e.g. under different accounts) never share
// credentials.
type CopilotProvider struct {
	oauthCfg     oauth2.Config
	baseURL      string
	defaultModel string
	client       *http.Client

	mu    sync.Mutex
	token *oauth2.Token
}

func NewCopilotProvider(oauthCfg oauth2.Config, baseURL, defaultModel string, client *http.Client) *CopilotProvider {
	return &CopilotProvider{oauthCfg: oauthCfg, baseURL: baseURL, defaultModel: defaultModel, client: client}
}

// SeedToken installs an initial token obtained out-of-band (e.g. by a
// device-code flow driven from the CLI). Callers must do this before the
// adapter can serve requests — there is no interactive flow inside
// ChatCompletion itself.
func (c *CopilotProvider) SeedToken(tok *oauth2.Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = tok
}

func (c *CopilotProvider) ID() ID               { return Copilot }
func (c *CopilotProvider) DefaultModel() string { return c.defaultModel }

func needsRefresh(tok *oauth2.Token) bool {
	if tok.Expiry.IsZero() {
		return false
	}
	return time.Until(tok.Expiry) < refreshWindow
}

// bearerToken implements the OAuth adapter rule verbatim: return the
// cached token if it isn't expired and doesn't need refresh; otherwise
// refresh using the cached refresh token; otherwise fail with Auth.
func (c *CopilotProvider) bearerToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == nil {
		return "", gwerrors.New(gwerrors.Auth, "not authenticated").WithProvider(string(Copilot))
	}

	if !needsRefresh(c.token) {
		return c.token.AccessToken, nil
	}

	if c.token.RefreshToken == "" {
		return "", gwerrors.New(gwerrors.Auth, "not authenticated").WithProvider(string(Copilot))
	}

	// Force a refresh by handing the token source only the refresh token;
	// its Valid() check fails with no access token, so it always exchanges
	// with the refresh grant rather than reusing a near-expiry token.
	src := c.oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: c.token.RefreshToken})
	fresh, err := src.Token()
	if err != nil {
		return "", gwerrors.Wrap(gwerrors.TokenExchange, "refreshing copilot token", err).WithProvider(string(Copilot))
	}
	c.token = fresh
	return fresh.AccessToken, nil
}

func (c *CopilotProvider) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	bearer, err := c.bearerToken(ctx)
	if err != nil {
		return nil, err
	}

	model := req.ResolvedModel(c.defaultModel)
	body, err := json.Marshal(toOpenAIRequest(req, model))
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.InvalidInput, "marshaling request", err)
	}

	url := fmt.Sprintf("%s/chat/completions", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.Network, "building request", err).WithProvider(string(Copilot))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+bearer)

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.Network, "sending request to copilot", err).WithProvider(string(Copilot))
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		raw, _ := json.Marshal(errBody)
		return nil, classifyStatus(httpResp.StatusCode, raw, Copilot)
	}

	var resp openAIResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, gwerrors.Wrap(gwerrors.UnexpectedResponse, "decoding copilot response", err).WithProvider(string(Copilot))
	}

	var content string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	return &ChatResponse{
		Content:  content,
		Model:    resp.Model,
		Provider: Copilot,
		Usage: &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// ChatCompletionStream is not natively supported against the bearer-gated
// endpoint this adapter targets; the streaming pipeline (internal/streaming)
// falls back to word-slicing synthesis for this provider, same as any
// adapter that lacks a native streaming path.
func (c *CopilotProvider) ChatCompletionStream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	return nil, gwerrors.New(gwerrors.Streaming, "copilot adapter has no native streaming path").WithProvider(string(Copilot))
}

func (c *CopilotProvider) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	bearer, err := c.bearerToken(ctx)
	if err != nil {
		return false
	}

	url := fmt.Sprintf("%s/models", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	httpReq.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
