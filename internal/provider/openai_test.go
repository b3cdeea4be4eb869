package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/dnaeon/go-vcr.v4/pkg/recorder"
)

// fakeOpenAIServer returns an httptest server that looks enough like the
// chat completions endpoint for recorder fixture tests: one fixed response
// regardless of request body.
func fakeOpenAIServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		resp := openAIResponse{
			Model: "gpt-4o",
			Choices: []openAIChoice{
				{Message: openAIMessage{Role: "assistant", Content: "hi there"}, FinishReason: "stop"},
			},
			Usage: openAIUsage{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

// TestOpenAIChatCompletion_RecordedFixture exercises the adapter through a
// go-vcr recorder wrapping a local fake server. The cassette lives under a
// fresh temp dir each run, so the recorder always records rather than
// attempting to replay a stale fixture.
func TestOpenAIChatCompletion_RecordedFixture(t *testing.T) {
	server := fakeOpenAIServer(t)
	defer server.Close()

	cassette := filepath.Join(t.TempDir(), "openai_chat")
	rec, err := recorder.New(cassette)
	require.NoError(t, err)
	defer rec.Stop()

	client := server.Client()
	client.Transport = rec

	p := NewOpenAIProvider(OpenAI, "test-key", server.URL, "gpt-4o", client)

	resp, err := p.ChatCompletion(context.Background(), &ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Content)
	assert.Equal(t, OpenAI, resp.Provider)
	assert.Equal(t, 6, resp.Usage.TotalTokens)
}

func TestOpenAIChatCompletion_ResolvesDefaultModel(t *testing.T) {
	var captured openAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(openAIResponse{Model: "gpt-4o"})
	}))
	defer server.Close()

	p := NewOpenAIProvider(DeepSeek, "k", server.URL, "deepseek-chat", server.Client())

	_, err := p.ChatCompletion(context.Background(), &ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "deepseek-chat", captured.Model)
	assert.Equal(t, DefaultTemperature, captured.Temperature)
}
