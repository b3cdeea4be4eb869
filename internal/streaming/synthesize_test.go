package streaming

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiprovidergw/gateway/internal/gwerrors"
	"github.com/aiprovidergw/gateway/internal/provider"
)

func TestSynthesize_SlicesIntoKWordChunksAndFinishes(t *testing.T) {
	resp := &provider.ChatResponse{
		Content:  "the quick brown fox jumps",
		Model:    "test-model",
		Provider: provider.Claude,
		Usage:    &provider.Usage{PromptTokens: 1, CompletionTokens: 5, TotalTokens: 6},
	}

	ch := Synthesize(context.Background(), resp, 2)

	var deltas []string
	var finished provider.StreamChunk
	for chunk := range ch {
		if chunk.Finished {
			finished = chunk
			continue
		}
		deltas = append(deltas, chunk.Delta)
	}

	// "the quick", " brown fox", " jumps" joined together reconstructs the
	// original content exactly.
	assert.Equal(t, "the quick brown fox jumps", strings.Join(deltas, ""))
	require.Len(t, deltas, 3)
	assert.Equal(t, "the quick", deltas[0])
	assert.Equal(t, " brown fox", deltas[1])
	assert.Equal(t, " jumps", deltas[2])

	assert.True(t, finished.Finished)
	assert.Equal(t, provider.Claude, finished.Provider)
	require.NotNil(t, finished.Usage)
	assert.Equal(t, 6, finished.Usage.TotalTokens)
}

func TestSynthesize_StopsOnContextCancellation(t *testing.T) {
	resp := &provider.ChatResponse{Content: strings.Repeat("word ", 50)}

	ctx, cancel := context.WithCancel(context.Background())
	ch := Synthesize(ctx, resp, 1)

	// Drain one chunk then cancel; the channel must close without hanging.
	<-ch
	cancel()

	for range ch {
		// drain until closed
	}
}

type streamingAdapter struct {
	streamErr error
	streamCh  <-chan provider.StreamChunk
	chatResp  *provider.ChatResponse
	chatErr   error
}

func (a streamingAdapter) ID() provider.ID      { return provider.Claude }
func (a streamingAdapter) DefaultModel() string { return "test-model" }
func (a streamingAdapter) HealthCheck(ctx context.Context) bool { return true }
func (a streamingAdapter) ChatCompletion(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	return a.chatResp, a.chatErr
}
func (a streamingAdapter) ChatCompletionStream(ctx context.Context, req *provider.ChatRequest) (<-chan provider.StreamChunk, error) {
	return a.streamCh, a.streamErr
}

func TestStream_PassesThroughNativeStream(t *testing.T) {
	native := make(chan provider.StreamChunk, 1)
	native <- provider.StreamChunk{Delta: "native chunk"}
	close(native)

	adapter := streamingAdapter{streamCh: native}
	ch, err := Stream(context.Background(), adapter, &provider.ChatRequest{})
	require.NoError(t, err)

	chunk := <-ch
	assert.Equal(t, "native chunk", chunk.Delta)
}

func TestStream_FallsBackToSynthesisOnStreamingSentinel(t *testing.T) {
	adapter := streamingAdapter{
		streamErr: gwerrors.New(gwerrors.Streaming, "no native streaming path"),
		chatResp:  &provider.ChatResponse{Content: "hello there", Model: "m", Provider: provider.Claude},
	}

	ch, err := Stream(context.Background(), adapter, &provider.ChatRequest{})
	require.NoError(t, err)

	var deltas []string
	for chunk := range ch {
		if !chunk.Finished {
			deltas = append(deltas, chunk.Delta)
		}
	}
	assert.Equal(t, "hello there", strings.Join(deltas, ""))
}

func TestStream_PropagatesNonStreamingErrors(t *testing.T) {
	adapter := streamingAdapter{streamErr: gwerrors.New(gwerrors.Auth, "bad key")}

	_, err := Stream(context.Background(), adapter, &provider.ChatRequest{})
	require.Error(t, err)
	ge, ok := gwerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, gwerrors.Auth, ge.Kind)
}

func TestWriteOpenAI_EmitsDeltaThenFinishThenDone(t *testing.T) {
	ch := make(chan provider.StreamChunk, 2)
	ch <- provider.StreamChunk{Model: "m", Delta: "hi"}
	ch <- provider.StreamChunk{Model: "m", Finished: true, Usage: &provider.Usage{TotalTokens: 3}}
	close(ch)

	w := httptest.NewRecorder()
	err := WriteOpenAI(w, ch)
	require.NoError(t, err)

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, "data: [DONE]\n\n")

	var events []string
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "data: ") {
			payload := strings.TrimPrefix(line, "data: ")
			if payload != "[DONE]" {
				events = append(events, payload)
			}
		}
	}
	require.Len(t, events, 2)

	var first openAISSEChunk
	require.NoError(t, json.Unmarshal([]byte(events[0]), &first))
	assert.Equal(t, "hi", first.Choices[0].Delta.Content)
	assert.Nil(t, first.Choices[0].FinishReason)

	var last openAISSEChunk
	require.NoError(t, json.Unmarshal([]byte(events[1]), &last))
	require.NotNil(t, last.Choices[0].FinishReason)
	assert.Equal(t, "stop", *last.Choices[0].FinishReason)
	require.NotNil(t, last.Usage)
	assert.Equal(t, 3, last.Usage.TotalTokens)
}

func TestWriteOpenAI_MidStreamErrorStopsBeforeDone(t *testing.T) {
	ch := make(chan provider.StreamChunk, 2)
	ch <- provider.StreamChunk{Model: "m", Delta: "partial"}
	ch <- provider.StreamChunk{Err: assert.AnError}
	close(ch)

	w := httptest.NewRecorder()
	err := WriteOpenAI(w, ch)
	require.Error(t, err)
	assert.NotContains(t, w.Body.String(), "[DONE]")
}

func TestWriteAnthropic_EmitsNamedEvents(t *testing.T) {
	ch := make(chan provider.StreamChunk, 2)
	ch <- provider.StreamChunk{Model: "claude-x", Delta: "hi"}
	ch <- provider.StreamChunk{Finished: true}
	close(ch)

	w := httptest.NewRecorder()
	err := WriteAnthropic(w, ch)
	require.NoError(t, err)

	body := w.Body.String()
	assert.Contains(t, body, "event: message_start")
	assert.Contains(t, body, "event: content_block_delta")
	assert.Contains(t, body, "event: message_stop")

	var startEvent anthropicSSEEvent
	for _, block := range strings.Split(body, "\n\n") {
		if strings.Contains(block, "message_start") {
			lines := strings.SplitN(block, "\n", 2)
			require.Len(t, lines, 2)
			payload := strings.TrimPrefix(lines[1], "data: ")
			require.NoError(t, json.Unmarshal([]byte(payload), &startEvent))
		}
	}
	require.NotNil(t, startEvent.Message)
	assert.Equal(t, "claude-x", startEvent.Message.Model)
	assert.Equal(t, "assistant", startEvent.Message.Role)
}
