// Package streaming turns any request/provider pair into a lazy sequence
// of StreamChunks (§4.6): adapters with native streaming pass their chunks
// straight through, and adapters without it are backed by word-slicing a
// completed response on a fixed cadence.
package streaming

import (
	"context"
	"strings"
	"time"

	"github.com/aiprovidergw/gateway/internal/gwerrors"
	"github.com/aiprovidergw/gateway/internal/provider"
)

// cadence is the synthetic streamer's fixed inter-chunk delay, per the
// Non-goal that the gateway does not shape tokens-per-second beyond this.
const cadence = 30 * time.Millisecond

// RealChunkWords is the word-group size used when synthesizing a stream
// for a provider that actually serves the model (no native streaming, but
// a genuine completion came back).
const RealChunkWords = 2

// DemoChunkWords is the word-group size used when synthesizing a stream
// with nothing backing it but a canned or demo response.
const DemoChunkWords = 3

// Synthesize word-slices a completed response's content into a channel of
// StreamChunks, k words at a time, spaced by cadence. The final chunk
// carries Finished=true, an empty delta, and the response's usage.
func Synthesize(ctx context.Context, resp *provider.ChatResponse, k int) <-chan provider.StreamChunk {
	if k <= 0 {
		k = RealChunkWords
	}

	ch := make(chan provider.StreamChunk)

	go func() {
		defer close(ch)

		words := strings.Fields(resp.Content)
		ticker := time.NewTicker(cadence)
		defer ticker.Stop()

		first := true
		wait := func() bool {
			if first {
				first = false
				return true
			}
			select {
			case <-ticker.C:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for i := 0; i < len(words); i += k {
			if !wait() {
				return
			}

			end := i + k
			if end > len(words) {
				end = len(words)
			}
			delta := strings.Join(words[i:end], " ")
			if i > 0 {
				delta = " " + delta
			}

			select {
			case ch <- provider.StreamChunk{Delta: delta, Model: resp.Model, Provider: resp.Provider}:
			case <-ctx.Done():
				return
			}
		}

		if !wait() {
			return
		}

		select {
		case ch <- provider.StreamChunk{Model: resp.Model, Provider: resp.Provider, Finished: true, Usage: resp.Usage}:
		case <-ctx.Done():
		}
	}()

	return ch
}

// Stream produces a chunk sequence for req against adapter: if the adapter
// supports native streaming, its channel is passed straight through;
// otherwise a complete response is fetched and synthesized at
// RealChunkWords, matching "a real adapter that lacks native streaming"
// rather than the demo path (DemoChunkWords is for canned/simulated
// responses with no backing adapter at all, e.g. approval-gated dry runs).
func Stream(ctx context.Context, adapter provider.Provider, req *provider.ChatRequest) (<-chan provider.StreamChunk, error) {
	native, err := adapter.ChatCompletionStream(ctx, req)
	if err == nil {
		return native, nil
	}

	ge, ok := gwerrors.As(err)
	if !ok || ge.Kind != gwerrors.Streaming {
		return nil, err
	}

	resp, err := adapter.ChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	return Synthesize(ctx, resp, RealChunkWords), nil
}
