package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiprovidergw/gateway/internal/provider"
)

type stubAdapter struct {
	id provider.ID
}

func (s stubAdapter) ID() provider.ID               { return s.id }
func (s stubAdapter) DefaultModel() string          { return "stub-model" }
func (s stubAdapter) HealthCheck(ctx context.Context) bool { return true }
func (s stubAdapter) ChatCompletion(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	return &provider.ChatResponse{Provider: s.id}, nil
}
func (s stubAdapter) ChatCompletionStream(ctx context.Context, req *provider.ChatRequest) (<-chan provider.StreamChunk, error) {
	return nil, nil
}

func TestRegister_InitializesFreshHealthRow(t *testing.T) {
	r := New()
	r.Register(stubAdapter{id: provider.OpenAI}, Config{Priority: 8})

	h, ok := r.Health(provider.OpenAI)
	require.True(t, ok)
	assert.True(t, h.IsHealthy)
	assert.Zero(t, h.ResponseTime)
	assert.Zero(t, h.ErrorRate)
}

func TestRegister_ReplacesPriorAdapter(t *testing.T) {
	r := New()
	r.Register(stubAdapter{id: provider.OpenAI}, Config{Priority: 1})
	r.Register(stubAdapter{id: provider.OpenAI}, Config{Priority: 9})

	cfg, ok := r.Config(provider.OpenAI)
	require.True(t, ok)
	assert.Equal(t, 9, cfg.Priority)
	assert.Len(t, r.IDs(), 1)
}

func TestRecordSuccess_MovesErrorRateTowardZero(t *testing.T) {
	r := New()
	r.Register(stubAdapter{id: provider.Claude}, Config{Priority: 5})

	r.RecordFailure(provider.Claude, 10*time.Millisecond)
	h, _ := r.Health(provider.Claude)
	assert.InDelta(t, 0.1, h.ErrorRate, 1e-9)
	assert.False(t, h.IsHealthy)

	r.RecordSuccess(provider.Claude, 10*time.Millisecond)
	h, _ = r.Health(provider.Claude)
	assert.InDelta(t, 0.09, h.ErrorRate, 1e-9)
	assert.True(t, h.IsHealthy)
}

func TestSnapshot_ReflectsAllRegisteredProviders(t *testing.T) {
	r := New()
	r.Register(stubAdapter{id: provider.OpenAI}, Config{Priority: 8})
	r.Register(stubAdapter{id: provider.Claude}, Config{Priority: 9})

	entries := r.Snapshot()
	assert.Len(t, entries, 2)
}
