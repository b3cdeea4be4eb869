package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiprovidergw/gateway/internal/provider"
	"github.com/aiprovidergw/gateway/internal/registry"
)

type stubProxy struct {
	healthy bool
}

func (s stubProxy) ID() provider.ID      { return provider.Proxy }
func (s stubProxy) DefaultModel() string { return "proxy-model" }
func (s stubProxy) HealthCheck(ctx context.Context) bool { return s.healthy }
func (s stubProxy) ChatCompletion(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	return &provider.ChatResponse{Provider: provider.Proxy, Content: "via proxy"}, nil
}
func (s stubProxy) ChatCompletionStream(ctx context.Context, req *provider.ChatRequest) (<-chan provider.StreamChunk, error) {
	return nil, nil
}

func TestResolveAuto_HealthyProxyResolvesToProxy(t *testing.T) {
	reg := registry.New()
	r := New(reg, stubProxy{healthy: true}, Auto)

	mode := r.ResolveAuto(context.Background())
	assert.Equal(t, Proxy, mode)
}

func TestResolveAuto_UnhealthyProxyResolvesToDirect(t *testing.T) {
	reg := registry.New()
	r := New(reg, stubProxy{healthy: false}, Auto)

	mode := r.ResolveAuto(context.Background())
	assert.Equal(t, Direct, mode)
}

func TestSwitchMode_RejectsAuto(t *testing.T) {
	reg := registry.New()
	r := New(reg, stubProxy{healthy: true}, Direct)

	err := r.SwitchMode(context.Background(), Auto)
	require.Error(t, err)
	assert.Equal(t, Direct, r.Mode())
}

func TestSwitchMode_ProxyRequiresSuccessfulProbe(t *testing.T) {
	reg := registry.New()
	r := New(reg, stubProxy{healthy: false}, Direct)

	err := r.SwitchMode(context.Background(), Proxy)
	require.Error(t, err)
	assert.Equal(t, Direct, r.Mode())
}

func TestSwitchMode_ProxySucceedsAfterHealthyProbe(t *testing.T) {
	reg := registry.New()
	r := New(reg, stubProxy{healthy: true}, Direct)

	err := r.SwitchMode(context.Background(), Proxy)
	require.NoError(t, err)
	assert.Equal(t, Proxy, r.Mode())
}

func TestDispatch_ProxyModeBypassesSelector(t *testing.T) {
	reg := registry.New()
	r := New(reg, stubProxy{healthy: true}, Proxy)

	resp, err := r.Dispatch(context.Background(), provider.CapChatCompletion, &provider.ChatRequest{
		Messages: []provider.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, provider.Proxy, resp.Provider)
}
