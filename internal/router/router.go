// Package router implements the dual-mode router (§4.5): Direct mode routes
// through the registry, selector, and dispatch loop; Proxy mode sends every
// request to a single pre-resolved meta-adapter; Auto resolves to one of
// the two at startup by probing the proxy under a bounded timeout.
package router

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aiprovidergw/gateway/internal/dispatch"
	"github.com/aiprovidergw/gateway/internal/gwerrors"
	"github.com/aiprovidergw/gateway/internal/provider"
	"github.com/aiprovidergw/gateway/internal/registry"
	"github.com/aiprovidergw/gateway/internal/selector"
	"github.com/aiprovidergw/gateway/internal/streaming"
)

// Mode is the router's operating mode.
type Mode string

const (
	Direct Mode = "direct"
	Proxy  Mode = "proxy"
	Auto   Mode = "auto"
)

// defaultProbeTimeout is how long Auto-mode resolution waits for the proxy
// to answer health_check before falling back to Direct.
const defaultProbeTimeout = 5 * time.Second

// Router wraps the registry and, in Proxy/Auto mode, a single meta-adapter.
// The resolved mode is sticky until an explicit SwitchMode call; it is
// guarded by a mutex since HTTP handlers read it concurrently with any
// admin-triggered switch.
type Router struct {
	reg          *registry.Registry
	proxyAdapter provider.Provider
	probeTimeout time.Duration

	mu   sync.RWMutex
	mode Mode
}

// New constructs a Router configured for the given startup mode. If
// startupMode is Auto, call ResolveAuto before serving traffic — New does
// not probe the proxy itself, so callers can control when that bounded
// network call happens.
func New(reg *registry.Registry, proxyAdapter provider.Provider, startupMode Mode) *Router {
	return &Router{
		reg:          reg,
		proxyAdapter: proxyAdapter,
		probeTimeout: defaultProbeTimeout,
		mode:         startupMode,
	}
}

// Mode returns the router's current mode. Once ResolveAuto has run it is
// Direct or Proxy; a router constructed in Auto mode reports Auto until
// ResolveAuto is called.
func (r *Router) Mode() Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

// ResolveAuto probes the proxy's health_check under probeTimeout using a
// bounded exponential backoff retry. On success it resolves to Proxy; on
// timeout or failure it resolves to Direct. Call this once at startup when
// the configured mode is Auto; calling it when the mode is not Auto is a
// no-op.
func (r *Router) ResolveAuto(ctx context.Context) Mode {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.mode != Auto {
		return r.mode
	}

	if r.probeProxy(ctx) {
		r.mode = Proxy
	} else {
		r.mode = Direct
	}
	return r.mode
}

func (r *Router) probeProxy(ctx context.Context) bool {
	if r.proxyAdapter == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)

	var healthy bool
	_ = backoff.Retry(func() error {
		if r.proxyAdapter.HealthCheck(ctx) {
			healthy = true
			return nil
		}
		return gwerrors.New(gwerrors.ProviderUnavailable, "proxy health probe failed")
	}, bo)

	return healthy
}

// SwitchMode changes the router's mode explicitly. switch_mode(Auto) is
// always rejected — Auto is a resolution-time concept, not a runtime
// state, per §4.5. switch_mode(Proxy) must pass a fresh health probe
// before it takes effect; switch_mode(Direct) always succeeds.
func (r *Router) SwitchMode(ctx context.Context, target Mode) error {
	if target == Auto {
		return gwerrors.New(gwerrors.InvalidParameter, "cannot switch to Auto mode explicitly")
	}

	if target == Proxy {
		if !r.probeProxy(ctx) {
			return gwerrors.New(gwerrors.ProviderUnavailable, "proxy health probe failed, refusing to switch")
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = target
	return nil
}

// Dispatch executes req for the requested capability according to the
// router's current mode. Direct mode goes through the registry, selector,
// and dispatch loop; Proxy mode goes straight to the meta-adapter
// regardless of capability.
func (r *Router) Dispatch(ctx context.Context, cap provider.Capability, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	mode := r.Mode()

	switch mode {
	case Proxy:
		if r.proxyAdapter == nil {
			return nil, gwerrors.New(gwerrors.ProviderUnavailable, "proxy mode active but no proxy adapter configured")
		}
		return r.proxyAdapter.ChatCompletion(ctx, req)
	default:
		return dispatch.Dispatch(ctx, r.reg, cap, req)
	}
}

// DispatchStream is the streaming counterpart of Dispatch: it resolves an
// adapter for the current mode and capability, then hands it to the
// streaming package, which forwards native chunks or falls back to
// synthesis when the adapter has none.
func (r *Router) DispatchStream(ctx context.Context, cap provider.Capability, req *provider.ChatRequest) (<-chan provider.StreamChunk, error) {
	mode := r.Mode()

	if mode == Proxy {
		if r.proxyAdapter == nil {
			return nil, gwerrors.New(gwerrors.ProviderUnavailable, "proxy mode active but no proxy adapter configured")
		}
		return streaming.Stream(ctx, r.proxyAdapter, req)
	}

	id, err := r.resolvePrimary(cap)
	if err != nil {
		return nil, err
	}
	adapter, ok := r.reg.Get(id)
	if !ok {
		return nil, registry.NewNotRegisteredError(id)
	}
	return streaming.Stream(ctx, adapter, req)
}

func (r *Router) resolvePrimary(cap provider.Capability) (provider.ID, error) {
	ordered, err := selector.Select(r.reg, cap)
	if err != nil {
		return "", err
	}
	return ordered[0], nil
}
