// Package dispatch implements the sequential retry loop (§4.4): given a
// normalized request and the selector's ordered provider list, it tries
// each provider in turn, recording latency and updating health after
// every attempt, and fails fast on non-retryable errors.
package dispatch

import (
	"context"
	"time"

	"github.com/aiprovidergw/gateway/internal/gwerrors"
	"github.com/aiprovidergw/gateway/internal/provider"
	"github.com/aiprovidergw/gateway/internal/registry"
	"github.com/aiprovidergw/gateway/internal/selector"
)

// Dispatch executes req against the ordered provider list for cap,
// trying providers sequentially: record start time, invoke the adapter,
// record elapsed time, update the provider's health row, and either
// return on success or continue to the next provider on a retryable
// failure. Auth and InvalidParameter errors return immediately without
// trying any fallback, since they indicate caller misconfiguration rather
// than provider degradation. Exhausting the list fails with
// ProviderUnavailable.
func Dispatch(ctx context.Context, reg *registry.Registry, cap provider.Capability, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	ordered, err := selector.Select(reg, cap)
	if err != nil {
		return nil, err
	}

	for _, id := range ordered {
		adapter, ok := reg.Get(id)
		if !ok {
			continue
		}

		start := time.Now()
		resp, err := adapter.ChatCompletion(ctx, req)
		elapsed := time.Since(start)

		if err == nil {
			reg.RecordSuccess(id, elapsed)
			return resp, nil
		}

		reg.RecordFailure(id, elapsed)

		if ge, ok := gwerrors.As(err); ok && !ge.Retryable() {
			return nil, err
		}
	}

	return nil, gwerrors.New(gwerrors.ProviderUnavailable, "all providers failed")
}
