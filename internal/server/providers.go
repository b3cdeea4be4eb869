package server

import (
	"net/http"

	"github.com/aiprovidergw/gateway/internal/provider"
)

type providerSummary struct {
	ID           provider.ID `json:"id"`
	Priority     int         `json:"priority"`
	Capabilities []string    `json:"capabilities"`
	Healthy      bool        `json:"healthy"`
}

// handleListProviders handles GET /api/v1/providers: every registered
// provider's static config and dynamic health, plus whichever provider was
// last nominated "current" via the switch endpoint.
func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	entries := s.reg.Snapshot()
	summaries := make([]providerSummary, 0, len(entries))
	for _, e := range entries {
		caps := make([]string, 0, len(e.Config.Capabilities))
		for cap, ok := range e.Config.Capabilities {
			if ok {
				caps = append(caps, string(cap))
			}
		}
		summaries = append(summaries, providerSummary{
			ID:           e.Config.ID,
			Priority:     e.Config.Priority,
			Capabilities: caps,
			Healthy:      e.Health.IsHealthy,
		})
	}

	s.mu.RLock()
	current := s.currentProvider
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"providers": summaries,
		"current":   current,
	})
}

type switchProviderRequest struct {
	Provider string `json:"provider"`
}

// handleSwitchProvider handles POST /api/v1/providers/switch. It only
// updates the display-only "current" nomination — it does not change
// routing, which the selector still decides per request.
func (s *Server) handleSwitchProvider(w http.ResponseWriter, r *http.Request) {
	var req switchProviderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id, ok := provider.ParseID(req.Provider)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown provider: " + req.Provider})
		return
	}

	if _, registered := s.reg.Get(id); !registered {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "provider not registered: " + req.Provider})
		return
	}

	s.mu.Lock()
	s.currentProvider = id
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"current": string(id)})
}
