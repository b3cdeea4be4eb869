package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/aiprovidergw/gateway/internal/gwerrors"
	"github.com/aiprovidergw/gateway/internal/provider"
	"github.com/aiprovidergw/gateway/internal/streaming"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: encoding response: %v", err)
	}
}

// writeError maps err to its HTTP status per §7 and writes a JSON body
// carrying the category and message.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := gwerrors.UnexpectedResponse
	if ge, ok := gwerrors.As(err); ok {
		status = ge.HTTPStatus()
		kind = ge.Kind
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  string(kind),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid request body: " + err.Error(),
		})
		return false
	}
	return true
}

// handleHealth responds with liveness and, when ?detailed=true, a
// per-provider health report drawn from the registry.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}

	if r.URL.Query().Get("detailed") == "true" {
		type providerStatus struct {
			Name           provider.ID `json:"name"`
			Healthy        bool        `json:"healthy"`
			ResponseTimeMs int64       `json:"response_time_ms"`
			ErrorRate      float64     `json:"error_rate"`
		}

		var statuses []providerStatus
		for _, entry := range s.reg.Snapshot() {
			statuses = append(statuses, providerStatus{
				Name:           entry.Health.ID,
				Healthy:        entry.Health.IsHealthy,
				ResponseTimeMs: entry.Health.ResponseTime.Milliseconds(),
				ErrorRate:      entry.Health.ErrorRate,
			})
		}
		body["providers"] = statuses
		body["mode"] = s.gw.Mode()
	}

	writeJSON(w, http.StatusOK, body)
}

// handleChat handles POST /api/v1/chat: the gateway's normalized,
// non-streaming chat contract.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req provider.ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := s.gw.Dispatch(r.Context(), provider.CapChatCompletion, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleChatStream handles POST /api/v1/chat/stream: the normalized
// contract's SSE streaming counterpart.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req provider.ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	chunks, err := s.gw.DispatchStream(r.Context(), provider.CapChatCompletion, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := streaming.WriteOpenAI(w, chunks); err != nil {
		log.Printf("server: chat stream write error: %v", err)
	}
}
