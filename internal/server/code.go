package server

import (
	"fmt"
	"net/http"

	"github.com/aiprovidergw/gateway/internal/provider"
)

// codeExplainRequest is the payload for POST /api/v1/code/explain.
type codeExplainRequest struct {
	Code     string `json:"code"`
	Language string `json:"language,omitempty"`
}

// codeEditRequest is the payload for POST /api/v1/code/edit.
type codeEditRequest struct {
	Code         string `json:"code"`
	Instructions string `json:"instructions"`
	Language     string `json:"language,omitempty"`
}

// codeResponse is the shared response shape for both code endpoints.
type codeResponse struct {
	Content  string      `json:"content"`
	Model    string      `json:"model"`
	Provider provider.ID `json:"provider"`
}

// handleCodeExplain handles POST /api/v1/code/explain, dispatching against
// whichever provider advertises code_explanation.
func (s *Server) handleCodeExplain(w http.ResponseWriter, r *http.Request) {
	var req codeExplainRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	prompt := fmt.Sprintf("Explain the following %s code:\n\n%s", languageOrDefault(req.Language), req.Code)
	chatReq := &provider.ChatRequest{Messages: []provider.Message{{Role: "user", Content: prompt}}}

	resp, err := s.gw.Dispatch(r.Context(), provider.CapCodeExplanation, chatReq)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, codeResponse{Content: resp.Content, Model: resp.Model, Provider: resp.Provider})
}

// handleCodeEdit handles POST /api/v1/code/edit, dispatching against
// whichever provider advertises code_refactoring.
func (s *Server) handleCodeEdit(w http.ResponseWriter, r *http.Request) {
	var req codeEditRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	prompt := fmt.Sprintf(
		"Edit the following %s code per these instructions: %s\n\nCode:\n%s",
		languageOrDefault(req.Language), req.Instructions, req.Code,
	)
	chatReq := &provider.ChatRequest{Messages: []provider.Message{{Role: "user", Content: prompt}}}

	resp, err := s.gw.Dispatch(r.Context(), provider.CapCodeRefactoring, chatReq)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, codeResponse{Content: resp.Content, Model: resp.Model, Provider: resp.Provider})
}

func languageOrDefault(lang string) string {
	if lang == "" {
		return "the following"
	}
	return lang
}
