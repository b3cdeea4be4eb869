package server

import (
	"context"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/aiprovidergw/gateway/internal/provider"
	"github.com/aiprovidergw/gateway/internal/wsgateway"
)

// handleWebSocket handles GET /ws. A bare connection is a passive
// subscriber — it only answers ping/pong frames until closed. A connection
// opened with a ?message= query param additionally kicks off a dispatch and
// fans the resulting stream back over the socket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	auth := r.URL.Query().Get("auth")

	conn, err := s.ws.Upgrade(w, r, auth)
	if err != nil {
		log.Printf("server: websocket upgrade failed: %v", err)
		return
	}

	message := r.URL.Query().Get("message")
	if message == "" {
		return
	}

	chatReq := &provider.ChatRequest{Messages: []provider.Message{{Role: "user", Content: message}}}

	// r.Context() is cancelled as soon as this handler returns, so the
	// stream gets its own context, cancelled once BindStream returns.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	chunks, err := s.gw.DispatchStream(ctx, provider.CapChatCompletion, chatReq)
	if err != nil {
		cancel()
		log.Printf("server: websocket stream dispatch failed: %v", err)
		s.ws.Close(conn)
		return
	}

	streamID := uuid.NewString()
	go func() {
		defer cancel()
		wsgateway.BindStream(s.ws, conn, streamID, chunks)
	}()
}
