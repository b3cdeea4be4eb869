// Package server sets up the HTTP router, middleware, and request
// handlers for the gateway's external interface (§6).
package server

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aiprovidergw/gateway/internal/config"
	"github.com/aiprovidergw/gateway/internal/provider"
	"github.com/aiprovidergw/gateway/internal/registry"
	"github.com/aiprovidergw/gateway/internal/router"
	"github.com/aiprovidergw/gateway/internal/wsgateway"
)

// Server holds the HTTP router and all dependencies the handlers need:
// the dual-mode router for dispatch, the registry for health reporting
// and provider listing, and the WebSocket gateway for the streaming
// fan-out endpoint.
type Server struct {
	router chi.Router
	cfg    *config.Config
	gw     *router.Router
	reg    *registry.Registry
	ws     *wsgateway.Gateway

	// currentProvider is a process-wide tie-breaker display value set by
	// POST /api/v1/providers/switch. It is NOT a routing override — the
	// selector still scores every capable provider — it only reports
	// which provider an operator last nominated as "current".
	mu              sync.RWMutex
	currentProvider provider.ID
}

// New creates a Server, wires up routes and middleware, and returns it
// ready to use as an http.Handler.
func New(cfg *config.Config, gw *router.Router, reg *registry.Registry, ws *wsgateway.Gateway) *Server {
	s := &Server{cfg: cfg, gw: gw, reg: reg, ws: ws}
	s.routes()
	return s
}

// routes builds the chi router with all middleware and route
// definitions.
func (s *Server) routes() {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/v1/messages", s.handleAnthropicMessages)
	r.Post("/v1/messages/stream", s.handleAnthropicMessagesStream)

	r.Post("/api/v1/chat", s.handleChat)
	r.Post("/api/v1/chat/stream", s.handleChatStream)
	r.Post("/api/v1/code/explain", s.handleCodeExplain)
	r.Post("/api/v1/code/edit", s.handleCodeEdit)
	r.Get("/api/v1/providers", s.handleListProviders)
	r.Post("/api/v1/providers/switch", s.handleSwitchProvider)

	r.Get("/ws", s.handleWebSocket)

	s.router = r
}

// ServeHTTP makes Server satisfy the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
