// Package wsgateway fans out streaming chunks to WebSocket subscribers
// (§4.6). Every upgraded connection gets a UUID, is tracked in a shared
// table, and exchanges JSON frames classified by a "type" tag.
package wsgateway

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aiprovidergw/gateway/internal/gwerrors"
	"github.com/aiprovidergw/gateway/internal/provider"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// inboundFrame is the shape of every client->server JSON frame; only
// "type" is read eagerly, the rest is decoded per-type.
type inboundFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type pongFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// Outbound frame shapes, per §4.6's outbound table.
type streamStartFrame struct {
	Type     string      `json:"type"`
	ID       string      `json:"id"`
	Model    string      `json:"model"`
	Provider provider.ID `json:"provider"`
}

type chatDeltaFrame struct {
	Type     string      `json:"type"`
	ID       string      `json:"id"`
	Delta    string      `json:"delta"`
	Model    string      `json:"model"`
	Provider provider.ID `json:"provider"`
	Finished bool        `json:"finished"`
}

type streamEndFrame struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	TotalTokens *int   `json:"total_tokens,omitempty"`
}

type errorFrame struct {
	Type  string  `json:"type"`
	ID    string  `json:"id"`
	Error string  `json:"error"`
	Code  *string `json:"code,omitempty"`
}

// Conn is one upgraded WebSocket connection, tracked by the Gateway's
// connection table.
type Conn struct {
	ID          uuid.UUID
	Auth        string
	ConnectedAt time.Time

	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
}

// Gateway owns the upgrade handshake and the shared connection table.
type Gateway struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]*Conn
}

// New constructs an empty Gateway.
func New() *Gateway {
	return &Gateway{conns: make(map[uuid.UUID]*Conn)}
}

// Upgrade accepts a WebSocket upgrade request, registers the resulting
// connection under a fresh UUID, and starts its read/write pumps. The
// caller is responsible for binding a stream to the returned Conn
// (see BindStream); Upgrade itself only establishes the socket and
// begins serving ping/pong housekeeping.
func (g *Gateway) Upgrade(w http.ResponseWriter, r *http.Request, auth string) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.Network, "websocket upgrade failed", err)
	}

	c := &Conn{
		ID:          uuid.New(),
		Auth:        auth,
		ConnectedAt: time.Now(),
		ws:          ws,
		send:        make(chan []byte, 32),
		done:        make(chan struct{}),
	}

	g.mu.Lock()
	g.conns[c.ID] = c
	g.mu.Unlock()

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go g.writePump(c)
	go g.readPump(c)

	return c, nil
}

// Close removes the connection from the table and tears down its
// socket, cancelling any stream bound to it on the next suspension
// point.
func (g *Gateway) Close(c *Conn) {
	g.mu.Lock()
	_, ok := g.conns[c.ID]
	delete(g.conns, c.ID)
	g.mu.Unlock()

	if !ok {
		return
	}

	close(c.done)
	c.ws.Close()
}

// Get looks up a tracked connection by id.
func (g *Gateway) Get(id uuid.UUID) (*Conn, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.conns[id]
	return c, ok
}

// Count reports the number of currently tracked connections.
func (g *Gateway) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}

func (g *Gateway) readPump(c *Conn) {
	defer g.Close(c)

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Printf("wsgateway: dropping malformed frame from %s: %v", c.ID, err)
			continue
		}

		switch frame.Type {
		case "ping":
			g.send(c, pongFrame{Type: "pong", Timestamp: frame.Timestamp})
		default:
			log.Printf("wsgateway: dropping unrecognized frame type %q from %s", frame.Type, c.ID)
		}
	}
}

func (g *Gateway) writePump(c *Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.ws.Close()

	for {
		select {
		case msg, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (g *Gateway) send(c *Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("wsgateway: marshaling frame for %s: %v", c.ID, err)
		return
	}

	select {
	case c.send <- data:
	case <-c.done:
	default:
		log.Printf("wsgateway: send buffer full for %s, dropping frame", c.ID)
	}
}

// BindStream fans a chunk sequence out to c as stream_start, one
// chat_delta per chunk, and a closing stream_end — or a terminal error
// frame if the sequence fails mid-stream. It returns once the sequence
// (or the connection) ends.
func BindStream(g *Gateway, c *Conn, streamID string, chunks <-chan provider.StreamChunk) {
	started := false

	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return
			}

			if chunk.Err != nil {
				code := string(gwerrors.ProviderUnavailable)
				if ge, ok := gwerrors.As(chunk.Err); ok {
					code = string(ge.Kind)
				}
				g.send(c, errorFrame{Type: "error", ID: streamID, Error: chunk.Err.Error(), Code: &code})
				return
			}

			if !started {
				started = true
				g.send(c, streamStartFrame{Type: "stream_start", ID: streamID, Model: chunk.Model, Provider: chunk.Provider})
			}

			if chunk.Finished {
				var total *int
				if chunk.Usage != nil {
					total = &chunk.Usage.TotalTokens
				}
				g.send(c, streamEndFrame{Type: "stream_end", ID: streamID, TotalTokens: total})
				return
			}

			g.send(c, chatDeltaFrame{
				Type:     "chat_delta",
				ID:       streamID,
				Delta:    chunk.Delta,
				Model:    chunk.Model,
				Provider: chunk.Provider,
				Finished: false,
			})

		case <-c.done:
			return
		}
	}
}
