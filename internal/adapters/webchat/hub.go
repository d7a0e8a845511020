// Package webchat keeps candidate websocket connections per conversation and fans replies out to them
package webchat

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"turnstile/internal/platform/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 50 * time.Second
	maxFrameSize = 64 << 10
)

// Frame types
const (
	FrameMessage   = "message"
	FrameActivity  = "activity"
	FrameReply     = "reply"
	FrameError     = "error"
	FrameConnected = "connected"
)

// Frame is the JSON shape exchanged on the socket in both directions
type Frame struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id,omitempty"`
	Text      string `json:"text,omitempty"`
	Activity  string `json:"activity,omitempty"`
	Step      int    `json:"step,omitempty"`
	Final     bool   `json:"final,omitempty"`
}

// Inbound handles one candidate frame; a returned error is echoed as an error frame
type Inbound func(ctx context.Context, f Frame) error

type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Hub owns every open socket of this process
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	pools    map[string]map[*conn]struct{}
	log      *logger.Logger
}

// NewHub builds a hub; an empty origins list accepts any origin
func NewHub(origins []string) *Hub {
	h := &Hub{pools: map[string]map[*conn]struct{}{}, log: logger.Named("webchat")}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(origins) == 0 {
				return true
			}
			return slices.Contains(origins, r.Header.Get("Origin"))
		},
	}
	return h
}

// Serve upgrades the request and pumps frames for one conversation until the socket closes
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, conversationID string, in Inbound) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("ws upgrade failed")
		return
	}
	c := &conn{ws: ws}
	h.add(conversationID, c)
	defer h.remove(conversationID, c)

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	go h.keepalive(ctx, c)

	_ = c.write(Frame{Type: FrameConnected})
	ws.SetReadLimit(maxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error { return ws.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		var f Frame
		if err := ws.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("conversation_id", conversationID).Msg("ws closed")
			}
			return
		}
		if err := in(ctx, f); err != nil {
			_ = c.write(Frame{Type: FrameError, Text: err.Error(), MessageID: f.MessageID})
		}
	}
}

func (h *Hub) keepalive(ctx context.Context, c *conn) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

// Broadcast sends f to every socket of a conversation and returns how many received it
func (h *Hub) Broadcast(conversationID string, f Frame) int {
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.pools[conversationID]))
	for c := range h.pools[conversationID] {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	n := 0
	for _, c := range conns {
		if err := c.write(f); err != nil {
			h.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("ws broadcast failed, dropping connection")
			h.remove(conversationID, c)
			continue
		}
		n++
	}
	return n
}

// Count returns the open sockets of a conversation
func (h *Hub) Count(conversationID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pools[conversationID])
}

// CloseAll closes every socket; used on shutdown
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conv, pool := range h.pools {
		for c := range pool {
			_ = c.ws.Close()
		}
		delete(h.pools, conv)
	}
}

func (h *Hub) add(conversationID string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pool := h.pools[conversationID]
	if pool == nil {
		pool = map[*conn]struct{}{}
		h.pools[conversationID] = pool
	}
	pool[c] = struct{}{}
}

func (h *Hub) remove(conversationID string, c *conn) {
	h.mu.Lock()
	if pool := h.pools[conversationID]; pool != nil {
		delete(pool, c)
		if len(pool) == 0 {
			delete(h.pools, conversationID)
		}
	}
	h.mu.Unlock()
	_ = c.ws.Close()
}
