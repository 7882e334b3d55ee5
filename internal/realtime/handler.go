// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package realtime

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Permissive by design: the realtime channel is authenticated once at
	// handshake by C1, not by origin (mirrors the teacher's events WebSocket
	// upgrader).
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// inboundFrame is the wire shape of every client→hub message.
type inboundFrame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// ServeWS upgrades r into a realtime connection. It applies the C4
// handshake: IP rate limit, then C1 token verification (or guest
// fallback), then hands the connection to its read/write pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	addr := clientAddr(r)
	if !h.AllowHandshake(addr) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	query := r.URL.Query()
	token := query.Get("auth.token")
	p, authenticated, origin := h.resolvePrincipal(token)
	if !authenticated && !h.allowGuestTransport {
		ws.WriteJSON(outbound{Event: EventConnectionError, Payload: errorPayload{
			Code:    CodeInvalidToken,
			Message: "authentication required",
		}})
		ws.Close()
		return
	}

	c := newConnection(ws, p, authenticated, origin)
	h.register(c)

	go h.writePump(c)
	h.readPump(c)
}

// clientAddr extracts the handshake source address for rate-limiting,
// preferring a proxy-supplied header if present.
func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// readPump drains inbound frames and dispatches them to the event router
// until the transport closes, at which point it performs the implicit
// leave (spec.md §4.4) and unregisters the connection.
func (h *Hub) readPump(c *Connection) {
	defer func() {
		h.handleDisconnect(c)
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.sendError(EventError, CodeInvalidPayload, "malformed frame")
			continue
		}

		h.dispatch(c, frame.Event, frame.Payload)
	}
}

// writePump drains c.send to the transport and keeps the connection alive
// with periodic pings, grounded on the teacher's events WebSocket write
// loop (internal/api/handlers/events.go).
func (h *Hub) writePump(c *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleDisconnect performs the implicit leave_session on transport close
// (spec.md §4.4, §4.5.2) if the connection was bound.
func (h *Hub) handleDisconnect(c *Connection) {
	sessionID := c.SessionID()
	h.unregister(c)
	if sessionID == "" {
		return
	}
	if err := h.admission.Leave(sessionID, c.Principal.UserID); err != nil {
		log.Printf("realtime: leave on disconnect failed for %s: %v", c.ID, err)
		return
	}
	h.broadcastExcept(sessionID, c, "user_left_session", map[string]interface{}{
		"userId": c.Principal.UserID,
	})
	if s, err := h.registry.Get(sessionID); err == nil {
		s.RLock()
		snap := s.ToSnapshot()
		s.RUnlock()
		h.BroadcastToSession(sessionID, "session_update", snap)
	}
}
