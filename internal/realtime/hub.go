// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package realtime

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/wingedpig/collabhub/internal/admission"
	"github.com/wingedpig/collabhub/internal/auth"
	"github.com/wingedpig/collabhub/internal/principal"
	"github.com/wingedpig/collabhub/internal/session"
)

// ExecutionResult is the normalized outcome of one C7 dispatch, shaped per
// spec.md §4.7.
type ExecutionResult struct {
	Success       bool        `json:"success"`
	Language      string      `json:"language"`
	Version       string      `json:"version"`
	Compile       RunOutput   `json:"compile"`
	Run           RunOutput   `json:"run"`
	Output        string      `json:"output"`
	Error         string      `json:"error,omitempty"`
	ExitCode      int         `json:"exitCode"`
	ExecutionTime interface{} `json:"executionTime"`
}

// RunOutput is one stage (compile or run) of a sandbox response.
type RunOutput struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Code   int    `json:"code"`
}

// Dispatcher is the narrow view of the Execution Dispatcher (C7) the
// router needs; implemented by *execution.Dispatcher. Kept as an
// interface here so realtime never imports execution's HTTP client
// concerns beyond this one call.
type Dispatcher interface {
	Execute(ctx context.Context, language, code, input string) (ExecutionResult, error)
}

// TickerSubscriptions is the narrow view of the Metrics Ticker (C8) the
// router needs to manage per-session subscription.
type TickerSubscriptions interface {
	Subscribe(sessionID string)
	Unsubscribe(sessionID string)
}

// Hub is the Connection Manager + Event Router (C4/C5): it owns every
// live connection, binds them to sessions, and is the Notifier the
// Admission Controller broadcasts terminal events through.
type Hub struct {
	registry   *session.Registry
	admission  *admission.Controller
	verifier   *auth.Verifier
	dispatcher Dispatcher
	ticker     TickerSubscriptions
	limiter    *ipRateLimiter

	allowGuestTransport bool

	mu             sync.RWMutex
	connsByID      map[string]*Connection
	connsBySession map[string]map[string]*Connection
}

// NewHub wires a Hub over the given registry/admission/verifier. dispatcher
// and ticker may be nil (execute_code and start_performance_monitoring
// then reply with a typed error / no-op respectively).
func NewHub(registry *session.Registry, adm *admission.Controller, verifier *auth.Verifier, dispatcher Dispatcher, ticker TickerSubscriptions, rlCfg RateLimitConfig, allowGuestTransport bool) (*Hub, error) {
	limiter, err := newIPRateLimiter(rlCfg)
	if err != nil {
		return nil, err
	}
	h := &Hub{
		registry:            registry,
		admission:           adm,
		verifier:            verifier,
		dispatcher:          dispatcher,
		ticker:              ticker,
		limiter:             limiter,
		allowGuestTransport: allowGuestTransport,
		connsByID:           make(map[string]*Connection),
		connsBySession:      make(map[string]map[string]*Connection),
	}
	adm.SetNotifier(h)
	return h, nil
}

// SetTicker attaches the Metrics Ticker (C8) once it has been constructed
// over this Hub (the ticker's Broadcaster/ActiveUserCounter dependencies
// are this same Hub, so it can only be built after NewHub returns),
// mirroring the admission.SetNotifier wiring above.
func (h *Hub) SetTicker(ticker TickerSubscriptions) {
	h.ticker = ticker
}

// AllowHandshake applies the IP rate limit (spec.md §4.4) to a new
// connection attempt from addr.
func (h *Hub) AllowHandshake(addr string) bool {
	return h.limiter.Allow(addr)
}

// SessionMemberCount implements metrics.ActiveUserCounter: the number of
// live connections currently bound to sessionID.
func (h *Hub) SessionMemberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connsBySession[sessionID])
}

// register records a newly upgraded, unbound connection.
func (h *Hub) register(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connsByID[c.ID] = c
}

// bindToSession moves a connection into a session's peer set, used after
// a successful join_session.
func (h *Hub) bindToSession(c *Connection, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	peers, ok := h.connsBySession[sessionID]
	if !ok {
		peers = make(map[string]*Connection)
		h.connsBySession[sessionID] = peers
	}
	peers[c.ID] = c
}

// unbindFromSession removes a connection from its session's peer set.
func (h *Hub) unbindFromSession(c *Connection, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if peers, ok := h.connsBySession[sessionID]; ok {
		delete(peers, c.ID)
		if len(peers) == 0 {
			delete(h.connsBySession, sessionID)
		}
	}
}

// unregister removes a connection entirely, from both indexes.
func (h *Hub) unregister(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connsByID, c.ID)
	sid := c.SessionID()
	if peers, ok := h.connsBySession[sid]; ok {
		delete(peers, c.ID)
		if len(peers) == 0 {
			delete(h.connsBySession, sid)
		}
	}
}

// BroadcastToSession implements admission.Notifier and is also used
// internally by the event router to fan out derived state events. It
// never blocks on a slow peer (Connection.deliver is non-blocking).
func (h *Hub) BroadcastToSession(sessionID, eventType string, payload interface{}) {
	h.mu.RLock()
	peers := make([]*Connection, 0, len(h.connsBySession[sessionID]))
	for _, c := range h.connsBySession[sessionID] {
		peers = append(peers, c)
	}
	h.mu.RUnlock()

	for _, c := range peers {
		c.deliver(eventType, payload)
	}
}

// SessionPeers returns the connections currently bound to sessionID, for
// building the get_session_users response (spec.md §12).
func (h *Hub) SessionPeers(sessionID string) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	peers := make([]*Connection, 0, len(h.connsBySession[sessionID]))
	for _, c := range h.connsBySession[sessionID] {
		peers = append(peers, c)
	}
	return peers
}

// broadcastExcept fans out to every peer in sessionID except the sender.
func (h *Hub) broadcastExcept(sessionID string, sender *Connection, eventType string, payload interface{}) {
	h.mu.RLock()
	peers := make([]*Connection, 0, len(h.connsBySession[sessionID]))
	for id, c := range h.connsBySession[sessionID] {
		if id != sender.ID {
			peers = append(peers, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range peers {
		c.deliver(eventType, payload)
	}
}

// resolvePrincipal performs the C4 handshake-time C1 call: verify the
// token, or fall back to a synthetic guest principal (spec.md §4.4).
func (h *Hub) resolvePrincipal(token string) (principal.Principal, bool, string) {
	if token != "" && h.verifier != nil {
		p, err := h.verifier.Verify(token)
		if err == nil {
			return p, true, string(p.Origin)
		}
	}
	return guestPrincipal(), false, string(principal.OriginGuest)
}

func guestPrincipal() principal.Principal {
	return principal.Principal{
		UserID:      "guest-" + uuid.NewString(),
		DisplayName: "Guest",
		Role:        principal.RoleGuest,
		Origin:      principal.OriginGuest,
	}
}

// logDropped records an unknown inbound event type (spec.md §4.5.1:
// "Unknown events are ignored with a logged warning").
func logDropped(connID, event string) {
	log.Printf("realtime: connection %s sent unknown event %q, dropping", connID, event)
}
