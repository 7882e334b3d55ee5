// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package realtime implements the Connection Manager (C4) and Event
// Router (C5): the authenticated, session-scoped WebSocket transport and
// the dispatch table that applies inbound events to the Session State
// Engine (C6) and the Execution Dispatcher (C7), fanning results back out
// to session peers.
package realtime

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wingedpig/collabhub/internal/principal"
)

// BindState is a connection's position in the join state machine
// (spec.md §4.5.2): UNBOUND → JOINING → BOUND → LEAVING → UNBOUND.
type BindState int

const (
	StateUnbound BindState = iota
	StateJoining
	StateBound
	StateLeaving
)

// outbound is one frame queued for delivery to this connection's writer
// goroutine. Event carries the wire event name; Payload is marshaled as
// the event's JSON body.
type outbound struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// Connection is one live realtime transport (spec.md §4.4). Every field
// outside of send/conn is guarded by mu; a connection is bound to at most
// one session at a time.
type Connection struct {
	ID            string
	Principal     principal.Principal
	Authenticated bool
	TokenOrigin   string

	conn *websocket.Conn
	send chan outbound

	mu        sync.RWMutex
	state     BindState
	sessionID string

	closeOnce sync.Once
}

// newConnection wraps an upgraded websocket in a Connection, unbound and
// carrying the principal resolved at handshake time.
func newConnection(ws *websocket.Conn, p principal.Principal, authenticated bool, tokenOrigin string) *Connection {
	return &Connection{
		ID:            uuid.NewString(),
		Principal:     p,
		Authenticated: authenticated,
		TokenOrigin:   tokenOrigin,
		conn:          ws,
		send:          make(chan outbound, 256),
		state:         StateUnbound,
	}
}

// SessionID returns the session this connection is currently bound to, or
// "" if unbound.
func (c *Connection) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// State returns the connection's current join-state-machine state.
func (c *Connection) State() BindState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// bind transitions an UNBOUND connection to BOUND against sessionID. It
// refuses to rebind an already-bound connection (§4.5.2: "single-session").
func (c *Connection) bind(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateBound {
		return false
	}
	c.state = StateBound
	c.sessionID = sessionID
	return true
}

// unbind transitions back to UNBOUND, clearing the session binding.
func (c *Connection) unbind() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateUnbound
	c.sessionID = ""
}

// deliver enqueues a frame for the connection's write pump. Never blocks
// indefinitely: a slow consumer's channel fills and the frame is dropped
// rather than stalling the broadcaster (mirrors the teacher's async event
// subscriber buffer-full policy).
func (c *Connection) deliver(event string, payload interface{}) {
	select {
	case c.send <- outbound{Event: event, Payload: payload}:
	default:
	}
}

// close shuts the connection's send channel exactly once, letting the
// write pump drain and exit.
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}
