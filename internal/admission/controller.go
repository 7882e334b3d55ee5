// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package admission implements the Admission Controller (C3): session
// creation, invite-key-gated join, invite-key rotation, deletion, and the
// idle-session garbage-collection sweep.
package admission

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wingedpig/collabhub/internal/principal"
	"github.com/wingedpig/collabhub/internal/session"
)

// Sentinel errors, one per distinct admission failure in spec.md §4.3/§7.
var (
	ErrInvalidInvite = errors.New("invalid_invite")
	ErrSessionFull   = errors.New("session_full")
	ErrGuestDenied   = errors.New("guest_denied")
	ErrAccessDenied  = errors.New("access_denied")
)

// EventSessionDeleted is broadcast to every member when a creator deletes
// their session.
const EventSessionDeleted = "session_deleted"

// Notifier is the narrow interface the Admission Controller needs to
// broadcast terminal events; implemented by the realtime Hub (C4/C5) and
// supplied via SetNotifier once the hub is constructed, breaking the
// import cycle between admission and realtime.
type Notifier interface {
	BroadcastToSession(sessionID, eventType string, payload interface{})
}

// Controller is the Admission Controller (C3).
type Controller struct {
	registry *session.Registry
	notifier Notifier
	ticker   TickerUnsubscriber

	gcDelay time.Duration

	// defaultMaxUsers/defaultAllowGuests are the operator-configured
	// global defaults (spec.md's MAX_USERS_PER_SESSION/ALLOW_GUESTS_DEFAULT,
	// internal/config), applied to every session creation that doesn't
	// supply its own CreateOptions override.
	defaultMaxUsers    int
	defaultAllowGuests bool

	mu       sync.Mutex
	gcTimers map[string]*time.Timer
}

// NewController creates an Admission Controller over registry. gcDelay is
// the idle duration (spec.md §3: "≥ 1 hour") after which an empty session
// is swept; pass 0 to use the spec default of one hour. defaultMaxUsers
// and defaultAllowGuests seed every new session's Settings unless the
// creation request overrides them; pass 0/false to fall back to
// session.DefaultSettings()'s hardcoded defaults.
func NewController(registry *session.Registry, gcDelay time.Duration, defaultMaxUsers int, defaultAllowGuests bool) *Controller {
	if gcDelay <= 0 {
		gcDelay = time.Hour
	}
	return &Controller{
		registry:           registry,
		gcDelay:            gcDelay,
		defaultMaxUsers:    defaultMaxUsers,
		defaultAllowGuests: defaultAllowGuests,
		gcTimers:           make(map[string]*time.Timer),
	}
}

// SetNotifier attaches the realtime Hub's broadcaster once it exists.
func (c *Controller) SetNotifier(n Notifier) {
	c.notifier = n
}

// TickerUnsubscriber is the narrow view of the Metrics Ticker (C8) the
// Admission Controller needs: drop a terminated session's subscription
// so a deleted or GC'd session's performance-monitoring stream doesn't
// leak forever.
type TickerUnsubscriber interface {
	Unsubscribe(sessionID string)
}

// SetTicker attaches the Metrics Ticker once it has been constructed,
// mirroring SetNotifier above.
func (c *Controller) SetTicker(t TickerUnsubscriber) {
	c.ticker = t
}

// CreateOptions customizes a new session beyond its name.
type CreateOptions struct {
	Name     string
	MaxUsers int // 0 => the controller's configured default

	// AllowGuests overrides the controller's configured default when
	// non-nil; nil means "request didn't specify, use the default".
	AllowGuests *bool
}

// CreateSession creates a new session, auto-joining the creator (a
// pseudo-join performed before this call returns, so the creator's
// permissions row is materialized immediately).
func (c *Controller) CreateSession(creator principal.Principal, opts CreateOptions) (*session.Session, error) {
	settings := session.DefaultSettings()
	if c.defaultMaxUsers > 0 {
		settings.MaxUsers = c.defaultMaxUsers
	}
	settings.AllowGuests = c.defaultAllowGuests
	if opts.MaxUsers > 0 {
		settings.MaxUsers = opts.MaxUsers
	}
	if opts.AllowGuests != nil {
		settings.AllowGuests = *opts.AllowGuests
	}

	name := opts.Name
	if name == "" {
		name = "Untitled session"
	}

	id := uuid.NewString() // 122 bits of entropy, well above the 72-bit floor

	inviteKey, err := c.registry.GenerateInviteKey()
	if err != nil {
		return nil, err
	}

	s := session.NewSession(id, name, creator.UserID, inviteKey, settings)
	if err := c.registry.Insert(s); err != nil {
		return nil, err
	}

	// Pseudo-join: materialize the creator's membership and permissions
	// before CreateSession returns (spec.md §4.3).
	s.AddMember(creator.UserID)
	s.EnsurePermissions(creator.UserID)

	return s, nil
}

// JoinResult is returned by JoinByInviteKey.
type JoinResult struct {
	Session     *session.Session
	Permissions session.Permissions
	AlreadyMember bool
}

// JoinByInviteKey admits a principal into the session identified by
// inviteKey, per the semantics enumerated in spec.md §4.3.
func (c *Controller) JoinByInviteKey(inviteKey string, p principal.Principal) (JoinResult, error) {
	s, err := c.registry.GetByInviteKey(inviteKey)
	if err != nil {
		return JoinResult{}, ErrInvalidInvite
	}
	return c.join(s, p)
}

// JoinBySessionID admits a principal into a known session (used to rejoin
// after a transport reconnect, or by callers that already resolved the ID
// via a non-invite-key path such as the REST passthrough).
func (c *Controller) JoinBySessionID(sessionID string, p principal.Principal) (JoinResult, error) {
	s, err := c.registry.Get(sessionID)
	if err != nil {
		return JoinResult{}, ErrInvalidInvite
	}
	return c.join(s, p)
}

func (c *Controller) join(s *session.Session, p principal.Principal) (JoinResult, error) {
	if p.IsGuest() {
		s.RLock()
		allowGuests := s.Settings.AllowGuests
		s.RUnlock()
		if !allowGuests {
			return JoinResult{}, ErrGuestDenied
		}
	}

	if s.IsMember(p.UserID) {
		c.cancelSweep(s.ID)
		perms, _ := s.GetPermissions(p.UserID)
		return JoinResult{Session: s, Permissions: perms, AlreadyMember: true}, nil
	}

	added, full := s.AddMember(p.UserID)
	if full {
		return JoinResult{}, ErrSessionFull
	}
	if !added {
		// Lost the race to a concurrent join; treat as idempotent success.
		perms, _ := s.GetPermissions(p.UserID)
		return JoinResult{Session: s, Permissions: perms, AlreadyMember: true}, nil
	}

	c.cancelSweep(s.ID)
	perms := s.EnsurePermissions(p.UserID)
	return JoinResult{Session: s, Permissions: perms}, nil
}

// Leave removes userID from the session's member set and, if that drains
// membership to empty, schedules the idle-session GC sweep.
func (c *Controller) Leave(sessionID, userID string) error {
	s, err := c.registry.Get(sessionID)
	if err != nil {
		return nil // already gone, nothing to do
	}
	if s.RemoveMember(userID) {
		c.scheduleSweep(s.ID)
	}
	return nil
}

// RotateInviteKey is creator-only (I6 capability check keyed on
// creatorID, never bypassable via permission edits).
func (c *Controller) RotateInviteKey(sessionID, requesterID string) (string, error) {
	s, err := c.registry.Get(sessionID)
	if err != nil {
		return "", ErrInvalidInvite
	}
	s.RLock()
	creator := s.CreatorID
	s.RUnlock()
	if requesterID != creator {
		return "", ErrAccessDenied
	}
	return c.registry.RotateInviteKey(sessionID)
}

// DeleteSession is creator-only. It broadcasts a terminal session_deleted
// event to all members before purging the session and its invite key.
func (c *Controller) DeleteSession(sessionID, requesterID string) error {
	s, err := c.registry.Get(sessionID)
	if err != nil {
		return nil // already gone
	}
	s.RLock()
	creator := s.CreatorID
	s.RUnlock()
	if requesterID != creator {
		return ErrAccessDenied
	}

	if c.notifier != nil {
		c.notifier.BroadcastToSession(sessionID, EventSessionDeleted, map[string]interface{}{
			"sessionId": sessionID,
		})
	}

	c.cancelSweep(sessionID)
	c.registry.Remove(sessionID)
	if c.ticker != nil {
		c.ticker.Unsubscribe(sessionID)
	}
	return nil
}

// scheduleSweep arms a delayed GC check for sessionID. If a sweep is
// already pending it is left in place (re-arming is not needed: the
// existing timer will re-check emptiness when it fires).
func (c *Controller) scheduleSweep(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, pending := c.gcTimers[sessionID]; pending {
		return
	}
	c.gcTimers[sessionID] = time.AfterFunc(c.gcDelay, func() {
		c.sweep(sessionID)
	})
}

// cancelSweep disarms a pending GC timer for sessionID, if any. Called
// whenever a member (re)joins before the sweep fires (spec.md §5).
func (c *Controller) cancelSweep(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.gcTimers[sessionID]; ok {
		t.Stop()
		delete(c.gcTimers, sessionID)
	}
}

// sweep re-checks emptiness and purges the session if it is still empty.
// Purges are idempotent: registry.Remove tolerates an already-removed ID.
func (c *Controller) sweep(sessionID string) {
	c.mu.Lock()
	delete(c.gcTimers, sessionID)
	c.mu.Unlock()

	s, err := c.registry.Get(sessionID)
	if err != nil {
		return
	}
	if s.MemberCount() == 0 {
		c.registry.Remove(sessionID)
		if c.ticker != nil {
			c.ticker.Unsubscribe(sessionID)
		}
	}
}
