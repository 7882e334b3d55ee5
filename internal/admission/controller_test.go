// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package admission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/collabhub/internal/principal"
	"github.com/wingedpig/collabhub/internal/session"
)

func newController() (*Controller, *session.Registry) {
	r := session.NewRegistry()
	return NewController(r, time.Hour, 0, false), r
}

func boolPtr(b bool) *bool { return &b }

func userPrincipal(id string) principal.Principal {
	return principal.Principal{UserID: id, Role: principal.RoleUser, Origin: principal.OriginVerified}
}

func guestPrincipal(id string) principal.Principal {
	return principal.Principal{UserID: id, Role: principal.RoleGuest, Origin: principal.OriginGuest}
}

func TestController_CreateSession_AutoJoinsCreator(t *testing.T) {
	c, _ := newController()
	creator := userPrincipal("alice")

	s, err := c.CreateSession(creator, CreateOptions{Name: "demo"})
	require.NoError(t, err)

	assert.True(t, s.IsMember("alice"))
	perms, ok := s.GetPermissions("alice")
	require.True(t, ok)
	assert.Equal(t, session.FullPermissions(), perms)
	assert.Len(t, s.InviteKey, 12)
}

func TestController_JoinByInviteKey_UnknownKey(t *testing.T) {
	c, _ := newController()
	_, err := c.JoinByInviteKey("NOSUCHKEY123", userPrincipal("bob"))
	assert.ErrorIs(t, err, ErrInvalidInvite)
}

func TestController_JoinByInviteKey_Success(t *testing.T) {
	c, _ := newController()
	s, err := c.CreateSession(userPrincipal("alice"), CreateOptions{Name: "demo"})
	require.NoError(t, err)

	res, err := c.JoinByInviteKey(s.InviteKey, userPrincipal("bob"))
	require.NoError(t, err)
	assert.False(t, res.AlreadyMember)
	assert.True(t, s.IsMember("bob"))
	assert.Equal(t, 2, s.MemberCount())
}

func TestController_JoinByInviteKey_Idempotent(t *testing.T) {
	c, _ := newController()
	s, _ := c.CreateSession(userPrincipal("alice"), CreateOptions{Name: "demo"})

	_, err := c.JoinByInviteKey(s.InviteKey, userPrincipal("bob"))
	require.NoError(t, err)

	res, err := c.JoinByInviteKey(s.InviteKey, userPrincipal("bob"))
	require.NoError(t, err)
	assert.True(t, res.AlreadyMember)
	assert.Equal(t, 2, s.MemberCount())
}

func TestController_JoinByInviteKey_SessionFull(t *testing.T) {
	c, _ := newController()
	s, _ := c.CreateSession(userPrincipal("alice"), CreateOptions{Name: "demo", MaxUsers: 1})

	_, err := c.JoinByInviteKey(s.InviteKey, userPrincipal("bob"))
	assert.ErrorIs(t, err, ErrSessionFull)
}

func TestController_JoinByInviteKey_GuestDenied(t *testing.T) {
	c, _ := newController()
	s, _ := c.CreateSession(userPrincipal("alice"), CreateOptions{Name: "demo", AllowGuests: boolPtr(false)})

	_, err := c.JoinByInviteKey(s.InviteKey, guestPrincipal("guest-1"))
	assert.ErrorIs(t, err, ErrGuestDenied)
	assert.Equal(t, 1, s.MemberCount()) // no mutation on rejection
}

func TestController_JoinByInviteKey_GuestAllowed(t *testing.T) {
	c, _ := newController()
	s, _ := c.CreateSession(userPrincipal("alice"), CreateOptions{Name: "demo", AllowGuests: boolPtr(true)})

	res, err := c.JoinByInviteKey(s.InviteKey, guestPrincipal("guest-1"))
	require.NoError(t, err)
	assert.True(t, s.IsMember("guest-1"))
	assert.False(t, res.Permissions.CanManagePermissions)
}

// TestController_RotateInviteKey_InvalidatesOld exercises (R1).
func TestController_RotateInviteKey_InvalidatesOld(t *testing.T) {
	c, _ := newController()
	s, _ := c.CreateSession(userPrincipal("alice"), CreateOptions{Name: "demo"})
	oldKey := s.InviteKey

	newKey, err := c.RotateInviteKey(s.ID, "alice")
	require.NoError(t, err)

	_, err = c.JoinByInviteKey(oldKey, userPrincipal("carol"))
	assert.ErrorIs(t, err, ErrInvalidInvite)

	_, err = c.JoinByInviteKey(newKey, userPrincipal("carol"))
	assert.NoError(t, err)
}

func TestController_RotateInviteKey_NotCreator(t *testing.T) {
	c, _ := newController()
	s, _ := c.CreateSession(userPrincipal("alice"), CreateOptions{Name: "demo"})

	_, err := c.RotateInviteKey(s.ID, "bob")
	assert.ErrorIs(t, err, ErrAccessDenied)
}

type recordingNotifier struct {
	sessionID string
	eventType string
	payload   interface{}
}

func (r *recordingNotifier) BroadcastToSession(sessionID, eventType string, payload interface{}) {
	r.sessionID = sessionID
	r.eventType = eventType
	r.payload = payload
}

type recordingTicker struct {
	unsubscribed []string
}

func (t *recordingTicker) Unsubscribe(sessionID string) {
	t.unsubscribed = append(t.unsubscribed, sessionID)
}

func TestController_CreateSession_UsesConfiguredDefaults(t *testing.T) {
	c := NewController(session.NewRegistry(), time.Hour, 25, true)

	s, err := c.CreateSession(userPrincipal("alice"), CreateOptions{Name: "demo"})
	require.NoError(t, err)
	assert.Equal(t, 25, s.Settings.MaxUsers)
	assert.True(t, s.Settings.AllowGuests)
}

func TestController_CreateSession_RequestOverridesConfiguredDefaults(t *testing.T) {
	c := NewController(session.NewRegistry(), time.Hour, 25, true)

	s, err := c.CreateSession(userPrincipal("alice"), CreateOptions{Name: "demo", MaxUsers: 3, AllowGuests: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Settings.MaxUsers)
	assert.False(t, s.Settings.AllowGuests)
}

func TestController_DeleteSession_UnsubscribesTicker(t *testing.T) {
	c, _ := newController()
	ticker := &recordingTicker{}
	c.SetTicker(ticker)

	s, _ := c.CreateSession(userPrincipal("alice"), CreateOptions{Name: "demo"})
	require.NoError(t, c.DeleteSession(s.ID, "alice"))

	assert.Equal(t, []string{s.ID}, ticker.unsubscribed)
}

func TestController_Leave_SweepUnsubscribesTicker(t *testing.T) {
	r := session.NewRegistry()
	c := NewController(r, 10*time.Millisecond, 0, false)
	ticker := &recordingTicker{}
	c.SetTicker(ticker)

	s, err := c.CreateSession(userPrincipal("alice"), CreateOptions{Name: "demo"})
	require.NoError(t, err)

	require.NoError(t, c.Leave(s.ID, "alice"))

	assert.Eventually(t, func() bool {
		return len(ticker.unsubscribed) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, s.ID, ticker.unsubscribed[0])
}

func TestController_DeleteSession_BroadcastsAndPurges(t *testing.T) {
	c, r := newController()
	n := &recordingNotifier{}
	c.SetNotifier(n)

	s, _ := c.CreateSession(userPrincipal("alice"), CreateOptions{Name: "demo"})

	require.NoError(t, c.DeleteSession(s.ID, "alice"))
	assert.Equal(t, s.ID, n.sessionID)
	assert.Equal(t, EventSessionDeleted, n.eventType)

	_, err := r.Get(s.ID)
	assert.Error(t, err)
}

func TestController_DeleteSession_NotCreator(t *testing.T) {
	c, _ := newController()
	s, _ := c.CreateSession(userPrincipal("alice"), CreateOptions{Name: "demo"})

	err := c.DeleteSession(s.ID, "bob")
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestController_Leave_SchedulesSweepAndCancelOnRejoin(t *testing.T) {
	c := NewController(session.NewRegistry(), 20*time.Millisecond, 0, false)
	s, err := c.CreateSession(userPrincipal("alice"), CreateOptions{Name: "demo"})
	require.NoError(t, err)

	require.NoError(t, c.Leave(s.ID, "alice"))
	assert.Equal(t, 0, s.MemberCount())

	// Rejoin before the sweep fires cancels it.
	_, err = c.JoinBySessionID(s.ID, userPrincipal("alice"))
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)
	assert.True(t, s.IsMember("alice")) // rejoined member is still present
}

func TestController_Leave_SweepPurgesEmptySession(t *testing.T) {
	r := session.NewRegistry()
	c := NewController(r, 10*time.Millisecond, 0, false)
	s, err := c.CreateSession(userPrincipal("alice"), CreateOptions{Name: "demo"})
	require.NoError(t, err)

	require.NoError(t, c.Leave(s.ID, "alice"))

	assert.Eventually(t, func() bool {
		_, err := r.Get(s.ID)
		return err != nil
	}, time.Second, 5*time.Millisecond)
}
