// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"crypto/rand"
	"errors"
	"sync"
)

// ErrNotFound is returned when a session ID or invite key has no live
// session bound to it.
var ErrNotFound = errors.New("session not found")

// ErrInviteKeyTaken is returned when inserting a session whose invite key
// collides with a live session's key (callers should regenerate and retry).
var ErrInviteKeyTaken = errors.New("invite key already registered")

// inviteKeyAlphabet is the fixed 36-symbol alphabet for invite keys:
// uppercase letters and digits, per spec.md §8.
const inviteKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// inviteKeyLength is the fixed invite-key length, per spec.md §8.
const inviteKeyLength = 12

// Registry is the single source of truth for invariants I1–I3: it holds
// the top-level indexes (sessionsById, sessionIdByInviteKey) under one
// registry-wide lock. Per spec.md §5, this lock is never held while a
// session's own lock is held; the fixed lock order is registry → session.
type Registry struct {
	mu              sync.RWMutex
	sessionsByID    map[string]*Session
	sessionIDByKey  map[string]string // inviteKey -> sessionID
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessionsByID:   make(map[string]*Session),
		sessionIDByKey: make(map[string]string),
	}
}

// Get returns the session with the given ID.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessionsByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// GetByInviteKey resolves an invite key to its live session (I1).
func (r *Registry) GetByInviteKey(key string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.sessionIDByKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	s, ok := r.sessionsByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Insert registers a new session under both indexes atomically.
func (r *Registry) Insert(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessionIDByKey[s.InviteKey]; exists {
		return ErrInviteKeyTaken
	}
	r.sessionsByID[s.ID] = s
	r.sessionIDByKey[s.InviteKey] = s.ID
	return nil
}

// Remove purges a session from both indexes. Idempotent.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessionsByID[id]
	if !ok {
		return
	}
	delete(r.sessionsByID, id)
	delete(r.sessionIDByKey, s.InviteKey)
}

// RotateInviteKey atomically unregisters a session's current invite key
// and registers a freshly generated one (I1), returning the new key.
// Existing members are unaffected (their connections are bound by
// sessionID, not by invite key).
func (r *Registry) RotateInviteKey(id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessionsByID[id]
	if !ok {
		return "", ErrNotFound
	}

	newKey, err := r.generateUnlockedInviteKey()
	if err != nil {
		return "", err
	}

	delete(r.sessionIDByKey, s.InviteKey)
	s.Lock()
	s.InviteKey = newKey
	s.Unlock()
	r.sessionIDByKey[newKey] = id

	return newKey, nil
}

// GenerateInviteKey produces a fresh 12-character [A-Z0-9] invite key that
// does not collide with any currently-live key.
func (r *Registry) GenerateInviteKey() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generateUnlockedInviteKey()
}

// generateUnlockedInviteKey assumes r.mu is already held (read or write).
func (r *Registry) generateUnlockedInviteKey() (string, error) {
	for attempt := 0; attempt < 100; attempt++ {
		key, err := randomInviteKey()
		if err != nil {
			return "", err
		}
		if _, taken := r.sessionIDByKey[key]; !taken {
			return key, nil
		}
	}
	return "", errors.New("could not generate a unique invite key")
}

func randomInviteKey() (string, error) {
	buf := make([]byte, inviteKeyLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, inviteKeyLength)
	for i, b := range buf {
		out[i] = inviteKeyAlphabet[int(b)%len(inviteKeyAlphabet)]
	}
	return string(out), nil
}

// AddMember adds userID to a session's member set and returns whether it
// was newly added (false if already present — join is idempotent).
// Enforces I3 (maxUsers) for new members.
func (s *Session) AddMember(userID string) (added bool, full bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Members[userID] {
		return false, false
	}
	if len(s.Members) >= s.Settings.MaxUsers {
		return false, true
	}
	s.Members[userID] = true
	return true, false
}

// RemoveMember removes userID from the member set and reports whether the
// session is now empty (a signal to schedule GC).
func (s *Session) RemoveMember(userID string) (nowEmpty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Members, userID)
	return len(s.Members) == 0
}

// IsMember reports whether userID is in the session's member set. Joins
// (realtime or REST) and the creator's auto-join add to the set; Leave
// removes from it.
func (s *Session) IsMember(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Members[userID]
}

// MemberCount returns the current member count.
func (s *Session) MemberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Members)
}

// MemberIDs returns a snapshot copy of the current member set.
func (s *Session) MemberIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.Members))
	for id := range s.Members {
		ids = append(ids, id)
	}
	return ids
}

// SetPermissions installs (or replaces) a user's permission vector.
func (s *Session) SetPermissions(userID string, perms Permissions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Permissions[userID] = perms
}

// GetPermissions returns a user's permission vector and whether one has
// been materialized yet.
func (s *Session) GetPermissions(userID string) (Permissions, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.Permissions[userID]
	return p, ok
}

// EnsurePermissions materializes a default permission vector for userID
// on first join, copying session defaults, or FullPermissions() for the
// creator. It never overwrites an existing vector (permissions persist
// across disconnect/rejoin for the session's life).
func (s *Session) EnsurePermissions(userID string) Permissions {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.Permissions[userID]; ok {
		return p
	}
	p := s.Settings.DefaultPermissions
	if userID == s.CreatorID {
		p = FullPermissions()
	}
	s.Permissions[userID] = p
	return p
}

// Sessions returns a snapshot slice of all currently registered sessions.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessionsByID))
	for _, s := range r.sessionsByID {
		out = append(out, s)
	}
	return out
}
