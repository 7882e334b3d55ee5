// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/wingedpig/collabhub/internal/admission"
	"github.com/wingedpig/collabhub/internal/auth"
	"github.com/wingedpig/collabhub/internal/principal"
	"github.com/wingedpig/collabhub/internal/session"
)

// SessionHandler serves the REST surface consumed by core (spec.md §6):
// session CRUD that goes through the same C1 authentication / C3
// admission path as the realtime transport, so it can never bypass
// invariants I1-I6.
type SessionHandler struct {
	registry  *session.Registry
	admission *admission.Controller
	verifier  *auth.Verifier
}

// NewSessionHandler builds a SessionHandler over the shared registry,
// admission controller, and token verifier.
func NewSessionHandler(registry *session.Registry, adm *admission.Controller, verifier *auth.Verifier) *SessionHandler {
	return &SessionHandler{registry: registry, admission: adm, verifier: verifier}
}

// authenticate extracts and verifies the bearer token, returning a
// synthetic guest principal (never error) when the header is absent or
// invalid, mirroring the realtime handshake's "admit as guest" policy
// (spec.md §4.4).
func (h *SessionHandler) authenticate(r *http.Request) principal.Principal {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token != "" && h.verifier != nil {
		if p, err := h.verifier.Verify(token); err == nil {
			return p
		}
	}
	return principal.Principal{
		UserID: "guest-rest",
		Role:   principal.RoleGuest,
		Origin: principal.OriginGuest,
	}
}

type createSessionRequest struct {
	Name     string `json:"name"`
	MaxUsers int    `json:"maxUsers"`

	// AllowGuests is a pointer so an omitted field falls back to the
	// operator-configured default instead of forcing false.
	AllowGuests *bool `json:"allowGuests"`
}

// Create handles POST /sessions/create.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid request body")
		return
	}

	p := h.authenticate(r)
	s, err := h.admission.CreateSession(p, admission.CreateOptions{
		Name:        req.Name,
		MaxUsers:    req.MaxUsers,
		AllowGuests: req.AllowGuests,
	})
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}

	s.RLock()
	snap := s.ToSnapshot()
	inviteKey := s.InviteKey
	s.RUnlock()

	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"session":   snap,
		"inviteKey": inviteKey,
	})
}

type joinSessionRequest struct {
	InviteKey string `json:"inviteKey"`
	SessionID string `json:"sessionId"`
}

// Join handles POST /sessions/join.
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid request body")
		return
	}

	p := h.authenticate(r)

	var (
		result admission.JoinResult
		err    error
	)
	switch {
	case req.InviteKey != "":
		result, err = h.admission.JoinByInviteKey(req.InviteKey, p)
	case req.SessionID != "":
		result, err = h.admission.JoinBySessionID(req.SessionID, p)
	default:
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "inviteKey or sessionId is required")
		return
	}

	if err != nil {
		writeAdmissionError(w, err)
		return
	}

	result.Session.RLock()
	snap := result.Session.ToSnapshot()
	result.Session.RUnlock()

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"session":     snap,
		"permissions": result.Permissions,
	})
}

// List handles GET /sessions.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions := h.registry.Sessions()
	snaps := make([]session.Snapshot, 0, len(sessions))
	for _, s := range sessions {
		s.RLock()
		snaps = append(snaps, s.ToSnapshot())
		s.RUnlock()
	}
	WriteJSON(w, http.StatusOK, snaps)
}

// Get handles GET /sessions/:id.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s, err := h.registry.Get(id)
	if err != nil {
		WriteError(w, http.StatusNotFound, ErrNotFound, "session not found")
		return
	}
	s.RLock()
	snap := s.ToSnapshot()
	s.RUnlock()
	WriteJSON(w, http.StatusOK, snap)
}

// RegenerateKey handles POST /sessions/:id/regenerate-key.
func (h *SessionHandler) RegenerateKey(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p := h.authenticate(r)

	key, err := h.admission.RotateInviteKey(id, p.UserID)
	if err != nil {
		writeAdmissionError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"inviteKey": key})
}

// Delete handles DELETE /sessions/:id.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p := h.authenticate(r)

	if err := h.admission.DeleteSession(id, p.UserID); err != nil {
		writeAdmissionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeAdmissionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, admission.ErrInvalidInvite):
		WriteError(w, http.StatusNotFound, ErrNotFound, "invalid invite key")
	case errors.Is(err, admission.ErrSessionFull):
		WriteError(w, http.StatusConflict, ErrConflict, "session is full")
	case errors.Is(err, admission.ErrGuestDenied):
		WriteError(w, http.StatusForbidden, ErrForbidden, "guests are not allowed in this session")
	case errors.Is(err, admission.ErrAccessDenied):
		WriteError(w, http.StatusForbidden, ErrForbidden, "access denied")
	default:
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
	}
}
