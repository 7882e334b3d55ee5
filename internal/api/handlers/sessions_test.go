// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/collabhub/internal/admission"
	"github.com/wingedpig/collabhub/internal/principal"
	"github.com/wingedpig/collabhub/internal/session"
)

func newTestSessionHandler() (*SessionHandler, *session.Registry, *admission.Controller) {
	reg := session.NewRegistry()
	adm := admission.NewController(reg, time.Hour, 0, false)
	return NewSessionHandler(reg, adm, nil), reg, adm
}

func userPrincipalForTest(userID string) principal.Principal {
	return principal.Principal{UserID: userID, Role: principal.RoleUser, Origin: principal.OriginVerified}
}

func withVars(r *http.Request, vars map[string]string) *http.Request {
	return mux.SetURLVars(r, vars)
}

func TestSessionHandler_CreateThenGet(t *testing.T) {
	h, _, _ := newTestSessionHandler()

	body, _ := json.Marshal(createSessionRequest{Name: "demo"})
	req := httptest.NewRequest(http.MethodPost, "/sessions/create", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Create(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Session   session.Snapshot `json:"session"`
		InviteKey string           `json:"inviteKey"`
	}
	require.NoError(t, json.Unmarshal(extractData(t, rec.Body.Bytes()), &resp))
	assert.Equal(t, "demo", resp.Session.Name)
	assert.Len(t, resp.InviteKey, 12)

	getReq := withVars(httptest.NewRequest(http.MethodGet, "/sessions/"+resp.Session.ID, nil), map[string]string{"id": resp.Session.ID})
	getRec := httptest.NewRecorder()
	h.Get(getRec, getReq)
	assert.Equal(t, http.StatusOK, getRec.Code)
}

func TestSessionHandler_JoinByInviteKey(t *testing.T) {
	h, _, adm := newTestSessionHandler()

	// The request carries no bearer token, so the handler joins as a guest;
	// the session must admit guests for the join to succeed.
	allowGuests := true
	s, err := adm.CreateSession(userPrincipalForTest("creator"), admission.CreateOptions{Name: "room", AllowGuests: &allowGuests})
	require.NoError(t, err)

	body, _ := json.Marshal(joinSessionRequest{InviteKey: s.InviteKey})
	req := httptest.NewRequest(http.MethodPost, "/sessions/join", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Join(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionHandler_JoinUnknownInviteKey(t *testing.T) {
	h, _, _ := newTestSessionHandler()

	body, _ := json.Marshal(joinSessionRequest{InviteKey: "NOSUCHKEY123"})
	req := httptest.NewRequest(http.MethodPost, "/sessions/join", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Join(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionHandler_DeleteRequiresCreator(t *testing.T) {
	h, _, adm := newTestSessionHandler()

	s, err := adm.CreateSession(userPrincipalForTest("creator"), admission.CreateOptions{Name: "room"})
	require.NoError(t, err)

	req := withVars(httptest.NewRequest(http.MethodDelete, "/sessions/"+s.ID, nil), map[string]string{"id": s.ID})
	rec := httptest.NewRecorder()

	h.Delete(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func extractData(t *testing.T, body []byte) []byte {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &env))
	return env.Data
}
