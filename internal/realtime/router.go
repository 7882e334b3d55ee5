// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/wingedpig/collabhub/internal/admission"
	"github.com/wingedpig/collabhub/internal/principal"
	"github.com/wingedpig/collabhub/internal/session"
	"github.com/wingedpig/collabhub/internal/state"
)

// dispatch implements the Event Router's per-frame contract (spec.md
// §4.5): parse, require a bound session (except join_session), fetch the
// session, enforce the event's permission, apply to C6, fan out.
func (h *Hub) dispatch(c *Connection, event string, raw json.RawMessage) {
	if event == "join_session" {
		h.handleJoinSession(c, raw)
		return
	}
	if event == "leave_session" {
		h.handleLeaveSession(c)
		return
	}

	sessionID := c.SessionID()
	if sessionID == "" {
		c.sendError(EventError, CodeAccessDenied, "not joined to a session")
		return
	}
	s, err := h.registry.Get(sessionID)
	if err != nil {
		c.sendError(EventError, CodeAccessDenied, "session no longer exists")
		return
	}

	handler, ok := eventHandlers[event]
	if !ok {
		logDropped(c.ID, event)
		return
	}
	handler(h, c, s, raw)
}

type eventHandler func(h *Hub, c *Connection, s *session.Session, raw json.RawMessage)

var eventHandlers = map[string]eventHandler{
	"code_change":                 handleCodeChange,
	"realtime_code_change":        handleRealtimeCodeChange,
	"file_operation":              handleFileOperation,
	"create_file":                 handleCreateFile,
	"create_folder":               handleCreateFolder,
	"cursor_update":               handleCursorUpdate,
	"file_activity_update":        handleFileActivityUpdate,
	"chat_message":                handleChatMessage,
	"execute_code":                handleExecuteCode,
	"update_user_permissions":     handleUpdateUserPermissions,
	"project_share_init":         handleProjectShareInit,
	"project_create_init":        handleProjectCreateInit,
	"access_rights_update":        handleAccessRightsUpdate,
	"get_session_users":           handleGetSessionUsers,
	"get_session_info":            handleGetSessionInfo,
	"get_session_files":           handleGetSessionFiles,
	"start_performance_monitoring": handleStartMonitoring,
}

// requirePermission enforces one capability from the joiner's permission
// vector, replying with access_denied and aborting the caller on failure.
func requirePermission(c *Connection, s *session.Session, check func(session.Permissions) bool) bool {
	perms, ok := s.GetPermissions(c.Principal.UserID)
	if !ok || !check(perms) {
		c.sendError(EventError, CodeAccessDenied, "missing required permission")
		return false
	}
	return true
}

func requireCreator(c *Connection, s *session.Session) bool {
	if c.Principal.UserID != s.CreatorID {
		c.sendError(EventError, CodeAccessDenied, "creator only")
		return false
	}
	return true
}

// --- join / leave ---------------------------------------------------------

type joinPayload struct {
	InviteKey string `json:"inviteKey"`
	SessionID string `json:"sessionId"`
}

func (h *Hub) handleJoinSession(c *Connection, raw json.RawMessage) {
	if c.State() == StateBound {
		c.sendError(EventSessionError, CodeAccessDenied, "connection already bound to a session")
		return
	}

	var p joinPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendError(EventSessionError, CodeInvalidPayload, "malformed join_session payload")
		return
	}

	var res admission.JoinResult
	var err error
	switch {
	case p.InviteKey != "":
		res, err = h.admission.JoinByInviteKey(p.InviteKey, c.Principal)
	case p.SessionID != "":
		res, err = h.admission.JoinBySessionID(p.SessionID, c.Principal)
	default:
		c.sendError(EventSessionError, CodeInvalidPayload, "inviteKey or sessionId required")
		return
	}

	if err != nil {
		code := CodeInvalidInvite
		switch err {
		case admission.ErrSessionFull:
			code = CodeSessionFull
		case admission.ErrGuestDenied:
			code = CodeGuestDenied
		}
		c.sendError(EventSessionError, code, err.Error())
		return
	}

	if !c.bind(res.Session.ID) {
		c.sendError(EventSessionError, CodeAccessDenied, "connection already bound to a session")
		return
	}
	h.bindToSession(c, res.Session.ID)

	res.Session.RLock()
	snap := res.Session.ToSnapshot()
	res.Session.RUnlock()

	c.deliver("session_joined", map[string]interface{}{
		"session":     snap,
		"permissions": res.Permissions,
	})
	h.broadcastExcept(res.Session.ID, c, "user_joined_session", map[string]interface{}{
		"userId": c.Principal.UserID,
	})
	h.BroadcastToSession(res.Session.ID, "session_update", snap)

	c.deliver("code_update", map[string]interface{}{"code": state.CodeBuffer(res.Session)})
	c.deliver("session_files_state", state.FilesSnapshot(res.Session))
}

func (h *Hub) handleLeaveSession(c *Connection) {
	sessionID := c.SessionID()
	if sessionID == "" {
		return
	}
	if err := h.admission.Leave(sessionID, c.Principal.UserID); err != nil {
		c.sendError(EventError, CodeAccessDenied, err.Error())
		return
	}
	h.unbindFromSession(c, sessionID)
	c.unbind()

	h.broadcastExcept(sessionID, c, "user_left_session", map[string]interface{}{
		"userId": c.Principal.UserID,
	})
	if s, err := h.registry.Get(sessionID); err == nil {
		s.RLock()
		snap := s.ToSnapshot()
		s.RUnlock()
		h.BroadcastToSession(sessionID, "session_update", snap)
	}
	c.deliver("session_left", map[string]interface{}{"sessionId": sessionID})
}

// --- code / file mutation --------------------------------------------------

func handleCodeChange(h *Hub, c *Connection, s *session.Session, raw json.RawMessage) {
	var code string
	if err := json.Unmarshal(raw, &code); err != nil {
		c.sendError(EventError, CodeInvalidPayload, "code_change expects a string")
		return
	}
	if !requirePermission(c, s, func(p session.Permissions) bool { return p.CanEditFiles }) {
		return
	}
	payload, err := state.SetCodeBuffer(s, code)
	if err != nil {
		c.sendError(EventError, CodeInvalidPayload, err.Error())
		return
	}
	h.broadcastExcept(s.ID, c, "code_update", payload)
}

type realtimeCodeChangePayload struct {
	FilePath string `json:"filePath"`
	Content  string `json:"content"`
}

func handleRealtimeCodeChange(h *Hub, c *Connection, s *session.Session, raw json.RawMessage) {
	var p realtimeCodeChangePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendError(EventError, CodeInvalidPayload, "malformed realtime_code_change payload")
		return
	}
	if !requirePermission(c, s, func(perm session.Permissions) bool { return perm.CanEditFiles }) {
		return
	}
	payload, err := state.UpsertFile(s, c.Principal.UserID, p.FilePath, p.Content)
	if err != nil {
		c.sendError(EventError, CodeInvalidPayload, err.Error())
		return
	}
	h.broadcastExcept(s.ID, c, "realtime_code_update", payload)
}

type fileOperationPayload struct {
	Action string                 `json:"action"`
	Path   string                 `json:"path"`
	Data   map[string]interface{} `json:"data"`
}

func handleFileOperation(h *Hub, c *Connection, s *session.Session, raw json.RawMessage) {
	var p fileOperationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendError(EventError, CodeInvalidPayload, "malformed file_operation payload")
		return
	}
	if !requirePermission(c, s, func(perm session.Permissions) bool { return perm.CanEditFiles }) {
		return
	}
	payload, err := state.FileOperation(s, c.Principal.UserID, state.FileAction(p.Action), p.Path, p.Data)
	if err != nil {
		c.sendError(EventError, CodeInvalidPayload, err.Error())
		return
	}
	h.broadcastExcept(s.ID, c, "file_operation", payload)
}

type createFilePayload struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

func handleCreateFile(h *Hub, c *Connection, s *session.Session, raw json.RawMessage) {
	var p createFilePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendError(EventError, CodeInvalidPayload, "malformed create_file payload")
		return
	}
	if !requirePermission(c, s, func(perm session.Permissions) bool { return perm.CanCreateFiles }) {
		return
	}
	payload, err := state.CreateFile(s, c.Principal.UserID, p.Name, p.Content)
	if err != nil {
		c.sendError(EventError, CodeInvalidPayload, err.Error())
		return
	}
	h.BroadcastToSession(s.ID, "file_created", payload)
}

type createFolderPayload struct {
	Name string `json:"name"`
}

func handleCreateFolder(h *Hub, c *Connection, s *session.Session, raw json.RawMessage) {
	var p createFolderPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendError(EventError, CodeInvalidPayload, "malformed create_folder payload")
		return
	}
	if !requirePermission(c, s, func(perm session.Permissions) bool { return perm.CanCreateFolders }) {
		return
	}
	payload, err := state.CreateFolder(s, c.Principal.UserID, p.Name)
	if err != nil {
		c.sendError(EventError, CodeInvalidPayload, err.Error())
		return
	}
	h.BroadcastToSession(s.ID, "folder_created", payload)
}

// --- presence ---------------------------------------------------------------

func handleCursorUpdate(h *Hub, c *Connection, s *session.Session, raw json.RawMessage) {
	if !requirePermission(c, s, func(perm session.Permissions) bool { return perm.CanViewFiles }) {
		return
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.sendError(EventError, CodeInvalidPayload, "malformed cursor_update payload")
		return
	}
	payload["userId"] = c.Principal.UserID
	h.broadcastExcept(s.ID, c, "cursor_update", payload)
}

func handleFileActivityUpdate(h *Hub, c *Connection, s *session.Session, raw json.RawMessage) {
	if !requirePermission(c, s, func(perm session.Permissions) bool { return perm.CanViewFiles }) {
		return
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.sendError(EventError, CodeInvalidPayload, "malformed file_activity_update payload")
		return
	}
	payload["userId"] = c.Principal.UserID
	h.broadcastExcept(s.ID, c, "file_activity_update", payload)
}

// --- chat --------------------------------------------------------------------

type chatMessagePayload struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

func handleChatMessage(h *Hub, c *Connection, s *session.Session, raw json.RawMessage) {
	var p chatMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendError(EventError, CodeInvalidPayload, "malformed chat_message payload")
		return
	}
	if !requirePermission(c, s, func(perm session.Permissions) bool { return perm.CanChat }) {
		return
	}
	msg := session.ChatMessage{
		ID:      uuid.NewString(),
		UserID:  c.Principal.UserID,
		Content: p.Content,
		Type:    p.Type,
	}
	payload := state.AppendChatMessage(s, msg)
	h.BroadcastToSession(s.ID, "chat_message", payload)
}

// --- execution (C7) -----------------------------------------------------------

type executeCodePayload struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Input    string `json:"input"`
}

func handleExecuteCode(h *Hub, c *Connection, s *session.Session, raw json.RawMessage) {
	var p executeCodePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendError(EventError, CodeInvalidPayload, "malformed execute_code payload")
		return
	}
	if !requirePermission(c, s, func(perm session.Permissions) bool { return perm.CanExecute }) {
		return
	}
	if h.dispatcher == nil {
		c.sendError(EventExecutionError, CodeExecutionFailed, "execution is not configured")
		return
	}

	h.BroadcastToSession(s.ID, "execution_started", map[string]interface{}{
		"userId":   c.Principal.UserID,
		"language": p.Language,
	})

	// Suspends at the HTTP call only (spec.md §5 suspension point (b)); no
	// session lock is held across this network I/O.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		result, err := h.dispatcher.Execute(ctx, p.Language, p.Code, p.Input)
		if err != nil {
			code := CodeExecutionFailed
			if ctx.Err() != nil {
				code = CodeExecutionTimeout
			}
			h.BroadcastToSession(s.ID, "execution_error", errorPayload{Code: code, Message: err.Error()})
			return
		}
		h.BroadcastToSession(s.ID, "execution_result", result)
	}()
}

// --- permissions / access ------------------------------------------------------

type updateUserPermissionsPayload struct {
	UserID      string              `json:"userId"`
	Permissions session.Permissions `json:"permissions"`
}

func handleUpdateUserPermissions(h *Hub, c *Connection, s *session.Session, raw json.RawMessage) {
	if !requireCreator(c, s) {
		return
	}
	var p updateUserPermissionsPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendError(EventError, CodeInvalidPayload, "malformed update_user_permissions payload")
		return
	}
	s.SetPermissions(p.UserID, p.Permissions)
	h.BroadcastToSession(s.ID, "permissions_updated", p)
}

type projectInitPayload struct {
	OwnerID  string                 `json:"ownerId"`
	Template string                 `json:"template"`
	Data     map[string]interface{} `json:"data"`
	Files    map[string]string      `json:"files"`
}

func handleProjectShareInit(h *Hub, c *Connection, s *session.Session, raw json.RawMessage) {
	if !requireCreator(c, s) {
		return
	}
	var p projectInitPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendError(EventError, CodeInvalidPayload, "malformed project_share_init payload")
		return
	}
	state.SetProject(s, session.Project{
		Mode:    session.ProjectModeShare,
		OwnerID: p.OwnerID,
		Data:    p.Data,
	})
	h.BroadcastToSession(s.ID, "project_share_init", p)
}

func handleProjectCreateInit(h *Hub, c *Connection, s *session.Session, raw json.RawMessage) {
	if !requireCreator(c, s) {
		return
	}
	var p projectInitPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendError(EventError, CodeInvalidPayload, "malformed project_create_init payload")
		return
	}
	state.SetProject(s, session.Project{
		Mode:     session.ProjectModeCreate,
		OwnerID:  p.OwnerID,
		Template: p.Template,
		Data:     p.Data,
	})
	if len(p.Files) > 0 {
		state.SeedTemplateFiles(s, p.OwnerID, p.Files)
	}
	h.BroadcastToSession(s.ID, "project_create_init", p)
}

type accessRightsUpdatePayload struct {
	UserID      string `json:"userId"`
	AccessLevel string `json:"accessLevel"`
}

// accessLevels maps a project access level to the derived permission
// overrides (spec.md §4.5.1: "recompute canEditFiles/canExecute").
var accessLevels = map[string]struct {
	CanEdit    bool
	CanExecute bool
}{
	"viewer": {CanEdit: false, CanExecute: false},
	"editor": {CanEdit: true, CanExecute: false},
	"owner":  {CanEdit: true, CanExecute: true},
}

func handleAccessRightsUpdate(h *Hub, c *Connection, s *session.Session, raw json.RawMessage) {
	proj := state.Project(s)
	if proj == nil || c.Principal.UserID != proj.OwnerID {
		c.sendError(EventError, CodeAccessDenied, "project owner only")
		return
	}
	var p accessRightsUpdatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendError(EventError, CodeInvalidPayload, "malformed access_rights_update payload")
		return
	}
	level, ok := accessLevels[p.AccessLevel]
	if !ok {
		c.sendError(EventError, CodeInvalidPayload, "unknown accessLevel")
		return
	}
	perms := s.EnsurePermissions(p.UserID)
	perms.CanEditFiles = level.CanEdit
	perms.CanExecute = level.CanExecute
	s.SetPermissions(p.UserID, perms)
	h.BroadcastToSession(s.ID, "access_rights_update", p)
}

// --- sender-only queries --------------------------------------------------------

// sessionUserInfo is one entry of the get_session_users response
// (SPEC_FULL.md §12: {users:[{userId,displayName,role,permissions}]}).
type sessionUserInfo struct {
	UserID      string              `json:"userId"`
	DisplayName string              `json:"displayName"`
	Role        principal.Role      `json:"role"`
	Permissions session.Permissions `json:"permissions"`
}

func handleGetSessionUsers(h *Hub, c *Connection, s *session.Session, _ json.RawMessage) {
	peers := h.SessionPeers(s.ID)
	users := make([]sessionUserInfo, 0, len(peers))
	for _, peer := range peers {
		perms, _ := s.GetPermissions(peer.Principal.UserID)
		users = append(users, sessionUserInfo{
			UserID:      peer.Principal.UserID,
			DisplayName: peer.Principal.DisplayName,
			Role:        peer.Principal.Role,
			Permissions: perms,
		})
	}
	c.deliver("get_session_users", map[string]interface{}{"users": users})
}

// sessionInfoResponse is the get_session_info response (SPEC_FULL.md §12:
// {id,name,createdAt,settings,memberCount}).
type sessionInfoResponse struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	CreatedAt   time.Time        `json:"createdAt"`
	Settings    session.Settings `json:"settings"`
	MemberCount int              `json:"memberCount"`
}

func handleGetSessionInfo(h *Hub, c *Connection, s *session.Session, _ json.RawMessage) {
	s.RLock()
	snap := s.ToSnapshot()
	s.RUnlock()
	c.deliver("get_session_info", sessionInfoResponse{
		ID:          snap.ID,
		Name:        snap.Name,
		CreatedAt:   snap.CreatedAt,
		Settings:    snap.Settings,
		MemberCount: snap.UserCount,
	})
}

func handleGetSessionFiles(h *Hub, c *Connection, s *session.Session, _ json.RawMessage) {
	c.deliver("get_session_files", state.FilesSnapshot(s))
}

// --- metrics subscription (C8) ---------------------------------------------------

func handleStartMonitoring(h *Hub, c *Connection, s *session.Session, _ json.RawMessage) {
	if h.ticker != nil {
		h.ticker.Subscribe(s.ID)
	}
	c.deliver("monitoring_started", map[string]interface{}{"sessionId": s.ID})
}
