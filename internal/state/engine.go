// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package state implements the Session State Engine (C6): it owns the
// mutable fields of a session (codeBuffer, files, chatLog, project) and
// applies validated mutations under the session's exclusive lock. The
// engine is oblivious to transport — every operation returns the event
// payload the caller (the Event Router, C5) should fan out; it never
// emits anything itself.
package state

import (
	"errors"
	"strings"
	"time"

	"github.com/wingedpig/collabhub/internal/session"
)

// Validation limits, restated here because the engine re-checks them
// defensively (spec.md §4.6): the router is the only caller today, but the
// engine must not trust that invariant forever.
const (
	MaxPathLength = 500
	MaxCodeBytes  = 1_000_000
)

var (
	// ErrInvalidPath is returned for a path over MaxPathLength or
	// containing a ".." segment (rejected regardless of whether it would
	// resolve inside the session).
	ErrInvalidPath = errors.New("invalid_payload: path")
	// ErrPayloadTooLarge is returned when a code payload exceeds
	// MaxCodeBytes.
	ErrPayloadTooLarge = errors.New("invalid_payload: too large")
	// ErrFileNotFound is returned by file operations targeting a path
	// that doesn't exist.
	ErrFileNotFound = errors.New("invalid_payload: file not found")
	// ErrUnknownFileAction is returned for a file_operation whose action
	// is not one of create/delete/rename/save.
	ErrUnknownFileAction = errors.New("invalid_payload: unknown file action")
)

// ValidatePath enforces the path rules shared by every file-touching
// operation: length ≤ 500 and no ".." segment.
func ValidatePath(path string) error {
	if len(path) == 0 || len(path) > MaxPathLength {
		return ErrInvalidPath
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return ErrInvalidPath
		}
	}
	return nil
}

// ValidateCodeSize enforces the 1,000,000-byte ceiling on code payloads.
func ValidateCodeSize(content string) error {
	if len(content) > MaxCodeBytes {
		return ErrPayloadTooLarge
	}
	return nil
}

// SetCodeBuffer overwrites the legacy single-document channel
// (code_change). Returns the code_update payload to fan out.
func SetCodeBuffer(s *session.Session, content string) (map[string]interface{}, error) {
	if err := ValidateCodeSize(content); err != nil {
		return nil, err
	}
	s.Lock()
	s.CodeBuffer = content
	s.Unlock()
	return map[string]interface{}{"code": content}, nil
}

// UpsertFile creates or overwrites a file entry (realtime_code_change).
// Returns the realtime_code_update payload to fan out.
func UpsertFile(s *session.Session, userID, filePath, content string) (map[string]interface{}, error) {
	if err := ValidatePath(filePath); err != nil {
		return nil, err
	}
	if err := ValidateCodeSize(content); err != nil {
		return nil, err
	}

	s.Lock()
	entry, exists := s.Files[filePath]
	if !exists {
		entry = &session.FileEntry{
			Type:      session.FileTypeFile,
			CreatedBy: userID,
		}
		s.Files[filePath] = entry
	}
	entry.Content = content
	entry.LastEditedBy = userID
	entry.LastModified = time.Now()
	s.Unlock()

	return map[string]interface{}{
		"filePath": filePath,
		"content":  content,
		"userId":   userID,
	}, nil
}

// CreateFile inserts a new file under sessionID/name with the given
// content (create_file). Returns the file_created payload.
func CreateFile(s *session.Session, userID, name, content string) (map[string]interface{}, error) {
	path := s.ID + "/" + name
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	if err := ValidateCodeSize(content); err != nil {
		return nil, err
	}

	now := time.Now()
	s.Lock()
	s.Files[path] = &session.FileEntry{
		Type:         session.FileTypeFile,
		Content:      content,
		CreatedBy:    userID,
		LastEditedBy: userID,
		LastModified: now,
	}
	s.Unlock()

	return map[string]interface{}{
		"path":      path,
		"content":   content,
		"createdBy": userID,
	}, nil
}

// CreateFolder inserts a new directory entry under sessionID/name/
// (create_folder). Returns the folder_created payload.
func CreateFolder(s *session.Session, userID, name string) (map[string]interface{}, error) {
	path := s.ID + "/" + strings.TrimSuffix(name, "/") + "/"
	if err := ValidatePath(path); err != nil {
		return nil, err
	}

	s.Lock()
	s.Files[path] = &session.FileEntry{
		Type:         session.FileTypeDirectory,
		CreatedBy:    userID,
		LastEditedBy: userID,
		LastModified: time.Now(),
	}
	s.Unlock()

	return map[string]interface{}{
		"path":      path,
		"createdBy": userID,
	}, nil
}

// FileAction enumerates the file_operation actions (spec.md §4.5.1).
type FileAction string

const (
	FileActionCreate FileAction = "create"
	FileActionDelete FileAction = "delete"
	FileActionRename FileAction = "rename"
	FileActionSave   FileAction = "save"
)

// FileOperation applies one file_operation action. data carries the
// action-specific fields: "content" for create/save, "newPath" for
// rename. Returns the echoed file_operation payload.
func FileOperation(s *session.Session, userID string, action FileAction, path string, data map[string]interface{}) (map[string]interface{}, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}

	s.Lock()
	defer s.Unlock()

	switch action {
	case FileActionCreate, FileActionSave:
		content, _ := data["content"].(string)
		if len(content) > MaxCodeBytes {
			return nil, ErrPayloadTooLarge
		}
		entry, exists := s.Files[path]
		if !exists {
			entry = &session.FileEntry{Type: session.FileTypeFile, CreatedBy: userID}
			s.Files[path] = entry
		}
		entry.Content = content
		entry.LastEditedBy = userID
		entry.LastModified = time.Now()

	case FileActionDelete:
		if _, exists := s.Files[path]; !exists {
			return nil, ErrFileNotFound
		}
		delete(s.Files, path)

	case FileActionRename:
		newPath, _ := data["newPath"].(string)
		if err := ValidatePath(newPath); err != nil {
			return nil, err
		}
		entry, exists := s.Files[path]
		if !exists {
			return nil, ErrFileNotFound
		}
		entry.LastEditedBy = userID
		entry.LastModified = time.Now()
		delete(s.Files, path)
		s.Files[newPath] = entry

	default:
		return nil, ErrUnknownFileAction
	}

	return map[string]interface{}{
		"action": string(action),
		"path":   path,
		"data":   data,
		"userId": userID,
	}, nil
}

// AppendChatMessage appends a message to the chat log (chat_message).
// Returns the chat_message payload to fan out.
func AppendChatMessage(s *session.Session, msg session.ChatMessage) map[string]interface{} {
	msg.Timestamp = time.Now()
	s.Lock()
	s.ChatLog = append(s.ChatLog, msg)
	s.Unlock()

	return map[string]interface{}{
		"id":        msg.ID,
		"userId":    msg.UserID,
		"content":   msg.Content,
		"type":      msg.Type,
		"timestamp": msg.Timestamp,
	}
}

// FilesSnapshot returns a copy of the session's current file map, keyed by
// path (used for session_files_state and get_session_files).
func FilesSnapshot(s *session.Session) map[string]session.FileEntry {
	s.RLock()
	defer s.RUnlock()
	out := make(map[string]session.FileEntry, len(s.Files))
	for path, entry := range s.Files {
		out[path] = *entry
	}
	return out
}

// CodeBuffer returns the session's current legacy code buffer.
func CodeBuffer(s *session.Session) string {
	s.RLock()
	defer s.RUnlock()
	return s.CodeBuffer
}

// ChatLog returns a copy of the session's chat log.
func ChatLog(s *session.Session) []session.ChatMessage {
	s.RLock()
	defer s.RUnlock()
	out := make([]session.ChatMessage, len(s.ChatLog))
	copy(out, s.ChatLog)
	return out
}

// SetProject installs the session's project binding (project_share_init /
// project_create_init). If mode is create and a template is given, the
// caller is responsible for calling SeedTemplateFiles afterward.
func SetProject(s *session.Session, p session.Project) {
	s.Lock()
	s.Project = &p
	s.Unlock()
}

// Project returns a copy of the session's project binding, or nil.
func Project(s *session.Session) *session.Project {
	s.RLock()
	defer s.RUnlock()
	if s.Project == nil {
		return nil
	}
	cp := *s.Project
	return &cp
}

// SeedTemplateFiles preloads a set of template files into a freshly
// created project (project_create_init with mode=create).
func SeedTemplateFiles(s *session.Session, userID string, files map[string]string) {
	now := time.Now()
	s.Lock()
	defer s.Unlock()
	for path, content := range files {
		s.Files[path] = &session.FileEntry{
			Type:         session.FileTypeFile,
			Content:      content,
			CreatedBy:    userID,
			LastEditedBy: userID,
			LastModified: now,
		}
	}
}
