// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/collabhub/internal/session"
)

func newTestSession() *session.Session {
	return session.NewSession("sess-1", "demo", "alice", "INVITEKEY123", session.DefaultSettings())
}

func TestValidatePath(t *testing.T) {
	assert.NoError(t, ValidatePath("src/main.go"))
	assert.ErrorIs(t, ValidatePath(""), ErrInvalidPath)
	assert.ErrorIs(t, ValidatePath("../etc/passwd"), ErrInvalidPath)
	assert.ErrorIs(t, ValidatePath("a/../b"), ErrInvalidPath)
	assert.ErrorIs(t, ValidatePath(strings.Repeat("a", 501)), ErrInvalidPath)
}

func TestValidateCodeSize(t *testing.T) {
	assert.NoError(t, ValidateCodeSize(strings.Repeat("x", MaxCodeBytes)))
	assert.ErrorIs(t, ValidateCodeSize(strings.Repeat("x", MaxCodeBytes+1)), ErrPayloadTooLarge)
}

func TestSetCodeBuffer(t *testing.T) {
	s := newTestSession()
	payload, err := SetCodeBuffer(s, "print('hi')")
	require.NoError(t, err)
	assert.Equal(t, "print('hi')", payload["code"])
	assert.Equal(t, "print('hi')", CodeBuffer(s))
}

func TestSetCodeBuffer_RejectsOversized(t *testing.T) {
	s := newTestSession()
	_, err := SetCodeBuffer(s, strings.Repeat("x", MaxCodeBytes+1))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestUpsertFile_CreatesThenOverwrites(t *testing.T) {
	s := newTestSession()
	_, err := UpsertFile(s, "alice", "src/main.go", "v1")
	require.NoError(t, err)

	files := FilesSnapshot(s)
	require.Contains(t, files, "src/main.go")
	assert.Equal(t, "v1", files["src/main.go"].Content)
	assert.Equal(t, "alice", files["src/main.go"].CreatedBy)

	_, err = UpsertFile(s, "bob", "src/main.go", "v2")
	require.NoError(t, err)
	files = FilesSnapshot(s)
	assert.Equal(t, "v2", files["src/main.go"].Content)
	assert.Equal(t, "alice", files["src/main.go"].CreatedBy) // creator preserved
	assert.Equal(t, "bob", files["src/main.go"].LastEditedBy)
}

func TestUpsertFile_RejectsBadPath(t *testing.T) {
	s := newTestSession()
	_, err := UpsertFile(s, "alice", "../escape", "x")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestCreateFile_NamespacesUnderSessionID(t *testing.T) {
	s := newTestSession()
	payload, err := CreateFile(s, "alice", "main.go", "package main")
	require.NoError(t, err)
	assert.Equal(t, "sess-1/main.go", payload["path"])

	files := FilesSnapshot(s)
	require.Contains(t, files, "sess-1/main.go")
	assert.Equal(t, session.FileTypeFile, files["sess-1/main.go"].Type)
}

func TestCreateFolder_TrailingSlash(t *testing.T) {
	s := newTestSession()
	_, err := CreateFolder(s, "alice", "pkg")
	require.NoError(t, err)

	files := FilesSnapshot(s)
	require.Contains(t, files, "sess-1/pkg/")
	assert.Equal(t, session.FileTypeDirectory, files["sess-1/pkg/"].Type)
}

func TestFileOperation_CreateSaveDeleteRename(t *testing.T) {
	s := newTestSession()

	_, err := FileOperation(s, "alice", FileActionCreate, "a.txt", map[string]interface{}{"content": "1"})
	require.NoError(t, err)
	assert.Equal(t, "1", FilesSnapshot(s)["a.txt"].Content)

	_, err = FileOperation(s, "alice", FileActionSave, "a.txt", map[string]interface{}{"content": "2"})
	require.NoError(t, err)
	assert.Equal(t, "2", FilesSnapshot(s)["a.txt"].Content)

	_, err = FileOperation(s, "alice", FileActionRename, "a.txt", map[string]interface{}{"newPath": "b.txt"})
	require.NoError(t, err)
	files := FilesSnapshot(s)
	assert.NotContains(t, files, "a.txt")
	assert.Contains(t, files, "b.txt")

	_, err = FileOperation(s, "alice", FileActionDelete, "b.txt", nil)
	require.NoError(t, err)
	assert.NotContains(t, FilesSnapshot(s), "b.txt")
}

func TestFileOperation_DeleteMissingFile(t *testing.T) {
	s := newTestSession()
	_, err := FileOperation(s, "alice", FileActionDelete, "missing.txt", nil)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestFileOperation_UnknownAction(t *testing.T) {
	s := newTestSession()
	_, err := FileOperation(s, "alice", FileAction("explode"), "a.txt", nil)
	assert.ErrorIs(t, err, ErrUnknownFileAction)
}

func TestAppendChatMessage(t *testing.T) {
	s := newTestSession()
	AppendChatMessage(s, session.ChatMessage{ID: "m1", UserID: "alice", Content: "hi", Type: "text"})
	AppendChatMessage(s, session.ChatMessage{ID: "m2", UserID: "bob", Content: "hey", Type: "text"})

	log := ChatLog(s)
	require.Len(t, log, 2)
	assert.Equal(t, "m1", log[0].ID)
	assert.Equal(t, "m2", log[1].ID)
	assert.False(t, log[0].Timestamp.IsZero())
}

func TestSetProject_AndSeedTemplateFiles(t *testing.T) {
	s := newTestSession()
	SetProject(s, session.Project{Mode: session.ProjectModeCreate, OwnerID: "alice", Template: "go-basic"})

	p := Project(s)
	require.NotNil(t, p)
	assert.Equal(t, session.ProjectModeCreate, p.Mode)

	SeedTemplateFiles(s, "alice", map[string]string{"main.go": "package main"})
	files := FilesSnapshot(s)
	require.Contains(t, files, "main.go")
	assert.Equal(t, "alice", files["main.go"].CreatedBy)
}

func TestProject_NilWhenUnset(t *testing.T) {
	s := newTestSession()
	assert.Nil(t, Project(s))
}
