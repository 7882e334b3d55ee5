// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package execution

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_UnsupportedLanguage(t *testing.T) {
	d := NewDispatcher("http://unused.invalid")
	_, err := d.Execute(context.Background(), "cobol", "x", "")
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestExecute_NormalizesSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sandboxRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "python", req.Language)
		require.Len(t, req.Files, 1)
		assert.Equal(t, "main.py", req.Files[0].Name)

		resp := sandboxResponse{
			Language: "python",
			Version:  "3.10.0",
			Run:      sandboxStage{Stdout: "hi\n", Code: 0},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL)
	result, err := d.Execute(context.Background(), "python", "print('hi')", "")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "hi\n", result.Output)
	assert.Equal(t, 0, result.ExitCode)
}

func TestExecute_SandboxErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL)
	_, err := d.Execute(context.Background(), "go", "package main", "")
	assert.Error(t, err)
}

func TestRuntimes_CachesResult(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode([]Runtime{{Language: "python", Version: "3.10.0"}})
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL)
	first, err := d.Runtimes(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := d.Runtimes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls) // second call served from cache
}
