// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/wingedpig/collabhub/internal/execution"
)

// SandboxHandler exposes the external sandbox's available language
// listing, a thin cached passthrough (spec.md §12 supplemented features).
type SandboxHandler struct {
	dispatcher *execution.Dispatcher
}

// NewSandboxHandler builds a SandboxHandler over dispatcher.
func NewSandboxHandler(dispatcher *execution.Dispatcher) *SandboxHandler {
	return &SandboxHandler{dispatcher: dispatcher}
}

// Runtimes handles GET /api/v1/sandbox/runtimes.
func (h *SandboxHandler) Runtimes(w http.ResponseWriter, r *http.Request) {
	runtimes, err := h.dispatcher.Runtimes(r.Context())
	if err != nil {
		WriteError(w, http.StatusBadGateway, ErrInternalError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, runtimes)
}
