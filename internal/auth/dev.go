// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/wingedpig/collabhub/internal/principal"
)

// devTokenPayload is the minimal shape a development token's payload must
// carry: both sub and email, per spec.md §4.1.
type devTokenPayload struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// tryDevToken accepts a well-formed three-segment compact assertion
// (header.payload.signature) without verifying its signature, so long as
// the payload decodes and carries both sub and email. This path exists
// purely for local development and MUST be disabled in production
// (Config.AllowDevTokens=false), enforced by the caller.
func (v *Verifier) tryDevToken(tokenString string) (principal.Principal, bool) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return principal.Principal{}, false
	}

	payloadJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return principal.Principal{}, false
	}

	var payload devTokenPayload
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return principal.Principal{}, false
	}
	if payload.Sub == "" || payload.Email == "" {
		return principal.Principal{}, false
	}

	displayName := payload.Name
	if displayName == "" {
		displayName = localPart(payload.Email)
	}

	return principal.Principal{
		UserID:      "dev-" + payload.Sub,
		Email:       payload.Email,
		DisplayName: displayName + " (dev)",
		Role:        principal.RoleUser,
		Origin:      principal.OriginAutoCreated,
	}, true
}
