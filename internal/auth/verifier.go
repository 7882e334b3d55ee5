// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package auth implements the Token Verifier (C1): a pure function from a
// bearer credential to a normalized Principal, tried in order across the
// federated-identity, locally-signed, and development-token paths.
package auth

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wingedpig/collabhub/internal/principal"
)

// ErrInvalidToken is returned when none of the configured verification
// paths accept the credential.
var ErrInvalidToken = errors.New("invalid_token")

// FederatedVerifier is the pluggable interface for a federated-identity
// provider (e.g. an OIDC/Firebase-style assertion verifier). The pack
// retrieved for this spec carries no federated-identity admin SDK, so
// collabhub leaves this as an injectable seam: construct a Verifier
// without one and the federated path is simply skipped, exactly as
// spec.md §4.1 describes ("absence disables the federated path").
type FederatedVerifier interface {
	// VerifyAssertion validates token as a federated identity assertion
	// and returns the normalized principal fields.
	VerifyAssertion(token string) (userID, email, displayName string, err error)
}

// Config configures the Token Verifier.
type Config struct {
	// Federated is the optional federated-identity verifier. Nil disables
	// the federated path.
	Federated FederatedVerifier

	// JWTSecret is the HMAC secret for the locally-signed (HS256) path.
	// Empty disables HS256 verification.
	JWTSecret []byte

	// JWTPublicKeyPEM, if set, enables the locally-signed RS256 path.
	JWTPublicKeyPEM []byte

	// AllowDevTokens enables the development-token path. This MUST be
	// false in production (spec.md §4.1).
	AllowDevTokens bool
}

// Verifier implements the Token Verifier (C1). It never touches session
// state — it is pure with respect to its Config.
type Verifier struct {
	cfg       Config
	publicKey interface{}
}

// NewVerifier constructs a Verifier from cfg, parsing the RS256 public key
// (if configured) once up front.
func NewVerifier(cfg Config) (*Verifier, error) {
	v := &Verifier{cfg: cfg}
	if len(cfg.JWTPublicKeyPEM) > 0 {
		key, err := jwt.ParseRSAPublicKeyFromPEM(cfg.JWTPublicKeyPEM)
		if err != nil {
			return nil, errors.New("invalid JWT public key: " + err.Error())
		}
		v.publicKey = key
	}
	return v, nil
}

// Verify accepts a bearer credential and attempts, in order: the
// federated-identity path, the locally-signed path (HS256 or RS256), then
// the development-token path. The first path to accept wins.
func (v *Verifier) Verify(token string) (principal.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return principal.Principal{}, ErrInvalidToken
	}

	if v.cfg.Federated != nil {
		if p, ok := v.tryFederated(token); ok {
			return p, nil
		}
	}

	if p, ok := v.tryLocallySigned(token); ok {
		return p, nil
	}

	if v.cfg.AllowDevTokens {
		if p, ok := v.tryDevToken(token); ok {
			return p, nil
		}
	}

	return principal.Principal{}, ErrInvalidToken
}

func (v *Verifier) tryFederated(token string) (principal.Principal, bool) {
	userID, email, displayName, err := v.cfg.Federated.VerifyAssertion(token)
	if err != nil || userID == "" {
		return principal.Principal{}, false
	}
	if displayName == "" {
		displayName = localPart(email)
	}
	return principal.Principal{
		UserID:      userID,
		Email:       email,
		DisplayName: displayName,
		Role:        principal.RoleUser,
		Origin:      principal.OriginVerified,
	}, true
}

// localSignedClaims are the recognized fields of a locally-signed token.
type localSignedClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (v *Verifier) tryLocallySigned(tokenString string) (principal.Principal, bool) {
	claims := &localSignedClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		switch t.Method.Alg() {
		case "HS256":
			if len(v.cfg.JWTSecret) == 0 {
				return nil, errors.New("HS256 not configured")
			}
			return v.cfg.JWTSecret, nil
		case "RS256":
			if v.publicKey == nil {
				return nil, errors.New("RS256 not configured")
			}
			return v.publicKey, nil
		default:
			return nil, errors.New("unsupported signing method")
		}
	}, jwt.WithValidMethods([]string{"HS256", "RS256"}))
	if err != nil || !parsed.Valid {
		return principal.Principal{}, false
	}

	sub := claims.Subject
	if sub == "" {
		return principal.Principal{}, false
	}
	displayName := claims.Name
	if displayName == "" {
		displayName = localPart(claims.Email)
	}
	return principal.Principal{
		UserID:      sub,
		Email:       claims.Email,
		DisplayName: displayName,
		Role:        principal.RoleUser,
		Origin:      principal.OriginVerified,
	}, true
}

func localPart(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
