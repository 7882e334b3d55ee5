// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config handles collabhub's configuration: an optional HJSON file
// (loaded the way the teacher's internal/config/loader.go does), with
// defaults and environment-variable overrides layered on top per
// spec.md §6.
package config

import "time"

// Config is the root configuration structure for collabhub.
type Config struct {
	Server    ServerConfig `json:"server"`
	JWTSecret string       `json:"jwtSecret"`

	// FirebaseAdminKey is loaded and counts as an auth source for
	// validation, but cmd/collabhub builds no federated verifier from it:
	// the federated-identity path stays disabled and auth uses
	// locally-signed/dev tokens only.
	FirebaseAdminKey string `json:"firebaseAdminKey"`

	PistonAPIURL string `json:"pistonApiUrl"`

	MaxUsersPerSession  int  `json:"maxUsersPerSession"`
	AllowGuestsDefault  bool `json:"allowGuestsDefault"`
	AllowGuestTransport bool `json:"allowGuestTransport"`
	AllowDevTokens      bool `json:"allowDevTokens"`

	RateLimit RateLimitConfig `json:"rateLimit"`
}

// ServerConfig configures the HTTP/realtime bind address and the port
// probe range (spec.md §6: default 3001, step +1 up to +9).
type ServerConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	PortProbeStep int    `json:"portProbeStep"`
}

// RateLimitConfig configures the per-IP handshake rate limit (spec.md §4.4).
type RateLimitConfig struct {
	MaxConnections uint64        `json:"maxConnections"`
	Window         time.Duration `json:"window"`
}

// DefaultPistonAPIURL is the public Piston instance, used when
// PISTON_API_URL is unset (spec.md §6).
const DefaultPistonAPIURL = "https://emkc.org/api/v2/piston"
