// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server:             ServerConfig{Port: 3001, PortProbeStep: 9},
		JWTSecret:          "s3cr3t",
		PistonAPIURL:       DefaultPistonAPIURL,
		MaxUsersPerSession: 10,
		RateLimit:          RateLimitConfig{MaxConnections: 10, Window: 30 * time.Second},
	}
}

func TestValidator_Validate_ValidConfig(t *testing.T) {
	err := NewValidator().Validate(validConfig())
	assert.NoError(t, err)
}

func TestValidator_Validate_BadPort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 70000

	err := NewValidator().Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidator_Validate_NoAuthConfigured(t *testing.T) {
	cfg := validConfig()
	cfg.JWTSecret = ""

	err := NewValidator().Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwtSecret")
}

func TestValidator_Validate_DevTokensSatisfyAuthRequirement(t *testing.T) {
	cfg := validConfig()
	cfg.JWTSecret = ""
	cfg.AllowDevTokens = true

	err := NewValidator().Validate(cfg)
	assert.NoError(t, err)
}

func TestValidator_Validate_MissingSandboxURL(t *testing.T) {
	cfg := validConfig()
	cfg.PistonAPIURL = ""

	err := NewValidator().Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pistonApiUrl")
}

func TestValidator_Validate_ZeroMaxUsers(t *testing.T) {
	cfg := validConfig()
	cfg.MaxUsersPerSession = 0

	err := NewValidator().Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maxUsersPerSession")
}

func TestValidationError_MultipleFailuresJoined(t *testing.T) {
	cfg := &Config{}
	err := NewValidator().Validate(cfg)
	require.Error(t, err)

	ve, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(ve.Errors), 3)
}
