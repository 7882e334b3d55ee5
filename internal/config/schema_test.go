// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_JSONRoundtrip(t *testing.T) {
	cfg := Config{
		Server:             ServerConfig{Host: "0.0.0.0", Port: 3001, PortProbeStep: 9},
		JWTSecret:          "s3cr3t",
		PistonAPIURL:       DefaultPistonAPIURL,
		MaxUsersPerSession: 10,
		AllowGuestsDefault: true,
		RateLimit:          RateLimitConfig{MaxConnections: 10, Window: 30 * time.Second},
	}

	b, err := json.Marshal(cfg)
	require.NoError(t, err)

	var decoded Config
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, cfg.Server.Port, decoded.Server.Port)
	assert.Equal(t, cfg.JWTSecret, decoded.JWTSecret)
	assert.Equal(t, cfg.RateLimit.MaxConnections, decoded.RateLimit.MaxConnections)
}

func TestConfig_DurationDoesNotUnmarshalFromJSONString(t *testing.T) {
	// time.Duration has no JSON text marshaler: "30s" unmarshals into a
	// numeric field only if it's already nanoseconds. This is exactly why
	// loader.go routes through rawConfig instead of decoding into Config
	// directly.
	var rl RateLimitConfig
	err := json.Unmarshal([]byte(`{"maxConnections":5,"window":"30s"}`), &rl)
	assert.Error(t, err)
}
