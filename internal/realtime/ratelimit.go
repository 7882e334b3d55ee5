// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package realtime

import (
	"context"
	"time"

	limiter "github.com/sethvargo/go-limiter"
	"github.com/sethvargo/go-limiter/memorystore"
)

// RateLimitConfig customizes the handshake-time IP rate limiter (spec.md
// §4.4): a fixed token bucket of MaxConnections per Window, keyed by
// source address.
type RateLimitConfig struct {
	MaxConnections uint64
	Window         time.Duration
}

// DefaultRateLimitConfig is the spec default: 10 connections per 30s.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{MaxConnections: 10, Window: 30 * time.Second}
}

// ipRateLimiter gates new handshakes per source address, grounded on the
// teacher pack's go-limiter/memorystore usage for auth-lockout counting
// (gravitational-teleport-plugins/event-handler/events_job.go).
type ipRateLimiter struct {
	store limiter.Store
}

func newIPRateLimiter(cfg RateLimitConfig) (*ipRateLimiter, error) {
	store, err := memorystore.New(&memorystore.Config{
		Tokens:   cfg.MaxConnections,
		Interval: cfg.Window,
	})
	if err != nil {
		return nil, err
	}
	return &ipRateLimiter{store: store}, nil
}

// Allow consumes one token for addr, returning false once the window's
// budget is exhausted.
func (l *ipRateLimiter) Allow(addr string) bool {
	_, _, _, ok, err := l.store.Take(context.Background(), addr)
	if err != nil {
		// Fail open: a limiter-store error must not itself deny service.
		return true
	}
	return ok
}
