// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package metrics implements the Metrics Ticker (C8): a single
// process-wide 2-second tick that samples OS load and broadcasts it to
// every session with at least one active subscriber.
package metrics

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
)

// Interval is the fixed tick period (spec.md §4.8).
const Interval = 2 * time.Second

// Snapshot is one tick's payload, broadcast to every subscribed session.
type Snapshot struct {
	CPU          float64 `json:"cpu"`
	Memory       float64 `json:"memory"`
	Network      float64 `json:"network"`
	BuildTime    float64 `json:"buildTime"`
	ActiveUsers  int     `json:"activeUsers"`
	ServerLoad   float64 `json:"serverLoad"`
	ErrorRate    float64 `json:"errorRate"`
	ResponseTime float64 `json:"responseTime"`
}

// Broadcaster is the narrow view of the realtime Hub the ticker needs:
// fan a snapshot out to one session's peers.
type Broadcaster interface {
	BroadcastToSession(sessionID, eventType string, payload interface{})
}

// ActiveUserCounter reports how many connections a session currently has,
// for the synthetic activeUsers field.
type ActiveUserCounter interface {
	SessionMemberCount(sessionID string) int
}

// Ticker runs the process-wide 2s sampling loop and fans results out to
// every session with a live subscriber (spec.md §4.8). It starts lazily:
// the background goroutine only runs while at least one session is
// subscribed, and stops itself once the last one unsubscribes.
type Ticker struct {
	broadcaster Broadcaster
	counter     ActiveUserCounter

	mu          sync.Mutex
	subscribers map[string]bool
	cancel      context.CancelFunc
}

// NewTicker creates a Ticker. broadcaster fans snapshots out; counter may
// be nil (activeUsers is then always reported as 0).
func NewTicker(broadcaster Broadcaster, counter ActiveUserCounter) *Ticker {
	return &Ticker{
		broadcaster: broadcaster,
		counter:     counter,
		subscribers: make(map[string]bool),
	}
}

// Subscribe adds sessionID to the broadcast set, starting the background
// loop if this is the first subscriber.
func (t *Ticker) Subscribe(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers[sessionID] = true
	if t.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		t.cancel = cancel
		go t.run(ctx)
	}
}

// Unsubscribe removes sessionID, stopping the loop once no sessions
// remain subscribed.
func (t *Ticker) Unsubscribe(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subscribers, sessionID)
	if len(t.subscribers) == 0 && t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

func (t *Ticker) run(ctx context.Context) {
	ticker := time.NewTicker(Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick()
		}
	}
}

func (t *Ticker) tick() {
	t.mu.Lock()
	sessions := make([]string, 0, len(t.subscribers))
	for id := range t.subscribers {
		sessions = append(sessions, id)
	}
	t.mu.Unlock()
	if len(sessions) == 0 {
		return
	}

	snap := sample()
	for _, id := range sessions {
		s := snap
		if t.counter != nil {
			s.ActiveUsers = t.counter.SessionMemberCount(id)
		}
		t.broadcaster.BroadcastToSession(id, "performance_metrics", s)
	}
}

// sample reads OS counters for the fields gopsutil can answer directly;
// buildTime, serverLoad, errorRate, and responseTime have no OS-level
// analogue in a single-process hub and are synthesized (spec.md §4.8:
// "the last four may be synthetic").
func sample() Snapshot {
	var snap Snapshot

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		snap.CPU = percents[0]
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		snap.Memory = vm.UsedPercent
	}

	if counters, err := net.IOCounters(false); err == nil && len(counters) > 0 {
		snap.Network = float64(counters[0].BytesSent+counters[0].BytesRecv) / 1024 / 1024
	}

	snap.BuildTime = 0
	snap.ServerLoad = snap.CPU / 100
	snap.ErrorRate = 0
	snap.ResponseTime = 20 + rand.Float64()*30

	return snap
}
