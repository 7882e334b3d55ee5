// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingBroadcaster struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingBroadcaster) BroadcastToSession(sessionID, eventType string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, sessionID)
}

func (r *recordingBroadcaster) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestTicker_BroadcastsOnlyWhileSubscribed(t *testing.T) {
	b := &recordingBroadcaster{}
	tk := NewTicker(b, nil)

	// No subscribers: nothing fires even after waiting past one interval.
	time.Sleep(Interval + 200*time.Millisecond)
	assert.Equal(t, 0, b.count())

	tk.Subscribe("sess-1")
	assert.Eventually(t, func() bool { return b.count() > 0 }, 3*Interval, 50*time.Millisecond)

	tk.Unsubscribe("sess-1")
	before := b.count()
	time.Sleep(Interval + 200*time.Millisecond)
	assert.Equal(t, before, b.count())
}

func TestSample_PopulatesFields(t *testing.T) {
	snap := sample()
	assert.GreaterOrEqual(t, snap.ResponseTime, 20.0)
	assert.LessOrEqual(t, snap.ResponseTime, 50.0)
}
