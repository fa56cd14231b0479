package presence

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/DoyleJ11/lab-whiteboard/pkg/types"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

var self = types.Participant{UserID: "me", Username: "Ada", Color: "#2563eb"}

func newTestTracker(t *testing.T) (*Tracker, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	tr := New(self, WithClock(clock), WithLogger(zaptest.NewLogger(t)))
	t.Cleanup(tr.Close)
	return tr, clock
}

func activity(userID string) types.Activity {
	return types.Activity{UserID: userID, Username: userID, Color: "#ff0000", Action: "places Becherglas", ItemType: "becherglas"}
}

func TestMarkActive_BadgeAndActiveFlagExpireIndependently(t *testing.T) {
	tr, clock := newTestTracker(t)
	tr.SetRoster([]types.Participant{{UserID: "u1", Username: "Bob"}})

	tr.MarkActive(activity("u1"))
	assert.True(t, tr.HasBadge("u1"))
	assert.True(t, tr.IsActive("u1"))

	clock.Advance(BadgeTTL)
	require.Eventually(t, func() bool { return !tr.HasBadge("u1") }, waitFor, tick)
	assert.True(t, tr.IsActive("u1"), "active flag must outlive the badge")

	clock.Advance(ActiveTTL - BadgeTTL)
	require.Eventually(t, func() bool { return !tr.IsActive("u1") }, waitFor, tick)
	assert.False(t, tr.HasBadge("u1"))
}

func TestMarkActive_RestartsInsteadOfStacking(t *testing.T) {
	tr, clock := newTestTracker(t)

	tr.MarkActive(activity("u1"))
	clock.Advance(1500 * time.Millisecond)
	tr.MarkActive(activity("u1"))

	// 2.5s after the first call, 1s after the second: the first badge
	// timer must not clear the restarted badge.
	clock.Advance(time.Second)
	assert.Never(t, func() bool { return !tr.HasBadge("u1") }, 100*time.Millisecond, tick)

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return !tr.HasBadge("u1") }, waitFor, tick)

	// 5.5s after the first call; the restarted flag lives until 6.5s.
	clock.Advance(2 * time.Second)
	assert.Never(t, func() bool { return !tr.IsActive("u1") }, 100*time.Millisecond, tick)

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return !tr.IsActive("u1") }, waitFor, tick)
}

func TestRender_SynthesizesSelfUntilEchoed(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.SetRoster([]types.Participant{{UserID: "u1", Username: "Bob"}})

	entries := tr.Render()
	require.Len(t, entries, 2)
	assert.Equal(t, "me", entries[0].UserID)
	assert.True(t, entries[0].IsSelf)
	assert.False(t, entries[1].IsSelf)

	tr.Add(types.Participant{UserID: "me", Username: "Ada"})
	entries = tr.Render()
	require.Len(t, entries, 2)
	assert.Equal(t, "u1", entries[0].UserID)
	assert.Equal(t, "me", entries[1].UserID)
	assert.True(t, entries[1].IsSelf)

	assert.Equal(t, entries, tr.Render(), "render must be idempotent")
}

func TestRoster_JoinLeaveAndClear(t *testing.T) {
	var changes atomic.Int32
	clock := clockwork.NewFakeClock()
	tr := New(self, WithClock(clock), WithOnChange(func() { changes.Add(1) }))
	defer tr.Close()

	tr.SetRoster([]types.Participant{{UserID: "u1"}, {UserID: "u2"}, {UserID: "u1", Username: "dup"}})
	require.Len(t, tr.Roster(), 2)
	assert.Equal(t, "dup", tr.Roster()[0].Username)

	tr.Add(types.Participant{UserID: "u3"})
	tr.Add(types.Participant{UserID: "u3", Username: "renamed"})
	assert.Len(t, tr.Roster(), 3)

	tr.Remove("u2")
	ids := []string{}
	for _, p := range tr.Roster() {
		ids = append(ids, p.UserID)
	}
	assert.Equal(t, []string{"u1", "u3"}, ids)

	tr.Clear()
	assert.Empty(t, tr.Roster())
	require.Len(t, tr.Render(), 1, "self stays visible while disconnected")
	assert.Equal(t, int32(5), changes.Load())
}

func TestClose_StopsPendingExpiries(t *testing.T) {
	tr, clock := newTestTracker(t)
	tr.MarkActive(activity("u1"))
	tr.Close()

	clock.Advance(ActiveTTL)
	assert.Never(t, func() bool { return !tr.IsActive("u1") }, 100*time.Millisecond, tick)

	tr.MarkActive(activity("u2"))
	assert.False(t, tr.IsActive("u2"))
}
