// Package presence keeps the roster of connected participants and the
// short-lived "who is doing what" indicators.
package presence

import (
	"sync"
	"time"

	"github.com/DoyleJ11/lab-whiteboard/pkg/types"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	BadgeTTL  = 2 * time.Second
	ActiveTTL = 5 * time.Second
)

// Badge is the transient "<user>: <action>" indicator.
type Badge struct {
	UserID   string
	Username string
	Color    string
	Action   string
	ItemType string
	Shown    time.Time
}

// Entry is one rendered roster row.
type Entry struct {
	types.Participant
	Active bool
}

type userTimers struct {
	gen    uint64
	badge  clockwork.Timer
	active clockwork.Timer
}

// Tracker is safe for concurrent use: expiry timers fire on the clock's
// goroutine while the session loop reads and updates the roster.
type Tracker struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	logger *zap.Logger

	self     types.Participant
	roster   []types.Participant
	active   map[string]bool
	badges   map[string]Badge
	timers   map[string]*userTimers
	onChange func()
	closed   bool
}

type Option func(*Tracker)

func WithClock(c clockwork.Clock) Option { return func(t *Tracker) { t.clock = c } }

func WithLogger(l *zap.Logger) Option { return func(t *Tracker) { t.logger = l } }

// WithOnChange registers a callback run after every visible change,
// including timer expiries. It is called without the tracker lock held.
func WithOnChange(fn func()) Option { return func(t *Tracker) { t.onChange = fn } }

func New(self types.Participant, opts ...Option) *Tracker {
	t := &Tracker{
		clock:  clockwork.NewRealClock(),
		logger: zap.NewNop(),
		self:   self,
		roster: []types.Participant{},
		active: make(map[string]bool),
		badges: make(map[string]Badge),
		timers: make(map[string]*userTimers),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.self.IsSelf = true
	return t
}

// SetRoster replaces the roster wholesale (users_list).
func (t *Tracker) SetRoster(users []types.Participant) {
	t.mu.Lock()
	t.roster = dedupe(users)
	t.mu.Unlock()
	t.changed()
}

// Add appends a participant (user_joined). A user already present is
// updated in place so the roster stays keyed by user_id.
func (t *Tracker) Add(p types.Participant) {
	p.IsSelf = false
	t.mu.Lock()
	replaced := false
	for i := range t.roster {
		if t.roster[i].UserID == p.UserID {
			t.roster[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		t.roster = append(t.roster, p)
	}
	t.mu.Unlock()
	t.changed()
}

// Remove drops a participant by id (user_left).
func (t *Tracker) Remove(userID string) {
	t.mu.Lock()
	kept := t.roster[:0:0]
	for _, p := range t.roster {
		if p.UserID != userID {
			kept = append(kept, p)
		}
	}
	t.roster = kept
	t.mu.Unlock()
	t.changed()
}

// Clear empties the roster. Called the moment the channel closes; the
// next users_list rebuilds it.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.roster = []types.Participant{}
	t.mu.Unlock()
	t.changed()
}

// MarkActive shows a badge for the activity's user and flags the user as
// active. The badge expires after BadgeTTL and the flag after ActiveTTL.
// A newer call for the same user restarts both timers.
func (t *Tracker) MarkActive(a types.Activity) {
	if a.UserID == "" {
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	ut := t.timers[a.UserID]
	if ut == nil {
		ut = &userTimers{}
		t.timers[a.UserID] = ut
	}
	ut.stop()
	ut.gen++
	gen := ut.gen
	userID := a.UserID

	t.active[userID] = true
	t.badges[userID] = Badge{
		UserID:   a.UserID,
		Username: a.Username,
		Color:    a.Color,
		Action:   a.Action,
		ItemType: a.ItemType,
		Shown:    t.clock.Now(),
	}
	ut.badge = t.clock.AfterFunc(BadgeTTL, func() { t.expireBadge(userID, gen) })
	ut.active = t.clock.AfterFunc(ActiveTTL, func() { t.expireActive(userID, gen) })
	t.mu.Unlock()

	t.logger.Debug("activity", zap.String("user_id", userID), zap.String("action", a.Action))
	t.changed()
}

func (t *Tracker) expireBadge(userID string, gen uint64) {
	t.mu.Lock()
	ut := t.timers[userID]
	if ut == nil || ut.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.badges, userID)
	t.mu.Unlock()
	t.changed()
}

func (t *Tracker) expireActive(userID string, gen uint64) {
	t.mu.Lock()
	ut := t.timers[userID]
	if ut == nil || ut.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.active, userID)
	delete(t.timers, userID)
	t.mu.Unlock()
	t.changed()
}

// Render returns the roster as it should be drawn. The local user is
// synthesized at the front while the hub has not yet echoed our join.
func (t *Tracker) Render() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, 0, len(t.roster)+1)
	selfPresent := false
	for _, p := range t.roster {
		if p.UserID == t.self.UserID {
			selfPresent = true
		}
	}
	if !selfPresent && t.self.UserID != "" {
		out = append(out, Entry{Participant: t.self, Active: t.active[t.self.UserID]})
	}
	for _, p := range t.roster {
		p.IsSelf = p.UserID == t.self.UserID
		out = append(out, Entry{Participant: p, Active: t.active[p.UserID]})
	}
	return out
}

// Roster returns the participants as last reported by the hub.
func (t *Tracker) Roster() []types.Participant {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.Participant, len(t.roster))
	copy(out, t.roster)
	return out
}

func (t *Tracker) Badges() []Badge {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Badge, 0, len(t.badges))
	for _, b := range t.badges {
		out = append(out, b)
	}
	return out
}

func (t *Tracker) HasBadge(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.badges[userID]
	return ok
}

func (t *Tracker) IsActive(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active[userID]
}

// Close stops every pending expiry. Later MarkActive calls are ignored.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, ut := range t.timers {
		ut.stop()
		delete(t.timers, id)
	}
	t.closed = true
}

func (t *Tracker) changed() {
	if t.onChange != nil {
		t.onChange()
	}
}

func (ut *userTimers) stop() {
	if ut.badge != nil {
		ut.badge.Stop()
	}
	if ut.active != nil {
		ut.active.Stop()
	}
}

func dedupe(users []types.Participant) []types.Participant {
	out := make([]types.Participant, 0, len(users))
	index := make(map[string]int, len(users))
	for _, p := range users {
		p.IsSelf = false
		if i, ok := index[p.UserID]; ok {
			out[i] = p
			continue
		}
		index[p.UserID] = len(out)
		out = append(out, p)
	}
	return out
}
