package domain

import "time"

// State is the advisory processing lock stored on every source record.
type State string

const (
	StateIdle      State = "idle"
	StateAcquiring State = "acquiring"
)

// Source is one subscribed feed and its processing record.
type Source struct {
	ID             int64
	URL            string
	CursorIndex    int
	State          State
	History        History
	Tag            string
	StateChangedAt time.Time
	CreatedAt      time.Time
}

// NewSource returns a fresh record for url: idle, cursor at the feed head, empty history.
func NewSource(url string, now time.Time) *Source {
	return &Source{
		URL:            url,
		State:          StateIdle,
		History:        History{},
		StateChangedAt: now,
		CreatedAt:      now,
	}
}

// IsStale reports whether an acquiring record has outlived the staleness window.
func (s *Source) IsStale(now time.Time, window time.Duration) bool {
	return s.State == StateAcquiring && now.Sub(s.StateChangedAt) > window
}

// SetState changes the state and refreshes StateChangedAt.
func (s *Source) SetState(state State, now time.Time) {
	s.State = state
	s.StateChangedAt = now
}

// Clone returns a deep copy so callers can snapshot a record before mutating it.
func (s *Source) Clone() *Source {
	c := *s
	c.History = append(History(nil), s.History...)
	return &c
}
