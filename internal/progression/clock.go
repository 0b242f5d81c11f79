package progression

import (
	"fmt"
	"time"
)

// SessionStatus is the lifecycle state of a climbing session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusPaused    SessionStatus = "paused"
	StatusCompleted SessionStatus = "completed"
)

// Open reports whether the session still counts as the user's current one.
func (s SessionStatus) Open() bool {
	return s == StatusActive || s == StatusPaused
}

// SessionClock holds the timestamps needed to account active climbing time.
// A zero StartTime means the start is unknown. Paused time is kept exact and
// only rounded down to minutes together with the active span.
type SessionClock struct {
	Status      SessionStatus
	StartTime   time.Time
	EndTime     *time.Time
	PausedAt    *time.Time
	TotalPaused time.Duration
}

// PausedMinutes is the whole minutes spent paused so far.
func (c SessionClock) PausedMinutes() int {
	return wholeMinutes(c.TotalPaused)
}

// ErrInvalidTransition is returned by the clock transitions.
type ErrInvalidTransition struct {
	From SessionStatus
	To   SessionStatus
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid session status transition %s -> %s", e.From, e.To)
}

func wholeMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / time.Minute)
}

// ElapsedActiveMinutes returns the active duration of the session at now,
// excluding paused time. A paused session is frozen at its pause boundary.
func ElapsedActiveMinutes(c SessionClock, now time.Time) int {
	if c.StartTime.IsZero() {
		return 0
	}
	switch c.Status {
	case StatusPaused:
		pausedAt := now
		if c.PausedAt != nil {
			pausedAt = *c.PausedAt
		}
		return wholeMinutes(pausedAt.Sub(c.StartTime) - c.TotalPaused)
	case StatusCompleted:
		if c.EndTime != nil {
			now = *c.EndTime
		}
	}
	return wholeMinutes(now.Sub(c.StartTime) - c.TotalPaused)
}

// Pause freezes the clock at now.
func Pause(c SessionClock, now time.Time) (SessionClock, error) {
	if c.Status != StatusActive {
		return c, ErrInvalidTransition{From: c.Status, To: StatusPaused}
	}
	t := now
	c.Status = StatusPaused
	c.PausedAt = &t
	return c, nil
}

// Resume folds the open pause into TotalPaused and restarts the clock.
func Resume(c SessionClock, now time.Time) (SessionClock, error) {
	if c.Status != StatusPaused {
		return c, ErrInvalidTransition{From: c.Status, To: StatusActive}
	}
	if c.PausedAt != nil {
		if d := now.Sub(*c.PausedAt); d > 0 {
			c.TotalPaused += d
		}
	}
	c.PausedAt = nil
	c.Status = StatusActive
	return c, nil
}

// End completes the session at now. An open pause is resumed first so its
// duration is excluded.
func End(c SessionClock, now time.Time) (SessionClock, error) {
	if !c.Status.Open() {
		return c, ErrInvalidTransition{From: c.Status, To: StatusCompleted}
	}
	if c.Status == StatusPaused {
		var err error
		if c, err = Resume(c, now); err != nil {
			return c, err
		}
	}
	t := now
	c.EndTime = &t
	c.Status = StatusCompleted
	return c, nil
}

// FormatDuration renders minutes as "45m" or "1h 15m".
func FormatDuration(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}
