package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"abyssclimber/internal/domain"
	"abyssclimber/internal/engine/auth"
	"abyssclimber/internal/events"
	"abyssclimber/internal/progression"
	"abyssclimber/internal/repo"
)

// SessionView is a climbing session with its live clock reading.
type SessionView struct {
	domain.ClimbingSession
	ElapsedMinutes int    `json:"elapsed_minutes"`
	Duration       string `json:"duration"`
}

func clockOf(s domain.ClimbingSession) (progression.SessionClock, error) {
	start, err := parseStamp(s.StartTime)
	if err != nil {
		return progression.SessionClock{}, fmt.Errorf("session %s start time: %w", s.ID, err)
	}
	end, err := parseStampPtr(s.EndTime)
	if err != nil {
		return progression.SessionClock{}, fmt.Errorf("session %s end time: %w", s.ID, err)
	}
	paused, err := parseStampPtr(s.PausedAt)
	if err != nil {
		return progression.SessionClock{}, fmt.Errorf("session %s paused at: %w", s.ID, err)
	}
	return progression.SessionClock{
		Status:      progression.SessionStatus(s.Status),
		StartTime:   start,
		EndTime:     end,
		PausedAt:    paused,
		TotalPaused: time.Duration(s.PausedSeconds) * time.Second,
	}, nil
}

func applyClock(s *domain.ClimbingSession, c progression.SessionClock) {
	s.Status = string(c.Status)
	s.PausedSeconds = int(c.TotalPaused / time.Second)
	s.TotalPausedTime = c.PausedMinutes()
	s.PausedAt = nil
	if c.PausedAt != nil {
		s.PausedAt = optionalString(stamp(*c.PausedAt))
	}
	s.EndTime = nil
	if c.EndTime != nil {
		s.EndTime = optionalString(stamp(*c.EndTime))
	}
}

func (e Engine) view(s domain.ClimbingSession) SessionView {
	v := SessionView{ClimbingSession: s, ElapsedMinutes: s.ActiveMinutes}
	if c, err := clockOf(s); err == nil {
		v.ElapsedMinutes = progression.ElapsedActiveMinutes(c, e.now())
	}
	v.Duration = progression.FormatDuration(v.ElapsedMinutes)
	return v
}

// ownedSession loads a session and checks that userID owns it.
func ownedSession(ctx context.Context, r repo.Repo, userID, id string) (domain.ClimbingSession, error) {
	s, err := r.GetSession(ctx, id)
	if err != nil {
		return s, err
	}
	if s.UserID != userID {
		return s, auth.ForbiddenError{Resource: "session"}
	}
	return s, nil
}

type StartSessionOptions struct {
	UserID   string `validate:"required"`
	Location string `validate:"max=200"`
	Notes    string `validate:"max=2000"`
}

// StartSession opens a session. Only one active or paused session may exist
// per user; the check and insert run under the database write lock and the
// partial unique index rejects anything that slips past it.
func (e Engine) StartSession(ctx context.Context, opts StartSessionOptions) (SessionView, error) {
	if err := check(opts); err != nil {
		return SessionView{}, err
	}
	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return SessionView{}, err
	}
	defer tx.Rollback()
	r := e.Repo.WithTx(tx)

	if _, err := r.GetUser(ctx, opts.UserID); err != nil {
		return SessionView{}, err
	}
	if open, err := r.OpenSession(ctx, opts.UserID); err == nil {
		return SessionView{}, ConflictError{Message: fmt.Sprintf("session %s is already %s; end it before starting a new one", open.ID, open.Status)}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return SessionView{}, err
	}
	s := domain.ClimbingSession{
		ID:        uuid.NewString(),
		UserID:    opts.UserID,
		Location:  opts.Location,
		StartTime: stamp(now),
		Status:    string(progression.StatusActive),
		Notes:     opts.Notes,
		CreatedAt: stamp(now),
	}
	if err := r.InsertSession(ctx, s); err != nil {
		return SessionView{}, conflict(err)
	}
	if err := e.journal().Append(ctx, tx, events.SessionStarted, s.UserID, "session", s.ID, events.Payload{"location": s.Location}); err != nil {
		return SessionView{}, err
	}
	if err := tx.Commit(); err != nil {
		return SessionView{}, err
	}
	return e.view(s), nil
}

type clockStep func(progression.SessionClock, time.Time) (progression.SessionClock, error)

// transition applies a clock step to an owned session inside a transaction.
func (e Engine) transition(ctx context.Context, userID, id string, step clockStep, evtType string, after func(context.Context, *sql.Tx, repo.Repo, *domain.ClimbingSession) error) (domain.ClimbingSession, error) {
	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ClimbingSession{}, err
	}
	defer tx.Rollback()
	r := e.Repo.WithTx(tx)

	s, err := ownedSession(ctx, r, userID, id)
	if err != nil {
		return domain.ClimbingSession{}, err
	}
	c, err := clockOf(s)
	if err != nil {
		return domain.ClimbingSession{}, err
	}
	next, err := step(c, now)
	var bad progression.ErrInvalidTransition
	if errors.As(err, &bad) {
		return domain.ClimbingSession{}, ConflictError{Message: fmt.Sprintf("session is %s", bad.From)}
	}
	if err != nil {
		return domain.ClimbingSession{}, err
	}
	applyClock(&s, next)
	s.ActiveMinutes = progression.ElapsedActiveMinutes(next, now)
	if after != nil {
		if err := after(ctx, tx, r, &s); err != nil {
			return domain.ClimbingSession{}, err
		}
	}
	if err := r.UpdateSession(ctx, s); err != nil {
		return domain.ClimbingSession{}, err
	}
	payload := events.Payload{"status": s.Status, "active_minutes": s.ActiveMinutes, "total_paused_time": s.TotalPausedTime}
	if s.Status == string(progression.StatusCompleted) {
		payload["xp_earned"] = s.XPEarned
	}
	if err := e.journal().Append(ctx, tx, evtType, s.UserID, "session", s.ID, payload); err != nil {
		return domain.ClimbingSession{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ClimbingSession{}, err
	}
	return s, nil
}

func (e Engine) PauseSession(ctx context.Context, userID, id string) (SessionView, error) {
	s, err := e.transition(ctx, userID, id, progression.Pause, events.SessionPaused, nil)
	if err != nil {
		return SessionView{}, err
	}
	return e.view(s), nil
}

func (e Engine) ResumeSession(ctx context.Context, userID, id string) (SessionView, error) {
	s, err := e.transition(ctx, userID, id, progression.Resume, events.SessionResumed, nil)
	if err != nil {
		return SessionView{}, err
	}
	return e.view(s), nil
}

// EndResult is a completed session with the progression it caused.
type EndResult struct {
	Session      SessionView          `json:"session"`
	Progression  ProgressionChange    `json:"progression"`
	Achievements []domain.Achievement `json:"achievements"`
}

// EndSession completes a session, stores its active minutes and XP, and
// recomputes progression. Coach feedback is generated after commit and a
// coach failure never fails the call.
func (e Engine) EndSession(ctx context.Context, userID, id string) (EndResult, error) {
	var res EndResult
	s, err := e.transition(ctx, userID, id, progression.End, events.SessionEnded,
		func(ctx context.Context, tx *sql.Tx, r repo.Repo, s *domain.ClimbingSession) error {
			problems, err := r.ListProblemsBySession(ctx, s.ID)
			if err != nil {
				return err
			}
			s.XPEarned = 0
			for _, p := range problems {
				s.XPEarned += p.XP
			}
			// The session counts as completed for the stats below.
			if err := r.UpdateSession(ctx, *s); err != nil {
				return err
			}
			change, err := e.recompute(ctx, tx, r, s.UserID)
			if err != nil {
				return err
			}
			res.Progression = change
			res.Achievements, err = e.awardAchievements(ctx, tx, r, s.UserID)
			return err
		})
	if err != nil {
		return EndResult{}, err
	}
	if fb, err := e.generateFeedback(ctx, s); err != nil {
		e.log().Warn("session feedback failed", zapUser(userID), zap.String("session_id", s.ID), zap.Error(err))
	} else {
		s.Feedback = fb
	}
	res.Session = e.view(s)
	if res.Achievements == nil {
		res.Achievements = []domain.Achievement{}
	}
	return res, nil
}

func (e Engine) GetSession(ctx context.Context, userID, id string) (SessionView, error) {
	s, err := ownedSession(ctx, e.Repo, userID, id)
	if err != nil {
		return SessionView{}, err
	}
	return e.view(s), nil
}

// ActiveSession returns the user's open session or repo.ErrNotFound.
func (e Engine) ActiveSession(ctx context.Context, userID string) (SessionView, error) {
	s, err := e.Repo.OpenSession(ctx, userID)
	if err != nil {
		return SessionView{}, err
	}
	return e.view(s), nil
}

func (e Engine) ListSessions(ctx context.Context, userID, status string, limit int) ([]SessionView, error) {
	switch status {
	case "", "active", "paused", "completed":
	default:
		return nil, ValidationError{Field: "status", Message: "must be one of active paused completed"}
	}
	items, err := e.Repo.ListSessions(ctx, repo.SessionFilters{UserID: userID, Status: status, Limit: limit})
	if err != nil {
		return nil, err
	}
	out := make([]SessionView, 0, len(items))
	for _, s := range items {
		out = append(out, e.view(s))
	}
	return out, nil
}
