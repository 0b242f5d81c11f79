package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"abyssclimber/internal/domain"
)

const sessionColumns = `id,user_id,COALESCE(location,''),start_time,end_time,status,paused_at,total_paused_time,paused_seconds,active_minutes,xp_earned,COALESCE(notes,''),COALESCE(feedback,''),created_at`

func scanSession(row interface{ Scan(...any) error }) (domain.ClimbingSession, error) {
	var s domain.ClimbingSession
	var endTime, pausedAt sql.NullString
	err := row.Scan(&s.ID, &s.UserID, &s.Location, &s.StartTime, &endTime, &s.Status, &pausedAt,
		&s.TotalPausedTime, &s.PausedSeconds, &s.ActiveMinutes, &s.XPEarned, &s.Notes, &s.Feedback, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNotFound
	}
	s.EndTime = strPtr(endTime)
	s.PausedAt = strPtr(pausedAt)
	return s, err
}

func (r Repo) InsertSession(ctx context.Context, s domain.ClimbingSession) error {
	_, err := r.q().ExecContext(ctx, `INSERT INTO climbing_sessions(id,user_id,location,start_time,end_time,status,paused_at,total_paused_time,paused_seconds,active_minutes,xp_earned,notes,created_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.UserID, nullable(s.Location), s.StartTime, nullableStr(s.EndTime), s.Status, nullableStr(s.PausedAt),
		s.TotalPausedTime, s.PausedSeconds, s.ActiveMinutes, s.XPEarned, nullable(s.Notes), s.CreatedAt)
	return wrapUnique(err, "a session is already in progress")
}

func (r Repo) UpdateSession(ctx context.Context, s domain.ClimbingSession) error {
	res, err := r.q().ExecContext(ctx, `UPDATE climbing_sessions SET location=?, end_time=?, status=?, paused_at=?, total_paused_time=?, paused_seconds=?, active_minutes=?, xp_earned=?, notes=?, feedback=? WHERE id=?`,
		nullable(s.Location), nullableStr(s.EndTime), s.Status, nullableStr(s.PausedAt), s.TotalPausedTime,
		s.PausedSeconds, s.ActiveMinutes, s.XPEarned, nullable(s.Notes), nullable(s.Feedback), s.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetSession(ctx context.Context, id string) (domain.ClimbingSession, error) {
	return scanSession(r.q().QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM climbing_sessions WHERE id=?`, id))
}

// OpenSession returns the user's active or paused session.
func (r Repo) OpenSession(ctx context.Context, userID string) (domain.ClimbingSession, error) {
	return scanSession(r.q().QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM climbing_sessions WHERE user_id=? AND status IN ('active','paused') LIMIT 1`, userID))
}

type SessionFilters struct {
	UserID string
	Status string
	Limit  int
}

func (r Repo) ListSessions(ctx context.Context, f SessionFilters) ([]domain.ClimbingSession, error) {
	clauses := []string{"user_id=?"}
	args := []any{f.UserID}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	query := `SELECT ` + sessionColumns + ` FROM climbing_sessions WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY start_time DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ClimbingSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) CountCompletedSessions(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.q().QueryRowContext(ctx, `SELECT COUNT(*) FROM climbing_sessions WHERE user_id=? AND status='completed'`, userID).Scan(&n)
	return n, err
}

const problemColumns = `id,session_id,user_id,grade,grade_system,style_json,completed,attempts,xp,COALESCE(notes,''),created_at`

func scanProblem(row interface{ Scan(...any) error }) (domain.BoulderProblem, error) {
	var p domain.BoulderProblem
	var style string
	err := row.Scan(&p.ID, &p.SessionID, &p.UserID, &p.Grade, &p.GradeSystem, &style, &p.Completed, &p.Attempts, &p.XP, &p.Notes, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	p.Style = decodeStrings(style)
	return p, err
}

func (r Repo) InsertProblem(ctx context.Context, p domain.BoulderProblem) error {
	style, err := encodeStrings(p.Style)
	if err != nil {
		return err
	}
	_, err = r.q().ExecContext(ctx, `INSERT INTO boulder_problems(id,session_id,user_id,grade,grade_system,style_json,completed,attempts,xp,notes,created_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.SessionID, p.UserID, p.Grade, p.GradeSystem, style, p.Completed, p.Attempts, p.XP, nullable(p.Notes), p.CreatedAt)
	return err
}

func (r Repo) ListProblemsBySession(ctx context.Context, sessionID string) ([]domain.BoulderProblem, error) {
	return r.listProblems(ctx, `WHERE session_id=? ORDER BY created_at, id`, sessionID)
}

func (r Repo) ListProblemsByUser(ctx context.Context, userID string) ([]domain.BoulderProblem, error) {
	return r.listProblems(ctx, `WHERE user_id=? ORDER BY created_at, id`, userID)
}

func (r Repo) listProblems(ctx context.Context, where string, args ...any) ([]domain.BoulderProblem, error) {
	rows, err := r.q().QueryContext(ctx, `SELECT `+problemColumns+` FROM boulder_problems `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.BoulderProblem
	for rows.Next() {
		p, err := scanProblem(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// SumProblemXP returns the persisted XP over all of a user's problems.
func (r Repo) SumProblemXP(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.q().QueryRowContext(ctx, `SELECT COALESCE(SUM(xp),0) FROM boulder_problems WHERE user_id=?`, userID).Scan(&n)
	return n, err
}
