package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"abyssclimber/internal/domain"
)

const questColumns = `id,user_id,title,COALESCE(description,''),kind,layer,status,progress,max_progress,xp_reward,expires_at,created_at,completed_at`

func scanQuest(row interface{ Scan(...any) error }) (domain.Quest, error) {
	var q domain.Quest
	var layer sql.NullInt64
	var expires, completed sql.NullString
	err := row.Scan(&q.ID, &q.UserID, &q.Title, &q.Description, &q.Kind, &layer, &q.Status, &q.Progress,
		&q.MaxProgress, &q.XPReward, &expires, &q.CreatedAt, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return q, ErrNotFound
	}
	q.Layer = intPtr(layer)
	q.ExpiresAt = strPtr(expires)
	q.CompletedAt = strPtr(completed)
	return q, err
}

func (r Repo) InsertQuest(ctx context.Context, q domain.Quest) error {
	_, err := r.q().ExecContext(ctx, `INSERT INTO quests(id,user_id,title,description,kind,layer,status,progress,max_progress,xp_reward,expires_at,created_at,completed_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		q.ID, q.UserID, q.Title, nullable(q.Description), q.Kind, nullableInt(q.Layer), q.Status, q.Progress,
		q.MaxProgress, q.XPReward, nullableStr(q.ExpiresAt), q.CreatedAt, nullableStr(q.CompletedAt))
	return err
}

func (r Repo) UpdateQuest(ctx context.Context, q domain.Quest) error {
	res, err := r.q().ExecContext(ctx, `UPDATE quests SET status=?, progress=?, completed_at=? WHERE id=?`,
		q.Status, q.Progress, nullableStr(q.CompletedAt), q.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetQuest(ctx context.Context, id string) (domain.Quest, error) {
	return scanQuest(r.q().QueryRowContext(ctx, `SELECT `+questColumns+` FROM quests WHERE id=?`, id))
}

type QuestFilters struct {
	UserID string
	Status string
	Kind   string
}

func (r Repo) ListQuests(ctx context.Context, f QuestFilters) ([]domain.Quest, error) {
	var (
		clauses []string
		args    []any
	)
	if f.UserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Kind != "" {
		clauses = append(clauses, "kind=?")
		args = append(args, f.Kind)
	}
	query := `SELECT ` + questColumns + ` FROM quests`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`
	rows, err := r.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Quest
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, q)
	}
	return res, rows.Err()
}

// ExpiredActiveQuests returns active quests whose deadline is before now.
func (r Repo) ExpiredActiveQuests(ctx context.Context, now string) ([]domain.Quest, error) {
	rows, err := r.q().QueryContext(ctx, `SELECT `+questColumns+` FROM quests WHERE status='active' AND expires_at IS NOT NULL AND expires_at < ? ORDER BY expires_at`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Quest
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, q)
	}
	return res, rows.Err()
}

// SumCompletedQuestXP returns the reward total of a user's completed quests.
func (r Repo) SumCompletedQuestXP(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.q().QueryRowContext(ctx, `SELECT COALESCE(SUM(xp_reward),0) FROM quests WHERE user_id=? AND status='completed'`, userID).Scan(&n)
	return n, err
}

// CompletedLayerQuests returns the set of layers whose layer quest is done.
func (r Repo) CompletedLayerQuests(ctx context.Context, userID string) (map[int]bool, error) {
	rows, err := r.q().QueryContext(ctx, `SELECT DISTINCT layer FROM quests WHERE user_id=? AND kind='layer' AND status='completed' AND layer IS NOT NULL`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	done := map[int]bool{}
	for rows.Next() {
		var l int
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		done[l] = true
	}
	return done, rows.Err()
}
