package repo

import (
	"context"
	"database/sql"
	"errors"

	"abyssclimber/internal/domain"
)

// AddSkillXP creates the skill on first use and adds xp to it.
func (r Repo) AddSkillXP(ctx context.Context, id, userID, name string, xp int, levelFor func(int) int, now string) (domain.Skill, error) {
	s, err := r.GetSkill(ctx, userID, name)
	if errors.Is(err, ErrNotFound) {
		s = domain.Skill{ID: id, UserID: userID, Name: name}
		s.XP = xp
		s.Level = levelFor(s.XP)
		s.UpdatedAt = now
		_, err = r.q().ExecContext(ctx, `INSERT INTO skills(id,user_id,name,xp,level,updated_at) VALUES (?,?,?,?,?,?)`,
			s.ID, s.UserID, s.Name, s.XP, s.Level, s.UpdatedAt)
		return s, err
	}
	if err != nil {
		return s, err
	}
	s.XP += xp
	s.Level = levelFor(s.XP)
	s.UpdatedAt = now
	_, err = r.q().ExecContext(ctx, `UPDATE skills SET xp=?, level=?, updated_at=? WHERE id=?`, s.XP, s.Level, s.UpdatedAt, s.ID)
	return s, err
}

func (r Repo) GetSkill(ctx context.Context, userID, name string) (domain.Skill, error) {
	var s domain.Skill
	err := r.q().QueryRowContext(ctx, `SELECT id,user_id,name,xp,level,updated_at FROM skills WHERE user_id=? AND name=?`, userID, name).
		Scan(&s.ID, &s.UserID, &s.Name, &s.XP, &s.Level, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) ListSkills(ctx context.Context, userID string) ([]domain.Skill, error) {
	rows, err := r.q().QueryContext(ctx, `SELECT id,user_id,name,xp,level,updated_at FROM skills WHERE user_id=? ORDER BY xp DESC, name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Skill
	for rows.Next() {
		var s domain.Skill
		if err := rows.Scan(&s.ID, &s.UserID, &s.Name, &s.XP, &s.Level, &s.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// InsertAchievement stores an unlock. It reports false when the user already
// holds the achievement.
func (r Repo) InsertAchievement(ctx context.Context, a domain.Achievement) (bool, error) {
	res, err := r.q().ExecContext(ctx, `INSERT OR IGNORE INTO achievements(id,user_id,key,name,description,unlocked_at) VALUES (?,?,?,?,?,?)`,
		a.ID, a.UserID, a.Key, a.Name, nullable(a.Description), a.UnlockedAt)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r Repo) ListAchievements(ctx context.Context, userID string) ([]domain.Achievement, error) {
	rows, err := r.q().QueryContext(ctx, `SELECT id,user_id,key,name,COALESCE(description,''),unlocked_at FROM achievements WHERE user_id=? ORDER BY unlocked_at, key`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Achievement
	for rows.Next() {
		var a domain.Achievement
		if err := rows.Scan(&a.ID, &a.UserID, &a.Key, &a.Name, &a.Description, &a.UnlockedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// InsertTitle grants a title; granting twice is a no-op.
func (r Repo) InsertTitle(ctx context.Context, t domain.UserTitle) (bool, error) {
	res, err := r.q().ExecContext(ctx, `INSERT OR IGNORE INTO user_titles(user_id,title,unlocked_at) VALUES (?,?,?)`, t.UserID, t.Title, t.UnlockedAt)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r Repo) ListTitles(ctx context.Context, userID string) ([]domain.UserTitle, error) {
	rows, err := r.q().QueryContext(ctx, `SELECT user_id,title,unlocked_at FROM user_titles WHERE user_id=? ORDER BY unlocked_at, title`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.UserTitle
	for rows.Next() {
		var t domain.UserTitle
		if err := rows.Scan(&t.UserID, &t.Title, &t.UnlockedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) HasTitle(ctx context.Context, userID, title string) (bool, error) {
	var n int
	err := r.q().QueryRowContext(ctx, `SELECT 1 FROM user_titles WHERE user_id=? AND title=?`, userID, title).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}
