package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"abyssclimber/internal/domain"
)

// Repo is the SQL store. The zero tx reads and writes through DB; WithTx
// scopes every call to a transaction.
type Repo struct {
	DB *sql.DB
	tx *sql.Tx
}

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx returns a Repo bound to tx.
func (r Repo) WithTx(tx *sql.Tx) Repo {
	return Repo{DB: r.DB, tx: tx}
}

func (r Repo) q() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.DB
}

// isUniqueViolation reports a sqlite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func wrapUnique(err error, what string) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", what, ErrConflict)
	}
	return err
}

const userColumns = `id,username,COALESCE(display_name,''),password_hash,total_xp,whistle_level,current_layer,COALESCE(profile_image_url,''),COALESCE(selected_title,''),created_at,updated_at`

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash, &u.TotalXP, &u.WhistleLevel, &u.CurrentLayer,
		&u.ProfileImageURL, &u.SelectedTitle, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	_, err := r.q().ExecContext(ctx, `INSERT INTO users(id,username,display_name,password_hash,total_xp,whistle_level,current_layer,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		u.ID, u.Username, nullable(u.DisplayName), u.PasswordHash, u.TotalXP, u.WhistleLevel, u.CurrentLayer, u.CreatedAt, u.UpdatedAt)
	return wrapUnique(err, "username already taken")
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.q().QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return scanUser(r.q().QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=?`, username))
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.q().QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY total_xp DESC, username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// UserProfileUpdate carries optional profile fields.
type UserProfileUpdate struct {
	DisplayName     *string
	ProfileImageURL *string
	SelectedTitle   *string
}

func (r Repo) UpdateUserProfile(ctx context.Context, id string, upd UserProfileUpdate, updatedAt string) error {
	var (
		fields []string
		args   []any
	)
	if upd.DisplayName != nil {
		fields = append(fields, "display_name=?")
		args = append(args, nullable(*upd.DisplayName))
	}
	if upd.ProfileImageURL != nil {
		fields = append(fields, "profile_image_url=?")
		args = append(args, nullable(*upd.ProfileImageURL))
	}
	if upd.SelectedTitle != nil {
		fields = append(fields, "selected_title=?")
		args = append(args, nullable(*upd.SelectedTitle))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, updatedAt, id)
	res, err := r.q().ExecContext(ctx, fmt.Sprintf(`UPDATE users SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUserProgression overwrites the derived progression fields.
func (r Repo) UpdateUserProgression(ctx context.Context, id string, totalXP, whistle, layer int, updatedAt string) error {
	res, err := r.q().ExecContext(ctx, `UPDATE users SET total_xp=?, whistle_level=?, current_layer=?, updated_at=? WHERE id=?`,
		totalXP, whistle, layer, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableStr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	s := ns.String
	return &s
}

func intPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func encodeStrings(in []string) (string, error) {
	if in == nil {
		in = []string{}
	}
	b, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeStrings(raw string) []string {
	out := []string{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}
