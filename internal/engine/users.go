package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"abyssclimber/internal/domain"
	"abyssclimber/internal/engine/auth"
	"abyssclimber/internal/events"
	"abyssclimber/internal/progression"
	"abyssclimber/internal/repo"
)

type RegisterOptions struct {
	Username    string `validate:"required,min=3,max=32,alphanum"`
	Password    string `validate:"required,min=8,max=72"`
	DisplayName string `validate:"max=64"`
}

func (e Engine) RegisterUser(ctx context.Context, opts RegisterOptions) (domain.User, error) {
	opts.Username = strings.ToLower(strings.TrimSpace(opts.Username))
	opts.DisplayName = strings.TrimSpace(opts.DisplayName)
	if err := check(opts); err != nil {
		return domain.User{}, err
	}
	hash, err := auth.HashPassword(opts.Password)
	if err != nil {
		return domain.User{}, err
	}
	now := stamp(e.now())
	u := domain.User{
		ID:           uuid.NewString(),
		Username:     opts.Username,
		DisplayName:  opts.DisplayName,
		PasswordHash: hash,
		CurrentLayer: progression.FirstLayer,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.WithTx(tx).InsertUser(ctx, u); err != nil {
		return domain.User{}, conflict(err)
	}
	if _, err := e.Repo.WithTx(tx).InsertTitle(ctx, domain.UserTitle{UserID: u.ID, Title: progression.WhistleInfo(0).Name, UnlockedAt: now}); err != nil {
		return domain.User{}, err
	}
	if err := e.journal().Append(ctx, tx, events.UserRegistered, u.ID, "user", u.ID, events.Payload{"username": u.Username}); err != nil {
		return domain.User{}, err
	}
	if _, _, err := e.ensureLayerQuest(ctx, tx, e.Repo.WithTx(tx), u.ID, u.CurrentLayer, e.now()); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	e.log().Info("user registered", zapUser(u.ID))
	return u, nil
}

// Authenticate checks a username and password.
func (e Engine) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	u, err := e.Repo.GetUserByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

type LoginResult struct {
	Token     string      `json:"token"`
	ExpiresAt string      `json:"expires_at" format:"date-time"`
	User      domain.User `json:"user"`
}

// Login authenticates and opens an auth session backing a bearer token.
func (e Engine) Login(ctx context.Context, username, password string) (LoginResult, error) {
	u, err := e.Authenticate(ctx, username, password)
	if err != nil {
		return LoginResult{}, err
	}
	now := e.now()
	sessionID := uuid.NewString()
	token, exp, err := e.Tokens.Issue(u.ID, u.Username, sessionID, now)
	if err != nil {
		return LoginResult{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return LoginResult{}, err
	}
	defer tx.Rollback()
	r := e.Repo.WithTx(tx)
	if _, err := r.DeleteExpiredAuthSessions(ctx, stamp(now)); err != nil {
		return LoginResult{}, err
	}
	if err := r.InsertAuthSession(ctx, domain.AuthSession{ID: sessionID, UserID: u.ID, CreatedAt: stamp(now), ExpiresAt: stamp(exp)}); err != nil {
		return LoginResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, ExpiresAt: stamp(exp), User: u}, nil
}

// VerifyToken resolves a bearer token to its user and auth session.
func (e Engine) VerifyToken(ctx context.Context, token string) (userID, sessionID string, err error) {
	now := e.now()
	claims, err := e.Tokens.Verify(token, now)
	if err != nil {
		return "", "", err
	}
	s, err := e.Repo.GetAuthSession(ctx, claims.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", "", auth.ErrSessionRevoked
	}
	if err != nil {
		return "", "", err
	}
	if s.RevokedAt != nil || s.UserID != claims.Subject {
		return "", "", auth.ErrSessionRevoked
	}
	if exp, err := parseStamp(s.ExpiresAt); err != nil || !now.Before(exp) {
		return "", "", auth.ErrSessionRevoked
	}
	return s.UserID, s.ID, nil
}

func (e Engine) Logout(ctx context.Context, sessionID string) error {
	err := e.Repo.RevokeAuthSession(ctx, sessionID, stamp(e.now()))
	if errors.Is(err, repo.ErrNotFound) {
		return auth.ErrSessionRevoked
	}
	return err
}

type APIKeyResult struct {
	Key    string        `json:"key"`
	APIKey domain.APIKey `json:"api_key"`
}

// CreateAPIKey issues a key; the plaintext is only returned here.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name string) (APIKeyResult, error) {
	if len(name) > 64 {
		return APIKeyResult{}, ValidationError{Field: "name", Message: "must be at most 64"}
	}
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return APIKeyResult{}, err
	}
	plain, err := auth.NewAPIKey()
	if err != nil {
		return APIKeyResult{}, err
	}
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: stamp(e.now()),
	}
	if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
		return APIKeyResult{}, err
	}
	return APIKeyResult{Key: plain, APIKey: key}, nil
}

func (e Engine) AuthenticateAPIKey(ctx context.Context, key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", auth.ErrInvalidCredentials
	}
	k, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(key))
	if errors.Is(err, repo.ErrNotFound) {
		return "", auth.ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	return k.UserID, nil
}

// Profile is a user with display names for derived ranks.
type Profile struct {
	domain.User
	WhistleName string `json:"whistle_name"`
	LayerName   string `json:"layer_name"`
}

func profileOf(u domain.User) Profile {
	return Profile{
		User:        u,
		WhistleName: progression.WhistleInfo(u.WhistleLevel).Name,
		LayerName:   progression.LayerInfo(u.CurrentLayer).Name,
	}
}

func (e Engine) GetProfile(ctx context.Context, userID string) (Profile, error) {
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	return profileOf(u), nil
}

type UpdateProfileOptions struct {
	DisplayName *string `validate:"omitempty,max=64"`
}

func (e Engine) UpdateProfile(ctx context.Context, userID string, opts UpdateProfileOptions) (Profile, error) {
	if opts.DisplayName != nil {
		v := strings.TrimSpace(*opts.DisplayName)
		opts.DisplayName = &v
	}
	if err := check(opts); err != nil {
		return Profile{}, err
	}
	if err := e.Repo.UpdateUserProfile(ctx, userID, repo.UserProfileUpdate{DisplayName: opts.DisplayName}, stamp(e.now())); err != nil {
		return Profile{}, err
	}
	return e.GetProfile(ctx, userID)
}

// SelectTitle displays an unlocked title; an empty title clears it.
func (e Engine) SelectTitle(ctx context.Context, userID, title string) (Profile, error) {
	title = strings.TrimSpace(title)
	if title != "" {
		ok, err := e.Repo.HasTitle(ctx, userID, title)
		if err != nil {
			return Profile{}, err
		}
		if !ok {
			return Profile{}, ValidationError{Field: "title", Message: "title has not been unlocked"}
		}
	}
	if err := e.Repo.UpdateUserProfile(ctx, userID, repo.UserProfileUpdate{SelectedTitle: &title}, stamp(e.now())); err != nil {
		return Profile{}, err
	}
	return e.GetProfile(ctx, userID)
}

func (e Engine) ListTitles(ctx context.Context, userID string) ([]domain.UserTitle, error) {
	return e.Repo.ListTitles(ctx, userID)
}

func (e Engine) ListAchievements(ctx context.Context, userID string) ([]domain.Achievement, error) {
	return e.Repo.ListAchievements(ctx, userID)
}

func (e Engine) ListEvents(ctx context.Context, userID string, limit int) ([]domain.Event, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return e.Repo.ListEvents(ctx, userID, limit)
}

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// SetProfileImage stores an uploaded image under the uploads directory and
// points the profile at it. The previous image file is removed.
func (e Engine) SetProfileImage(ctx context.Context, userID, contentType string, body io.Reader) (Profile, error) {
	ext, ok := imageExtensions[contentType]
	if !ok || !e.uploadAllowed(contentType) {
		return Profile{}, ValidationError{Field: "file", Message: fmt.Sprintf("unsupported image type %q", contentType)}
	}
	if e.Uploads == "" {
		return Profile{}, errors.New("uploads directory not configured")
	}
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	if err := os.MkdirAll(e.Uploads, 0o755); err != nil {
		return Profile{}, err
	}
	name := userID + "-" + uuid.NewString()[:8] + ext
	path := filepath.Join(e.Uploads, name)
	f, err := os.Create(path)
	if err != nil {
		return Profile{}, err
	}
	limit := e.settings().Uploads.MaxBytes
	if limit <= 0 {
		limit = 5 << 20
	}
	n, err := io.Copy(f, io.LimitReader(body, limit+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > limit {
		err = ValidationError{Field: "file", Message: fmt.Sprintf("image exceeds %d bytes", limit)}
	}
	if err != nil {
		_ = os.Remove(path)
		return Profile{}, err
	}
	url := "/uploads/" + name
	if err := e.Repo.UpdateUserProfile(ctx, userID, repo.UserProfileUpdate{ProfileImageURL: &url}, stamp(e.now())); err != nil {
		_ = os.Remove(path)
		return Profile{}, err
	}
	if old := strings.TrimPrefix(u.ProfileImageURL, "/uploads/"); old != "" && old != u.ProfileImageURL {
		_ = os.Remove(filepath.Join(e.Uploads, filepath.Base(old)))
	}
	return e.GetProfile(ctx, userID)
}

func (e Engine) uploadAllowed(contentType string) bool {
	allowed := e.settings().Uploads.AllowedTypes
	if len(allowed) == 0 {
		return true
	}
	for _, t := range allowed {
		if strings.EqualFold(t, contentType) {
			return true
		}
	}
	return false
}

func expiresIn(now time.Time, d time.Duration) *string {
	s := stamp(now.Add(d))
	return &s
}
