package engine

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"abyssclimber/internal/coach"
	"abyssclimber/internal/config"
	"abyssclimber/internal/engine/auth"
	"abyssclimber/internal/events"
	"abyssclimber/internal/repo"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	Coach   coach.Coach
	Tokens  auth.Issuer
	Uploads string
	Logger  *zap.Logger
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config, c coach.Coach, logger *zap.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if c == nil {
		c = coach.Static{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Config: cfg,
		Coach:  c,
		Tokens: auth.Issuer{Secret: cfg.Auth.JWTSecret, TTL: cfg.Auth.TokenTTL},
		Logger: logger,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// journal returns the event writer stamped with the engine clock.
func (e Engine) journal() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

// settings returns the engine config, or the defaults for a bare Engine.
func (e Engine) settings() *config.Config {
	if e.Config != nil {
		return e.Config
	}
	return config.Default()
}

func (e Engine) log() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

func zapUser(id string) zap.Field {
	return zap.String("user_id", id)
}

// ValidationError reports malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ConflictError reports an operation that is invalid in the current state.
type ConflictError struct {
	Message string
}

func (e ConflictError) Error() string { return e.Message }

var validate = validator.New()

// check runs struct validation and converts the first failure.
func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return ValidationError{Field: toSnake(fe.Field()), Message: describe(fe)}
	}
	return ValidationError{Message: err.Error()}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "alphanum":
		return "must contain only letters and digits"
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "is invalid"
	}
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// conflict converts a repository uniqueness failure into a ConflictError.
func conflict(err error) error {
	if errors.Is(err, repo.ErrConflict) {
		msg := strings.TrimSuffix(err.Error(), ": "+repo.ErrConflict.Error())
		return ConflictError{Message: msg}
	}
	return err
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseStamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func parseStampPtr(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseStamp(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optionalInt(v int) *int {
	return &v
}
