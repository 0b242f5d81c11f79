package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"abyssclimber/internal/coach"
	"abyssclimber/internal/config"
	"abyssclimber/internal/db"
	"abyssclimber/internal/engine"
	"abyssclimber/internal/geo"
	"abyssclimber/internal/migrate"
)

// Options controls how a workspace is opened.
type Options struct {
	Workspace string
	// Getenv overrides os.Getenv for secret lookup.
	Getenv func(string) string
	Logger *zap.Logger
}

// Runtime is an opened workspace: database, config and the services built
// on top of it. Close releases the database.
type Runtime struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Engine    engine.Engine
	Geo       *geo.Client
	Logger    *zap.Logger
}

func (rt *Runtime) Close() error {
	if rt == nil || rt.DB == nil {
		return nil
	}
	return rt.DB.Close()
}

// Open loads abyss.yml (defaults when absent), applies environment secrets,
// migrates the database and wires the engine with its coach.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(getenv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if _, err := db.EnsureWorkspace(opts.Workspace); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	applied, err := migrate.Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("applied migrations", zap.Strings("versions", applied))
	}
	c, err := NewCoach(ctx, cfg.Coach, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	e := engine.New(conn, cfg, c, logger)
	e.Uploads = db.UploadsDir(opts.Workspace)
	rt := &Runtime{
		Workspace: opts.Workspace,
		Config:    cfg,
		DB:        conn,
		Engine:    e,
		Logger:    logger,
	}
	if strings.TrimSpace(cfg.Geocoding.BaseURL) != "" {
		rt.Geo = geo.New(cfg.Geocoding.BaseURL, cfg.Geocoding.UserAgent, cfg.Geocoding.Timeout)
	}
	return rt, nil
}

// NewCoach picks the coach for cfg. The LLM coach always falls back to the
// rule-based one so quests and feedback keep working offline.
func NewCoach(ctx context.Context, cfg config.CoachConfig, logger *zap.Logger) (coach.Coach, error) {
	switch cfg.Provider {
	case "", "static":
		return coach.Static{}, nil
	case "genai":
		llm, err := coach.NewGenAI(ctx, cfg.APIKey, cfg.Model, cfg.Timeout, logger)
		if err != nil {
			return nil, fmt.Errorf("coach: %w", err)
		}
		return coach.Fallback{Primary: llm, Secondary: coach.Static{}, Logger: logger}, nil
	default:
		return nil, fmt.Errorf("coach: unknown provider %q", cfg.Provider)
	}
}
