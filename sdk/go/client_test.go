package abysssdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"abyssclimber/internal/coach"
	"abyssclimber/internal/config"
	"abyssclimber/internal/db"
	"abyssclimber/internal/engine"
	"abyssclimber/internal/migrate"
	"abyssclimber/internal/server"
)

func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	cfg := config.Default()
	cfg.Auth.JWTSecret = "sdk-secret"
	e := engine.New(conn, cfg, coach.Static{}, zap.NewNop())
	handler, err := server.New(server.Config{Engine: e, BasePath: "/v0"})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientSessionFlow(t *testing.T) {
	srv := newAPI(t)
	ctx := context.Background()
	c := New(srv.URL)

	_, err := c.Register(ctx, "lyza", "hunter2hunter2")
	require.NoError(t, err)
	u, err := c.Login(ctx, "lyza", "hunter2hunter2")
	require.NoError(t, err)
	assert.Equal(t, "lyza", u.Username)
	require.NotEmpty(t, c.BearerToken)

	s, err := c.StartSession(ctx, "Idofront")
	require.NoError(t, err)
	assert.Equal(t, "active", s.Status)

	p, prog, err := c.LogProblem(ctx, s.ID, ProblemInput{Grade: "6A", GradeSystem: "Font", Completed: true})
	require.NoError(t, err)
	assert.Equal(t, "Font", p.GradeSystem)
	assert.Equal(t, p.XP, prog.TotalXP)

	_, err = c.PauseSession(ctx, s.ID)
	require.NoError(t, err)
	_, err = c.ResumeSession(ctx, s.ID)
	require.NoError(t, err)
	ended, _, err := c.EndSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", ended.Status)
	assert.Equal(t, p.XP, ended.XPEarned)

	progress, err := c.Progress(ctx)
	require.NoError(t, err)
	assert.Equal(t, p.XP, progress.TotalXP)
	assert.Equal(t, 1, progress.CurrentLayer)
}

func TestClientErrors(t *testing.T) {
	srv := newAPI(t)
	ctx := context.Background()
	c := New(srv.URL)

	_, err := c.Me(ctx)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "unauthorized", apiErr.Code)

	converted, err := c.ConvertGrade(ctx, "V5", "", "german")
	require.NoError(t, err)
	assert.Equal(t, "VIIIb", converted)
}
