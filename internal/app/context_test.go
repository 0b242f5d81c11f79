package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"abyssclimber/internal/coach"
	"abyssclimber/internal/config"
	"abyssclimber/internal/engine"
)

func env(vals map[string]string) func(string) string {
	return func(k string) string { return vals[k] }
}

func TestOpenWithoutConfigFile(t *testing.T) {
	ws := t.TempDir()
	rt, err := Open(context.Background(), Options{Workspace: ws, Getenv: env(map[string]string{"ABYSS_JWT_SECRET": "from-env"})})
	require.NoError(t, err)
	defer rt.Close()

	assert.Equal(t, "from-env", rt.Config.Auth.JWTSecret)
	assert.NotNil(t, rt.Geo)
	assert.IsType(t, coach.Static{}, rt.Engine.Coach)
	assert.Equal(t, filepath.Join(ws, ".abyss", "uploads"), rt.Engine.Uploads)

	u, err := rt.Engine.RegisterUser(context.Background(), engine.RegisterOptions{Username: "wazukyan", Password: "hunter2hunter2"})
	require.NoError(t, err)
	res, err := rt.Engine.Login(context.Background(), "wazukyan", "hunter2hunter2")
	require.NoError(t, err)
	assert.Equal(t, u.ID, res.User.ID)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(ws), []byte("coach:\n  provider: oracle\n"), 0o644))
	_, err := Open(context.Background(), Options{Workspace: ws, Getenv: env(nil)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "coach.provider")
}

func TestNewCoach(t *testing.T) {
	ctx := context.Background()
	c, err := NewCoach(ctx, config.CoachConfig{Provider: "static"}, nil)
	require.NoError(t, err)
	assert.IsType(t, coach.Static{}, c)

	_, err = NewCoach(ctx, config.CoachConfig{Provider: "genai", Model: "gemini-2.5-flash"}, nil)
	assert.Error(t, err, "genai without an API key")

	_, err = NewCoach(ctx, config.CoachConfig{Provider: "oracle"}, nil)
	assert.Error(t, err)
}
