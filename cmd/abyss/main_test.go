package main

import (
	"context"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"abyssclimber/internal/app"
	"abyssclimber/internal/engine"
)

func TestCurrentUser(t *testing.T) {
	ctx := context.Background()
	rt, err := app.Open(ctx, app.Options{Workspace: t.TempDir(), Getenv: func(string) string { return "" }})
	require.NoError(t, err)
	defer rt.Close()
	t.Cleanup(func() { viper.Set("user", "") })

	_, err = currentUser(ctx, rt.Engine)
	assert.ErrorContains(t, err, "no climbers yet")

	riko, err := rt.Engine.RegisterUser(ctx, engine.RegisterOptions{Username: "riko", Password: "whistle-red"})
	require.NoError(t, err)
	u, err := currentUser(ctx, rt.Engine)
	require.NoError(t, err)
	assert.Equal(t, riko.ID, u.ID)

	reg, err := rt.Engine.RegisterUser(ctx, engine.RegisterOptions{Username: "reg", Password: "armextend"})
	require.NoError(t, err)
	_, err = currentUser(ctx, rt.Engine)
	assert.ErrorContains(t, err, "pass --user")

	viper.Set("user", " Reg ")
	u, err = currentUser(ctx, rt.Engine)
	require.NoError(t, err)
	assert.Equal(t, reg.ID, u.ID)
}

func TestCommandTree(t *testing.T) {
	registerCommands()
	for _, path := range [][]string{
		{"serve"},
		{"session", "start"},
		{"session", "pause"},
		{"problem", "log"},
		{"quest", "complete"},
		{"grade", "convert"},
		{"xp", "audit"},
		{"coach", "workout"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}
