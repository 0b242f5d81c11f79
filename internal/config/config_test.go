package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/v0", cfg.Server.BasePath)
	assert.Equal(t, 720*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "static", cfg.Coach.Provider)
	assert.Equal(t, 3, cfg.Quests.DailyCount)
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("server:\n  addr: 0.0.0.0:9000\nquests:\n  daily_count: 5\n"))
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, "/v0", cfg.Server.BasePath)
	assert.Equal(t, 5, cfg.Quests.DailyCount)
}

func TestValidateRejects(t *testing.T) {
	tests := map[string]string{
		"base path":      "server:\n  base_path: v0\n",
		"provider":       "coach:\n  provider: openai\n",
		"genai no model": "coach:\n  provider: genai\n  model: \"\"\n",
		"geocoding url":  "geocoding:\n  base_url: not-a-url\n",
		"daily count":    "quests:\n  daily_count: 40\n",
		"webhook url":    "webhooks:\n  - events: [quest.completed]\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.Coach.Provider = ""
	env := map[string]string{
		"ABYSS_JWT_SECRET":    "s3cret",
		"ABYSS_COACH_API_KEY": "key",
	}
	cfg.ApplyEnv(func(k string) string { return env[k] })
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "key", cfg.Coach.APIKey)
	assert.Equal(t, "genai", cfg.Coach.Provider)
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "abyss.yml"), []byte("coach:\n  provider: bogus\n"), 0o644))
	_, err = LoadOptional(dir)
	assert.Error(t, err)
}
