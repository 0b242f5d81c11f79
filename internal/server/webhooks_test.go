package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"abyssclimber/internal/coach"
	"abyssclimber/internal/config"
	"abyssclimber/internal/db"
	"abyssclimber/internal/engine"
	"abyssclimber/internal/migrate"
)

type delivery struct {
	event     string
	signature string
	body      []byte
}

func TestWebhookDispatcherDeliversSignedEvents(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))

	received := make(chan delivery, 16)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- delivery{event: r.Header.Get("X-Abyss-Event"), signature: r.Header.Get(SignatureHeader), body: body}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	ctx := context.Background()
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Auth.JWTSecret = "hooks"
	cfg.Webhooks = []config.WebhookConfig{{URL: hook.URL, Secret: "s3cret", Events: []string{"session.*"}}}
	e := engine.New(conn, cfg, coach.Static{}, zap.NewNop())

	u, err := e.RegisterUser(ctx, engine.RegisterOptions{Username: "belaf", Password: "hunter2hunter2"})
	require.NoError(t, err)

	d, err := NewWebhookDispatcher(ctx, e, zap.NewNop())
	require.NoError(t, err)
	require.True(t, d.Enabled())
	d.Interval = 10 * time.Millisecond

	_, err = e.StartSession(ctx, engine.StartSessionOptions{UserID: u.ID, Location: "Idofront"})
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- d.Run(runCtx) }()

	var got delivery
	select {
	case got = <-received:
	case <-time.After(5 * time.Second):
		cancel()
		<-done
		t.Fatal("no webhook delivery")
	}
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, "session.started", got.event)
	assert.Equal(t, Sign("s3cret", got.body), got.signature)
	var evt webhookEvent
	require.NoError(t, json.Unmarshal(got.body, &evt))
	assert.Equal(t, u.ID, evt.UserID)
	assert.Equal(t, "session", evt.EntityKind)

	// registration happened before the dispatcher existed
	for len(received) > 0 {
		assert.NotEqual(t, "user.registered", (<-received).event)
	}
}

func TestDisabledWebhooks(t *testing.T) {
	off := false
	d := &WebhookDispatcher{webhooks: []config.WebhookConfig{
		{URL: "http://example.invalid", Enabled: &off},
		{URL: "  "},
	}}
	assert.False(t, d.Enabled())
}

func TestEventFilter(t *testing.T) {
	cases := []struct {
		name   string
		events []string
		evt    string
		want   bool
	}{
		{"empty matches all", nil, "quest.completed", true},
		{"blank entries match all", []string{" "}, "quest.completed", true},
		{"exact", []string{"quest.completed"}, "quest.completed", true},
		{"exact miss", []string{"quest.completed"}, "quest.failed", false},
		{"wildcard", []string{"user.*"}, "user.layer.advanced", true},
		{"wildcard miss", []string{"user.*"}, "session.started", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, newEventFilter(tc.events).match(tc.evt))
		})
	}
}
