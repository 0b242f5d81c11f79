package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"abyssclimber/internal/coach"
	"abyssclimber/internal/config"
	"abyssclimber/internal/db"
	"abyssclimber/internal/domain"
	"abyssclimber/internal/engine"
	"abyssclimber/internal/geo"
	"abyssclimber/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
}

type fakePlaces struct {
	places []geo.Place
	err    error
	query  string
}

func (f *fakePlaces) Search(_ context.Context, q string, limit int) ([]geo.Place, error) {
	f.query = q
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.places) {
		return f.places[:limit], nil
	}
	return f.places, nil
}

func newTestServer(t *testing.T, places PlaceSearcher) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	require.NoError(t, err)
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	cfg := config.Default()
	cfg.Auth.JWTSecret = "server-test-secret"
	e := engine.New(conn, cfg, coach.Static{}, zap.NewNop())
	e.Uploads = db.UploadsDir(workspace)
	handler, err := New(Config{Engine: e, BasePath: "/v0", Geo: places})
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		ln.Close()
		conn.Close()
	})
	return &testServer{URL: "http://" + ln.Addr().String(), Engine: e, client: &http.Client{}}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// signup registers a climber and returns a bearer token for them.
func (s *testServer) signup(t *testing.T, username string) string {
	t.Helper()
	res, data := doJSON(t, s.client, http.MethodPost, s.URL+"/v0/auth/register", map[string]any{
		"username": username,
		"password": "hunter2hunter2",
	}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	res, data = doJSON(t, s.client, http.MethodPost, s.URL+"/v0/auth/login", map[string]any{
		"username": username,
		"password": "hunter2hunter2",
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var login engine.LoginResult
	require.NoError(t, json.Unmarshal(data, &login))
	require.NotEmpty(t, login.Token)
	return login.Token
}

func decodeError(t *testing.T, data []byte) apiError {
	t.Helper()
	var body apiError
	require.NoError(t, json.Unmarshal(data, &body), string(data))
	return body
}

func TestHealthAndAuthRequired(t *testing.T) {
	srv := newTestServer(t, nil)

	res, data := doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/me", nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	body := decodeError(t, data)
	assert.Equal(t, "unauthorized", body.Code)
	assert.NotEmpty(t, body.Message)

	res, _ = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/me", nil, bearer("not-a-token"))
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestRegisterLoginLogout(t *testing.T) {
	srv := newTestServer(t, nil)
	token := srv.signup(t, "nanachi")

	res, data := doJSON(t, srv.client, http.MethodPost, srv.URL+"/v0/auth/register", map[string]any{
		"username": "nanachi",
		"password": "hunter2hunter2",
	}, nil)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	assert.Equal(t, "conflict", decodeError(t, data).Code)

	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v0/auth/login", map[string]any{
		"username": "nanachi",
		"password": "wrong-password",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode, string(data))

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/me", nil, bearer(token))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var profile engine.Profile
	require.NoError(t, json.Unmarshal(data, &profile))
	assert.Equal(t, "nanachi", profile.Username)
	assert.Equal(t, 1, profile.CurrentLayer)
	assert.Equal(t, "Bell", profile.WhistleName)

	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v0/auth/logout", nil, bearer(token))
	require.Equal(t, http.StatusNoContent, res.StatusCode, string(data))

	res, _ = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/me", nil, bearer(token))
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestSchemaValidationIsBadRequest(t *testing.T) {
	srv := newTestServer(t, nil)
	res, data := doJSON(t, srv.client, http.MethodPost, srv.URL+"/v0/auth/register", map[string]any{
		"username": "riko",
	}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	body := decodeError(t, data)
	assert.Equal(t, "bad_request", body.Code)

	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v0/auth/register", map[string]any{
		"username": "ri",
		"password": "hunter2hunter2",
	}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	body = decodeError(t, data)
	assert.Equal(t, "invalid_input", body.Code)
	assert.Equal(t, "username", body.Details["field"])
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)
	token := srv.signup(t, "riko")
	auth := bearer(token)

	res, data := doJSON(t, srv.client, http.MethodPost, srv.URL+"/v0/sessions", map[string]any{"location": "Orth"}, auth)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var session engine.SessionView
	require.NoError(t, json.Unmarshal(data, &session))
	assert.Equal(t, "active", session.Status)

	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v0/sessions", map[string]any{}, auth)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	assert.NotEmpty(t, decodeError(t, data).Message)

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/sessions/active", nil, auth)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	base := srv.URL + "/v0/sessions/" + session.ID
	res, data = doJSON(t, srv.client, http.MethodPost, base+"/problems", map[string]any{
		"grade":     "V3",
		"completed": true,
		"style":     []string{"Crimpy"},
	}, auth)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var logged engine.ProblemResult
	require.NoError(t, json.Unmarshal(data, &logged))
	assert.Greater(t, logged.Problem.XP, 0)
	assert.Equal(t, 1, logged.Problem.Attempts)
	assert.Equal(t, []string{"crimpy"}, logged.Problem.Style)

	res, data = doJSON(t, srv.client, http.MethodPost, base+"/problems", map[string]any{
		"grade":     "V3",
		"completed": false,
		"attempts":  0,
	}, auth)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, srv.client, http.MethodPost, base+"/pause", nil, auth)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &session))
	assert.Equal(t, "paused", session.Status)

	res, data = doJSON(t, srv.client, http.MethodPost, base+"/pause", nil, auth)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))

	res, data = doJSON(t, srv.client, http.MethodPost, base+"/resume", nil, auth)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, srv.client, http.MethodPost, base+"/end", nil, auth)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var ended engine.EndResult
	require.NoError(t, json.Unmarshal(data, &ended))
	assert.Equal(t, "completed", ended.Session.Status)
	assert.Equal(t, logged.Problem.XP, ended.Session.XPEarned)

	res, data = doJSON(t, srv.client, http.MethodGet, base+"/feedback", nil, auth)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Contains(t, string(data), "Keep climbing")

	res, data = doJSON(t, srv.client, http.MethodGet, base+"/problems", nil, auth)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var problems []domain.BoulderProblem
	require.NoError(t, json.Unmarshal(data, &problems))
	assert.Len(t, problems, 1)

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/sessions?status=completed", nil, auth)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var listed []engine.SessionView
	require.NoError(t, json.Unmarshal(data, &listed))
	require.Len(t, listed, 1)

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/skills", nil, auth)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var skills []domain.Skill
	require.NoError(t, json.Unmarshal(data, &skills))
	require.Len(t, skills, 1)
	assert.Equal(t, "crimpy", skills[0].Name)

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/me/progress", nil, auth)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var progress engine.ProgressView
	require.NoError(t, json.Unmarshal(data, &progress))
	assert.Equal(t, logged.Problem.XP, progress.TotalXP)
}

func TestSessionOwnership(t *testing.T) {
	srv := newTestServer(t, nil)
	owner := bearer(srv.signup(t, "reg"))
	other := bearer(srv.signup(t, "mitty"))

	res, data := doJSON(t, srv.client, http.MethodPost, srv.URL+"/v0/sessions", nil, owner)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var session engine.SessionView
	require.NoError(t, json.Unmarshal(data, &session))

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/sessions/"+session.ID, nil, other)
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))
	assert.Equal(t, "forbidden", decodeError(t, data).Code)

	res, _ = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/sessions/missing", nil, owner)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestQuestEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)
	auth := bearer(srv.signup(t, "ozen"))

	res, data := doJSON(t, srv.client, http.MethodPost, srv.URL+"/v0/quests/generate", nil, auth)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var generated []domain.Quest
	require.NoError(t, json.Unmarshal(data, &generated))
	assert.NotEmpty(t, generated)

	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v0/quests", map[string]any{
		"title":        "Hangboard block",
		"max_progress": 2,
		"xp_reward":    40,
	}, auth)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var quest domain.Quest
	require.NoError(t, json.Unmarshal(data, &quest))

	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v0/quests/"+quest.ID+"/progress", nil, auth)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &quest))
	assert.Equal(t, 1, quest.Progress)

	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v0/quests/"+quest.ID+"/complete", nil, auth)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var done engine.QuestResult
	require.NoError(t, json.Unmarshal(data, &done))
	assert.Equal(t, "completed", done.Quest.Status)
	assert.Equal(t, 40, done.Progression.TotalXP)

	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v0/quests/"+quest.ID+"/discard", nil, auth)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/quests?status=completed", nil, auth)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var completed []domain.Quest
	require.NoError(t, json.Unmarshal(data, &completed))
	require.Len(t, completed, 1)
	assert.Equal(t, quest.ID, completed[0].ID)
}

func TestGradeConvertIsPublic(t *testing.T) {
	srv := newTestServer(t, nil)
	res, data := doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/grades/convert?grade=V4&from=V-Scale&to=Font", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var conv GradeConversion
	require.NoError(t, json.Unmarshal(data, &conv))
	assert.Equal(t, "6B", conv.Converted)
	assert.True(t, conv.Known)

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/grades/convert?grade=7A&from=Font&to=german", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &conv))
	assert.Equal(t, "VIIIc", conv.Converted)

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/grades/convert?grade=V4&from=yds", nil, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	assert.Equal(t, "from", decodeError(t, data).Details["field"])
}

func TestAPIKeyAuth(t *testing.T) {
	srv := newTestServer(t, nil)
	auth := bearer(srv.signup(t, "prushka"))

	res, data := doJSON(t, srv.client, http.MethodPost, srv.URL+"/v0/me/api-keys", map[string]any{"name": "watch"}, auth)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var key engine.APIKeyResult
	require.NoError(t, json.Unmarshal(data, &key))
	require.True(t, strings.HasPrefix(key.Key, "abk_"))

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": key.Key})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Contains(t, string(data), `"username":"prushka"`)

	res, _ = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": "abk_nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v0/auth/logout", nil, map[string]string{"X-Api-Key": key.Key})
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
}

func TestAvatarUpload(t *testing.T) {
	srv := newTestServer(t, nil)
	token := srv.signup(t, "marulk")

	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="me.png"`)
	h.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(png)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v0/me/avatar", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := srv.client.Do(req)
	require.NoError(t, err)
	data, _ := io.ReadAll(res.Body)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var profile engine.Profile
	require.NoError(t, json.Unmarshal(data, &profile))
	require.True(t, strings.HasPrefix(profile.ProfileImageURL, "/uploads/"), profile.ProfileImageURL)

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+profile.ProfileImageURL, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, png, data)

	req, err = http.NewRequest(http.MethodPost, srv.URL+"/v0/me/avatar", strings.NewReader("plain"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Authorization", "Bearer "+token)
	res, err = srv.client.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestLocationSearch(t *testing.T) {
	places := &fakePlaces{places: []geo.Place{
		{ID: "1", Name: "Orth Boulders", Lat: 1, Lon: 2},
		{ID: "2", Name: "Orth Annex", Lat: 1, Lon: 2},
	}}
	srv := newTestServer(t, places)
	auth := bearer(srv.signup(t, "kiyui"))

	res, data := doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/locations/search?q=orth&limit=1", nil, auth)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var got []geo.Place
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "orth", places.query)

	places.err = errors.New("upstream down")
	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/locations/search?q=orth", nil, auth)
	require.Equal(t, http.StatusBadGateway, res.StatusCode, string(data))
	assert.Equal(t, "upstream_error", decodeError(t, data).Code)
}

func TestOpenAPIDocument(t *testing.T) {
	srv := newTestServer(t, nil)
	res, data := doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/v0/sessions/{id}/problems")
	assert.Contains(t, paths, "/v0/quests/generate")
}

func TestOptionalRequestBodies(t *testing.T) {
	srv := newTestServer(t, nil)
	auth := bearer(srv.signup(t, "faputa"))

	res, data := doJSON(t, srv.client, http.MethodPost, srv.URL+"/v0/me/api-keys", nil, auth)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var key engine.APIKeyResult
	require.NoError(t, json.Unmarshal(data, &key))
	assert.NotEmpty(t, key.Key)

	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v0/sessions", map[string]any{"location": "Belchero"}, auth)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var session engine.SessionView
	require.NoError(t, json.Unmarshal(data, &session))
	assert.Equal(t, "Belchero", session.Location)

	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v0/sessions/"+session.ID+"/end", nil, auth)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v0/sessions", nil, auth)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &session))
	assert.Empty(t, session.Location)
}

func TestUploadsDirectoryIsNotListed(t *testing.T) {
	srv := newTestServer(t, nil)
	require.NoError(t, os.MkdirAll(srv.Engine.Uploads, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srv.Engine.Uploads, "user-1234-abcd.png"), []byte("png"), 0o644))

	res, data := doJSON(t, srv.client, http.MethodGet, srv.URL+"/uploads/", nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.NotContains(t, string(data), "user-1234")

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/uploads/user-1234-abcd.png", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "png", string(data))
}

func TestCredentialLookupFailureIsServerError(t *testing.T) {
	srv := newTestServer(t, nil)
	token := srv.signup(t, "wazukyan")
	res, data := doJSON(t, srv.client, http.MethodPost, srv.URL+"/v0/me/api-keys", map[string]any{"name": "cli"}, bearer(token))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var key engine.APIKeyResult
	require.NoError(t, json.Unmarshal(data, &key))

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/me", nil, bearer("not-a-jwt"))
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "invalid_credentials", decodeError(t, data).Code)

	require.NoError(t, srv.Engine.DB.Close())

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/me", nil, bearer(token))
	require.Equal(t, http.StatusInternalServerError, res.StatusCode, string(data))
	assert.Equal(t, "internal_error", decodeError(t, data).Code)

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": key.Key})
	require.Equal(t, http.StatusInternalServerError, res.StatusCode, string(data))
	assert.Equal(t, "internal_error", decodeError(t, data).Code)
}
