package abysssdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Abyss Climber HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// User is the climber profile (partial).
type User struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	DisplayName     string `json:"display_name,omitempty"`
	TotalXP         int    `json:"total_xp"`
	WhistleLevel    int    `json:"whistle_level"`
	WhistleName     string `json:"whistle_name,omitempty"`
	CurrentLayer    int    `json:"current_layer"`
	LayerName       string `json:"layer_name,omitempty"`
	SelectedTitle   string `json:"selected_title,omitempty"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
}

// Session is a climbing session with its live clock.
type Session struct {
	ID                 string `json:"id"`
	Status             string `json:"status"`
	Location           string `json:"location,omitempty"`
	StartTime          string `json:"start_time"`
	EndTime            string `json:"end_time,omitempty"`
	TotalPausedMinutes int    `json:"total_paused_time"`
	ActiveMinutes      int    `json:"active_minutes"`
	XPEarned           int    `json:"xp_earned"`
	Feedback           string `json:"feedback,omitempty"`
	ElapsedMinutes     int    `json:"elapsed_minutes"`
	Duration           string `json:"duration"`
}

// Problem is a logged boulder problem.
type Problem struct {
	ID          string   `json:"id"`
	SessionID   string   `json:"session_id"`
	Grade       string   `json:"grade"`
	GradeSystem string   `json:"grade_system"`
	Style       []string `json:"style"`
	Completed   bool     `json:"completed"`
	Attempts    int      `json:"attempts"`
	XP          int      `json:"xp"`
}

// ProblemInput describes a problem to log. Attempts defaults to 1.
type ProblemInput struct {
	Grade       string   `json:"grade"`
	GradeSystem string   `json:"grade_system,omitempty"`
	Style       []string `json:"style,omitempty"`
	Completed   bool     `json:"completed"`
	Attempts    int      `json:"attempts,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

// Progression is the change a write made to the climber's standing.
type Progression struct {
	TotalXP         int  `json:"total_xp"`
	XPGained        int  `json:"xp_gained"`
	WhistleLevel    int  `json:"whistle_level"`
	WhistlePromoted bool `json:"whistle_promoted"`
	CurrentLayer    int  `json:"current_layer"`
	LayerAdvanced   bool `json:"layer_advanced"`
}

type Quest struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Kind        string `json:"kind"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	MaxProgress int    `json:"max_progress"`
	XPReward    int    `json:"xp_reward"`
}

// Progress is the read model behind GET /me/progress (partial).
type Progress struct {
	TotalXP      int    `json:"total_xp"`
	CurrentLayer int    `json:"current_layer"`
	LayerName    string `json:"layer_name"`
	CanAdvance   bool   `json:"can_advance"`
	Whistle      struct {
		Level int    `json:"level"`
		Name  string `json:"name"`
	} `json:"whistle"`
	HighestGrade string `json:"highest_grade,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login exchanges credentials for a bearer token and keeps it on the client.
func (c *Client) Login(ctx context.Context, username, password string) (User, error) {
	var resp struct {
		Token string `json:"token"`
		User  User   `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "auth/login", map[string]any{"username": username, "password": password}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp.User, err
}

// Register creates a climber account.
func (c *Client) Register(ctx context.Context, username, password string) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodPost, "auth/register", map[string]any{"username": username, "password": password}, &resp)
	return resp, err
}

func (c *Client) Me(ctx context.Context) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

func (c *Client) Progress(ctx context.Context) (Progress, error) {
	var resp Progress
	err := c.do(ctx, http.MethodGet, "me/progress", nil, &resp)
	return resp, err
}

// StartSession opens a session at location.
func (c *Client) StartSession(ctx context.Context, location string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, "sessions", map[string]any{"location": location}, &resp)
	return resp, err
}

func (c *Client) ActiveSession(ctx context.Context) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodGet, "sessions/active", nil, &resp)
	return resp, err
}

func (c *Client) PauseSession(ctx context.Context, id string) (Session, error) {
	return c.sessionAction(ctx, id, "pause")
}

func (c *Client) ResumeSession(ctx context.Context, id string) (Session, error) {
	return c.sessionAction(ctx, id, "resume")
}

// EndSession completes a session and returns it with its settled XP.
func (c *Client) EndSession(ctx context.Context, id string) (Session, Progression, error) {
	var resp struct {
		Session     Session     `json:"session"`
		Progression Progression `json:"progression"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("sessions/%s/end", url.PathEscape(id)), nil, &resp)
	return resp.Session, resp.Progression, err
}

func (c *Client) sessionAction(ctx context.Context, id, action string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("sessions/%s/%s", url.PathEscape(id), action), nil, &resp)
	return resp, err
}

// LogProblem records a problem in an open session.
func (c *Client) LogProblem(ctx context.Context, sessionID string, in ProblemInput) (Problem, Progression, error) {
	var resp struct {
		Problem     Problem     `json:"problem"`
		Progression Progression `json:"progression"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("sessions/%s/problems", url.PathEscape(sessionID)), in, &resp)
	return resp.Problem, resp.Progression, err
}

// Quests lists quests, optionally filtered by status.
func (c *Client) Quests(ctx context.Context, status string) ([]Quest, error) {
	endpoint := "quests"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Quest
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) GenerateQuests(ctx context.Context) ([]Quest, error) {
	var resp []Quest
	err := c.do(ctx, http.MethodPost, "quests/generate", nil, &resp)
	return resp, err
}

func (c *Client) CompleteQuest(ctx context.Context, id string) (Quest, Progression, error) {
	var resp struct {
		Quest       Quest       `json:"quest"`
		Progression Progression `json:"progression"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("quests/%s/complete", url.PathEscape(id)), nil, &resp)
	return resp.Quest, resp.Progression, err
}

// ConvertGrade converts grade between systems; no credentials needed.
func (c *Client) ConvertGrade(ctx context.Context, grade, from, to string) (string, error) {
	q := url.Values{}
	q.Set("grade", grade)
	if from != "" {
		q.Set("from", from)
	}
	if to != "" {
		q.Set("to", to)
	}
	var resp struct {
		Converted string `json:"converted"`
	}
	err := c.do(ctx, http.MethodGet, "grades/convert?"+q.Encode(), nil, &resp)
	return resp.Converted, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
		reader = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Code
			apiErr.Message = env.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	basePath := strings.Trim(c.BasePath, "/")
	if basePath == "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + basePath
}
