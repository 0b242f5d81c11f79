package domain

type User struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	DisplayName     string `json:"display_name,omitempty"`
	PasswordHash    string `json:"-"`
	TotalXP         int    `json:"total_xp"`
	WhistleLevel    int    `json:"whistle_level"`
	CurrentLayer    int    `json:"current_layer"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
	SelectedTitle   string `json:"selected_title,omitempty"`
	CreatedAt       string `json:"created_at" format:"date-time"`
	UpdatedAt       string `json:"updated_at" format:"date-time"`
}

type ClimbingSession struct {
	ID              string  `json:"id"`
	UserID          string  `json:"user_id"`
	Location        string  `json:"location,omitempty"`
	StartTime       string  `json:"start_time" format:"date-time"`
	EndTime         *string `json:"end_time,omitempty" format:"date-time"`
	Status          string  `json:"status" enum:"active,paused,completed"`
	PausedAt        *string `json:"paused_at,omitempty" format:"date-time"`
	TotalPausedTime int     `json:"total_paused_time"`
	PausedSeconds   int     `json:"-"`
	ActiveMinutes   int     `json:"active_minutes"`
	XPEarned        int     `json:"xp_earned"`
	Notes           string  `json:"notes,omitempty"`
	Feedback        string  `json:"feedback,omitempty"`
	CreatedAt       string  `json:"created_at" format:"date-time"`
}

type BoulderProblem struct {
	ID          string   `json:"id"`
	SessionID   string   `json:"session_id"`
	UserID      string   `json:"user_id"`
	Grade       string   `json:"grade"`
	GradeSystem string   `json:"grade_system" enum:"V-Scale,Font,German"`
	Style       []string `json:"style"`
	Completed   bool     `json:"completed"`
	Attempts    int      `json:"attempts"`
	XP          int      `json:"xp"`
	Notes       string   `json:"notes,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
}

type Quest struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Kind        string  `json:"kind" enum:"daily,weekly,layer,custom"`
	Layer       *int    `json:"layer,omitempty"`
	Status      string  `json:"status" enum:"active,completed,failed,discarded"`
	Progress    int     `json:"progress"`
	MaxProgress int     `json:"max_progress"`
	XPReward    int     `json:"xp_reward"`
	ExpiresAt   *string `json:"expires_at,omitempty" format:"date-time"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`
}

type Skill struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	XP        int    `json:"xp"`
	Level     int    `json:"level"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// Achievement is an unlocked relic.
type Achievement struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	UnlockedAt  string `json:"unlocked_at" format:"date-time"`
}

type UserTitle struct {
	UserID     string `json:"user_id"`
	Title      string `json:"title"`
	UnlockedAt string `json:"unlocked_at" format:"date-time"`
}

// AuthSession is a login session backing an issued bearer token.
type AuthSession struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	CreatedAt string  `json:"created_at" format:"date-time"`
	ExpiresAt string  `json:"expires_at" format:"date-time"`
	RevokedAt *string `json:"revoked_at,omitempty" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	UserID     string `json:"user_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}
