package server

import (
	"abyssclimber/internal/coach"
	"abyssclimber/internal/domain"
	"abyssclimber/internal/engine"
	"abyssclimber/internal/geo"
)

// Request payloads

type RegisterRequest struct {
	Username    string `json:"username" example:"reg"`
	Password    string `json:"password" example:"correct-horse"`
	DisplayName string `json:"display_name,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
}

type SelectTitleRequest struct {
	Title string `json:"title" doc:"Title to display; empty clears the selection"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type StartSessionRequest struct {
	Location string `json:"location,omitempty" example:"Orth Bouldering"`
	Notes    string `json:"notes,omitempty"`
}

type LogProblemRequest struct {
	Grade       string   `json:"grade" example:"V4"`
	GradeSystem string   `json:"grade_system,omitempty" example:"Font"`
	Style       []string `json:"style,omitempty" doc:"Style tags such as crimpy or overhang"`
	Completed   bool     `json:"completed"`
	Attempts    *int     `json:"attempts,omitempty" doc:"Defaults to 1"`
	Notes       string   `json:"notes,omitempty"`
}

type CreateQuestRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Kind        string `json:"kind,omitempty" enum:"daily,weekly,custom"`
	MaxProgress int    `json:"max_progress"`
	XPReward    int    `json:"xp_reward"`
}

type QuestProgressRequest struct {
	Delta int `json:"delta,omitempty" doc:"Defaults to 1"`
}

// Response payloads

type UserResponse struct {
	Body domain.User `json:"body"`
}

type ProfileResponse struct {
	Body engine.Profile `json:"body"`
}

type LoginResponse struct {
	Body engine.LoginResult `json:"body"`
}

type ProgressResponse struct {
	Body engine.ProgressView `json:"body"`
}

type XPAuditResponse struct {
	Body engine.XPAudit `json:"body"`
}

type TitleListResponse struct {
	Body []domain.UserTitle `json:"body"`
}

type AchievementListResponse struct {
	Body []domain.Achievement `json:"body"`
}

type EventListResponse struct {
	Body []domain.Event `json:"body"`
}

type APIKeyResponse struct {
	Body engine.APIKeyResult `json:"body"`
}

type SessionResponse struct {
	Body engine.SessionView `json:"body"`
}

type SessionListResponse struct {
	Body []engine.SessionView `json:"body"`
}

type EndSessionResponse struct {
	Body engine.EndResult `json:"body"`
}

type ProblemResponse struct {
	Body engine.ProblemResult `json:"body"`
}

type ProblemListResponse struct {
	Body []domain.BoulderProblem `json:"body"`
}

type QuestResponse struct {
	Body domain.Quest `json:"body"`
}

type QuestListResponse struct {
	Body []domain.Quest `json:"body"`
}

type QuestResultResponse struct {
	Body engine.QuestResult `json:"body"`
}

type SkillListResponse struct {
	Body []domain.Skill `json:"body"`
}

type GradeConversion struct {
	Grade     string `json:"grade"`
	From      string `json:"from"`
	To        string `json:"to"`
	Converted string `json:"converted"`
	Known     bool   `json:"known" doc:"False when the grade is not on the source scale and was returned unchanged"`
}

type GradeConversionResponse struct {
	Body GradeConversion `json:"body"`
}

type FeedbackResponse struct {
	Body struct {
		SessionID string `json:"session_id"`
		Feedback  string `json:"feedback"`
	} `json:"body"`
}

type WorkoutResponse struct {
	Body coach.Workout `json:"body"`
}

type PlaceListResponse struct {
	Body []geo.Place `json:"body"`
}
