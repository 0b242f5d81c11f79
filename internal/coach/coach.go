package coach

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Profile is the climber context handed to a coach.
type Profile struct {
	Username       string         `json:"username"`
	WhistleLevel   int            `json:"whistle_level"`
	WhistleName    string         `json:"whistle_name"`
	CurrentLayer   int            `json:"current_layer"`
	LayerName      string         `json:"layer_name"`
	TotalXP        int            `json:"total_xp"`
	HighestRank    int            `json:"highest_v_rank"`
	SessionCount   int            `json:"session_count"`
	SkillXP        map[string]int `json:"skill_xp,omitempty"`
	FavoriteStyles []string       `json:"favorite_styles,omitempty"`
}

type ProblemSummary struct {
	Grade     string   `json:"grade"`
	Completed bool     `json:"completed"`
	Attempts  int      `json:"attempts"`
	Style     []string `json:"style,omitempty"`
}

type SessionSummary struct {
	Location      string           `json:"location,omitempty"`
	ActiveMinutes int              `json:"active_minutes"`
	XPEarned      int              `json:"xp_earned"`
	Problems      []ProblemSummary `json:"problems"`
}

// QuestSuggestion is a quest proposed by a coach. The engine clamps the
// numeric fields before persisting.
type QuestSuggestion struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	MaxProgress int    `json:"max_progress"`
	XPReward    int    `json:"xp_reward"`
}

type Exercise struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Sets        int    `json:"sets"`
	Reps        string `json:"reps"`
}

type Workout struct {
	Title           string     `json:"title"`
	Focus           string     `json:"focus"`
	DurationMinutes int        `json:"duration_minutes"`
	Exercises       []Exercise `json:"exercises"`
}

// Coach generates quests, feedback and workouts.
type Coach interface {
	SuggestQuests(ctx context.Context, p Profile, n int) ([]QuestSuggestion, error)
	SessionFeedback(ctx context.Context, p Profile, s SessionSummary) (string, error)
	SuggestWorkout(ctx context.Context, p Profile) (Workout, error)
}

// ErrEmptyResponse is returned when a model answers with nothing usable.
var ErrEmptyResponse = errors.New("coach returned an empty response")

// Fallback serves from Primary and falls back to Secondary on error.
type Fallback struct {
	Primary   Coach
	Secondary Coach
	Logger    *zap.Logger
}

func (f Fallback) logger() *zap.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return zap.NewNop()
}

func (f Fallback) SuggestQuests(ctx context.Context, p Profile, n int) ([]QuestSuggestion, error) {
	out, err := f.Primary.SuggestQuests(ctx, p, n)
	if err == nil && len(out) > 0 {
		return out, nil
	}
	f.logger().Warn("coach fallback", zap.String("op", "suggest_quests"), zap.Error(err))
	return f.Secondary.SuggestQuests(ctx, p, n)
}

func (f Fallback) SessionFeedback(ctx context.Context, p Profile, s SessionSummary) (string, error) {
	out, err := f.Primary.SessionFeedback(ctx, p, s)
	if err == nil && out != "" {
		return out, nil
	}
	f.logger().Warn("coach fallback", zap.String("op", "session_feedback"), zap.Error(err))
	return f.Secondary.SessionFeedback(ctx, p, s)
}

func (f Fallback) SuggestWorkout(ctx context.Context, p Profile) (Workout, error) {
	out, err := f.Primary.SuggestWorkout(ctx, p)
	if err == nil && len(out.Exercises) > 0 {
		return out, nil
	}
	f.logger().Warn("coach fallback", zap.String("op", "suggest_workout"), zap.Error(err))
	return f.Secondary.SuggestWorkout(ctx, p)
}
