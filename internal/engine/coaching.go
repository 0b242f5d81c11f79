package engine

import (
	"context"
	"sort"

	"abyssclimber/internal/coach"
	"abyssclimber/internal/domain"
	"abyssclimber/internal/progression"
)

func (e Engine) coachProfile(ctx context.Context, u domain.User) (coach.Profile, error) {
	st, err := e.stats(ctx, e.Repo, u.ID)
	if err != nil {
		return coach.Profile{}, err
	}
	skills, err := e.Repo.ListSkills(ctx, u.ID)
	if err != nil {
		return coach.Profile{}, err
	}
	p := coach.Profile{
		Username:     u.Username,
		WhistleLevel: u.WhistleLevel,
		WhistleName:  progression.WhistleInfo(u.WhistleLevel).Name,
		CurrentLayer: u.CurrentLayer,
		LayerName:    progression.LayerInfo(u.CurrentLayer).Name,
		TotalXP:      u.TotalXP,
		HighestRank:  st.HighestRank,
		SessionCount: st.Sessions,
		SkillXP:      map[string]int{},
	}
	for _, s := range skills {
		p.SkillXP[s.Name] = s.XP
	}
	// skills arrive ordered by XP
	for i := 0; i < len(skills) && i < 3; i++ {
		p.FavoriteStyles = append(p.FavoriteStyles, skills[i].Name)
	}
	sort.Strings(p.FavoriteStyles)
	return p, nil
}

func (e Engine) generateFeedback(ctx context.Context, s domain.ClimbingSession) (string, error) {
	u, err := e.Repo.GetUser(ctx, s.UserID)
	if err != nil {
		return "", err
	}
	profile, err := e.coachProfile(ctx, u)
	if err != nil {
		return "", err
	}
	problems, err := e.Repo.ListProblemsBySession(ctx, s.ID)
	if err != nil {
		return "", err
	}
	summary := coach.SessionSummary{Location: s.Location, ActiveMinutes: s.ActiveMinutes, XPEarned: s.XPEarned, Problems: []coach.ProblemSummary{}}
	for _, p := range problems {
		summary.Problems = append(summary.Problems, coach.ProblemSummary{Grade: p.Grade, Completed: p.Completed, Attempts: p.Attempts, Style: p.Style})
	}
	fb, err := e.Coach.SessionFeedback(ctx, profile, summary)
	if err != nil {
		return "", err
	}
	s.Feedback = fb
	if err := e.Repo.UpdateSession(ctx, s); err != nil {
		return "", err
	}
	return fb, nil
}

// SessionFeedback returns the coach feedback of a completed session,
// generating it if the coach failed when the session ended.
func (e Engine) SessionFeedback(ctx context.Context, userID, sessionID string) (string, error) {
	s, err := ownedSession(ctx, e.Repo, userID, sessionID)
	if err != nil {
		return "", err
	}
	if s.Status != string(progression.StatusCompleted) {
		return "", ConflictError{Message: "feedback is available once the session has ended"}
	}
	if s.Feedback != "" {
		return s.Feedback, nil
	}
	return e.generateFeedback(ctx, s)
}

func (e Engine) SuggestWorkout(ctx context.Context, userID string) (coach.Workout, error) {
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return coach.Workout{}, err
	}
	profile, err := e.coachProfile(ctx, u)
	if err != nil {
		return coach.Workout{}, err
	}
	return e.Coach.SuggestWorkout(ctx, profile)
}
