package engine

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/google/uuid"

	"abyssclimber/internal/domain"
	"abyssclimber/internal/events"
	"abyssclimber/internal/progression"
	"abyssclimber/internal/repo"
)

type LogProblemOptions struct {
	UserID      string   `validate:"required"`
	SessionID   string   `validate:"required"`
	Grade       string   `validate:"required,max=16"`
	GradeSystem string   `validate:"omitempty,max=32"`
	Style       []string `validate:"max=10,dive,max=32"`
	Completed   bool
	Attempts    int    `validate:"gte=1,lte=1000"`
	Notes       string `validate:"max=2000"`
}

// ProblemResult is a logged problem with the rewards it produced.
type ProblemResult struct {
	Problem      domain.BoulderProblem `json:"problem"`
	Skills       []domain.Skill        `json:"skills"`
	Progression  ProgressionChange     `json:"progression"`
	Achievements []domain.Achievement  `json:"achievements"`
}

func normalizeStyles(in []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func skillLevel(xp int) int {
	return 1 + xp/100
}

// LogProblem records a problem in an open session. Its XP is computed here
// once and stored; later reads never recompute it.
func (e Engine) LogProblem(ctx context.Context, opts LogProblemOptions) (ProblemResult, error) {
	opts.Grade = strings.TrimSpace(opts.Grade)
	opts.Style = normalizeStyles(opts.Style)
	if err := check(opts); err != nil {
		return ProblemResult{}, err
	}
	system := progression.VScale
	if opts.GradeSystem != "" {
		var err error
		if system, err = progression.ParseGradeSystem(opts.GradeSystem); err != nil {
			return ProblemResult{}, ValidationError{Field: "grade_system", Message: err.Error()}
		}
	}
	now := stamp(e.now())
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ProblemResult{}, err
	}
	defer tx.Rollback()
	r := e.Repo.WithTx(tx)

	s, err := ownedSession(ctx, r, opts.UserID, opts.SessionID)
	if err != nil {
		return ProblemResult{}, err
	}
	if !progression.SessionStatus(s.Status).Open() {
		return ProblemResult{}, ConflictError{Message: "problems can only be logged to an open session"}
	}
	scored := progression.Problem{
		Grade:       opts.Grade,
		GradeSystem: system,
		Style:       opts.Style,
		Completed:   opts.Completed,
		Attempts:    opts.Attempts,
	}
	p := domain.BoulderProblem{
		ID:          uuid.NewString(),
		SessionID:   s.ID,
		UserID:      s.UserID,
		Grade:       opts.Grade,
		GradeSystem: system.String(),
		Style:       opts.Style,
		Completed:   opts.Completed,
		Attempts:    opts.Attempts,
		XP:          progression.ProblemXP(scored),
		Notes:       opts.Notes,
		CreatedAt:   now,
	}
	if err := r.InsertProblem(ctx, p); err != nil {
		return ProblemResult{}, err
	}
	if err := e.journal().Append(ctx, tx, events.ProblemLogged, p.UserID, "problem", p.ID, events.Payload{
		"session_id": p.SessionID,
		"grade":      p.Grade,
		"completed":  p.Completed,
		"attempts":   p.Attempts,
		"xp":         p.XP,
		"flash":      progression.IsFlash(scored),
	}); err != nil {
		return ProblemResult{}, err
	}

	res := ProblemResult{Problem: p, Skills: []domain.Skill{}}
	if p.XP > 0 {
		for _, name := range p.Style {
			sk, err := r.AddSkillXP(ctx, uuid.NewString(), p.UserID, name, p.XP, skillLevel, now)
			if err != nil {
				return ProblemResult{}, err
			}
			res.Skills = append(res.Skills, sk)
		}
	}
	if p.Completed {
		if err := e.advanceLayerQuests(ctx, tx, r, p.UserID, scored); err != nil {
			return ProblemResult{}, err
		}
	}
	if res.Progression, err = e.recompute(ctx, tx, r, p.UserID); err != nil {
		return ProblemResult{}, err
	}
	if res.Achievements, err = e.awardAchievements(ctx, tx, r, p.UserID); err != nil {
		return ProblemResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return ProblemResult{}, err
	}
	if res.Achievements == nil {
		res.Achievements = []domain.Achievement{}
	}
	return res, nil
}

func (e Engine) ListProblems(ctx context.Context, userID, sessionID string) ([]domain.BoulderProblem, error) {
	if _, err := ownedSession(ctx, e.Repo, userID, sessionID); err != nil {
		return nil, err
	}
	items, err := e.Repo.ListProblemsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.BoulderProblem{}
	}
	return items, nil
}

func (e Engine) ListSkills(ctx context.Context, userID string) ([]domain.Skill, error) {
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	items, err := e.Repo.ListSkills(ctx, userID)
	if items == nil && err == nil {
		items = []domain.Skill{}
	}
	return items, err
}

// advanceLayerQuests counts a completed problem toward active layer quests
// whose grade floor it meets.
func (e Engine) advanceLayerQuests(ctx context.Context, tx *sql.Tx, r repo.Repo, userID string, p progression.Problem) error {
	rank, ok := progression.Rank(p.Grade, p.GradeSystem)
	if !ok {
		return nil
	}
	quests, err := r.ListQuests(ctx, repo.QuestFilters{UserID: userID, Status: questActive, Kind: kindLayer})
	if err != nil {
		return err
	}
	for _, q := range quests {
		if q.Layer == nil || rank < layerQuestMinRank(*q.Layer) || q.Progress >= q.MaxProgress {
			continue
		}
		q.Progress++
		if err := r.UpdateQuest(ctx, q); err != nil {
			return err
		}
		if err := e.journal().Append(ctx, tx, events.QuestProgressed, userID, "quest", q.ID, events.Payload{"progress": q.Progress, "max_progress": q.MaxProgress}); err != nil {
			return err
		}
	}
	return nil
}
