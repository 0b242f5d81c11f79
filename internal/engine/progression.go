package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"abyssclimber/internal/domain"
	"abyssclimber/internal/events"
	"abyssclimber/internal/progression"
	"abyssclimber/internal/repo"
)

// ProgressionChange describes one recompute of a user's derived ranks.
type ProgressionChange struct {
	TotalXP         int  `json:"total_xp"`
	XPGained        int  `json:"xp_gained"`
	WhistleLevel    int  `json:"whistle_level"`
	WhistlePromoted bool `json:"whistle_promoted"`
	CurrentLayer    int  `json:"current_layer"`
	LayerAdvanced   bool `json:"layer_advanced"`
}

// climbStats are the facts achievements and whistles are derived from.
type climbStats struct {
	Problems    int
	Sends       int
	Flashes     int
	HighestRank int
	Sessions    int
	Layer       int
}

func (e Engine) stats(ctx context.Context, r repo.Repo, userID string) (climbStats, error) {
	st := climbStats{HighestRank: -1}
	problems, err := r.ListProblemsByUser(ctx, userID)
	if err != nil {
		return st, err
	}
	st.Problems = len(problems)
	for _, p := range problems {
		if !p.Completed {
			continue
		}
		st.Sends++
		if p.Attempts <= 1 {
			st.Flashes++
		}
		system, err := progression.ParseGradeSystem(p.GradeSystem)
		if err != nil {
			continue
		}
		if rank, ok := progression.Rank(p.Grade, system); ok && rank > st.HighestRank {
			st.HighestRank = rank
		}
	}
	if st.Sessions, err = r.CountCompletedSessions(ctx, userID); err != nil {
		return st, err
	}
	return st, nil
}

// recompute derives total XP, whistle and layer from stored facts. Total XP
// never decreases, so a drifted stored total is kept when it is higher.
func (e Engine) recompute(ctx context.Context, tx *sql.Tx, r repo.Repo, userID string) (ProgressionChange, error) {
	u, err := r.GetUser(ctx, userID)
	if err != nil {
		return ProgressionChange{}, err
	}
	problemXP, err := r.SumProblemXP(ctx, userID)
	if err != nil {
		return ProgressionChange{}, err
	}
	questXP, err := r.SumCompletedQuestXP(ctx, userID)
	if err != nil {
		return ProgressionChange{}, err
	}
	st, err := e.stats(ctx, r, userID)
	if err != nil {
		return ProgressionChange{}, err
	}
	done, err := r.CompletedLayerQuests(ctx, userID)
	if err != nil {
		return ProgressionChange{}, err
	}
	total := max(u.TotalXP, problemXP+questXP)
	whistle := progression.WhistleFor(st.HighestRank).Level
	layer := progression.DeriveLayer(total, func(l int) bool { return done[l] })
	change := ProgressionChange{
		TotalXP:         total,
		XPGained:        total - u.TotalXP,
		WhistleLevel:    whistle,
		WhistlePromoted: whistle > u.WhistleLevel,
		CurrentLayer:    layer,
		LayerAdvanced:   layer > u.CurrentLayer,
	}
	if total == u.TotalXP && whistle == u.WhistleLevel && layer == u.CurrentLayer {
		return change, nil
	}
	now := stamp(e.now())
	if err := r.UpdateUserProgression(ctx, userID, total, whistle, layer, now); err != nil {
		return ProgressionChange{}, err
	}
	if change.WhistlePromoted {
		w := progression.WhistleInfo(whistle)
		if _, err := r.InsertTitle(ctx, domain.UserTitle{UserID: userID, Title: w.Name, UnlockedAt: now}); err != nil {
			return ProgressionChange{}, err
		}
		if err := e.journal().Append(ctx, tx, events.WhistlePromoted, userID, "user", userID, events.Payload{"from": u.WhistleLevel, "to": whistle, "name": w.Name}); err != nil {
			return ProgressionChange{}, err
		}
		e.log().Info("whistle promoted", zapUser(userID), zap.String("whistle", w.Name))
	}
	if change.LayerAdvanced {
		if err := e.journal().Append(ctx, tx, events.LayerAdvanced, userID, "user", userID, events.Payload{"from": u.CurrentLayer, "to": layer, "name": progression.LayerInfo(layer).Name}); err != nil {
			return ProgressionChange{}, err
		}
		if _, _, err := e.ensureLayerQuest(ctx, tx, r, userID, layer, e.now()); err != nil {
			return ProgressionChange{}, err
		}
		e.log().Info("layer advanced", zapUser(userID), zap.Int("layer", layer))
	}
	return change, nil
}

// RecomputeProgression rederives a user's ranks from stored facts.
func (e Engine) RecomputeProgression(ctx context.Context, userID string) (ProgressionChange, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ProgressionChange{}, err
	}
	defer tx.Rollback()
	r := e.Repo.WithTx(tx)
	change, err := e.recompute(ctx, tx, r, userID)
	if err != nil {
		return ProgressionChange{}, err
	}
	if _, err := e.awardAchievements(ctx, tx, r, userID); err != nil {
		return ProgressionChange{}, err
	}
	if err := tx.Commit(); err != nil {
		return ProgressionChange{}, err
	}
	return change, nil
}

type WhistleView struct {
	Level    int    `json:"level"`
	Name     string `json:"name"`
	MinGrade string `json:"min_grade,omitempty"`
}

func whistleView(w progression.Whistle) WhistleView {
	v := WhistleView{Level: w.Level, Name: w.Name}
	if label, ok := progression.Label(w.MinGrade, progression.VScale); ok {
		v.MinGrade = label
	}
	return v
}

// ProgressView is the read model for a user's progression.
type ProgressView struct {
	TotalXP             int                       `json:"total_xp"`
	CurrentLayer        int                       `json:"current_layer"`
	LayerName           string                    `json:"layer_name"`
	Layer               progression.LayerProgress `json:"layer"`
	LayerQuestCompleted bool                      `json:"layer_quest_completed"`
	CanAdvance          bool                      `json:"can_advance"`
	Whistle             WhistleView               `json:"whistle"`
	NextWhistle         *WhistleView              `json:"next_whistle,omitempty"`
	HighestGrade        string                    `json:"highest_grade,omitempty"`
	Sends               int                       `json:"sends"`
	Flashes             int                       `json:"flashes"`
	CompletedSessions   int                       `json:"completed_sessions"`
}

func (e Engine) Progress(ctx context.Context, userID string) (ProgressView, error) {
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return ProgressView{}, err
	}
	st, err := e.stats(ctx, e.Repo, userID)
	if err != nil {
		return ProgressView{}, err
	}
	done, err := e.Repo.CompletedLayerQuests(ctx, userID)
	if err != nil {
		return ProgressView{}, err
	}
	v := ProgressView{
		TotalXP:             u.TotalXP,
		CurrentLayer:        u.CurrentLayer,
		LayerName:           progression.LayerInfo(u.CurrentLayer).Name,
		Layer:               progression.ComputeLayerProgress(u.TotalXP, u.CurrentLayer),
		LayerQuestCompleted: done[u.CurrentLayer],
		CanAdvance:          progression.CanAdvance(u.TotalXP, u.CurrentLayer, done[u.CurrentLayer]),
		Whistle:             whistleView(progression.WhistleInfo(u.WhistleLevel)),
		Sends:               st.Sends,
		Flashes:             st.Flashes,
		CompletedSessions:   st.Sessions,
	}
	if next, ok := progression.NextWhistle(u.WhistleLevel); ok {
		nv := whistleView(next)
		v.NextWhistle = &nv
	}
	if label, ok := progression.Label(st.HighestRank, progression.VScale); ok {
		v.HighestGrade = label
	}
	return v, nil
}

type ProblemDrift struct {
	ProblemID  string `json:"problem_id"`
	Grade      string `json:"grade"`
	Stored     int    `json:"stored"`
	Recomputed int    `json:"recomputed"`
}

// XPAudit compares stored XP with a recomputation from the stored problems.
type XPAudit struct {
	UserID          string         `json:"user_id"`
	UserTotalXP     int            `json:"user_total_xp"`
	StoredProblemXP int            `json:"stored_problem_xp"`
	RecomputedXP    int            `json:"recomputed_problem_xp"`
	QuestXP         int            `json:"quest_xp"`
	Drift           []ProblemDrift `json:"drift"`
}

// Consistent reports whether stored and recomputed XP agree.
func (a XPAudit) Consistent() bool {
	return len(a.Drift) == 0 && a.UserTotalXP == a.StoredProblemXP+a.QuestXP
}

// AuditXP recomputes problem XP with the current tables without writing.
func (e Engine) AuditXP(ctx context.Context, userID string) (XPAudit, error) {
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return XPAudit{}, err
	}
	problems, err := e.Repo.ListProblemsByUser(ctx, userID)
	if err != nil {
		return XPAudit{}, err
	}
	questXP, err := e.Repo.SumCompletedQuestXP(ctx, userID)
	if err != nil {
		return XPAudit{}, err
	}
	a := XPAudit{UserID: userID, UserTotalXP: u.TotalXP, QuestXP: questXP, Drift: []ProblemDrift{}}
	scored := make([]progression.Problem, 0, len(problems))
	for _, p := range problems {
		system, err := progression.ParseGradeSystem(p.GradeSystem)
		if err != nil {
			return XPAudit{}, fmt.Errorf("problem %s: %w", p.ID, err)
		}
		sp := progression.Problem{Grade: p.Grade, GradeSystem: system, Style: p.Style, Completed: p.Completed, Attempts: p.Attempts}
		scored = append(scored, sp)
		a.StoredProblemXP += p.XP
		if xp := progression.ProblemXP(sp); xp != p.XP {
			a.Drift = append(a.Drift, ProblemDrift{ProblemID: p.ID, Grade: p.Grade, Stored: p.XP, Recomputed: xp})
		}
	}
	a.RecomputedXP = progression.SessionXP(scored)
	return a, nil
}

type achievementRule struct {
	key         string
	name        string
	description string
	met         func(climbStats) bool
}

var achievementRules = []achievementRule{
	{"first_send", "First Descent", "Complete your first problem.", func(s climbStats) bool { return s.Sends >= 1 }},
	{"first_flash", "Flash of Insight", "Flash a problem on the first attempt.", func(s climbStats) bool { return s.Flashes >= 1 }},
	{"first_v5", "Star Compass", "Send a V5 or harder.", func(s climbStats) bool { return s.HighestRank >= 5 }},
	{"ten_sessions", "Regular Delver", "Complete ten climbing sessions.", func(s climbStats) bool { return s.Sessions >= 10 }},
	{"hundred_problems", "Century of Holds", "Log one hundred problems.", func(s climbStats) bool { return s.Problems >= 100 }},
	{"layer_three", "Into the Great Fault", "Reach the third layer.", func(s climbStats) bool { return s.Layer >= 3 }},
}

// awardAchievements unlocks every rule the user now meets and returns the
// newly unlocked ones.
func (e Engine) awardAchievements(ctx context.Context, tx *sql.Tx, r repo.Repo, userID string) ([]domain.Achievement, error) {
	st, err := e.stats(ctx, r, userID)
	if err != nil {
		return nil, err
	}
	u, err := r.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	st.Layer = u.CurrentLayer
	now := stamp(e.now())
	var unlocked []domain.Achievement
	for _, rule := range achievementRules {
		if !rule.met(st) {
			continue
		}
		a := domain.Achievement{
			ID:          uuid.NewString(),
			UserID:      userID,
			Key:         rule.key,
			Name:        rule.name,
			Description: rule.description,
			UnlockedAt:  now,
		}
		added, err := r.InsertAchievement(ctx, a)
		if err != nil {
			return nil, err
		}
		if !added {
			continue
		}
		if err := e.journal().Append(ctx, tx, events.AchievementAdded, userID, "achievement", a.ID, events.Payload{"key": a.Key, "name": a.Name}); err != nil {
			return nil, err
		}
		unlocked = append(unlocked, a)
	}
	return unlocked, nil
}
