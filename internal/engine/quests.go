package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"abyssclimber/internal/coach"
	"abyssclimber/internal/domain"
	"abyssclimber/internal/engine/auth"
	"abyssclimber/internal/events"
	"abyssclimber/internal/progression"
	"abyssclimber/internal/repo"
)

const (
	questActive    = "active"
	questCompleted = "completed"
	questFailed    = "failed"
	questDiscarded = "discarded"

	kindDaily  = "daily"
	kindWeekly = "weekly"
	kindLayer  = "layer"
	kindCustom = "custom"

	dailyQuestTTL = 24 * time.Hour
)

// layerQuestMinRank is the V rank a send must reach to count toward the
// trial of layer.
func layerQuestMinRank(layer int) int {
	return min(max(layer, 1), progression.MaxRank)
}

func ensureQuestTransition(oldStatus, newStatus string) error {
	if oldStatus == newStatus {
		return ConflictError{Message: fmt.Sprintf("quest is already %s", oldStatus)}
	}
	if oldStatus != questActive {
		return ConflictError{Message: fmt.Sprintf("quest is %s and can no longer change", oldStatus)}
	}
	switch newStatus {
	case questCompleted, questFailed, questDiscarded:
		return nil
	}
	return ValidationError{Field: "status", Message: "unknown quest status " + newStatus}
}

func ownedQuest(ctx context.Context, r repo.Repo, userID, id string) (domain.Quest, error) {
	q, err := r.GetQuest(ctx, id)
	if err != nil {
		return q, err
	}
	if q.UserID != userID {
		return q, auth.ForbiddenError{Resource: "quest"}
	}
	return q, nil
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// GenerateQuests tops the user's active daily quests up to the configured
// count and makes sure the trial quest for the current layer exists.
func (e Engine) GenerateQuests(ctx context.Context, userID string) ([]domain.Quest, error) {
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	active, err := e.Repo.ListQuests(ctx, repo.QuestFilters{UserID: userID, Status: questActive, Kind: kindDaily})
	if err != nil {
		return nil, err
	}
	var suggestions []coach.QuestSuggestion
	if n := e.settings().Quests.DailyCount - len(active); n > 0 {
		profile, err := e.coachProfile(ctx, u)
		if err != nil {
			return nil, err
		}
		suggestions, err = e.Coach.SuggestQuests(ctx, profile, n)
		if err != nil {
			e.log().Warn("quest suggestions failed", zapUser(userID), zap.Error(err))
			suggestions, _ = coach.Static{}.SuggestQuests(ctx, profile, n)
		}
		if len(suggestions) > n {
			suggestions = suggestions[:n]
		}
	}

	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	r := e.Repo.WithTx(tx)

	created := []domain.Quest{}
	for _, s := range suggestions {
		title := strings.TrimSpace(s.Title)
		if title == "" {
			continue
		}
		q := domain.Quest{
			ID:          uuid.NewString(),
			UserID:      userID,
			Title:       truncate(title, 120),
			Description: truncate(strings.TrimSpace(s.Description), 500),
			Kind:        kindDaily,
			Status:      questActive,
			MaxProgress: clamp(s.MaxProgress, 1, 50),
			XPReward:    clamp(s.XPReward, 10, 500),
			ExpiresAt:   expiresIn(now, dailyQuestTTL),
			CreatedAt:   stamp(now),
		}
		if err := e.insertQuest(ctx, tx, r, q); err != nil {
			return nil, err
		}
		created = append(created, q)
	}
	if q, ok, err := e.ensureLayerQuest(ctx, tx, r, userID, u.CurrentLayer, now); err != nil {
		return nil, err
	} else if ok {
		created = append(created, q)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func (e Engine) insertQuest(ctx context.Context, tx *sql.Tx, r repo.Repo, q domain.Quest) error {
	if err := r.InsertQuest(ctx, q); err != nil {
		return err
	}
	return e.journal().Append(ctx, tx, events.QuestCreated, q.UserID, "quest", q.ID, events.Payload{"kind": q.Kind, "title": q.Title, "xp_reward": q.XPReward})
}

// ensureLayerQuest creates the trial for layer unless it is open, done, or
// layer is final.
func (e Engine) ensureLayerQuest(ctx context.Context, tx *sql.Tx, r repo.Repo, userID string, layer int, now time.Time) (domain.Quest, bool, error) {
	if layer >= progression.FinalLayer {
		return domain.Quest{}, false, nil
	}
	existing, err := r.ListQuests(ctx, repo.QuestFilters{UserID: userID, Kind: kindLayer})
	if err != nil {
		return domain.Quest{}, false, err
	}
	for _, q := range existing {
		if q.Layer != nil && *q.Layer == layer && (q.Status == questActive || q.Status == questCompleted) {
			return domain.Quest{}, false, nil
		}
	}
	next := progression.LayerInfo(layer + 1)
	minGrade, _ := progression.Label(layerQuestMinRank(layer), progression.VScale)
	q := domain.Quest{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       "Trial of the " + next.Name,
		Description: fmt.Sprintf("Send %d problems graded %s or harder to earn passage to layer %d.", 3+layer, minGrade, next.Number),
		Kind:        kindLayer,
		Layer:       optionalInt(layer),
		Status:      questActive,
		MaxProgress: 3 + layer,
		XPReward:    50 * layer,
		CreatedAt:   stamp(now),
	}
	if err := e.insertQuest(ctx, tx, r, q); err != nil {
		return domain.Quest{}, false, err
	}
	return q, true, nil
}

type CreateQuestOptions struct {
	UserID      string `validate:"required"`
	Title       string `validate:"required,max=120"`
	Description string `validate:"max=500"`
	Kind        string `validate:"omitempty,oneof=daily weekly custom"`
	MaxProgress int    `validate:"gte=1,lte=1000"`
	XPReward    int    `validate:"gte=0,lte=500"`
}

// CreateQuest adds a user-defined quest. Weekly quests expire after seven
// days, daily after one; custom quests never expire.
func (e Engine) CreateQuest(ctx context.Context, opts CreateQuestOptions) (domain.Quest, error) {
	opts.Title = strings.TrimSpace(opts.Title)
	if opts.Kind == "" {
		opts.Kind = kindCustom
	}
	if err := check(opts); err != nil {
		return domain.Quest{}, err
	}
	now := e.now()
	q := domain.Quest{
		ID:          uuid.NewString(),
		UserID:      opts.UserID,
		Title:       opts.Title,
		Description: strings.TrimSpace(opts.Description),
		Kind:        opts.Kind,
		Status:      questActive,
		MaxProgress: opts.MaxProgress,
		XPReward:    opts.XPReward,
		CreatedAt:   stamp(now),
	}
	switch opts.Kind {
	case kindDaily:
		q.ExpiresAt = expiresIn(now, dailyQuestTTL)
	case kindWeekly:
		q.ExpiresAt = expiresIn(now, 7*dailyQuestTTL)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Quest{}, err
	}
	defer tx.Rollback()
	r := e.Repo.WithTx(tx)
	if _, err := r.GetUser(ctx, opts.UserID); err != nil {
		return domain.Quest{}, err
	}
	if err := e.insertQuest(ctx, tx, r, q); err != nil {
		return domain.Quest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Quest{}, err
	}
	return q, nil
}

// UpdateQuestProgress adds delta to an active quest, capped at MaxProgress.
func (e Engine) UpdateQuestProgress(ctx context.Context, userID, id string, delta int) (domain.Quest, error) {
	if delta < 1 || delta > 1000 {
		return domain.Quest{}, ValidationError{Field: "delta", Message: "must be between 1 and 1000"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Quest{}, err
	}
	defer tx.Rollback()
	r := e.Repo.WithTx(tx)

	q, err := ownedQuest(ctx, r, userID, id)
	if err != nil {
		return domain.Quest{}, err
	}
	if q.Status != questActive {
		return domain.Quest{}, ConflictError{Message: fmt.Sprintf("quest is %s", q.Status)}
	}
	q.Progress = min(q.Progress+delta, q.MaxProgress)
	if err := r.UpdateQuest(ctx, q); err != nil {
		return domain.Quest{}, err
	}
	if err := e.journal().Append(ctx, tx, events.QuestProgressed, userID, "quest", q.ID, events.Payload{"progress": q.Progress, "max_progress": q.MaxProgress}); err != nil {
		return domain.Quest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Quest{}, err
	}
	return q, nil
}

// QuestResult is a completed quest with the progression it caused.
type QuestResult struct {
	Quest        domain.Quest         `json:"quest"`
	Progression  ProgressionChange    `json:"progression"`
	Achievements []domain.Achievement `json:"achievements"`
}

// CompleteQuest completes an active quest and awards its XP. A layer trial
// must have reached its target first since it gates layer advancement.
func (e Engine) CompleteQuest(ctx context.Context, userID, id string) (QuestResult, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return QuestResult{}, err
	}
	defer tx.Rollback()
	r := e.Repo.WithTx(tx)

	q, err := ownedQuest(ctx, r, userID, id)
	if err != nil {
		return QuestResult{}, err
	}
	if err := ensureQuestTransition(q.Status, questCompleted); err != nil {
		return QuestResult{}, err
	}
	if q.Kind == kindLayer && q.Progress < q.MaxProgress {
		return QuestResult{}, ConflictError{Message: fmt.Sprintf("layer trial needs %d more sends", q.MaxProgress-q.Progress)}
	}
	q.Status = questCompleted
	q.Progress = q.MaxProgress
	q.CompletedAt = optionalString(stamp(e.now()))
	if err := r.UpdateQuest(ctx, q); err != nil {
		return QuestResult{}, err
	}
	if err := e.journal().Append(ctx, tx, events.QuestCompleted, userID, "quest", q.ID, events.Payload{"kind": q.Kind, "xp_reward": q.XPReward}); err != nil {
		return QuestResult{}, err
	}
	res := QuestResult{Quest: q}
	if res.Progression, err = e.recompute(ctx, tx, r, userID); err != nil {
		return QuestResult{}, err
	}
	if res.Achievements, err = e.awardAchievements(ctx, tx, r, userID); err != nil {
		return QuestResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return QuestResult{}, err
	}
	if res.Achievements == nil {
		res.Achievements = []domain.Achievement{}
	}
	return res, nil
}

func (e Engine) DiscardQuest(ctx context.Context, userID, id string) (domain.Quest, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Quest{}, err
	}
	defer tx.Rollback()
	r := e.Repo.WithTx(tx)

	q, err := ownedQuest(ctx, r, userID, id)
	if err != nil {
		return domain.Quest{}, err
	}
	if err := ensureQuestTransition(q.Status, questDiscarded); err != nil {
		return domain.Quest{}, err
	}
	q.Status = questDiscarded
	if err := r.UpdateQuest(ctx, q); err != nil {
		return domain.Quest{}, err
	}
	if err := e.journal().Append(ctx, tx, events.QuestDiscarded, userID, "quest", q.ID, nil); err != nil {
		return domain.Quest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Quest{}, err
	}
	return q, nil
}

// FailExpiredQuests marks every active quest past its deadline as failed.
func (e Engine) FailExpiredQuests(ctx context.Context) (int, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	r := e.Repo.WithTx(tx)

	expired, err := r.ExpiredActiveQuests(ctx, stamp(e.now()))
	if err != nil {
		return 0, err
	}
	for _, q := range expired {
		q.Status = questFailed
		if err := r.UpdateQuest(ctx, q); err != nil {
			return 0, err
		}
		if err := e.journal().Append(ctx, tx, events.QuestFailed, q.UserID, "quest", q.ID, events.Payload{"expires_at": q.ExpiresAt}); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	if len(expired) > 0 {
		e.log().Info("quests expired", zap.Int("count", len(expired)))
	}
	return len(expired), nil
}

func (e Engine) ListQuests(ctx context.Context, userID, status, kind string) ([]domain.Quest, error) {
	switch status {
	case "", questActive, questCompleted, questFailed, questDiscarded:
	default:
		return nil, ValidationError{Field: "status", Message: "must be one of active completed failed discarded"}
	}
	switch kind {
	case "", kindDaily, kindWeekly, kindLayer, kindCustom:
	default:
		return nil, ValidationError{Field: "kind", Message: "must be one of daily weekly layer custom"}
	}
	items, err := e.Repo.ListQuests(ctx, repo.QuestFilters{UserID: userID, Status: status, Kind: kind})
	if items == nil && err == nil {
		items = []domain.Quest{}
	}
	return items, err
}
