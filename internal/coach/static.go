package coach

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Static is a rule-based coach used when no model is configured.
type Static struct{}

type questTemplate struct {
	title       string
	description string
	max         int
	reward      int
}

// templates are ordered roughly by difficulty; offset picks a window based on
// the climber's layer so deeper climbers see harder quests first.
var questTemplates = []questTemplate{
	{"Warm Descent", "Log %d problems in a single session.", 5, 50},
	{"Flash Hunter", "Flash %d problems on the first attempt.", 3, 60},
	{"Steady Hands", "Complete %d problems tagged balance or technical.", 4, 70},
	{"Endurance Trial", "Climb for a total of %d sessions this week.", 3, 80},
	{"Grade Pusher", "Send %d problems at or above your hardest grade.", 2, 100},
	{"Relic Seeker", "Complete %d problems tagged coordination.", 3, 90},
	{"Abyss Marathon", "Log %d problems across the week.", 25, 150},
}

func (Static) SuggestQuests(_ context.Context, p Profile, n int) ([]QuestSuggestion, error) {
	if n <= 0 {
		return nil, nil
	}
	offset := (p.CurrentLayer - 1) % len(questTemplates)
	if offset < 0 {
		offset = 0
	}
	out := make([]QuestSuggestion, 0, n)
	for i := 0; i < n; i++ {
		t := questTemplates[(offset+i)%len(questTemplates)]
		target := t.max + max(0, p.CurrentLayer)/2
		out = append(out, QuestSuggestion{
			Title:       t.title,
			Description: fmt.Sprintf(t.description, target),
			MaxProgress: target,
			XPReward:    t.reward + 25*max(0, p.CurrentLayer-1),
		})
	}
	return out, nil
}

func (Static) SessionFeedback(_ context.Context, p Profile, s SessionSummary) (string, error) {
	if len(s.Problems) == 0 {
		return "No problems logged this time. Even a short session keeps the descent going; log a few climbs next time.", nil
	}
	var sent, flashes, attempts int
	for _, pr := range s.Problems {
		attempts += pr.Attempts
		if pr.Completed {
			sent++
			if pr.Attempts <= 1 {
				flashes++
			}
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You sent %d of %d problems in %d minutes and earned %d XP.", sent, len(s.Problems), s.ActiveMinutes, s.XPEarned)
	switch {
	case flashes > 0:
		fmt.Fprintf(&b, " %d flash", flashes)
		if flashes > 1 {
			b.WriteString("es")
		}
		b.WriteString(" show your reading is sharp.")
	case sent == 0:
		b.WriteString(" Nothing went down today; try problems a grade easier to rebuild momentum.")
	}
	if sent > 0 && attempts/len(s.Problems) > 6 {
		b.WriteString(" Many attempts per problem: rest longer between burns.")
	}
	if p.WhistleName != "" {
		fmt.Fprintf(&b, " Keep climbing, %s.", p.WhistleName)
	}
	return b.String(), nil
}

func (Static) SuggestWorkout(_ context.Context, p Profile) (Workout, error) {
	focus := weakestSkill(p.SkillXP)
	w := Workout{
		Title:           fmt.Sprintf("Layer %d %s session", max(1, p.CurrentLayer), focus),
		Focus:           focus,
		DurationMinutes: 45 + 5*min(p.WhistleLevel, 5),
	}
	switch focus {
	case "balance":
		w.Exercises = []Exercise{
			{Name: "Silent feet", Description: "Climb easy problems placing each foot without noise.", Sets: 4, Reps: "1 problem"},
			{Name: "Slab traverse", Description: "Traverse a slab section using smears only.", Sets: 3, Reps: "2 min"},
		}
	case "endurance":
		w.Exercises = []Exercise{
			{Name: "4x4", Description: "Four problems back to back, four rounds.", Sets: 4, Reps: "4 problems"},
			{Name: "Traverse laps", Description: "Continuous traversing at a steady pace.", Sets: 3, Reps: "5 min"},
		}
	case "coordination":
		w.Exercises = []Exercise{
			{Name: "Dyno ladder", Description: "Progressively longer dynamic moves.", Sets: 3, Reps: "5 moves"},
			{Name: "Coordination boxes", Description: "Run-and-jump starts on easy volumes.", Sets: 3, Reps: "3 attempts"},
		}
	default:
		w.Exercises = []Exercise{
			{Name: "Hangboard repeaters", Description: "7s on 3s off on a comfortable edge.", Sets: 5, Reps: "6"},
			{Name: "Limit bouldering", Description: "Project problems at your hardest grade.", Sets: 4, Reps: "3 attempts"},
		}
	}
	return w, nil
}

// weakestSkill picks the technical skill with the least XP.
func weakestSkill(skills map[string]int) string {
	names := []string{"technical", "balance", "coordination", "endurance"}
	sort.SliceStable(names, func(i, j int) bool { return skills[names[i]] < skills[names[j]] })
	return names[0]
}
