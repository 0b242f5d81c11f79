package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertRoundTrip(t *testing.T) {
	for _, target := range []GradeSystem{Font, German} {
		for _, g := range Grades(VScale) {
			out := Convert(g, VScale, target)
			require.NotEqual(t, g, out, "%s should map into %s", g, target)
			assert.Equal(t, g, Convert(out, target, VScale), "round trip %s via %s", g, target)
		}
	}
}

func TestConvertIdentityAndFallback(t *testing.T) {
	for _, s := range []GradeSystem{VScale, Font, German} {
		assert.Equal(t, "whatever", Convert("whatever", s, s))
		assert.Equal(t, "V5", Convert("V5", s, s))
	}
	assert.Equal(t, "V42", Convert("V42", VScale, Font))
	assert.Equal(t, "", Convert("", Font, VScale))
}

func TestConvertCrossSystem(t *testing.T) {
	tests := []struct {
		grade    string
		from, to GradeSystem
		want     string
	}{
		{"V5", VScale, Font, "6C"},
		{"6c+", Font, VScale, "V5"},
		{"7A", Font, German, "VIIIc"},
		{"IXa", German, Font, "7A+"},
		{"VB", VScale, German, "VI"},
		{"V17", VScale, Font, "9A"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Convert(tt.grade, tt.from, tt.to), "%s %s->%s", tt.grade, tt.from, tt.to)
	}
}

func TestParseGradeSystem(t *testing.T) {
	s, err := ParseGradeSystem("Fontainebleau")
	require.NoError(t, err)
	assert.Equal(t, Font, s)
	_, err = ParseGradeSystem("yds")
	assert.Error(t, err)
	assert.Equal(t, "V-Scale", VScale.String())
}

func TestProblemXP(t *testing.T) {
	tests := []struct {
		name string
		p    Problem
		want int
	}{
		{"flash V5", Problem{Grade: "V5", Attempts: 1, Completed: true}, 23},
		{"brute force technical V5", Problem{Grade: "V5", Attempts: 15, Completed: true, Style: []string{"technical"}}, 14},
		{"few attempts V0", Problem{Grade: "V0", Attempts: 3, Completed: true}, 6},
		{"standard V10", Problem{Grade: "V10", Attempts: 7, Completed: true}, 30},
		{"tags do not stack", Problem{Grade: "V4", Attempts: 5, Completed: true, Style: []string{"Balance", "endurance"}}, 18},
		{"non technical tag", Problem{Grade: "V4", Attempts: 5, Completed: true, Style: []string{"crimpy"}}, 15},
		{"unknown grade", Problem{Grade: "hard", Attempts: 4, Completed: true}, 5},
		{"font grade", Problem{Grade: "7A", GradeSystem: Font, Attempts: 4, Completed: true}, 20},
		{"V17 flash", Problem{Grade: "V17", Attempts: 1, Completed: true}, 83},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProblemXP(tt.p))
		})
	}
}

func TestProblemXPIncompleteIsZero(t *testing.T) {
	for _, g := range Grades(VScale) {
		for _, attempts := range []int{1, 2, 5, 11, 50} {
			p := Problem{Grade: g, Attempts: attempts, Style: []string{"technical"}}
			assert.Zero(t, ProblemXP(p), "%s x%d", g, attempts)
		}
	}
}

func TestSessionXP(t *testing.T) {
	assert.Zero(t, SessionXP(nil))
	problems := []Problem{
		{Grade: "V5", Attempts: 1, Completed: true},
		{Grade: "V2", Attempts: 2, Completed: true},
		{Grade: "V8", Attempts: 20, Completed: false},
	}
	reversed := []Problem{problems[2], problems[1], problems[0]}
	assert.Equal(t, 35, SessionXP(problems))
	assert.Equal(t, SessionXP(problems), SessionXP(reversed))
	assert.Equal(t, SessionXP(problems), SessionXP(problems))
}

func TestElapsedWhilePausedIsFrozen(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := SessionClock{Status: StatusActive, StartTime: start}
	c, err := Pause(c, start.Add(30*time.Minute))
	require.NoError(t, err)

	first := ElapsedActiveMinutes(c, start.Add(31*time.Minute))
	for _, later := range []time.Duration{time.Hour, 5 * time.Hour, 48 * time.Hour} {
		assert.Equal(t, first, ElapsedActiveMinutes(c, start.Add(later)))
	}
	assert.Equal(t, 30, first)
}

func TestElapsedMonotonicWhileActive(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := SessionClock{Status: StatusActive, StartTime: start, TotalPaused: 10 * time.Minute}
	prev := -1
	for m := 0; m <= 120; m += 7 {
		got := ElapsedActiveMinutes(c, start.Add(time.Duration(m)*time.Minute))
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
}

func TestPauseResumeEndScenario(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := SessionClock{Status: StatusActive, StartTime: start}
	c, err := Pause(c, start.Add(30*time.Minute))
	require.NoError(t, err)
	c, err = Resume(c, start.Add(45*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 15, c.PausedMinutes())
	assert.Nil(t, c.PausedAt)
	c, err = End(c, start.Add(75*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, c.Status)
	assert.Equal(t, 60, ElapsedActiveMinutes(c, start.Add(10*time.Hour)))
}

func TestResumeDoesNotAddActiveTime(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := SessionClock{Status: StatusActive, StartTime: start}
	pausedAt := start.Add(30*time.Minute + 50*time.Second)
	c, err := Pause(c, pausedAt)
	require.NoError(t, err)
	assert.Equal(t, 30, ElapsedActiveMinutes(c, pausedAt))

	resumedAt := start.Add(45*time.Minute + 40*time.Second)
	c, err = Resume(c, resumedAt)
	require.NoError(t, err)
	assert.Equal(t, 14*time.Minute+50*time.Second, c.TotalPaused)
	assert.Equal(t, 14, c.PausedMinutes())
	assert.Equal(t, 30, ElapsedActiveMinutes(c, resumedAt))
	assert.Equal(t, 31, ElapsedActiveMinutes(c, resumedAt.Add(10*time.Second)))
}

func TestEndWhilePausedFoldsPause(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := SessionClock{Status: StatusActive, StartTime: start}
	c, _ = Pause(c, start.Add(20*time.Minute))
	c, err := End(c, start.Add(50*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 30, c.PausedMinutes())
	assert.Equal(t, 20, ElapsedActiveMinutes(c, start.Add(50*time.Minute)))
}

func TestInvalidClockTransitions(t *testing.T) {
	now := time.Now()
	_, err := Resume(SessionClock{Status: StatusActive, StartTime: now}, now)
	var te ErrInvalidTransition
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StatusActive, te.From)
	_, err = Pause(SessionClock{Status: StatusCompleted, StartTime: now}, now)
	assert.Error(t, err)
	_, err = End(SessionClock{Status: StatusCompleted, StartTime: now}, now)
	assert.Error(t, err)
}

func TestElapsedClampsBadStart(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	assert.Zero(t, ElapsedActiveMinutes(SessionClock{Status: StatusActive}, now))
	assert.Zero(t, ElapsedActiveMinutes(SessionClock{Status: StatusActive, StartTime: now.Add(time.Hour)}, now))
	assert.Zero(t, ElapsedActiveMinutes(SessionClock{Status: StatusActive, StartTime: now.Add(-time.Hour), TotalPaused: 90 * time.Minute}, now))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0m", FormatDuration(0))
	assert.Equal(t, "59m", FormatDuration(59))
	assert.Equal(t, "1h 0m", FormatDuration(60))
	assert.Equal(t, "2h 5m", FormatDuration(125))
}

func TestComputeLayerProgress(t *testing.T) {
	p := ComputeLayerProgress(1000, 2)
	assert.Equal(t, 50, p.LayerProgress)
	assert.Equal(t, 500, p.CurrentLayerXP)
	require.NotNil(t, p.NextLayerXP)
	assert.Equal(t, 1500, *p.NextLayerXP)

	assert.Equal(t, 100, ComputeLayerProgress(99999, 1).LayerProgress)
	assert.Equal(t, 0, ComputeLayerProgress(0, 3).LayerProgress)

	final := ComputeLayerProgress(25000, 7)
	assert.Nil(t, final.NextLayerXP)
	assert.Equal(t, 100, final.LayerProgress)

	unknown := ComputeLayerProgress(250, 42)
	assert.Equal(t, 1, unknown.Layer)
	assert.Equal(t, 50, unknown.LayerProgress)
}

func TestCanAdvance(t *testing.T) {
	for layer := 1; layer <= 6; layer++ {
		assert.False(t, CanAdvance(1_000_000, layer, false), "layer %d without quest", layer)
		assert.True(t, CanAdvance(1_000_000, layer, true), "layer %d with quest", layer)
	}
	assert.False(t, CanAdvance(1_000_000, 7, true))
	assert.False(t, CanAdvance(1_000_000, 7, false))
	assert.False(t, CanAdvance(499, 1, true))
	assert.True(t, CanAdvance(500, 1, true))
}

func TestDeriveLayer(t *testing.T) {
	done := map[int]bool{1: true, 2: true}
	assert.Equal(t, 3, DeriveLayer(5000, func(l int) bool { return done[l] }))
	assert.Equal(t, 2, DeriveLayer(1499, func(l int) bool { return done[l] }))
	assert.Equal(t, 1, DeriveLayer(50000, nil))
	assert.Equal(t, 7, DeriveLayer(50000, func(int) bool { return true }))
}

func TestWhistles(t *testing.T) {
	assert.Equal(t, 0, WhistleFor(-1).Level)
	assert.Equal(t, 0, WhistleFor(1).Level)
	assert.Equal(t, 1, WhistleFor(2).Level)
	assert.Equal(t, 3, WhistleFor(7).Level)
	assert.Equal(t, 5, WhistleFor(17).Level)
	assert.Equal(t, "Red Whistle", WhistleInfo(99).Name)
	next, ok := NextWhistle(2)
	require.True(t, ok)
	assert.Equal(t, "Moon Whistle", next.Name)
	_, ok = NextWhistle(5)
	assert.False(t, ok)
}
