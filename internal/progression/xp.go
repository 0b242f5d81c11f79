package progression

import "strings"

// Problem is the scoring view of a logged boulder problem.
type Problem struct {
	Grade       string
	GradeSystem GradeSystem
	Style       []string
	Completed   bool
	Attempts    int
}

// baseXP is indexed by V rank.
var baseXP = [MaxRank + 1]int{
	5, 5, // V0-V1
	10, 10, // V2-V3
	15, 15, // V4-V5
	20, 20, // V6-V7
	25, 25, // V8-V9
	30, 30, // V10-V11
	35, 35, // V12-V13
	40, 45, 50, 55, // V14-V17
}

// Multipliers are expressed in hundredths to keep rounding exact.
const (
	flashMultiplier     = 150
	fewAttemptsMult     = 120
	standardMultiplier  = 100
	bruteForceMult      = 80
	technicalMultiplier = 120
)

var technicalStyles = map[string]struct{}{
	"technical":    {},
	"balance":      {},
	"coordination": {},
	"endurance":    {},
}

// BaseXP returns the grade component of the score. Unknown grades earn the
// lowest tier.
func BaseXP(grade string, system GradeSystem) int {
	rank, ok := Rank(grade, system)
	if !ok {
		return baseXP[0]
	}
	return baseXP[rank]
}

// AttemptMultiplier returns the efficiency factor in hundredths.
func AttemptMultiplier(attempts int) int {
	switch {
	case attempts <= 1:
		return flashMultiplier
	case attempts <= 3:
		return fewAttemptsMult
	case attempts <= 10:
		return standardMultiplier
	default:
		return bruteForceMult
	}
}

// StyleMultiplier returns the style factor in hundredths. Matching tags do
// not stack.
func StyleMultiplier(styles []string) int {
	for _, s := range styles {
		if _, ok := technicalStyles[strings.ToLower(strings.TrimSpace(s))]; ok {
			return technicalMultiplier
		}
	}
	return standardMultiplier
}

// IsFlash reports whether p was sent first try.
func IsFlash(p Problem) bool {
	return p.Completed && p.Attempts <= 1
}

// ProblemXP scores a single problem. Incomplete problems earn nothing.
func ProblemXP(p Problem) int {
	if !p.Completed {
		return 0
	}
	scaled := BaseXP(p.Grade, p.GradeSystem) * AttemptMultiplier(p.Attempts) * StyleMultiplier(p.Style)
	// scaled is in ten-thousandths; add half a unit to round half-up.
	return (scaled + 5000) / 10000
}

// SessionXP sums ProblemXP over problems.
func SessionXP(problems []Problem) int {
	total := 0
	for _, p := range problems {
		total += ProblemXP(p)
	}
	return total
}
