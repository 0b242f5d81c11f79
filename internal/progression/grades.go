package progression

import (
	"fmt"
	"strings"
)

// GradeSystem identifies a bouldering grading scale.
type GradeSystem int

const (
	VScale GradeSystem = iota
	Font
	German
)

func (s GradeSystem) String() string {
	switch s {
	case VScale:
		return "V-Scale"
	case Font:
		return "Font"
	case German:
		return "German"
	default:
		return fmt.Sprintf("GradeSystem(%d)", int(s))
	}
}

// Valid reports whether s is one of the known systems.
func (s GradeSystem) Valid() bool {
	return s >= VScale && s <= German
}

// ParseGradeSystem accepts the canonical names plus a few common aliases.
func ParseGradeSystem(name string) (GradeSystem, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "v-scale", "vscale", "v", "hueco":
		return VScale, nil
	case "font", "fontainebleau", "fb":
		return Font, nil
	case "german", "saxon":
		return German, nil
	}
	return 0, fmt.Errorf("invalid grade system %q", name)
}

// MaxRank is the hardest V grade in the tables (V17).
const MaxRank = 17

// Primary labels indexed by V rank. Every rank has exactly one label per
// system so conversions round-trip through V-Scale.
var (
	fontLabels = [MaxRank + 1]string{
		"4", "5", "5+", "6A", "6B", "6C", "7A", "7A+", "7B",
		"7C", "7C+", "8A", "8A+", "8B", "8B+", "8C", "8C+", "9A",
	}
	germanLabels = [MaxRank + 1]string{
		"VI", "VIIa", "VIIb", "VIIc", "VIIIa", "VIIIb", "VIIIc", "IXa", "IXb",
		"IXc", "Xa", "Xb", "Xc", "XIa", "XIb", "XIc", "XIIa", "XIIb",
	}
	// Half grades that have no V-Scale counterpart of their own.
	fontAliases = map[string]int{
		"6B+": 4,
		"6C+": 5,
		"7B+": 8,
	}
	fontIndex   = buildIndex(fontLabels, fontAliases)
	germanIndex = buildIndex(germanLabels, nil)
)

func buildIndex(labels [MaxRank + 1]string, aliases map[string]int) map[string]int {
	idx := make(map[string]int, len(labels)+len(aliases))
	for rank, l := range labels {
		idx[strings.ToUpper(l)] = rank
	}
	for l, rank := range aliases {
		idx[strings.ToUpper(l)] = rank
	}
	return idx
}

// Rank returns the V-Scale ordinal of grade in system.
func Rank(grade string, system GradeSystem) (int, bool) {
	g := strings.ToUpper(strings.TrimSpace(grade))
	if g == "" {
		return 0, false
	}
	switch system {
	case VScale:
		if g == "VB" {
			return 0, true
		}
		if !strings.HasPrefix(g, "V") {
			return 0, false
		}
		var n int
		if _, err := fmt.Sscanf(g[1:], "%d", &n); err != nil {
			return 0, false
		}
		if fmt.Sprintf("V%d", n) != g || n < 0 || n > MaxRank {
			return 0, false
		}
		return n, true
	case Font:
		r, ok := fontIndex[g]
		return r, ok
	case German:
		r, ok := germanIndex[g]
		return r, ok
	}
	return 0, false
}

// Label returns the primary label of rank in system.
func Label(rank int, system GradeSystem) (string, bool) {
	if rank < 0 || rank > MaxRank {
		return "", false
	}
	switch system {
	case VScale:
		return fmt.Sprintf("V%d", rank), true
	case Font:
		return fontLabels[rank], true
	case German:
		return germanLabels[rank], true
	}
	return "", false
}

// Convert translates grade from one system to another, routing through
// V-Scale. Unknown grades come back unchanged.
func Convert(grade string, from, to GradeSystem) string {
	if from == to {
		return grade
	}
	rank, ok := Rank(grade, from)
	if !ok {
		return grade
	}
	out, ok := Label(rank, to)
	if !ok {
		return grade
	}
	return out
}

// Grades lists every primary label of system from easiest to hardest.
func Grades(system GradeSystem) []string {
	out := make([]string, 0, MaxRank+1)
	for r := 0; r <= MaxRank; r++ {
		if l, ok := Label(r, system); ok {
			out = append(out, l)
		}
	}
	return out
}
