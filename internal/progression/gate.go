package progression

// Layer is one depth band of the Abyss.
type Layer struct {
	Number    int
	Name      string
	Threshold int
}

const (
	FirstLayer = 1
	FinalLayer = 7
)

var layers = [FinalLayer]Layer{
	{1, "Edge of the Abyss", 0},
	{2, "Forest of Temptation", 500},
	{3, "Great Fault", 1500},
	{4, "Goblets of Giants", 3500},
	{5, "Sea of Corpses", 7000},
	{6, "Capital of the Unreturned", 12000},
	{7, "Final Maelstrom", 20000},
}

// LayerInfo returns the layer definition, falling back to layer 1 for
// unknown numbers.
func LayerInfo(n int) Layer {
	if n < FirstLayer || n > FinalLayer {
		return layers[0]
	}
	return layers[n-1]
}

// Layers returns all layer definitions in order.
func Layers() []Layer {
	out := make([]Layer, len(layers))
	copy(out, layers[:])
	return out
}

// LayerProgress describes how far a climber is through their current layer.
type LayerProgress struct {
	Layer          int  `json:"layer"`
	LayerProgress  int  `json:"layer_progress"`
	CurrentLayerXP int  `json:"current_layer_xp"`
	NextLayerXP    *int `json:"next_layer_xp"`
}

// ComputeLayerProgress returns the percentage of the current layer's XP band
// already earned, clamped to [0,100]. The final layer has no next threshold.
func ComputeLayerProgress(totalXP, currentLayer int) LayerProgress {
	cur := LayerInfo(currentLayer)
	res := LayerProgress{Layer: cur.Number, CurrentLayerXP: cur.Threshold}
	if cur.Number == FinalLayer {
		res.LayerProgress = 100
		return res
	}
	next := layers[cur.Number].Threshold
	res.NextLayerXP = &next
	band := next - cur.Threshold
	pct := (totalXP - cur.Threshold) * 100 / band
	res.LayerProgress = min(100, max(0, pct))
	return res
}

// CanAdvance requires both the next layer's XP threshold and the current
// layer's quest. The final layer never advances.
func CanAdvance(totalXP, currentLayer int, layerQuestCompleted bool) bool {
	if currentLayer < FirstLayer || currentLayer >= FinalLayer {
		return false
	}
	if !layerQuestCompleted {
		return false
	}
	return totalXP >= layers[currentLayer].Threshold
}

// DeriveLayer recomputes the layer from scratch by walking the gates from
// layer 1. questDone reports whether the quest for a given layer is complete.
func DeriveLayer(totalXP int, questDone func(layer int) bool) int {
	layer := FirstLayer
	for CanAdvance(totalXP, layer, questDone != nil && questDone(layer)) {
		layer++
	}
	return layer
}

// Whistle is a rank earned by the hardest grade sent.
type Whistle struct {
	Level    int
	Name     string
	MinGrade int // V rank; -1 means no send required
}

const MaxWhistle = 5

var whistles = [MaxWhistle + 1]Whistle{
	{0, "Bell", -1},
	{1, "Red Whistle", 2},
	{2, "Blue Whistle", 4},
	{3, "Moon Whistle", 6},
	{4, "Black Whistle", 8},
	{5, "White Whistle", 11},
}

// WhistleFor returns the whistle earned with highestRank as the hardest
// completed V rank. Pass -1 when nothing has been sent.
func WhistleFor(highestRank int) Whistle {
	w := whistles[0]
	for _, c := range whistles[1:] {
		if highestRank >= c.MinGrade {
			w = c
		}
	}
	return w
}

// WhistleInfo returns a whistle by level, falling back to level 1 for
// unknown levels.
func WhistleInfo(level int) Whistle {
	if level < 0 || level > MaxWhistle {
		return whistles[1]
	}
	return whistles[level]
}

// NextWhistle returns the whistle after level, or false at the top rank.
func NextWhistle(level int) (Whistle, bool) {
	if level < 0 || level >= MaxWhistle {
		return Whistle{}, false
	}
	return whistles[level+1], true
}
