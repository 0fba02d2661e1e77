package model

// SignalResult is the received signal between two nodes.
//
// Percent is a logistic saturation of DBm and is therefore strictly
// increasing in DBm.
type SignalResult struct {
	Percent float64 `json:"perc"`
	DBm     float64 `json:"dBm"`
}

// Edge is one usable link. Edges are symmetric: the same SignalResult is
// stored under both A->B and B->A.
type Edge struct {
	A      string       `json:"a"`
	B      string       `json:"b"`
	Signal SignalResult `json:"signal"`
}

// Hears is the published adjacency view: node -> neighbour -> signal.
type Hears map[string]map[string]SignalResult

// HearsFromEdges expands an edge list into the symmetric adjacency view.
// Every name in names gets an entry, even when it has no neighbours.
func HearsFromEdges(names []string, edges []Edge) Hears {
	out := make(Hears, len(names))
	for _, n := range names {
		out[n] = map[string]SignalResult{}
	}
	for _, e := range edges {
		if out[e.A] == nil {
			out[e.A] = map[string]SignalResult{}
		}
		if out[e.B] == nil {
			out[e.B] = map[string]SignalResult{}
		}
		out[e.A][e.B] = e.Signal
		out[e.B][e.A] = e.Signal
	}
	return out
}

// LinkQuality is a coarse, human-readable bucket for a SignalResult.
type LinkQuality string

const (
	LinkQualityDown      LinkQuality = "down"
	LinkQualityPoor      LinkQuality = "poor"
	LinkQualityFair      LinkQuality = "fair"
	LinkQualityGood      LinkQuality = "good"
	LinkQualityExcellent LinkQuality = "excellent"
)

// Quality buckets the percentage. Thresholds follow the colour bands used
// by the dashboard (0/30/60/90).
func (s SignalResult) Quality() LinkQuality {
	switch {
	case s.Percent < 1:
		return LinkQualityDown
	case s.Percent < 30:
		return LinkQualityPoor
	case s.Percent < 60:
		return LinkQualityFair
	case s.Percent < 90:
		return LinkQualityGood
	default:
		return LinkQualityExcellent
	}
}
