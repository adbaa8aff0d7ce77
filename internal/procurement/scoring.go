package procurement

// Scores are one evaluator's marks for a bid, each in [0,100].
type Scores struct {
	Technical  float64
	Financial  float64
	Experience *float64
	Compliance *float64
}

// ScoringPolicy turns an evaluator's scores into the composite used for ranking.
type ScoringPolicy interface {
	Composite(s Scores) float64
}

// WeightedScoring is a linear weighting of the four criteria.
// A missing optional score contributes 0, which lowers the composite of an
// evaluator who leaves it blank.
type WeightedScoring struct {
	Technical  float64
	Financial  float64
	Experience float64
	Compliance float64
}

// DefaultScoring is the 40/30/15/15 weighting used for constituency tenders.
var DefaultScoring = WeightedScoring{
	Technical:  0.40,
	Financial:  0.30,
	Experience: 0.15,
	Compliance: 0.15,
}

func (w WeightedScoring) Composite(s Scores) float64 {
	return s.Technical*w.Technical +
		s.Financial*w.Financial +
		valueOrZero(s.Experience)*w.Experience +
		valueOrZero(s.Compliance)*w.Compliance
}

func valueOrZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
