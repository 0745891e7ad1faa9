package universe

import (
	"gonum.org/v1/gonum/stat"

	"marketpulse/internal/domain"
)

// Stats summarizes market breadth over a ranked universe list.
type Stats struct {
	Count           int     `json:"count"`
	Advancers       int     `json:"advancers"`
	Decliners       int     `json:"decliners"`
	MeanChange24h   float64 `json:"mean_change_24h"`
	StdDevChange24h float64 `json:"stddev_change_24h"`
}

// ComputeStats derives breadth statistics from a ranked list. An empty list
// yields zero-valued stats.
func ComputeStats(ranked []domain.RankedSnapshot) Stats {
	s := Stats{Count: len(ranked)}
	if len(ranked) == 0 {
		return s
	}

	changes := make([]float64, len(ranked))
	for i, r := range ranked {
		changes[i] = r.Change24h
		switch {
		case r.Change24h > 0:
			s.Advancers++
		case r.Change24h < 0:
			s.Decliners++
		}
	}

	s.MeanChange24h = stat.Mean(changes, nil)
	if len(changes) > 1 {
		s.StdDevChange24h = stat.StdDev(changes, nil)
	}

	return s
}
