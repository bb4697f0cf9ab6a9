package screening

import (
	"math"
	"sort"
)

// levelTally counts answers at one presentation level.
type levelTally struct {
	level float64
	heard int
	total int
}

func (t levelTally) yesRate() float64 {
	return float64(t.heard) / float64(t.total)
}

// tallyByLevel groups trials by exact level, ascending. Trials with a
// non-finite level are ignored.
func tallyByLevel(trials []Trial) []levelTally {
	index := make(map[float64]int, len(trials))
	tallies := make([]levelTally, 0, len(trials))
	for _, tr := range trials {
		if math.IsNaN(tr.Level) || math.IsInf(tr.Level, 0) {
			continue
		}
		i, ok := index[tr.Level]
		if !ok {
			i = len(tallies)
			index[tr.Level] = i
			tallies = append(tallies, levelTally{level: tr.Level})
		}
		tallies[i].total++
		if tr.Heard {
			tallies[i].heard++
		}
	}
	sort.Slice(tallies, func(a, b int) bool { return tallies[a].level < tallies[b].level })
	return tallies
}

// EstimateThreshold returns the lowest level heard on at least half of its
// presentations. Without such a level it falls back to the lowest level heard
// at all, then to the loudest level presented, and finally to fallback when
// there is no usable trial.
func EstimateThreshold(trials []Trial, fallback float64) float64 {
	tallies := tallyByLevel(trials)
	if len(tallies) == 0 {
		return fallback
	}

	for _, t := range tallies {
		if t.yesRate() >= 0.5 {
			return t.level
		}
	}
	for _, t := range tallies {
		if t.heard > 0 {
			return t.level
		}
	}
	return tallies[len(tallies)-1].level
}
