package models

import (
	"hearcheck-go/internal/screening"

	"github.com/lib/pq"
)

// NewAudiogramResult flattens a screening result into parallel arrays
// ordered like frequencies.
func NewAudiogramResult(userID uint, runID string, frequencies []int, res *screening.Result, abandoned bool) *AudiogramResult {
	a := &AudiogramResult{
		UserID:           userID,
		RunID:            runID,
		Frequencies:      make(pq.Int64Array, 0, len(frequencies)),
		LeftThresholds:   make(pq.Float64Array, 0, len(frequencies)),
		RightThresholds:  make(pq.Float64Array, 0, len(frequencies)),
		LeftAvg:          res.LeftAvg,
		RightAvg:         res.RightAvg,
		Dissimilarity:    res.Dissimilarity,
		MaxDiff:          res.MaxDiff,
		MaxDiffFrequency: res.MaxDiffFrequency,
		Abandoned:        abandoned,
	}
	for _, f := range frequencies {
		left, _ := res.Thresholds.Get(screening.EarLeft, f)
		right, _ := res.Thresholds.Get(screening.EarRight, f)
		a.Frequencies = append(a.Frequencies, int64(f))
		a.LeftThresholds = append(a.LeftThresholds, left)
		a.RightThresholds = append(a.RightThresholds, right)
	}
	return a
}

// Thresholds rebuilds the ear/frequency map from the stored arrays.
func (a *AudiogramResult) Thresholds() screening.Thresholds {
	th := screening.NewThresholds()
	for i, f := range a.Frequencies {
		if i < len(a.LeftThresholds) {
			th.Set(screening.EarLeft, int(f), a.LeftThresholds[i])
		}
		if i < len(a.RightThresholds) {
			th.Set(screening.EarRight, int(f), a.RightThresholds[i])
		}
	}
	return th
}
