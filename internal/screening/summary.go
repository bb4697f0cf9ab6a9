package screening

import "math"

// Backfill returns a copy of th with fallback recorded for every ear and
// frequency that has no threshold.
func Backfill(th Thresholds, frequencies []int, fallback float64) Thresholds {
	out := th.Clone()
	for _, ear := range Ears {
		for _, f := range frequencies {
			if _, ok := out.Get(ear, f); !ok {
				out.Set(ear, f, fallback)
			}
		}
	}
	return out
}

// Summarize backfills th and derives the per-ear averages, the per-frequency
// inter-ear differences and the dissimilarity between the two averages.
// Ties on the largest difference resolve to the earliest frequency.
func Summarize(th Thresholds, frequencies []int, fallback float64) Result {
	filled := Backfill(th, frequencies, fallback)
	res := Result{
		Completed:   true,
		Thresholds:  filled,
		Differences: make(map[int]float64, len(frequencies)),
	}
	if len(frequencies) == 0 {
		return res
	}

	var leftSum, rightSum float64
	maxDiff := -1.0
	for _, f := range frequencies {
		left := filled[EarLeft][f]
		right := filled[EarRight][f]
		leftSum += left
		rightSum += right

		diff := math.Abs(left - right)
		res.Differences[f] = diff
		if diff > maxDiff {
			maxDiff = diff
			res.MaxDiffFrequency = f
		}
	}

	n := float64(len(frequencies))
	res.LeftAvg = leftSum / n
	res.RightAvg = rightSum / n
	res.MaxDiff = maxDiff
	res.Dissimilarity = math.Abs(res.LeftAvg - res.RightAvg)
	return res
}
