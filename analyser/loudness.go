package analyser

import "math"

// Loudness collapses one frame of byte frequency bins into a single decibel
// reading: 20*log10(mean/255). A zero mean clamps to MinDB instead of
// producing -Inf. Output range is [MinDB, 0].
func Loudness(bins []byte) float64 {
	if len(bins) == 0 {
		return MinDB
	}
	var sum uint64
	for _, b := range bins {
		sum += uint64(b)
	}
	mean := float64(sum) / float64(len(bins)) / 255.0
	if mean <= 0 {
		return MinDB
	}
	db := 20 * math.Log10(mean)
	if db < MinDB {
		db = MinDB
	}
	if db > 0 {
		db = 0
	}
	return db
}
