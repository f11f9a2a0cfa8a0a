package index

import (
	"sort"
	"time"
)

// FrameTimes returns the offsets at which to sample frames from a clip of
// the given duration, bounded by maxFrames.
//
// The first sample lands at min(2s, 10% of duration), past the blank or
// black opening common in consumer footage. Short clips add a middle
// and near-end sample; longer clips step by interval, switching to even
// distribution when the interval would exceed the frame budget. Offsets in
// the final second are discarded. Returns nil for an unknown or non-positive
// duration.
func FrameTimes(duration time.Duration, maxFrames int, interval time.Duration) []time.Duration {
	d := duration.Seconds()
	if d <= 0 || maxFrames <= 0 {
		return nil
	}

	first := 2.0
	if tenth := d * 0.1; tenth < first {
		first = tenth
	}
	times := []float64{first}

	if d <= 10 {
		if d > 5 {
			times = append(times, d*0.5)
		}
		times = append(times, d*0.9)
	} else {
		step := interval.Seconds()
		if step <= 0 {
			step = 10
		}
		budget := maxFrames - 1

		if int(d/step) <= budget {
			for t := step; t < d-2 && len(times) < maxFrames; t += step {
				times = append(times, t)
			}
		} else {
			for i := 1; i <= budget; i++ {
				times = append(times, d*float64(i)/float64(budget+1))
			}
		}
	}

	out := make([]time.Duration, 0, len(times))
	for _, t := range times {
		if t < d-1 {
			out = append(out, time.Duration(t*float64(time.Second)))
		}
	}
	if len(out) > maxFrames {
		out = out[:maxFrames]
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
