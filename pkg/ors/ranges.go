package ors

import (
	"slices"

	"github.com/sells-group/orsmap/internal/model"
)

const (
	// MaxRings is the most ring boundaries a single isochrone request may carry.
	MaxRings = 10

	// MaxDistanceMeters is the largest distance range the public service accepts.
	MaxDistanceMeters = 15000
)

// Ranges decomposes an outer range and a ring spacing, both in transport
// units, into ascending ring boundaries. The result has at most MaxRings
// entries and ends at rng, except that distance boundaries are capped at
// MaxDistanceMeters.
func Ranges(rng, interval int, rt model.RangeType) []int {
	var out []int
	if interval <= 0 || interval > rng {
		out = []int{rng}
	} else {
		step := interval
		if rng/step > MaxRings {
			step = (rng + MaxRings - 1) / MaxRings
		}
		for v := step; v <= rng && len(out) < MaxRings; v += step {
			out = append(out, v)
		}
		switch {
		case len(out) == 0:
			out = append(out, rng)
		case out[len(out)-1] == rng:
		case len(out) < MaxRings:
			out = append(out, rng)
		default:
			out[len(out)-1] = rng
		}
	}
	out = sortUnique(out)

	if rt.OrDefault() == model.RangeDistance {
		for i, v := range out {
			out[i] = min(v, MaxDistanceMeters)
		}
		out = sortUnique(out)
	}
	return out
}

func sortUnique(vs []int) []int {
	slices.Sort(vs)
	return slices.Compact(vs)
}
