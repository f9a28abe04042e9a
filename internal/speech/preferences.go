package speech

import "math"

const (
	MinVolume = 0.0
	MaxVolume = 1.0
	MinRate   = 0.5
	MaxRate   = 2.0
)

// Preferences are the process-wide voice parameters read before every utterance.
type Preferences struct {
	Volume float64
	Rate   float64
}

func DefaultPreferences() Preferences {
	return Preferences{Volume: 1.0, Rate: 1.0}
}

// Clamp keeps both fields in range and rounds away float drift from repeated steps.
func (p Preferences) Clamp() Preferences {
	return Preferences{
		Volume: clamp(round2(p.Volume), MinVolume, MaxVolume),
		Rate:   clamp(round2(p.Rate), MinRate, MaxRate),
	}
}

// WithVolumeDelta returns p with the volume stepped by d.
func (p Preferences) WithVolumeDelta(d float64) Preferences {
	p.Volume += d
	return p.Clamp()
}

// WithRateDelta returns p with the rate stepped by d.
func (p Preferences) WithRateDelta(d float64) Preferences {
	p.Rate += d
	return p.Clamp()
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
