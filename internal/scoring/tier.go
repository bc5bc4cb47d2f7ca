package scoring

// Tier is the A-D classification of a score.
type Tier string

const (
	TierA Tier = "A"
	TierB Tier = "B"
	TierC Tier = "C"
	TierD Tier = "D"
)

// ForecastRange is the closed interval of win probabilities for a tier.
type ForecastRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

var forecastRanges = map[Tier]ForecastRange{
	TierA: {Min: 0.60, Max: 0.80},
	TierB: {Min: 0.35, Max: 0.60},
	TierC: {Min: 0.15, Max: 0.30},
	TierD: {Min: 0, Max: 0},
}

// TierFor maps a total score onto the fixed threshold ladder.
func TierFor(total int) Tier {
	switch {
	case total >= 80:
		return TierA
	case total >= 60:
		return TierB
	case total >= 40:
		return TierC
	default:
		return TierD
	}
}

// Valid reports whether t is one of the four tiers.
func (t Tier) Valid() bool {
	_, ok := forecastRanges[t]
	return ok
}

// Forecast returns the tier's forecast probability range.
func (t Tier) Forecast() ForecastRange {
	return forecastRanges[t]
}

// Clamp bounds p to the tier's forecast range.
func (r ForecastRange) Clamp(p float64) float64 {
	if p < r.Min {
		return r.Min
	}
	if p > r.Max {
		return r.Max
	}
	return p
}

// Contains reports whether p lies within the range.
func (r ForecastRange) Contains(p float64) bool {
	return p >= r.Min && p <= r.Max
}
