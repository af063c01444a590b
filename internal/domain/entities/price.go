package entities

import "time"

// PriceFreshness classifies a cached observation by age
type PriceFreshness string

const (
	PriceFresh PriceFreshness = "FRESH" // age < 5m
	PriceAging PriceFreshness = "AGING" // 5m <= age < 30m
	PriceStale PriceFreshness = "STALE" // age >= 30m
)

const (
	PriceFreshMax = 5 * time.Minute
	PriceStaleMin = 30 * time.Minute
)

// PriceObservation is one asset price from one source at one time
type PriceObservation struct {
	Asset      string    `json:"asset"` // e.g. "SOL", "ETH"
	PriceUSD   float64   `json:"priceUsd"`
	Source     string    `json:"source"`
	ObservedAt time.Time `json:"observedAt"`
}

// FreshnessAt classifies the observation relative to now.
func (p *PriceObservation) FreshnessAt(now time.Time) PriceFreshness {
	age := now.Sub(p.ObservedAt)
	switch {
	case age < PriceFreshMax:
		return PriceFresh
	case age < PriceStaleMin:
		return PriceAging
	default:
		return PriceStale
	}
}
