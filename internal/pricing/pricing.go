// Package pricing estimates per-rider fares and scores them against the
// cheapest fare in the same batch.
package pricing

import (
	"math"

	"github.com/example/carpool-matching/internal/models"
)

// Fare holds the tariff. The zero value is not usable; start from DefaultFare.
type Fare struct {
	BaseFare      float64
	RatePerKm     float64
	RatePerMinute float64

	// SurchargePerStep is added for every StepMinutes of detour, up to MaxSurcharge.
	SurchargePerStep float64
	StepMinutes      float64
	MaxSurcharge     float64

	// Discounts is indexed by min(currentPassengers, len-1).
	Discounts []float64
}

var DefaultFare = Fare{
	BaseFare:         2.5,
	RatePerKm:        0.2,
	RatePerMinute:    0.1,
	SurchargePerStep: 0.05,
	StepMinutes:      5,
	MaxSurcharge:     0.25,
	Discounts:        []float64{0, 0.15, 0.25, 0.35},
}

type Engine struct {
	Fare Fare
}

func NewEngine() *Engine { return &Engine{Fare: DefaultFare} }

// Estimate returns the final rider cost rounded to cents.
func (e *Engine) Estimate(distanceKm float64, durationSeconds, currentPassengers, detourSeconds int) float64 {
	return e.Breakdown(distanceKm, durationSeconds, currentPassengers, detourSeconds).FinalCost
}

func (e *Engine) Breakdown(distanceKm float64, durationSeconds, currentPassengers, detourSeconds int) models.CostBreakdown {
	f := e.Fare
	distanceCharge := distanceKm * f.RatePerKm
	timeCharge := float64(durationSeconds) / 60 * f.RatePerMinute
	raw := f.BaseFare + distanceCharge + timeCharge

	surcharge := f.surcharge(detourSeconds)
	discount := f.discount(currentPassengers)

	return models.CostBreakdown{
		BaseFare:               f.BaseFare,
		DistanceCharge:         round2(distanceCharge),
		TimeCharge:             round2(timeCharge),
		Subtotal:               round2(raw),
		DetourSurchargePercent: round2(surcharge * 100),
		DiscountPercent:        round2(discount * 100),
		FinalCost:              round2(raw * (1 + surcharge) * (1 - discount)),
	}
}

func (f Fare) surcharge(detourSeconds int) float64 {
	if detourSeconds <= 0 || f.StepMinutes <= 0 {
		return 0
	}
	s := float64(detourSeconds) / 60 / f.StepMinutes * f.SurchargePerStep
	return math.Min(f.MaxSurcharge, s)
}

func (f Fare) discount(currentPassengers int) float64 {
	if len(f.Discounts) == 0 || currentPassengers <= 0 {
		return 0
	}
	idx := currentPassengers
	if idx > len(f.Discounts)-1 {
		idx = len(f.Discounts) - 1
	}
	return f.Discounts[idx]
}

// CostScore is 1 for the cheapest fare in the batch and decays exponentially
// with each unit above it.
func CostScore(cost, minCostInBatch float64) float64 {
	if cost <= minCostInBatch {
		return 1
	}
	return math.Exp(-0.1 * (cost - minCostInBatch))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
