// Package scoring turns a candidate's schedule, detour, cost and seat usage
// into component scores in [0,1] and a weighted total.
package scoring

import (
	"math"

	"github.com/example/carpool-matching/internal/models"
)

// OnTimeWindowMinutes is how late a driver may arrive and still score 1.
const OnTimeWindowMinutes = 10

type Weights struct {
	Schedule float64
	Location float64
	Cost     float64
	Comfort  float64
}

func (w Weights) Sum() float64 { return w.Schedule + w.Location + w.Cost + w.Comfort }

var (
	DefaultWeights         = Weights{Schedule: 2.0, Location: 2.0, Cost: 1.5, Comfort: 0.5}
	CostPriorityWeights    = Weights{Schedule: 2.0, Location: 2.0, Cost: 1.75, Comfort: 0.1}
	ComfortPriorityWeights = Weights{Schedule: 2.0, Location: 2.0, Cost: 1.0, Comfort: 1.0}
)

// WeightsFor maps a rider preference onto its preset. Unknown values get the default.
func WeightsFor(p models.Preference) Weights {
	switch p {
	case models.PreferenceCostPriority:
		return CostPriorityWeights
	case models.PreferenceComfortPriority:
		return ComfortPriorityWeights
	default:
		return DefaultWeights
	}
}

// Schedule scores driverArrival-riderArrival in minutes. Late arrivals past
// the on-time window decay to 0 over 30 minutes, early ones over 60.
func Schedule(driverArrivalMinutes, riderArrivalMinutes int) float64 {
	diff := float64(driverArrivalMinutes - riderArrivalMinutes)
	switch {
	case diff >= 0 && diff <= OnTimeWindowMinutes:
		return 1
	case diff > OnTimeWindowMinutes:
		return math.Max(0, 1-(diff-OnTimeWindowMinutes)/30)
	default:
		return math.Max(0, 1-math.Abs(diff)/60)
	}
}

// Location is 1 within the driver's tolerance and never reaches 0 outside it.
func Location(detourSeconds, toleranceMinutes int) float64 {
	tol := toleranceMinutes * 60
	if detourSeconds <= tol {
		return 1
	}
	excess := float64(detourSeconds - tol)
	return math.Max(0.01, math.Exp(-0.005*excess))
}

// Comfort is 0 when one more rider would exceed either side's capacity.
func Comfort(currentPassengers, driverMaxPassengers, riderMaxOccupancy int) float64 {
	next := currentPassengers + 1
	if next > driverMaxPassengers || next > riderMaxOccupancy {
		return 0
	}
	return clamp01(1 - float64(next)/float64(driverMaxPassengers+1))
}

// Total fills s.Total from the four component scores.
func Total(s models.Scores, w Weights) models.Scores {
	s.Total = s.Schedule*w.Schedule + s.Location*w.Location + s.Cost*w.Cost + s.Comfort*w.Comfort
	return s
}

// Percentage rescales total against the best achievable total to 0..100.
func Percentage(total float64, w Weights) int {
	sum := w.Sum()
	if sum <= 0 {
		return 0
	}
	p := int(math.Round(total / sum * 100))
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}

// Label is the short display string for a match percentage.
func Label(percentage int) string {
	switch {
	case percentage >= 80:
		return "Great match"
	case percentage >= 60:
		return "Good match"
	default:
		return "Fair match"
	}
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
