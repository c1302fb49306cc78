// Package matcher ranks driver trips for a rider: gather candidates, score
// them concurrently, filter by threshold, sort and truncate.
package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/carpool-matching/internal/detour"
	"github.com/example/carpool-matching/internal/geo"
	"github.com/example/carpool-matching/internal/models"
	"github.com/example/carpool-matching/internal/observability"
	"github.com/example/carpool-matching/internal/pricing"
	"github.com/example/carpool-matching/internal/scoring"
	"github.com/example/carpool-matching/internal/storage"
)

const (
	DefaultMaxCandidates    = 20
	DefaultThresholdPercent = 30
	DefaultConcurrency      = 8
)

type DetourCalculator interface {
	DetourAndRide(ctx context.Context, route models.DriverRoute, rider models.RiderRequest) detour.Result
}

type Publisher interface {
	PublishMatch(ctx context.Context, e models.MatchEvent) error
}

// OriginIndex locates trips by where they start.
type OriginIndex interface {
	Within(ctx context.Context, loc models.Location, radiusKm float64) ([]string, error)
}

type Service struct {
	Store     storage.TripStore
	Detour    DetourCalculator
	Pricing   *pricing.Engine
	Publisher Publisher // optional
	Origins   OriginIndex // optional
	Logger    *slog.Logger

	// Location is the zone rider HH:MM times and desired dates are read in.
	Location        *time.Location
	DefaultSpeedMps float64
	MaxCandidates   int
	// ThresholdPercent drops candidates whose match percentage is below it.
	// Nil means DefaultThresholdPercent; a zero value keeps every candidate.
	ThresholdPercent *int
	Concurrency      int
	// RouteTimeout bounds each candidate's detour computation. Zero disables it.
	RouteTimeout time.Duration
	// OriginRadiusKm, when > 0, keeps only trips starting this close to the
	// rider. Trips Origins reports are kept; the rest are measured directly.
	OriginRadiusKm float64
	DebugScores    bool
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Service) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

func (s *Service) maxCandidates() int {
	if s.MaxCandidates <= 0 {
		return DefaultMaxCandidates
	}
	return s.MaxCandidates
}

func (s *Service) threshold() int {
	if s.ThresholdPercent == nil {
		return DefaultThresholdPercent
	}
	return *s.ThresholdPercent
}

func (s *Service) concurrency() int {
	if s.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return s.Concurrency
}

func (s *Service) pricingEngine() *pricing.Engine {
	if s.Pricing == nil {
		return pricing.NewEngine()
	}
	return s.Pricing
}

// FindMatches returns at most MaxCandidates matches, best first. An empty
// result is not an error.
func (s *Service) FindMatches(ctx context.Context, req models.RiderRequest) ([]models.RideMatch, error) {
	start := time.Now()
	defer func() { observability.MatchLatency.Observe(time.Since(start).Seconds()) }()

	ranked, evaluated, err := s.Rank(ctx, &req)
	if err != nil {
		return nil, err
	}

	out := make([]models.RideMatch, len(ranked))
	for i, c := range ranked {
		out[i] = s.toRideMatch(c)
	}
	observability.MatchesTotal.Add(float64(len(out)))
	s.publish(ctx, req.RiderID, ranked, evaluated)
	return out, nil
}

// Rank runs the gather, score, filter, rank and truncate stages and reports
// how many candidates were scored. req is normalised in place.
func (s *Service) Rank(ctx context.Context, req *models.RiderRequest) ([]models.ScoredCandidate, int, error) {
	if err := req.Validate(); err != nil {
		return nil, 0, err
	}
	riderArrival, _ := models.ClockMinutes(req.DesiredArrivalTime)

	trips, pending, err := s.gather(ctx, *req)
	if err != nil {
		return nil, 0, err
	}
	if len(trips) == 0 {
		return nil, 0, nil
	}

	scored := s.score(ctx, *req, riderArrival, trips, pending)
	observability.CandidatesEvaluated.Add(float64(len(scored)))

	threshold := s.threshold()
	kept := scored[:0]
	for _, c := range scored {
		if c.MatchPercentage >= threshold {
			kept = append(kept, c)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Scores.Total > kept[j].Scores.Total })
	if limit := s.maxCandidates(); len(kept) > limit {
		kept = kept[:limit]
	}
	return kept, len(scored), nil
}

// gather loads eligible trips: no conflicting request from this rider and at
// least one seat left. Pending request counts are returned for display.
func (s *Service) gather(ctx context.Context, req models.RiderRequest) ([]models.DriverRoute, map[string]int, error) {
	q := storage.CandidateQuery{
		Origin:           req.Origin,
		Destination:      req.Destination,
		Statuses:         storage.DefaultTripStatuses,
		Date:             req.DesiredDate,
		Location:         s.location(),
		IncludeSynthetic: req.IncludeSynthetic,
	}
	nearby := s.nearbyTrips(ctx, req.Origin)
	if nearby == nil {
		q.MaxOriginDistanceKm = s.OriginRadiusKm
	}
	trips, err := s.Store.LoadCandidateTrips(ctx, q)
	if err != nil {
		return nil, nil, fmt.Errorf("gather candidates: %w", err)
	}
	active, err := s.Store.LoadActiveRequestsForRider(ctx, req.RiderID)
	if err != nil {
		return nil, nil, fmt.Errorf("gather active requests: %w", err)
	}
	conflicts := make(map[string]struct{}, len(active))
	for _, id := range active {
		conflicts[id] = struct{}{}
	}

	eligible := make([]models.DriverRoute, 0, len(trips))
	ids := make([]string, 0, len(trips))
	for _, t := range trips {
		if _, ok := conflicts[t.TripID]; ok {
			continue
		}
		if nearby != nil && !s.startsNear(t, req.Origin, nearby) {
			continue
		}
		if t.RemainingSeats() <= 0 {
			continue
		}
		eligible = append(eligible, t)
		ids = append(ids, t.TripID)
	}
	if len(eligible) == 0 {
		return nil, nil, nil
	}

	pending, err := s.Store.CountPendingRequestsByTrip(ctx, ids)
	if err != nil {
		s.logger().Warn("pending request count failed", "rider_id", req.RiderID, "error", err)
		pending = map[string]int{}
	}
	return eligible, pending, nil
}

// nearbyTrips returns the set of trip ids the origin index places within
// OriginRadiusKm, or nil when no index lookup applies. Index failures fall
// back to the store's own distance filter. The index is fed from trip events
// and may lag the store, so a missing id is not evidence of distance.
func (s *Service) nearbyTrips(ctx context.Context, origin models.Location) map[string]struct{} {
	if s.Origins == nil || s.OriginRadiusKm <= 0 {
		return nil
	}
	ids, err := s.Origins.Within(ctx, origin, s.OriginRadiusKm)
	if err != nil {
		s.logger().Warn("origin index lookup failed", "error", err)
		return nil
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// startsNear keeps a trip the index reports, otherwise measures its stored
// origin against the radius.
func (s *Service) startsNear(t models.DriverRoute, origin models.Location, nearby map[string]struct{}) bool {
	if _, ok := nearby[t.TripID]; ok {
		return true
	}
	return geo.DistanceKm(t.Origin, origin) <= s.OriginRadiusKm
}

// score computes every candidate concurrently, then applies the cost score
// against the cheapest fare once all raw costs are known.
func (s *Service) score(ctx context.Context, req models.RiderRequest, riderArrival int, trips []models.DriverRoute, pending map[string]int) []models.ScoredCandidate {
	engine := s.pricingEngine()
	results := make([]models.ScoredCandidate, len(trips))
	tripDurations := make([]int, len(trips))

	var g errgroup.Group
	g.SetLimit(s.concurrency())
	for i := range trips {
		i := i
		g.Go(func() error {
			route := s.withAcceptedPassengers(ctx, trips[i])
			cctx := ctx
			if s.RouteTimeout > 0 {
				var cancel context.CancelFunc
				cctx, cancel = context.WithTimeout(ctx, s.RouteTimeout)
				defer cancel()
			}
			res := s.Detour.DetourAndRide(cctx, route, req)

			seats := trips[i].RemainingSeats() - pending[trips[i].TripID]
			if seats < 0 {
				seats = 0
			}
			results[i] = models.ScoredCandidate{
				Route:               trips[i],
				Cost:                engine.Breakdown(res.RideDistanceKm, res.RideDurationSeconds, trips[i].CurrentPassengers, res.DetourSeconds),
				DetourSeconds:       res.DetourSeconds,
				RideDistanceKm:      res.RideDistanceKm,
				RideDurationSeconds: res.RideDurationSeconds,
				AvailableSeats:      seats,
				ArrivalAtPickup:     s.arrivalAtPickup(trips[i], req.Origin),
			}
			tripDurations[i] = res.TripDurationSeconds
			return nil
		})
	}
	_ = g.Wait()

	minCost := math.Inf(1)
	for _, c := range results {
		minCost = math.Min(minCost, c.Cost.FinalCost)
	}

	weights := scoring.WeightsFor(req.Preference)
	for i := range results {
		c := &results[i]
		t := c.Route
		sc := models.Scores{
			Schedule: scoring.Schedule(s.driverArrivalMinutes(t, tripDurations[i]), riderArrival),
			Location: scoring.Location(c.DetourSeconds, t.DetourToleranceMinutes),
			Cost:     pricing.CostScore(c.Cost.FinalCost, minCost),
			Comfort:  scoring.Comfort(t.CurrentPassengers, t.MaxPassengers, req.MaxOccupancy),
		}
		c.Scores = scoring.Total(sc, weights)
		c.MatchPercentage = scoring.Percentage(c.Scores.Total, weights)
	}
	return results
}

// withAcceptedPassengers appends accepted riders' pickups to the trip's
// waypoints so the detour reflects stops already promised.
func (s *Service) withAcceptedPassengers(ctx context.Context, t models.DriverRoute) models.DriverRoute {
	pickups, err := s.Store.LoadAcceptedPassengers(ctx, t.TripID)
	if err != nil {
		s.logger().Warn("accepted passengers load failed", "trip_id", t.TripID, "error", err)
		return t
	}
	if len(pickups) == 0 {
		return t
	}
	wps := make([]models.Location, 0, len(t.Waypoints)+len(pickups))
	wps = append(wps, t.Waypoints...)
	t.Waypoints = append(wps, pickups...)
	return t
}

func (s *Service) driverArrivalMinutes(t models.DriverRoute, tripDurationSeconds int) int {
	arrival := t.PlannedArrival
	if arrival.IsZero() {
		arrival = t.DepartureTime.Add(time.Duration(tripDurationSeconds) * time.Second)
	}
	local := arrival.In(s.location())
	return local.Hour()*60 + local.Minute()
}

func (s *Service) arrivalAtPickup(t models.DriverRoute, pickup models.Location) string {
	secs := geo.EstimateSeconds(t.Origin, pickup, s.DefaultSpeedMps)
	return t.DepartureTime.Add(time.Duration(secs * float64(time.Second))).In(s.location()).Format("15:04")
}

func (s *Service) toRideMatch(c models.ScoredCandidate) models.RideMatch {
	t := c.Route
	m := models.RideMatch{
		RideID:          t.TripID,
		DriverID:        t.DriverID,
		Name:            t.Driver.Name,
		ProfilePic:      t.Driver.ProfilePic,
		Vehicle:         t.Driver.Vehicle,
		Rating:          t.Driver.Rating,
		Bio:             t.Driver.Bio,
		MatchPercentage: c.MatchPercentage,
		UILabel:         scoring.Label(c.MatchPercentage),
		Details: models.MatchDetails{
			EstimatedCost:        c.Cost.FinalCost,
			EstimatedDistanceKm:  math.Round(c.RideDistanceKm*10) / 10,
			EstimatedDurationSec: c.RideDurationSeconds,
			DetourMinutes:        math.Round(float64(c.DetourSeconds)/60*10) / 10,
			ArrivalAtPickup:      c.ArrivalAtPickup,
			AvailableSeats:       c.AvailableSeats,
		},
	}
	if s.DebugScores {
		sc := c.Scores
		m.DebugScores = &sc
	}
	return m
}

func (s *Service) publish(ctx context.Context, riderID string, ranked []models.ScoredCandidate, evaluated int) {
	if s.Publisher == nil {
		return
	}
	ev := models.MatchEvent{
		RiderID:     riderID,
		TripIDs:     make([]string, len(ranked)),
		Percentages: make([]int, len(ranked)),
		Evaluated:   evaluated,
		CreatedAt:   time.Now().UTC(),
	}
	for i, c := range ranked {
		ev.TripIDs[i] = c.Route.TripID
		ev.Percentages[i] = c.MatchPercentage
	}
	if err := s.Publisher.PublishMatch(ctx, ev); err != nil {
		s.logger().Warn("match event publish failed", "rider_id", riderID, "error", err)
	}
}
