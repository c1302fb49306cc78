package ingest

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/carpool-matching/internal/models"
)

var ErrInvalidEvent = errors.New("invalid trip event")

// DecodeTripEvent parses and validates a trip event payload. Closed trips
// only need an id.
func DecodeTripEvent(b []byte) (models.TripEvent, error) {
	var e models.TripEvent
	if err := json.Unmarshal(b, &e); err != nil {
		return models.TripEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if e.TripID == "" {
		return models.TripEvent{}, fmt.Errorf("%w: missing trip_id", ErrInvalidEvent)
	}
	if e.Closed() {
		return e, nil
	}
	if !validLocation(e.Origin) || !validLocation(e.Destination) {
		return models.TripEvent{}, fmt.Errorf("%w: coordinates out of range", ErrInvalidEvent)
	}
	return e, nil
}

func validLocation(l models.Location) bool {
	if l.Lat == 0 && l.Lng == 0 {
		return false
	}
	return l.Lat >= -90 && l.Lat <= 90 && l.Lng >= -180 && l.Lng <= 180
}
