package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/carpool-matching/internal/models"
)

type captureWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func (c *captureWriter) Close() error { c.closed = true; return nil }

func TestPublishMatch_KeyedByRider(t *testing.T) {
	w := &captureWriter{}
	p := NewProducerWithWriter(w)
	ev := models.MatchEvent{
		RiderID:     "rider-1",
		TripIDs:     []string{"t1", "t2"},
		Percentages: []int{91, 64},
		Evaluated:   5,
		CreatedAt:   time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}
	if err := p.PublishMatch(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "rider-1" {
		t.Fatalf("unexpected messages %+v", w.msgs)
	}
	var got models.MatchEvent
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatal(err)
	}
	if got.Evaluated != 5 || len(got.TripIDs) != 2 || got.Percentages[0] != 91 {
		t.Fatalf("decoded %+v", got)
	}
	_ = p.Close()
	if !w.closed {
		t.Fatal("writer not closed")
	}
}

func TestDecodeTripEvent(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		ok      bool
	}{
		{"valid", `{"trip_id":"t1","origin":{"lat":43.26,"lng":-79.91},"destination":{"lat":43.65,"lng":-79.38}}`, true},
		{"malformed", `{"trip_id":`, false},
		{"missing id", `{"origin":{"lat":43.26,"lng":-79.91},"destination":{"lat":43.65,"lng":-79.38}}`, false},
		{"zero origin", `{"trip_id":"t1","destination":{"lat":43.65,"lng":-79.38}}`, false},
		{"closed without coordinates", `{"trip_id":"t1","status":"cancelled"}`, true},
		{"closed without id", `{"status":"completed"}`, false},
		{"lat out of range", `{"trip_id":"t1","origin":{"lat":143.26,"lng":-79.91},"destination":{"lat":43.65,"lng":-79.38}}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeTripEvent([]byte(tc.payload))
			if tc.ok && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidEvent) {
				t.Fatalf("expected ErrInvalidEvent, got %v", err)
			}
		})
	}
}
