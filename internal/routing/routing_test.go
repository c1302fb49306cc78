package routing

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDepartureAt_ClampsPastAndZero(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"zero means now plus lead", time.Time{}, now.Add(time.Minute)},
		{"past is clamped", now.Add(-time.Hour), now.Add(time.Minute)},
		{"30s ahead is clamped", now.Add(30 * time.Second), now.Add(time.Minute)},
		{"future is kept", now.Add(2 * time.Hour), now.Add(2 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := departureAt(tt.in, now); !got.Equal(tt.want) {
				t.Fatalf("departureAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsConfigError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("maps: REQUEST_DENIED - This API project is not authorized to use this API."), true},
		{errors.New("Geocoding API has not been used in project 1 before or it is disabled. not activated"), true},
		{errors.New("This API key is not authorized to use this service or API."), true},
		{&Error{Op: "directions", Err: errors.New("maps: REQUEST_DENIED - API keys with referer restrictions cannot be used")}, true},
		{errors.New("maps: OVER_QUERY_LIMIT - You have exceeded your rate-limit"), false},
		{errors.New("connection reset by peer"), false},
	}
	for _, tt := range tests {
		if got := IsConfigError(tt.err); got != tt.want {
			t.Errorf("IsConfigError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestUnconfigured(t *testing.T) {
	var p Provider = Unconfigured{}
	_, err := p.Route(context.Background(), Request{})
	var rerr *Error
	if !errors.As(err, &rerr) || !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected routing error wrapping ErrNotConfigured, got %v", err)
	}
	loc, err := p.Geocode(context.Background(), "1280 Main St W, Hamilton")
	if loc != nil || err != nil {
		t.Fatalf("expected nil, nil from unconfigured geocoder, got %v, %v", loc, err)
	}
}

func TestSelect(t *testing.T) {
	p, err := Select("", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(Unconfigured); !ok {
		t.Fatalf("expected Unconfigured, got %T", p)
	}

	p, _ = Select("", "http://osrm:5000/", nil)
	if o, ok := p.(*OSRMProvider); !ok || o.Endpoint != "http://osrm:5000" {
		t.Fatalf("expected OSRM provider, got %#v", p)
	}

	p, err = Select("test-key", "http://osrm:5000", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*GoogleProvider); !ok {
		t.Fatalf("expected Google provider, got %T", p)
	}
}
