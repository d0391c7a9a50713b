package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	gcal "google.golang.org/api/calendar/v3"
)

func TestNewDisabled(t *testing.T) {
	_, err := New(context.Background(), Config{CalendarID: "studio@example.com"})
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled without credentials, got %v", err)
	}
}

func TestEventRange(t *testing.T) {
	loc := time.FixedZone("studio", 2*3600)
	tests := []struct {
		name  string
		ev    *gcal.Event
		ok    bool
		start time.Time
		end   time.Time
	}{
		{
			name: "timed",
			ev: &gcal.Event{
				Start: &gcal.EventDateTime{DateTime: "2026-03-11T10:00:00+02:00"},
				End:   &gcal.EventDateTime{DateTime: "2026-03-11T11:30:00+02:00"},
			},
			ok:    true,
			start: time.Date(2026, 3, 11, 10, 0, 0, 0, loc),
			end:   time.Date(2026, 3, 11, 11, 30, 0, 0, loc),
		},
		{
			name: "all day",
			ev: &gcal.Event{
				Start: &gcal.EventDateTime{Date: "2026-03-11"},
				End:   &gcal.EventDateTime{Date: "2026-03-12"},
			},
			ok:    true,
			start: time.Date(2026, 3, 11, 0, 0, 0, 0, loc),
			end:   time.Date(2026, 3, 12, 0, 0, 0, 0, loc),
		},
		{name: "missing end", ev: &gcal.Event{Start: &gcal.EventDateTime{Date: "2026-03-11"}}},
		{
			name: "garbage",
			ev: &gcal.Event{
				Start: &gcal.EventDateTime{DateTime: "tomorrow"},
				End:   &gcal.EventDateTime{DateTime: "later"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := eventRange(tt.ev, loc)
			if ok != tt.ok {
				t.Fatalf("ok = %v", ok)
			}
			if !ok {
				return
			}
			if !r.Start.Equal(tt.start) || !r.End.Equal(tt.end) {
				t.Errorf("got %v - %v", r.Start, r.End)
			}
		})
	}
}
