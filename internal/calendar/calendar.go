// Package calendar talks to the studio's Google Calendar.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"studio-booking-api/internal/availability"
)

var ErrDisabled = errors.New("calendar: not configured")

type Config struct {
	CalendarID      string
	CredentialsFile string
	CredentialsJSON string
	TimeZone        string
}

func (c Config) Enabled() bool {
	return c.CalendarID != "" && (c.CredentialsFile != "" || c.CredentialsJSON != "")
}

type Client struct {
	svc        *gcal.Service
	calendarID string
	tz         string
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}
	opts := []option.ClientOption{option.WithScopes(gcal.CalendarEventsScope)}
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	} else {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar: new service: %w", err)
	}
	return &Client{svc: svc, calendarID: cfg.CalendarID, tz: cfg.TimeZone}, nil
}

func (c *Client) CreateEvent(ctx context.Context, summary string, start, end time.Time) (string, error) {
	ev := &gcal.Event{
		Summary: summary,
		Start:   &gcal.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: c.tz},
		End:     &gcal.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: c.tz},
	}
	created, err := c.svc.Events.Insert(c.calendarID, ev).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("calendar: insert event: %w", err)
	}
	return created.Id, nil
}

func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	if err := c.svc.Events.Delete(c.calendarID, id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("calendar: delete event %s: %w", id, err)
	}
	return nil
}

// Busy lists the intervals blocked by events in [from, to). Cancelled and
// free (transparent) events do not block.
func (c *Client) Busy(ctx context.Context, from, to time.Time) ([]availability.TimeRange, error) {
	var out []availability.TimeRange
	call := c.svc.Events.List(c.calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime")
	err := call.Pages(ctx, func(page *gcal.Events) error {
		for _, ev := range page.Items {
			if ev.Status == "cancelled" || ev.Transparency == "transparent" {
				continue
			}
			r, ok := eventRange(ev, from.Location())
			if ok {
				out = append(out, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("calendar: list events: %w", err)
	}
	return out, nil
}

// eventRange handles both timed and all-day events.
func eventRange(ev *gcal.Event, loc *time.Location) (availability.TimeRange, bool) {
	if ev.Start == nil || ev.End == nil {
		return availability.TimeRange{}, false
	}
	if ev.Start.DateTime != "" && ev.End.DateTime != "" {
		s, err1 := time.Parse(time.RFC3339, ev.Start.DateTime)
		e, err2 := time.Parse(time.RFC3339, ev.End.DateTime)
		if err1 != nil || err2 != nil {
			return availability.TimeRange{}, false
		}
		return availability.TimeRange{Start: s, End: e}, true
	}
	s, err1 := time.ParseInLocation("2006-01-02", ev.Start.Date, loc)
	e, err2 := time.ParseInLocation("2006-01-02", ev.End.Date, loc)
	if err1 != nil || err2 != nil {
		return availability.TimeRange{}, false
	}
	return availability.TimeRange{Start: s, End: e}, true
}
