package availability

import (
	"context"
	"errors"
	"log"
	"time"

	"studio-booking-api/internal/apperr"
	"studio-booking-api/internal/clock"
	"studio-booking-api/internal/model"
	"studio-booking-api/internal/slots"
)

// Store is the database side of the availability view.
type Store interface {
	ConfirmedBookingsOn(ctx context.Context, date string) ([]model.Booking, error)
	PackageByID(ctx context.Context, id string) (*model.Package, error)
	ActivePackagesForUser(ctx context.Context, userID string) ([]model.Package, error)
}

// BusySource reports externally blocked intervals (the studio calendar).
type BusySource interface {
	Busy(ctx context.Context, from, to time.Time) ([]TimeRange, error)
}

type TimeRange struct {
	Start time.Time
	End   time.Time
}

type Options struct {
	UserID            string
	IsAdmin           bool
	PackageID         string
	IsMultiplePackage bool
}

type Provider struct {
	store    Store
	calendar BusySource
	clock    clock.Clock
	loc      *time.Location
}

func New(store Store, calendar BusySource, clk clock.Clock, loc *time.Location) *Provider {
	return &Provider{store: store, calendar: calendar, clock: clk, loc: loc}
}

// Slots returns the free start times on date. When the calendar is
// unavailable the result is computed from bookings alone.
func (p *Provider) Slots(ctx context.Context, date string, opts Options) ([]string, error) {
	day, err := slots.ParseDate(date, p.loc)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}

	now := p.clock.Now().In(p.loc)
	today, _ := slots.ParseDate(now.Format(slots.DateLayout), p.loc)
	notBefore := -1
	switch {
	case day.Before(today) && !opts.IsAdmin:
		return []string{}, nil
	case slots.SameDay(day, now) && !opts.IsAdmin:
		notBefore = slots.MinuteOf(now) + 1
	}

	duration, err := p.duration(ctx, opts)
	if err != nil {
		return nil, err
	}

	bookings, err := p.store.ConfirmedBookingsOn(ctx, date)
	if err != nil {
		return nil, err
	}
	busy := BookingIntervals(bookings)

	if p.calendar != nil {
		ext, err := p.calendarBusy(ctx, day)
		if err != nil {
			log.Printf("availability: calendar unavailable, using bookings only: %v", err)
		} else {
			busy = append(busy, ext...)
		}
	}

	return slots.Free(slots.Query{Duration: duration, NotBefore: notBefore, Busy: busy}), nil
}

func (p *Provider) calendarBusy(ctx context.Context, day time.Time) ([]slots.Interval, error) {
	from := slots.At(day, 0)
	ranges, err := p.calendar.Busy(ctx, from, from.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	out := make([]slots.Interval, 0, len(ranges))
	for _, r := range ranges {
		if iv, ok := slots.Clip(day, r.Start.In(p.loc), r.End.In(p.loc)); ok {
			out = append(out, iv)
		}
	}
	return out, nil
}

// duration picks the session length the slots must fit.
func (p *Provider) duration(ctx context.Context, opts Options) (int, error) {
	if opts.PackageID != "" {
		pkg, err := p.store.PackageByID(ctx, opts.PackageID)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
		case err != nil:
			return 0, err
		case opts.IsAdmin || pkg.HasMember(opts.UserID):
			return pkg.Duration(), nil
		}
	}
	if opts.IsMultiplePackage && opts.UserID != "" {
		pkgs, err := p.store.ActivePackagesForUser(ctx, opts.UserID)
		if err != nil {
			return 0, err
		}
		longest := 0
		for i := range pkgs {
			if d := pkgs[i].Duration(); d > longest {
				longest = d
			}
		}
		if longest > 0 {
			return longest, nil
		}
	}
	return model.DefaultSessionMinutes, nil
}

// BookingIntervals maps confirmed bookings to their occupied windows.
func BookingIntervals(bookings []model.Booking) []slots.Interval {
	out := make([]slots.Interval, 0, len(bookings))
	for _, b := range bookings {
		if b.Status != model.StatusConfirmed {
			continue
		}
		start, err := slots.ParseTime(b.Time)
		if err != nil {
			continue
		}
		d := b.DurationMinutes
		if d <= 0 {
			d = model.DefaultSessionMinutes
		}
		out = append(out, slots.Window(start, d))
	}
	return out
}
