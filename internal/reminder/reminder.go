// Package reminder sends the pre-session message for bookings starting
// roughly an hour from now.
package reminder

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"studio-booking-api/internal/clock"
	"studio-booking-api/internal/model"
	"studio-booking-api/internal/slots"
)

const (
	WindowStart = 50 * time.Minute
	WindowEnd   = 70 * time.Minute
)

// Candidate is a confirmed, unreminded booking whose owner has a phone and
// reminders turned on.
type Candidate struct {
	Booking model.Booking
	User    model.User
}

type Store interface {
	ReminderCandidates(ctx context.Context, dates []string) ([]Candidate, error)
	// ClaimReminder flips reminder_sent from false to true; false means
	// another run got there first.
	ClaimReminder(ctx context.Context, bookingID string) (bool, error)
	UnclaimReminder(ctx context.Context, bookingID string) error
}

type Notifier interface {
	BookingReminder(ctx context.Context, u *model.User, b *model.Booking) error
}

type Summary struct {
	Scanned int `json:"scanned"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

type Job struct {
	store    Store
	notifier Notifier
	clock    clock.Clock
	loc      *time.Location
	mu       sync.Mutex
}

func New(store Store, notifier Notifier, clk clock.Clock, loc *time.Location) *Job {
	if clk == nil {
		clk = clock.System{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Job{store: store, notifier: notifier, clock: clk, loc: loc}
}

// Run sends one reminder per booking starting in [now+50m, now+70m].
func (j *Job) Run(ctx context.Context) (Summary, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var sum Summary
	now := j.clock.Now().In(j.loc)
	from, to := now.Add(WindowStart), now.Add(WindowEnd)

	dates := []string{from.Format(slots.DateLayout)}
	if d := to.Format(slots.DateLayout); d != dates[0] {
		dates = append(dates, d)
	}

	cands, err := j.store.ReminderCandidates(ctx, dates)
	if err != nil {
		return sum, fmt.Errorf("reminder: candidates: %w", err)
	}

	for i := range cands {
		c := &cands[i]
		start, ok := j.startOf(&c.Booking)
		if !ok || start.Before(from) || start.After(to) {
			continue
		}
		sum.Scanned++

		claimed, err := j.store.ClaimReminder(ctx, c.Booking.ID)
		if err != nil {
			log.Printf("reminder: claim %s: %v", c.Booking.ID, err)
			sum.Failed++
			continue
		}
		if !claimed {
			continue
		}

		if err := j.notifier.BookingReminder(ctx, &c.User, &c.Booking); err != nil {
			log.Printf("reminder: send %s: %v", c.Booking.ID, err)
			sum.Failed++
			if err := j.store.UnclaimReminder(ctx, c.Booking.ID); err != nil {
				log.Printf("reminder: unclaim %s: %v", c.Booking.ID, err)
			}
			continue
		}
		sum.Sent++
	}
	return sum, nil
}

func (j *Job) startOf(b *model.Booking) (time.Time, bool) {
	day, err := slots.ParseDate(b.Date, j.loc)
	if err != nil {
		return time.Time{}, false
	}
	minute, err := slots.ParseTime(b.Time)
	if err != nil {
		return time.Time{}, false
	}
	return slots.At(day, minute), true
}

// Schedule runs the job on a cron spec such as "*/10 * * * *". The caller
// stops the returned cron.
func (j *Job) Schedule(spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(j.loc))
	_, err := c.AddFunc(spec, func() {
		sum, err := j.Run(context.Background())
		if err != nil {
			log.Printf("reminder: scheduled run: %v", err)
			return
		}
		if sum.Scanned > 0 {
			log.Printf("reminder: scanned=%d sent=%d failed=%d", sum.Scanned, sum.Sent, sum.Failed)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("reminder: bad schedule %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}
