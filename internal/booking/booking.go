// Package booking reconciles a booking request across the package ledger,
// the studio calendar and the bookings table. The database transaction is the
// only authority; calendar and messaging calls around it are best effort.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"studio-booking-api/internal/apperr"
	"studio-booking-api/internal/clock"
	"studio-booking-api/internal/ledger"
	"studio-booking-api/internal/model"
	"studio-booking-api/internal/ratelimit"
	"studio-booking-api/internal/slots"
)

// Repository is the read side used before the transaction plus the
// transaction entry point.
type Repository interface {
	PackageByID(ctx context.Context, id string) (*model.Package, error)
	UserByID(ctx context.Context, id string) (*model.User, error)
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is everything the reconciler does while the transaction is open.
type Tx interface {
	SlotTaken(ctx context.Context, date, start string) (bool, error)
	LockPackage(ctx context.Context, id string) (*model.Package, error)
	CreateBooking(ctx context.Context, b *model.Booking) error
	ConsumeSession(ctx context.Context, packageID string) error
	LockBooking(ctx context.Context, id string) (*model.Booking, error)
	SetBookingStatus(ctx context.Context, id string, status model.BookingStatus) error
	ReleaseSession(ctx context.Context, packageID string) error
}

type Calendar interface {
	CreateEvent(ctx context.Context, summary string, start, end time.Time) (string, error)
	DeleteEvent(ctx context.Context, id string) error
}

type Notifier interface {
	BookingConfirmed(ctx context.Context, user *model.User, b *model.Booking) error
}

type Limiter interface {
	Take(key string) ratelimit.Decision
}

// RateLimitError is returned before any state is touched.
type RateLimitError struct {
	Decision ratelimit.Decision
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many booking requests, retry in %ds", e.Decision.RetryAfterSeconds())
}

func (e *RateLimitError) Unwrap() error { return apperr.ErrRateLimited }

type Request struct {
	UserID    string
	Date      string
	Time      string
	PackageID string
}

// Outcome records how a best-effort side effect went.
type Outcome struct {
	Attempted bool
	Err       error
}

func (o Outcome) Degraded() bool { return o.Attempted && o.Err != nil }

type Result struct {
	Booking  *model.Booking
	Calendar Outcome
	Notify   Outcome
	// RateLimit is the decision that admitted the request.
	RateLimit ratelimit.Decision
}

type Actor struct {
	UserID  string
	IsAdmin bool
}

type Reconciler struct {
	repo     Repository
	calendar Calendar
	notifier Notifier
	limiter  Limiter
	clock    clock.Clock
	loc      *time.Location
}

type Option func(*Reconciler)

func WithCalendar(c Calendar) Option { return func(r *Reconciler) { r.calendar = c } }

func WithNotifier(n Notifier) Option { return func(r *Reconciler) { r.notifier = n } }

func WithClock(c clock.Clock) Option { return func(r *Reconciler) { r.clock = c } }

func WithLocation(loc *time.Location) Option { return func(r *Reconciler) { r.loc = loc } }

func New(repo Repository, limiter Limiter, opts ...Option) *Reconciler {
	r := &Reconciler{
		repo:    repo,
		limiter: limiter,
		clock:   clock.System{},
		loc:     time.UTC,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Create books one session. Calendar and notification failures never fail
// the request; a lost race for the slot or the last session is Conflict.
func (r *Reconciler) Create(ctx context.Context, req Request) (*Result, error) {
	res := &Result{}
	if r.limiter != nil {
		d := r.limiter.Take("booking:" + req.UserID)
		if !d.Allowed {
			return nil, &RateLimitError{Decision: d}
		}
		res.RateLimit = d
	}

	start, err := r.validate(req)
	if err != nil {
		return nil, err
	}

	pkg, err := r.repo.PackageByID(ctx, req.PackageID)
	if err != nil {
		return nil, err
	}
	if err := ledger.Eligible(pkg, req.UserID); err != nil {
		if ledger.IsInactive(err) {
			return nil, apperr.NotFound("package is not active")
		}
		return nil, err
	}

	user, err := r.repo.UserByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	b := &model.Booking{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		PackageID:       req.PackageID,
		Date:            req.Date,
		Time:            req.Time,
		DurationMinutes: pkg.Duration(),
		Status:          model.StatusConfirmed,
	}

	eventID := ""
	if r.calendar != nil {
		res.Calendar.Attempted = true
		end := start.Add(time.Duration(b.DurationMinutes) * time.Minute)
		eventID, err = r.calendar.CreateEvent(ctx, eventSummary(user, pkg), start, end)
		if err != nil {
			res.Calendar.Err = err
			eventID = ""
			log.Printf("booking: calendar event for %s %s: %v", req.Date, req.Time, err)
		}
	}
	if eventID != "" {
		b.CalendarEventID = &eventID
	}

	err = r.repo.InTx(ctx, func(tx Tx) error {
		taken, err := tx.SlotTaken(ctx, b.Date, b.Time)
		if err != nil {
			return err
		}
		if taken {
			return apperr.Conflict("slot %s %s is already booked", b.Date, b.Time)
		}

		locked, err := tx.LockPackage(ctx, b.PackageID)
		if err != nil {
			return err
		}
		if err := ledger.Eligible(locked, b.UserID); err != nil {
			return err
		}

		if err := tx.CreateBooking(ctx, b); err != nil {
			return err
		}
		return tx.ConsumeSession(ctx, b.PackageID)
	})
	if err != nil {
		if eventID != "" {
			r.dropEvent(ctx, eventID)
		}
		return nil, err
	}

	res.Booking = b
	if r.notifier != nil {
		res.Notify.Attempted = true
		if err := r.notifier.BookingConfirmed(ctx, user, b); err != nil {
			res.Notify.Err = err
			log.Printf("booking: notify %s: %v", b.ID, err)
		}
	}
	return res, nil
}

// Cancel moves a confirmed booking to CANCELLED and gives its session back.
func (r *Reconciler) Cancel(ctx context.Context, bookingID string, actor Actor) (*model.Booking, error) {
	var cancelled *model.Booking
	err := r.repo.InTx(ctx, func(tx Tx) error {
		b, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin && b.UserID != actor.UserID {
			return apperr.Forbidden("booking belongs to another user")
		}
		if b.Status != model.StatusConfirmed {
			return apperr.Conflict("booking is already %s", strings.ToLower(string(b.Status)))
		}
		if err := tx.SetBookingStatus(ctx, b.ID, model.StatusCancelled); err != nil {
			return err
		}
		if err := tx.ReleaseSession(ctx, b.PackageID); err != nil {
			return err
		}
		b.Status = model.StatusCancelled
		cancelled = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	if r.calendar != nil && cancelled.CalendarEventID != nil {
		r.dropEvent(ctx, *cancelled.CalendarEventID)
	}
	return cancelled, nil
}

func (r *Reconciler) dropEvent(ctx context.Context, id string) {
	if err := r.calendar.DeleteEvent(context.WithoutCancel(ctx), id); err != nil {
		log.Printf("booking: delete calendar event %s: %v", id, err)
	}
}

// validate returns the absolute start of the requested session.
func (r *Reconciler) validate(req Request) (time.Time, error) {
	if strings.TrimSpace(req.PackageID) == "" {
		return time.Time{}, apperr.Validation("packageId is required")
	}
	day, err := slots.ParseDate(req.Date, r.loc)
	if err != nil {
		return time.Time{}, apperr.Validation("%v", err)
	}
	minute, err := slots.ParseTime(req.Time)
	if err != nil {
		return time.Time{}, apperr.Validation("%v", err)
	}
	if !slots.WithinHours(minute) {
		return time.Time{}, apperr.Validation("time must be between 08:00 and 20:00")
	}

	now := r.clock.Now().In(r.loc)
	today, _ := slots.ParseDate(now.Format(slots.DateLayout), r.loc)
	if day.Before(today) {
		return time.Time{}, apperr.Validation("date %s is in the past", req.Date)
	}
	start := slots.At(day, minute)
	if !start.After(now) {
		return time.Time{}, apperr.Validation("time %s has already passed", req.Time)
	}
	return start, nil
}

func eventSummary(u *model.User, p *model.Package) string {
	name := u.Name
	if name == "" {
		name = u.Email
	}
	if p.Name == "" {
		return "Session: " + name
	}
	return fmt.Sprintf("Session: %s (%s)", name, p.Name)
}

// IsRateLimited extracts the limiter decision from err.
func IsRateLimited(err error) (ratelimit.Decision, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.Decision, true
	}
	return ratelimit.Decision{}, false
}
