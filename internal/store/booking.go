package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"studio-booking-api/internal/apperr"
	"studio-booking-api/internal/ledger"
	"studio-booking-api/internal/model"
	"studio-booking-api/internal/reminder"
)

const bookingCols = `b.id, b.user_id, b.package_id, b.booking_date, b.start_time, b.duration_minutes,
	b.status, b.calendar_event_id, b.reminder_sent, b.created_at, b.updated_at`

func bookingDest(b *model.Booking) []any {
	return []any{&b.ID, &b.UserID, &b.PackageID, &b.Date, &b.Time, &b.DurationMinutes,
		&b.Status, &b.CalendarEventID, &b.ReminderSent, &b.CreatedAt, &b.UpdatedAt}
}

func collectBookings(ctx context.Context, q querier, sql string, args ...any) ([]model.Booking, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Booking{}
	for rows.Next() {
		var b model.Booking
		if err := rows.Scan(bookingDest(&b)...); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) ConfirmedBookingsOn(ctx context.Context, date string) ([]model.Booking, error) {
	return collectBookings(ctx, s.pool,
		`SELECT `+bookingCols+` FROM bookings b
		 WHERE b.booking_date = $1 AND b.status = 'CONFIRMED'
		 ORDER BY b.start_time`, date)
}

func (s *Store) BookingByID(ctx context.Context, id string) (*model.Booking, error) {
	var b model.Booking
	err := s.pool.QueryRow(ctx, `SELECT `+bookingCols+` FROM bookings b WHERE b.id = $1`, id).
		Scan(bookingDest(&b)...)
	if err != nil {
		return nil, mapErr(err, "booking")
	}
	return &b, nil
}

// ListBookings returns a user's bookings, or everyone's when userID is
// empty. date narrows to one day when set.
func (s *Store) ListBookings(ctx context.Context, userID, date string) ([]model.Booking, error) {
	return collectBookings(ctx, s.pool,
		`SELECT `+bookingCols+` FROM bookings b
		 WHERE ($1 = '' OR b.user_id = $1)
		   AND ($2 = '' OR b.booking_date = $2)
		 ORDER BY b.booking_date DESC, b.start_time DESC`, userID, date)
}

// bookingTx implements booking.Tx on an open pgx transaction.
type bookingTx struct {
	tx pgx.Tx
}

func (t *bookingTx) SlotTaken(ctx context.Context, date, start string) (bool, error) {
	var taken bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM bookings
			WHERE booking_date = $1 AND start_time = $2 AND status = 'CONFIRMED')`,
		date, start).Scan(&taken)
	return taken, err
}

// LockPackage holds the package row until commit; concurrent consumers of
// the same package queue here.
func (t *bookingTx) LockPackage(ctx context.Context, id string) (*model.Package, error) {
	p, err := scanPackage(t.tx.QueryRow(ctx,
		`SELECT `+packageCols+` FROM packages p WHERE p.id = $1 FOR UPDATE`, id), false)
	if err != nil {
		return nil, mapErr(err, "package")
	}
	rows, err := t.tx.Query(ctx,
		`SELECT user_id FROM package_users WHERE package_id = $1 ORDER BY user_id`, id)
	if err != nil {
		return nil, err
	}
	p.UserIDs, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (t *bookingTx) CreateBooking(ctx context.Context, b *model.Booking) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO bookings (id, user_id, package_id, booking_date, start_time, duration_minutes, status, calendar_event_id)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 RETURNING created_at, updated_at`,
		b.ID, b.UserID, b.PackageID, b.Date, b.Time, b.DurationMinutes, b.Status, b.CalendarEventID,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if isUnique(err) {
		// lost the race on the partial unique index
		return apperr.Conflict("slot %s %s is already booked", b.Date, b.Time)
	}
	return mapErr(err, "booking")
}

func (t *bookingTx) ConsumeSession(ctx context.Context, packageID string) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE packages SET used_sessions = used_sessions + 1, updated_at = NOW()
		 WHERE id = $1 AND is_active AND used_sessions < total_sessions`, packageID)
	if err != nil {
		return mapErr(err, "package")
	}
	if tag.RowsAffected() != 1 {
		return ledger.ErrExhausted
	}
	return nil
}

func (t *bookingTx) LockBooking(ctx context.Context, id string) (*model.Booking, error) {
	var b model.Booking
	err := t.tx.QueryRow(ctx,
		`SELECT `+bookingCols+` FROM bookings b WHERE b.id = $1 FOR UPDATE`, id).
		Scan(bookingDest(&b)...)
	if err != nil {
		return nil, mapErr(err, "booking")
	}
	return &b, nil
}

func (t *bookingTx) SetBookingStatus(ctx context.Context, id string, status model.BookingStatus) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE bookings SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	return mapErr(err, "booking")
}

func (t *bookingTx) ReleaseSession(ctx context.Context, packageID string) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE packages SET used_sessions = GREATEST(used_sessions - 1, 0), updated_at = NOW()
		 WHERE id = $1`, packageID)
	return mapErr(err, "package")
}

// ReminderCandidates lists unreminded confirmed bookings on dates whose
// owner can receive a reminder. The caller narrows to the time window.
func (s *Store) ReminderCandidates(ctx context.Context, dates []string) ([]reminder.Candidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+bookingCols+`, `+userColsAs("u")+`
		 FROM bookings b
		 JOIN users u ON u.id = b.user_id
		 WHERE b.booking_date = ANY($1)
		   AND b.status = 'CONFIRMED'
		   AND NOT b.reminder_sent
		   AND u.phone <> ''
		   AND u.reminders_enabled
		 ORDER BY b.booking_date, b.start_time`, dates)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []reminder.Candidate{}
	for rows.Next() {
		var c reminder.Candidate
		u := &c.User
		dst := append(bookingDest(&c.Booking),
			&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Phone, &u.Role,
			&u.NotificationsEnabled, &u.RemindersEnabled, &u.CreatedAt, &u.UpdatedAt)
		if err := rows.Scan(dst...); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ClaimReminder(ctx context.Context, bookingID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bookings SET reminder_sent = TRUE, updated_at = NOW()
		 WHERE id = $1 AND NOT reminder_sent AND status = 'CONFIRMED'`, bookingID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) UnclaimReminder(ctx context.Context, bookingID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE bookings SET reminder_sent = FALSE, updated_at = NOW() WHERE id = $1`, bookingID)
	return err
}

func userColsAs(alias string) string {
	return alias + `.id, ` + alias + `.email, ` + alias + `.password_hash, ` + alias + `.name, ` +
		alias + `.phone, ` + alias + `.role, ` + alias + `.notifications_enabled, ` +
		alias + `.reminders_enabled, ` + alias + `.created_at, ` + alias + `.updated_at`
}
