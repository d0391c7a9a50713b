package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"

	"studio-booking-api/internal/auth"
	"studio-booking-api/internal/availability"
	"studio-booking-api/internal/booking"
	"studio-booking-api/internal/calendar"
	"studio-booking-api/internal/clock"
	"studio-booking-api/internal/config"
	"studio-booking-api/internal/handler"
	"studio-booking-api/internal/model"
	"studio-booking-api/internal/notify"
	"studio-booking-api/internal/ratelimit"
	"studio-booking-api/internal/reminder"
	"studio-booking-api/internal/storage"
	"studio-booking-api/internal/store"
)

var infraModule = fx.Provide(
	providePool,
	provideStore,
	provideCalendar,
	provideNotifier,
	providePhotos,
	provideLimiters,
)

var domainModule = fx.Provide(
	provideReconciler,
	provideAvailability,
	provideReminderJob,
	provideHandler,
)

func providePool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Println("connected to postgres")
	lc.Append(fx.Hook{OnStop: func(context.Context) error { pool.Close(); return nil }})
	return pool, nil
}

func provideStore(pool *pgxpool.Pool, cfg config.Config) (*store.Store, error) {
	st := store.New(pool)
	if err := st.Migrate(context.Background(), cfg.Database.Migrations); err != nil {
		return nil, err
	}
	return st, nil
}

// provideCalendar returns nil when no calendar is configured; slots then
// come from bookings alone.
func provideCalendar(cfg config.Config) (*calendar.Client, error) {
	c, err := calendar.New(context.Background(), calendar.Config{
		CalendarID:      cfg.Calendar.ID,
		CredentialsFile: cfg.Calendar.CredentialsFile,
		CredentialsJSON: cfg.Calendar.CredentialsJSON,
		TimeZone:        cfg.Studio.Timezone,
	})
	if errors.Is(err, calendar.ErrDisabled) {
		log.Println("calendar: not configured")
		return nil, nil
	}
	return c, err
}

func provideNotifier(cfg config.Config, loc *time.Location) *notify.Dispatcher {
	var sender notify.Sender = notify.LogSender{}
	if cfg.WhatsApp.PhoneNumberID != "" && cfg.WhatsApp.Token != "" {
		sender = notify.NewWhatsApp(cfg.WhatsApp.APIURL, cfg.WhatsApp.PhoneNumberID, cfg.WhatsApp.Token)
	} else {
		log.Println("notify: whatsapp not configured, messages are only logged")
	}
	return notify.NewDispatcher(sender, cfg.Studio.Name, loc)
}

func providePhotos(cfg config.Config) (storage.Photos, error) {
	sc := storage.Config{
		Endpoint:        cfg.S3.Endpoint,
		Region:          cfg.S3.Region,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		Bucket:          cfg.S3.BucketName,
		Expiry:          cfg.S3.URLExpiry,
	}
	if !sc.Enabled() {
		log.Println("storage: no bucket, photo endpoints disabled")
		return storage.Disabled{}, nil
	}
	return storage.NewS3(context.Background(), sc)
}

type limiters struct {
	Booking *ratelimit.Limiter
	Auth    *ratelimit.Limiter
}

func provideLimiters(cfg config.Config) limiters {
	return limiters{
		Booking: ratelimit.PerMinute(cfg.Booking.RatePerMinute, clock.System{}),
		Auth:    ratelimit.PerMinute(cfg.Booking.AuthPerMinute, clock.System{}),
	}
}

func provideReconciler(st *store.Store, cal *calendar.Client, n *notify.Dispatcher, l limiters, loc *time.Location) *booking.Reconciler {
	opts := []booking.Option{booking.WithNotifier(n), booking.WithLocation(loc)}
	if cal != nil {
		opts = append(opts, booking.WithCalendar(cal))
	}
	return booking.New(st, l.Booking, opts...)
}

func provideAvailability(st *store.Store, cal *calendar.Client, loc *time.Location) *availability.Provider {
	var busy availability.BusySource
	if cal != nil {
		busy = cal
	}
	return availability.New(st, busy, clock.System{}, loc)
}

func provideReminderJob(st *store.Store, n *notify.Dispatcher, loc *time.Location) *reminder.Job {
	return reminder.New(st, n, clock.System{}, loc)
}

func provideHandler(
	cfg config.Config,
	st *store.Store,
	rec *booking.Reconciler,
	slots *availability.Provider,
	job *reminder.Job,
	photos storage.Photos,
	l limiters,
) *handler.Handler {
	return handler.New(handler.Deps{
		Store:       st,
		Bookings:    rec,
		Slots:       slots,
		Reminders:   job,
		Photos:      photos,
		Tokens:      auth.NewIssuer(cfg.JWT.Secret, cfg.JWT.Expiration),
		AuthLimiter: l.Auth,
		ReminderAuth: handler.ReminderAuth{
			Secret:          cfg.Reminders.Secret,
			SchedulerHeader: cfg.Reminders.SchedulerHeader,
		},
	})
}

// seedAdmin creates the studio admin from config on first boot.
func seedAdmin(cfg config.Config, st *store.Store) error {
	if cfg.Admin.Email == "" || cfg.Admin.Password == "" {
		return nil
	}
	hash, err := auth.HashPassword(cfg.Admin.Password)
	if err != nil {
		return err
	}
	created, err := st.EnsureAdmin(context.Background(), &model.User{
		ID:                   uuid.New().String(),
		Email:                cfg.Admin.Email,
		PasswordHash:         hash,
		Name:                 cfg.Admin.Name,
		Role:                 model.RoleAdmin,
		NotificationsEnabled: true,
		RemindersEnabled:     true,
	})
	if err != nil {
		return err
	}
	if created {
		log.Printf("seeded admin %s", cfg.Admin.Email)
	}
	return nil
}
