package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"studio-booking-api/internal/apperr"
	"studio-booking-api/internal/auth"
	"studio-booking-api/internal/availability"
	"studio-booking-api/internal/booking"
	"studio-booking-api/internal/middleware"
	"studio-booking-api/internal/model"
	"studio-booking-api/internal/ratelimit"
	"studio-booking-api/internal/reminder"
	"studio-booking-api/internal/storage"
	"studio-booking-api/internal/store"
)

// Store is the slice of *store.Store the HTTP layer reads and writes
// directly. Booking state changes go through Bookings instead.
type Store interface {
	CreateUser(ctx context.Context, u *model.User) error
	UserByEmail(ctx context.Context, email string) (*model.User, error)
	UserByID(ctx context.Context, id string) (*model.User, error)
	ListClients(ctx context.Context) ([]model.User, error)
	UpdateSettings(ctx context.Context, userID string, st store.Settings) (*model.User, error)

	CreateRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (string, error)
	RefreshTokenByHash(ctx context.Context, tokenHash string) (*store.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldID, userID, newHash string, newExpiry time.Time) (string, error)
	RevokeAllRefreshTokens(ctx context.Context, userID string) error

	ListBookings(ctx context.Context, userID, date string) ([]model.Booking, error)

	PackagesForUser(ctx context.Context, userID string) ([]model.Package, error)
	ListPackages(ctx context.Context) ([]model.Package, error)
	CreatePackage(ctx context.Context, p *model.Package) error
	DeactivatePackage(ctx context.Context, id string) (*model.Package, error)

	CreatePlan(ctx context.Context, p *model.WorkoutPlan) error
	PlansForUser(ctx context.Context, userID string) ([]model.WorkoutPlan, error)

	CreateMeasurement(ctx context.Context, m *model.BodyMeasurement) error
	MeasurementsForUser(ctx context.Context, userID string) ([]model.BodyMeasurement, error)
	MeasurementByID(ctx context.Context, id string) (*model.BodyMeasurement, error)
	SetMeasurementPhoto(ctx context.Context, id, key string) error
}

type Bookings interface {
	Create(ctx context.Context, req booking.Request) (*booking.Result, error)
	Cancel(ctx context.Context, bookingID string, actor booking.Actor) (*model.Booking, error)
}

type Slots interface {
	Slots(ctx context.Context, date string, opts availability.Options) ([]string, error)
}

type Reminders interface {
	Run(ctx context.Context) (reminder.Summary, error)
}

// ReminderAuth says who may trigger the reminder job over HTTP: a request
// carrying SchedulerHeader: true, or Authorization: Bearer Secret.
type ReminderAuth struct {
	Secret          string
	SchedulerHeader string
}

type Deps struct {
	Store        Store
	Bookings     Bookings
	Slots        Slots
	Reminders    Reminders
	Photos       storage.Photos
	Tokens       *auth.Issuer
	AuthLimiter  *ratelimit.Limiter
	ReminderAuth ReminderAuth
}

type Handler struct {
	store        Store
	bookings     Bookings
	slots        Slots
	reminders    Reminders
	photos       storage.Photos
	tokens       *auth.Issuer
	authLimiter  *ratelimit.Limiter
	reminderAuth ReminderAuth
}

func New(d Deps) *Handler {
	if d.Photos == nil {
		d.Photos = storage.Disabled{}
	}
	if d.AuthLimiter == nil {
		d.AuthLimiter = ratelimit.PerMinute(10, nil)
	}
	return &Handler{
		store:        d.Store,
		bookings:     d.Bookings,
		slots:        d.Slots,
		reminders:    d.Reminders,
		photos:       d.Photos,
		tokens:       d.Tokens,
		authLimiter:  d.AuthLimiter,
		reminderAuth: d.ReminderAuth,
	}
}

func (h *Handler) Routes(r *gin.Engine) {
	r.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/register", middleware.RateLimitByIP(h.authLimiter), h.Register)
	authGroup.POST("/login", middleware.RateLimitByIP(h.authLimiter), h.Login)
	authGroup.POST("/refresh", middleware.RateLimitByIP(h.authLimiter), h.Refresh)

	// the scheduler authenticates with its own header or secret
	api.POST("/reminders/dispatch", h.DispatchReminders)
	api.GET("/reminders/dispatch", h.DispatchReminders)

	user := api.Group("", middleware.Auth(h.tokens))
	user.POST("/auth/logout", h.Logout)
	user.GET("/me", h.Me)
	user.PATCH("/me/settings", h.UpdateSettings)

	user.GET("/slots", h.GetSlots)
	user.POST("/bookings", h.CreateBooking)
	user.GET("/bookings", h.ListBookings)
	user.POST("/bookings/:id/cancel", h.CancelBooking)

	user.GET("/packages", h.MyPackages)
	user.GET("/plans", h.MyPlans)
	user.GET("/measurements", h.MyMeasurements)
	user.POST("/measurements/:id/photo", h.PhotoUploadURL)
	user.GET("/measurements/:id/photo", h.PhotoDownloadURL)

	admin := api.Group("/admin", middleware.Auth(h.tokens), middleware.RequireRole(model.RoleAdmin))
	admin.POST("/clients", h.CreateClient)
	admin.GET("/clients", h.ListClients)
	admin.POST("/clients/:userId/plans", h.CreatePlan)
	admin.GET("/clients/:userId/plans", h.ClientPlans)
	admin.POST("/clients/:userId/measurements", h.CreateMeasurement)
	admin.GET("/clients/:userId/measurements", h.ClientMeasurements)
	admin.GET("/packages", h.ListPackages)
	admin.POST("/packages", h.CreatePackage)
	admin.POST("/packages/:id/deactivate", h.DeactivatePackage)
}

// writeError is the single place kinds become status codes.
func writeError(c *gin.Context, err error) {
	if d, ok := booking.IsRateLimited(err); ok {
		middleware.TooManyRequests(c, d, err.Error())
		return
	}

	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, apperr.ErrUnauthorized):
		code = http.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		code = http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		code = http.StatusConflict
	case errors.Is(err, apperr.ErrRateLimited):
		code = http.StatusTooManyRequests
	case errors.Is(err, apperr.ErrUnavailable):
		code = http.StatusServiceUnavailable
	}

	msg := apperr.Message(err)
	if code == http.StatusInternalServerError {
		log.Printf("handler: %s %s: %v", c.Request.Method, c.FullPath(), err)
		msg = "internal error"
	} else if msg == "" {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(code, gin.H{"error": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
