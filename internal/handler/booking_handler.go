package handler

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"studio-booking-api/internal/availability"
	"studio-booking-api/internal/booking"
	"studio-booking-api/internal/middleware"
)

type bookingRequest struct {
	Date      string `json:"date"`
	Time      string `json:"time"`
	PackageID string `json:"packageId"`
}

func (h *Handler) CreateBooking(c *gin.Context) {
	var req bookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}

	res, err := h.bookings.Create(c.Request.Context(), booking.Request{
		UserID:    middleware.UserID(c),
		Date:      req.Date,
		Time:      req.Time,
		PackageID: req.PackageID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	middleware.RateLimitHeaders(c, res.RateLimit)
	if res.Calendar.Degraded() || res.Notify.Degraded() {
		log.Printf("handler: booking %s created degraded (calendar=%v notify=%v)",
			res.Booking.ID, res.Calendar.Err, res.Notify.Err)
	}
	c.JSON(http.StatusCreated, res.Booking)
}

// ListBookings returns the caller's bookings. Admins see everyone's and may
// filter with ?userId= and ?date=.
func (h *Handler) ListBookings(c *gin.Context) {
	userID := middleware.UserID(c)
	if middleware.IsAdmin(c) {
		userID = c.Query("userId")
	}
	list, err := h.store.ListBookings(c.Request.Context(), userID, c.Query("date"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) CancelBooking(c *gin.Context) {
	b, err := h.bookings.Cancel(c.Request.Context(), c.Param("id"), booking.Actor{
		UserID:  middleware.UserID(c),
		IsAdmin: middleware.IsAdmin(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) GetSlots(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		badRequest(c, "date is required")
		return
	}
	// only admins may ask for the unfiltered view
	asAdmin, _ := strconv.ParseBool(c.Query("isAdmin"))
	multi, _ := strconv.ParseBool(c.Query("isMultiplePackage"))

	slots, err := h.slots.Slots(c.Request.Context(), date, availability.Options{
		UserID:            middleware.UserID(c),
		IsAdmin:           asAdmin && middleware.IsAdmin(c),
		PackageID:         c.Query("packageId"),
		IsMultiplePackage: multi,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": slots})
}

func (h *Handler) DispatchReminders(c *gin.Context) {
	if !h.schedulerAllowed(c) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	sum, err := h.reminders.Run(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *Handler) schedulerAllowed(c *gin.Context) bool {
	ra := h.reminderAuth
	if ra.SchedulerHeader != "" && c.GetHeader(ra.SchedulerHeader) == "true" {
		return true
	}
	if ra.Secret == "" {
		return false
	}
	raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(raw), []byte(ra.Secret)) == 1
}
