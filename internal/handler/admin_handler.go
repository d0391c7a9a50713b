package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"studio-booking-api/internal/apperr"
	"studio-booking-api/internal/middleware"
	"studio-booking-api/internal/model"
	"studio-booking-api/internal/storage"
)

func (h *Handler) CreateClient(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	u, err := h.newClient(c, &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h *Handler) ListClients(c *gin.Context) {
	list, err := h.store.ListClients(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type packageRequest struct {
	Name            string   `json:"name"`
	TotalSessions   int      `json:"totalSessions"`
	DurationMinutes int      `json:"durationMinutes"`
	UserIDs         []string `json:"userIds"`
}

func (h *Handler) CreatePackage(c *gin.Context) {
	var req packageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		badRequest(c, "name is required")
		return
	}
	p := &model.Package{
		ID:              uuid.New().String(),
		Name:            strings.TrimSpace(req.Name),
		TotalSessions:   req.TotalSessions,
		DurationMinutes: req.DurationMinutes,
		UserIDs:         req.UserIDs,
	}
	if err := h.store.CreatePackage(c.Request.Context(), p); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) ListPackages(c *gin.Context) {
	list, err := h.store.ListPackages(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) DeactivatePackage(c *gin.Context) {
	p, err := h.store.DeactivatePackage(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) MyPackages(c *gin.Context) {
	list, err := h.store.PackagesForUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	type withRemaining struct {
		model.Package
		Remaining int `json:"remaining"`
	}
	out := make([]withRemaining, 0, len(list))
	for _, p := range list {
		out = append(out, withRemaining{Package: p, Remaining: max(p.Remaining(), 0)})
	}
	c.JSON(http.StatusOK, out)
}

type exerciseRequest struct {
	Name        string `json:"name"`
	Sets        int    `json:"sets"`
	Reps        string `json:"reps"`
	RestSeconds int    `json:"restSeconds"`
	Notes       string `json:"notes"`
}

type dayRequest struct {
	Name      string            `json:"name"`
	Exercises []exerciseRequest `json:"exercises"`
}

type planRequest struct {
	Name  string       `json:"name"`
	Notes string       `json:"notes"`
	Days  []dayRequest `json:"days"`
}

func (r *planRequest) toModel(userID string) (*model.WorkoutPlan, error) {
	if strings.TrimSpace(r.Name) == "" {
		return nil, apperr.Validation("name is required")
	}
	p := &model.WorkoutPlan{ID: uuid.New().String(), UserID: userID, Name: r.Name, Notes: r.Notes}
	for _, d := range r.Days {
		day := model.WorkoutDay{Name: d.Name}
		for _, e := range d.Exercises {
			if e.Name == "" || e.Sets < 0 || e.RestSeconds < 0 {
				return nil, apperr.Validation("invalid exercise in day %q", d.Name)
			}
			day.Exercises = append(day.Exercises, model.WorkoutExercise{
				Name:     e.Name,
				Sets:     e.Sets,
				Reps:     e.Reps,
				RestSecs: e.RestSeconds,
				Notes:    e.Notes,
			})
		}
		p.Days = append(p.Days, day)
	}
	return p, nil
}

func (h *Handler) CreatePlan(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	p, err := req.toModel(c.Param("userId"))
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.store.CreatePlan(c.Request.Context(), p); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) plans(c *gin.Context, userID string) {
	list, err := h.store.PlansForUser(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) ClientPlans(c *gin.Context) { h.plans(c, c.Param("userId")) }

func (h *Handler) MyPlans(c *gin.Context) { h.plans(c, middleware.UserID(c)) }

type measurementRequest struct {
	MeasuredAt *time.Time `json:"measuredAt"`
	WeightKg   *float64   `json:"weightKg"`
	BodyFatPct *float64   `json:"bodyFatPct"`
	ChestCm    *float64   `json:"chestCm"`
	WaistCm    *float64   `json:"waistCm"`
	HipsCm     *float64   `json:"hipsCm"`
	Notes      string     `json:"notes"`
}

func (h *Handler) CreateMeasurement(c *gin.Context) {
	var req measurementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	for _, v := range []*float64{req.WeightKg, req.BodyFatPct, req.ChestCm, req.WaistCm, req.HipsCm} {
		if v != nil && *v < 0 {
			badRequest(c, "measurements must not be negative")
			return
		}
	}
	m := &model.BodyMeasurement{
		ID:         uuid.New().String(),
		UserID:     c.Param("userId"),
		MeasuredAt: time.Now().UTC(),
		WeightKg:   req.WeightKg,
		BodyFatPct: req.BodyFatPct,
		ChestCm:    req.ChestCm,
		WaistCm:    req.WaistCm,
		HipsCm:     req.HipsCm,
		Notes:      req.Notes,
	}
	if req.MeasuredAt != nil {
		m.MeasuredAt = *req.MeasuredAt
	}
	if err := h.store.CreateMeasurement(c.Request.Context(), m); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) measurements(c *gin.Context, userID string) {
	list, err := h.store.MeasurementsForUser(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) ClientMeasurements(c *gin.Context) { h.measurements(c, c.Param("userId")) }

func (h *Handler) MyMeasurements(c *gin.Context) { h.measurements(c, middleware.UserID(c)) }

// ownMeasurement loads the measurement in the path and checks the caller
// may touch it.
func (h *Handler) ownMeasurement(c *gin.Context) (*model.BodyMeasurement, bool) {
	m, err := h.store.MeasurementByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	if m.UserID != middleware.UserID(c) && !middleware.IsAdmin(c) {
		writeError(c, apperr.Forbidden("not your measurement"))
		return nil, false
	}
	return m, true
}

type photoRequest struct {
	ContentType string `json:"contentType"`
}

func (h *Handler) PhotoUploadURL(c *gin.Context) {
	var req photoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	m, ok := h.ownMeasurement(c)
	if !ok {
		return
	}
	key, err := storage.PhotoKey(m.UserID, m.ID, req.ContentType)
	if err != nil {
		writeError(c, err)
		return
	}
	ctx := c.Request.Context()
	url, err := h.photos.UploadURL(ctx, key, req.ContentType)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.store.SetMeasurementPhoto(ctx, m.ID, key); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uploadUrl": url, "key": key})
}

func (h *Handler) PhotoDownloadURL(c *gin.Context) {
	m, ok := h.ownMeasurement(c)
	if !ok {
		return
	}
	if m.PhotoKey == "" {
		writeError(c, apperr.NotFound("measurement has no photo"))
		return
	}
	url, err := h.photos.DownloadURL(c.Request.Context(), m.PhotoKey)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}
