package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"studio-booking-api/internal/apperr"
	"studio-booking-api/internal/auth"
	"studio-booking-api/internal/availability"
	"studio-booking-api/internal/booking"
	"studio-booking-api/internal/handler"
	"studio-booking-api/internal/model"
	"studio-booking-api/internal/ratelimit"
	"studio-booking-api/internal/reminder"
	"studio-booking-api/internal/store"
)

func init() { gin.SetMode(gin.TestMode) }

// fakeStore implements the handful of store methods these tests reach.
// Anything else panics through the nil embedded interface.
type fakeStore struct {
	handler.Store

	mu        sync.Mutex
	users     map[string]*model.User
	tokens    map[string]*store.RefreshToken
	revokedBy []string
	bookings  []model.Booking
	gotFilter [2]string
	measure   map[string]*model.BodyMeasurement
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   map[string]*model.User{},
		tokens:  map[string]*store.RefreshToken{},
		measure: map[string]*model.BodyMeasurement{},
	}
}

func (f *fakeStore) CreateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.users {
		if strings.EqualFold(x.Email, u.Email) {
			return apperr.Conflict("user already exists")
		}
	}
	f.users[u.ID] = u
	return nil
}

func (f *fakeStore) UserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, apperr.NotFound("user not found")
}

func (f *fakeStore) UserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, apperr.NotFound("user not found")
}

func (f *fakeStore) CreateRefreshToken(_ context.Context, userID, hash string, exp time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "rt" + hash[:8]
	f.tokens[hash] = &store.RefreshToken{ID: id, UserID: userID, TokenHash: hash, ExpiresAt: exp}
	return id, nil
}

func (f *fakeStore) RefreshTokenByHash(_ context.Context, hash string) (*store.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rt, ok := f.tokens[hash]; ok {
		cp := *rt
		return &cp, nil
	}
	return nil, apperr.NotFound("refresh token not found")
}

func (f *fakeStore) RotateRefreshToken(_ context.Context, oldID, userID, newHash string, exp time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rt := range f.tokens {
		if rt.ID == oldID {
			rt.Revoked = true
		}
	}
	f.tokens[newHash] = &store.RefreshToken{ID: "rt" + newHash[:8], UserID: userID, TokenHash: newHash, ExpiresAt: exp}
	return "rt" + newHash[:8], nil
}

func (f *fakeStore) RevokeAllRefreshTokens(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokedBy = append(f.revokedBy, userID)
	for _, rt := range f.tokens {
		if rt.UserID == userID {
			rt.Revoked = true
		}
	}
	return nil
}

func (f *fakeStore) ListBookings(_ context.Context, userID, date string) ([]model.Booking, error) {
	f.gotFilter = [2]string{userID, date}
	return f.bookings, nil
}

func (f *fakeStore) MeasurementByID(_ context.Context, id string) (*model.BodyMeasurement, error) {
	if m, ok := f.measure[id]; ok {
		return m, nil
	}
	return nil, apperr.NotFound("measurement not found")
}

type fakeBookings struct {
	res       *booking.Result
	err       error
	got       booking.Request
	cancelErr error
}

func (f *fakeBookings) Create(_ context.Context, req booking.Request) (*booking.Result, error) {
	f.got = req
	return f.res, f.err
}

func (f *fakeBookings) Cancel(_ context.Context, id string, a booking.Actor) (*model.Booking, error) {
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return &model.Booking{ID: id, UserID: a.UserID, Status: model.StatusCancelled}, nil
}

type fakeSlots struct {
	got availability.Options
}

func (f *fakeSlots) Slots(_ context.Context, _ string, opts availability.Options) ([]string, error) {
	f.got = opts
	return []string{"09:00", "09:30"}, nil
}

type fakeReminders struct{ runs int }

func (f *fakeReminders) Run(context.Context) (reminder.Summary, error) {
	f.runs++
	return reminder.Summary{Scanned: 2, Sent: 1, Failed: 1}, nil
}

type env struct {
	r         *gin.Engine
	iss       *auth.Issuer
	store     *fakeStore
	bookings  *fakeBookings
	slots     *fakeSlots
	reminders *fakeReminders
}

func setup(t *testing.T) *env {
	t.Helper()
	e := &env{
		iss:       auth.NewIssuer("test-secret", time.Minute),
		store:     newFakeStore(),
		bookings:  &fakeBookings{},
		slots:     &fakeSlots{},
		reminders: &fakeReminders{},
	}
	h := handler.New(handler.Deps{
		Store:        e.store,
		Bookings:     e.bookings,
		Slots:        e.slots,
		Reminders:    e.reminders,
		Tokens:       e.iss,
		ReminderAuth: handler.ReminderAuth{Secret: "cron-secret", SchedulerHeader: "X-Appengine-Cron"},
	})
	e.r = gin.New()
	h.Routes(e.r)
	return e
}

func (e *env) token(t *testing.T, id string, role model.Role) string {
	t.Helper()
	tok, err := e.iss.MakeToken(&model.User{ID: id, Role: role})
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return tok
}

func (e *env) do(method, path, token string, body any, hdr ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestCreateBooking(t *testing.T) {
	e := setup(t)
	reset := time.Date(2026, 3, 10, 9, 1, 0, 0, time.UTC)
	e.bookings.res = &booking.Result{
		Booking:   &model.Booking{ID: "b1", UserID: "u1", Date: "2026-03-11", Time: "10:00", Status: model.StatusConfirmed},
		RateLimit: ratelimit.Decision{Allowed: true, Limit: 5, Remaining: 4, Reset: reset},
	}

	w := e.do(http.MethodPost, "/api/bookings", e.token(t, "u1", model.RoleClient),
		gin.H{"date": "2026-03-11", "time": "10:00", "packageId": "p1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("got %d: %s", w.Code, w.Body.String())
	}
	if e.bookings.got != (booking.Request{UserID: "u1", Date: "2026-03-11", Time: "10:00", PackageID: "p1"}) {
		t.Errorf("request %+v", e.bookings.got)
	}
	if w.Header().Get("X-RateLimit-Remaining") != "4" || w.Header().Get("X-RateLimit-Limit") != "5" {
		t.Errorf("headers %v", w.Header())
	}
	var b model.Booking
	decode(t, w, &b)
	if b.ID != "b1" || b.Status != model.StatusConfirmed {
		t.Errorf("body %+v", b)
	}
}

func TestCreateBookingErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", apperr.Validation("time must be HH:MM"), http.StatusBadRequest},
		{"not member", apperr.Forbidden("package does not belong to this user"), http.StatusForbidden},
		{"missing package", apperr.NotFound("package not found"), http.StatusNotFound},
		{"slot taken", apperr.Conflict("slot 2026-03-11 10:00 is already booked"), http.StatusConflict},
		{"db down", context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setup(t)
			e.bookings.err = tt.err
			w := e.do(http.MethodPost, "/api/bookings", e.token(t, "u1", model.RoleClient),
				gin.H{"date": "2026-03-11", "time": "10:00", "packageId": "p1"})
			if w.Code != tt.code {
				t.Fatalf("got %d, want %d", w.Code, tt.code)
			}
			var body map[string]any
			decode(t, w, &body)
			if body["error"] == "" {
				t.Errorf("missing error in %v", body)
			}
			if tt.code == http.StatusInternalServerError && body["error"] != "internal error" {
				t.Errorf("internal error leaked: %v", body["error"])
			}
		})
	}
}

func TestCreateBookingRateLimited(t *testing.T) {
	e := setup(t)
	e.bookings.err = &booking.RateLimitError{Decision: ratelimit.Decision{
		Limit:      5,
		Reset:      time.Date(2026, 3, 10, 9, 1, 0, 0, time.UTC),
		RetryAfter: 11500 * time.Millisecond,
	}}

	w := e.do(http.MethodPost, "/api/bookings", e.token(t, "u1", model.RoleClient),
		gin.H{"date": "2026-03-11", "time": "10:00", "packageId": "p1"})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("got %d", w.Code)
	}
	if w.Header().Get("Retry-After") != "12" || w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("headers %v", w.Header())
	}
	var body struct {
		Error      string `json:"error"`
		RetryAfter int    `json:"retryAfter"`
	}
	decode(t, w, &body)
	if body.RetryAfter != 12 || body.Error == "" {
		t.Errorf("body %+v", body)
	}
}

func TestCreateBookingNeedsToken(t *testing.T) {
	e := setup(t)
	if w := e.do(http.MethodPost, "/api/bookings", "", gin.H{}); w.Code != http.StatusUnauthorized {
		t.Fatalf("got %d", w.Code)
	}
}

func TestGetSlots(t *testing.T) {
	e := setup(t)

	if w := e.do(http.MethodGet, "/api/slots", e.token(t, "u1", model.RoleClient), nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing date: %d", w.Code)
	}

	w := e.do(http.MethodGet, "/api/slots?date=2026-03-11&isAdmin=true&packageId=p1&isMultiplePackage=true",
		e.token(t, "u1", model.RoleClient), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d", w.Code)
	}
	want := availability.Options{UserID: "u1", PackageID: "p1", IsMultiplePackage: true}
	if e.slots.got != want {
		t.Errorf("client asked for admin view: %+v", e.slots.got)
	}
	var body struct {
		Slots []string `json:"slots"`
	}
	decode(t, w, &body)
	if len(body.Slots) != 2 {
		t.Errorf("slots %v", body.Slots)
	}

	e.do(http.MethodGet, "/api/slots?date=2026-03-11&isAdmin=true", e.token(t, "a1", model.RoleAdmin), nil)
	if !e.slots.got.IsAdmin {
		t.Error("admin view not honored for admin")
	}
}

func TestListBookingsScope(t *testing.T) {
	e := setup(t)

	e.do(http.MethodGet, "/api/bookings?userId=u2&date=2026-03-11", e.token(t, "u1", model.RoleClient), nil)
	if e.store.gotFilter != [2]string{"u1", "2026-03-11"} {
		t.Errorf("client filter %v", e.store.gotFilter)
	}
	e.do(http.MethodGet, "/api/bookings?userId=u2", e.token(t, "a1", model.RoleAdmin), nil)
	if e.store.gotFilter != [2]string{"u2", ""} {
		t.Errorf("admin filter %v", e.store.gotFilter)
	}
}

func TestCancelBooking(t *testing.T) {
	e := setup(t)
	tok := e.token(t, "u1", model.RoleClient)

	w := e.do(http.MethodPost, "/api/bookings/b1/cancel", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d", w.Code)
	}
	var b model.Booking
	decode(t, w, &b)
	if b.Status != model.StatusCancelled {
		t.Errorf("status %s", b.Status)
	}

	e.bookings.cancelErr = apperr.Forbidden("not your booking")
	if w := e.do(http.MethodPost, "/api/bookings/b1/cancel", tok, nil); w.Code != http.StatusForbidden {
		t.Errorf("foreign cancel: %d", w.Code)
	}
}

func TestDispatchReminders(t *testing.T) {
	tests := []struct {
		name string
		hdr  []string
		code int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"wrong secret", []string{"Authorization", "Bearer nope"}, http.StatusUnauthorized},
		{"scheduler header", []string{"X-Appengine-Cron", "true"}, http.StatusOK},
		{"bearer secret", []string{"Authorization", "Bearer cron-secret"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setup(t)
			w := e.do(http.MethodPost, "/api/reminders/dispatch", "", nil, tt.hdr...)
			if w.Code != tt.code {
				t.Fatalf("got %d, want %d", w.Code, tt.code)
			}
			if tt.code != http.StatusOK {
				if e.reminders.runs != 0 {
					t.Error("job ran without auth")
				}
				return
			}
			var sum reminder.Summary
			decode(t, w, &sum)
			if sum != (reminder.Summary{Scanned: 2, Sent: 1, Failed: 1}) {
				t.Errorf("summary %+v", sum)
			}
		})
	}
}

func TestRegisterLoginRefresh(t *testing.T) {
	e := setup(t)

	w := e.do(http.MethodPost, "/api/auth/register", "", gin.H{"email": "ana@example.com", "password": "short", "name": "Ana"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("short password: %d", w.Code)
	}

	w = e.do(http.MethodPost, "/api/auth/register", "", gin.H{"email": "ana@example.com", "password": "longenough", "name": "Ana"})
	if w.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	var reg struct {
		Token        string     `json:"token"`
		RefreshToken string     `json:"refreshToken"`
		User         model.User `json:"user"`
	}
	decode(t, w, &reg)
	if reg.User.Role != model.RoleClient || reg.Token == "" {
		t.Fatalf("register body %+v", reg)
	}

	if w := e.do(http.MethodPost, "/api/auth/register", "", gin.H{"email": "ANA@example.com", "password": "longenough", "name": "Ana"}); w.Code != http.StatusConflict {
		t.Errorf("duplicate register: %d", w.Code)
	}

	if w := e.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "ana@example.com", "password": "wrongpass"}); w.Code != http.StatusUnauthorized {
		t.Errorf("bad login: %d", w.Code)
	}
	if w := e.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "ana@example.com", "password": "longenough"}); w.Code != http.StatusOK {
		t.Errorf("login: %d", w.Code)
	}

	w = e.do(http.MethodPost, "/api/auth/refresh", "", gin.H{"refreshToken": reg.RefreshToken})
	if w.Code != http.StatusOK {
		t.Fatalf("refresh: %d %s", w.Code, w.Body.String())
	}

	// the first token was rotated away; presenting it again is reuse
	w = e.do(http.MethodPost, "/api/auth/refresh", "", gin.H{"refreshToken": reg.RefreshToken})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("reuse: %d", w.Code)
	}
	if len(e.store.revokedBy) != 1 || e.store.revokedBy[0] != reg.User.ID {
		t.Errorf("reuse did not revoke all: %v", e.store.revokedBy)
	}
}

func TestAdminRoutesNeedAdmin(t *testing.T) {
	e := setup(t)
	if w := e.do(http.MethodGet, "/api/admin/clients", e.token(t, "u1", model.RoleClient), nil); w.Code != http.StatusForbidden {
		t.Fatalf("got %d", w.Code)
	}
}

func TestPhotoUpload(t *testing.T) {
	e := setup(t)
	e.store.measure["m1"] = &model.BodyMeasurement{ID: "m1", UserID: "u1"}

	w := e.do(http.MethodPost, "/api/measurements/m1/photo", e.token(t, "u2", model.RoleClient), gin.H{"contentType": "image/png"})
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign measurement: %d", w.Code)
	}

	// no bucket configured
	w = e.do(http.MethodPost, "/api/measurements/m1/photo", e.token(t, "u1", model.RoleClient), gin.H{"contentType": "image/png"})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("disabled storage: %d", w.Code)
	}

	w = e.do(http.MethodGet, "/api/measurements/m1/photo", e.token(t, "u1", model.RoleClient), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("no photo: %d", w.Code)
	}
}
