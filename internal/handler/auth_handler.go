package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"studio-booking-api/internal/apperr"
	"studio-booking-api/internal/auth"
	"studio-booking-api/internal/middleware"
	"studio-booking-api/internal/model"
	"studio-booking-api/internal/store"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
}

func (r *registerRequest) validate() error {
	if r.Email == "" || r.Password == "" || r.Name == "" {
		return apperr.Validation("all fields required")
	}
	if !strings.Contains(r.Email, "@") {
		return apperr.Validation("invalid email")
	}
	if len(r.Password) < auth.MinPasswordLen {
		return apperr.Validation("password too short")
	}
	return nil
}

type tokenResponse struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresIn    int         `json:"expiresIn"`
	User         *model.User `json:"user"`
}

func (h *Handler) issue(c *gin.Context, u *model.User) (*tokenResponse, error) {
	tok, err := h.tokens.MakeToken(u)
	if err != nil {
		return nil, err
	}
	raw, hash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	if _, err := h.store.CreateRefreshToken(c.Request.Context(), u.ID, hash, time.Now().Add(auth.RefreshTTL)); err != nil {
		return nil, err
	}
	return &tokenResponse{Token: tok, RefreshToken: raw, ExpiresIn: int(h.tokens.TTL().Seconds()), User: u}, nil
}

func (h *Handler) newClient(c *gin.Context, req *registerRequest) (*model.User, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	u := &model.User{
		ID:                   uuid.New().String(),
		Email:                req.Email,
		PasswordHash:         hash,
		Name:                 req.Name,
		Phone:                req.Phone,
		Role:                 model.RoleClient,
		NotificationsEnabled: true,
		RemindersEnabled:     true,
	}
	if err := h.store.CreateUser(c.Request.Context(), u); err != nil {
		return nil, err
	}
	return u, nil
}

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	u, err := h.newClient(c, &req)
	if err != nil {
		// don't reveal whether the email exists
		if apperr.Message(err) == "user already exists" {
			err = apperr.Conflict("registration failed")
		}
		writeError(c, err)
		return
	}
	resp, err := h.issue(c, u)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		badRequest(c, "email and password required")
		return
	}

	u, err := h.store.UserByEmail(c.Request.Context(), req.Email)
	if err != nil || !auth.CheckPassword(u.PasswordHash, req.Password) {
		writeError(c, apperr.New(apperr.ErrUnauthorized, "invalid credentials"))
		return
	}

	resp, err := h.issue(c, u)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh rotates the refresh token. Presenting an already revoked token
// revokes every token of that user.
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		badRequest(c, "refreshToken required")
		return
	}
	ctx := c.Request.Context()
	denied := apperr.New(apperr.ErrUnauthorized, "invalid refresh token")

	rt, err := h.store.RefreshTokenByHash(ctx, auth.HashRefreshToken(req.RefreshToken))
	if err != nil {
		writeError(c, denied)
		return
	}
	if rt.Revoked {
		_ = h.store.RevokeAllRefreshTokens(ctx, rt.UserID)
		writeError(c, denied)
		return
	}
	if !rt.Usable(time.Now()) {
		writeError(c, denied)
		return
	}

	u, err := h.store.UserByID(ctx, rt.UserID)
	if err != nil {
		writeError(c, denied)
		return
	}
	raw, hash, err := auth.GenerateRefreshToken()
	if err != nil {
		writeError(c, err)
		return
	}
	if _, err := h.store.RotateRefreshToken(ctx, rt.ID, u.ID, hash, time.Now().Add(auth.RefreshTTL)); err != nil {
		writeError(c, err)
		return
	}
	tok, err := h.tokens.MakeToken(u)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{Token: tok, RefreshToken: raw, ExpiresIn: int(h.tokens.TTL().Seconds()), User: u})
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.store.RevokeAllRefreshTokens(c.Request.Context(), middleware.UserID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Me(c *gin.Context) {
	u, err := h.store.UserByID(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

type settingsRequest struct {
	Phone                *string `json:"phone"`
	NotificationsEnabled *bool   `json:"notificationsEnabled"`
	RemindersEnabled     *bool   `json:"remindersEnabled"`
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	if req.Phone != nil {
		p := strings.TrimSpace(*req.Phone)
		if p != "" && len(p) < 6 {
			badRequest(c, "invalid phone")
			return
		}
		req.Phone = &p
	}
	u, err := h.store.UpdateSettings(c.Request.Context(), middleware.UserID(c), store.Settings{
		Phone:                req.Phone,
		NotificationsEnabled: req.NotificationsEnabled,
		RemindersEnabled:     req.RemindersEnabled,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}
