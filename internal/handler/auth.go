package handler

import (
	"errors"
	"net/http" // HTTP status codes and primitives
	"time"

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/iliyamo/store-rating/internal/apperr"
	"github.com/iliyamo/store-rating/internal/config"     // app configuration
	"github.com/iliyamo/store-rating/internal/middleware" // bound payload access
	"github.com/iliyamo/store-rating/internal/model"
	"github.com/iliyamo/store-rating/internal/repository" // DB repositories
	"github.com/iliyamo/store-rating/internal/utils"      // helper functions (hashing, token issuing)
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg   config.Config
	Users *repository.UserRepo
}

func NewAuthHandler(cfg config.Config, u *repository.UserRepo) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u}
}

// ----- DTOs -----

type RegisterReq struct {
	Name     string `json:"name" validate:"required,username"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,password" sanitize:"-"`
	Address  string `json:"address" validate:"max=400"`
	Role     string `json:"role" validate:"omitempty,oneof=user store_owner"` // admins are created by admins only
}

func (r *RegisterReq) EmailAddress() string { return r.Email }

type LoginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required" sanitize:"-"`
}

type PasswordReq struct {
	CurrentPassword string `json:"current_password" validate:"required" sanitize:"-"`
	NewPassword     string `json:"new_password" validate:"required,password" sanitize:"-"`
	ConfirmPassword string `json:"confirm_password" sanitize:"-"` // optional
}

type authResp struct {
	Message   string         `json:"message"`
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	User      model.UserView `json:"user"`
}

// Register: create user and return a token immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	req := middleware.Payload[RegisterReq](c)
	role := model.RoleUser
	if req.Role != "" {
		role = model.Role(req.Role)
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u := model.User{Name: req.Name, Email: req.Email, Address: req.Address, Role: role}
	if err := h.Users.Create(ctx, &u, req.Password, h.Cfg.BcryptCost); err != nil {
		return repoErr(err, "User not found")
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, string(u.Role), h.Cfg.TokenTTL)
	if err != nil {
		return apperr.Internal("Internal server error", err)
	}
	return c.JSON(http.StatusCreated, authResp{
		Message:   "User registered successfully",
		Token:     access.Token,
		ExpiresAt: access.Exp,
		User:      u.View(),
	})
}

// Login: verify credentials and return a fresh token.  Unknown email and
// wrong password are indistinguishable to the caller.
func (h *AuthHandler) Login(c echo.Context) error {
	req := middleware.Payload[LoginReq](c)

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.Unauthorized("Invalid credentials")
		}
		return apperr.Internal("Internal server error", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return apperr.Unauthorized("Invalid credentials")
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, string(u.Role), h.Cfg.TokenTTL)
	if err != nil {
		return apperr.Internal("Internal server error", err)
	}
	return c.JSON(http.StatusOK, authResp{
		Message:   "Login successful",
		Token:     access.Token,
		ExpiresAt: access.Exp,
		User:      u.View(),
	})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"user": u.View()})
}

// ChangePassword replaces the caller's password after checking the current one.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	req := middleware.Payload[PasswordReq](c)
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.NewPassword {
		return apperr.Validation("Validation failed",
			apperr.FieldError{Field: "confirm_password", Message: "must match new_password"})
	}
	if !utils.VerifyPassword(u.PasswordHash, req.CurrentPassword) {
		return apperr.Unauthorized("Current password is incorrect")
	}
	hash, err := utils.HashPassword(req.NewPassword, h.Cfg.BcryptCost)
	if err != nil {
		return apperr.Internal("Internal server error", err)
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return repoErr(err, "User not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Password updated successfully"})
}
