package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/store-rating/internal/apperr"
	"github.com/iliyamo/store-rating/internal/config"
	"github.com/iliyamo/store-rating/internal/middleware"
	"github.com/iliyamo/store-rating/internal/model"
	"github.com/iliyamo/store-rating/internal/repository"
	"github.com/iliyamo/store-rating/internal/service"
)

// UserHandler holds the admin user-management endpoints.
type UserHandler struct {
	Cfg     config.Config
	Users   *repository.UserRepo
	Stores  *repository.StoreRepo
	Ratings *repository.RatingRepo
	Svc     *service.RatingService
}

func NewUserHandler(cfg config.Config, u *repository.UserRepo, s *repository.StoreRepo, r *repository.RatingRepo, svc *service.RatingService) *UserHandler {
	return &UserHandler{Cfg: cfg, Users: u, Stores: s, Ratings: r, Svc: svc}
}

type CreateUserReq struct {
	Name     string `json:"name" validate:"required,username"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,password" sanitize:"-"`
	Address  string `json:"address" validate:"max=400"`
	Role     string `json:"role" validate:"required,role"`
}

func (r *CreateUserReq) EmailAddress() string { return r.Email }

type ProfileReq struct {
	Name    string `json:"name" validate:"required,username"`
	Email   string `json:"email" validate:"required,email,max=255"`
	Address string `json:"address" validate:"max=400"`
}

type RoleReq struct {
	Role string `json:"role" validate:"required,role"`
}

var userSortable = []string{"name", "email", "address", "role", "created_at"}

// Create POST /v1/users
func (h *UserHandler) Create(c echo.Context) error {
	req := middleware.Payload[CreateUserReq](c)
	role, err := model.ParseRole(req.Role)
	if err != nil {
		return apperr.Validation("Validation failed", apperr.FieldError{Field: "role", Message: "must be one of admin, user, store_owner"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u := model.User{Name: req.Name, Email: req.Email, Address: req.Address, Role: role}
	if err := h.Users.Create(ctx, &u, req.Password, h.Cfg.BcryptCost); err != nil {
		return repoErr(err, "User not found")
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "User created successfully", "user": u.View()})
}

// List GET /v1/users
func (h *UserHandler) List(c echo.Context) error {
	q, page, err := parseListQuery(c, userSortable...)
	if err != nil {
		return err
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	users, err := h.Users.List(ctx, repository.UserFilter{
		Name:      q.Name,
		Email:     q.Email,
		Address:   q.Address,
		Role:      model.Role(q.Role),
		SortBy:    q.SortBy,
		SortOrder: q.SortOrder,
		Page:      page,
	})
	if err != nil {
		return repoErr(err, "User not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"users": users, "page": page.Page, "limit": page.Limit})
}

// Stats GET /v1/users/stats
func (h *UserHandler) Stats(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	users, err := h.Users.Count(ctx)
	if err != nil {
		return apperr.Internal("Internal server error", err)
	}
	stores, err := h.Stores.Count(ctx)
	if err != nil {
		return apperr.Internal("Internal server error", err)
	}
	ratings, err := h.Ratings.Count(ctx)
	if err != nil {
		return apperr.Internal("Internal server error", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"stats": echo.Map{
		"total_users":   users,
		"total_stores":  stores,
		"total_ratings": ratings,
	}})
}

// ByRole GET /v1/users/role/:role
func (h *UserHandler) ByRole(c echo.Context) error {
	role, err := model.ParseRole(c.Param("role"))
	if err != nil {
		return apperr.Validation("Invalid role", apperr.FieldError{Field: "role", Message: "must be one of admin, user, store_owner"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	users, err := h.Users.ListByRole(ctx, role)
	if err != nil {
		return repoErr(err, "User not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"users": users})
}

// Get GET /v1/users/:id
func (h *UserHandler) Get(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetDetail(ctx, id)
	if err != nil {
		return repoErr(err, "User not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"user": u})
}

// UpdateProfile PUT /v1/users/:id/profile
func (h *UserHandler) UpdateProfile(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	req := middleware.Payload[ProfileReq](c)

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.UpdateProfile(ctx, id, req.Name, req.Email, req.Address)
	if err != nil {
		return repoErr(err, "User not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Profile updated successfully", "user": u.View()})
}

// UpdateRole PATCH /v1/users/:id/role
func (h *UserHandler) UpdateRole(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	req := middleware.Payload[RoleReq](c)
	role, err := model.ParseRole(req.Role)
	if err != nil {
		return apperr.Validation("Validation failed", apperr.FieldError{Field: "role", Message: "must be one of admin, user, store_owner"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.UpdateRole(ctx, id, role)
	if errors.Is(err, repository.ErrConflict) {
		return apperr.InvalidOperation("Cannot change the role of a user who still owns stores")
	}
	if err != nil {
		return repoErr(err, "User not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Role updated successfully", "user": u.View()})
}

// Delete DELETE /v1/users/:id
// Runs through the rating engine so every store the user rated is recomputed.
func (h *UserHandler) Delete(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	affected, err := h.Svc.DeleteUser(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message":           "User deleted successfully",
		"recomputed_stores": len(affected),
	})
}
