package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/store-rating/internal/apperr"
	"github.com/iliyamo/store-rating/internal/logging"
	"github.com/iliyamo/store-rating/internal/middleware"
	"github.com/iliyamo/store-rating/internal/model"
	"github.com/iliyamo/store-rating/internal/repository"
	"github.com/iliyamo/store-rating/internal/service"
)

// StoreHandler serves the public store catalogue and admin store creation.
type StoreHandler struct {
	Stores  *repository.StoreRepo
	Ratings *repository.RatingRepo
	Users   *repository.UserRepo
	Cache   service.Cache // optional; purged after a store is created
	Log     *logrus.Logger
}

func NewStoreHandler(s *repository.StoreRepo, r *repository.RatingRepo, u *repository.UserRepo, cache service.Cache, log *logrus.Logger) *StoreHandler {
	if log == nil {
		log = logging.Discard()
	}
	return &StoreHandler{Stores: s, Ratings: r, Users: u, Cache: cache, Log: log}
}

type CreateStoreReq struct {
	Name    string  `json:"name" validate:"required,storename"`
	Email   string  `json:"email" validate:"required,email,max=255"`
	Address string  `json:"address" validate:"max=400"`
	OwnerID *uint64 `json:"owner_id" validate:"omitempty,gt=0"`
}

func (r *CreateStoreReq) EmailAddress() string { return r.Email }

type storeDetail struct {
	model.Store
	RatingDistribution model.RatingDistribution `json:"rating_distribution"`
}

var storeSortable = []string{"name", "email", "address", "rating", "created_at"}

// List GET /v1/stores
func (h *StoreHandler) List(c echo.Context) error {
	q, page, err := parseListQuery(c, storeSortable...)
	if err != nil {
		return err
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	stores, err := h.Stores.List(ctx, repository.StoreFilter{
		Name:      q.Name,
		Email:     q.Email,
		Address:   q.Address,
		SortBy:    q.SortBy,
		SortOrder: q.SortOrder,
		Page:      page,
	})
	if err != nil {
		return repoErr(err, "Store not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"stores": stores, "page": page.Page, "limit": page.Limit})
}

// Get GET /v1/stores/:id
func (h *StoreHandler) Get(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	s, err := h.Stores.GetByID(ctx, id)
	if err != nil {
		return repoErr(err, "Store not found")
	}
	dist, err := h.Stores.Distribution(ctx, id)
	if err != nil {
		return repoErr(err, "Store not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"store": storeDetail{Store: s, RatingDistribution: dist}})
}

// ListRatings GET /v1/stores/:id/ratings
func (h *StoreHandler) ListRatings(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if _, err := h.Stores.GetByID(ctx, id); err != nil {
		return repoErr(err, "Store not found")
	}
	ratings, err := h.Ratings.ListByStore(ctx, id)
	if err != nil {
		return repoErr(err, "Store not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"ratings": ratings})
}

// Create POST /v1/stores (admin)
func (h *StoreHandler) Create(c echo.Context) error {
	req := middleware.Payload[CreateStoreReq](c)

	ctx, cancel := reqCtx(c)
	defer cancel()

	if req.OwnerID != nil {
		owner, err := h.Users.GetByID(ctx, *req.OwnerID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.NotFound("Owner not found")
			}
			return apperr.Internal("Internal server error", err)
		}
		if owner.Role != model.RoleStoreOwner {
			return apperr.Validation("Validation failed",
				apperr.FieldError{Field: "owner_id", Message: "must reference a store owner"})
		}
	}

	s := model.Store{Name: req.Name, Email: req.Email, Address: req.Address, OwnerID: req.OwnerID}
	if err := h.Stores.Create(ctx, &s); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return apperr.Conflict("Store email already registered")
		}
		return repoErr(err, "Owner not found")
	}
	if h.Cache != nil {
		if err := h.Cache.Purge(ctx); err != nil {
			h.Log.WithError(err).Warn("cache purge after store create failed")
		}
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "Store created successfully", "store": s})
}
