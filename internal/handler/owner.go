package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/store-rating/internal/apperr"
	"github.com/iliyamo/store-rating/internal/middleware"
	"github.com/iliyamo/store-rating/internal/repository"
)

// OwnerHandler serves the store owner's dashboard.
type OwnerHandler struct {
	Stores  *repository.StoreRepo
	Ratings *repository.RatingRepo
}

func NewOwnerHandler(s *repository.StoreRepo, r *repository.RatingRepo) *OwnerHandler {
	return &OwnerHandler{Stores: s, Ratings: r}
}

// Dashboard GET /v1/owner/dashboard
// Shows the caller's first store with its distribution and ratings.
func (h *OwnerHandler) Dashboard(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	stores, err := h.Stores.ListByOwner(ctx, u.ID)
	if err != nil {
		return repoErr(err, "No store found for this owner")
	}
	if len(stores) == 0 {
		return apperr.NotFound("No store found for this owner")
	}
	s := stores[0]

	dist, err := h.Stores.Distribution(ctx, s.ID)
	if err != nil {
		return repoErr(err, "Store not found")
	}
	ratings, err := h.Ratings.ListByStore(ctx, s.ID)
	if err != nil {
		return repoErr(err, "Store not found")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"store":               s,
		"rating_distribution": dist,
		"ratings":             ratings,
	})
}

// StoreRatings GET /v1/owner/stores/:id/ratings
// Ownership has already been checked; admins arrive without a loaded store.
func (h *OwnerHandler) StoreRatings(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if _, ok := middleware.LoadedStore(c); !ok {
		if _, err := h.Stores.GetByID(ctx, id); err != nil {
			return repoErr(err, "Store not found")
		}
	}
	ratings, err := h.Ratings.ListByStore(ctx, id)
	if err != nil {
		return repoErr(err, "Store not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"store_id": id, "ratings": ratings})
}
