package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/store-rating/internal/middleware"
	"github.com/iliyamo/store-rating/internal/repository"
	"github.com/iliyamo/store-rating/internal/service"
)

// RatingHandler exposes the rating engine to normal users.
type RatingHandler struct {
	Svc     *service.RatingService
	Stores  *repository.StoreRepo
	Ratings *repository.RatingRepo
}

func NewRatingHandler(svc *service.RatingService, s *repository.StoreRepo, r *repository.RatingRepo) *RatingHandler {
	return &RatingHandler{Svc: svc, Stores: s, Ratings: r}
}

type SubmitRatingReq struct {
	StoreID uint64  `json:"store_id" validate:"required,gt=0"`
	Rating  int     `json:"rating" validate:"required,gte=1,lte=5"`
	Comment *string `json:"comment" validate:"omitempty,max=1000"`
}

type submitResp struct {
	Message       string  `json:"message"`
	RatingID      uint64  `json:"rating_id"`
	AverageRating float64 `json:"average_rating"`
	TotalRatings  uint64  `json:"total_ratings"`
}

// Submit POST /v1/ratings
// Creates or overwrites the caller's rating; 201 on create, 200 on update.
func (h *RatingHandler) Submit(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	req := middleware.Payload[SubmitRatingReq](c)
	comment := req.Comment
	if comment != nil && *comment == "" {
		comment = nil
	}

	res, err := h.Svc.SubmitOrUpdate(c.Request().Context(), u.ID, req.StoreID, req.Rating, comment)
	if err != nil {
		return err
	}
	status, msg := http.StatusOK, "Rating updated successfully"
	if res.Created {
		status, msg = http.StatusCreated, "Rating submitted successfully"
	}
	return c.JSON(status, submitResp{
		Message:       msg,
		RatingID:      res.RatingID,
		AverageRating: res.AverageRating,
		TotalRatings:  res.TotalRatings,
	})
}

// Mine GET /v1/ratings/mine
func (h *RatingHandler) Mine(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	ratings, err := h.Ratings.ListByUser(ctx, u.ID)
	if err != nil {
		return repoErr(err, "Rating not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"ratings": ratings})
}

// ForStore GET /v1/ratings/stores/:id
// my_rating is null when the caller has not rated the store.
func (h *RatingHandler) ForStore(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
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
	ratings, err := h.Ratings.ListByStore(ctx, id)
	if err != nil {
		return repoErr(err, "Store not found")
	}
	mine, err := h.Ratings.GetByUserAndStore(ctx, u.ID, id)
	if err != nil {
		return repoErr(err, "Rating not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"store": s, "ratings": ratings, "my_rating": mine})
}

// Delete DELETE /v1/ratings/:id
func (h *RatingHandler) Delete(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	if _, err := h.Svc.Delete(c.Request().Context(), id, u.ID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Rating deleted successfully"})
}
