package handler // handler defines http handlers

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/store-rating/internal/apperr"
	"github.com/iliyamo/store-rating/internal/middleware"
	"github.com/iliyamo/store-rating/internal/model"
	"github.com/iliyamo/store-rating/internal/repository"
	"github.com/iliyamo/store-rating/internal/validation"
)

// dbTimeout bounds the database work of a single request.
const dbTimeout = 5 * time.Second

// Pagination defaults and ceiling.
const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100
)

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), dbTimeout)
}

// currentUser returns the authenticated user.  Routes using it are always
// wrapped with Authenticate, so a missing user is a wiring bug.
func currentUser(c echo.Context) (model.User, error) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return model.User{}, apperr.Unauthorized("Access token required")
	}
	return u, nil
}

// repoErr converts repository sentinels into client-facing errors.
func repoErr(err error, notFound string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound(notFound)
	case errors.Is(err, repository.ErrEmailExists):
		return apperr.Conflict("Email already registered")
	case errors.Is(err, repository.ErrConflict):
		return apperr.InvalidOperation("Operation conflicts with dependent records")
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Internal("Internal server error", err)
}

// listQuery is the shared query string of the store and user listings.
type listQuery struct {
	Name      string `query:"name" validate:"max=60"`
	Email     string `query:"email" validate:"max=255"`
	Address   string `query:"address" validate:"max=400"`
	Role      string `query:"role" validate:"omitempty,role"`
	SortBy    string `query:"sort_by"`
	SortOrder string `query:"sort_order" validate:"omitempty,oneof=asc desc"`
	Page      string `query:"page"`
	Limit     string `query:"limit"`
}

// parseListQuery binds, sanitises and validates the listing query.  sortable
// lists the accepted sort_by values.
func parseListQuery(c echo.Context, sortable ...string) (listQuery, repository.Page, error) {
	var q listQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &q); err != nil {
		return q, repository.Page{}, apperr.Validation("Invalid query parameters")
	}
	validation.Sanitize(&q)
	q.SortOrder = strings.ToLower(q.SortOrder)
	if err := c.Validate(&q); err != nil {
		return q, repository.Page{}, err
	}
	var details []apperr.FieldError
	if q.SortBy != "" && !slices.Contains(sortable, q.SortBy) {
		details = append(details, apperr.FieldError{Field: "sort_by", Message: "must be one of " + strings.Join(sortable, ", ")})
	}
	for field, v := range map[string]string{"name": q.Name, "email": q.Email, "address": q.Address} {
		if validation.UnsafeFilter(v) {
			details = append(details, apperr.FieldError{Field: field, Message: "contains invalid characters"})
		}
	}
	p := repository.Page{Page: defaultPage, Limit: defaultLimit}
	if q.Page != "" {
		n, err := strconv.Atoi(q.Page)
		if err != nil || n < 1 {
			details = append(details, apperr.FieldError{Field: "page", Message: "must be a positive integer"})
		}
		p.Page = n
	}
	if q.Limit != "" {
		n, err := strconv.Atoi(q.Limit)
		if err != nil || n < 1 || n > maxLimit {
			details = append(details, apperr.FieldError{Field: "limit", Message: fmt.Sprintf("must be between 1 and %d", maxLimit)})
		}
		p.Limit = n
	}
	if len(details) > 0 {
		slices.SortFunc(details, func(a, b apperr.FieldError) int { return strings.Compare(a.Field, b.Field) })
		return q, repository.Page{}, apperr.Validation("Validation failed", details...)
	}
	return q, p, nil
}
