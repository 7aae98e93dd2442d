package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/store-rating/internal/apperr"
	"github.com/iliyamo/store-rating/internal/repository"
	"github.com/iliyamo/store-rating/internal/validation"
)

func TestRepoErr(t *testing.T) {
	cases := []struct {
		in   error
		kind apperr.Kind
	}{
		{repository.ErrNotFound, apperr.KindNotFound},
		{fmt.Errorf("wrapped: %w", repository.ErrNotFound), apperr.KindNotFound},
		{repository.ErrEmailExists, apperr.KindConflict},
		{repository.ErrConflict, apperr.KindInvalidOperation},
		{apperr.InvalidOperation("nope"), apperr.KindInvalidOperation},
		{errors.New("driver: bad connection"), apperr.KindInternal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.kind, apperr.KindOf(repoErr(tc.in, "Thing not found")), tc.in.Error())
	}

	e, ok := apperr.As(repoErr(repository.ErrNotFound, "Store not found"))
	require.True(t, ok)
	assert.Equal(t, "Store not found", e.Message)
}

func listCtx(rawQuery string) echo.Context {
	e := echo.New()
	e.Validator = validation.New(validation.DefaultNamePolicy)
	req := httptest.NewRequest(http.MethodGet, "/v1/stores?"+rawQuery, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestParseListQueryDefaults(t *testing.T) {
	q, p, err := parseListQuery(listCtx(""), storeSortable...)
	require.NoError(t, err)
	assert.Equal(t, repository.Page{Page: 1, Limit: 10}, p)
	assert.Empty(t, q.SortBy)
}

func TestParseListQueryNormalises(t *testing.T) {
	q, p, err := parseListQuery(listCtx("name=%20%20big%20%20%20shop%20&sort_by=rating&sort_order=DESC&page=3&limit=100"), storeSortable...)
	require.NoError(t, err)
	assert.Equal(t, "big shop", q.Name)
	assert.Equal(t, "desc", q.SortOrder)
	assert.Equal(t, repository.Page{Page: 3, Limit: 100}, p)
}

func TestParseListQueryRejects(t *testing.T) {
	cases := map[string]string{
		"sort_by=password_hash": "sort_by",
		"page=-1":               "page",
		"page=two":              "page",
		"limit=0":               "limit",
		"limit=101":             "limit",
		"email=x%27%20OR%201":   "email",
		"address=a--b":          "address",
	}
	for raw, field := range cases {
		_, _, err := parseListQuery(listCtx(raw), storeSortable...)
		e, ok := apperr.As(err)
		require.True(t, ok, raw)
		assert.Equal(t, apperr.KindValidation, e.Kind, raw)
		require.NotEmpty(t, e.Details, raw)
		assert.Equal(t, field, e.Details[0].Field, raw)
	}
}

func TestParseListQueryRoleFilter(t *testing.T) {
	_, _, err := parseListQuery(listCtx("role=store_owner"), userSortable...)
	assert.NoError(t, err)

	_, _, err = parseListQuery(listCtx("role=root"), userSortable...)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
