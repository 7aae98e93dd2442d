package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/store-rating/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

var userCols = []string{"id", "name", "email", "password_hash", "address", "role", "created_at", "updated_at"}

func TestUserRepoCreate(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (name,email,password_hash,address,role)")).
		WithArgs("Ada Lovelace Test Account", "ada@example.com", sqlmock.AnyArg(), "1 Analytical Way", "user").
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id=?")).WithArgs(5).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(5, "Ada Lovelace Test Account", "ada@example.com", "$2a$hash", "1 Analytical Way", "user", now, now))

	u := model.User{Name: "Ada Lovelace Test Account", Email: "  ADA@example.com ", Address: "1 Analytical Way", Role: model.RoleUser}
	require.NoError(t, NewUserRepo(db).Create(context.Background(), &u, "Secret#1", 4))
	assert.Equal(t, uint64(5), u.ID)
	assert.Equal(t, model.RoleUser, u.Role)
	assert.Equal(t, "ada@example.com", u.Email)
}

func TestUserRepoCreateDuplicateEmail(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("INSERT INTO users").WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	u := model.User{Name: "n", Email: "dup@example.com", Role: model.RoleUser}
	err := NewUserRepo(db).Create(context.Background(), &u, "Secret#1", 4)
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestUserRepoGetByEmailNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email=?")).WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows(userCols))

	_, err := NewUserRepo(db).GetByEmail(context.Background(), "Nobody@Example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepoListAppliesFiltersAndPaging(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE u.name LIKE ? AND u.role=? ORDER BY u.name DESC, u.id ASC LIMIT ? OFFSET ?")).
		WithArgs("%ann%", "store_owner", 10, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "address", "role", "created_at", "updated_at", "store_rating"}).
			AddRow(3, "Anna", "anna@example.com", "x", "store_owner", now, now, 4.5).
			AddRow(4, "Annie", "annie@example.com", "y", "store_owner", now, now, nil))

	out, err := NewUserRepo(db).List(context.Background(), UserFilter{
		Name: "ann", Role: model.RoleStoreOwner, SortBy: "name", SortOrder: "desc",
		Page: Page{Page: 2, Limit: 10},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.NotNil(t, out[0].StoreRating)
	assert.InDelta(t, 4.5, *out[0].StoreRating, 0.001)
	assert.Nil(t, out[1].StoreRating)
}

func TestUserRepoListIgnoresUnknownSortColumn(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY u.created_at ASC, u.id ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := NewUserRepo(db).List(context.Background(), UserFilter{SortBy: "password_hash; --", Page: Page{Page: 1, Limit: 10}})
	require.NoError(t, err)
}

func TestUserRepoDeleteMissing(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE id=?")).WithArgs(9).WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, NewUserRepo(db).Delete(context.Background(), nil, 9), ErrNotFound)
}

func TestUserRepoEnsureAdmin(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO users")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO users")).WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewUserRepo(db)
	created, err := repo.EnsureAdmin(context.Background(), "Admin", "admin@example.com", "Admin#123", "HQ", 4)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.EnsureAdmin(context.Background(), "Admin", "admin@example.com", "Admin#123", "HQ", 4)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestStoreRepoCreateUnknownOwner(t *testing.T) {
	db, mock := newMock(t)
	owner := uint64(77)
	mock.ExpectExec("INSERT INTO stores").
		WillReturnError(&mysql.MySQLError{Number: 1452, Message: "Cannot add or update a child row"})

	err := NewStoreRepo(db).Create(context.Background(), &model.Store{Name: "Shop", Email: "s@example.com", OwnerID: &owner})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreRepoGetByIDScansNullOwner(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM stores WHERE id=?")).WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "address", "owner_id", "average_rating", "total_ratings", "created_at", "updated_at"}).
			AddRow(2, "Shop", "s@example.com", "Main St", nil, 3.67, 3, now, now))

	s, err := NewStoreRepo(db).GetByID(context.Background(), 2)
	require.NoError(t, err)
	assert.Nil(t, s.OwnerID)
	assert.InDelta(t, 3.67, s.AverageRating, 0.0001)
	assert.Equal(t, uint64(3), s.TotalRatings)
}

func TestStoreRepoListSortsByRating(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM stores WHERE address LIKE ? ORDER BY average_rating DESC, id ASC LIMIT ? OFFSET ?")).
		WithArgs("%main%", 5, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	out, err := NewStoreRepo(db).List(context.Background(), StoreFilter{
		Address: "main", SortBy: "rating", SortOrder: "desc", Page: Page{Page: 1, Limit: 5},
	})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestStoreRepoDistributionZeroFills(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY rating")).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"rating", "count"}).AddRow(5, 2).AddRow(3, 1))

	d, err := NewStoreRepo(db).Distribution(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, model.RatingDistribution{1: 0, 2: 0, 3: 1, 4: 0, 5: 2}, d)
}

func TestStoreRepoRecomputeAggregates(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE stores SET")).WithArgs(4, 4, 4).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT average_rating,total_ratings FROM stores WHERE id=?")).WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"average_rating", "total_ratings"}).AddRow(4.33, 3))

	avg, total, err := NewStoreRepo(db).RecomputeAggregates(context.Background(), nil, 4)
	require.NoError(t, err)
	assert.InDelta(t, 4.33, avg, 0.0001)
	assert.Equal(t, uint64(3), total)
}

func TestStoreRepoLockForUpdateMissing(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM stores WHERE id=? FOR UPDATE")).WithArgs(8).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	assert.ErrorIs(t, NewStoreRepo(db).LockForUpdate(context.Background(), db, 8), ErrNotFound)
}

func TestRatingRepoUpsertReportsCreation(t *testing.T) {
	db, mock := newMock(t)
	comment := "great"
	mock.ExpectExec(regexp.QuoteMeta("ON DUPLICATE KEY UPDATE id=LAST_INSERT_ID(id)")).
		WithArgs(1, 2, 5, "great").WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectExec(regexp.QuoteMeta("ON DUPLICATE KEY UPDATE id=LAST_INSERT_ID(id)")).
		WithArgs(1, 2, 3, nil).WillReturnResult(sqlmock.NewResult(11, 2))

	repo := NewRatingRepo(db)
	id, created, err := repo.Upsert(context.Background(), db, 1, 2, 5, &comment)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), id)
	assert.True(t, created)

	id, created, err = repo.Upsert(context.Background(), db, 1, 2, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), id)
	assert.False(t, created)
}

func TestRatingRepoUpsertUnknownUser(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("INSERT INTO ratings").WillReturnError(&mysql.MySQLError{Number: 1452})

	_, _, err := NewRatingRepo(db).Upsert(context.Background(), db, 99, 2, 5, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRatingRepoStoreIDForUserHidesOthersRatings(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT store_id FROM ratings WHERE id=? AND user_id=?")).WithArgs(5, 2).
		WillReturnRows(sqlmock.NewRows([]string{"store_id"}))

	_, err := NewRatingRepo(db).StoreIDForUser(context.Background(), 5, 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRatingRepoGetByUserAndStoreNone(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM ratings WHERE user_id=? AND store_id=?")).WithArgs(1, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	r, err := NewRatingRepo(db).GetByUserAndStore(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestRatingRepoListByStore(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM ratings r JOIN users u ON u.id=r.user_id")).WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "store_id", "rating", "comment", "created_at", "updated_at", "name", "email"}).
			AddRow(1, 10, 3, 4, "nice", now, now, "Rater", "rater@example.com").
			AddRow(2, 11, 3, 2, nil, now, now, "Other", "other@example.com"))

	out, err := NewRatingRepo(db).ListByStore(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 4, out[0].Rating.Rating)
	require.NotNil(t, out[0].Comment)
	assert.Equal(t, "nice", *out[0].Comment)
	assert.Nil(t, out[1].Comment)
	assert.Equal(t, "Other", out[1].UserName)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&mysql.MySQLError{Number: 1213}))
	assert.True(t, IsRetryable(errors.Join(errors.New("ctx"), &mysql.MySQLError{Number: 1205})))
	assert.False(t, IsRetryable(&mysql.MySQLError{Number: 1062}))
	assert.False(t, IsRetryable(errors.New("boom")))
}

func TestPageOffset(t *testing.T) {
	assert.Equal(t, 0, Page{Page: 1, Limit: 10}.Offset())
	assert.Equal(t, 20, Page{Page: 3, Limit: 10}.Offset())
	assert.Equal(t, 0, Page{Page: 0, Limit: 10}.Offset())
}

func TestUserRepoUpdateRoleKeepsOwnerOfStores(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("NOT EXISTS (SELECT 1 FROM stores WHERE owner_id=?)")).
		WithArgs("user", 3, "user", 3).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id=?")).WithArgs(3).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(3, "Store Owner Person Name", "owner@example.com", "$2a$hash", "", "store_owner", now, now))

	_, err := NewUserRepo(db).UpdateRole(context.Background(), 3, model.RoleUser)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestUserRepoUpdateRoleUnchangedIsNotConflict(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET role=?")).
		WithArgs("store_owner", 3, "store_owner", 3).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id=?")).WithArgs(3).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(3, "Store Owner Person Name", "owner@example.com", "$2a$hash", "", "store_owner", now, now))

	u, err := NewUserRepo(db).UpdateRole(context.Background(), 3, model.RoleStoreOwner)
	require.NoError(t, err)
	assert.Equal(t, model.RoleStoreOwner, u.Role)
}

func TestUserRepoUpdateRoleMissingUser(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET role=?")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id=?")).WithArgs(9).WillReturnError(sql.ErrNoRows)

	_, err := NewUserRepo(db).UpdateRole(context.Background(), 9, model.RoleAdmin)
	assert.ErrorIs(t, err, ErrNotFound)
}
