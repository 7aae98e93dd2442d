package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/store-rating/internal/model"
)

// RatingRepo holds the statements over the ratings table.  Writes take a
// DBTX so the rating service can run them inside its transaction.
type RatingRepo struct {
	db *sql.DB
}

func NewRatingRepo(db *sql.DB) *RatingRepo { return &RatingRepo{db: db} }

const upsertRatingSQL = `INSERT INTO ratings (user_id,store_id,rating,comment) VALUES (?,?,?,?)
 ON DUPLICATE KEY UPDATE id=LAST_INSERT_ID(id), rating=VALUES(rating), comment=VALUES(comment), updated_at=CURRENT_TIMESTAMP`

// Upsert creates or overwrites the (userID, storeID) rating and returns its
// id.  created is false when an existing row was updated.  A user or store
// that does not exist yields ErrNotFound.
func (r *RatingRepo) Upsert(ctx context.Context, q DBTX, userID, storeID uint64, rating int, comment *string) (uint64, bool, error) {
	res, err := q.ExecContext(ctx, upsertRatingSQL, userID, storeID, rating, comment)
	if err != nil {
		if isMissingReference(err) {
			return 0, false, ErrNotFound
		}
		return 0, false, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	// MySQL reports 1 affected row for an insert and 2 for an update
	// or 0 when the row was left unchanged.
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	return uint64(id), n == 1, nil
}

// StoreIDForUser resolves the store of ratingID when it belongs to userID.
// A missing rating and someone else's rating are both ErrNotFound.
func (r *RatingRepo) StoreIDForUser(ctx context.Context, ratingID, userID uint64) (uint64, error) {
	var storeID uint64
	err := r.db.QueryRowContext(ctx,
		"SELECT store_id FROM ratings WHERE id=? AND user_id=?", ratingID, userID).Scan(&storeID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return storeID, err
}

// DeleteOwned deletes ratingID if userID wrote it.
func (r *RatingRepo) DeleteOwned(ctx context.Context, q DBTX, ratingID, userID uint64) error {
	res, err := q.ExecContext(ctx, "DELETE FROM ratings WHERE id=? AND user_id=?", ratingID, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ListByStore returns the ratings of storeID with their authors, newest first.
func (r *RatingRepo) ListByStore(ctx context.Context, storeID uint64) ([]model.StoreRating, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT r.id,r.user_id,r.store_id,r.rating,r.comment,r.created_at,r.updated_at,u.name,u.email
 FROM ratings r JOIN users u ON u.id=r.user_id
 WHERE r.store_id=? ORDER BY r.updated_at DESC, r.id DESC`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.StoreRating{}
	for rows.Next() {
		var sr model.StoreRating
		var comment sql.NullString
		if err := rows.Scan(&sr.ID, &sr.UserID, &sr.StoreID, &sr.Rating.Rating, &comment, &sr.CreatedAt, &sr.UpdatedAt,
			&sr.UserName, &sr.UserEmail); err != nil {
			return nil, err
		}
		sr.Comment = nullString(comment)
		out = append(out, sr)
	}
	return out, rows.Err()
}

// ListByUser returns the ratings userID has written with their stores.
func (r *RatingRepo) ListByUser(ctx context.Context, userID uint64) ([]model.UserRating, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT r.id,r.user_id,r.store_id,r.rating,r.comment,r.created_at,r.updated_at,s.name,s.address
 FROM ratings r JOIN stores s ON s.id=r.store_id
 WHERE r.user_id=? ORDER BY r.updated_at DESC, r.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.UserRating{}
	for rows.Next() {
		var ur model.UserRating
		var comment sql.NullString
		if err := rows.Scan(&ur.ID, &ur.UserID, &ur.StoreID, &ur.Rating.Rating, &comment, &ur.CreatedAt, &ur.UpdatedAt,
			&ur.StoreName, &ur.StoreAddress); err != nil {
			return nil, err
		}
		ur.Comment = nullString(comment)
		out = append(out, ur)
	}
	return out, rows.Err()
}

// GetByUserAndStore returns userID's rating of storeID, or nil if none.
func (r *RatingRepo) GetByUserAndStore(ctx context.Context, userID, storeID uint64) (*model.Rating, error) {
	var rt model.Rating
	var comment sql.NullString
	err := r.db.QueryRowContext(ctx,
		"SELECT id,user_id,store_id,rating,comment,created_at,updated_at FROM ratings WHERE user_id=? AND store_id=?",
		userID, storeID).Scan(&rt.ID, &rt.UserID, &rt.StoreID, &rt.Rating, &comment, &rt.CreatedAt, &rt.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rt.Comment = nullString(comment)
	return &rt, nil
}

// Count returns the number of ratings.
func (r *RatingRepo) Count(ctx context.Context) (uint64, error) {
	var n uint64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ratings").Scan(&n)
	return n, err
}

// StoreIDsForUser lists, in ascending order, the stores userID has rated.
func (r *RatingRepo) StoreIDsForUser(ctx context.Context, q DBTX, userID uint64) ([]uint64, error) {
	if q == nil {
		q = r.db
	}
	rows, err := q.QueryContext(ctx, "SELECT DISTINCT store_id FROM ratings WHERE user_id=? ORDER BY store_id ASC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
