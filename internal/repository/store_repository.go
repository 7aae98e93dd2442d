package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/store-rating/internal/model"
)

const storeColumns = "id,name,email,address,owner_id,average_rating,total_ratings,created_at,updated_at"

// StoreRepo encapsulates all queries against the stores table.  The derived
// columns average_rating and total_ratings are written only by
// RecomputeAggregates.
type StoreRepo struct {
	db *sql.DB
}

func NewStoreRepo(db *sql.DB) *StoreRepo { return &StoreRepo{db: db} }

// StoreFilter narrows the public store listing.
type StoreFilter struct {
	Name      string
	Email     string
	Address   string
	SortBy    string
	SortOrder string
	Page
}

var storeSortColumns = map[string]string{
	"name":       "name",
	"email":      "email",
	"address":    "address",
	"rating":     "average_rating",
	"created_at": "created_at",
}

func scanStore(row interface{ Scan(...any) error }) (model.Store, error) {
	var s model.Store
	var owner sql.NullInt64
	err := row.Scan(&s.ID, &s.Name, &s.Email, &s.Address, &owner, &s.AverageRating, &s.TotalRatings, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return model.Store{}, err
	}
	if owner.Valid {
		id := uint64(owner.Int64)
		s.OwnerID = &id
	}
	return s, nil
}

// Create inserts s and populates its generated fields.  An owner id that
// does not reference a user yields ErrNotFound.
func (r *StoreRepo) Create(ctx context.Context, s *model.Store) error {
	s.Email = normEmail(s.Email)
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO stores (name,email,address,owner_id) VALUES (?,?,?,?)",
		s.Name, s.Email, s.Address, s.OwnerID)
	switch {
	case isDuplicate(err):
		return ErrEmailExists
	case isMissingReference(err):
		return ErrNotFound
	case err != nil:
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*s = created
	return nil
}

// GetByID fetches a store, returning ErrNotFound when absent.
func (r *StoreRepo) GetByID(ctx context.Context, id uint64) (model.Store, error) {
	s, err := scanStore(r.db.QueryRowContext(ctx, "SELECT "+storeColumns+" FROM stores WHERE id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Store{}, ErrNotFound
	}
	return s, err
}

// EmailExists reports whether any store already uses email.
func (r *StoreRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM stores WHERE email=? LIMIT 1", normEmail(email)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// List returns one page of stores matching f.
func (r *StoreRepo) List(ctx context.Context, f StoreFilter) ([]model.Store, error) {
	var (
		where []string
		args  []any
	)
	if f.Name != "" {
		where = append(where, "name LIKE ?")
		args = append(args, "%"+f.Name+"%")
	}
	if f.Email != "" {
		where = append(where, "email LIKE ?")
		args = append(args, "%"+f.Email+"%")
	}
	if f.Address != "" {
		where = append(where, "address LIKE ?")
		args = append(args, "%"+f.Address+"%")
	}
	q := "SELECT " + storeColumns + " FROM stores"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	col, ok := storeSortColumns[f.SortBy]
	if !ok {
		col = "name"
	}
	q += " ORDER BY " + col + " " + orderDir(f.SortOrder) + ", id ASC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset())

	return r.query(ctx, q, args...)
}

// ListByOwner returns the stores owned by ownerID in creation order.
func (r *StoreRepo) ListByOwner(ctx context.Context, ownerID uint64) ([]model.Store, error) {
	return r.query(ctx, "SELECT "+storeColumns+" FROM stores WHERE owner_id=? ORDER BY id ASC", ownerID)
}

func (r *StoreRepo) query(ctx context.Context, q string, args ...any) ([]model.Store, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Store{}
	for rows.Next() {
		s, err := scanStore(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// IDs returns every store id in ascending order.
func (r *StoreRepo) IDs(ctx context.Context) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id FROM stores ORDER BY id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// Distribution counts ratings per star value for storeID.  Every value
// 1..5 is present in the result.
func (r *StoreRepo) Distribution(ctx context.Context, storeID uint64) (model.RatingDistribution, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT rating, COUNT(*) FROM ratings WHERE store_id=? GROUP BY rating", storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	d := model.NewRatingDistribution()
	for rows.Next() {
		var (
			v int
			n uint64
		)
		if err := rows.Scan(&v, &n); err != nil {
			return nil, err
		}
		if model.ValidRating(v) {
			d[v] = n
		}
	}
	return d, rows.Err()
}

// Count returns the number of stores.
func (r *StoreRepo) Count(ctx context.Context) (uint64, error) {
	var n uint64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM stores").Scan(&n)
	return n, err
}

// LockForUpdate takes the row lock on storeID inside tx.  Every rating
// write for a store serialises on this lock.
func (r *StoreRepo) LockForUpdate(ctx context.Context, tx DBTX, storeID uint64) error {
	var id uint64
	err := tx.QueryRowContext(ctx, "SELECT id FROM stores WHERE id=? FOR UPDATE", storeID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

const recomputeSQL = `UPDATE stores SET
 average_rating=(SELECT COALESCE(ROUND(AVG(rating),2),0) FROM ratings WHERE store_id=?),
 total_ratings=(SELECT COUNT(*) FROM ratings WHERE store_id=?),
 updated_at=CURRENT_TIMESTAMP
 WHERE id=?`

// RecomputeAggregates rewrites the derived columns of storeID from the
// current ratings set in a single statement and returns the new values.
// It is idempotent.  q may be the pool or an open transaction.
func (r *StoreRepo) RecomputeAggregates(ctx context.Context, q DBTX, storeID uint64) (float64, uint64, error) {
	if q == nil {
		q = r.db
	}
	if _, err := q.ExecContext(ctx, recomputeSQL, storeID, storeID, storeID); err != nil {
		return 0, 0, err
	}
	var (
		avg   float64
		total uint64
	)
	err := q.QueryRowContext(ctx, "SELECT average_rating,total_ratings FROM stores WHERE id=?", storeID).Scan(&avg, &total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, ErrNotFound
	}
	return avg, total, err
}

func scanIDs(rows *sql.Rows) ([]uint64, error) {
	out := []uint64{}
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
