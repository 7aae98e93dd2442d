package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/store-rating/internal/model"
	"github.com/iliyamo/store-rating/internal/utils"
)

const userColumns = "id,name,email,password_hash,address,role,created_at,updated_at"

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// UserFilter narrows the admin user listing.  Empty strings mean no filter.
type UserFilter struct {
	Name      string
	Email     string
	Address   string
	Role      model.Role
	SortBy    string
	SortOrder string
	Page
}

// UserSummary is a user row plus, for store owners, the average rating of
// their first store.
type UserSummary struct {
	model.UserView
	StoreRating *float64 `json:"store_rating,omitempty"`
}

// UserDetail extends UserSummary with the number of ratings the user wrote.
type UserDetail struct {
	UserSummary
	TotalRatings uint64 `json:"total_ratings"`
}

var userSortColumns = map[string]string{
	"name":       "u.name",
	"email":      "u.email",
	"address":    "u.address",
	"role":       "u.role",
	"created_at": "u.created_at",
}

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Address, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func normEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Create hashes password, inserts u and fills its ID and timestamps.
func (r *UserRepo) Create(ctx context.Context, u *model.User, password string, cost int) error {
	u.Email = normEmail(u.Email)
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (name,email,password_hash,address,role) VALUES (?,?,?,?,?)",
		u.Name, u.Email, hash, u.Address, u.Role)
	if err != nil {
		if isDuplicate(err) {
			return ErrEmailExists
		}
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
	*u = created
	return nil
}

// EnsureAdmin inserts an administrator unless the email is already taken.
// It reports whether a row was created.
func (r *UserRepo) EnsureAdmin(ctx context.Context, name, email, password, address string, cost int) (bool, error) {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return false, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT IGNORE INTO users (name,email,password_hash,address,role) VALUES (?,?,?,?,?)",
		name, normEmail(email), hash, address, model.RoleAdmin)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", normEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

// EmailExists reports whether any user already owns email.
func (r *UserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, "SELECT 1 FROM users WHERE email=? LIMIT 1", normEmail(email)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

const ownerRatingExpr = "(SELECT s.average_rating FROM stores s WHERE s.owner_id=u.id ORDER BY s.id LIMIT 1)"

// List returns one page of users matching f.
func (r *UserRepo) List(ctx context.Context, f UserFilter) ([]UserSummary, error) {
	var (
		where []string
		args  []any
	)
	if f.Name != "" {
		where = append(where, "u.name LIKE ?")
		args = append(args, "%"+f.Name+"%")
	}
	if f.Email != "" {
		where = append(where, "u.email LIKE ?")
		args = append(args, "%"+f.Email+"%")
	}
	if f.Address != "" {
		where = append(where, "u.address LIKE ?")
		args = append(args, "%"+f.Address+"%")
	}
	if f.Role != "" {
		where = append(where, "u.role=?")
		args = append(args, f.Role)
	}

	q := "SELECT u.id,u.name,u.email,u.address,u.role,u.created_at,u.updated_at," + ownerRatingExpr + " FROM users u"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	col, ok := userSortColumns[f.SortBy]
	if !ok {
		col = "u.created_at"
	}
	q += " ORDER BY " + col + " " + orderDir(f.SortOrder) + ", u.id ASC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset())

	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []UserSummary{}
	for rows.Next() {
		var s UserSummary
		var rating sql.NullFloat64
		if err := rows.Scan(&s.ID, &s.Name, &s.Email, &s.Address, &s.Role, &s.CreatedAt, &s.UpdatedAt, &rating); err != nil {
			return nil, err
		}
		if rating.Valid && s.Role == model.RoleStoreOwner {
			v := rating.Float64
			s.StoreRating = &v
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListByRole returns every user holding role, newest first.
func (r *UserRepo) ListByRole(ctx context.Context, role model.Role) ([]model.UserView, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE role=? ORDER BY created_at DESC, id ASC", role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.UserView{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u.View())
	}
	return out, rows.Err()
}

// GetDetail fetches a user along with their rating count and, for owners,
// their store's average.
func (r *UserRepo) GetDetail(ctx context.Context, id uint64) (UserDetail, error) {
	var d UserDetail
	var rating sql.NullFloat64
	err := r.DB.QueryRowContext(ctx,
		"SELECT u.id,u.name,u.email,u.address,u.role,u.created_at,u.updated_at,"+ownerRatingExpr+
			",(SELECT COUNT(*) FROM ratings r WHERE r.user_id=u.id) FROM users u WHERE u.id=?", id).
		Scan(&d.ID, &d.Name, &d.Email, &d.Address, &d.Role, &d.CreatedAt, &d.UpdatedAt, &rating, &d.TotalRatings)
	if errors.Is(err, sql.ErrNoRows) {
		return UserDetail{}, ErrNotFound
	}
	if err != nil {
		return UserDetail{}, err
	}
	if rating.Valid && d.Role == model.RoleStoreOwner {
		v := rating.Float64
		d.StoreRating = &v
	}
	return d, nil
}

// Count returns the number of registered users.
func (r *UserRepo) Count(ctx context.Context) (uint64, error) {
	var n uint64
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n)
	return n, err
}

// UpdatePassword stores a new bcrypt hash for id.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, hash string) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET password_hash=? WHERE id=?", hash, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpdateProfile rewrites name, email and address and returns the stored row.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, name, email, address string) (model.User, error) {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET name=?, email=?, address=? WHERE id=?", name, normEmail(email), address, id)
	if err != nil {
		if isDuplicate(err) {
			return model.User{}, ErrEmailExists
		}
		return model.User{}, err
	}
	// unchanged rows report zero affected, so existence is checked by reading back
	return r.GetByID(ctx, id)
}

// UpdateRole changes the role of id and returns the stored row.
func (r *UserRepo) UpdateRole(ctx context.Context, id uint64, role model.Role) (model.User, error) {
	// a store owner keeps the role while any store still references them
	res, err := r.DB.ExecContext(ctx, `
		UPDATE users SET role=?
		WHERE id=? AND (? = 'store_owner' OR NOT EXISTS (SELECT 1 FROM stores WHERE owner_id=?))`,
		role, id, role, id)
	if err != nil {
		return model.User{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.User{}, err
	}
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	// MySQL reports zero rows for an unchanged value too
	if n == 0 && u.Role != role {
		return model.User{}, ErrConflict
	}
	return u, nil
}

// Delete removes id using q, which may be a transaction.  Ratings cascade
// and owned stores lose their owner.
func (r *UserRepo) Delete(ctx context.Context, q DBTX, id uint64) error {
	if q == nil {
		q = r.DB
	}
	res, err := q.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// LockForUpdate takes the row lock on id inside tx.  Rating inserts for the
// user block on it until tx ends.
func (r *UserRepo) LockForUpdate(ctx context.Context, tx DBTX, id uint64) error {
	var got uint64
	err := tx.QueryRowContext(ctx, "SELECT id FROM users WHERE id=? FOR UPDATE", id).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
