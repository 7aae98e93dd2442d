package model

import "time"

// Bounds of a star rating, inclusive.
const (
	MinRating = 1
	MaxRating = 5
)

// ValidRating reports whether v is an allowed star value.
func ValidRating(v int) bool { return v >= MinRating && v <= MaxRating }

// Rating is a single user's opinion of a single store.  At most one row
// exists per (UserID, StoreID); resubmission overwrites it in place.
type Rating struct {
	ID        uint64    `json:"id"`         // ratings.id
	UserID    uint64    `json:"user_id"`    // ratings.user_id
	StoreID   uint64    `json:"store_id"`   // ratings.store_id
	Rating    int       `json:"rating"`     // ratings.rating
	Comment   *string   `json:"comment"`    // ratings.comment (nullable)
	CreatedAt time.Time `json:"created_at"` // ratings.created_at
	UpdatedAt time.Time `json:"updated_at"` // ratings.updated_at
}

// StoreRating is a rating joined with its author, used on store pages and
// the owner dashboard.
type StoreRating struct {
	Rating
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
}

// UserRating is a rating joined with the store it targets, used by the
// "my ratings" listing.
type UserRating struct {
	Rating
	StoreName    string `json:"store_name"`
	StoreAddress string `json:"store_address"`
}
