package model

import "time"

// Store represents a ratable shop in the `stores` table.  AverageRating and
// TotalRatings are derived from the ratings table and are only ever written
// by the recompute statement in the rating service.
//
// Fields:
//  ID            – primary key identifier.
//  Name          – store name.
//  Email         – unique contact email.
//  Address       – postal address.
//  OwnerID       – user id of the store owner (nil once the owner is deleted).
//  AverageRating – mean rating rounded to two decimals, 0 without ratings.
//  TotalRatings  – number of ratings for the store.
//  CreatedAt     – creation timestamp.
//  UpdatedAt     – last update timestamp.
type Store struct {
	ID            uint64    `json:"id"`             // stores.id
	Name          string    `json:"name"`           // stores.name
	Email         string    `json:"email"`          // stores.email
	Address       string    `json:"address"`        // stores.address
	OwnerID       *uint64   `json:"owner_id"`       // stores.owner_id (nullable)
	AverageRating float64   `json:"average_rating"` // stores.average_rating
	TotalRatings  uint64    `json:"total_ratings"`  // stores.total_ratings
	CreatedAt     time.Time `json:"created_at"`     // stores.created_at
	UpdatedAt     time.Time `json:"updated_at"`     // stores.updated_at
}

// RatingDistribution maps each star value 1..5 to the number of ratings
// with that value.  All five keys are always present.
type RatingDistribution map[int]uint64

// NewRatingDistribution returns a distribution with every bucket at zero.
func NewRatingDistribution() RatingDistribution {
	d := make(RatingDistribution, MaxRating-MinRating+1)
	for v := MinRating; v <= MaxRating; v++ {
		d[v] = 0
	}
	return d
}
