// Package queue defines message payloads exchanged over the message broker.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// RatingEventsQueue is the durable queue every rating event is routed to.
const RatingEventsQueue = "rating.events"

// Event types carried in RatingEvent.Type and the AMQP Type header.
const (
	EventRatingSubmitted = "rating.submitted"
	EventRatingDeleted   = "rating.deleted"
)

// RatingEvent is published after a rating write commits.  It carries the
// store aggregates as of that commit so consumers need not query the
// primary database.
type RatingEvent struct {
	ID            string  `json:"id"`
	Type          string  `json:"type"`
	RatingID      uint64  `json:"rating_id"`
	UserID        uint64  `json:"user_id"`
	StoreID       uint64  `json:"store_id"`
	Rating        int     `json:"rating,omitempty"`
	Created       bool    `json:"created,omitempty"`
	AverageRating float64 `json:"average_rating"`
	TotalRatings  uint64  `json:"total_ratings"`
	OccurredAt    string  `json:"occurred_at"`
}

// NewRatingEvent stamps a fresh id and the current UTC time.
func NewRatingEvent(typ string) RatingEvent {
	return RatingEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
}
