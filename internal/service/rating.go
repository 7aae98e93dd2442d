// Package service holds the rating aggregation engine: every write to the
// ratings table and every change to a store's derived average goes
// through RatingService so the two never drift apart.
package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/store-rating/internal/apperr"
	"github.com/iliyamo/store-rating/internal/logging"
	"github.com/iliyamo/store-rating/internal/metrics"
	"github.com/iliyamo/store-rating/internal/model"
	"github.com/iliyamo/store-rating/internal/queue"
	"github.com/iliyamo/store-rating/internal/repository"
)

var (
	ErrInvalidRating = apperr.Validation("Rating must be an integer between 1 and 5",
		apperr.FieldError{Field: "rating", Message: "must be between 1 and 5"})
	ErrRatingNotFound = apperr.NotFound("Rating not found")
	ErrStoreNotFound  = apperr.NotFound("Store not found")
	ErrUserNotFound   = apperr.NotFound("User not found")
)

// DefaultMaxAttempts bounds how often a transaction is replayed after a
// deadlock or lock wait timeout.
const DefaultMaxAttempts = 3

// Cache is the read cache that must be cleared after aggregates change.
type Cache interface {
	Purge(ctx context.Context) error
}

// RatingResult is what a successful submit reports back.
type RatingResult struct {
	RatingID      uint64
	StoreID       uint64
	Created       bool
	AverageRating float64
	TotalRatings  uint64
}

// RatingService serialises rating writes per store on the store row lock
// and recomputes the store aggregates in the same transaction.
type RatingService struct {
	db      *sql.DB
	stores  *repository.StoreRepo
	ratings *repository.RatingRepo
	users   *repository.UserRepo

	pub     queue.Publisher
	cache   Cache
	log     *logrus.Logger
	retries int
	backoff time.Duration
}

type Option func(*RatingService)

func WithPublisher(p queue.Publisher) Option { return func(s *RatingService) { s.pub = p } }
func WithCache(c Cache) Option               { return func(s *RatingService) { s.cache = c } }
func WithLogger(l *logrus.Logger) Option     { return func(s *RatingService) { s.log = l } }

// WithRetry sets the attempt bound and the base delay between attempts.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(s *RatingService) {
		if attempts > 0 {
			s.retries = attempts
		}
		if backoff >= 0 {
			s.backoff = backoff
		}
	}
}

// NewRatingService builds the engine over the injected pool.
func NewRatingService(db *sql.DB, opts ...Option) *RatingService {
	s := &RatingService{
		db:      db,
		stores:  repository.NewStoreRepo(db),
		ratings: repository.NewRatingRepo(db),
		users:   repository.NewUserRepo(db),
		pub:     queue.NopPublisher{},
		log:     logging.Discard(),
		retries: DefaultMaxAttempts,
		backoff: 20 * time.Millisecond,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SubmitOrUpdate creates userID's rating of storeID or overwrites the
// existing one, then recomputes the store's average and count.
func (s *RatingService) SubmitOrUpdate(ctx context.Context, userID, storeID uint64, rating int, comment *string) (RatingResult, error) {
	if !model.ValidRating(rating) {
		metrics.RecordRatingWrite("submit", "invalid")
		return RatingResult{}, ErrInvalidRating
	}

	res := RatingResult{StoreID: storeID}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.stores.LockForUpdate(ctx, tx, storeID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrStoreNotFound
			}
			return err
		}
		id, created, err := s.ratings.Upsert(ctx, tx, userID, storeID, rating, comment)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		avg, total, err := s.recompute(ctx, tx, storeID)
		if err != nil {
			return err
		}
		res.RatingID, res.Created, res.AverageRating, res.TotalRatings = id, created, avg, total
		return nil
	})
	if err != nil {
		metrics.RecordRatingWrite("submit", outcome(err))
		return RatingResult{}, s.fail("submit rating", logrus.Fields{"user_id": userID, "store_id": storeID}, err)
	}
	if res.Created {
		metrics.RecordRatingWrite("submit", "created")
	} else {
		metrics.RecordRatingWrite("submit", "updated")
	}

	s.afterWrite(ctx, func(ev *queue.RatingEvent) {
		ev.Type = queue.EventRatingSubmitted
		ev.RatingID, ev.UserID, ev.StoreID = res.RatingID, userID, storeID
		ev.Rating, ev.Created = rating, res.Created
		ev.AverageRating, ev.TotalRatings = res.AverageRating, res.TotalRatings
	})
	return res, nil
}

// Delete removes ratingID if userID wrote it and recomputes the store.  A
// missing rating and another user's rating both yield ErrRatingNotFound.
func (s *RatingService) Delete(ctx context.Context, ratingID, userID uint64) (uint64, error) {
	storeID, err := s.ratings.StoreIDForUser(ctx, ratingID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			metrics.RecordRatingWrite("delete", "not_found")
			return 0, ErrRatingNotFound
		}
		return 0, s.fail("delete rating", logrus.Fields{"rating_id": ratingID, "user_id": userID}, err)
	}

	var (
		avg   float64
		total uint64
	)
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		// store first, then rating: the same order SubmitOrUpdate takes
		if err := s.stores.LockForUpdate(ctx, tx, storeID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrRatingNotFound
			}
			return err
		}
		if err := s.ratings.DeleteOwned(ctx, tx, ratingID, userID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrRatingNotFound
			}
			return err
		}
		var rerr error
		avg, total, rerr = s.recompute(ctx, tx, storeID)
		return rerr
	})
	if err != nil {
		metrics.RecordRatingWrite("delete", outcome(err))
		return 0, s.fail("delete rating", logrus.Fields{"rating_id": ratingID, "user_id": userID, "store_id": storeID}, err)
	}
	metrics.RecordRatingWrite("delete", "deleted")

	s.afterWrite(ctx, func(ev *queue.RatingEvent) {
		ev.Type = queue.EventRatingDeleted
		ev.RatingID, ev.UserID, ev.StoreID = ratingID, userID, storeID
		ev.AverageRating, ev.TotalRatings = avg, total
	})
	return storeID, nil
}

// RecomputeAverage rewrites storeID's aggregates from its current ratings.
// Running it twice in a row leaves the store unchanged.
func (s *RatingService) RecomputeAverage(ctx context.Context, storeID uint64) (float64, uint64, error) {
	avg, total, err := s.recompute(ctx, nil, storeID)
	if err != nil {
		return 0, 0, s.fail("recompute average", logrus.Fields{"store_id": storeID}, err)
	}
	s.purge(ctx)
	return avg, total, nil
}

// RecomputeAll repairs every store and returns how many were processed.
// It stops at the first failure.
func (s *RatingService) RecomputeAll(ctx context.Context) (int, error) {
	ids, err := s.stores.IDs(ctx)
	if err != nil {
		return 0, s.fail("list stores", nil, err)
	}
	for i, id := range ids {
		if _, _, err := s.recompute(ctx, nil, id); err != nil {
			return i, s.fail("recompute average", logrus.Fields{"store_id": id}, err)
		}
	}
	s.purge(ctx)
	return len(ids), nil
}

// DeleteUser removes a user together with their ratings and recomputes
// every store they had rated.  Stores they owned are kept without owner.
func (s *RatingService) DeleteUser(ctx context.Context, userID uint64) ([]uint64, error) {
	var affected []uint64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.users.LockForUpdate(ctx, tx, userID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		ids, err := s.ratings.StoreIDsForUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		// ascending ids keep the lock order stable across concurrent deletions
		for _, id := range ids {
			if err := s.stores.LockForUpdate(ctx, tx, id); err != nil && !errors.Is(err, repository.ErrNotFound) {
				return err
			}
		}
		if err := s.users.Delete(ctx, tx, userID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		for _, id := range ids {
			if _, _, err := s.recompute(ctx, tx, id); err != nil {
				return err
			}
		}
		affected = ids
		return nil
	})
	if err != nil {
		return nil, s.fail("delete user", logrus.Fields{"user_id": userID}, err)
	}
	s.purge(ctx)
	return affected, nil
}

func (s *RatingService) recompute(ctx context.Context, q repository.DBTX, storeID uint64) (float64, uint64, error) {
	avg, total, err := s.stores.RecomputeAggregates(ctx, q, storeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, 0, ErrStoreNotFound
		}
		metrics.RecordRecomputeFailure()
		return 0, 0, err
	}
	return avg, total, nil
}

// withTx runs fn in a transaction and replays it on deadlock or lock wait
// timeout up to the configured attempt bound.
func (s *RatingService) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var err error
	for attempt := 1; attempt <= s.retries; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !repository.IsRetryable(err) || attempt == s.retries {
			return err
		}
		metrics.RecordTxRetry()
		s.log.WithError(err).WithField("attempt", attempt).Warn("rating transaction aborted by lock conflict; retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.backoff * time.Duration(attempt)):
		}
	}
	return err
}

func (s *RatingService) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// afterWrite clears cached store reads and publishes the event fill
// describes.  Neither step can fail the request.
func (s *RatingService) afterWrite(ctx context.Context, fill func(ev *queue.RatingEvent)) {
	s.purge(ctx)

	ev := queue.NewRatingEvent("")
	fill(&ev)
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := s.pub.Publish(pctx, ev); err != nil {
		metrics.RecordPublishFailure()
		s.log.WithError(err).WithFields(logrus.Fields{
			"event": ev.Type, "rating_id": ev.RatingID, "store_id": ev.StoreID,
		}).Warn("rating event dropped")
	}
}

func (s *RatingService) purge(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Purge(context.WithoutCancel(ctx)); err != nil {
		s.log.WithError(err).Warn("store cache purge failed")
	}
}

// fail passes client-facing errors through and converts everything else
// into a logged internal error.
func (s *RatingService) fail(op string, fields logrus.Fields, err error) error {
	if ae, ok := apperr.As(err); ok && ae.Kind != apperr.KindInternal {
		return ae
	}
	s.log.WithFields(fields).WithError(err).Error(op + " failed")
	return apperr.Internal("Internal server error", err)
}

func outcome(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return "not_found"
	case apperr.KindValidation:
		return "invalid"
	default:
		return "error"
	}
}
