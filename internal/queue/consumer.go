package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Consumer listens to RatingEventsQueue and appends every event to
// <LogDir>/ratings.log as a single human-friendly line.
type Consumer struct {
	URL    string
	LogDir string
	Log    *logrus.Logger
}

// Run connects to RabbitMQ and consumes until ctx is cancelled.  Dial and
// channel failures are retried with exponential backoff capped at 30s.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.WithError(err).Warnf("rating-consumer: failed to dial broker; retrying in %s", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.WithError(err).Warn("rating-consumer: consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Log.WithError(err).Warn("rating-consumer: set QoS failed")
	}
	if _, err := ch.QueueDeclare(RatingEventsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(RatingEventsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handleMessage(d.Body); err != nil {
				c.Log.WithError(err).Error("rating-consumer: handle message failed")
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handleMessage(body []byte) error {
	var ev RatingEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	dir := c.LogDir
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "ratings.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	var line string
	switch ev.Type {
	case EventRatingSubmitted:
		verb := "updated"
		if ev.Created {
			verb = "created"
		}
		line = fmt.Sprintf("[%s] Rating %s | id=%s | rating_id=%d | user_id=%d | store_id=%d | rating=%d | average=%.2f | total=%d\n",
			ev.OccurredAt, verb, ev.ID, ev.RatingID, ev.UserID, ev.StoreID, ev.Rating, ev.AverageRating, ev.TotalRatings)
	case EventRatingDeleted:
		line = fmt.Sprintf("[%s] Rating deleted | id=%s | rating_id=%d | user_id=%d | store_id=%d | average=%.2f | total=%d\n",
			ev.OccurredAt, ev.ID, ev.RatingID, ev.UserID, ev.StoreID, ev.AverageRating, ev.TotalRatings)
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
