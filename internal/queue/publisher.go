package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Publisher delivers rating events.  Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev RatingEvent) error
}

// NopPublisher drops every event.  Used when events are disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, RatingEvent) error { return nil }

var (
	ErrPublisherFull   = errors.New("publisher buffer full")
	ErrPublisherClosed = errors.New("publisher closed")
)

const (
	defaultBuffer      = 256
	defaultSendTimeout = 5 * time.Second
	// redialDelay is how long a failed dial keeps the broker marked down.
	redialDelay = 2 * time.Second
)

// PublisherOption tunes an AMQPPublisher.
type PublisherOption func(*AMQPPublisher)

// WithBuffer sets how many events may wait for delivery before Publish
// starts dropping them.
func WithBuffer(n int) PublisherOption {
	return func(p *AMQPPublisher) {
		if n > 0 {
			p.buffer = n
		}
	}
}

// WithSendTimeout bounds one delivery, dial and handshake included.
func WithSendTimeout(d time.Duration) PublisherOption {
	return func(p *AMQPPublisher) {
		if d > 0 {
			p.sendTimeout = d
		}
	}
}

// AMQPPublisher publishes to RatingEventsQueue through the default
// exchange.  Publish only enqueues; a single goroutine owns the broker
// connection, opening it lazily and reopening it after a failure.
type AMQPPublisher struct {
	url         string
	log         *logrus.Logger
	buffer      int
	sendTimeout time.Duration

	events    chan RatingEvent
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// owned by run
	conn      *amqp.Connection
	ch        *amqp.Channel
	downUntil time.Time
}

func NewAMQPPublisher(url string, log *logrus.Logger, opts ...PublisherOption) *AMQPPublisher {
	p := &AMQPPublisher{
		url:         url,
		log:         log,
		buffer:      defaultBuffer,
		sendTimeout: defaultSendTimeout,
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	p.events = make(chan RatingEvent, p.buffer)
	go p.run()
	return p
}

// Publish hands ev to the delivery goroutine without waiting for the
// broker.  A full buffer drops the event with ErrPublisherFull.
func (p *AMQPPublisher) Publish(ctx context.Context, ev RatingEvent) error {
	select {
	case <-p.quit:
		return ErrPublisherClosed
	default:
	}
	select {
	case p.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.log.WithField("event", ev.Type).Warn("rabbitmq: publish buffer full, event dropped")
		return ErrPublisherFull
	}
}

func (p *AMQPPublisher) run() {
	defer close(p.done)
	defer p.closeConn()
	for {
		select {
		case <-p.quit:
			if n := len(p.events); n > 0 {
				p.log.WithField("pending", n).Warn("rabbitmq: publisher closed with undelivered events")
			}
			return
		case ev := <-p.events:
			ctx, cancel := context.WithTimeout(context.Background(), p.sendTimeout)
			if err := p.deliver(ctx, ev); err != nil {
				p.log.WithError(err).WithFields(logrus.Fields{
					"event": ev.Type, "rating_id": ev.RatingID, "store_id": ev.StoreID,
				}).Warn("rabbitmq: publish failed")
			}
			cancel()
		}
	}
}

// deliver publishes ev as a persistent message.
func (p *AMQPPublisher) deliver(ctx context.Context, ev RatingEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		MessageId:    ev.ID,
		Type:         ev.Type,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", RatingEventsQueue, false, false, pub); err != nil {
		p.closeConn()
		return err
	}
	return nil
}

// channel returns an open channel with the queue declared.  The dial and
// the AMQP handshake are bounded by ctx's deadline.
func (p *AMQPPublisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.closeConn()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if time.Now().Before(p.downUntil) {
		return nil, errors.New("broker unavailable")
	}

	timeout := p.sendTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		p.downUntil = time.Now().Add(redialDelay)
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(RatingEventsQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// Close stops the delivery goroutine and releases the broker connection.
// Events still buffered are dropped.
func (p *AMQPPublisher) Close() error {
	p.closeOnce.Do(func() { close(p.quit) })
	<-p.done
	return nil
}

func (p *AMQPPublisher) closeConn() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
