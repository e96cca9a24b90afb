// README: Fire-and-forget billing/invoice notifications over a Redis list.
package billing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type Kind string

const (
	KindRequestCreated      Kind = "request.created"
	KindAssignmentCompleted Kind = "assignment.completed"
)

// Event is the payload handed to the billing/invoice service. Amounts
// travel as decimal strings so the consumer never touches floats.
type Event struct {
	Kind         Kind      `json:"kind"`
	RequestID    string    `json:"request_id"`
	AssignmentID string    `json:"assignment_id,omitempty"`
	ClientID     string    `json:"client_id,omitempty"`
	ChiefID      string    `json:"chief_id,omitempty"`
	TotalPrice   string    `json:"total_price,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Publisher delivers events best-effort. A delivery failure must never
// roll back the transition that produced the event; callers ignore the
// returned error and implementations log it.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type RedisPublisher struct {
	rdb   *redis.Client
	queue string
	log   *logrus.Logger
}

func NewRedisPublisher(rdb *redis.Client, queue string, log *logrus.Logger) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, queue: queue, log: log}
}

func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		p.log.WithError(err).WithField("kind", e.Kind).Error("billing event marshal failed")
		return err
	}
	if err := p.rdb.LPush(ctx, p.queue, payload).Err(); err != nil {
		p.log.WithError(err).WithFields(logrus.Fields{
			"kind":       e.Kind,
			"request_id": e.RequestID,
		}).Error("billing event publish failed")
		return err
	}
	return nil
}

// Noop satisfies Publisher for tests and for running without Redis.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
