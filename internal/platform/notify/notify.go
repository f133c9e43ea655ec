// Package notify publishes workflow events, such as a packet going out for
// review, to downstream consumers. Publishing happens after the database
// commit; a failed publish never rolls back a transition.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Kind names a workflow notification.
type Kind string

const (
	KindPacketSent            Kind = "packet_sent"
	KindThirdReviewerAssigned Kind = "third_reviewer_assigned"
)

// Message is the payload sent to every backend.
type Message struct {
	Kind       Kind      `json:"kind"`
	EventID    int64     `json:"event_id"`
	ReviewerID int64     `json:"reviewer_id"`
	ActorID    int64     `json:"actor_id,omitempty"`
	At         time.Time `json:"at"`
}

// Key partitions messages so one reviewer's notifications stay ordered.
func (m Message) Key() string {
	return fmt.Sprintf("reviewer-%d", m.ReviewerID)
}

func (m Message) encode() ([]byte, error) {
	return json.Marshal(m)
}

// Publisher delivers workflow messages.
type Publisher interface {
	Publish(ctx context.Context, msgs ...Message) error
	Close() error
}

// LogPublisher writes messages to the structured log only.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "notify").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, msgs ...Message) error {
	for _, m := range msgs {
		p.logger.Info().
			Str("kind", string(m.Kind)).
			Int64("event_id", m.EventID).
			Int64("reviewer_id", m.ReviewerID).
			Msg("workflow notification")
	}
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Nop discards everything.
type Nop struct{}

func (Nop) Publish(context.Context, ...Message) error { return nil }
func (Nop) Close() error                             { return nil }
