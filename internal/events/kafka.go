// Package events publishes session changes to Kafka as an append-only log.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiliankoe/albumnight/internal/game"
	"github.com/segmentio/kafka-go"
)

type EventType string

const (
	EventTypeSessionCreated   EventType = "session_created"
	EventTypeParticipantClaim EventType = "participant_claimed"
	EventTypeScoreSubmitted   EventType = "score_submitted"
	EventTypeSongsReplaced    EventType = "songs_replaced"
	EventTypePhaseChanged     EventType = "phase_changed"
	EventTypeSessionReset     EventType = "session_reset"
)

type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Code      string          `json:"code"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// TypeOf maps a change to its event type.
func TypeOf(c game.Change) EventType {
	switch {
	case c.Action == "create":
		return EventTypeSessionCreated
	case c.Action == "claim":
		return EventTypeParticipantClaim
	case c.Collection == game.CollectionScores:
		return EventTypeScoreSubmitted
	case c.Collection == game.CollectionSongs:
		return EventTypeSongsReplaced
	case c.Action == string(game.EventReset):
		return EventTypeSessionReset
	}
	return EventTypePhaseChanged
}

// NewEvent wraps a change in the log envelope.
func NewEvent(c game.Change) (Event, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal change: %w", err)
	}
	ts := c.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return Event{
		ID:        uuid.NewString(),
		Type:      TypeOf(c),
		Code:      c.Code,
		Timestamp: ts,
		Payload:   payload,
	}, nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink is a game.Notifier writing one message per change, keyed by
// session code so a session's events stay ordered within a partition.
type KafkaSink struct {
	writer messageWriter
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}}
}

func (k *KafkaSink) Notify(ctx context.Context, c game.Change) error {
	ev, err := NewEvent(c)
	if err != nil {
		return err
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := kafka.Message{Key: []byte(c.Code), Value: value, Time: ev.Timestamp}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	return nil
}
