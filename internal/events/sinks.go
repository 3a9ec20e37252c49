package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// LogSink writes events as structured log lines. It is the default when no
// broker is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Write(ctx context.Context, e Event) error {
	s.logger.InfoContext(ctx, "event",
		"event_id", e.ID,
		"event_type", e.Type,
		"request_id", e.RequestID,
		"user_key", e.UserKey,
		"kind", e.Kind,
		"entity_ids", e.EntityIDs,
		"vote_type", e.VoteType,
		"outcome", e.Outcome,
		"count", e.Count,
	)
	return nil
}

// Producer is the part of the Kafka client the sink needs.
type Producer interface {
	Publish(ctx context.Context, key, value []byte) error
}

// KafkaSink writes events as JSON records keyed by Event.Key.
type KafkaSink struct {
	producer Producer
}

func NewKafkaSink(producer Producer) *KafkaSink {
	return &KafkaSink{producer: producer}
}

func (s *KafkaSink) Write(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return s.producer.Publish(ctx, []byte(e.Key()), value)
}
