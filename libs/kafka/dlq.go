package kafka

import (
	"context"
	"fmt"
	"time"

	"log/slog"
)

// DLQPayload wraps a message that could not be delivered or handled.
type DLQPayload struct {
	SourceTopic string    `json:"source_topic"`
	Key         string    `json:"key"`
	Value       any       `json:"value"`
	Error       string    `json:"error"`
	Reason      string    `json:"reason"`
	Attempts    int       `json:"attempts"`
	FailedAt    time.Time `json:"failed_at"`
}

func BuildDLQPayload(topic, key string, value any, err error, reason string, attempts int) DLQPayload {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return DLQPayload{
		SourceTopic: topic,
		Key:         key,
		Value:       value,
		Error:       msg,
		Reason:      reason,
		Attempts:    attempts,
		FailedAt:    time.Now().UTC(),
	}
}

// DLQPublisher publishes through a primary publisher and routes failed
// publishes to a dead-letter topic.
type DLQPublisher struct {
	primary  Publisher
	dlq      Publisher
	dlqTopic string
	logger   *slog.Logger
}

func NewDLQPublisher(primary Publisher, dlq Publisher, dlqTopic string, logger *slog.Logger) *DLQPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &DLQPublisher{
		primary:  primary,
		dlq:      dlq,
		dlqTopic: dlqTopic,
		logger:   logger,
	}
}

func (p *DLQPublisher) PublishJSON(ctx context.Context, topic, key string, value any) (int32, int64, error) {
	if p == nil || p.primary == nil {
		return 0, 0, fmt.Errorf("kafka producer not configured")
	}
	partition, offset, err := p.primary.PublishJSON(ctx, topic, key, value)
	if err == nil {
		return partition, offset, nil
	}
	if p.dlq == nil || p.dlqTopic == "" {
		return partition, offset, err
	}
	payload := BuildDLQPayload(topic, key, value, err, "publish_failed", 1)
	if _, _, dlqErr := p.dlq.PublishJSON(ctx, p.dlqTopic, key, payload); dlqErr != nil {
		p.logger.Error("publish dlq failed", "topic", p.dlqTopic, "error", dlqErr)
	}
	return partition, offset, err
}

func (p *DLQPublisher) Close() error {
	if p == nil || p.primary == nil {
		return nil
	}
	return p.primary.Close()
}
