// Package redpanda implements the optional horizontal job dispatcher of
// SPEC_FULL.md's domain stack: a single `grading-jobs` topic carrying
// JSON-encoded GradeRequest messages from a Producer to cmd/worker's
// consumer side. cmd/server builds a Producer when brokers are configured,
// but its HTTP handlers run submitted jobs in-process and do not enqueue
// them through it. Adapted (not byte-copied)
// from the teacher's producer.go/consumer.go/topic.go — the elaborate
// autoscaling worker pool, DLQ, and circuit breaker machinery is dropped in
// favor of a fixed-size pool, since internal/engine already owns its own
// two-level bounded scheduler.
package redpanda

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

// ensureTopic creates topic with a single partition and replication factor
// 1 if it does not already exist, tolerating the "already exists" response.
// Grounded on the teacher's createTopicIfNotExists, trimmed to this
// module's single-topic, single-partition shape (spec.md carries no
// partitioning requirement — ordering within a job doesn't matter since
// each job is one message).
func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	req := kmsg.NewCreateTopicsRequest()
	req.TimeoutMillis = 30000

	topicReq := kmsg.NewCreateTopicsRequestTopic()
	topicReq.Topic = topic
	topicReq.NumPartitions = 1
	topicReq.ReplicationFactor = 1
	req.Topics = append(req.Topics, topicReq)

	raw, err := client.Request(ctx, &req)
	if err != nil {
		return fmt.Errorf("op=redpanda.ensure_topic: request: %w", err)
	}
	resp, ok := raw.(*kmsg.CreateTopicsResponse)
	if !ok {
		return fmt.Errorf("op=redpanda.ensure_topic: unexpected response type %T", raw)
	}

	for _, t := range resp.Topics {
		if t.ErrorCode == 0 {
			slog.Info("topic ready", slog.String("topic", topic))
			continue
		}
		const topicAlreadyExists = 36
		if t.ErrorCode == topicAlreadyExists {
			slog.Info("topic already exists", slog.String("topic", topic))
			continue
		}
		msg := ""
		if t.ErrorMessage != nil {
			msg = *t.ErrorMessage
		}
		return fmt.Errorf("op=redpanda.ensure_topic: %s (code %d)", msg, t.ErrorCode)
	}
	return nil
}
