package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/semaphore"

	"github.com/fairyhunter13/gradeengine/internal/domain"
)

// Handler processes one dequeued GradeRequest; it returns no error. A record
// whose payload does not decode is logged and dropped without calling it.
// Every record is marked committed once processing returns — this
// dispatcher has no DLQ (spec.md's
// engine already absorbs every grading failure into a Failed job rather
// than a message-level error, so there's nothing to dead-letter).
type Handler func(ctx context.Context, req domain.GradeRequest)

// Consumer polls the grading-jobs topic as part of a consumer group and
// dispatches each message to Handler through a fixed-size worker pool.
// Grounded on the teacher's consumer.go polling loop
// (PollFetches/AutoCommitMarks), with its autoscaling/DLQ/circuit-breaker
// layers dropped per DESIGN.md.
type Consumer struct {
	client  *kgo.Client
	topic   string
	sem     *semaphore.Weighted
	handler Handler
}

// NewConsumer builds a Consumer in groupID consuming topic, dispatching to
// handler with at most maxWorkers concurrently in flight.
func NewConsumer(brokers []string, groupID, topic string, maxWorkers int, handler Handler) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.new_consumer: no seed brokers provided")
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	tracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	hooks := kotel.NewKotel(kotel.WithTracer(tracer)).Hooks()

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.AutoCommitMarks(),
		kgo.AutoCommitInterval(1*time.Second),
		kgo.WithHooks(hooks...),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.new_consumer: %w", err)
	}

	ensureCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ensureTopic(ensureCtx, client, topic); err != nil {
		slog.Warn("topic creation failed, continuing (may already exist)", slog.String("topic", topic), slog.Any("error", err))
	}

	return &Consumer{
		client:  client,
		topic:   topic,
		sem:     semaphore.NewWeighted(int64(maxWorkers)),
		handler: handler,
	}, nil
}

// Start polls until ctx is cancelled, dispatching each fetched record to the
// handler through the worker-pool semaphore and marking it committed once
// the handler returns. Blocking: intended to be run in its own goroutine or
// as the final call in cmd/worker's main.
func (c *Consumer) Start(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, e := range errs {
				slog.Error("redpanda fetch error", slog.String("topic", e.Topic), slog.Any("error", e.Err))
			}
		}

		fetches.EachRecord(func(record *kgo.Record) {
			if err := c.sem.Acquire(ctx, 1); err != nil {
				return
			}
			go func() {
				defer c.sem.Release(1)
				c.processRecord(ctx, record)
			}()
		})
	}
}

func (c *Consumer) processRecord(ctx context.Context, record *kgo.Record) {
	defer c.client.MarkCommitRecords(record)

	var req domain.GradeRequest
	if err := json.Unmarshal(record.Value, &req); err != nil {
		slog.Error("redpanda: invalid grade request payload, dropping", slog.Any("error", err))
		return
	}
	c.handler(ctx, req)
}

// Close releases the underlying client.
func (c *Consumer) Close() error {
	c.client.Close()
	return nil
}
