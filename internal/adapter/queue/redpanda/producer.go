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

	"github.com/fairyhunter13/gradeengine/internal/domain"
)

// Producer publishes GradeRequest messages to the configured grading-jobs
// topic under a transactional producer, grounded on the teacher's
// producer.go (exactly-once semantics via kgo.TransactionalID).
type Producer struct {
	client *kgo.Client
	topic  string
}

// NewProducer builds a transactional Producer and ensures topic exists.
func NewProducer(brokers []string, topic, transactionalID string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.new_producer: no seed brokers provided")
	}

	tracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	hooks := kotel.NewKotel(kotel.WithTracer(tracer)).Hooks()

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.TransactionalID(transactionalID),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1_000_000),
		kgo.WithHooks(hooks...),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.new_producer: %w", err)
	}

	ensureCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ensureTopic(ensureCtx, client, topic); err != nil {
		slog.Warn("topic creation failed, continuing (may already exist)", slog.String("topic", topic), slog.Any("error", err))
	}

	return &Producer{client: client, topic: topic}, nil
}

// Enqueue publishes req as a single transactional record keyed by nothing in
// particular — each job is independent and ordering across jobs doesn't
// matter (spec.md carries no cross-job ordering requirement).
func (p *Producer) Enqueue(ctx domain.Context, req domain.GradeRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("op=redpanda.enqueue: marshal: %w", err)
	}

	if err := p.client.BeginTransaction(); err != nil {
		return fmt.Errorf("op=redpanda.enqueue: begin transaction: %w", err)
	}

	record := &kgo.Record{Topic: p.topic, Value: payload}
	resultCh := make(chan error, 1)
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) { resultCh <- err })

	var produceErr error
	select {
	case produceErr = <-resultCh:
	case <-ctx.Done():
		produceErr = ctx.Err()
	}

	if produceErr != nil {
		_ = p.client.AbortBufferedRecords(context.Background())
		return fmt.Errorf("op=redpanda.enqueue: produce: %w", produceErr)
	}

	if err := p.client.Flush(ctx); err != nil {
		_ = p.client.AbortBufferedRecords(context.Background())
		return fmt.Errorf("op=redpanda.enqueue: flush: %w", err)
	}
	if err := p.client.EndTransaction(ctx, kgo.TryCommit); err != nil {
		return fmt.Errorf("op=redpanda.enqueue: commit transaction: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (p *Producer) Close() error {
	p.client.Close()
	return nil
}
