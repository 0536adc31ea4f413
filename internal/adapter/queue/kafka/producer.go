// Package kafka provides the Kafka-backed job queue.
//
// The producer publishes generation tasks and the consumer runs them through
// the processing service inside a consumer group, so workers scale
// horizontally by adding group members.
package kafka

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/leadpilot/leadpilot/internal/domain"
)

// TopicGenerate is the Kafka topic for email generation jobs.
const TopicGenerate = "generate-jobs"

// Producer wraps a Kafka producer and implements domain.Queue.
type Producer struct {
	client *kgo.Client
	topic  string
}

// NewProducer constructs a Producer publishing to the default topic.
func NewProducer(brokers []string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=queue.NewProducer: no seed brokers provided")
	}
	kotelService := kotel.NewKotel(
		kotel.WithTracer(kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))),
	)
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1_000_000),
		kgo.WithHooks(kotelService.Hooks()...),
	)
	if err != nil {
		return nil, fmt.Errorf("op=queue.NewProducer: %w", err)
	}
	return &Producer{client: client, topic: TopicGenerate}, nil
}

// EnqueueGenerate publishes a generation task keyed by job id. Keying by job
// id keeps retries for the same job on one partition, so a single worker sees
// them in order.
func (p *Producer) EnqueueGenerate(ctx domain.Context, payload domain.GenerateTaskPayload) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("op=queue.EnqueueGenerate: marshal: %w", err)
	}
	rec := &kgo.Record{Topic: p.topic, Key: []byte(payload.JobID), Value: b}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return "", fmt.Errorf("op=queue.EnqueueGenerate: produce: %w", err)
	}
	slog.Info("generate task enqueued",
		slog.String("job_id", payload.JobID),
		slog.String("topic", p.topic))
	return payload.JobID, nil
}

// Ping checks broker connectivity, used by readiness probes.
func (p *Producer) Ping(ctx domain.Context) error {
	return p.client.Ping(ctx)
}

// Close flushes pending records and releases the client.
func (p *Producer) Close() {
	p.client.Close()
}
