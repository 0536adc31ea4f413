package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/leadpilot/leadpilot/internal/domain"
)

// GroupWorkers is the consumer group shared by all worker processes.
const GroupWorkers = "leadpilot-workers"

// Handler runs one generation task to completion. A returned error leaves the
// record unmarked so another poll (or worker) retries it.
type Handler func(ctx domain.Context, payload domain.GenerateTaskPayload) error

// Consumer polls generation tasks from Kafka and hands them to a Handler.
type Consumer struct {
	client  *kgo.Client
	handler Handler
}

// NewConsumer joins the worker consumer group on the generate topic.
func NewConsumer(brokers []string, handler Handler) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=queue.NewConsumer: no seed brokers provided")
	}
	if handler == nil {
		return nil, fmt.Errorf("op=queue.NewConsumer: nil handler")
	}
	kotelService := kotel.NewKotel(
		kotel.WithTracer(kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))),
	)
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(GroupWorkers),
		kgo.ConsumeTopics(TopicGenerate),
		kgo.WithHooks(kotelService.Hooks()...),
		kgo.SessionTimeout(30*time.Second),
		kgo.HeartbeatInterval(3*time.Second),
		kgo.FetchMaxWait(5*time.Second),
		// Offsets are marked per record after the handler succeeds; a crash
		// mid-batch replays only the unhandled tail.
		kgo.AutoCommitMarks(),
		kgo.AutoCommitInterval(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("op=queue.NewConsumer: %w", err)
	}
	return &Consumer{client: client, handler: handler}, nil
}

// Run polls until the context is cancelled. Malformed records are logged and
// marked so they do not wedge the partition.
func (c *Consumer) Run(ctx domain.Context) error {
	slog.Info("queue consumer started",
		slog.String("topic", TopicGenerate),
		slog.String("group", GroupWorkers))
	for {
		fetches := c.client.PollFetches(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, fe := range errs {
				if errors.Is(fe.Err, context.Canceled) {
					return ctx.Err()
				}
				slog.Error("fetch error",
					slog.String("topic", fe.Topic),
					slog.Int("partition", int(fe.Partition)),
					slog.Any("error", fe.Err))
			}
			continue
		}
		fetches.EachRecord(func(rec *kgo.Record) {
			c.handleRecord(ctx, rec)
		})
	}
}

func (c *Consumer) handleRecord(ctx domain.Context, rec *kgo.Record) {
	var payload domain.GenerateTaskPayload
	if err := json.Unmarshal(rec.Value, &payload); err != nil {
		slog.Error("dropping malformed task record",
			slog.Int64("offset", rec.Offset),
			slog.Any("error", err))
		c.client.MarkCommitRecords(rec)
		return
	}
	start := time.Now()
	if err := c.handler(ctx, payload); err != nil {
		slog.Error("task handling failed, leaving record for redelivery",
			slog.String("job_id", payload.JobID),
			slog.Any("error", err))
		return
	}
	slog.Info("task handled",
		slog.String("job_id", payload.JobID),
		slog.Duration("took", time.Since(start)))
	c.client.MarkCommitRecords(rec)
}

// Close commits marked offsets and leaves the group.
func (c *Consumer) Close() {
	c.client.Close()
}
