// Package events applies asset change events from Kafka to the loss
// tables: upserts recompute the asset, deletes retract it.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/sells-group/hazard-loss/internal/engine"
	"github.com/sells-group/hazard-loss/internal/loss"
	"github.com/sells-group/hazard-loss/internal/monitoring"
	"github.com/sells-group/hazard-loss/internal/resilience"
)

// Op is the kind of asset change.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// Event is one asset change.
type Event struct {
	AssetID string `json:"asset_id"`
	Op      Op     `json:"op"`
}

// Decode parses a message value. The message key is used as the asset id
// when the body carries none; an empty op means upsert.
func Decode(msg kafkago.Message) (Event, error) {
	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return Event{}, eris.Wrap(err, "events: decode")
	}
	ev.AssetID = strings.TrimSpace(ev.AssetID)
	if ev.AssetID == "" {
		ev.AssetID = strings.TrimSpace(string(msg.Key))
	}
	if ev.AssetID == "" {
		return Event{}, eris.New("events: missing asset id")
	}
	switch Op(strings.ToLower(string(ev.Op))) {
	case "", OpUpsert, "create", "update":
		ev.Op = OpUpsert
	case OpDelete:
		ev.Op = OpDelete
	default:
		return Event{}, eris.Errorf("events: unknown op %q", ev.Op)
	}
	return ev, nil
}

// MessageReader is the subset of *kafkago.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Recomputer applies one asset change.
type Recomputer interface {
	RecomputeOne(ctx context.Context, id string) (*loss.Record, error)
	RetractOne(ctx context.Context, id string) (*loss.Record, error)
}

// ReaderConfig configures the Kafka consumer group.
type ReaderConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// NewReader creates a consumer-group reader with manual commits.
func NewReader(cfg ReaderConfig) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
}

// Consumer reads events and applies them one at a time. Offsets are
// committed only after an event was applied or found unprocessable.
type Consumer struct {
	reader  MessageReader
	engine  Recomputer
	metrics *monitoring.Metrics
	retry   resilience.RetryConfig
}

// NewConsumer creates a consumer. Upstream failures are retried with
// backoff before the consumer gives up.
func NewConsumer(reader MessageReader, eng Recomputer, metrics *monitoring.Metrics, retry resilience.RetryConfig) *Consumer {
	retry.ShouldRetry = func(err error) bool { return engine.KindOf(err) == engine.KindUpstream }
	retry.OnRetry = resilience.RetryLogger("events", "apply")
	if metrics == nil {
		metrics = monitoring.NewMetricsForTesting()
	}
	return &Consumer{reader: reader, engine: eng, metrics: metrics, retry: retry}
}

// Run consumes until ctx is cancelled. It returns an error when an event
// still fails after retries; the offset stays uncommitted so the event is
// redelivered.
func (c *Consumer) Run(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "events.consumer"))
	log.Info("consumer started")

	backoff := 200 * time.Millisecond
	const maxBackoff = 5 * time.Second
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("consumer stopping", zap.Error(ctx.Err()))
				return nil
			}
			log.Error("events: fetch failed", zap.Error(err))
			if !sleepWithContext(ctx, backoff) {
				return nil
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = 200 * time.Millisecond

		if err := c.handle(ctx, log, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Warn("events: commit failed", zap.Error(err), zap.Int64("offset", msg.Offset))
		}
	}
}

// handle applies one message. A nil return means the offset may be
// committed.
func (c *Consumer) handle(ctx context.Context, log *zap.Logger, msg kafkago.Message) error {
	ev, err := Decode(msg)
	if err != nil {
		log.Warn("events: skipping malformed message",
			zap.Error(err),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
		)
		c.metrics.EventsConsumed.WithLabelValues("unknown", "malformed").Inc()
		return nil
	}

	err = resilience.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.apply(ctx, ev)
	})
	switch engine.KindOf(err) {
	case engine.KindUnknown:
		if err == nil {
			c.metrics.EventsConsumed.WithLabelValues(string(ev.Op), "success").Inc()
			return nil
		}
	case engine.KindNotFound, engine.KindInvalidInput:
		log.Warn("events: event not applicable",
			zap.String("asset_id", ev.AssetID),
			zap.String("op", string(ev.Op)),
			zap.Error(err),
		)
		c.metrics.EventsConsumed.WithLabelValues(string(ev.Op), "skipped").Inc()
		return nil
	}
	c.metrics.EventsConsumed.WithLabelValues(string(ev.Op), "error").Inc()
	return eris.Wrapf(err, "events: apply %s %q", ev.Op, ev.AssetID)
}

func (c *Consumer) apply(ctx context.Context, ev Event) error {
	var err error
	switch ev.Op {
	case OpDelete:
		_, err = c.engine.RetractOne(ctx, ev.AssetID)
	default:
		_, err = c.engine.RecomputeOne(ctx, ev.AssetID)
	}
	return err
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
