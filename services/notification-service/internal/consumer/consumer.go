package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicops/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Handler applies one message inside the transaction that also records it
// in the inbox.
type Handler func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error

// Ledger is the processed-event inbox.
type Ledger interface {
	Record(ctx context.Context, tx pgx.Tx, eventID, eventType string) (bool, error)
}

type TxRunner interface {
	InTx(ctx context.Context, fn func(pgx.Tx) error) error
}

type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Outcome labels passed to Observe.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

type Consumer struct {
	reader  Reader
	logger  *slog.Logger
	db      TxRunner
	inbox   Ledger
	handler Handler
	observe func(outcome string)
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
	// Observe, when set, is called once per message with its outcome.
	Observe func(outcome string)
}

func New(logger *slog.Logger, db TxRunner, inbox Ledger, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newConsumer(logger, reader, db, inbox, cfg.Observe, handler)
}

func newConsumer(logger *slog.Logger, reader Reader, db TxRunner, inbox Ledger, observe func(string), handler Handler) *Consumer {
	if observe == nil {
		observe = func(string) {}
	}
	return &Consumer{
		reader:  reader,
		logger:  logger,
		db:      db,
		inbox:   inbox,
		handler: handler,
		observe: observe,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		outcome := c.handle(ctx, msg)
		c.observe(outcome)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) string {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID == "" {
		c.logger.Error("event without id skipped", "topic", msg.Topic, "offset", msg.Offset)
		return OutcomeFailed
	}

	duplicate := false
	err := c.db.InTx(ctxSpan, func(tx pgx.Tx) error {
		ok, err := c.inbox.Record(ctxSpan, tx, meta.EventID, meta.EventType)
		if err != nil {
			return err
		}
		if !ok {
			duplicate = true
			return nil
		}
		return c.handler(ctxSpan, tx, msg)
	})
	switch {
	case err != nil:
		c.logger.Error("handler error", "err", err, "event_id", meta.EventID)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return OutcomeFailed
	case duplicate:
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return OutcomeDuplicate
	}
	return OutcomeApplied
}
