package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/hugolhafner/go-tasks/kafka"
	"github.com/hugolhafner/go-tasks/logger"
	"github.com/hugolhafner/go-tasks/otel"
	"github.com/hugolhafner/go-tasks/serde"
	"github.com/hugolhafner/go-tasks/task"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// UnknownTopicError is returned when a task publishes to a topic it did not declare.
// It is a bug in the task, not in the message.
type UnknownTopicError struct {
	Topic    string
	Declared []string
}

func (e *UnknownTopicError) Error() string {
	return fmt.Sprintf("topic %q is not a declared result topic %v", e.Topic, e.Declared)
}

type Config struct {
	Codec     serde.Codec
	Logger    logger.Logger
	Telemetry *otel.Telemetry
}

func defaultConfig() Config {
	return Config{
		Codec:     serde.JSON(),
		Logger:    logger.NewNoopLogger(),
		Telemetry: otel.Noop(),
	}
}

type Option func(*Config)

func WithCodec(c serde.Codec) Option {
	return func(cfg *Config) {
		cfg.Codec = c
	}
}

func WithLogger(l logger.Logger) Option {
	return func(cfg *Config) {
		cfg.Logger = l
	}
}

func WithTelemetry(t *otel.Telemetry) Option {
	return func(cfg *Config) {
		cfg.Telemetry = t
	}
}

// Dispatcher publishes task results to their declared destination topics.
type Dispatcher struct {
	producer kafka.Producer
	topics   []string
	codec    serde.Codec
	logger   logger.Logger
	tel      *otel.Telemetry
}

func New(producer kafka.Producer, resultTopics []string, opts ...Option) *Dispatcher {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Dispatcher{
		producer: producer,
		topics:   slices.Clone(resultTopics),
		codec:    cfg.Codec,
		logger:   cfg.Logger.With("component", "dispatcher"),
		tel:      cfg.Telemetry,
	}
}

// Dispatch validates, encodes and sends one result. A result for an undeclared topic
// or a failed send returns an error; a result without a key is dropped and logged.
func (d *Dispatcher) Dispatch(ctx context.Context, topic string, key []byte, value any) error {
	if !slices.Contains(d.topics, topic) {
		err := &UnknownTopicError{Topic: topic, Declared: d.topics}
		d.logger.Error("Result for undeclared topic", "topic", topic, "declared", d.topics)
		return err
	}

	if key == nil {
		d.logger.Error("Result without key, dropping", "topic", topic)
		d.tel.ResultsDropped.Add(ctx, 1, metric.WithAttributes(semconv.MessagingDestinationName(topic)))
		return nil
	}

	payload, err := d.codec.Marshal(value)
	if err != nil {
		d.logger.Error("Failed to encode result", "topic", topic, "key", string(key), "error", err)
		return task.NewProductionError(fmt.Errorf("encode %s: %w", d.codec.Name(), err), topic)
	}

	ctx, span := d.tel.Tracer.Start(
		ctx, topic+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingDestinationName(topic),
			semconv.MessagingMessageBodySize(len(payload)),
		),
	)
	defer span.End()

	headers := d.tel.InjectHeaders(ctx, nil)

	start := time.Now()
	err = d.producer.Send(ctx, topic, key, payload, headers)
	d.tel.ProduceDuration.Record(
		ctx, time.Since(start).Seconds(), metric.WithAttributes(semconv.MessagingDestinationName(topic)),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Error("Failed to publish result", "topic", topic, "key", string(key), "error", err)
		return task.NewProductionError(err, topic)
	}

	d.tel.MessagesProduced.Add(ctx, 1, metric.WithAttributes(semconv.MessagingDestinationName(topic)))
	return nil
}

// DispatchAll sends results in order and stops at the first error. Results sent
// before the failure stay published.
func (d *Dispatcher) DispatchAll(ctx context.Context, results []task.Result) error {
	for _, r := range results {
		if err := d.Dispatch(ctx, r.Topic, r.Key, r.Value); err != nil {
			return err
		}
	}
	return nil
}

// AsUnknownTopicError reports whether err wraps an UnknownTopicError.
func AsUnknownTopicError(err error) (*UnknownTopicError, bool) {
	var e *UnknownTopicError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
