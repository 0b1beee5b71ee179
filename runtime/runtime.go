package runtime

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"time"

	"github.com/hugolhafner/go-tasks/committer"
	"github.com/hugolhafner/go-tasks/dispatcher"
	"github.com/hugolhafner/go-tasks/kafka"
	"github.com/hugolhafner/go-tasks/logger"
	"github.com/hugolhafner/go-tasks/offsetstore"
	"github.com/hugolhafner/go-tasks/otel"
	"github.com/hugolhafner/go-tasks/reader"
	"github.com/hugolhafner/go-tasks/statestore"
	"github.com/hugolhafner/go-tasks/storage"
	"github.com/hugolhafner/go-tasks/task"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

var ErrNoSourceTopics = errors.New("task declares no source topics")

// Broker is the part of the broker client a runtime needs.
type Broker interface {
	kafka.Producer
	kafka.ConsumerFactory
	kafka.OffsetLister
}

// Runtime drives one task instance: one partition of every source topic of a task.
// All calls into the task and into the offset and state stores happen on the
// goroutine running Run.
type Runtime struct {
	task       task.Task
	broker     Broker
	offsets    *offsetstore.Store
	state      *statestore.Store
	dispatcher *dispatcher.Dispatcher

	readers []*reader.Reader
	queue   chan reader.Entry
	errCh   chan error

	windowed    bool
	windowTimer committer.Trigger
	commitTimer committer.Trigger

	config Config
	logger logger.Logger
	tel    *otel.Telemetry
	attrs  metric.MeasurementOption
}

// New opens the offset and state stores of the instance from backend. The task
// value must not be shared with another runtime.
func New(t task.Task, broker Broker, backend storage.Backend, opts ...Option) (*Runtime, error) {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	if err := task.ValidateName(config.TaskName); err != nil {
		return nil, fmt.Errorf("runtime requires a valid task name: %w", err)
	}
	if len(t.SourceTopics()) == 0 {
		return nil, fmt.Errorf("task %s: %w", config.TaskName, ErrNoSourceTopics)
	}

	l := config.Logger.With(
		"component", "runtime",
		"task", config.TaskName,
		"partition", config.Partition,
	)

	offsets, err := offsetstore.Open(
		backend, storage.Name(config.TaskName, config.Partition, "offsets"), l,
	)
	if err != nil {
		return nil, fmt.Errorf("open offset store: %w", err)
	}

	state, err := statestore.Open(
		backend, storage.Name(config.TaskName, config.Partition, "state"), task.NewState(t),
		statestore.WithLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	_, windowed := task.WindowInterval(t)

	return &Runtime{
		task:    t,
		broker:  broker,
		offsets: offsets,
		state:   state,
		dispatcher: dispatcher.New(
			broker, task.ResultTopics(t),
			dispatcher.WithLogger(l),
			dispatcher.WithTelemetry(config.Telemetry),
		),
		queue:    make(chan reader.Entry, config.QueueSize),
		errCh:    make(chan error, len(t.SourceTopics())),
		windowed: windowed,
		config:   config,
		logger:   l,
		tel:      config.Telemetry,
		attrs: metric.WithAttributes(
			otel.AttrTask.String(config.TaskName),
			otel.AttrPartition.Int64(int64(config.Partition)),
		),
	}, nil
}

// Offsets exposes the offset store. It must not be used while Run is active.
func (r *Runtime) Offsets() *offsetstore.Store {
	return r.offsets
}

// State returns the task state value. It must not be used while Run is active.
func (r *Runtime) State() any {
	return r.state.State()
}

// Run processes messages until ctx is cancelled or a fatal error occurs. On
// cancellation the current message or maintenance step completes, readers are
// stopped and commit eligible progress is committed one last time; Run then
// returns nil. Fatal errors are returned without committing.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.initTask(); err != nil {
		r.recordError(ctx, otel.PhaseStartup)
		return err
	}

	readerCtx, cancelReaders := context.WithCancel(ctx)
	defer cancelReaders()
	defer r.stopReaders()

	if err := r.startReaders(ctx, readerCtx); err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			r.logger.Info("Task runtime cancelled during startup")
			return nil
		}
		r.recordError(ctx, otel.PhaseStartup)
		return err
	}

	r.tel.InstancesActive.Add(ctx, 1, r.attrs)
	defer r.tel.InstancesActive.Add(context.WithoutCancel(ctx), -1, r.attrs)

	now := time.Now()
	r.commitTimer = committer.NewPeriodic(
		now,
		committer.WithMaxInterval(r.config.CommitInterval),
		committer.WithMaxCount(r.config.CommitMaxCount),
	)
	if interval, ok := task.WindowInterval(r.task); ok {
		r.windowTimer = committer.NewPeriodic(now, committer.WithMaxInterval(interval))
	}

	r.logger.Info("Task runtime started", "source_topics", r.task.SourceTopics(), "windowed", r.windowed)

	timer := time.NewTimer(r.config.DequeueTimeout)
	defer timer.Stop()

	// work is never cancelled mid message or mid maintenance
	work := context.WithoutCancel(ctx)

	for {
		if ctx.Err() != nil {
			return r.shutdown(work)
		}

		timer.Reset(r.config.DequeueTimeout)

		select {
		case <-ctx.Done():
			return r.shutdown(work)

		case err := <-r.errCh:
			r.logger.Error("Reader failed, stopping instance", "error", err)
			r.recordError(work, otel.PhaseRead)
			return err

		case e := <-r.queue:
			if err := r.handle(work, e.Record); err != nil {
				return err
			}

		case <-timer.C:
		}

		if err := r.maintain(work); err != nil {
			return err
		}
	}
}

func (r *Runtime) initTask() error {
	cfg := map[string]any{
		"task":          r.config.TaskName,
		"partition":     r.config.Partition,
		"source_topics": r.task.SourceTopics(),
	}
	maps.Copy(cfg, r.config.Settings)

	initializer, ok := r.task.(task.Initializer)
	if !ok {
		return nil
	}

	if err := initializer.Init(cfg); err != nil {
		r.logger.Error("Task init failed", "error", err)
		return fmt.Errorf("init task %s: %w", r.config.TaskName, err)
	}
	return nil
}

// startReaders prepares every reader before starting any, so a startup failure
// processes nothing.
func (r *Runtime) startReaders(ctx, readerCtx context.Context) error {
	opts := append(
		[]reader.Option{
			reader.WithLogger(r.logger),
			reader.WithTelemetry(r.tel),
		}, r.config.ReaderOptions...,
	)

	for i, topic := range r.task.SourceTopics() {
		tp := kafka.TopicPartition{Topic: topic, Partition: r.config.Partition}
		rd := reader.New(i, tp, r.broker, r.broker, r.queue, opts...)
		r.readers = append(r.readers, rd)

		if err := rd.Prepare(ctx, r.offsets); err != nil {
			if ctx.Err() == nil {
				r.logger.Error("Reader failed to start, stopping instance", "topic", topic, "error", err)
			}
			return fmt.Errorf("task %s partition %d: start reader: %w", r.config.TaskName, r.config.Partition, err)
		}
	}

	for _, rd := range r.readers {
		rd.Start(readerCtx, r.errCh)
	}

	return nil
}

func (r *Runtime) stopReaders() {
	if len(r.readers) == 0 {
		return
	}

	for _, rd := range r.readers {
		rd.Stop()
	}
	for _, rd := range r.readers {
		if err := rd.WaitForStop(r.config.ReaderShutdownTimeout); err != nil {
			r.logger.Warn("Reader did not stop in time", "topic", rd.TopicPartition().Topic, "error", err)
		}
	}
	r.readers = nil
}

func (r *Runtime) handle(ctx context.Context, rec kafka.ConsumerRecord) error {
	partitionID := strconv.FormatInt(int64(rec.Partition), 10)

	r.tel.MessagesConsumed.Add(
		ctx, 1, metric.WithAttributes(
			semconv.MessagingDestinationName(rec.Topic),
			semconv.MessagingDestinationPartitionID(partitionID),
		),
	)

	ctx = r.tel.ExtractHeaders(ctx, rec.Headers)
	ctx, span := r.tel.Tracer.Start(
		ctx, rec.Topic+" process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationTypeProcess,
			semconv.MessagingDestinationName(rec.Topic),
			semconv.MessagingDestinationPartitionID(partitionID),
			semconv.MessagingKafkaOffsetKey.Int64(rec.Offset),
			otel.AttrTask.String(r.config.TaskName),
		),
	)
	defer span.End()

	start := time.Now()
	status := otel.StatusFailed
	defer func() {
		r.tel.ProcessDuration.Record(
			ctx, time.Since(start).Seconds(), r.attrs, metric.WithAttributes(otel.AttrStatus.String(status)),
		)
	}()

	fail := func(err error, phase string) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.recordError(ctx, phase)
		return err
	}

	msg, err := task.NewSourceMessage(rec)
	if err != nil {
		r.logger.Error(
			"Message is not valid JSON, stopping instance",
			"topic", rec.Topic, "offset", rec.Offset, "key", string(rec.Key), "error", err,
		)
		return fail(
			&task.ProcessError{
				Cause:     err,
				Task:      r.config.TaskName,
				Partition: r.config.Partition,
				Topic:     rec.Topic,
				Offset:    rec.Offset,
				Key:       rec.Key,
			}, otel.PhaseProcess,
		)
	}

	results, err := r.task.Process(ctx, msg, r.state.State())
	r.state.MarkModified()
	if err != nil {
		r.logger.Error(
			"Task failed to process message, stopping instance",
			"topic", rec.Topic, "offset", rec.Offset, "key", string(rec.Key), "error", err,
		)
		return fail(task.NewProcessError(err, r.config.TaskName, r.config.Partition, msg), otel.PhaseProcess)
	}

	if err := r.dispatcher.DispatchAll(ctx, results); err != nil {
		return fail(err, otel.PhaseDispatch)
	}

	r.offsets.Set(rec.Topic, rec.Offset+1)
	if !r.windowed {
		r.offsets.ApplyNewOffsets()
	}
	r.commitTimer.RecordProcessed(1)

	status = otel.StatusSuccess
	return nil
}

// maintain fires the window and commits when their intervals elapsed.
func (r *Runtime) maintain(ctx context.Context) error {
	now := time.Now()

	if r.windowed && r.windowTimer.Due(now) {
		if err := r.fireWindow(ctx); err != nil {
			return err
		}
		r.windowTimer.Reset(now)
	}

	if r.commitTimer.Due(now) {
		if err := r.commit(ctx); err != nil {
			return err
		}
		r.commitTimer.Reset(now)
	}

	return nil
}

// fireWindow runs the window and publishes its results. Offsets become commit
// eligible only after every result was sent; results sent before a failure stay
// published.
func (r *Runtime) fireWindow(ctx context.Context) error {
	w := r.task.(task.Windowed)

	ctx, span := r.tel.Tracer.Start(
		ctx, r.config.TaskName+" window",
		trace.WithAttributes(otel.AttrTask.String(r.config.TaskName)),
	)
	defer span.End()

	results, err := w.Window(ctx, r.state.State())
	r.state.MarkModified()
	if err == nil {
		err = r.dispatcher.DispatchAll(ctx, results)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.recordError(ctx, otel.PhaseWindow)
		r.logger.Error("Window failed, stopping instance", "error", err)
		return task.NewWindowError(err, r.config.TaskName, r.config.Partition)
	}

	r.offsets.ApplyNewOffsets()
	r.tel.WindowsFired.Add(ctx, 1, r.attrs)
	r.logger.Debug("Window fired", "results", len(results))

	return nil
}

// commit persists offsets before state. A failure leaves the stores dirty and is
// fatal to the instance.
func (r *Runtime) commit(ctx context.Context) error {
	start := time.Now()
	defer func() {
		r.tel.CommitDuration.Record(ctx, time.Since(start).Seconds(), r.attrs)
	}()

	if r.offsets.IsModified() {
		if err := r.offsets.Commit(); err != nil {
			r.logger.Error("Offset commit failed, stopping instance", "error", err)
			r.recordError(ctx, otel.PhaseCommit)
			return fmt.Errorf("task %s partition %d: %w", r.config.TaskName, r.config.Partition, err)
		}
		r.tel.Commits.Add(ctx, 1, r.attrs, metric.WithAttributes(otel.AttrCommitKind.String(otel.CommitOffsets)))
	}

	if r.state.IsModified() {
		if err := r.state.Commit(); err != nil {
			r.logger.Error("State commit failed, stopping instance", "error", err)
			r.recordError(ctx, otel.PhaseCommit)
			return fmt.Errorf("task %s partition %d: %w", r.config.TaskName, r.config.Partition, err)
		}
		r.tel.Commits.Add(ctx, 1, r.attrs, metric.WithAttributes(otel.AttrCommitKind.String(otel.CommitState)))
	}

	return nil
}

// shutdown stops the readers, flushes pending results and commits what is commit
// eligible. An open window is not fired; its messages are processed again after restart.
func (r *Runtime) shutdown(ctx context.Context) error {
	r.logger.Info("Context cancelled, shutting down")
	r.stopReaders()

	if err := r.broker.Flush(ctx); err != nil {
		r.logger.Error("Flush failed on shutdown, skipping final commit", "error", err)
		r.recordError(ctx, otel.PhaseDispatch)
		return fmt.Errorf("task %s partition %d: flush results: %w", r.config.TaskName, r.config.Partition, err)
	}

	if err := r.commit(ctx); err != nil {
		return err
	}

	r.logger.Info("Task runtime stopped", "offsets", r.offsets.Committable())
	return nil
}

func (r *Runtime) recordError(ctx context.Context, phase string) {
	r.tel.Errors.Add(ctx, 1, r.attrs, metric.WithAttributes(otel.AttrErrorPhase.String(phase)))
}
