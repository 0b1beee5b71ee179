package reader

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hugolhafner/go-tasks/kafka"
	"github.com/hugolhafner/go-tasks/logger"
	"github.com/hugolhafner/go-tasks/offsetstore"
	"github.com/hugolhafner/go-tasks/otel"
	"go.opentelemetry.io/otel/metric"
)

// Entry is one record handed from a reader to its runtime.
type Entry struct {
	ReaderID int
	Record   kafka.ConsumerRecord
}

// Offsets is the part of the offset store a reader needs during startup.
type Offsets interface {
	Get(topic string) int64
	ForceSet(topic string, position int64)
}

// OffsetOutOfRangeError reports a stored offset beyond the end of the partition log.
// It points at corrupted state or a recreated topic and needs an operator.
type OffsetOutOfRangeError struct {
	TopicPartition kafka.TopicPartition
	Stored         int64
	Min            int64
	Max            int64
}

func (e *OffsetOutOfRangeError) Error() string {
	return fmt.Sprintf(
		"stored offset %d for %s is beyond the retained range [%d, %d]",
		e.Stored, e.TopicPartition, e.Min, e.Max,
	)
}

// Reader pulls one partition into a shared channel on its own goroutine. It never
// advances offsets; the runtime does that after processing.
type Reader struct {
	id        int
	tp        kafka.TopicPartition
	consumers kafka.ConsumerFactory
	lister    kafka.OffsetLister
	out       chan<- Entry
	config    Config
	logger    logger.Logger

	state    atomic.Int32
	consumer kafka.PartitionConsumer

	mu     sync.Mutex
	cancel context.CancelFunc
	doneCh chan struct{}
}

func New(
	id int,
	tp kafka.TopicPartition,
	consumers kafka.ConsumerFactory,
	lister kafka.OffsetLister,
	out chan<- Entry,
	opts ...Option,
) *Reader {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Reader{
		id:        id,
		tp:        tp,
		consumers: consumers,
		lister:    lister,
		out:       out,
		config:    cfg,
		logger: cfg.Logger.With(
			"component", "partition-reader",
			"topic", tp.Topic,
			"partition", tp.Partition,
		),
		doneCh: make(chan struct{}),
	}
}

func (r *Reader) TopicPartition() kafka.TopicPartition {
	return r.tp
}

func (r *Reader) State() State {
	return State(r.state.Load())
}

// StartOffset reconciles a stored offset against the retained range. force reports that
// the stored offset fell below the range and must be overwritten.
func StartOffset(stored int64, retained kafka.OffsetRange) (start int64, force bool, err error) {
	switch {
	case stored == offsetstore.Start:
		return retained.Min, false, nil
	case stored > retained.Max:
		return 0, false, &OffsetOutOfRangeError{
			TopicPartition: retained.TopicPartition,
			Stored:         stored,
			Min:            retained.Min,
			Max:            retained.Max,
		}
	case stored < retained.Min:
		return retained.Min, true, nil
	default:
		return stored, false, nil
	}
}

// Prepare reconciles the stored offset with the broker and opens the partition consumer.
// It runs on the runtime's goroutine because it may force set offsets.
func (r *Reader) Prepare(ctx context.Context, offsets Offsets) error {
	r.state.Store(int32(StateStarting))

	retained, err := r.listOffsets(ctx)
	if err != nil {
		r.state.Store(int32(StateStopped))
		return fmt.Errorf("list offsets for %s: %w", r.tp, err)
	}

	stored := offsets.Get(r.tp.Topic)
	start, force, err := StartOffset(stored, retained)
	if err != nil {
		r.state.Store(int32(StateStopped))
		r.logger.Error(
			"Stored offset beyond partition end, refusing to start",
			"stored", stored, "min", retained.Min, "max", retained.Max,
		)
		return err
	}

	if force {
		r.logger.Warn(
			"Stored offset below retained minimum, records were compacted",
			"stored", stored, "min", retained.Min, "max", retained.Max,
		)
		offsets.ForceSet(r.tp.Topic, start)
	}

	consumer, err := r.consumers.Consume(r.tp, start)
	if err != nil {
		r.state.Store(int32(StateStopped))
		return fmt.Errorf("open consumer for %s: %w", r.tp, err)
	}
	r.consumer = consumer

	r.logger.Info("Partition reader prepared", "offset", start, "min", retained.Min, "max", retained.Max)

	return nil
}

// listOffsets retries transient failures with the read backoff policy.
func (r *Reader) listOffsets(ctx context.Context) (kafka.OffsetRange, error) {
	var retained kafka.OffsetRange

	op := func() error {
		ranges, err := r.lister.ListOffsets(ctx, []kafka.TopicPartition{r.tp})
		if err != nil {
			if kafka.IsFatal(err) {
				return backoff.Permanent(err)
			}
			return err
		}

		for _, rng := range ranges {
			if rng.TopicPartition == r.tp {
				retained = rng
				return nil
			}
		}

		return backoff.Permanent(fmt.Errorf("no offset range returned for %s", r.tp))
	}

	notify := func(err error, wait time.Duration) {
		r.logger.Warn("Listing offsets failed, retrying", "error", err, "backoff", wait)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(r.config.newBackOff(), ctx), notify)
	return retained, err
}

// Start runs the read loop until ctx is cancelled, Stop is called or a fatal read
// error occurs. Fatal errors are reported on errCh.
func (r *Reader) Start(ctx context.Context, errCh chan<- error) {
	r.mu.Lock()
	ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	go r.run(ctx, errCh)
}

func (r *Reader) run(ctx context.Context, errCh chan<- error) {
	defer close(r.doneCh)
	defer r.state.Store(int32(StateStopped))
	defer r.consumer.Close()

	r.state.Store(int32(StateRunning))
	r.logger.Debug("Partition reader started")

	b := r.config.newBackOff()
	var failingSince time.Time

	for {
		if ctx.Err() != nil {
			r.logger.Debug("Partition reader stopping")
			return
		}

		rec, ok, err := r.consumer.Fetch(ctx, r.config.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			if kafka.IsFatal(err) {
				r.state.Store(int32(StateError))
				r.logger.Error("Fatal read error, stopping reader", "error", err)
				emitError(errCh, r.logger, fmt.Errorf("reader %s: %w", r.tp, err))
				return
			}

			if failingSince.IsZero() {
				failingSince = time.Now()
			}
			r.state.Store(int32(StateError))

			wait := b.NextBackOff()
			if wait == backoff.Stop {
				wait = r.config.MaxBackoff
			}
			r.logRetry(err, time.Since(failingSince), wait)
			r.config.Telemetry.ReadRetries.Add(
				ctx, 1, metric.WithAttributes(
					otel.AttrTopic.String(r.tp.Topic),
					otel.AttrPartition.Int64(int64(r.tp.Partition)),
				),
			)

			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}

		if !failingSince.IsZero() {
			r.logger.Info("Read recovered", "failing_for", time.Since(failingSince))
			failingSince = time.Time{}
			b.Reset()
		}
		r.state.Store(int32(StateRunning))

		if !ok {
			continue
		}

		// blocks while the runtime is behind, which stops further fetches
		select {
		case <-ctx.Done():
			return
		case r.out <- Entry{ReaderID: r.id, Record: rec}:
		}
	}
}

func (r *Reader) logRetry(err error, failingFor, wait time.Duration) {
	kv := []any{"error", err, "failing_for", failingFor, "backoff", wait}

	switch {
	case failingFor >= r.config.ErrorAfter:
		r.logger.Error("Read failing, retrying", kv...)
	case failingFor >= r.config.WarnAfter:
		r.logger.Warn("Read failing, retrying", kv...)
	default:
		r.logger.Debug("Read failed, retrying", kv...)
	}
}

// Stop signals the reader to stop and returns immediately
func (r *Reader) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}
}

// WaitForStop waits for the read loop to exit. A reader that was never started is
// closed immediately.
func (r *Reader) WaitForStop(timeout time.Duration) error {
	r.mu.Lock()
	started := r.cancel != nil
	r.mu.Unlock()

	if !started {
		if r.consumer != nil {
			r.consumer.Close()
		}
		return nil
	}

	select {
	case <-r.doneCh:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for partition reader %s to stop", r.tp)
	}
}

// StopAndWait stops the reader and waits for it to finish.
func (r *Reader) StopAndWait(timeout time.Duration) error {
	r.Stop()
	return r.WaitForStop(timeout)
}

func emitError(errCh chan<- error, l logger.Logger, err error) {
	select {
	case errCh <- err:
	default:
		l.Error("Error channel full, dropping error", "error", err)
	}
}
