//go:build unit

package reader_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hugolhafner/go-tasks/kafka"
	mockkafka "github.com/hugolhafner/go-tasks/kafka/mock"
	"github.com/hugolhafner/go-tasks/logger"
	mocklogger "github.com/hugolhafner/go-tasks/logger/mock"
	"github.com/hugolhafner/go-tasks/offsetstore"
	"github.com/hugolhafner/go-tasks/reader"
	"github.com/hugolhafner/go-tasks/storage"
	"github.com/stretchr/testify/require"
)

var clicks = kafka.TopicPartition{Topic: "clicks", Partition: 0}

func fastBackOff() backoff.BackOff {
	return backoff.NewConstantBackOff(time.Millisecond)
}

func newOffsets(t *testing.T, l logger.Logger) *offsetstore.Store {
	t.Helper()

	s, err := offsetstore.Open(storage.NewMemoryBackend(), "clicks-0.offsets", l)
	require.NoError(t, err)
	return s
}

func newReader(client *mockkafka.Client, out chan reader.Entry, opts ...reader.Option) *reader.Reader {
	opts = append(
		[]reader.Option{
			reader.WithPollTimeout(20 * time.Millisecond),
			reader.WithBackOffFactory(fastBackOff),
		}, opts...,
	)
	return reader.New(0, clicks, client, client, out, opts...)
}

func collect(t *testing.T, out <-chan reader.Entry, n int) []reader.Entry {
	t.Helper()

	entries := make([]reader.Entry, 0, n)
	timeout := time.After(5 * time.Second)
	for len(entries) < n {
		select {
		case e := <-out:
			entries = append(entries, e)
		case <-timeout:
			t.Fatalf("timed out after %d of %d entries", len(entries), n)
		}
	}
	return entries
}

func TestStartOffset(t *testing.T) {
	t.Parallel()

	retained := kafka.OffsetRange{TopicPartition: clicks, Min: 60, Max: 200}

	tests := []struct {
		name   string
		stored int64
		start  int64
		force  bool
		fatal  bool
	}{
		{"unknown starts at min", offsetstore.Start, 60, false, false},
		{"inside range", 100, 100, false, false},
		{"at min", 60, 60, false, false},
		{"caught up at max", 200, 200, false, false},
		{"compacted below min", 50, 60, true, false},
		{"beyond max", 250, 0, false, true},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				t.Parallel()

				start, force, err := reader.StartOffset(tt.stored, retained)
				if tt.fatal {
					var oor *reader.OffsetOutOfRangeError
					require.ErrorAs(t, err, &oor)
					require.Equal(t, tt.stored, oor.Stored)
					return
				}
				require.NoError(t, err)
				require.Equal(t, tt.start, start)
				require.Equal(t, tt.force, force)
			},
		)
	}
}

func TestReader_PrepareForceSetsCompactedOffset(t *testing.T) {
	t.Parallel()

	l := mocklogger.New()
	client := mockkafka.NewClient()
	client.SetRetainedRange("clicks", 0, 60, 200)

	offsets := newOffsets(t, l)
	offsets.Set("clicks", 50)
	offsets.ApplyNewOffsets()

	r := newReader(client, make(chan reader.Entry, 1), reader.WithLogger(l))
	require.NoError(t, r.Prepare(context.Background(), offsets))
	defer func() { _ = r.StopAndWait(time.Second) }()

	require.Equal(t, int64(60), offsets.Get("clicks"))
	require.Equal(t, int64(60), offsets.Committable()["clicks"])
	client.AssertConsumedFrom(t, "clicks", 0, 60)
	l.AssertCalledWithLevelAndMessage(t, logger.WarnLevel, "Stored offset below retained minimum, records were compacted")
	l.AssertCalledWithField(t, logger.WarnLevel, "Force setting offset", "to", int64(60))
	l.AssertNotCalledWithLevel(t, logger.ErrorLevel)
}

func TestReader_PrepareRefusesOffsetBeyondMax(t *testing.T) {
	t.Parallel()

	l := mocklogger.New()
	client := mockkafka.NewClient()
	client.SetRetainedRange("clicks", 0, 60, 200)

	offsets := newOffsets(t, l)
	offsets.Set("clicks", 250)

	r := newReader(client, make(chan reader.Entry, 1), reader.WithLogger(l))
	err := r.Prepare(context.Background(), offsets)

	var oor *reader.OffsetOutOfRangeError
	require.ErrorAs(t, err, &oor)
	require.Equal(t, int64(200), oor.Max)
	require.Equal(t, reader.StateStopped, r.State())
	require.Equal(t, int64(250), offsets.Get("clicks"))
	client.AssertNotConsumed(t)
	l.AssertCalledWithLevel(t, logger.ErrorLevel)
}

func TestReader_PrepareRetriesTransientListFailure(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient()
	client.AddRecords("clicks", 0, mockkafka.SimpleRecords("a", "1")...)
	client.SetListOffsetsError(errors.New("coordinator not available"))

	go func() {
		time.Sleep(20 * time.Millisecond)
		client.SetListOffsetsError(nil)
	}()

	r := newReader(client, make(chan reader.Entry, 1))
	require.NoError(t, r.Prepare(context.Background(), newOffsets(t, nil)))
	client.AssertConsumedFrom(t, "clicks", 0, 0)
}

func TestReader_PrepareFatalListFailure(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient(mockkafka.WithListOffsetsError(kafka.NewFatalError(errors.New("unknown topic"))))

	r := newReader(client, make(chan reader.Entry, 1))
	err := r.Prepare(context.Background(), newOffsets(t, nil))
	require.True(t, kafka.IsFatal(err))
	client.AssertNotConsumed(t)
}

func TestReader_DeliversInPartitionOrder(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient()
	for i := 0; i < 50; i++ {
		client.AddRecords("clicks", 0, mockkafka.SimpleRecord("k", "{}"))
	}

	out := make(chan reader.Entry, 100)
	r := newReader(client, out)
	require.NoError(t, r.Prepare(context.Background(), newOffsets(t, nil)))

	errCh := make(chan error, 1)
	r.Start(context.Background(), errCh)
	defer func() { _ = r.StopAndWait(time.Second) }()

	entries := collect(t, out, 50)
	for i, e := range entries {
		require.Equal(t, int64(i), e.Record.Offset)
		require.Equal(t, 0, e.ReaderID)
	}
	require.Eventually(t, func() bool { return r.State() == reader.StateRunning }, time.Second, time.Millisecond)
}

func TestReader_BlocksWhenQueueFull(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient()
	for i := 0; i < 10; i++ {
		client.AddRecords("clicks", 0, mockkafka.SimpleRecord("k", "{}"))
	}

	out := make(chan reader.Entry, 3)
	r := newReader(client, out)
	require.NoError(t, r.Prepare(context.Background(), newOffsets(t, nil)))
	r.Start(context.Background(), make(chan error, 1))
	defer func() { _ = r.StopAndWait(time.Second) }()

	require.Eventually(t, func() bool { return len(out) == 3 }, time.Second, time.Millisecond)

	// three queued plus one held by the blocked push; nothing dropped, nothing fetched ahead
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 4, client.FetchCount("clicks", 0))
	require.Len(t, out, 3)

	entries := collect(t, out, 10)
	for i, e := range entries {
		require.Equal(t, int64(i), e.Record.Offset)
	}
}

func TestReader_RetriesTransientFetchErrors(t *testing.T) {
	t.Parallel()

	l := mocklogger.New()
	client := mockkafka.NewClient()
	client.AddRecords("clicks", 0, mockkafka.SimpleRecords("a", "1", "b", "2")...)

	var failures atomic.Int32
	client.SetFetchErrorFunc(
		func(kafka.TopicPartition) error {
			if failures.Add(1) <= 3 {
				return errors.New("connection reset")
			}
			return nil
		},
	)

	out := make(chan reader.Entry, 10)
	r := newReader(client, out, reader.WithLogger(l))
	require.NoError(t, r.Prepare(context.Background(), newOffsets(t, nil)))

	errCh := make(chan error, 1)
	r.Start(context.Background(), errCh)
	defer func() { _ = r.StopAndWait(time.Second) }()

	entries := collect(t, out, 2)
	require.Equal(t, int64(0), entries[0].Record.Offset)
	require.Equal(t, int64(1), entries[1].Record.Offset)
	require.Empty(t, errCh)

	l.AssertCalledWithLevelAndMessage(t, logger.DebugLevel, "Read failed, retrying")
	l.AssertCalledWithLevelAndMessage(t, logger.InfoLevel, "Read recovered")
}

func TestReader_EscalatesRetryLogs(t *testing.T) {
	t.Parallel()

	l := mocklogger.New()
	client := mockkafka.NewClient(mockkafka.WithFetchError(errors.New("broker unreachable")))

	r := newReader(client, make(chan reader.Entry, 1), reader.WithLogger(l), reader.WithEscalation(0, time.Hour))
	require.NoError(t, r.Prepare(context.Background(), newOffsets(t, nil)))
	r.Start(context.Background(), make(chan error, 1))

	require.Eventually(t, func() bool { return r.State() == reader.StateError }, time.Second, time.Millisecond)
	require.Eventually(
		t, func() bool { return client.FetchCount("clicks", 0) >= 3 }, time.Second, time.Millisecond,
	)
	require.NoError(t, r.StopAndWait(time.Second))

	l.AssertCalledWithLevelAndMessage(t, logger.WarnLevel, "Read failing, retrying")
	l.AssertNotCalledWithLevel(t, logger.ErrorLevel)
}

func TestReader_FatalFetchErrorStops(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient()
	client.SetFetchError(kafka.NewFatalError(errors.New("topic authorization failed")))

	r := newReader(client, make(chan reader.Entry, 1))
	require.NoError(t, r.Prepare(context.Background(), newOffsets(t, nil)))

	errCh := make(chan error, 1)
	r.Start(context.Background(), errCh)

	select {
	case err := <-errCh:
		require.True(t, kafka.IsFatal(err))
	case <-time.After(time.Second):
		t.Fatal("expected fatal error")
	}

	require.NoError(t, r.WaitForStop(time.Second))
	require.Equal(t, reader.StateStopped, r.State())
	client.AssertAllConsumersClosed(t)
}

func TestReader_StopUnblocksPush(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient()
	client.AddRecords("clicks", 0, mockkafka.SimpleRecords("a", "1", "b", "2")...)

	out := make(chan reader.Entry)
	r := newReader(client, out)
	require.NoError(t, r.Prepare(context.Background(), newOffsets(t, nil)))
	r.Start(context.Background(), make(chan error, 1))

	require.Eventually(
		t, func() bool { return client.FetchCount("clicks", 0) == 1 }, time.Second, time.Millisecond,
	)
	require.NoError(t, r.StopAndWait(time.Second))
	client.AssertAllConsumersClosed(t)
}

func TestReader_WaitWithoutStartClosesConsumer(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient()
	r := newReader(client, make(chan reader.Entry, 1))
	require.NoError(t, r.Prepare(context.Background(), newOffsets(t, nil)))

	require.NoError(t, r.StopAndWait(time.Second))
	client.AssertAllConsumersClosed(t)
}

func TestState_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "STOPPED", reader.StateStopped.String())
	require.Equal(t, "STARTING", reader.StateStarting.String())
	require.Equal(t, "RUNNING", reader.StateRunning.String())
	require.Equal(t, "ERROR", reader.StateError.String())
}
