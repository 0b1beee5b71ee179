//go:build unit

package mockkafka_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hugolhafner/go-tasks/kafka"
	mockkafka "github.com/hugolhafner/go-tasks/kafka/mock"
	"github.com/stretchr/testify/require"
)

func TestMockClient_ImplementsInterface(t *testing.T) {
	var _ kafka.Client = (*mockkafka.Client)(nil)
}

func TestMockClient_Send(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient()

	headers := []kafka.Header{{Key: "traceparent", Value: []byte("00-abc")}}
	err := client.Send(context.Background(), "test-topic", []byte("key"), []byte("value"), headers)
	require.NoError(t, err)

	records := client.ProducedRecords()
	require.Len(t, records, 1)
	require.Equal(t, "test-topic", records[0].Topic)
	require.Equal(t, []byte("key"), records[0].Key)
	require.Equal(t, []byte("value"), records[0].Value)
	client.AssertHeaderPresent(t, "test-topic", "traceparent")
}

func TestMockClient_SendError(t *testing.T) {
	t.Parallel()

	sendErr := errors.New("broker down")
	client := mockkafka.NewClient(mockkafka.WithSendError(sendErr))

	err := client.Send(context.Background(), "t", []byte("k"), []byte("v"), nil)
	require.ErrorIs(t, err, sendErr)
	client.AssertNoProducedRecords(t)
}

func TestMockClient_AddRecordsAssignsOffsets(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient()
	client.AddRecords("clicks", 0, mockkafka.SimpleRecords("a", "1", "b", "2")...)
	client.AddRecords("clicks", 0, mockkafka.SimpleRecord("c", "3"))

	ranges, err := client.ListOffsets(
		context.Background(), []kafka.TopicPartition{{Topic: "clicks", Partition: 0}},
	)
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	require.Equal(t, int64(0), ranges[0].Min)
	require.Equal(t, int64(3), ranges[0].Max)
}

func TestMockClient_FetchFromPosition(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient()
	client.AddRecords("clicks", 0, mockkafka.SimpleRecords("a", "1", "b", "2", "c", "3")...)

	pc, err := client.Consume(kafka.TopicPartition{Topic: "clicks", Partition: 0}, 1)
	require.NoError(t, err)
	defer pc.Close()

	rec, ok, err := pc.Fetch(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), rec.Offset)
	require.Equal(t, "b", string(rec.Key))

	rec, ok, err = pc.Fetch(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2), rec.Offset)

	_, ok, err = pc.Fetch(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)

	client.AssertConsumedFrom(t, "clicks", 0, 1)
}

func TestMockClient_FetchWakesOnAppend(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient()
	pc, err := client.Consume(kafka.TopicPartition{Topic: "clicks", Partition: 0}, 0)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		client.AddRecords("clicks", 0, mockkafka.SimpleRecord("a", "1"))
	}()

	rec, ok, err := pc.Fetch(context.Background(), 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", string(rec.Key))
}

func TestMockClient_RetainedRangeDropsCompacted(t *testing.T) {
	t.Parallel()

	client := mockkafka.NewClient()
	client.AddRecords("clicks", 0, mockkafka.SimpleRecords("a", "1", "b", "2", "c", "3")...)
	client.SetRetainedRange("clicks", 0, 2, 3)

	pc, err := client.Consume(kafka.TopicPartition{Topic: "clicks", Partition: 0}, 0)
	require.NoError(t, err)

	rec, ok, err := pc.Fetch(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2), rec.Offset)
}

func TestMockClient_FetchErrorAndClose(t *testing.T) {
	t.Parallel()

	fetchErr := errors.New("connection reset")
	client := mockkafka.NewClient()
	client.SetFetchError(fetchErr)

	pc, err := client.Consume(kafka.TopicPartition{Topic: "clicks", Partition: 0}, 0)
	require.NoError(t, err)

	_, _, err = pc.Fetch(context.Background(), 10*time.Millisecond)
	require.ErrorIs(t, err, fetchErr)
	require.Equal(t, 1, client.FetchCount("clicks", 0))

	pc.Close()
	client.AssertAllConsumersClosed(t)

	_, _, err = pc.Fetch(context.Background(), 10*time.Millisecond)
	require.True(t, kafka.IsFatal(err))
}
