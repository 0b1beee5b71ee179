package mockkafka

import (
	"bytes"
	"testing"

	"github.com/hugolhafner/go-tasks/kafka"
	"github.com/stretchr/testify/require"
)

// AssertProducedCount verifies that exactly n records were produced.
func (c *Client) AssertProducedCount(tb testing.TB, expected int) {
	tb.Helper()

	actual := len(c.ProducedRecords())
	require.Equal(tb, expected, actual, "expected %d records, got %d", expected, actual)
}

// AssertProducedCountForTopic verifies that exactly n records were produced to a topic.
func (c *Client) AssertProducedCountForTopic(tb testing.TB, topic string, expected int) {
	tb.Helper()

	actual := len(c.ProducedRecordsForTopic(topic))
	require.Equal(tb, expected, actual, "expected %d records produced to topic %q, got %d", expected, topic, actual)
}

// AssertProduced verifies that a record with the given key and value was produced to the topic.
func (c *Client) AssertProduced(tb testing.TB, topic string, key, value []byte) {
	tb.Helper()

	records := c.ProducedRecordsForTopic(topic)
	for _, r := range records {
		if bytes.Equal(r.Key, key) && bytes.Equal(r.Value, value) {
			return
		}
	}

	tb.Errorf(
		"expected record with key=%q value=%q to be produced to topic %q, but it was not found",
		string(key), string(value), topic,
	)
}

// AssertProducedString is a convenience method for string keys and values.
func (c *Client) AssertProducedString(tb testing.TB, topic, key, value string) {
	tb.Helper()
	c.AssertProduced(tb, topic, []byte(key), []byte(value))
}

// AssertNoProducedRecords verifies that no records were produced.
func (c *Client) AssertNoProducedRecords(tb testing.TB) {
	tb.Helper()

	records := c.ProducedRecords()
	require.Empty(tb, records, "expected no produced records, got %d", len(records))
}

// AssertHeaderPresent verifies that every record produced to topic carries headerKey.
func (c *Client) AssertHeaderPresent(tb testing.TB, topic, headerKey string) {
	tb.Helper()

	for _, r := range c.ProducedRecordsForTopic(topic) {
		_, ok := kafka.HeaderValue(r.Headers, headerKey)
		require.True(tb, ok, "record with key=%q in topic %q missing header %q", string(r.Key), topic, headerKey)
	}
}

// AssertConsumedFrom verifies that a partition consumer was opened at offset.
func (c *Client) AssertConsumedFrom(tb testing.TB, topic string, partition int32, offset int64) {
	tb.Helper()

	tp := kafka.TopicPartition{Topic: topic, Partition: partition}
	for _, call := range c.ConsumeCalls() {
		if call.TopicPartition == tp && call.Offset == offset {
			return
		}
	}

	tb.Errorf("expected consumer for %s opened at offset %d, calls: %v", tp, offset, c.ConsumeCalls())
}

// AssertNotConsumed verifies that no partition consumer was ever opened.
func (c *Client) AssertNotConsumed(tb testing.TB) {
	tb.Helper()

	require.Empty(tb, c.ConsumeCalls(), "expected no partition consumers to be opened")
}

// AssertAllConsumersClosed verifies that every opened partition consumer was closed.
func (c *Client) AssertAllConsumersClosed(tb testing.TB) {
	tb.Helper()

	require.Zero(tb, c.OpenConsumers(), "expected all partition consumers to be closed")
}

// AssertClosed verifies that Close() was called.
func (c *Client) AssertClosed(tb testing.TB) {
	tb.Helper()

	require.True(tb, c.IsClosed(), "expected client to be closed")
}
