//go:build unit

package kafka

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConsumerRecord_CopyIsDeep(t *testing.T) {
	t.Parallel()

	orig := ConsumerRecord{
		Key:     []byte("k"),
		Value:   []byte("v"),
		Headers: []Header{{Key: "h", Value: []byte("x")}},
		Topic:   "clicks",
		Offset:  7,
	}

	cp := orig.Copy()
	cp.Key[0] = 'z'
	cp.Value[0] = 'z'
	cp.Headers[0].Value[0] = 'z'

	require.Equal(t, "k", string(orig.Key))
	require.Equal(t, "v", string(orig.Value))
	require.Equal(t, "x", string(orig.Headers[0].Value))
	require.Equal(t, int64(7), cp.Offset)
}

func TestConsumerRecord_CopyKeepsNilKey(t *testing.T) {
	t.Parallel()

	require.Nil(t, ConsumerRecord{Value: []byte("v")}.Copy().Key)
}

func TestTopicPartition_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "clicks-3", TopicPartition{Topic: "clicks", Partition: 3}.String())
}

func TestOffsetRange_Contains(t *testing.T) {
	t.Parallel()

	r := OffsetRange{Min: 60, Max: 200}
	require.True(t, r.Contains(60))
	require.True(t, r.Contains(200))
	require.False(t, r.Contains(59))
	require.False(t, r.Contains(201))
}
