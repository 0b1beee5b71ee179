package kafka

import (
	"context"
	"time"
)

type Client interface {
	Producer
	ConsumerFactory
	OffsetLister

	Ping(ctx context.Context) error
	Close()
}

type Producer interface {
	Send(ctx context.Context, topic string, key, value []byte, headers []Header) error
	Flush(ctx context.Context) error
}

// ConsumerFactory opens a consumer bound to exactly one partition, positioned at offset.
type ConsumerFactory interface {
	Consume(tp TopicPartition, offset int64) (PartitionConsumer, error)
}

// PartitionConsumer reads a single partition in broker order.
type PartitionConsumer interface {
	// Fetch blocks for at most timeout waiting for the next record. ok is false when
	// the timeout elapsed without a record. Errors wrapped in FatalError must not be retried.
	Fetch(ctx context.Context, timeout time.Duration) (record ConsumerRecord, ok bool, err error)
	Close()
}

// OffsetLister answers the retained offset range of each requested partition.
type OffsetLister interface {
	ListOffsets(ctx context.Context, partitions []TopicPartition) ([]OffsetRange, error)
}
