package mockkafka

import (
	"github.com/hugolhafner/go-tasks/kafka"
)

// Option is a functional option for configuring a mock Client.
type Option func(*Client)

// WithSendError configures an error to be returned by all Send calls.
func WithSendError(err error) Option {
	return func(c *Client) {
		c.sendErr = func(string, []byte, []byte) error { return err }
	}
}

// WithFetchError configures an error to be returned by all Fetch calls.
func WithFetchError(err error) Option {
	return func(c *Client) {
		c.fetchErr = func(kafka.TopicPartition) error { return err }
	}
}

// WithListOffsetsError configures an error to be returned by ListOffsets.
func WithListOffsetsError(err error) Option {
	return func(c *Client) {
		c.listErr = func() error { return err }
	}
}

// WithPingError configures an error to be returned by Ping.
func WithPingError(err error) Option {
	return func(c *Client) {
		c.pingErr = err
	}
}

// WithRecords seeds a topic-partition log.
func WithRecords(topic string, partition int32, records ...kafka.ConsumerRecord) Option {
	return func(c *Client) {
		c.AddRecords(topic, partition, records...)
	}
}
