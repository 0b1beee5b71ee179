package mockkafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hugolhafner/go-tasks/kafka"
)

var _ kafka.Client = (*Client)(nil)

// ProducedRecord represents a record that was sent via the mock producer.
type ProducedRecord struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers []kafka.Header
}

// ConsumeCall records the position a partition consumer was opened at.
type ConsumeCall struct {
	TopicPartition kafka.TopicPartition
	Offset         int64
}

type partitionLog struct {
	records []kafka.ConsumerRecord

	// retained overrides the range derived from records, simulating compaction or truncation
	retained *kafka.OffsetRange
}

func (l *partitionLog) rangeFor(tp kafka.TopicPartition) kafka.OffsetRange {
	if l.retained != nil {
		return *l.retained
	}

	r := kafka.OffsetRange{TopicPartition: tp}
	if len(l.records) > 0 {
		r.Min = l.records[0].Offset
		r.Max = l.records[len(l.records)-1].Offset + 1
	}
	return r
}

// Client is an in-memory broker. Every topic-partition is an append-only log that
// partition consumers read from their own position.
type Client struct {
	mu sync.RWMutex

	logs map[kafka.TopicPartition]*partitionLog
	// notify is closed and replaced whenever records are appended
	notify chan struct{}

	producedRecords []ProducedRecord
	consumeCalls    []ConsumeCall
	fetchCounts     map[kafka.TopicPartition]int
	consumers       []*partitionConsumer

	fetchErr  func(tp kafka.TopicPartition) error
	sendErr   func(topic string, key, value []byte) error
	listErr   func() error
	consumeFn func(tp kafka.TopicPartition) error
	pingErr   error

	closed bool
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		logs:            make(map[kafka.TopicPartition]*partitionLog),
		notify:          make(chan struct{}),
		producedRecords: make([]ProducedRecord, 0),
		fetchCounts:     make(map[kafka.TopicPartition]int),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) logFor(tp kafka.TopicPartition) *partitionLog {
	l, ok := c.logs[tp]
	if !ok {
		l = &partitionLog{}
		c.logs[tp] = l
	}
	return l
}

// AddRecords appends records to a topic-partition log.
// Records without an offset continue from the end of the log.
func (c *Client) AddRecords(topic string, partition int32, records ...kafka.ConsumerRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tp := kafka.TopicPartition{Topic: topic, Partition: partition}
	l := c.logFor(tp)

	next := int64(0)
	if len(l.records) > 0 {
		next = l.records[len(l.records)-1].Offset + 1
	} else if l.retained != nil {
		next = l.retained.Min
	}

	for i := range records {
		records[i].Topic = topic
		records[i].Partition = partition
		if records[i].Offset < next {
			records[i].Offset = next
		}
		next = records[i].Offset + 1
	}

	l.records = append(l.records, records...)

	close(c.notify)
	c.notify = make(chan struct{})
}

// SetRetainedRange overrides the offset range reported by ListOffsets and drops
// records below min, as broker-side compaction would.
func (c *Client) SetRetainedRange(topic string, partition int32, min, max int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tp := kafka.TopicPartition{Topic: topic, Partition: partition}
	l := c.logFor(tp)
	l.retained = &kafka.OffsetRange{TopicPartition: tp, Min: min, Max: max}

	kept := l.records[:0]
	for _, r := range l.records {
		if r.Offset >= min {
			kept = append(kept, r)
		}
	}
	l.records = kept
}

func (c *Client) Consume(tp kafka.TopicPartition, offset int64) (kafka.PartitionConsumer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, kafka.NewFatalError(fmt.Errorf("client closed"))
	}

	if c.consumeFn != nil {
		if err := c.consumeFn(tp); err != nil {
			return nil, err
		}
	}

	c.consumeCalls = append(c.consumeCalls, ConsumeCall{TopicPartition: tp, Offset: offset})

	pc := &partitionConsumer{client: c, tp: tp, position: offset}
	c.consumers = append(c.consumers, pc)

	return pc, nil
}

func (c *Client) ListOffsets(_ context.Context, partitions []kafka.TopicPartition) ([]kafka.OffsetRange, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.listErr != nil {
		if err := c.listErr(); err != nil {
			return nil, err
		}
	}

	ranges := make([]kafka.OffsetRange, 0, len(partitions))
	for _, tp := range partitions {
		l, ok := c.logs[tp]
		if !ok {
			ranges = append(ranges, kafka.OffsetRange{TopicPartition: tp})
			continue
		}
		ranges = append(ranges, l.rangeFor(tp))
	}

	return ranges, nil
}

// Send produces a record to the specified topic.
// The record is stored internally and can be verified using ProducedRecords().
func (c *Client) Send(ctx context.Context, topic string, key, value []byte, headers []kafka.Header) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sendErr != nil {
		if err := c.sendErr(topic, key, value); err != nil {
			return err
		}
	}

	headersCopy := make([]kafka.Header, len(headers))
	for i, h := range headers {
		v := make([]byte, len(h.Value))
		copy(v, h.Value)
		headersCopy[i] = kafka.Header{Key: h.Key, Value: v}
	}

	keyCopy := make([]byte, len(key))
	copy(keyCopy, key)

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	c.producedRecords = append(
		c.producedRecords, ProducedRecord{
			Topic:   topic,
			Key:     keyCopy,
			Value:   valueCopy,
			Headers: headersCopy,
		},
	)

	return nil
}

// Flush is a no-op for the mock client since Send is synchronous.
// It respects context cancellation for realistic behavior.
func (c *Client) Flush(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// Ping checks if the mock client is operational.
// Returns pingErr if configured, otherwise returns nil.
func (c *Client) Ping(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.pingErr
}

// Close marks the client as closed.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
}

type partitionConsumer struct {
	client   *Client
	tp       kafka.TopicPartition
	position int64

	mu     sync.Mutex
	closed bool
}

func (p *partitionConsumer) Fetch(ctx context.Context, timeout time.Duration) (kafka.ConsumerRecord, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		rec, ok, wait, err := p.tryFetch()
		if err != nil || ok {
			return rec, ok, err
		}

		select {
		case <-ctx.Done():
			return kafka.ConsumerRecord{}, false, nil
		case <-timer.C:
			return kafka.ConsumerRecord{}, false, nil
		case <-wait:
		}
	}
}

func (p *partitionConsumer) tryFetch() (kafka.ConsumerRecord, bool, <-chan struct{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := p.client
	c.mu.Lock()
	defer c.mu.Unlock()

	if p.closed {
		return kafka.ConsumerRecord{}, false, nil, kafka.NewFatalError(fmt.Errorf("consumer for %s closed", p.tp))
	}

	c.fetchCounts[p.tp]++

	if c.fetchErr != nil {
		if err := c.fetchErr(p.tp); err != nil {
			return kafka.ConsumerRecord{}, false, nil, err
		}
	}

	if l, ok := c.logs[p.tp]; ok {
		for _, r := range l.records {
			if r.Offset >= p.position {
				p.position = r.Offset + 1
				return r.Copy(), true, nil, nil
			}
		}
	}

	return kafka.ConsumerRecord{}, false, c.notify, nil
}

func (p *partitionConsumer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
}

// SetSendError configures an error to be returned on all Send calls.
// Pass nil to clear the error.
func (c *Client) SetSendError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		c.sendErr = nil
	} else {
		c.sendErr = func(string, []byte, []byte) error { return err }
	}
}

// SetSendErrorFunc configures a function to determine Send errors.
// The function receives the topic, key, and value and can return an error conditionally.
func (c *Client) SetSendErrorFunc(fn func(topic string, key, value []byte) error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sendErr = fn
}

// SetFetchError configures an error to be returned on all Fetch calls.
// Pass nil to clear the error.
func (c *Client) SetFetchError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		c.fetchErr = nil
	} else {
		c.fetchErr = func(kafka.TopicPartition) error { return err }
	}
}

// SetFetchErrorFunc configures a function to determine Fetch errors per partition.
func (c *Client) SetFetchErrorFunc(fn func(tp kafka.TopicPartition) error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fetchErr = fn
}

// SetListOffsetsError configures an error to be returned by ListOffsets.
func (c *Client) SetListOffsetsError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		c.listErr = nil
	} else {
		c.listErr = func() error { return err }
	}
}

// SetConsumeErrorFunc configures a function to fail opening partition consumers.
func (c *Client) SetConsumeErrorFunc(fn func(tp kafka.TopicPartition) error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consumeFn = fn
}

// SetPingError configures an error to be returned by Ping.
func (c *Client) SetPingError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pingErr = err
}

// ProducedRecords returns a copy of all records that have been sent via Send.
func (c *Client) ProducedRecords() []ProducedRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]ProducedRecord, len(c.producedRecords))
	copy(result, c.producedRecords)
	return result
}

// ProducedRecordsForTopic returns all records produced to a specific topic.
func (c *Client) ProducedRecordsForTopic(topic string) []ProducedRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []ProducedRecord
	for _, r := range c.producedRecords {
		if r.Topic == topic {
			result = append(result, r)
		}
	}
	return result
}

// ConsumeCalls returns every Consume call in order.
func (c *Client) ConsumeCalls() []ConsumeCall {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]ConsumeCall, len(c.consumeCalls))
	copy(result, c.consumeCalls)
	return result
}

// FetchCount returns how many Fetch attempts reached the broker for a partition.
func (c *Client) FetchCount(topic string, partition int32) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.fetchCounts[kafka.TopicPartition{Topic: topic, Partition: partition}]
}

// OpenConsumers returns the number of partition consumers not yet closed.
func (c *Client) OpenConsumers() int {
	c.mu.RLock()
	consumers := make([]*partitionConsumer, len(c.consumers))
	copy(consumers, c.consumers)
	c.mu.RUnlock()

	open := 0
	for _, pc := range consumers {
		pc.mu.Lock()
		if !pc.closed {
			open++
		}
		pc.mu.Unlock()
	}
	return open
}

// IsClosed returns whether Close has been called.
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.closed
}
