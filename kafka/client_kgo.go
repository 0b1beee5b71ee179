package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hugolhafner/go-tasks/logger"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/multierr"
)

var _ Client = (*KgoClient)(nil)

type KgoClientConfig struct {
	BootstrapServers []string
	ClientID         string
	MaxPollRecords   int
	FetchMaxWait     time.Duration
	ProduceTimeout   time.Duration

	// ExtraOpts are appended to every kgo client this client creates (TLS, SASL, ...).
	ExtraOpts []kgo.Opt

	Logger logger.Logger
}

func defaultConfig() KgoClientConfig {
	return KgoClientConfig{
		BootstrapServers: []string{"localhost:9092"},
		ClientID:         "go-tasks",
		MaxPollRecords:   100,
		FetchMaxWait:     500 * time.Millisecond,
		ProduceTimeout:   30 * time.Second,
		Logger:           logger.NewNoopLogger(),
	}
}

type KgoOption func(*KgoClientConfig)

func WithBootstrapServers(servers []string) KgoOption {
	return func(cfg *KgoClientConfig) {
		cfg.BootstrapServers = servers
	}
}

func WithClientID(id string) KgoOption {
	return func(cfg *KgoClientConfig) {
		cfg.ClientID = id
	}
}

func WithMaxPollRecords(n int) KgoOption {
	return func(cfg *KgoClientConfig) {
		if n > 0 {
			cfg.MaxPollRecords = n
		}
	}
}

func WithFetchMaxWait(d time.Duration) KgoOption {
	return func(cfg *KgoClientConfig) {
		cfg.FetchMaxWait = d
	}
}

func WithKgoOpts(opts ...kgo.Opt) KgoOption {
	return func(cfg *KgoClientConfig) {
		cfg.ExtraOpts = append(cfg.ExtraOpts, opts...)
	}
}

func WithLogger(l logger.Logger) KgoOption {
	return func(cfg *KgoClientConfig) {
		cfg.Logger = l.
			With("client", "kgo")
	}
}

// KgoClient produces and answers offset queries over one shared franz-go client, and
// opens a dedicated franz-go client for every partition consumer so that readers never
// contend on a single poll loop.
type KgoClient struct {
	client *kgo.Client
	admin  *kadm.Client
	config KgoClientConfig

	mu        sync.Mutex
	consumers map[*kgoPartitionConsumer]struct{}
	closed    bool

	logger logger.Logger
}

func NewKgoClient(opts ...KgoOption) (*KgoClient, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	kc := &KgoClient{
		config:    cfg,
		consumers: make(map[*kgoPartitionConsumer]struct{}),
		logger:    cfg.Logger,
	}

	client, err := kgo.NewClient(kc.baseOpts()...)
	if err != nil {
		return nil, fmt.Errorf("create kgo client: %w", err)
	}

	kc.client = client
	kc.admin = kadm.NewClient(client)

	return kc, nil
}

func (k *KgoClient) baseOpts() []kgo.Opt {
	opts := []kgo.Opt{
		kgo.SeedBrokers(k.config.BootstrapServers...),
		kgo.ClientID(k.config.ClientID),
		kgo.WithLogger(newKgoLogger(k.logger)),
		kgo.FetchMaxWait(k.config.FetchMaxWait),
	}

	return append(opts, k.config.ExtraOpts...)
}

func (k *KgoClient) Consume(tp TopicPartition, offset int64) (PartitionConsumer, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil, NewFatalError(kgo.ErrClientClosed)
	}

	opts := append(
		k.baseOpts(),
		kgo.ConsumePartitions(
			map[string]map[int32]kgo.Offset{
				tp.Topic: {tp.Partition: kgo.NewOffset().At(offset)},
			},
		),
	)

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create consumer for %s: %w", tp, err)
	}

	c := &kgoPartitionConsumer{
		tp:      tp,
		client:  client,
		maxPoll: k.config.MaxPollRecords,
		parent:  k,
	}
	k.consumers[c] = struct{}{}

	k.logger.Debug("Opened partition consumer", "topic", tp.Topic, "partition", tp.Partition, "offset", offset)

	return c, nil
}

func (k *KgoClient) ListOffsets(ctx context.Context, partitions []TopicPartition) ([]OffsetRange, error) {
	topics := uniqueTopics(partitions)

	starts, err := k.admin.ListStartOffsets(ctx, topics...)
	if err != nil {
		return nil, classify(fmt.Errorf("list start offsets: %w", err))
	}

	ends, err := k.admin.ListEndOffsets(ctx, topics...)
	if err != nil {
		return nil, classify(fmt.Errorf("list end offsets: %w", err))
	}

	ranges := make([]OffsetRange, 0, len(partitions))
	for _, tp := range partitions {
		start, ok := starts.Lookup(tp.Topic, tp.Partition)
		if !ok {
			return nil, NewFatalError(fmt.Errorf("partition %s not found", tp))
		}
		if start.Err != nil {
			return nil, classify(fmt.Errorf("start offset for %s: %w", tp, start.Err))
		}

		end, ok := ends.Lookup(tp.Topic, tp.Partition)
		if !ok {
			return nil, NewFatalError(fmt.Errorf("partition %s not found", tp))
		}
		if end.Err != nil {
			return nil, classify(fmt.Errorf("end offset for %s: %w", tp, end.Err))
		}

		ranges = append(ranges, OffsetRange{TopicPartition: tp, Min: start.Offset, Max: end.Offset})
	}

	return ranges, nil
}

func (k *KgoClient) Send(ctx context.Context, topic string, key, value []byte, headers []Header) error {
	record := &kgo.Record{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Headers: convertToKgoHeaders(headers),
	}

	ctx, cancel := context.WithTimeout(ctx, k.config.ProduceTimeout)
	defer cancel()

	k.logger.Debug("Sending record", "topic", topic, "key", string(key))

	results := k.client.ProduceSync(ctx, record)
	return classify(results.FirstErr())
}

func (k *KgoClient) Flush(ctx context.Context) error {
	return k.client.Flush(ctx)
}

func (k *KgoClient) Ping(ctx context.Context) error {
	return k.client.Ping(ctx)
}

// Close closes every partition consumer still open and then the shared client.
func (k *KgoClient) Close() {
	k.mu.Lock()
	k.closed = true
	consumers := make([]*kgoPartitionConsumer, 0, len(k.consumers))
	for c := range k.consumers {
		consumers = append(consumers, c)
	}
	k.mu.Unlock()

	for _, c := range consumers {
		c.Close()
	}

	k.client.Close()
}

func (k *KgoClient) release(c *kgoPartitionConsumer) {
	k.mu.Lock()
	defer k.mu.Unlock()

	delete(k.consumers, c)
}

type kgoPartitionConsumer struct {
	tp      TopicPartition
	client  *kgo.Client
	maxPoll int
	parent  *KgoClient

	buf []*kgo.Record

	closeOnce sync.Once
}

func (c *kgoPartitionConsumer) Fetch(ctx context.Context, timeout time.Duration) (ConsumerRecord, bool, error) {
	if r, ok := c.next(); ok {
		return r, true, nil
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fetches := c.client.PollRecords(pollCtx, c.maxPoll)
	if fetches.IsClientClosed() {
		return ConsumerRecord{}, false, NewFatalError(kgo.ErrClientClosed)
	}

	fetches.EachRecord(
		func(r *kgo.Record) {
			c.buf = append(c.buf, r)
		},
	)

	// records already handed out by kgo must not be dropped because a sibling fetch failed
	if r, ok := c.next(); ok {
		return r, true, nil
	}

	var errs error
	for _, fe := range fetches.Errors() {
		if errors.Is(fe.Err, context.DeadlineExceeded) || errors.Is(fe.Err, context.Canceled) {
			continue
		}
		errs = multierr.Append(errs, classify(fmt.Errorf("fetch %s: %w", c.tp, fe.Err)))
	}

	if errs != nil {
		for _, err := range multierr.Errors(errs) {
			if IsFatal(err) {
				return ConsumerRecord{}, false, err
			}
		}
		return ConsumerRecord{}, false, errs
	}

	return ConsumerRecord{}, false, nil
}

func (c *kgoPartitionConsumer) next() (ConsumerRecord, bool) {
	if len(c.buf) == 0 {
		return ConsumerRecord{}, false
	}

	r := c.buf[0]
	c.buf[0] = nil
	c.buf = c.buf[1:]

	return convertRecord(r), true
}

func (c *kgoPartitionConsumer) Close() {
	c.closeOnce.Do(
		func() {
			c.client.Close()
			c.parent.release(c)
		},
	)
}

func convertRecord(r *kgo.Record) ConsumerRecord {
	return ConsumerRecord{
		Topic:       r.Topic,
		Partition:   r.Partition,
		Offset:      r.Offset,
		Key:         r.Key,
		Value:       r.Value,
		Headers:     convertFromKgoHeaders(r.Headers),
		Timestamp:   r.Timestamp,
		LeaderEpoch: r.LeaderEpoch,
	}
}

func convertFromKgoHeaders(headers []kgo.RecordHeader) []Header {
	converted := make([]Header, len(headers))
	for i, h := range headers {
		converted[i] = Header{Key: h.Key, Value: h.Value}
	}
	return converted
}

func convertToKgoHeaders(headers []Header) []kgo.RecordHeader {
	kgoHeaders := make([]kgo.RecordHeader, len(headers))
	for i, h := range headers {
		kgoHeaders[i] = kgo.RecordHeader{Key: h.Key, Value: h.Value}
	}
	return kgoHeaders
}

func uniqueTopics(tps []TopicPartition) []string {
	seen := make(map[string]struct{}, len(tps))
	topics := make([]string, 0, len(tps))
	for _, tp := range tps {
		if _, ok := seen[tp.Topic]; ok {
			continue
		}
		seen[tp.Topic] = struct{}{}
		topics = append(topics, tp.Topic)
	}
	return topics
}
