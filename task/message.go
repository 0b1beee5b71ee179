package task

import (
	"encoding/json"
	"time"

	"github.com/hugolhafner/go-tasks/kafka"
)

// SourceMessage is one consumed record with its payload parsed as JSON.
type SourceMessage struct {
	Value       any
	SourceTopic string
	Key         []byte
	Partition   int32
	Offset      int64
	Timestamp   time.Time

	raw []byte
}

// NewSourceMessage parses the record value. An empty value parses to nil.
func NewSourceMessage(rec kafka.ConsumerRecord) (SourceMessage, error) {
	msg := SourceMessage{
		SourceTopic: rec.Topic,
		Key:         rec.Key,
		Partition:   rec.Partition,
		Offset:      rec.Offset,
		Timestamp:   rec.Timestamp,
		raw:         rec.Value,
	}

	if len(rec.Value) == 0 {
		return msg, nil
	}

	if err := json.Unmarshal(rec.Value, &msg.Value); err != nil {
		return SourceMessage{}, NewSerdeError(err, rec.Topic, rec.Offset)
	}

	return msg, nil
}

// Decode unmarshals the raw payload into v.
func (m SourceMessage) Decode(v any) error {
	return json.Unmarshal(m.raw, v)
}
