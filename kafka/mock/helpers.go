package mockkafka

import (
	"strconv"
	"time"

	"github.com/hugolhafner/go-tasks/kafka"
)

// SimpleRecord creates a ConsumerRecord with just key and value as strings.
// Topic, partition and offset are assigned by AddRecords.
func SimpleRecord(key, value string) kafka.ConsumerRecord {
	return kafka.ConsumerRecord{
		Key:       []byte(key),
		Value:     []byte(value),
		Timestamp: time.Now(),
	}
}

// SimpleRecords creates multiple ConsumerRecords from key-value pairs.
func SimpleRecords(keyValuePairs ...string) []kafka.ConsumerRecord {
	if len(keyValuePairs)%2 != 0 {
		panic("SimpleRecords requires an even number of arguments (key-value pairs)")
	}

	records := make([]kafka.ConsumerRecord, 0, len(keyValuePairs)/2)
	for i := 0; i < len(keyValuePairs); i += 2 {
		records = append(records, SimpleRecord(keyValuePairs[i], keyValuePairs[i+1]))
	}
	return records
}

// JSONRecords creates records keyed "k<i>" whose values are the given JSON documents.
func JSONRecords(values ...string) []kafka.ConsumerRecord {
	records := make([]kafka.ConsumerRecord, len(values))
	for i, v := range values {
		records[i] = SimpleRecord("k"+strconv.Itoa(i), v)
	}
	return records
}
