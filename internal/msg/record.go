package msg

import "github.com/twmb/franz-go/pkg/kgo"

// Record represents a consumed Kafka record
type Record struct {
	Topic     string
	Key       string
	Value     []byte
	Partition int32
	Offset    int64
	Timestamp int64
}

func fromKgo(r *kgo.Record) Record {
	return Record{
		Topic:     r.Topic,
		Key:       string(r.Key),
		Value:     r.Value,
		Partition: r.Partition,
		Offset:    r.Offset,
		Timestamp: r.Timestamp.UnixMilli(),
	}
}
