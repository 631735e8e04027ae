package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the kafka.Writer surface used by KafkaPublisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher publishes outcome events to a Kafka topic, keyed by saga id
// so per-saga ordering is preserved within a partition.
type KafkaPublisher struct {
	writer MessageWriter
}

// NewKafkaWriter builds a kafka.Writer for the given brokers and topic.
// An empty broker list yields nil, meaning Kafka publishing is disabled.
func NewKafkaWriter(brokersCSV, topic string) *kafka.Writer {
	var brokers []string
	for _, b := range strings.Split(brokersCSV, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil
	}
	if topic == "" {
		topic = "purchase-outcomes"
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

// NewKafkaPublisher constructs a publisher over the given writer.
func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// Publish writes the event as a JSON message.
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.SagaID),
		Value: data,
		Time:  time.Now().UTC(),
	})
}
