package repository

import (
	"context"

	"Socially/pkg/queue"

	"github.com/segmentio/kafka-go"
)

// messagePublisher is the part of *pkgkafka.Producer the sink uses.
type messagePublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}, headers ...kafka.Header) error
}

// KafkaDeadLetterSink publishes dead letters to a Kafka topic keyed by
// queue/job so operators can inspect them and replay them.
type KafkaDeadLetterSink struct {
	producer messagePublisher
	topic    string
}

func NewKafkaDeadLetterSink(producer messagePublisher, topic string) *KafkaDeadLetterSink {
	return &KafkaDeadLetterSink{producer: producer, topic: topic}
}

func (s *KafkaDeadLetterSink) DeadLetter(ctx context.Context, dl *queue.DeadLetter) error {
	return s.producer.Publish(ctx, s.topic, []byte(dl.Job.Queue+"/"+dl.Job.Name), dl,
		kafka.Header{Key: "queue", Value: []byte(dl.Job.Queue)},
		kafka.Header{Key: "job", Value: []byte(dl.Job.Name)},
	)
}

var _ queue.DeadLetterSink = (*KafkaDeadLetterSink)(nil)
