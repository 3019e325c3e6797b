package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/bakery-orders/internal/observability"
)

type KafkaPublisher struct {
	orders    *kafka.Writer
	locations *kafka.Writer
	timeout   time.Duration
}

func NewKafkaPublisher(brokers []string, orderTopic, locationTopic string) *KafkaPublisher {
	return &KafkaPublisher{
		orders:    newWriter(brokers, orderTopic),
		locations: newWriter(brokers, locationTopic),
		timeout:   2 * time.Second,
	}
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	})
}

// PublishOrder keys by order id so every event of an order lands on one partition.
func (k *KafkaPublisher) PublishOrder(ctx context.Context, ev OrderEvent) error {
	return k.write(ctx, k.orders, ev.OrderID, ev)
}

// PublishLocation keys by driver id; the consumer keeps only the latest ping.
func (k *KafkaPublisher) PublishLocation(ctx context.Context, ev LocationEvent) error {
	return k.write(ctx, k.locations, ev.DriverID, ev)
}

func (k *KafkaPublisher) write(ctx context.Context, w *kafka.Writer, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	err = w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: b})
	result := "ok"
	if err != nil {
		result = "error"
	}
	observability.EventsPublished.WithLabelValues(w.Topic, result).Inc()
	return err
}

func (k *KafkaPublisher) Close() error {
	return errors.Join(k.orders.Close(), k.locations.Close())
}
