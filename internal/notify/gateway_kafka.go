package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer is the subset of *kgo.Client the gateway needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// pushRecord is the value written for each token. A downstream push worker
// owns the device-platform delivery.
type pushRecord struct {
	Token string            `json:"token"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// KafkaGateway publishes one record per device token, keyed by token so a
// device's messages stay ordered within a partition.
type KafkaGateway struct {
	producer Producer
	topic    string
}

func NewKafkaGateway(producer Producer, topic string) *KafkaGateway {
	return &KafkaGateway{producer: producer, topic: topic}
}

// NewKafkaClient builds a franz-go client producing to topic by default.
func NewKafkaClient(brokers []string, topic string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// EnsureTopic creates topic when it does not exist yet.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, partitions, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

func (g *KafkaGateway) Dispatch(ctx context.Context, msg Message) (Result, error) {
	records := make([]*kgo.Record, 0, len(msg.Tokens))
	for _, token := range msg.Tokens {
		value, err := json.Marshal(pushRecord{Token: token, Title: msg.Title, Body: msg.Body, Data: msg.Data})
		if err != nil {
			return resultOf(msg.Tokens, err), fmt.Errorf("encode push record: %w", err)
		}
		records = append(records, &kgo.Record{Topic: g.topic, Key: []byte(token), Value: value})
	}
	if len(records) == 0 {
		return Result{}, nil
	}

	results := g.producer.ProduceSync(ctx, records...)
	res := Result{Deliveries: make([]Delivery, 0, len(results))}
	for _, r := range results {
		res.Deliveries = append(res.Deliveries, Delivery{Token: string(r.Record.Key), Err: r.Err})
	}
	if res.SuccessCount() == 0 {
		return res, fmt.Errorf("produce push records: %w", results.FirstErr())
	}
	return res, nil
}
