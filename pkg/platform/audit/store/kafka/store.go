// Package kafka publishes audit events to a Kafka topic as JSON records keyed
// by request id, so every event of one screening lands on one partition.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "screener/pkg/platform/audit"
)

const DefaultTopic = "screening.audit"

// Store implements audit.Store with synchronous produces.
type Store struct {
	client *kgo.Client
	topic  string
}

// New connects a producer to brokers. Close releases it.
func New(brokers []string, topic string, opts ...kgo.Opt) (*Store, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka audit store: no brokers")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Store{client: client, topic: topic}, nil
}

// Topic returns the topic events are produced to.
func (s *Store) Topic() string {
	return s.topic
}

// EnsureTopic creates the topic if it is missing.
func (s *Store) EnsureTopic(ctx context.Context, partitions int32, replication int16) error {
	adm := kadm.NewClient(s.client)
	resp, err := adm.CreateTopic(ctx, partitions, replication, nil, s.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", s.topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", s.topic, resp.Err)
	}
	return nil
}

// Ping checks broker connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Append produces event and waits for the broker acknowledgement.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	key := event.RequestID
	if key == "" {
		key = event.ID.String()
	}
	record := &kgo.Record{
		Key:   []byte(key),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(event.Action)},
			{Key: "category", Value: []byte(event.Category)},
		},
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.client.Close()
}
