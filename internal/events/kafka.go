package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes each event to the topic mapped for its type (or the
// type name itself), keyed by subject so one account's events stay ordered.
type KafkaPublisher struct {
	writer      *kafka.Writer
	topicByType map[Type]string
}

func NewKafkaPublisher(brokers []string, topicPrefix string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	topics := make(map[Type]string)
	for _, t := range []Type{SubOrderApproved, SubOrderRejected, WithdrawalSettled} {
		topics[t] = topicName(topicPrefix, t)
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topicByType: topics,
	}, nil
}

// topicName joins prefix and event type with a dot: "commentgig" and
// "sub_order.approved" give "commentgig.sub_order.approved".
func topicName(prefix string, t Type) string {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		return string(t)
	}
	return prefix + "." + string(t)
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	topic := string(e.Type)
	if mapped, ok := p.topicByType[e.Type]; ok && mapped != "" {
		topic = mapped
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(e.Subject.String()),
		Value: payload,
		Time:  e.OccurredAt,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
