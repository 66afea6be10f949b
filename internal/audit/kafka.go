package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink mirrors audit entries to a Kafka topic for downstream compliance
// consumers. The postgres/memory store stays the source of truth; the mirror
// is best effort.
type KafkaSink struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafkaSink connects to the brokers and ensures the audit topic exists.
func NewKafkaSink(ctx context.Context, brokers []string, topic string, logger *slog.Logger) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	adm := kadm.NewClient(client)
	if _, err := adm.CreateTopic(ctx, 1, 1, nil, topic); err != nil {
		// Topic may already exist; anything else is fatal at startup.
		if exists, lerr := topicExists(ctx, adm, topic); lerr != nil || !exists {
			client.Close()
			return nil, fmt.Errorf("ensure audit topic %q: %w", topic, err)
		}
	}

	return &KafkaSink{client: client, topic: topic, logger: logger}, nil
}

func topicExists(ctx context.Context, adm *kadm.Client, topic string) (bool, error) {
	details, err := adm.ListTopics(ctx, topic)
	if err != nil {
		return false, err
	}
	return details.Has(topic), nil
}

// Publish produces one entry as JSON, keyed by master account for per-account
// ordering.
func (s *KafkaSink) Publish(ctx context.Context, entry Entry) error {
	payload, err := json.Marshal(kafkaPayload{
		ID:                entry.ID.String(),
		MasterAccountID:   entry.MasterAccountID,
		MasterAccountName: entry.MasterAccountName,
		CompanyID:         entry.CompanyID,
		ActionType:        string(entry.ActionType),
		ActionDescription: entry.ActionDescription,
		PerformedBy:       entry.PerformedBy,
		PerformedByName:   entry.PerformedByName,
		TargetEntity:      entry.TargetEntity,
		TargetEntityType:  entry.TargetEntityType,
		PreviousValue:     entry.PreviousValue,
		NewValue:          entry.NewValue,
		Timestamp:         entry.Timestamp.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(entry.MasterAccountID),
		Value: payload,
	}
	return s.client.ProduceSync(ctx, record).FirstErr()
}

func (s *KafkaSink) Close() {
	s.client.Close()
}

type kafkaPayload struct {
	ID                string `json:"id"`
	MasterAccountID   string `json:"master_account_id"`
	MasterAccountName string `json:"master_account_name,omitempty"`
	CompanyID         string `json:"company_id,omitempty"`
	ActionType        string `json:"action_type"`
	ActionDescription string `json:"action_description"`
	PerformedBy       string `json:"performed_by"`
	PerformedByName   string `json:"performed_by_name,omitempty"`
	TargetEntity      string `json:"target_entity"`
	TargetEntityType  string `json:"target_entity_type"`
	PreviousValue     string `json:"previous_value,omitempty"`
	NewValue          string `json:"new_value,omitempty"`
	Timestamp         string `json:"timestamp"`
}
