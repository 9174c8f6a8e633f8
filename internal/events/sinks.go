package events

import (
	"context"
	"encoding/json"
	"fmt"

	"marketplace-auth/internal/client"
	"marketplace-auth/internal/models"
)

type KafkaSink struct {
	producer *client.KafkaProducer
}

func NewKafkaSink(producer *client.KafkaProducer) *KafkaSink {
	return &KafkaSink{producer: producer}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Write(ctx context.Context, event models.AuthEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal auth event: %w", err)
	}
	return s.producer.ProduceMessage(ctx, s.producer.Topic(), []byte(event.Identifier), value, map[string]string{
		"event-type": string(event.Type),
		"event-id":   event.ID,
	})
}

// Recorder is satisfied by the scylla security event repository.
type Recorder interface {
	Record(ctx context.Context, event models.AuthEvent) error
}

type ScyllaSink struct {
	repo Recorder
}

func NewScyllaSink(repo Recorder) *ScyllaSink {
	return &ScyllaSink{repo: repo}
}

func (s *ScyllaSink) Name() string { return "scylla" }

func (s *ScyllaSink) Write(ctx context.Context, event models.AuthEvent) error {
	return s.repo.Record(ctx, event)
}

type ElasticsearchSink struct {
	es *client.ESClient
}

func NewElasticsearchSink(es *client.ESClient) *ElasticsearchSink {
	return &ElasticsearchSink{es: es}
}

func (s *ElasticsearchSink) Name() string { return "elasticsearch" }

func (s *ElasticsearchSink) Write(ctx context.Context, event models.AuthEvent) error {
	return s.es.IndexDocument(ctx, s.es.Index(), event.ID, event)
}

type ClickHouseSink struct {
	ch     *client.ClickHouseClient
	insert string
}

// NewClickHouseSink creates the events table when missing.
func NewClickHouseSink(ctx context.Context, ch *client.ClickHouseClient) (*ClickHouseSink, error) {
	table := ch.Table()
	ddl := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            event_id String,
            event_type LowCardinality(String),
            identifier String,
            user_id String,
            otp_type LowCardinality(String),
            channel LowCardinality(String),
            outcome LowCardinality(String),
            remote_addr String,
            occurred_at DateTime64(3, 'UTC')
        ) ENGINE = MergeTree
        PARTITION BY toYYYYMM(occurred_at)
        ORDER BY (event_type, occurred_at)`, table)
	if err := ch.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create %s: %w", table, err)
	}
	return &ClickHouseSink{
		ch: ch,
		insert: fmt.Sprintf("INSERT INTO %s (event_id, event_type, identifier, user_id, otp_type, channel, outcome, remote_addr, occurred_at)",
			table),
	}, nil
}

func (s *ClickHouseSink) Name() string { return "clickhouse" }

func (s *ClickHouseSink) Write(ctx context.Context, event models.AuthEvent) error {
	return s.ch.BatchInsert(ctx, s.insert, [][]any{{
		event.ID,
		string(event.Type),
		event.Identifier,
		event.UserID,
		string(event.OTPType),
		string(event.Channel),
		event.Outcome,
		event.RemoteAddr,
		event.OccurredAt,
	}})
}
