package repository

import (
	"context"

	"ExoScan/internal/domain/models"
	domrepo "ExoScan/internal/domain/repository"
	pkgkafka "ExoScan/pkg/kafka"
)

// Header names set on every history event.
const (
	HeaderSource  = "source"
	HeaderBackend = "backend"
	HeaderOutcome = "outcome"
)

// BatchPublisher is the part of pkg/kafka.Producer the history publisher
// needs.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaHistoryPublisher emits evaluation records keyed by request id.
type KafkaHistoryPublisher struct {
	producer BatchPublisher
	topic    string
}

func NewKafkaHistoryPublisher(producer BatchPublisher, topic string) *KafkaHistoryPublisher {
	return &KafkaHistoryPublisher{producer: producer, topic: topic}
}

var _ domrepo.HistorySink = (*KafkaHistoryPublisher)(nil)

func (p *KafkaHistoryPublisher) Record(ctx context.Context, rec *models.EvaluationRecord) error {
	return p.RecordBatch(ctx, []*models.EvaluationRecord{rec})
}

func (p *KafkaHistoryPublisher) RecordBatch(ctx context.Context, recs []*models.EvaluationRecord) error {
	msgs := make([]pkgkafka.Message, 0, len(recs))
	for _, r := range recs {
		if r == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{
			Key:   []byte(r.RequestID),
			Value: r,
			Headers: map[string]string{
				HeaderSource:  r.Source,
				HeaderBackend: r.Backend,
				HeaderOutcome: outcome(r),
			},
		})
	}
	if len(msgs) == 0 {
		return nil
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaHistoryPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

func outcome(r *models.EvaluationRecord) string {
	if r.ErrorCode != "" {
		return "error"
	}
	return "ok"
}
