package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"account-service/internal/client"
	"account-service/internal/model"
	"account-service/internal/util"
)

// Publisher emits account lifecycle events. Implementations must be safe for
// concurrent use; publishing is fire-and-forget from the caller's view.
type Publisher interface {
	Publish(ctx context.Context, event *model.AccountEvent)
}

// KafkaPublisher writes account events to the configured topic, keyed by
// credential id so events for one account stay ordered within a partition.
type KafkaPublisher struct {
	producer *client.KafkaProducer
}

func NewKafkaPublisher(producer *client.KafkaProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event *model.AccountEvent) {
	if p == nil || p.producer == nil || event == nil {
		return
	}
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		util.Warn("failed to marshal account event",
			zap.String("type", event.Type),
			zap.Error(err))
		return
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := p.producer.ProduceMessage(publishCtx, []byte(event.CredentialID), payload); err != nil {
		util.Warn("failed to publish account event",
			zap.String("type", event.Type),
			zap.String("credential_id", event.CredentialID),
			zap.Error(err))
	}
}

// NopPublisher drops all events; used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *model.AccountEvent) {}
