package notification

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/klevu/module-m2-indexing-sub002/pkg/kafka"
	"github.com/klevu/module-m2-indexing-sub002/pkg/metrics"
	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
)

// SyncEventPublisher publishes sync.orchestration_completed once a sync
// orchestration has finished. Publish failures are logged only.
type SyncEventPublisher struct {
	publisher Publisher
	topic     string
	logger    ectologger.Logger
}

func NewSyncEventPublisher(publisher Publisher, topic string, logger ectologger.Logger) *SyncEventPublisher {
	return &SyncEventPublisher{publisher: publisher, topic: topic, logger: logger}
}

func (p *SyncEventPublisher) OnComplete(ctx context.Context, event models.SyncCompletedEvent) {
	err := p.publisher.Publish(ctx, kafka.Message{
		Topic:     p.topic,
		Key:       event.ID,
		EventType: EventSyncCompleted,
		Payload:   event,
		Headers:   map[string]string{"kind": event.Kind},
	})
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_id": event.ID,
			"kind":     event.Kind,
		}).Error("Failed to publish sync completed event")
		return
	}
	metrics.NotificationsPublished.WithLabelValues(EventSyncCompleted).Inc()
}
