// Package notification publishes account notifications, sync completion
// events and dispatched records to Kafka.
package notification

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/klevu/module-m2-indexing-sub002/pkg/kafka"
	"github.com/klevu/module-m2-indexing-sub002/pkg/metrics"
	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/tracing"
)

const (
	EventNotificationUpserted = "notification.upserted"
	EventNotificationDeleted  = "notification.deleted"
	EventSyncCompleted        = "sync.orchestration_completed"
	EventRecordDispatched     = "record.dispatched"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, messages ...kafka.Message) error
}

// Topics names the topic of each event family.
type Topics struct {
	Notifications string `mapstructure:"notifications"`
	SyncEvents    string `mapstructure:"sync_events"`
	Records       string `mapstructure:"records"`
}

func DefaultTopics() Topics {
	return Topics{
		Notifications: "indexing.notifications",
		SyncEvents:    "indexing.sync-events",
		Records:       "indexing.records",
	}
}

// DeletedNotification is the payload of notification.deleted.
type DeletedNotification struct {
	Type      string    `json:"type"`
	APIKey    string    `json:"api_key"`
	Timestamp time.Time `json:"timestamp"`
}

// KafkaNotifier raises and clears notifications as Kafka events keyed by
// notification type, so a compacted topic keeps the latest state.
type KafkaNotifier struct {
	publisher Publisher
	topic     string
	logger    ectologger.Logger
	now       func() time.Time
}

func NewKafkaNotifier(publisher Publisher, topic string, logger ectologger.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		publisher: publisher,
		topic:     topic,
		logger:    logger,
		now:       time.Now,
	}
}

func (n *KafkaNotifier) Upsert(ctx context.Context, notification models.Notification) error {
	ctx, span := tracing.StartSpan(ctx, "KafkaNotifier.Upsert")
	defer span.End()

	if notification.Timestamp.IsZero() {
		notification.Timestamp = n.now().UTC()
	}
	err := n.publisher.Publish(ctx, kafka.Message{
		Topic:     n.topic,
		Key:       notification.Type,
		EventType: EventNotificationUpserted,
		Payload:   notification,
		Headers:   map[string]string{"api_key": notification.APIKey},
	})
	if err != nil {
		n.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"notification_type": notification.Type,
			"api_key":           notification.APIKey,
		}).Error("Failed to publish notification")
		return err
	}
	metrics.NotificationsPublished.WithLabelValues(EventNotificationUpserted).Inc()
	return nil
}

func (n *KafkaNotifier) Delete(ctx context.Context, notificationType, apiKey string) error {
	ctx, span := tracing.StartSpan(ctx, "KafkaNotifier.Delete")
	defer span.End()

	err := n.publisher.Publish(ctx, kafka.Message{
		Topic:     n.topic,
		Key:       notificationType,
		EventType: EventNotificationDeleted,
		Payload:   DeletedNotification{Type: notificationType, APIKey: apiKey, Timestamp: n.now().UTC()},
		Headers:   map[string]string{"api_key": apiKey},
	})
	if err != nil {
		n.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"notification_type": notificationType,
			"api_key":           apiKey,
		}).Error("Failed to publish notification removal")
		return err
	}
	metrics.NotificationsPublished.WithLabelValues(EventNotificationDeleted).Inc()
	return nil
}
