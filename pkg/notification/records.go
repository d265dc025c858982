package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/klevu/module-m2-indexing-sub002/pkg/credentials"
	"github.com/klevu/module-m2-indexing-sub002/pkg/indexer"
	"github.com/klevu/module-m2-indexing-sub002/pkg/kafka"
	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/pipeline"
)

// RecordEvent is the payload of record.dispatched. A downstream connector
// turns it into the remote indexing call.
type RecordEvent struct {
	APIKey     string        `json:"api_key"`
	Action     models.Action `json:"action"`
	TargetType string        `json:"target_type"`
	Record     any           `json:"record"`
	Timestamp  time.Time     `json:"timestamp"`
}

// RecordPublisher hands mirror rows to the remote side through Kafka.
type RecordPublisher struct {
	publisher Publisher
	topic     string
	now       func() time.Time
}

func NewRecordPublisher(publisher Publisher, topic string) *RecordPublisher {
	return &RecordPublisher{publisher: publisher, topic: topic, now: time.Now}
}

func (p *RecordPublisher) publish(ctx context.Context, event RecordEvent) models.SyncResult {
	event.Timestamp = p.now().UTC()
	err := p.publisher.Publish(ctx, kafka.Message{
		Topic:     p.topic,
		Key:       fmt.Sprintf("%s:%s", event.APIKey, event.TargetType),
		EventType: EventRecordDispatched,
		Payload:   event,
		Headers: map[string]string{
			"api_key":     event.APIKey,
			"action":      event.Action.String(),
			"target_type": event.TargetType,
		},
	})
	if err != nil {
		return models.SyncResult{IsSuccess: false, Messages: []string{err.Error()}}
	}
	return models.SyncResult{IsSuccess: true, Messages: []string{}}
}

// EntityDispatcher is a pipeline dispatcher for entity rows. A failed
// publish fails the item, not the batch.
func (p *RecordPublisher) EntityDispatcher() pipeline.Dispatcher {
	return pipeline.DispatcherFunc(func(ctx context.Context, item pipeline.Item, pctx pipeline.Context) (models.SyncResult, error) {
		entity, ok := item.Record.(models.IndexingEntity)
		if !ok {
			return models.SyncResult{}, fmt.Errorf("expected models.IndexingEntity, received %T", item.Record)
		}
		apiKey := credentials.FromContext(pctx).APIKey
		if apiKey == "" {
			apiKey = entity.APIKey
		}
		return p.publish(ctx, RecordEvent{
			APIKey:     apiKey,
			Action:     entity.NextAction,
			TargetType: entity.TargetEntityType,
			Record:     entity,
		}), nil
	})
}

// AttributeSyncAction publishes attribute rows.
func (p *RecordPublisher) AttributeSyncAction() indexer.RemoteSyncAction {
	return indexer.RemoteSyncActionFunc(func(ctx context.Context, creds models.AccountCredentials, attribute models.IndexingAttribute, attributeType string) models.SyncResult {
		apiKey := creds.APIKey
		if apiKey == "" {
			apiKey = attribute.APIKey
		}
		return p.publish(ctx, RecordEvent{
			APIKey:     apiKey,
			Action:     attribute.NextAction,
			TargetType: attributeType,
			Record:     attribute,
		})
	})
}

const (
	EntityDispatcherName    = "kafka_entity"
	AttributeDispatcherName = "kafka_attribute"
)

// Register adds the Kafka dispatchers to a pipeline registry.
func (p *RecordPublisher) Register(r *pipeline.Registry) {
	r.RegisterDispatcher(EntityDispatcherName, p.EntityDispatcher())
	r.RegisterDispatcher(AttributeDispatcherName, indexer.AttributeDispatcher(p.AttributeSyncAction()))
}
