package broker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"storefront-client/internal/models"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer   *Producer
	instanceID string
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer, instanceID string) *EventPublisher {
	return &EventPublisher{producer: producer, instanceID: instanceID}
}

func (ep *EventPublisher) base(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:    uuid.New().String(),
		EventType:  eventType,
		InstanceID: ep.instanceID,
		Timestamp:  time.Now().UTC(),
	}
}

// PublishCacheInvalidated publishes a CacheInvalidated event
func (ep *EventPublisher) PublishCacheInvalidated(ctx context.Context, keys []string) error {
	event := &models.CacheInvalidatedEvent{
		BaseEvent: ep.base(models.EventTypeCacheInvalidated),
		Keys:      keys,
	}
	return ep.producer.PublishEvent(ctx, ep.instanceID, event)
}

// PublishOrderPlaced publishes an OrderPlaced event
func (ep *EventPublisher) PublishOrderPlaced(ctx context.Context, orderID string, total float64, itemsCount int) error {
	event := &models.OrderPlacedEvent{
		BaseEvent:  ep.base(models.EventTypeOrderPlaced),
		OrderID:    orderID,
		Total:      total,
		ItemsCount: itemsCount,
	}
	return ep.producer.PublishEvent(ctx, "order-"+orderID, event)
}

// PublishMutationRolledBack publishes a MutationRolledBack event
func (ep *EventPublisher) PublishMutationRolledBack(ctx context.Context, token, kind, targetID, reason string) error {
	event := &models.MutationRolledBackEvent{
		BaseEvent: ep.base(models.EventTypeMutationRolledBack),
		Token:     token,
		Kind:      kind,
		TargetID:  targetID,
		Reason:    reason,
	}
	return ep.producer.PublishEvent(ctx, "mutation-"+token, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	handlers map[string]func(ctx context.Context, data []byte) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{
		handlers: make(map[string]func(ctx context.Context, data []byte) error),
	}
}

// OnCacheInvalidated registers a handler for CacheInvalidated events
func (eh *EventHandler) OnCacheInvalidated(handler func(ctx context.Context, event *models.CacheInvalidatedEvent) error) {
	eh.handlers[models.EventTypeCacheInvalidated] = func(ctx context.Context, data []byte) error {
		var event models.CacheInvalidatedEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return err
		}
		return handler(ctx, &event)
	}
}

// OnOrderPlaced registers a handler for OrderPlaced events
func (eh *EventHandler) OnOrderPlaced(handler func(ctx context.Context, event *models.OrderPlacedEvent) error) {
	eh.handlers[models.EventTypeOrderPlaced] = func(ctx context.Context, data []byte) error {
		var event models.OrderPlacedEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return err
		}
		return handler(ctx, &event)
	}
}

// OnMutationRolledBack registers a handler for MutationRolledBack events
func (eh *EventHandler) OnMutationRolledBack(handler func(ctx context.Context, event *models.MutationRolledBackEvent) error) {
	eh.handlers[models.EventTypeMutationRolledBack] = func(ctx context.Context, data []byte) error {
		var event models.MutationRolledBackEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return err
		}
		return handler(ctx, &event)
	}
}

// HandleMessage routes a Kafka message to the registered handler
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var base models.BaseEvent
	if err := json.Unmarshal(msg.Value, &base); err != nil {
		log.Printf("Failed to unmarshal event envelope: %v", err)
		return nil
	}

	handler, ok := eh.handlers[base.EventType]
	if !ok {
		log.Printf("No handler registered for event type: %s", base.EventType)
		return nil
	}

	return handler(ctx, msg.Value)
}
