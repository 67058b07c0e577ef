package worker

import (
	"context"
	"log"
	"strings"

	"storefront-client/internal/broker"
	"storefront-client/internal/cache"
	"storefront-client/internal/models"
)

// EventStore tracks which events have already been applied, so
// redelivered messages do not invalidate the cache twice.
type EventStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// InvalidationWorker consumes storefront events from other instances
// and drops the matching cache entries locally.
type InvalidationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	cache        *cache.Cache
	store        EventStore
	instanceID   string
}

// NewInvalidationWorker creates a new invalidation worker
func NewInvalidationWorker(
	consumer *broker.Consumer,
	c *cache.Cache,
	store EventStore,
	instanceID string,
) *InvalidationWorker {
	w := &InvalidationWorker{
		consumer:   consumer,
		cache:      c,
		store:      store,
		instanceID: instanceID,
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnCacheInvalidated(w.handleCacheInvalidated)
	eventHandler.OnOrderPlaced(w.handleOrderPlaced)
	eventHandler.OnMutationRolledBack(w.handleMutationRolledBack)
	w.eventHandler = eventHandler

	return w
}

func (w *InvalidationWorker) handleCacheInvalidated(ctx context.Context, event *models.CacheInvalidatedEvent) error {
	// Our own publishes already invalidated locally before the event
	// went out.
	if event.InstanceID == w.instanceID {
		return nil
	}

	if w.store != nil {
		processed, err := w.store.IsEventProcessed(ctx, event.EventID)
		if err != nil {
			log.Printf("Failed to check event %s: %v", event.EventID, err)
		} else if processed {
			return nil
		}
	}

	// Entries ending in ":" are key-family prefixes, the rest are exact
	// keys; the publisher mixes both in one event.
	for _, key := range event.Keys {
		if strings.HasSuffix(key, ":") {
			w.cache.InvalidatePrefix(key)
		} else {
			w.cache.Invalidate(key)
		}
	}
	log.Printf("Invalidated %d cache keys from instance %s", len(event.Keys), event.InstanceID)

	if w.store != nil {
		if err := w.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
			log.Printf("Failed to mark event %s processed: %v", event.EventID, err)
		}
	}

	return nil
}

func (w *InvalidationWorker) handleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	if event.InstanceID == w.instanceID {
		return nil
	}

	log.Printf("Order %s placed elsewhere (total %.2f, %d items)", event.OrderID, event.Total, event.ItemsCount)
	return nil
}

func (w *InvalidationWorker) handleMutationRolledBack(_ context.Context, event *models.MutationRolledBackEvent) error {
	if event.InstanceID == w.instanceID {
		return nil
	}

	log.Printf("Mutation %s (%s on %s) rolled back on instance %s: %s",
		event.Token, event.Kind, event.TargetID, event.InstanceID, event.Reason)
	return nil
}

// Start starts the worker
func (w *InvalidationWorker) Start(ctx context.Context) error {
	log.Println("Starting invalidation worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *InvalidationWorker) Stop() error {
	log.Println("Stopping invalidation worker...")
	return w.consumer.Close()
}
