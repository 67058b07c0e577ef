package models

import "time"

// Event types
const (
	EventTypeCacheInvalidated   = "CACHE_INVALIDATED"
	EventTypeOrderPlaced        = "ORDER_PLACED"
	EventTypeMutationRolledBack = "MUTATION_ROLLED_BACK"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	InstanceID string    `json:"instance_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// CacheInvalidatedEvent fans a local invalidation out to sibling instances
// so their query caches drop the same keys.
type CacheInvalidatedEvent struct {
	BaseEvent
	Keys []string `json:"keys"`
}

// OrderPlacedEvent published when a checkout succeeds
type OrderPlacedEvent struct {
	BaseEvent
	OrderID    string  `json:"order_id"`
	Total      float64 `json:"total"`
	ItemsCount int     `json:"items_count"`
}

// MutationRolledBackEvent published when an optimistic mutation fails and
// its provisional state is reverted
type MutationRolledBackEvent struct {
	BaseEvent
	Token    string `json:"token"`
	Kind     string `json:"kind"`
	TargetID string `json:"target_id"`
	Reason   string `json:"reason"`
}
