package service

import (
	"strings"
	"sync"
	"time"

	"storefront-client/internal/alert"
	"storefront-client/internal/cache"
	"storefront-client/internal/gateway"
)

// Deps bundles the shared collaborators every session is built from.
type Deps struct {
	Gateway       *gateway.Client
	Cache         *cache.Cache
	Executor      *Executor
	OrderEvents   OrderEventSink
	Totals        TotalsConfig
	Rules         ReviewRules
	Windows       CatalogWindows
	CartRetain    time.Duration
	AlertDuration time.Duration
	// SessionIdle is how long an untouched session stays registered before
	// the janitor evicts it. Zero disables eviction.
	SessionIdle time.Duration
}

const registryJanitorInterval = time.Minute

type cartEntry struct {
	session  *CartSession
	lastSeen time.Time
}

type productEntry struct {
	session  *ProductSession
	lastSeen time.Time
}

type catalogEntry struct {
	session  *CatalogService
	lastSeen time.Time
}

type alertEntry struct {
	channel  *alert.Channel
	lastSeen time.Time
}

// Registry hands out per-user sessions and keeps them alive across
// requests so optimistic state survives between the mutation call and the
// poll that follows it. One alert channel per user: all of that user's
// mutations share the single notification slot. Bearer tokens rotate
// between requests, so every lookup refreshes the stored credential.
type Registry struct {
	mu       sync.Mutex
	deps     Deps
	alerts   map[string]*alertEntry
	carts    map[string]*cartEntry
	products map[string]*productEntry
	catalogs map[string]*catalogEntry
	stop     chan struct{}
	once     sync.Once
}

// NewRegistry creates a session registry and starts its janitor when idle
// eviction is enabled.
func NewRegistry(deps Deps) *Registry {
	r := &Registry{
		deps:     deps,
		alerts:   make(map[string]*alertEntry),
		carts:    make(map[string]*cartEntry),
		products: make(map[string]*productEntry),
		catalogs: make(map[string]*catalogEntry),
		stop:     make(chan struct{}),
	}
	if deps.SessionIdle > 0 {
		go r.janitor()
	}
	return r
}

// Close stops the janitor.
func (r *Registry) Close() {
	r.once.Do(func() { close(r.stop) })
}

// AlertFor returns the user's feedback channel.
func (r *Registry) AlertFor(userID string) *alert.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alertForLocked(userID, time.Now())
}

func (r *Registry) alertForLocked(userID string, now time.Time) *alert.Channel {
	if e, ok := r.alerts[userID]; ok {
		e.lastSeen = now
		return e.channel
	}
	ch := alert.NewChannel(r.deps.AlertDuration)
	r.alerts[userID] = &alertEntry{channel: ch, lastSeen: now}
	return ch
}

// Cart returns the user's cart session, creating it on first use.
func (r *Registry) Cart(userID, token string) *CartSession {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.carts[userID]; ok {
		e.lastSeen = now
		e.session.refreshToken(token)
		return e.session
	}
	s := NewCartSession(
		r.deps.Gateway, r.deps.Cache, r.deps.Executor,
		r.alertForLocked(userID, now), r.deps.OrderEvents,
		r.deps.Totals, r.deps.CartRetain, userID, token,
	)
	r.carts[userID] = &cartEntry{session: s, lastSeen: now}
	return s
}

// Product returns the user's detail session for a product.
func (r *Registry) Product(userID, token, productID string) *ProductSession {
	key := userID + ":" + productID
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.products[key]; ok {
		e.lastSeen = now
		e.session.refreshToken(token)
		return e.session
	}
	s := NewProductSession(
		r.deps.Gateway, r.deps.Cache, r.deps.Executor,
		r.alertForLocked(userID, now), r.deps.Rules,
		r.deps.Windows.ProductStale, r.deps.Windows.ProductRetain,
		productID, userID, token,
	)
	r.products[key] = &productEntry{session: s, lastSeen: now}
	return s
}

// Catalog returns the user's catalog reader.
func (r *Registry) Catalog(userID, token string) *CatalogService {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.catalogs[userID]; ok {
		e.lastSeen = now
		e.session.refreshToken(token)
		return e.session
	}
	s := NewCatalogService(r.deps.Gateway, r.deps.Cache, r.deps.Windows, userID, token)
	r.catalogs[userID] = &catalogEntry{session: s, lastSeen: now}
	return s
}

func (r *Registry) janitor() {
	ticker := time.NewTicker(registryJanitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.evictIdle(time.Now())
		}
	}
}

// evictIdle drops sessions nobody has touched within the idle window.
// Closed sessions turn late mutation resolutions into no-ops, so an
// eviction racing an in-flight resolution writes to nothing. An alert
// channel is only evicted once the user has no sessions left posting
// to it, so the poll endpoint and the sessions always share one slot.
func (r *Registry) evictIdle(now time.Time) {
	idle := r.deps.SessionIdle
	if idle <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, e := range r.carts {
		if now.Sub(e.lastSeen) > idle {
			e.session.Close()
			delete(r.carts, userID)
		}
	}
	for key, e := range r.products {
		if now.Sub(e.lastSeen) > idle {
			e.session.Close()
			delete(r.products, key)
		}
	}
	for userID, e := range r.catalogs {
		if now.Sub(e.lastSeen) > idle {
			delete(r.catalogs, userID)
		}
	}
	for userID, e := range r.alerts {
		if now.Sub(e.lastSeen) <= idle || r.userHasSessionsLocked(userID) {
			continue
		}
		e.channel.Dismiss()
		delete(r.alerts, userID)
	}
}

func (r *Registry) userHasSessionsLocked(userID string) bool {
	if _, ok := r.carts[userID]; ok {
		return true
	}
	if _, ok := r.catalogs[userID]; ok {
		return true
	}
	for key := range r.products {
		if strings.HasPrefix(key, userID+":") {
			return true
		}
	}
	return false
}
