package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront-client/internal/alert"
	"storefront-client/internal/cache"
	"storefront-client/internal/gateway"
	"storefront-client/internal/models"
	"storefront-client/internal/util"

	"go.uber.org/zap"
)

// OrderEventSink publishes checkout outcomes for downstream consumers.
type OrderEventSink interface {
	PublishOrderPlaced(ctx context.Context, orderID string, total float64, itemsCount int) error
}

// CartSession owns one user's cart state: the local projection of the
// authoritative cart, the per-item busy flags, and the alert channel its
// mutations report to. The query cache keeps the authoritative payload;
// this session only ever holds clones.
type CartSession struct {
	mu      sync.Mutex
	cart    *models.Cart
	closed  bool
	pending int

	userID string
	token  string

	gw          *gateway.Client
	cache       *cache.Cache
	exec        *Executor
	alerts      *alert.Channel
	orderEvents OrderEventSink
	totals      TotalsConfig
	cartRetain  time.Duration
	logger      *zap.Logger
}

// NewCartSession creates a cart session for the given user. An empty token
// means the session is unauthenticated and every mutation short-circuits.
func NewCartSession(
	gw *gateway.Client,
	c *cache.Cache,
	exec *Executor,
	alerts *alert.Channel,
	orderEvents OrderEventSink,
	totals TotalsConfig,
	cartRetain time.Duration,
	userID, token string,
) *CartSession {
	return &CartSession{
		userID:      userID,
		token:       token,
		gw:          gw,
		cache:       c,
		exec:        exec,
		alerts:      alerts,
		orderEvents: orderEvents,
		totals:      totals,
		cartRetain:  cartRetain,
		logger:      util.GetLogger(),
	}
}

// Authenticated reports whether the session carries a credential. Mutations
// check this explicitly instead of consulting any ambient state.
func (s *CartSession) Authenticated() bool {
	return s.bearer() != ""
}

// refreshToken swaps in the caller's current credential; bearer tokens
// rotate between requests. A request without one keeps the stored
// credential rather than deauthenticating the session.
func (s *CartSession) refreshToken(token string) {
	if token == "" {
		return
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *CartSession) bearer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Alerts returns the session's feedback channel.
func (s *CartSession) Alerts() *alert.Channel {
	return s.alerts
}

// Load fetches the cart through the query cache and replaces the local
// projection. The cart key is always revalidated (stale time zero).
func (s *CartSession) Load(ctx context.Context) (*models.Cart, error) {
	token := s.bearer()
	if token == "" {
		s.alerts.Show("Please log in to view your shopping cart.")
		return nil, gateway.ErrAuthRequired
	}

	opts := cache.Options{
		RetainTime: s.cartRetain,
		Retries:    1,
		RetryIf:    retryableRead,
	}
	v, err := s.cache.Get(ctx, cartKey(s.userID), opts, func(ctx context.Context) (interface{}, error) {
		return s.gw.GetCart(ctx, token)
	})
	if err != nil {
		s.logger.Warn("Cart fetch failed", zap.String("user_id", s.userID), zap.Error(err))
		s.alerts.Show("Failed to load cart items")
		return nil, err
	}

	cart := v.(*models.Cart).Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return cart, nil
	}
	// A refetch that lands while a mutation is unresolved must not clobber
	// the provisional state; the next load after resolution picks up the
	// authoritative value.
	if s.pending > 0 && s.cart != nil {
		return s.cart.Clone(), nil
	}
	s.cart = cart
	return s.cart.Clone(), nil
}

// Cart returns a copy of the current projection, optimistic entries
// included. Nil until Load succeeds.
func (s *CartSession) Cart() *models.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Clone()
}

// ItemBusy reports whether a mutation is in flight for the given item, so
// the UI can disable its controls.
func (s *CartSession) ItemBusy(ctx context.Context, cartItemID string) bool {
	return s.exec.Busy(ctx, itemLockKey(cartItemID))
}

// UpdateQuantity optimistically sets a cart item's quantity, clamped to the
// variant's stock, and issues the remote update. Quantities below one are
// rejected locally.
func (s *CartSession) UpdateQuantity(ctx context.Context, cartItemID string, quantity int) (*Mutation, error) {
	token := s.bearer()
	if token == "" {
		util.MutationsRejectedTotal.WithLabelValues("auth").Inc()
		s.alerts.Show("Please log in to modify your cart.")
		return nil, gateway.ErrAuthRequired
	}
	if quantity < 1 {
		util.MutationsRejectedTotal.WithLabelValues("validation").Inc()
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	}

	s.mu.Lock()
	if s.cart == nil {
		s.mu.Unlock()
		return nil, ErrNotLoaded
	}
	idx := s.cart.FindItem(cartItemID)
	if idx < 0 {
		s.mu.Unlock()
		util.MutationsRejectedTotal.WithLabelValues("validation").Inc()
		return nil, fmt.Errorf("%w: unknown cart item %s", ErrValidation, cartItemID)
	}
	item := s.cart.CartItems[idx]
	s.mu.Unlock()

	// The gateway populates variant_stock on every line, so zero is a real
	// sellout, not missing data.
	if item.VariantStock < 1 {
		util.MutationsRejectedTotal.WithLabelValues("validation").Inc()
		s.alerts.Show("This item is out of stock.")
		return nil, fmt.Errorf("%w: item out of stock", ErrValidation)
	}
	productID := item.ProductID

	m := NewMutation(models.MutationUpdateQuantity, cartItemID)
	var snapshot *models.Cart
	applied := quantity

	err := s.exec.Begin(ctx, Op{
		Mutation: m,
		LockKey:  itemLockKey(cartItemID),
		Lock:     &s.mu,
		Apply: func() {
			s.pending++
			if s.closed || s.cart == nil {
				return
			}
			snapshot = s.cart.Clone()
			next := s.cart.Clone()
			if q, ok := applyQuantityChange(next, cartItemID, quantity, s.totals); ok {
				applied = q
				s.cart = next
			}
		},
		Call: func(ctx context.Context) error {
			return s.gw.UpdateCartItemQuantity(ctx, token, cartItemID, applied)
		},
		Commit: func() {
			s.pending--
		},
		Undo: func() {
			s.pending--
			if !s.closed && snapshot != nil {
				s.cart = snapshot
			}
		},
		Invalidate:     []string{cartKey(s.userID), detailKey(productID, s.userID), profileKey(s.userID)},
		Alerts:         s.alerts,
		SuccessMessage: "Quantity updated",
		FailureMessage: "Failed to update quantity",
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RemoveItem optimistically removes a cart item and issues the remote
// delete. An unknown id is a no-op and returns a nil mutation.
func (s *CartSession) RemoveItem(ctx context.Context, cartItemID string) (*Mutation, error) {
	token := s.bearer()
	if token == "" {
		util.MutationsRejectedTotal.WithLabelValues("auth").Inc()
		s.alerts.Show("Please log in to modify your cart.")
		return nil, gateway.ErrAuthRequired
	}

	s.mu.Lock()
	if s.cart == nil {
		s.mu.Unlock()
		return nil, ErrNotLoaded
	}
	idx := s.cart.FindItem(cartItemID)
	if idx < 0 {
		s.mu.Unlock()
		return nil, nil
	}
	productID := s.cart.CartItems[idx].ProductID
	s.mu.Unlock()

	m := NewMutation(models.MutationRemoveItem, cartItemID)
	var snapshot *models.Cart

	err := s.exec.Begin(ctx, Op{
		Mutation: m,
		LockKey:  itemLockKey(cartItemID),
		Lock:     &s.mu,
		Apply: func() {
			s.pending++
			if s.closed || s.cart == nil {
				return
			}
			snapshot = s.cart.Clone()
			next := s.cart.Clone()
			if removed := applyRemoveItem(next, cartItemID, s.totals); removed != nil {
				s.cart = next
			}
		},
		Call: func(ctx context.Context) error {
			return s.gw.RemoveCartItem(ctx, token, cartItemID)
		},
		Commit: func() {
			s.pending--
		},
		Undo: func() {
			s.pending--
			if !s.closed && snapshot != nil {
				s.cart = snapshot
			}
		},
		Invalidate:     []string{cartKey(s.userID), detailKey(productID, s.userID), profileKey(s.userID)},
		Alerts:         s.alerts,
		SuccessMessage: "Item removed from cart",
		FailureMessage: "Failed to remove item from cart",
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Checkout creates an order from the current cart. No provisional change is
// rendered; the cart is cleared only once the gateway confirms the order.
func (s *CartSession) Checkout(ctx context.Context) (*Mutation, error) {
	token := s.bearer()
	if token == "" {
		util.MutationsRejectedTotal.WithLabelValues("auth").Inc()
		s.alerts.Show("Please log in to check out.")
		return nil, gateway.ErrAuthRequired
	}

	s.mu.Lock()
	if s.cart == nil || len(s.cart.CartItems) == 0 {
		s.mu.Unlock()
		util.MutationsRejectedTotal.WithLabelValues("validation").Inc()
		s.alerts.Show("Your cart is empty")
		return nil, fmt.Errorf("%w: cart is empty", ErrValidation)
	}
	itemsCount := s.cart.Summary.ItemsCount
	orderTotal := s.cart.Total
	s.mu.Unlock()

	m := NewMutation(models.MutationCheckout, s.userID)
	var result *gateway.CheckoutResult
	var snapshot *models.Cart

	err := s.exec.Begin(ctx, Op{
		Mutation: m,
		LockKey:  "checkout:" + s.userID,
		Lock:     &s.mu,
		Apply: func() {
			s.pending++
			snapshot = s.cart.Clone()
		},
		Call: func(ctx context.Context) error {
			res, err := s.gw.CreateOrderFromCart(ctx, token)
			if err != nil {
				return err
			}
			result = res
			return nil
		},
		Commit: func() {
			s.pending--
			if s.closed {
				return
			}
			s.cart = &models.Cart{CartItems: []models.CartItem{}}
		},
		Undo: func() {
			s.pending--
			if !s.closed && snapshot != nil {
				s.cart = snapshot
			}
		},
		AfterCommit: func(ctx context.Context) {
			short := result.OrderID
			if len(short) > 8 {
				short = short[:8]
			}
			s.alerts.Show(fmt.Sprintf("Order created successfully! Order ID: %s", short))
			if s.orderEvents != nil {
				if err := s.orderEvents.PublishOrderPlaced(ctx, result.OrderID, orderTotal, itemsCount); err != nil {
					s.logger.Error("Failed to publish order placed event", zap.Error(err))
				}
			}
		},
		Invalidate:         []string{cartKey(s.userID), profileKey(s.userID)},
		InvalidatePrefixes: []string{"product-detail:"},
		Alerts:             s.alerts,
		FailureMessage:     "Failed to create order",
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Close marks the session torn down; late mutation resolutions become
// no-ops instead of writing to dead state.
func (s *CartSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func retryableRead(err error) bool {
	return !errors.Is(err, gateway.ErrAuthRequired)
}
