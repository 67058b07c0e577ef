package service

import (
	"sync"
	"time"

	"storefront-client/internal/models"

	"github.com/google/uuid"
)

// MutationState is the lifecycle of one optimistic mutation.
type MutationState int32

const (
	// StatePending: the provisional state is rendered, the remote call is
	// in flight.
	StatePending MutationState = iota
	// StateApplied: the remote call succeeded and the provisional state
	// was confirmed.
	StateApplied
	// StateRolledBack: the remote call failed and the pre-mutation
	// snapshot was restored.
	StateRolledBack
)

func (s MutationState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateApplied:
		return "applied"
	case StateRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Mutation is the value object tracking one user action from optimistic
// application to resolution. The Token is the correlation id used to match
// optimistic entries to their confirmed counterparts; temporary ids are
// never parsed for this.
type Mutation struct {
	Token    string
	Kind     string
	TargetID string

	mu    sync.Mutex
	state MutationState
	err   error
	done  chan struct{}
}

// NewMutation creates a pending mutation with a fresh correlation token.
func NewMutation(kind, targetID string) *Mutation {
	return &Mutation{
		Token:    uuid.New().String(),
		Kind:     kind,
		TargetID: targetID,
		done:     make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (m *Mutation) State() MutationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the failure that caused a rollback, nil otherwise.
func (m *Mutation) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Done is closed once the mutation is applied or rolled back.
func (m *Mutation) Done() <-chan struct{} {
	return m.done
}

// TempID returns the synthetic id for this mutation's optimistic entry.
// Unique among concurrent optimistic entries because the token is.
func (m *Mutation) TempID() string {
	return "temp_" + m.Token
}

func (m *Mutation) confirm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StatePending {
		return
	}
	m.state = StateApplied
	close(m.done)
}

func (m *Mutation) rollback(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StatePending {
		return
	}
	m.state = StateRolledBack
	m.err = err
	close(m.done)
}

// applyRemoveItem removes the item from the cart (already a clone) and
// rederives the summary. The item/quantity counters are decremented by
// exactly the removed item's contribution rather than recomputed, so a
// concurrent in-flight mutation's contribution is never double-adjusted;
// the money fields are rederived from the remaining lines. Returns nil when
// the id is unknown, which callers treat as a no-op.
func applyRemoveItem(cart *models.Cart, cartItemID string, cfg TotalsConfig) *models.CartItem {
	idx := cart.FindItem(cartItemID)
	if idx < 0 {
		return nil
	}
	removed := cart.CartItems[idx]
	cart.CartItems = append(cart.CartItems[:idx], cart.CartItems[idx+1:]...)

	var subtotal float64
	for i := range cart.CartItems {
		subtotal += cart.CartItems[i].LineTotal
	}

	cart.Summary.ItemsCount--
	cart.Summary.TotalQuantity -= removed.Quantity
	cart.Summary.Subtotal = subtotal
	cart.Summary.EstimatedTax = subtotal * cfg.TaxRate
	if subtotal > cfg.FreeShippingThreshold {
		cart.Summary.ShippingCost = 0
	} else {
		cart.Summary.ShippingCost = cfg.FlatShippingFee
	}
	cart.Total = subtotal + cart.Summary.EstimatedTax + cart.Summary.ShippingCost

	return &removed
}

// applyQuantityChange sets the item's quantity (clamped to variant stock),
// recomputes its line total and rederives the summary. Returns the applied
// quantity and whether a change was applied. Callers reject quantity < 1
// before getting here. Zero stock is a real sellout, not missing data, so
// a sold-out line takes no change at all.
func applyQuantityChange(cart *models.Cart, cartItemID string, quantity int, cfg TotalsConfig) (int, bool) {
	idx := cart.FindItem(cartItemID)
	if idx < 0 {
		return 0, false
	}
	item := &cart.CartItems[idx]
	if item.VariantStock < 1 {
		return 0, false
	}
	if quantity > item.VariantStock {
		quantity = item.VariantStock
	}
	item.Quantity = quantity
	item.LineTotal = LineTotal(item)

	cart.Summary, cart.Total = CalculateSummary(cart.CartItems, cfg)
	return quantity, true
}

// applyOptimisticComment prepends a provisional review awaiting server
// confirmation.
func applyOptimisticComment(detail *models.ProductDetail, tempID, commentText string, rating int) {
	detail.Comments = append([]models.Comment{{
		ID:           tempID,
		User:         "You",
		Rating:       rating,
		Comment:      commentText,
		Date:         time.Now().Format("2006-01-02"),
		IsOptimistic: true,
	}}, detail.Comments...)
	detail.Product.CommentsCount++
}

// confirmComment swaps the optimistic entry for the server-confirmed one in
// place, so the UI never flashes an empty slot. A missing temp id means the
// collection was already superseded by an authoritative refetch; nothing to
// do.
func confirmComment(detail *models.ProductDetail, tempID string, confirmed models.Comment) {
	for i := range detail.Comments {
		if detail.Comments[i].ID == tempID {
			confirmed.IsOptimistic = false
			detail.Comments[i] = confirmed
			return
		}
	}
}

// applyLikeState toggles the like flag and adjusts the counter by exactly
// one. Returns false when the state already matches, so a double fire never
// double-counts.
func applyLikeState(detail *models.ProductDetail, liked bool) bool {
	if detail.Product.UserHasLiked == liked {
		return false
	}
	detail.Product.UserHasLiked = liked
	if liked {
		detail.Product.LikesCount++
	} else {
		detail.Product.LikesCount--
	}
	return true
}

// commentsSnapshot captures the review collection for a scoped undo.
func commentsSnapshot(detail *models.ProductDetail) ([]models.Comment, int) {
	snap := make([]models.Comment, len(detail.Comments))
	copy(snap, detail.Comments)
	return snap, detail.Product.CommentsCount
}

func restoreComments(detail *models.ProductDetail, snap []models.Comment, count int) {
	detail.Comments = snap
	detail.Product.CommentsCount = count
}
