package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"storefront-client/internal/alert"
	"storefront-client/internal/cache"
	"storefront-client/internal/gateway"
	"storefront-client/internal/models"
	"storefront-client/internal/util"

	"go.uber.org/zap"
)

// ReviewRules are the local validation bounds applied before any review
// call leaves the process.
type ReviewRules struct {
	MaxCommentLength int
	MaxRating        int
}

// ProductSession owns the detail-page state for one product and user:
// product, review collection, like state, and the optimistic overlays on
// all three.
type ProductSession struct {
	mu      sync.Mutex
	detail  *models.ProductDetail
	closed  bool
	pending int

	productID string
	userID    string
	token     string

	gw     *gateway.Client
	cache  *cache.Cache
	exec   *Executor
	alerts *alert.Channel
	rules  ReviewRules
	stale  time.Duration
	retain time.Duration
	logger *zap.Logger
}

// NewProductSession creates a detail session. An empty token means
// unauthenticated; reads still work, mutations short-circuit.
func NewProductSession(
	gw *gateway.Client,
	c *cache.Cache,
	exec *Executor,
	alerts *alert.Channel,
	rules ReviewRules,
	stale, retain time.Duration,
	productID, userID, token string,
) *ProductSession {
	return &ProductSession{
		productID: productID,
		userID:    userID,
		token:     token,
		gw:        gw,
		cache:     c,
		exec:      exec,
		alerts:    alerts,
		rules:     rules,
		stale:     stale,
		retain:    retain,
		logger:    util.GetLogger(),
	}
}

// Authenticated reports whether the session carries a credential.
func (s *ProductSession) Authenticated() bool {
	return s.bearer() != ""
}

// refreshToken swaps in the caller's current credential; an empty one
// keeps the stored credential.
func (s *ProductSession) refreshToken(token string) {
	if token == "" {
		return
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *ProductSession) bearer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Alerts returns the session's feedback channel.
func (s *ProductSession) Alerts() *alert.Channel {
	return s.alerts
}

// Load fetches the combined detail payload through the query cache.
func (s *ProductSession) Load(ctx context.Context) (*models.ProductDetail, error) {
	token := s.bearer()
	opts := cache.Options{
		StaleTime:  s.stale,
		RetainTime: s.retain,
		Retries:    2,
		RetryIf:    retryableRead,
	}
	v, err := s.cache.Get(ctx, detailKey(s.productID, s.userID), opts, func(ctx context.Context) (interface{}, error) {
		return s.gw.GetProductDetail(ctx, token, s.productID)
	})
	if err != nil {
		s.logger.Warn("Product detail fetch failed",
			zap.String("product_id", s.productID),
			zap.Error(err))
		return nil, err
	}

	detail := v.(*models.ProductDetail).Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return detail, nil
	}
	// Keep the provisional overlays on screen while a mutation is
	// unresolved; the authoritative payload lands on the next load.
	if s.pending > 0 && s.detail != nil {
		return s.detail.Clone(), nil
	}
	s.detail = detail
	return s.detail.Clone(), nil
}

// Detail returns a copy of the current projection, optimistic entries
// included. Nil until Load succeeds.
func (s *ProductSession) Detail() *models.ProductDetail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detail.Clone()
}

// LikeBusy reports whether a like toggle is in flight.
func (s *ProductSession) LikeBusy(ctx context.Context) bool {
	return s.exec.Busy(ctx, s.likeLockKey())
}

// ToggleLike flips the like state optimistically and issues the matching
// remote call. Rapid double-firing is absorbed by the busy lock.
func (s *ProductSession) ToggleLike(ctx context.Context) (*Mutation, error) {
	token := s.bearer()
	if token == "" {
		util.MutationsRejectedTotal.WithLabelValues("auth").Inc()
		s.alerts.Show("Please log in to like products.")
		return nil, gateway.ErrAuthRequired
	}

	s.mu.Lock()
	if s.detail == nil {
		s.mu.Unlock()
		return nil, ErrNotLoaded
	}
	liked := !s.detail.Product.UserHasLiked
	s.mu.Unlock()

	kind := models.MutationUnlike
	success := "Removed from your liked products."
	if liked {
		kind = models.MutationLike
		success = "Added to your liked products."
	}

	m := NewMutation(kind, s.productID)
	var prevLiked bool
	var prevCount int

	err := s.exec.Begin(ctx, Op{
		Mutation: m,
		LockKey:  s.likeLockKey(),
		Lock:     &s.mu,
		Apply: func() {
			s.pending++
			if s.closed || s.detail == nil {
				return
			}
			prevLiked = s.detail.Product.UserHasLiked
			prevCount = s.detail.Product.LikesCount
			applyLikeState(s.detail, liked)
		},
		Call: func(ctx context.Context) error {
			if liked {
				return s.gw.LikeProduct(ctx, token, s.productID)
			}
			return s.gw.UnlikeProduct(ctx, token, s.productID)
		},
		Commit: func() {
			s.pending--
		},
		Undo: func() {
			s.pending--
			if s.closed || s.detail == nil {
				return
			}
			s.detail.Product.UserHasLiked = prevLiked
			s.detail.Product.LikesCount = prevCount
		},
		Invalidate:         []string{detailKey(s.productID, s.userID)},
		InvalidatePrefixes: []string{"products:"},
		Alerts:             s.alerts,
		SuccessMessage:     success,
		FailureMessage:     "Failed to update like. Please try again.",
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// AddReview validates locally, prepends an optimistic comment and submits
// the review. On confirmation the temporary entry is swapped for the
// server's comment, matched by the mutation's correlation token.
func (s *ProductSession) AddReview(ctx context.Context, commentText string, rating int) (*Mutation, error) {
	token := s.bearer()
	if token == "" {
		util.MutationsRejectedTotal.WithLabelValues("auth").Inc()
		s.alerts.Show("Please log in to write a review.")
		return nil, gateway.ErrAuthRequired
	}

	trimmed := strings.TrimSpace(commentText)
	if trimmed == "" || rating == 0 {
		util.MutationsRejectedTotal.WithLabelValues("validation").Inc()
		s.alerts.Show("Please provide both a rating and a comment.")
		return nil, fmt.Errorf("%w: rating and comment are required", ErrValidation)
	}
	if rating < 1 || rating > s.rules.MaxRating {
		util.MutationsRejectedTotal.WithLabelValues("validation").Inc()
		return nil, fmt.Errorf("%w: rating must be between 1 and %d", ErrValidation, s.rules.MaxRating)
	}
	if len(trimmed) > s.rules.MaxCommentLength {
		util.MutationsRejectedTotal.WithLabelValues("validation").Inc()
		s.alerts.Show(fmt.Sprintf("Reviews are limited to %d characters.", s.rules.MaxCommentLength))
		return nil, fmt.Errorf("%w: comment exceeds %d characters", ErrValidation, s.rules.MaxCommentLength)
	}

	s.mu.Lock()
	if s.detail == nil {
		s.mu.Unlock()
		return nil, ErrNotLoaded
	}
	s.mu.Unlock()

	m := NewMutation(models.MutationAddReview, s.productID)
	tempID := m.TempID()
	var snapComments []models.Comment
	var snapCount int
	var confirmed *models.Comment

	err := s.exec.Begin(ctx, Op{
		Mutation: m,
		LockKey:  s.reviewLockKey(),
		Lock:     &s.mu,
		Apply: func() {
			s.pending++
			if s.closed || s.detail == nil {
				return
			}
			snapComments, snapCount = commentsSnapshot(s.detail)
			applyOptimisticComment(s.detail, tempID, trimmed, rating)
		},
		Call: func(ctx context.Context) error {
			c, err := s.gw.AddProductReview(ctx, token, s.productID, trimmed, rating)
			if err != nil {
				return err
			}
			confirmed = c
			return nil
		},
		Commit: func() {
			s.pending--
			if s.closed || s.detail == nil {
				return
			}
			confirmComment(s.detail, tempID, *confirmed)
		},
		Undo: func() {
			s.pending--
			if s.closed || s.detail == nil || snapComments == nil {
				return
			}
			restoreComments(s.detail, snapComments, snapCount)
		},
		Invalidate:     []string{detailKey(s.productID, s.userID)},
		Alerts:         s.alerts,
		SuccessMessage: "Review added successfully!",
		FailureMessage: "Failed to add review. Please try again.",
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// AddToCart adds quantity units of the chosen variant. The detail page's
// cart-quantity badge is bumped optimistically; the cart itself is
// refetched on its next load.
func (s *ProductSession) AddToCart(ctx context.Context, variantID string, quantity int) (*Mutation, error) {
	token := s.bearer()
	if token == "" {
		util.MutationsRejectedTotal.WithLabelValues("auth").Inc()
		s.alerts.Show("Please log in to add items to your cart.")
		return nil, gateway.ErrAuthRequired
	}
	if quantity < 1 {
		util.MutationsRejectedTotal.WithLabelValues("validation").Inc()
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	}

	s.mu.Lock()
	if s.detail == nil {
		s.mu.Unlock()
		return nil, ErrNotLoaded
	}
	variant := s.detail.Product.Variant(variantID)
	if variantID == "" {
		variant = s.detail.Product.DefaultVariant()
	}
	s.mu.Unlock()

	if variant == nil {
		util.MutationsRejectedTotal.WithLabelValues("validation").Inc()
		s.alerts.Show("Please select a variant.")
		return nil, fmt.Errorf("%w: unknown variant", ErrValidation)
	}
	if variant.Stock < 1 {
		util.MutationsRejectedTotal.WithLabelValues("validation").Inc()
		s.alerts.Show("This variant is out of stock.")
		return nil, fmt.Errorf("%w: variant out of stock", ErrValidation)
	}
	if quantity > variant.Stock {
		quantity = variant.Stock
	}
	chosenVariantID := variant.ID

	m := NewMutation(models.MutationAddToCart, s.productID)
	var prevQty int

	err := s.exec.Begin(ctx, Op{
		Mutation: m,
		LockKey:  s.addLockKey(),
		Lock:     &s.mu,
		Apply: func() {
			s.pending++
			if s.closed || s.detail == nil {
				return
			}
			prevQty = s.detail.Product.UserCartQuantity
			s.detail.Product.UserCartQuantity += quantity
		},
		Call: func(ctx context.Context) error {
			_, err := s.gw.AddToCart(ctx, token, s.productID, chosenVariantID, quantity)
			return err
		},
		Commit: func() {
			s.pending--
		},
		Undo: func() {
			s.pending--
			if s.closed || s.detail == nil {
				return
			}
			s.detail.Product.UserCartQuantity = prevQty
		},
		Invalidate:     []string{cartKey(s.userID), detailKey(s.productID, s.userID), profileKey(s.userID)},
		Alerts:         s.alerts,
		SuccessMessage: fmt.Sprintf("Successfully added %d item(s) to cart!", quantity),
		FailureMessage: "Failed to add item to cart. Please try again.",
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Close marks the session torn down.
func (s *ProductSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *ProductSession) likeLockKey() string {
	return "like:" + s.userID + ":" + s.productID
}

func (s *ProductSession) reviewLockKey() string {
	return "review:" + s.userID + ":" + s.productID
}

func (s *ProductSession) addLockKey() string {
	return "cart-add:" + s.userID + ":" + s.productID
}
