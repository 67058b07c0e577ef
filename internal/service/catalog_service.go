package service

import (
	"context"
	"sync"
	"time"

	"storefront-client/internal/cache"
	"storefront-client/internal/gateway"
	"storefront-client/internal/models"
	"storefront-client/internal/util"

	"go.uber.org/zap"
)

// CatalogWindows are the freshness/retention windows for catalog reads.
type CatalogWindows struct {
	ProductStale  time.Duration
	ProductRetain time.Duration
	PopularStale  time.Duration
	PopularRetain time.Duration
}

// CatalogService serves the read-only catalog surfaces: the paged shop
// listing, the popular-products strip, and the user profile. No optimistic
// state; just cached reads with deliberate degradation.
type CatalogService struct {
	mu           sync.Mutex
	lastProducts *models.ProductsResponse

	userID  string
	token   string
	gw      *gateway.Client
	cache   *cache.Cache
	windows CatalogWindows
	logger  *zap.Logger
}

// NewCatalogService creates a catalog reader for the given user; an empty
// token serves public data only.
func NewCatalogService(gw *gateway.Client, c *cache.Cache, windows CatalogWindows, userID, token string) *CatalogService {
	return &CatalogService{
		userID:  userID,
		token:   token,
		gw:      gw,
		cache:   c,
		windows: windows,
		logger:  util.GetLogger(),
	}
}

// refreshToken swaps in the caller's current credential; an empty one
// keeps the stored credential.
func (s *CatalogService) refreshToken(token string) {
	if token == "" {
		return
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *CatalogService) bearer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// ShopProducts returns one page of the shop listing. When a page fetch
// fails the previously served page is kept on screen rather than blanking
// the list.
func (s *CatalogService) ShopProducts(ctx context.Context, limit, offset int) (*models.ProductsResponse, error) {
	token := s.bearer()
	opts := cache.Options{
		StaleTime:  s.windows.ProductStale,
		RetainTime: s.windows.ProductRetain,
		Retries:    1,
		RetryIf:    retryableRead,
	}
	v, err := s.cache.Get(ctx, productsKey(limit, offset), opts, func(ctx context.Context) (interface{}, error) {
		return s.gw.GetShopProducts(ctx, token, limit, offset)
	})
	if err != nil {
		s.mu.Lock()
		previous := s.lastProducts
		s.mu.Unlock()
		if previous != nil {
			s.logger.Warn("Shop page fetch failed, keeping previous page", zap.Error(err))
			return previous, nil
		}
		return nil, err
	}

	res := v.(*models.ProductsResponse)
	s.mu.Lock()
	s.lastProducts = res
	s.mu.Unlock()
	return res, nil
}

// PopularProducts returns the popular strip. A fetch failure degrades to an
// empty strip; the page renders without it.
func (s *CatalogService) PopularProducts(ctx context.Context, maxResults int) ([]models.Product, error) {
	opts := cache.Options{
		StaleTime:  s.windows.PopularStale,
		RetainTime: s.windows.PopularRetain,
	}
	v, err := s.cache.Get(ctx, popularKey(maxResults), opts, func(ctx context.Context) (interface{}, error) {
		return s.gw.GetPopularProducts(ctx, maxResults)
	})
	if err != nil {
		s.logger.Warn("Popular products fetch failed, degrading to empty strip", zap.Error(err))
		return []models.Product{}, nil
	}
	return v.([]models.Product), nil
}

// Profile returns the combined profile payload for the authenticated user.
func (s *CatalogService) Profile(ctx context.Context) (*models.UserProfile, error) {
	token := s.bearer()
	if token == "" {
		return nil, gateway.ErrAuthRequired
	}
	opts := cache.Options{
		StaleTime:  s.windows.ProductStale,
		RetainTime: s.windows.ProductRetain,
		Retries:    1,
		RetryIf:    retryableRead,
	}
	v, err := s.cache.Get(ctx, profileKey(s.userID), opts, func(ctx context.Context) (interface{}, error) {
		return s.gw.GetUserProfile(ctx, token)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.UserProfile), nil
}
