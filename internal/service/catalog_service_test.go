package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"storefront-client/internal/cache"
	"storefront-client/internal/gateway"
	"storefront-client/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testWindows = CatalogWindows{
	ProductStale:  5 * time.Minute,
	ProductRetain: 10 * time.Minute,
	PopularStale:  10 * time.Minute,
	PopularRetain: 15 * time.Minute,
}

func newCatalogFixture(t *testing.T, srv *rpcServer, token string) *CatalogService {
	t.Helper()
	c := cache.New()
	t.Cleanup(c.Close)
	gw := gateway.NewClient(srv.srv.URL, 5*time.Second)
	return NewCatalogService(gw, c, testWindows, "u-1", token)
}

func testPage(offset int) *models.ProductsResponse {
	return &models.ProductsResponse{
		Products:   []models.Product{{ID: "p-1", Title: "Beans"}},
		Pagination: models.Pagination{TotalCount: 30, PageOffset: offset, PageLimit: 12, HasNext: true},
	}
}

func TestShopProductsCachesPerPage(t *testing.T) {
	srv := newRPCServer(t)
	srv.respondJSON("get_shop_products", testPage(0))

	catalog := newCatalogFixture(t, srv, "tok")

	first, err := catalog.ShopProducts(context.Background(), 12, 0)
	require.NoError(t, err)
	assert.Len(t, first.Products, 1)

	_, err = catalog.ShopProducts(context.Background(), 12, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, srv.count("get_shop_products"))

	// A different page is a different cache key.
	_, err = catalog.ShopProducts(context.Background(), 12, 12)
	require.NoError(t, err)
	assert.Equal(t, 2, srv.count("get_shop_products"))
}

func TestShopProductsKeepsPreviousPageOnFailure(t *testing.T) {
	srv := newRPCServer(t)
	srv.respondJSON("get_shop_products", testPage(0))

	catalog := newCatalogFixture(t, srv, "tok")
	first, err := catalog.ShopProducts(context.Background(), 12, 0)
	require.NoError(t, err)

	srv.respondStatus("get_shop_products", http.StatusInternalServerError)

	page, err := catalog.ShopProducts(context.Background(), 12, 12)
	require.NoError(t, err, "a failed page navigation does not blank the listing")
	assert.Equal(t, first, page)
}

func TestShopProductsFirstFetchFailure(t *testing.T) {
	srv := newRPCServer(t)
	srv.respondStatus("get_shop_products", http.StatusInternalServerError)

	catalog := newCatalogFixture(t, srv, "tok")
	_, err := catalog.ShopProducts(context.Background(), 12, 0)
	assert.Error(t, err, "nothing to fall back to on the very first page")
}

func TestPopularProductsDegradesToEmpty(t *testing.T) {
	srv := newRPCServer(t)
	srv.respondStatus("get_popular_simple", http.StatusInternalServerError)

	catalog := newCatalogFixture(t, srv, "")
	products, err := catalog.PopularProducts(context.Background(), 8)

	assert.NoError(t, err)
	assert.Empty(t, products)
}

func TestProfileRequiresAuth(t *testing.T) {
	srv := newRPCServer(t)
	catalog := newCatalogFixture(t, srv, "")

	_, err := catalog.Profile(context.Background())
	assert.ErrorIs(t, err, gateway.ErrAuthRequired)
	assert.Equal(t, 0, srv.count("get_user_profile"))
}

func TestProfileCached(t *testing.T) {
	srv := newRPCServer(t)
	profile := &models.UserProfile{}
	profile.Profile.Username = "ana"
	srv.respondJSON("get_user_profile", profile)

	catalog := newCatalogFixture(t, srv, "tok")

	got, err := catalog.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ana", got.Profile.Username)

	_, err = catalog.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, srv.count("get_user_profile"))
}
