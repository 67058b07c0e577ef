package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"storefront-client/internal/cache"
	"storefront-client/internal/gateway"
	"storefront-client/internal/models"
	"storefront-client/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, gwHandler http.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gwSrv := httptest.NewServer(gwHandler)
	t.Cleanup(gwSrv.Close)

	c := cache.New()
	t.Cleanup(c.Close)

	registry := service.NewRegistry(service.Deps{
		Gateway:  gateway.NewClient(gwSrv.URL, 5*time.Second),
		Cache:    c,
		Executor: service.NewExecutor(service.NewLocalLocker(), c, nil, nil, 5*time.Second),
		Totals: service.TotalsConfig{
			TaxRate:               0.20,
			FreeShippingThreshold: 50,
			FlatShippingFee:       9.99,
		},
		Rules:         service.ReviewRules{MaxCommentLength: 500, MaxRating: 5},
		CartRetain:    time.Minute,
		AlertDuration: time.Minute,
	})

	router := gin.New()
	NewHandler(registry, nil).SetupRoutes(router)
	return router
}

func doRequest(router *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "u-1")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func cartGateway() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/rpc/get_user_cart":
			_ = json.NewEncoder(w).Encode(models.Cart{
				Total: 252,
				Summary: models.CartSummary{
					Subtotal: 210, ItemsCount: 1, EstimatedTax: 42, TotalQuantity: 2,
				},
				CartItems: []models.CartItem{
					{CartItemID: "ci-1", ProductID: "p-1", UnitPrice: 105, Quantity: 2, LineTotal: 210, VariantStock: 9},
				},
			})
		case "/rpc/update_cart_item":
			_, _ = w.Write([]byte(`{}`))
		default:
			http.Error(w, `{"error":"unknown op"}`, http.StatusNotFound)
		}
	}
}

func TestHealthAndReady(t *testing.T) {
	router := newTestRouter(t, cartGateway())

	w := doRequest(router, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetCartRequiresAuth(t *testing.T) {
	router := newTestRouter(t, cartGateway())

	w := doRequest(router, http.MethodGet, "/api/v1/cart", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetCart(t *testing.T) {
	router := newTestRouter(t, cartGateway())

	w := doRequest(router, http.MethodGet, "/api/v1/cart", "tok", "")
	require.Equal(t, http.StatusOK, w.Code)

	var cart models.Cart
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cart))
	assert.Equal(t, 252.0, cart.Total)
	require.Len(t, cart.CartItems, 1)
}

func TestUpdateCartItemReturnsOptimisticState(t *testing.T) {
	router := newTestRouter(t, cartGateway())

	w := doRequest(router, http.MethodPatch, "/api/v1/cart/items/ci-1", "tok", `{"quantity":3}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		Mutation string      `json:"mutation"`
		Status   string      `json:"status"`
		Cart     models.Cart `json:"cart"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Mutation)
	require.Len(t, resp.Cart.CartItems, 1)
	assert.Equal(t, 3, resp.Cart.CartItems[0].Quantity, "provisional quantity returned before the remote call resolves")
}

func TestUpdateCartItemValidation(t *testing.T) {
	router := newTestRouter(t, cartGateway())

	w := doRequest(router, http.MethodPatch, "/api/v1/cart/items/ci-1", "tok", `{"quantity":0}`)
	// gin's required binding rejects the zero value before the service sees it.
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodPatch, "/api/v1/cart/items/ghost", "tok", `{"quantity":2}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestGetAlertAfterMutation(t *testing.T) {
	router := newTestRouter(t, cartGateway())

	w := doRequest(router, http.MethodPatch, "/api/v1/cart/items/ci-1", "tok", `{"quantity":3}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	assert.Eventually(t, func() bool {
		w := doRequest(router, http.MethodGet, "/api/v1/alert", "tok", "")
		if w.Code != http.StatusOK {
			return false
		}
		var resp struct {
			Message string `json:"message"`
			Visible bool   `json:"visible"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			return false
		}
		return resp.Visible && resp.Message == "Quantity updated"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestCheckoutEmptyCartRejected(t *testing.T) {
	router := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/rpc/get_user_cart" {
			_ = json.NewEncoder(w).Encode(models.Cart{CartItems: []models.CartItem{}})
			return
		}
		http.Error(w, `{"error":"unknown op"}`, http.StatusNotFound)
	})

	w := doRequest(router, http.MethodPost, "/api/v1/checkout", "tok", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestGetPopularProducts(t *testing.T) {
	router := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/rpc/get_popular_simple" {
			_, _ = w.Write([]byte(`{"products":[{"id":"p-1"},{"id":"p-2"}]}`))
			return
		}
		http.Error(w, `{"error":"unknown op"}`, http.StatusNotFound)
	})

	w := doRequest(router, http.MethodGet, "/api/v1/products/popular", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Products []models.Product `json:"products"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Products, 2)
}
