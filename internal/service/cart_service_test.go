package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storefront-client/internal/alert"
	"storefront-client/internal/cache"
	"storefront-client/internal/gateway"
	"storefront-client/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcServer is a scripted stand-in for the remote data gateway.
type rpcServer struct {
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	calls    map[string]int
	srv      *httptest.Server
}

func newRPCServer(t *testing.T) *rpcServer {
	t.Helper()
	s := &rpcServer{
		handlers: make(map[string]http.HandlerFunc),
		calls:    make(map[string]int),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op := r.URL.Path[len("/rpc/"):]
		s.mu.Lock()
		s.calls[op]++
		h, ok := s.handlers[op]
		s.mu.Unlock()
		if !ok {
			http.Error(w, `{"error":"unknown op"}`, http.StatusNotFound)
			return
		}
		h(w, r)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *rpcServer) on(op string, h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[op] = h
}

func (s *rpcServer) respondJSON(op string, payload interface{}) {
	s.on(op, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	})
}

func (s *rpcServer) respondStatus(op string, status int) {
	s.on(op, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, status)
	})
}

func (s *rpcServer) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func newCartFixture(t *testing.T, srv *rpcServer, token string) (*CartSession, *cache.Cache) {
	t.Helper()
	c := cache.New()
	t.Cleanup(c.Close)

	gw := gateway.NewClient(srv.srv.URL, 5*time.Second)
	exec := NewExecutor(NewLocalLocker(), c, nil, nil, 5*time.Second)
	alerts := alert.NewChannel(time.Minute)

	return NewCartSession(gw, c, exec, alerts, nil, testTotals, time.Minute, "u-1", token), c
}

func TestCartLoad(t *testing.T) {
	srv := newRPCServer(t)
	srv.respondJSON("get_user_cart", testCart())

	sess, _ := newCartFixture(t, srv, "tok")
	cart, err := sess.Load(context.Background())

	require.NoError(t, err)
	require.Len(t, cart.CartItems, 2)
	assert.Equal(t, "ci-1", cart.CartItems[0].CartItemID)
	assert.Equal(t, 1, srv.count("get_user_cart"))
}

func TestCartLoadUnauthenticated(t *testing.T) {
	srv := newRPCServer(t)
	sess, _ := newCartFixture(t, srv, "")

	_, err := sess.Load(context.Background())

	assert.ErrorIs(t, err, gateway.ErrAuthRequired)
	assert.Equal(t, 0, srv.count("get_user_cart"), "no network traffic without a credential")

	msg, visible := sess.Alerts().Current()
	assert.True(t, visible)
	assert.Equal(t, "Please log in to view your shopping cart.", msg)
}

func TestCartLoadAuthErrorNotRetried(t *testing.T) {
	srv := newRPCServer(t)
	srv.respondStatus("get_user_cart", http.StatusUnauthorized)

	sess, _ := newCartFixture(t, srv, "expired")
	_, err := sess.Load(context.Background())

	assert.ErrorIs(t, err, gateway.ErrAuthRequired)
	assert.Equal(t, 1, srv.count("get_user_cart"), "auth failures are terminal, not retried")
}

func TestCartLoadRetriesServerError(t *testing.T) {
	srv := newRPCServer(t)
	var n int32
	srv.on("get_user_cart", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&n, 1) == 1 {
			http.Error(w, `{"error":"flake"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(testCart())
	})

	sess, _ := newCartFixture(t, srv, "tok")
	cart, err := sess.Load(context.Background())

	require.NoError(t, err)
	assert.Len(t, cart.CartItems, 2)
	assert.Equal(t, 2, srv.count("get_user_cart"))
}

func TestUpdateQuantityOptimisticThenConfirmed(t *testing.T) {
	srv := newRPCServer(t)
	srv.respondJSON("get_user_cart", testCart())
	srv.respondJSON("update_cart_item", map[string]bool{"success": true})

	sess, _ := newCartFixture(t, srv, "tok")
	_, err := sess.Load(context.Background())
	require.NoError(t, err)

	m, err := sess.UpdateQuantity(context.Background(), "ci-1", 3)
	require.NoError(t, err)

	// Provisional state is visible immediately.
	cart := sess.Cart()
	assert.Equal(t, 3, cart.CartItems[0].Quantity)
	assert.Equal(t, 300.0, cart.CartItems[0].LineTotal)

	awaitMutation(t, m)
	assert.Equal(t, StateApplied, m.State())
	assert.Equal(t, 3, sess.Cart().CartItems[0].Quantity)

	msg, _ := sess.Alerts().Current()
	assert.Equal(t, "Quantity updated", msg)
}

func TestUpdateQuantityRollsBackOnFailure(t *testing.T) {
	srv := newRPCServer(t)
	srv.respondJSON("get_user_cart", testCart())
	srv.respondStatus("update_cart_item", http.StatusInternalServerError)

	sess, _ := newCartFixture(t, srv, "tok")
	before, err := sess.Load(context.Background())
	require.NoError(t, err)

	m, err := sess.UpdateQuantity(context.Background(), "ci-1", 4)
	require.NoError(t, err)
	awaitMutation(t, m)

	assert.Equal(t, StateRolledBack, m.State())
	assert.Equal(t, before, sess.Cart(), "cart restored to the pre-mutation snapshot")

	msg, _ := sess.Alerts().Current()
	assert.Equal(t, "Failed to update quantity", msg)
}

func TestUpdateQuantityValidation(t *testing.T) {
	srv := newRPCServer(t)
	srv.respondJSON("get_user_cart", testCart())

	sess, _ := newCartFixture(t, srv, "tok")
	_, err := sess.Load(context.Background())
	require.NoError(t, err)

	_, err = sess.UpdateQuantity(context.Background(), "ci-1", 0)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = sess.UpdateQuantity(context.Background(), "ghost", 2)
	assert.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, 0, srv.count("update_cart_item"))
}

func TestUpdateQuantityUnauthenticated(t *testing.T) {
	srv := newRPCServer(t)
	sess, _ := newCartFixture(t, srv, "")

	_, err := sess.UpdateQuantity(context.Background(), "ci-1", 2)
	assert.ErrorIs(t, err, gateway.ErrAuthRequired)
	assert.Equal(t, 0, srv.count("update_cart_item"))
}

func TestUpdateQuantityRejectsSecondMutationOnSameItem(t *testing.T) {
	srv := newRPCServer(t)
	srv.respondJSON("get_user_cart", testCart())
	release := make(chan struct{})
	srv.on("update_cart_item", func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})

	sess, _ := newCartFixture(t, srv, "tok")
	_, err := sess.Load(context.Background())
	require.NoError(t, err)

	first, err := sess.UpdateQuantity(context.Background(), "ci-1", 3)
	require.NoError(t, err)
	assert.True(t, sess.ItemBusy(context.Background(), "ci-1"))

	_, err = sess.UpdateQuantity(context.Background(), "ci-1", 4)
	assert.ErrorIs(t, err, ErrItemBusy)

	// The other line is independent.
	srv.respondJSON("remove_cart_item", map[string]bool{"success": true})
	other, err := sess.RemoveItem(context.Background(), "ci-2")
	require.NoError(t, err)
	require.NotNil(t, other)
	awaitMutation(t, other)

	close(release)
	awaitMutation(t, first)
	assert.False(t, sess.ItemBusy(context.Background(), "ci-1"))
}

func TestLoadKeepsProvisionalStateWhileUnresolved(t *testing.T) {
	srv := newRPCServer(t)
	srv.respondJSON("get_user_cart", testCart())
	release := make(chan struct{})
	srv.on("update_cart_item", func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})

	sess, _ := newCartFixture(t, srv, "tok")
	_, err := sess.Load(context.Background())
	require.NoError(t, err)

	m, err := sess.UpdateQuantity(context.Background(), "ci-1", 3)
	require.NoError(t, err)

	// A poll refetch while the call is in flight serves the pre-mutation
	// payload from the cache; it must not clobber the provisional quantity.
	reloaded, err := sess.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, reloaded.CartItems[0].Quantity)

	close(release)
	awaitMutation(t, m)
	assert.Equal(t, StateApplied, m.State())
	assert.Equal(t, 3, sess.Cart().CartItems[0].Quantity)
}

func TestUpdateQuantityRejectsSoldOutItem(t *testing.T) {
	srv := newRPCServer(t)
	soldOut := testCart()
	soldOut.CartItems[0].VariantStock = 0
	srv.respondJSON("get_user_cart", soldOut)

	sess, _ := newCartFixture(t, srv, "tok")
	_, err := sess.Load(context.Background())
	require.NoError(t, err)

	_, err = sess.UpdateQuantity(context.Background(), "ci-1", 1)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 0, srv.count("update_cart_item"))

	msg, _ := sess.Alerts().Current()
	assert.Equal(t, "This item is out of stock.", msg)
}

func TestRemoveItemOptimistic(t *testing.T) {
	srv := newRPCServer(t)
	srv.respondJSON("get_user_cart", testCart())
	srv.respondJSON("remove_cart_item", map[string]bool{"success": true})

	sess, _ := newCartFixture(t, srv, "tok")
	_, err := sess.Load(context.Background())
	require.NoError(t, err)

	m, err := sess.RemoveItem(context.Background(), "ci-1")
	require.NoError(t, err)
	require.NotNil(t, m)

	cart := sess.Cart()
	assert.Len(t, cart.CartItems, 1)
	assert.Equal(t, 1, cart.Summary.ItemsCount)

	awaitMutation(t, m)
	assert.Equal(t, StateApplied, m.State())
}

func TestRemoveItemRollbackRestoresExactly(t *testing.T) {
	srv := newRPCServer(t)
	srv.respondJSON("get_user_cart", testCart())
	srv.respondStatus("remove_cart_item", http.StatusInternalServerError)

	sess, _ := newCartFixture(t, srv, "tok")
	before, err := sess.Load(context.Background())
	require.NoError(t, err)

	m, err := sess.RemoveItem(context.Background(), "ci-1")
	require.NoError(t, err)
	require.NotNil(t, m)
	awaitMutation(t, m)

	assert.Equal(t, StateRolledBack, m.State())
	assert.Equal(t, before, sess.Cart())
}

func TestRemoveItemUnknownIDIsNoop(t *testing.T) {
	srv := newRPCServer(t)
	srv.respondJSON("get_user_cart", testCart())

	sess, _ := newCartFixture(t, srv, "tok")
	_, err := sess.Load(context.Background())
	require.NoError(t, err)

	m, err := sess.RemoveItem(context.Background(), "ghost")
	assert.NoError(t, err)
	assert.Nil(t, m)
	assert.Equal(t, 0, srv.count("remove_cart_item"))
}

type recordedOrder struct {
	orderID    string
	total      float64
	itemsCount int
}

type recordingOrderSink struct {
	mu     sync.Mutex
	orders []recordedOrder
}

func (r *recordingOrderSink) PublishOrderPlaced(_ context.Context, orderID string, total float64, itemsCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, recordedOrder{orderID, total, itemsCount})
	return nil
}

func TestCheckout(t *testing.T) {
	srv := newRPCServer(t)
	srv.respondJSON("get_user_cart", testCart())
	srv.respondJSON("create_order_from_cart", gateway.CheckoutResult{
		Success: true,
		OrderID: "a1b2c3d4-5678-90ab-cdef-000000000000",
	})

	c := cache.New()
	t.Cleanup(c.Close)
	gw := gateway.NewClient(srv.srv.URL, 5*time.Second)
	exec := NewExecutor(NewLocalLocker(), c, nil, nil, 5*time.Second)
	alerts := alert.NewChannel(time.Minute)
	sink := &recordingOrderSink{}
	sess := NewCartSession(gw, c, exec, alerts, sink, testTotals, time.Minute, "u-1", "tok")

	before, err := sess.Load(context.Background())
	require.NoError(t, err)

	m, err := sess.Checkout(context.Background())
	require.NoError(t, err)

	// No provisional clear; the cart holds until the gateway confirms.
	assert.Len(t, sess.Cart().CartItems, 2)

	awaitMutation(t, m)
	assert.Equal(t, StateApplied, m.State())
	assert.Empty(t, sess.Cart().CartItems)

	msg, _ := alerts.Current()
	assert.Equal(t, "Order created successfully! Order ID: a1b2c3d4", msg)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.orders, 1)
	assert.Equal(t, "a1b2c3d4-5678-90ab-cdef-000000000000", sink.orders[0].orderID)
	assert.Equal(t, before.Total, sink.orders[0].total)
	assert.Equal(t, 2, sink.orders[0].itemsCount)
}

func TestCheckoutEmptyCart(t *testing.T) {
	srv := newRPCServer(t)
	srv.respondJSON("get_user_cart", &models.Cart{CartItems: []models.CartItem{}})

	sess, _ := newCartFixture(t, srv, "tok")
	_, err := sess.Load(context.Background())
	require.NoError(t, err)

	_, err = sess.Checkout(context.Background())
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 0, srv.count("create_order_from_cart"))

	msg, _ := sess.Alerts().Current()
	assert.Equal(t, "Your cart is empty", msg)
}

func TestCheckoutFailureKeepsCart(t *testing.T) {
	srv := newRPCServer(t)
	srv.respondJSON("get_user_cart", testCart())
	srv.respondJSON("create_order_from_cart", gateway.CheckoutResult{
		Success: false,
		Error:   "Cart is empty",
	})

	sess, _ := newCartFixture(t, srv, "tok")
	before, err := sess.Load(context.Background())
	require.NoError(t, err)

	m, err := sess.Checkout(context.Background())
	require.NoError(t, err)
	awaitMutation(t, m)

	assert.Equal(t, StateRolledBack, m.State())
	assert.Equal(t, before, sess.Cart())

	msg, _ := sess.Alerts().Current()
	assert.Equal(t, "Failed to create order", msg)
}
