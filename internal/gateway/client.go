package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"storefront-client/internal/models"
	"storefront-client/internal/util"

	"go.uber.org/zap"
)

// Client speaks to the remote data gateway: a fixed set of named remote
// procedures that are the sole source of truth for catalog, cart and order
// state. Every call is an independent, non-transactional round-trip.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a gateway client
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  util.GetLogger(),
	}
}

// call issues a single RPC. A non-empty token is sent as a bearer
// credential; the gateway resolves the user from it.
func (c *Client) call(ctx context.Context, token, op string, params, out interface{}) error {
	ctx, span := util.StartSpan(ctx, "gateway."+op)
	defer span.End()

	start := time.Now()
	defer func() {
		util.RemoteCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	var body io.Reader
	if params != nil {
		payload, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to marshal %s params: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc/"+op, body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		util.RemoteCallErrorsTotal.WithLabelValues(op).Inc()
		return fmt.Errorf("gateway %s call failed: %w", op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		util.RemoteCallErrorsTotal.WithLabelValues(op).Inc()
		return ErrAuthRequired
	case resp.StatusCode == http.StatusNotFound:
		util.RemoteCallErrorsTotal.WithLabelValues(op).Inc()
		return fmt.Errorf("gateway %s: %w", op, ErrNotFound)
	case resp.StatusCode >= 400:
		util.RemoteCallErrorsTotal.WithLabelValues(op).Inc()
		return &RemoteError{Op: op, Status: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

func readErrorMessage(r io.Reader) string {
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(r).Decode(&envelope); err != nil {
		return ""
	}
	return envelope.Error
}

// GetCart fetches the authoritative cart for the authenticated user.
func (c *Client) GetCart(ctx context.Context, token string) (*models.Cart, error) {
	var cart models.Cart
	if err := c.call(ctx, token, "get_user_cart", nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// AddToCartResult is the add_to_cart response envelope
type AddToCartResult struct {
	Success bool   `json:"success"`
	Action  string `json:"action"`
	Error   string `json:"error,omitempty"`
}

// AddToCart adds quantity units of a product variant to the user's cart.
func (c *Client) AddToCart(ctx context.Context, token, productID, variantID string, quantity int) (*AddToCartResult, error) {
	params := map[string]interface{}{
		"product_uuid":     productID,
		"variant_id_param": variantID,
		"quantity_param":   quantity,
	}
	var res AddToCartResult
	if err := c.call(ctx, token, "add_to_cart", params, &res); err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, &RemoteError{Op: "add_to_cart", Status: http.StatusOK, Message: res.Error}
	}
	return &res, nil
}

// UpdateCartItemQuantity sets the quantity of a cart item.
func (c *Client) UpdateCartItemQuantity(ctx context.Context, token, cartItemID string, quantity int) error {
	params := map[string]interface{}{
		"cart_item_id": cartItemID,
		"quantity":     quantity,
	}
	return c.call(ctx, token, "update_cart_item", params, nil)
}

// RemoveCartItem deletes a cart item.
func (c *Client) RemoveCartItem(ctx context.Context, token, cartItemID string) error {
	params := map[string]interface{}{
		"cart_item_id": cartItemID,
	}
	return c.call(ctx, token, "remove_cart_item", params, nil)
}

// CheckoutResult is the create_order_from_cart response envelope
type CheckoutResult struct {
	Success bool   `json:"success"`
	OrderID string `json:"order_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CreateOrderFromCart turns the current cart into an order. The gateway
// clears the cart on success.
func (c *Client) CreateOrderFromCart(ctx context.Context, token string) (*CheckoutResult, error) {
	var res CheckoutResult
	if err := c.call(ctx, token, "create_order_from_cart", nil, &res); err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, &RemoteError{Op: "create_order_from_cart", Status: http.StatusOK, Message: res.Error}
	}
	return &res, nil
}

// LikeProduct records a like. Idempotent per user and product.
func (c *Client) LikeProduct(ctx context.Context, token, productID string) error {
	return c.call(ctx, token, "like_product", map[string]interface{}{"product_uuid": productID}, nil)
}

// UnlikeProduct removes a like. Idempotent per user and product.
func (c *Client) UnlikeProduct(ctx context.Context, token, productID string) error {
	return c.call(ctx, token, "unlike_product", map[string]interface{}{"product_uuid": productID}, nil)
}

// ReviewResult is the add_product_review response envelope
type ReviewResult struct {
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Comment models.Comment `json:"comment"`
}

// AddProductReview submits a review and returns the confirmed comment
// entity (server-assigned id, display name, date).
func (c *Client) AddProductReview(ctx context.Context, token, productID, comment string, rating int) (*models.Comment, error) {
	params := map[string]interface{}{
		"product_uuid":       productID,
		"comment_text_param": comment,
		"rating_value_param": rating,
	}
	var res ReviewResult
	if err := c.call(ctx, token, "add_product_review", params, &res); err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, &RemoteError{Op: "add_product_review", Status: http.StatusOK, Message: res.Error}
	}
	return &res.Comment, nil
}

// GetProductDetail fetches product, comments and the caller's auth flag in
// one combined payload.
func (c *Client) GetProductDetail(ctx context.Context, token, productID string) (*models.ProductDetail, error) {
	var detail models.ProductDetail
	params := map[string]interface{}{"product_uuid": productID}
	if err := c.call(ctx, token, "get_product_detail", params, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// GetShopProducts fetches a page of the shop listing.
func (c *Client) GetShopProducts(ctx context.Context, token string, limit, offset int) (*models.ProductsResponse, error) {
	params := map[string]interface{}{
		"page_limit":  limit,
		"page_offset": offset,
	}
	var res models.ProductsResponse
	if err := c.call(ctx, token, "get_shop_products", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetPopularProducts fetches the popular-products strip.
func (c *Client) GetPopularProducts(ctx context.Context, maxResults int) ([]models.Product, error) {
	var res struct {
		Products []models.Product `json:"products"`
	}
	params := map[string]interface{}{"max_results": maxResults}
	if err := c.call(ctx, "", "get_popular_simple", params, &res); err != nil {
		return nil, err
	}
	return res.Products, nil
}

// GetUserProfile fetches the combined profile payload.
func (c *Client) GetUserProfile(ctx context.Context, token string) (*models.UserProfile, error) {
	var profile models.UserProfile
	if err := c.call(ctx, token, "get_user_profile", nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}
