package models

import "time"

// VariantData is the denormalized variant payload embedded in a cart item.
type VariantData struct {
	ID        string  `json:"id"`
	SKU       string  `json:"sku"`
	Size      string  `json:"size"`
	Price     float64 `json:"price"`
	Stock     int     `json:"stock"`
	Weight    string  `json:"weight"`
	IsDefault bool    `json:"is_default"`
}

// CartItem represents a single line in the user's cart
type CartItem struct {
	CartItemID     string      `json:"cart_item_id"`
	ProductID      string      `json:"product_id"`
	ProductTitle   string      `json:"product_title"`
	ProductImage   string      `json:"product_image"`
	VariantID      string      `json:"variant_id"`
	VariantData    VariantData `json:"variant_data"`
	Quantity       int         `json:"quantity"`
	UnitPrice      float64     `json:"unit_price"`
	LineTotal      float64     `json:"line_total"`
	VariantStock   int         `json:"variant_stock"`
	ProductInStock bool        `json:"product_in_stock"`
	AddedAt        time.Time   `json:"added_at"`
	IsOptimistic   bool        `json:"is_optimistic,omitempty"`
}

// CartSummary aggregates the cart's derived totals
type CartSummary struct {
	Subtotal      float64 `json:"subtotal"`
	ItemsCount    int     `json:"items_count"`
	EstimatedTax  float64 `json:"estimated_tax"`
	ShippingCost  float64 `json:"shipping_cost"`
	TotalQuantity int     `json:"total_quantity"`
}

// Cart is the authoritative cart payload returned by the gateway
type Cart struct {
	Total     float64     `json:"total"`
	Summary   CartSummary `json:"summary"`
	CartItems []CartItem  `json:"cart_items"`
}

// Clone returns a deep copy. Undo closures hold clones so that a rollback
// restores the exact pre-mutation state.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	next := *c
	next.CartItems = make([]CartItem, len(c.CartItems))
	copy(next.CartItems, c.CartItems)
	return &next
}

// FindItem returns the index of the item with the given id, or -1.
func (c *Cart) FindItem(cartItemID string) int {
	for i := range c.CartItems {
		if c.CartItems[i].CartItemID == cartItemID {
			return i
		}
	}
	return -1
}

// ProductVariant represents a purchasable variant of a product
type ProductVariant struct {
	ID        string  `json:"id"`
	Size      string  `json:"size"`
	Weight    string  `json:"weight"`
	Stock     int     `json:"stock"`
	Price     float64 `json:"price"`
	IsDefault bool    `json:"is_default,omitempty"`
}

// VariantsEnvelope mirrors the gateway's nested variants payload
type VariantsEnvelope struct {
	Variants []ProductVariant `json:"variants"`
}

// Product represents a catalog product
type Product struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Category         []string         `json:"category"`
	Images           []string         `json:"images"`
	Featured         bool             `json:"featured,omitempty"`
	Variants         VariantsEnvelope `json:"variants"`
	RatingsAverage   float64          `json:"ratings_average"`
	RatingsCount     int              `json:"ratings_count"`
	LikesCount       int              `json:"likes_count"`
	CommentsCount    int              `json:"comments_count"`
	UserCartQuantity int              `json:"user_cart_quantity,omitempty"`
	UserHasLiked     bool             `json:"user_has_liked,omitempty"`
	UserRating       int              `json:"user_rating,omitempty"`
}

// DefaultVariant returns the variant flagged as default, or the first one.
func (p *Product) DefaultVariant() *ProductVariant {
	for i := range p.Variants.Variants {
		if p.Variants.Variants[i].IsDefault {
			return &p.Variants.Variants[i]
		}
	}
	if len(p.Variants.Variants) > 0 {
		return &p.Variants.Variants[0]
	}
	return nil
}

// Variant returns the variant with the given id, or nil.
func (p *Product) Variant(variantID string) *ProductVariant {
	for i := range p.Variants.Variants {
		if p.Variants.Variants[i].ID == variantID {
			return &p.Variants.Variants[i]
		}
	}
	return nil
}

// Comment represents a product review
type Comment struct {
	ID           string `json:"id"`
	User         string `json:"user"`
	UserAvatar   string `json:"user_avatar,omitempty"`
	Rating       int    `json:"rating"`
	Comment      string `json:"comment"`
	Date         string `json:"date"`
	IsOptimistic bool   `json:"isOptimistic,omitempty"`
}

// ProductDetail is the combined detail payload: product, reviews and the
// caller's authentication flag in a single fetch
type ProductDetail struct {
	Product           Product   `json:"product"`
	Comments          []Comment `json:"comments"`
	UserAuthenticated bool      `json:"user_authenticated"`
}

// Clone returns a deep copy of the detail payload.
func (d *ProductDetail) Clone() *ProductDetail {
	if d == nil {
		return nil
	}
	next := *d
	next.Comments = make([]Comment, len(d.Comments))
	copy(next.Comments, d.Comments)
	next.Product.Category = append([]string(nil), d.Product.Category...)
	next.Product.Images = append([]string(nil), d.Product.Images...)
	next.Product.Variants.Variants = append([]ProductVariant(nil), d.Product.Variants.Variants...)
	return &next
}

// Pagination describes server-side paging metadata
type Pagination struct {
	TotalCount int  `json:"total_count"`
	PageOffset int  `json:"page_offset"`
	PageLimit  int  `json:"page_limit"`
	HasNext    bool `json:"has_next"`
}

// ProductsResponse is the paged shop listing payload
type ProductsResponse struct {
	Products          []Product  `json:"products"`
	Pagination        Pagination `json:"pagination"`
	UserAuthenticated bool       `json:"user_authenticated"`
}

// UserProfile is the combined profile payload
type UserProfile struct {
	Profile struct {
		ID               string `json:"id"`
		Username         string `json:"username"`
		FullName         string `json:"full_name"`
		Email            string `json:"email"`
		AvatarURL        string `json:"avatar_url"`
		ProfileCreatedAt string `json:"profile_created_at"`
	} `json:"profile"`
	OrderStats struct {
		TotalOrders     int     `json:"total_orders"`
		CompletedOrders int     `json:"completed_orders"`
		PendingOrders   int     `json:"pending_orders"`
		ShippedOrders   int     `json:"shipped_orders"`
		LifetimeValue   float64 `json:"lifetime_value"`
		AvgOrderValue   float64 `json:"avg_order_value"`
		LastOrderDate   string  `json:"last_order_date"`
	} `json:"order_stats"`
	RecentOrders []RecentOrder `json:"recent_orders"`
	CartSummary  struct {
		ItemsCount    int     `json:"items_count"`
		TotalQuantity int     `json:"total_quantity"`
		CartValue     float64 `json:"cart_value"`
	} `json:"cart_summary"`
}

// RecentOrder is a compact order row shown on the profile page
type RecentOrder struct {
	ID          string  `json:"id"`
	Status      string  `json:"status"`
	TotalAmount float64 `json:"total_amount"`
	CreatedAt   string  `json:"created_at"`
	ItemsCount  int     `json:"items_count"`
}

// Mutation kinds
const (
	MutationAddToCart      = "ADD_TO_CART"
	MutationUpdateQuantity = "UPDATE_QUANTITY"
	MutationRemoveItem     = "REMOVE_ITEM"
	MutationLike           = "LIKE"
	MutationUnlike         = "UNLIKE"
	MutationAddReview      = "ADD_REVIEW"
	MutationCheckout       = "CHECKOUT"
)

// Mutation journal statuses
const (
	MutationStatusPending    = "PENDING"
	MutationStatusApplied    = "APPLIED"
	MutationStatusRolledBack = "ROLLED_BACK"
)

// MutationRecord is a journal row tracking one mutation's lifecycle
type MutationRecord struct {
	Token      string     `db:"token" json:"token"`
	Kind       string     `db:"kind" json:"kind"`
	TargetID   string     `db:"target_id" json:"target_id"`
	Status     string     `db:"status" json:"status"`
	Detail     string     `db:"detail" json:"detail,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

// ProcessedEvent for idempotent event consumption
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
