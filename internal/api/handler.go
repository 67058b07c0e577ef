package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront-client/internal/gateway"
	"storefront-client/internal/service"
	"storefront-client/internal/store"
	"storefront-client/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	registry *service.Registry
	journal  *store.Store
}

// NewHandler creates a new HTTP handler. journal may be nil; the mutation
// inspection endpoints are only mounted when it is present.
func NewHandler(registry *service.Registry, journal *store.Store) *Handler {
	return &Handler{
		registry: registry,
		journal:  journal,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/cart", h.getCart)
		v1.PATCH("/cart/items/:id", h.updateCartItem)
		v1.DELETE("/cart/items/:id", h.removeCartItem)
		v1.POST("/checkout", h.checkout)

		v1.GET("/products", h.getProducts)
		v1.GET("/products/popular", h.getPopularProducts)
		v1.GET("/products/:id", h.getProductDetail)
		v1.POST("/products/:id/like", h.toggleLike)
		v1.POST("/products/:id/cart", h.addToCart)
		v1.POST("/products/:id/reviews", h.addReview)

		v1.GET("/profile", h.getProfile)
		v1.GET("/alert", h.getAlert)
	}

	if h.journal != nil {
		ops := router.Group("/ops")
		{
			ops.GET("/mutations", h.getRecentMutations)
			ops.GET("/mutations/stale", h.getStaleMutationCount)
			ops.GET("/mutations/:token", h.getMutation)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// identity extracts the caller's user id and bearer token. Unauthenticated
// callers still get a stable id so their alert channel and public caches
// work.
func identity(c *gin.Context) (userID, token string) {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		token = strings.TrimPrefix(auth, "Bearer ")
	}

	userID = c.GetHeader("X-User-ID")
	if userID == "" {
		if token != "" {
			userID = "tok-" + util.ShortHash(token)
		} else {
			userID = "anon"
		}
	}
	return userID, token
}

func (h *Handler) getCart(c *gin.Context) {
	userID, token := identity(c)
	sess := h.registry.Cart(userID, token)

	cart, err := sess.Load(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, cart)
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

func (h *Handler) updateCartItem(c *gin.Context) {
	userID, token := identity(c)
	sess := h.registry.Cart(userID, token)

	var req updateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if _, err := sess.Load(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}

	m, err := sess.UpdateQuantity(c.Request.Context(), c.Param("id"), req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"mutation": m.Token,
		"status":   m.State().String(),
		"cart":     sess.Cart(),
	})
}

func (h *Handler) removeCartItem(c *gin.Context) {
	userID, token := identity(c)
	sess := h.registry.Cart(userID, token)

	if _, err := sess.Load(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}

	m, err := sess.RemoveItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	if m == nil {
		// Unknown item id, nothing to do.
		c.JSON(http.StatusOK, gin.H{"cart": sess.Cart()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"mutation": m.Token,
		"status":   m.State().String(),
		"cart":     sess.Cart(),
	})
}

func (h *Handler) checkout(c *gin.Context) {
	userID, token := identity(c)
	sess := h.registry.Cart(userID, token)

	if _, err := sess.Load(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}

	m, err := sess.Checkout(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"mutation": m.Token,
		"status":   m.State().String(),
	})
}

func (h *Handler) getProducts(c *gin.Context) {
	userID, token := identity(c)
	catalog := h.registry.Catalog(userID, token)

	limit := queryInt(c, "limit", 12)
	page := queryInt(c, "page", 1)
	if limit < 1 {
		limit = 12
	}
	if page < 1 {
		page = 1
	}

	resp, err := catalog.ShopProducts(c.Request.Context(), limit, (page-1)*limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getPopularProducts(c *gin.Context) {
	userID, token := identity(c)
	catalog := h.registry.Catalog(userID, token)

	max := queryInt(c, "limit", 8)
	products, err := catalog.PopularProducts(c.Request.Context(), max)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) getProductDetail(c *gin.Context) {
	userID, token := identity(c)
	sess := h.registry.Product(userID, token, c.Param("id"))

	detail, err := sess.Load(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

func (h *Handler) toggleLike(c *gin.Context) {
	userID, token := identity(c)
	sess := h.registry.Product(userID, token, c.Param("id"))

	if _, err := sess.Load(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}

	m, err := sess.ToggleLike(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"mutation": m.Token,
		"status":   m.State().String(),
		"detail":   sess.Detail(),
	})
}

type addToCartRequest struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) addToCart(c *gin.Context) {
	userID, token := identity(c)
	sess := h.registry.Product(userID, token, c.Param("id"))

	var req addToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	if req.Quantity < 1 {
		req.Quantity = 1
	}

	if _, err := sess.Load(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}

	m, err := sess.AddToCart(c.Request.Context(), req.VariantID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"mutation": m.Token,
		"status":   m.State().String(),
		"detail":   sess.Detail(),
	})
}

type addReviewRequest struct {
	Comment string `json:"comment"`
	Rating  int    `json:"rating"`
}

func (h *Handler) addReview(c *gin.Context) {
	userID, token := identity(c)
	sess := h.registry.Product(userID, token, c.Param("id"))

	var req addReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if _, err := sess.Load(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}

	m, err := sess.AddReview(c.Request.Context(), req.Comment, req.Rating)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"mutation": m.Token,
		"status":   m.State().String(),
		"detail":   sess.Detail(),
	})
}

func (h *Handler) getProfile(c *gin.Context) {
	userID, token := identity(c)
	catalog := h.registry.Catalog(userID, token)

	profile, err := catalog.Profile(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// getAlert returns the current single-slot notification, if visible.
func (h *Handler) getAlert(c *gin.Context) {
	userID, _ := identity(c)
	alerts := h.registry.AlertFor(userID)

	message, visible := alerts.Current()
	c.JSON(http.StatusOK, gin.H{
		"message": message,
		"visible": visible,
	})
}

// getRecentMutations lists the latest journal rows, newest first.
func (h *Handler) getRecentMutations(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}

	recs, err := h.journal.GetRecentMutations(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read journal", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mutations": recs})
}

// getStaleMutationCount reports journal rows stuck in PENDING past the
// cutoff, a signal that resolutions are being lost.
func (h *Handler) getStaleMutationCount(c *gin.Context) {
	olderThan := queryInt(c, "older_than_seconds", 300)

	count, err := h.journal.CountStaleMutations(c.Request.Context(), time.Duration(olderThan)*time.Second)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read journal", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stale": count, "older_than_seconds": olderThan})
}

// getMutation looks up one journal row by correlation token.
func (h *Handler) getMutation(c *gin.Context) {
	rec, err := h.journal.GetMutationByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Mutation not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// respondError maps service errors to HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gateway.ErrAuthRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
	case errors.Is(err, gateway.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrItemBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "A change for this item is still in flight"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Something went wrong",
			"details": err.Error(),
		})
	}
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
