package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"cart-service/internal/cart"
	"cart-service/internal/clients"
	"cart-service/internal/models"
	"cart-service/internal/services"
	"cart-service/internal/validation"
)

// CartHandler exposes a shopper's cart ledger over HTTP
type CartHandler struct {
	cartService *services.CartService
	logger      *logrus.Entry
}

// NewCartHandler creates a cart handler
func NewCartHandler(cartService *services.CartService, logger *logrus.Logger) *CartHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CartHandler{
		cartService: cartService,
		logger:      logger.WithField("component", "cart-handler"),
	}
}

// AddItemRequest is the body of POST /items
type AddItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
	ColorKey  string `json:"colorKey"`
	ColorName string `json:"colorName"`
}

// UpdateQtyRequest is the body of PATCH /items
type UpdateQtyRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Quantity  int    `json:"quantity"`
}

// EditItemRequest is the body of PUT /items. Size and Color identify the line
// being edited; the remaining fields are the new selection. Omitted fields keep
// the line's current size, color and quantity.
type EditItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	NewSize   string `json:"newSize"`
	ColorKey  string `json:"colorKey"`
	ColorName string `json:"colorName"`
	Quantity  int    `json:"quantity"`
}

// ToggleSelectionRequest is the body of POST /selection/toggle
type ToggleSelectionRequest struct {
	ProductID string `json:"productId" binding:"required"`
}

// SelectAllRequest is the body of POST /selection
type SelectAllRequest struct {
	Selected *bool `json:"selected" binding:"required"`
}

// PaymentMethodRequest is the body of PUT /payment-method
type PaymentMethodRequest struct {
	PaymentMethod string `json:"paymentMethod" binding:"required"`
}

func (h *CartHandler) cartKey(c *gin.Context) string {
	return h.cartService.CartKey(c.GetString("tenant_id"), c.GetString("cart_owner"))
}

// GetCart handles GET /carts/:owner
func (h *CartHandler) GetCart(c *gin.Context) {
	summary, err := h.cartService.Summary(c.Request.Context(), h.cartKey(c))
	if err != nil {
		h.logger.WithError(err).Error("Failed to load cart")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load cart"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// AddItem handles POST /carts/:owner/items
func (h *CartHandler) AddItem(c *gin.Context) {
	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := h.cartService.AddProduct(c.Request.Context(), h.cartKey(c), c.GetString("tenant_id"), req.ProductID, services.ItemSelection{
		Quantity:  req.Quantity,
		Size:      req.Size,
		ColorKey:  req.ColorKey,
		ColorName: req.ColorName,
	})
	h.respond(c, summary, err)
}

// UpdateItemQty handles PATCH /carts/:owner/items
func (h *CartHandler) UpdateItemQty(c *gin.Context) {
	var req UpdateQtyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.mutate(c, func(l *cart.Ledger) error {
		_, err := l.UpdateItemQty(c.Request.Context(), req.ProductID, req.Size, req.Color, req.Quantity)
		return err
	})
}

// EditItem handles PUT /carts/:owner/items
func (h *CartHandler) EditItem(c *gin.Context) {
	var req EditItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	old := models.Identity{ProductID: req.ProductID, Size: req.Size, Color: req.Color}
	summary, err := h.cartService.UpdateProduct(c.Request.Context(), h.cartKey(c), c.GetString("tenant_id"), old, services.ItemSelection{
		Quantity:  req.Quantity,
		Size:      req.NewSize,
		ColorKey:  req.ColorKey,
		ColorName: req.ColorName,
	})
	h.respond(c, summary, err)
}

// RemoveItem handles DELETE /carts/:owner/items?productId=&size=&color=
func (h *CartHandler) RemoveItem(c *gin.Context) {
	productID := c.Query("productId")
	if productID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "productId is required"})
		return
	}

	h.mutate(c, func(l *cart.Ledger) error {
		_, err := l.RemoveFromCart(c.Request.Context(), productID, c.Query("size"), c.Query("color"))
		return err
	})
}

// ToggleSelection handles POST /carts/:owner/selection/toggle
func (h *CartHandler) ToggleSelection(c *gin.Context) {
	var req ToggleSelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.mutate(c, func(l *cart.Ledger) error {
		_, err := l.ToggleItemSelection(c.Request.Context(), req.ProductID)
		return err
	})
}

// SelectAll handles POST /carts/:owner/selection
func (h *CartHandler) SelectAll(c *gin.Context) {
	var req SelectAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.mutate(c, func(l *cart.Ledger) error {
		_, err := l.SelectAllItems(c.Request.Context(), *req.Selected)
		return err
	})
}

// ClearCart handles DELETE /carts/:owner
func (h *CartHandler) ClearCart(c *gin.Context) {
	h.mutate(c, func(l *cart.Ledger) error {
		_, err := l.ClearCart(c.Request.Context())
		return err
	})
}

// SaveShippingAddress handles PUT /carts/:owner/shipping-address
func (h *CartHandler) SaveShippingAddress(c *gin.Context) {
	var addr models.ShippingAddress
	if err := c.ShouldBindJSON(&addr); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	validation.SanitizeShippingAddress(&addr)
	if errs := validation.ValidateShippingAddress(&addr); errs.HasErrors() {
		h.logger.WithFields(validation.MaskShippingAddress(&addr)).Debug("Rejected shipping address")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid shipping address", "details": errs})
		return
	}

	h.mutate(c, func(l *cart.Ledger) error {
		return l.SaveShippingAddress(c.Request.Context(), addr)
	})
}

// SavePaymentMethod handles PUT /carts/:owner/payment-method
func (h *CartHandler) SavePaymentMethod(c *gin.Context) {
	var req PaymentMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.PaymentMethod) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "paymentMethod is required"})
		return
	}

	h.mutate(c, func(l *cart.Ledger) error {
		return l.SavePaymentMethod(c.Request.Context(), req.PaymentMethod)
	})
}

// mutate runs fn on the caller's ledger and responds with the resulting cart
func (h *CartHandler) mutate(c *gin.Context, fn func(l *cart.Ledger) error) {
	var summary *services.Summary
	err := h.cartService.WithLedger(c.Request.Context(), h.cartKey(c), func(l *cart.Ledger) error {
		err := fn(l)
		summary = services.Summarize(l)
		return err
	})
	h.respond(c, summary, err)
}

func (h *CartHandler) respond(c *gin.Context, summary *services.Summary, err error) {
	if err == nil {
		c.JSON(http.StatusOK, summary)
		return
	}

	if errors.Is(err, clients.ErrProductNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}

	h.logger.WithError(err).WithField("cartKey", h.cartKey(c)).Error("Cart operation failed")
	if errors.Is(err, services.ErrProductLookup) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch product"})
		return
	}
	if summary == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load cart"})
		return
	}
	// The change is applied in memory but could not be saved
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save cart", "cart": summary})
}
