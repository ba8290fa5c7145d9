package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"cart-service/internal/catalog"
	"cart-service/internal/clients"
	"cart-service/internal/services"
)

// ProductOptionsHandler serves the size and color choices of a product so the
// storefront can render its selectors and disable sold-out combinations
type ProductOptionsHandler struct {
	products services.ProductFetcher
	logger   *logrus.Entry
}

// NewProductOptionsHandler creates a product options handler
func NewProductOptionsHandler(products services.ProductFetcher, logger *logrus.Logger) *ProductOptionsHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ProductOptionsHandler{
		products: products,
		logger:   logger.WithField("component", "product-options-handler"),
	}
}

// ResolutionResponse is the price and stock of the selected size and color
type ResolutionResponse struct {
	Size      string           `json:"size"`
	ColorKey  string           `json:"colorKey"`
	UnitPrice float64          `json:"unitPrice"`
	SalePrice float64          `json:"salePrice"`
	Stock     int              `json:"stock"`
	Matched   bool             `json:"matched"`
	Variant   *catalog.Variant `json:"variant,omitempty"`
}

// OptionsResponse is the body of GET /products/:productId/options
type OptionsResponse struct {
	ProductID       string              `json:"productId"`
	HasVariants     bool                `json:"hasVariants"`
	SizeOptions     []string            `json:"sizeOptions"`
	ColorOptions    []catalog.Color     `json:"colorOptions"`
	SizeTable       catalog.SizeTable   `json:"sizeTable"`
	ColorList       []catalog.Color     `json:"colorList"`
	AvailableSizes  []string            `json:"availableSizes,omitempty"`
	AvailableColors []catalog.Color     `json:"availableColors,omitempty"`
	Resolution      *ResolutionResponse `json:"resolution,omitempty"`
}

// GetOptions handles GET /products/:productId/options?size=&color=
func (h *ProductOptionsHandler) GetOptions(c *gin.Context) {
	productID := c.Param("productId")
	tenantID := c.GetString("tenant_id")

	snapshot, err := h.products.GetProduct(c.Request.Context(), tenantID, productID)
	if err != nil {
		if errors.Is(err, clients.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		h.logger.WithError(err).WithField("productID", productID).Error("Failed to fetch product")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch product"})
		return
	}

	c.JSON(http.StatusOK, BuildOptions(snapshot, c.Query("size"), c.Query("color")))
}

// BuildOptions computes the selector data for a product. size and colorKey are
// optional; when given they narrow the available colors and sizes and select a
// variant to price.
func BuildOptions(snapshot catalog.Snapshot, size, colorKey string) OptionsResponse {
	p := catalog.Normalize(snapshot)

	resp := OptionsResponse{
		ProductID:    p.ID,
		HasVariants:  p.HasVariants(),
		SizeOptions:  catalog.SizeOptions(p),
		ColorOptions: catalog.ColorOptions(p),
		SizeTable:    catalog.DeriveSizeTable(p),
		ColorList:    catalog.DeriveColorList(p),
	}
	if len(resp.SizeOptions) == 0 {
		resp.SizeOptions = resp.SizeTable.Labels()
	}
	if len(resp.ColorOptions) == 0 {
		resp.ColorOptions = resp.ColorList
	}

	if colorKey != "" {
		resp.AvailableSizes = catalog.AvailableSizesForColor(p, colorKey)
	}
	if size != "" {
		resp.AvailableColors = catalog.AvailableColorsForSize(p, size)

		res := catalog.ResolveVariant(p, size, colorKey)
		resp.Resolution = &ResolutionResponse{
			Size:      size,
			ColorKey:  colorKey,
			UnitPrice: res.UnitPrice,
			SalePrice: catalog.SalePrice(res.UnitPrice, p.SalePercent),
			Stock:     res.Stock,
			Matched:   res.Matched,
			Variant:   res.Variant,
		}
	}

	return resp
}
