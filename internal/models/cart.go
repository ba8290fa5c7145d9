package models

import (
	"encoding/json"
	"strings"
	"time"

	"cart-service/internal/catalog"
)

// CartState is the persisted cart document
type CartState struct {
	CartItems       []LineItem       `json:"cartItems"`
	ShippingAddress *ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string           `json:"paymentMethod"`
}

// ShippingAddress is the address captured during checkout
type ShippingAddress struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Company      string `json:"company,omitempty"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state,omitempty"`
	PostalCode   string `json:"postalCode"`
	Country      string `json:"country"` // ISO 2-letter code
	Phone        string `json:"phone,omitempty"`
}

// Identity is what makes two line items the same line: product, size (case
// insensitive) and resolved color name (exact)
type Identity struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

// Matches reports whether two identities refer to the same line
func (id Identity) Matches(other Identity) bool {
	return id.ProductID == other.ProductID &&
		strings.EqualFold(id.Size, other.Size) &&
		id.Color == other.Color
}

// LineItem is one row of the cart
type LineItem struct {
	ID               string            `json:"id"`
	ProductID        string            `json:"product"`
	Name             string            `json:"name"`
	Images           []string          `json:"images,omitempty"`
	Size             string            `json:"size"`
	Color            string            `json:"color"`              // Resolved color name, part of the identity
	ColorHex         string            `json:"colorHex,omitempty"` // Color key the shopper picked
	Quantity         int               `json:"quantity"`
	UnitPrice        float64           `json:"unitPrice"`
	SalePrice        float64           `json:"salePrice"`
	SalePercent      float64           `json:"salePercent"`
	BasePrice        float64           `json:"basePrice"`
	StockAtSelection int               `json:"stockAtSelection"` // Snapshot for UI clamping only
	Selected         bool              `json:"selected"`
	SizeOptions      []string          `json:"sizeOptions,omitempty"`
	ColorOptions     []catalog.Color   `json:"colorOptions,omitempty"`
	Variants         []catalog.Variant `json:"variants,omitempty"`
	SizeTable        catalog.SizeTable `json:"sizeTable,omitempty"`
	ColorList        []catalog.Color   `json:"colorList,omitempty"`
	AddedAt          *time.Time        `json:"addedAt,omitempty"`
}

// Identity returns the line's identity key
func (li LineItem) Identity() Identity {
	return Identity{ProductID: li.ProductID, Size: li.Size, Color: li.Color}
}

// UnmarshalJSON reads current line items as well as the older shapes found in
// carts persisted before variants existed: productId/_id or a product object
// instead of product, qty for quantity, price for unitPrice, color as a
// {name, hexCode} object, and no selected flag.
func (li *LineItem) UnmarshalJSON(data []byte) error {
	type lineItemAlias LineItem
	aux := struct {
		*lineItemAlias
		Product   json.RawMessage `json:"product"`
		Color     json.RawMessage `json:"color"`
		ProductID string          `json:"productId"`
		LegacyID  string          `json:"_id"`
		Qty       *int            `json:"qty"`
		Price     *float64        `json:"price"`
		Selected  *bool           `json:"selected"`
	}{lineItemAlias: (*lineItemAlias)(li)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	li.ProductID = decodeProductRef(aux.Product)
	if li.ProductID == "" {
		li.ProductID = aux.ProductID
	}
	if li.ProductID == "" {
		li.ProductID = aux.LegacyID
	}

	name, hex := decodeColorRef(aux.Color)
	li.Color = name
	if li.ColorHex == "" {
		li.ColorHex = hex
	}

	if li.Quantity == 0 && aux.Qty != nil {
		li.Quantity = *aux.Qty
	}
	if li.UnitPrice == 0 && aux.Price != nil {
		li.UnitPrice = *aux.Price
	}
	if li.SalePrice == 0 && li.UnitPrice > 0 {
		li.SalePrice = catalog.SalePrice(li.UnitPrice, li.SalePercent)
	}

	li.Selected = aux.Selected == nil || *aux.Selected
	return nil
}

func decodeProductRef(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID       string `json:"id"`
		LegacyID string `json:"_id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.ID != "" {
			return obj.ID
		}
		return obj.LegacyID
	}
	return ""
}

func decodeColorRef(raw json.RawMessage) (name, hex string) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, ""
	}
	var c catalog.Color
	if err := json.Unmarshal(raw, &c); err == nil {
		if c.Name == "" {
			return c.HexCode, c.HexCode
		}
		return c.Name, c.HexCode
	}
	return "", ""
}
