// Package catalog holds the product snapshot shapes a cart is built from and the
// variant resolution rules applied to them.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	// OneSize is the synthetic size offered when a product declares none
	OneSize = "One Size"

	// StandardColor is the synthetic color offered when a product declares none
	StandardColor = "Standard"
)

// Base carries the fields shared by every product shape
type Base struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	BasePrice   float64  `json:"basePrice"`
	SalePercent float64  `json:"salePercent"`
	Images      []string `json:"images,omitempty"`
	BaseColor   string   `json:"baseColor,omitempty"` // Declared base color for colorless products
	Stock       int      `json:"stock"`               // Product-level stock for legacy shapes
}

// Variant is one size/color combination of a product
type Variant struct {
	Size  string   `json:"size"`
	Color string   `json:"color"`
	Stock int      `json:"stock"`
	Price *float64 `json:"price,omitempty"` // nil or <= 0 falls back to the base price
}

// Color is a selectable color
type Color struct {
	Name    string `json:"name"`
	HexCode string `json:"hexCode"`
}

// SizeStock is a single entry of a legacy size table
type SizeStock struct {
	Label string
	Stock int
}

// SizeTable maps size labels to stock counts. It keeps the order the labels were
// declared in, which a plain map would lose.
type SizeTable []SizeStock

// Lookup returns the stock for a size label, compared case-insensitively
func (t SizeTable) Lookup(label string) (int, bool) {
	for _, entry := range t {
		if equalFold(entry.Label, label) {
			return entry.Stock, true
		}
	}
	return 0, false
}

// Labels returns the size labels in declaration order
func (t SizeTable) Labels() []string {
	labels := make([]string, 0, len(t))
	for _, entry := range t {
		labels = append(labels, entry.Label)
	}
	return labels
}

// MarshalJSON encodes the table as a JSON object, preserving order
func (t SizeTable) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range t {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(entry.Label)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		fmt.Fprintf(&buf, "%d", entry.Stock)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object of label -> stock. Key order is preserved.
// Non-numeric stock values decode as zero.
func (t *SizeTable) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("size table must be a JSON object")
	}

	table := SizeTable{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		label, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		table = append(table, SizeStock{Label: label, Stock: decodeStock(raw)})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*t = table
	return nil
}

func decodeStock(raw json.RawMessage) int {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
		if f, err := n.Float64(); err == nil {
			return int(f)
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		var i int
		if _, err := fmt.Sscanf(s, "%d", &i); err == nil {
			return i
		}
	}
	return 0
}

// Snapshot is a product as delivered by the catalog, in one of two shapes.
// Only VariantedProduct and LegacyProduct implement it.
type Snapshot interface {
	base() Base
	isSnapshot()
}

// VariantedProduct declares its size/color matrix explicitly
type VariantedProduct struct {
	Base
	Variants []Variant
	// ColorList optionally supplies display names for variant color codes
	ColorList []Color
}

func (p VariantedProduct) base() Base { return p.Base }
func (VariantedProduct) isSnapshot() {}

// LegacyProduct carries flat size and color fields instead of variants
type LegacyProduct struct {
	Base
	SizeTable SizeTable
	ColorList []Color
}

func (p LegacyProduct) base() Base { return p.Base }
func (LegacyProduct) isSnapshot() {}
