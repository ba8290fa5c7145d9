package catalog

import (
	"encoding/json"
	"strings"
)

// RawProduct is the product-detail document as it arrives from the products API.
// Older catalog entries use different field names for the same data; all of them
// are accepted here and sorted out by Snapshot.
type RawProduct struct {
	ID           string          `json:"id"`
	LegacyID     string          `json:"_id"`
	Name         string          `json:"name"`
	Price        *float64        `json:"price"`
	BasePrice    *float64        `json:"basePrice"`
	SalePercent  *float64        `json:"salePercent"`
	Sale         *float64        `json:"sale"`
	Images       []string        `json:"images"`
	Image        string          `json:"image"`
	Variants     []Variant       `json:"variants"`
	SizeTable    json.RawMessage `json:"sizeTable"`
	Sizes        json.RawMessage `json:"sizes"`
	Size         json.RawMessage `json:"size"`
	ColorList    json.RawMessage `json:"colorList"`
	Colors       json.RawMessage `json:"colors"`
	Color        json.RawMessage `json:"color"` // a base color name or a color list
	BaseColor    string          `json:"baseColor"`
	Stock        *int            `json:"stock"`
	CountInStock *int            `json:"countInStock"`
}

// Snapshot classifies the raw document: a non-empty variants list makes it a
// VariantedProduct, anything else is a LegacyProduct.
func (r RawProduct) Snapshot() Snapshot {
	base := Base{
		ID:     firstNonEmpty(r.ID, r.LegacyID),
		Name:   r.Name,
		Images: r.Images,
	}
	if len(base.Images) == 0 && r.Image != "" {
		base.Images = []string{r.Image}
	}

	switch {
	case r.BasePrice != nil:
		base.BasePrice = *r.BasePrice
	case r.Price != nil:
		base.BasePrice = *r.Price
	}
	switch {
	case r.SalePercent != nil:
		base.SalePercent = *r.SalePercent
	case r.Sale != nil:
		base.SalePercent = *r.Sale
	}
	switch {
	case r.CountInStock != nil:
		base.Stock = *r.CountInStock
	case r.Stock != nil:
		base.Stock = *r.Stock
	}
	var colorName string
	_ = json.Unmarshal(r.Color, &colorName)
	base.BaseColor = firstNonEmpty(r.BaseColor, strings.TrimSpace(colorName))

	colors := decodeColorList(r.ColorList)
	if len(colors) == 0 {
		colors = decodeColorList(r.Colors)
	}
	if len(colors) == 0 && colorName == "" {
		colors = decodeColorList(r.Color)
	}

	if len(r.Variants) > 0 {
		return VariantedProduct{Base: base, Variants: r.Variants, ColorList: colors}
	}

	sizes := decodeSizeTable(r.SizeTable)
	if len(sizes) == 0 {
		sizes = decodeSizeTable(r.Sizes)
	}
	if len(sizes) == 0 {
		sizes = decodeSizeTable(r.Size)
	}
	return LegacyProduct{Base: base, SizeTable: sizes, ColorList: colors}
}

// decodeSizeTable reads a {label: stock} object. Anything else, such as a
// plain size string, yields no table.
func decodeSizeTable(raw json.RawMessage) SizeTable {
	if len(raw) == 0 {
		return nil
	}
	var table SizeTable
	if err := json.Unmarshal(raw, &table); err != nil {
		return nil
	}
	return table
}

// decodeColorList accepts either [{name, hexCode}] or a plain list of strings
func decodeColorList(raw json.RawMessage) []Color {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var colors []Color
	if err := json.Unmarshal(raw, &colors); err == nil {
		out := colors[:0]
		for _, c := range colors {
			if c.Name == "" && c.HexCode == "" {
				continue
			}
			if c.Name == "" {
				c.Name = c.HexCode
			}
			if c.HexCode == "" {
				c.HexCode = c.Name
			}
			out = append(out, c)
		}
		return out
	}

	var names []string
	if err := json.Unmarshal(raw, &names); err == nil {
		out := make([]Color, 0, len(names))
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				out = append(out, Color{Name: n, HexCode: n})
			}
		}
		return out
	}

	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
