package catalog

import (
	"github.com/shopspring/decimal"
)

// Resolution is the price and stock a size/color selection resolves to
type Resolution struct {
	UnitPrice float64
	Stock     int
	Variant   *Variant // nil when the product has no variants
	Matched   bool     // false when the first variant was used as a fallback
}

// ResolveVariant finds the variant for a size and color. Size is compared
// case-insensitively; the color key may be either the variant's color code or a
// display name from the product's color list. Without an exact match the first
// variant is used. Products without variants resolve to the base price and the
// stock recorded for the size in the legacy size table, if any.
func ResolveVariant(p Product, size, colorKey string) Resolution {
	if !p.HasVariants() {
		stock, found := p.SizeTable.Lookup(size)
		return Resolution{
			UnitPrice: Round2(p.BasePrice),
			Stock:     stock,
			Matched:   found,
		}
	}

	idx := -1
	for i, v := range p.Variants {
		if equalFold(v.Size, size) && colorMatches(p, v.Color, colorKey) {
			idx = i
			break
		}
	}

	matched := idx >= 0
	if !matched {
		idx = 0
	}
	variant := p.Variants[idx]

	return Resolution{
		UnitPrice: Round2(variantPrice(variant, p.BasePrice)),
		Stock:     variant.Stock,
		Variant:   &variant,
		Matched:   matched,
	}
}

// variantPrice returns the variant's own price, or the base price when the
// variant carries none
func variantPrice(v Variant, basePrice float64) float64 {
	if v.Price != nil && *v.Price > 0 {
		return *v.Price
	}
	return basePrice
}

// colorMatches compares a variant color against a key supplied by the UI. A
// variant without a color has no color axis and matches any key.
func colorMatches(p Product, variantColor, key string) bool {
	if variantColor == "" {
		return true
	}
	if equalFold(variantColor, key) {
		return true
	}
	if key == "" {
		return false
	}
	// The key may be the name while the variant stores the hex code, or the reverse.
	for _, c := range p.ColorList {
		linksKey := equalFold(c.Name, key) || equalFold(c.HexCode, key)
		linksVariant := equalFold(c.Name, variantColor) || equalFold(c.HexCode, variantColor)
		if linksKey && linksVariant {
			return true
		}
	}
	return false
}

// Round2 rounds half away from zero to two decimal places
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// SalePrice applies a percentage discount to a unit price and rounds the result.
// A unit price of zero stays zero.
func SalePrice(unitPrice, salePercent float64) float64 {
	switch {
	case salePercent < 0:
		salePercent = 0
	case salePercent > 100:
		salePercent = 100
	}
	factor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(salePercent).Div(decimal.NewFromInt(100)))
	price := decimal.NewFromFloat(unitPrice).Mul(factor).Round(2)
	if price.IsNegative() {
		return 0
	}
	return price.InexactFloat64()
}
