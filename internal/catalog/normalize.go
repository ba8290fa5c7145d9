package catalog

import "strings"

// Product is the canonical shape every resolver function works on. Build one
// with Normalize; the resolver never inspects snapshot shapes itself.
type Product struct {
	Base
	Variants  []Variant
	SizeTable SizeTable
	ColorList []Color
}

// HasVariants reports whether the product declares an explicit variant matrix
func (p Product) HasVariants() bool {
	return len(p.Variants) > 0
}

// Normalize converts either snapshot shape into a Product. The snapshot is
// copied, never modified. Prices are clamped to be non-negative, the sale
// percentage to [0, 100] and stock counts to >= 0.
func Normalize(s Snapshot) Product {
	if s == nil {
		return Product{}
	}

	p := Product{Base: normalizeBase(s.base())}

	switch v := s.(type) {
	case VariantedProduct:
		for _, variant := range v.Variants {
			p.Variants = append(p.Variants, normalizeVariant(variant))
		}
		p.ColorList = copyColors(v.ColorList)
	case LegacyProduct:
		if len(v.SizeTable) > 0 {
			p.SizeTable = make(SizeTable, 0, len(v.SizeTable))
			for _, entry := range v.SizeTable {
				label := strings.TrimSpace(entry.Label)
				if label == "" {
					continue
				}
				p.SizeTable = append(p.SizeTable, SizeStock{Label: label, Stock: nonNegative(entry.Stock)})
			}
		}
		p.ColorList = copyColors(v.ColorList)
	}

	return p
}

func normalizeBase(b Base) Base {
	out := b
	if out.BasePrice < 0 {
		out.BasePrice = 0
	}
	switch {
	case out.SalePercent < 0:
		out.SalePercent = 0
	case out.SalePercent > 100:
		out.SalePercent = 100
	}
	out.Stock = nonNegative(out.Stock)
	out.BaseColor = strings.TrimSpace(out.BaseColor)
	out.Images = nil
	if len(b.Images) > 0 {
		out.Images = append([]string(nil), b.Images...)
	}
	return out
}

func normalizeVariant(v Variant) Variant {
	out := Variant{
		Size:  strings.TrimSpace(v.Size),
		Color: strings.TrimSpace(v.Color),
		Stock: nonNegative(v.Stock),
	}
	if v.Price != nil {
		price := *v.Price
		out.Price = &price
	}
	return out
}

func copyColors(in []Color) []Color {
	if len(in) == 0 {
		return nil
	}
	out := make([]Color, 0, len(in))
	for _, c := range in {
		c.Name = strings.TrimSpace(c.Name)
		c.HexCode = strings.TrimSpace(c.HexCode)
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

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
