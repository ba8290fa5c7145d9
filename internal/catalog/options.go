package catalog

import (
	"sort"
	"strings"
)

// sizeRank orders the well-known apparel sizes; anything else sorts after them
var sizeRank = map[string]int{
	"S":   0,
	"M":   1,
	"L":   2,
	"XL":  3,
	"XXL": 4,
}

const unknownSizeRank = 100

func rankOf(size string) int {
	if r, ok := sizeRank[size]; ok {
		return r
	}
	return unknownSizeRank
}

// SizeOptions returns the sizes a shopper can pick from. Variant sizes are
// upper-cased, de-duplicated and ordered S < M < L < XL < XXL, with unknown
// sizes after those in first-seen order. Products without variants offer the
// labels of their size table.
func SizeOptions(p Product) []string {
	if !p.HasVariants() {
		return p.SizeTable.Labels()
	}

	seen := make(map[string]bool)
	sizes := make([]string, 0)
	for _, v := range p.Variants {
		size := strings.ToUpper(v.Size)
		if size == "" || seen[size] {
			continue
		}
		seen[size] = true
		sizes = append(sizes, size)
	}

	sort.SliceStable(sizes, func(i, j int) bool {
		return rankOf(sizes[i]) < rankOf(sizes[j])
	})
	return sizes
}

// ColorOptions returns the colors a shopper can pick from, in first-seen order.
// Variant colors keep their raw value as the hex code and take their display
// name from the color list when one matches. Products whose variants carry no
// color fall back to the color list.
func ColorOptions(p Product) []Color {
	if p.HasVariants() {
		seen := make(map[string]bool)
		colors := make([]Color, 0)
		for _, v := range p.Variants {
			key := strings.ToLower(v.Color)
			if v.Color == "" || seen[key] {
				continue
			}
			seen[key] = true
			colors = append(colors, Color{HexCode: v.Color, Name: displayName(p, v.Color)})
		}
		if len(colors) > 0 {
			return colors
		}
	}
	return copyColors(p.ColorList)
}

func displayName(p Product, raw string) string {
	for _, c := range p.ColorList {
		if equalFold(c.HexCode, raw) || equalFold(c.Name, raw) {
			return c.Name
		}
	}
	return raw
}

// AvailableSizesForColor lists the sizes still in stock for a color. It is used
// to disable unavailable combinations, not to change an existing selection.
func AvailableSizesForColor(p Product, colorKey string) []string {
	if !p.HasVariants() {
		sizes := make([]string, 0)
		for _, entry := range p.SizeTable {
			if entry.Stock > 0 {
				sizes = append(sizes, entry.Label)
			}
		}
		return sizes
	}

	inStock := make(map[string]bool)
	for _, v := range p.Variants {
		if v.Stock > 0 && colorMatches(p, v.Color, colorKey) {
			inStock[strings.ToUpper(v.Size)] = true
		}
	}

	sizes := make([]string, 0, len(inStock))
	for _, size := range SizeOptions(p) {
		if inStock[size] {
			sizes = append(sizes, size)
		}
	}
	return sizes
}

// AvailableColorsForSize lists the colors still in stock for a size
func AvailableColorsForSize(p Product, size string) []Color {
	if !p.HasVariants() {
		stock, found := p.SizeTable.Lookup(size)
		if !found {
			stock = p.Stock
		}
		if stock <= 0 {
			return []Color{}
		}
		return ColorOptions(p)
	}

	colors := make([]Color, 0)
	for _, option := range ColorOptions(p) {
		for _, v := range p.Variants {
			if v.Stock > 0 && equalFold(v.Size, size) && colorMatches(p, v.Color, option.HexCode) {
				colors = append(colors, option)
				break
			}
		}
	}
	return colors
}

// DeriveSizeTable returns the size table a cart line uses for selection. Legacy
// size tables are used as-is, otherwise variant stock is summed per size. A
// product with neither gets a single OneSize entry so it still has an identity.
func DeriveSizeTable(p Product) SizeTable {
	if len(p.SizeTable) > 0 {
		return append(SizeTable(nil), p.SizeTable...)
	}

	if p.HasVariants() {
		stock := make(map[string]int)
		for _, v := range p.Variants {
			stock[strings.ToUpper(v.Size)] += v.Stock
		}
		table := make(SizeTable, 0, len(stock))
		for _, size := range SizeOptions(p) {
			table = append(table, SizeStock{Label: size, Stock: stock[size]})
		}
		if len(table) > 0 {
			return table
		}
	}

	return SizeTable{{Label: OneSize, Stock: stockOrOne(p)}}
}

// DeriveColorList returns the colors a cart line uses for selection, falling back
// to the product's base color or StandardColor when none are declared
func DeriveColorList(p Product) []Color {
	if colors := ColorOptions(p); len(colors) > 0 {
		return colors
	}
	name := p.BaseColor
	if name == "" {
		name = StandardColor
	}
	return []Color{{Name: name, HexCode: name}}
}

func stockOrOne(p Product) int {
	if p.Stock > 0 {
		return p.Stock
	}
	return 1
}
