package cart

import (
	"github.com/shopspring/decimal"

	"cart-service/internal/models"
)

// Subtotal is the checkout subtotal: quantity x sale price summed over the
// selected lines. The sum is exact; round only when displaying it.
func Subtotal(items []models.LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		if !item.Selected {
			continue
		}
		total = total.Add(decimal.NewFromFloat(item.SalePrice).Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// DisplaySubtotal formats a subtotal with two decimals
func DisplaySubtotal(total decimal.Decimal) string {
	return total.StringFixed(2)
}

// ItemCount is the total quantity across all lines
func ItemCount(items []models.LineItem) int {
	count := 0
	for _, item := range items {
		count += item.Quantity
	}
	return count
}

// SelectedCount is the number of selected lines
func SelectedCount(items []models.LineItem) int {
	count := 0
	for _, item := range items {
		if item.Selected {
			count++
		}
	}
	return count
}

// Subtotal returns the ledger's checkout subtotal
func (l *Ledger) Subtotal() decimal.Decimal {
	return Subtotal(l.state.CartItems)
}

// ItemCount returns the ledger's total quantity
func (l *Ledger) ItemCount() int {
	return ItemCount(l.state.CartItems)
}

func cloneItems(items []models.LineItem) []models.LineItem {
	out := make([]models.LineItem, len(items))
	for i, item := range items {
		out[i] = cloneItem(item)
	}
	return out
}

func cloneItem(item models.LineItem) models.LineItem {
	out := item
	if item.Images != nil {
		out.Images = append(item.Images[:0:0], item.Images...)
	}
	if item.SizeOptions != nil {
		out.SizeOptions = append(item.SizeOptions[:0:0], item.SizeOptions...)
	}
	if item.ColorOptions != nil {
		out.ColorOptions = append(item.ColorOptions[:0:0], item.ColorOptions...)
	}
	if item.Variants != nil {
		out.Variants = append(item.Variants[:0:0], item.Variants...)
	}
	if item.SizeTable != nil {
		out.SizeTable = append(item.SizeTable[:0:0], item.SizeTable...)
	}
	if item.ColorList != nil {
		out.ColorList = append(item.ColorList[:0:0], item.ColorList...)
	}
	if item.AddedAt != nil {
		added := *item.AddedAt
		out.AddedAt = &added
	}
	return out
}
