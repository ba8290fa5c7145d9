package cart

import (
	"context"
	"time"

	"cart-service/internal/models"
)

// ChangeOp names the mutation that produced a Change
type ChangeOp string

const (
	OpItemAdded            ChangeOp = "item_added"
	OpItemRemoved          ChangeOp = "item_removed"
	OpQuantityUpdated      ChangeOp = "quantity_updated"
	OpItemUpdated          ChangeOp = "item_updated"
	OpSelectionToggled     ChangeOp = "selection_toggled"
	OpSelectionSet         ChangeOp = "selection_set"
	OpCleared              ChangeOp = "cleared"
	OpShippingAddressSaved ChangeOp = "shipping_address_saved"
	OpPaymentMethodSaved   ChangeOp = "payment_method_saved"
)

// Change describes a committed mutation
type Change struct {
	Key       string
	Op        ChangeOp
	Identity  *models.Identity // Line affected, for single-line operations
	Previous  *models.Identity // Line replaced by OpItemUpdated
	ProductID string           // Product affected by OpSelectionToggled
	Items     []models.LineItem
	At        time.Time
}

// Observer is notified after every committed mutation. Observers run
// synchronously inside the mutation and must not call back into the ledger.
type Observer interface {
	CartChanged(ctx context.Context, change Change)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(ctx context.Context, change Change)

// CartChanged calls f
func (f ObserverFunc) CartChanged(ctx context.Context, change Change) {
	f(ctx, change)
}
