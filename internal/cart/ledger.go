// Package cart implements the cart ledger: the single owner of a shopper's line
// items and the rules applied when they are added, edited, selected or removed.
package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"cart-service/internal/catalog"
	"cart-service/internal/models"
	"cart-service/internal/repository"
)

// Ledger owns one cart. Every mutation runs to completion, is saved to the
// store and is then announced to observers. A Ledger is not safe for concurrent
// use; callers serialize access (see services.CartService).
//
// No mutation fails on bad input: quantities below one become one, missing
// sizes and colors are defaulted. The only error a mutation returns is a failed
// save, in which case the in-memory cart still holds the change.
type Ledger struct {
	key       string
	store     repository.Store
	state     models.CartState
	observers []Observer
	logger    *logrus.Entry
	now       func() time.Time
	newID     func() string
}

// Option configures a Ledger
type Option func(*Ledger)

// WithObserver registers an observer notified after each mutation
func WithObserver(o Observer) Option {
	return func(l *Ledger) {
		if o != nil {
			l.observers = append(l.observers, o)
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *logrus.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger.WithField("component", "cart-ledger")
		}
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator overrides the line item id generator
func WithIDGenerator(fn func() string) Option {
	return func(l *Ledger) { l.newID = fn }
}

// New creates an empty ledger for a cart key. A nil store keeps the cart in
// memory only.
func New(key string, store repository.Store, opts ...Option) *Ledger {
	l := &Ledger{
		key:    key,
		store:  store,
		state:  models.CartState{CartItems: []models.LineItem{}},
		logger: logrus.StandardLogger().WithField("component", "cart-ledger"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key returns the cart key the ledger persists under
func (l *Ledger) Key() string {
	return l.key
}

// Load rehydrates the ledger from its store. A missing cart leaves the ledger
// empty. Loaded items are re-normalized so older documents satisfy the same
// invariants as fresh ones.
func (l *Ledger) Load(ctx context.Context) error {
	if l.store == nil {
		return nil
	}

	state, err := l.store.Load(ctx, l.key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load cart %s: %w", l.key, err)
	}

	l.state = *state
	before := len(l.state.CartItems)
	l.state.CartItems = l.normalizeItems(l.state.CartItems)
	if merged := before - len(l.state.CartItems); merged > 0 {
		l.logger.WithFields(logrus.Fields{
			"cartKey": l.key,
			"merged":  merged,
		}).Warn("Merged duplicate line items found in stored cart")
	}
	return nil
}

// AddToCart adds qty of a product in the given size and color. A line with the
// same identity absorbs the quantity; otherwise a new selected line is
// appended. Stock is not enforced here.
func (l *Ledger) AddToCart(ctx context.Context, snapshot catalog.Snapshot, qty int, size, colorKey, colorName string) ([]models.LineItem, error) {
	item := l.addItem(snapshot, qty, size, colorKey, colorName)
	id := item.Identity()
	return l.commit(ctx, Change{Op: OpItemAdded, Identity: &id})
}

// RemoveFromCart deletes the line with the given identity. Removing a line that
// is not in the cart does nothing.
func (l *Ledger) RemoveFromCart(ctx context.Context, productID, size, colorName string) ([]models.LineItem, error) {
	id := models.Identity{ProductID: productID, Size: size, Color: colorName}
	if !l.removeItem(id) {
		return l.Items(), nil
	}
	return l.commit(ctx, Change{Op: OpItemRemoved, Identity: &id})
}

// UpdateItemQty replaces a line's quantity. Quantities below one are stored as
// one; deleting a line always goes through RemoveFromCart.
func (l *Ledger) UpdateItemQty(ctx context.Context, productID, size, colorName string, newQty int) ([]models.LineItem, error) {
	id := models.Identity{ProductID: productID, Size: size, Color: colorName}
	idx := l.indexOf(id)
	if idx < 0 {
		return l.Items(), nil
	}
	l.state.CartItems[idx].Quantity = atLeastOne(newQty)
	return l.commit(ctx, Change{Op: OpQuantityUpdated, Identity: &id})
}

// UpdateCartItem replaces a line with a new selection of a (possibly refreshed)
// product. It removes the old line and adds the new one, so a selection that
// collides with another existing line merges into it.
func (l *Ledger) UpdateCartItem(ctx context.Context, old models.Identity, snapshot catalog.Snapshot, qty int, size, colorKey, colorName string) ([]models.LineItem, error) {
	l.removeItem(old)
	item := l.addItem(snapshot, qty, size, colorKey, colorName)
	id := item.Identity()
	return l.commit(ctx, Change{Op: OpItemUpdated, Identity: &id, Previous: &old})
}

// ToggleItemSelection flips the selected flag on every line of a product,
// whatever its size or color
func (l *Ledger) ToggleItemSelection(ctx context.Context, productID string) ([]models.LineItem, error) {
	toggled := false
	for i := range l.state.CartItems {
		if l.state.CartItems[i].ProductID == productID {
			l.state.CartItems[i].Selected = !l.state.CartItems[i].Selected
			toggled = true
		}
	}
	if !toggled {
		return l.Items(), nil
	}
	return l.commit(ctx, Change{Op: OpSelectionToggled, ProductID: productID})
}

// SelectAllItems sets the selected flag on every line
func (l *Ledger) SelectAllItems(ctx context.Context, selected bool) ([]models.LineItem, error) {
	for i := range l.state.CartItems {
		l.state.CartItems[i].Selected = selected
	}
	return l.commit(ctx, Change{Op: OpSelectionSet})
}

// ClearCart removes every line
func (l *Ledger) ClearCart(ctx context.Context) ([]models.LineItem, error) {
	l.state.CartItems = []models.LineItem{}
	return l.commit(ctx, Change{Op: OpCleared})
}

// SaveShippingAddress stores the checkout shipping address
func (l *Ledger) SaveShippingAddress(ctx context.Context, addr models.ShippingAddress) error {
	l.state.ShippingAddress = &addr
	_, err := l.commit(ctx, Change{Op: OpShippingAddressSaved})
	return err
}

// SavePaymentMethod stores the checkout payment method
func (l *Ledger) SavePaymentMethod(ctx context.Context, method string) error {
	l.state.PaymentMethod = strings.TrimSpace(method)
	_, err := l.commit(ctx, Change{Op: OpPaymentMethodSaved})
	return err
}

// Items returns a copy of the line items
func (l *Ledger) Items() []models.LineItem {
	return cloneItems(l.state.CartItems)
}

// State returns a copy of the whole cart document
func (l *Ledger) State() models.CartState {
	state := models.CartState{
		CartItems:     cloneItems(l.state.CartItems),
		PaymentMethod: l.state.PaymentMethod,
	}
	if l.state.ShippingAddress != nil {
		addr := *l.state.ShippingAddress
		state.ShippingAddress = &addr
	}
	return state
}

// Find returns the line with the given identity
func (l *Ledger) Find(id models.Identity) (models.LineItem, bool) {
	idx := l.indexOf(id)
	if idx < 0 {
		return models.LineItem{}, false
	}
	return cloneItem(l.state.CartItems[idx]), true
}

func (l *Ledger) addItem(snapshot catalog.Snapshot, qty int, size, colorKey, colorName string) models.LineItem {
	p := catalog.Normalize(snapshot)

	sizeTable := catalog.DeriveSizeTable(p)
	colorList := catalog.DeriveColorList(p)

	normSize := strings.ToUpper(strings.TrimSpace(size))
	if normSize == "" {
		normSize = strings.ToUpper(sizeTable[0].Label)
	}

	color := colorName
	if color == "" {
		color = colorKey
	}
	if color == "" {
		color = colorList[0].Name
	}

	key := colorKey
	if key == "" {
		key = color
	}
	res := catalog.ResolveVariant(p, normSize, key)
	if !p.HasVariants() && len(p.SizeTable) == 0 {
		// the synthetic OneSize entry carries the product-level stock
		res.Stock = sizeTable[0].Stock
	}

	qty = atLeastOne(qty)
	id := models.Identity{ProductID: p.ID, Size: normSize, Color: color}

	if idx := l.indexOf(id); idx >= 0 {
		l.state.CartItems[idx].Quantity += qty
		return l.state.CartItems[idx]
	}

	sizeOptions := catalog.SizeOptions(p)
	if len(sizeOptions) == 0 {
		sizeOptions = sizeTable.Labels()
	}
	colorOptions := catalog.ColorOptions(p)
	if len(colorOptions) == 0 {
		colorOptions = colorList
	}

	now := l.now().UTC().Truncate(time.Millisecond)
	item := models.LineItem{
		ID:               l.newID(),
		ProductID:        p.ID,
		Name:             p.Name,
		Images:           p.Images,
		Size:             normSize,
		Color:            color,
		ColorHex:         colorKey,
		Quantity:         qty,
		UnitPrice:        res.UnitPrice,
		SalePrice:        catalog.SalePrice(res.UnitPrice, p.SalePercent),
		SalePercent:      p.SalePercent,
		BasePrice:        p.BasePrice,
		StockAtSelection: res.Stock,
		Selected:         true,
		SizeOptions:      sizeOptions,
		ColorOptions:     colorOptions,
		Variants:         p.Variants,
		SizeTable:        sizeTable,
		ColorList:        colorList,
		AddedAt:          &now,
	}
	l.state.CartItems = append(l.state.CartItems, item)
	return item
}

func (l *Ledger) removeItem(id models.Identity) bool {
	kept := l.state.CartItems[:0]
	removed := false
	for _, item := range l.state.CartItems {
		if item.Identity().Matches(id) {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	l.state.CartItems = kept
	return removed
}

func (l *Ledger) indexOf(id models.Identity) int {
	for i, item := range l.state.CartItems {
		if item.Identity().Matches(id) {
			return i
		}
	}
	return -1
}

// commit saves the cart and notifies observers
func (l *Ledger) commit(ctx context.Context, change Change) ([]models.LineItem, error) {
	items := l.Items()

	var err error
	if l.store != nil {
		state := l.State()
		if saveErr := l.store.Save(ctx, l.key, &state); saveErr != nil {
			l.logger.WithFields(logrus.Fields{
				"cartKey": l.key,
				"op":      change.Op,
			}).WithError(saveErr).Error("Failed to persist cart")
			err = fmt.Errorf("failed to persist cart %s: %w", l.key, saveErr)
		}
	}

	change.Key = l.key
	change.Items = items
	change.At = l.now()
	for _, o := range l.observers {
		o.CartChanged(ctx, change)
	}

	return items, err
}

// normalizeItems applies the line item invariants to loaded data: quantity of
// at least one, rounded non-negative prices, an id, and one line per identity
func (l *Ledger) normalizeItems(items []models.LineItem) []models.LineItem {
	out := make([]models.LineItem, 0, len(items))
	for _, item := range items {
		item.Quantity = atLeastOne(item.Quantity)
		item.UnitPrice = nonNegativePrice(item.UnitPrice)
		item.SalePrice = nonNegativePrice(item.SalePrice)
		if item.ID == "" {
			item.ID = l.newID()
		}

		merged := false
		for i := range out {
			if out[i].Identity().Matches(item.Identity()) {
				out[i].Quantity += item.Quantity
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, item)
		}
	}
	return out
}

func nonNegativePrice(v float64) float64 {
	if v < 0 {
		return 0
	}
	return catalog.Round2(v)
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
