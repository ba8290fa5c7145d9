package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cart-service/internal/catalog"
	"cart-service/internal/models"
	"cart-service/internal/repository"
)

// MockStore is a mock implementation of repository.Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Load(ctx context.Context, key string) (*models.CartState, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CartState), args.Error(1)
}

func (m *MockStore) Save(ctx context.Context, key string, state *models.CartState) error {
	args := m.Called(ctx, key, state)
	return args.Error(0)
}

func (m *MockStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

var fixedNow = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

func newTestLedger(store repository.Store, opts ...Option) *Ledger {
	seq := 0
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("line-%d", seq)
		}),
	}
	return New("cart:t1:u1", store, append(base, opts...)...)
}

func price(v float64) *float64 { return &v }

func shirt() catalog.VariantedProduct {
	return catalog.VariantedProduct{
		Base: catalog.Base{ID: "P", Name: "Oxford Shirt", BasePrice: 50, Images: []string{"shirt.jpg"}},
		Variants: []catalog.Variant{
			{Size: "M", Color: "#fff", Stock: 3},
			{Size: "L", Color: "#fff", Stock: 2},
			{Size: "M", Color: "#000", Stock: 5, Price: price(55)},
		},
		ColorList: []catalog.Color{
			{Name: "White", HexCode: "#fff"},
			{Name: "Black", HexCode: "#000"},
		},
	}
}

// ==================== AddToCart ====================

func TestAddToCart_SameIdentityMerges(t *testing.T) {
	l := newTestLedger(nil)
	ctx := context.Background()

	_, err := l.AddToCart(ctx, shirt(), 2, "M", "#fff", "White")
	require.NoError(t, err)
	items, err := l.AddToCart(ctx, shirt(), 2, "M", "#fff", "White")
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, 4, items[0].Quantity)
}

func TestAddToCart_SizeIsCaseInsensitive(t *testing.T) {
	l := newTestLedger(nil)
	ctx := context.Background()

	_, err := l.AddToCart(ctx, shirt(), 1, "m", "#fff", "White")
	require.NoError(t, err)
	items, err := l.AddToCart(ctx, shirt(), 1, "M", "#fff", "White")
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, "M", items[0].Size)
	assert.Equal(t, 2, items[0].Quantity)
}

func TestAddToCart_ColorIsExact(t *testing.T) {
	l := newTestLedger(nil)
	ctx := context.Background()

	_, _ = l.AddToCart(ctx, shirt(), 1, "M", "#fff", "White")
	items, _ := l.AddToCart(ctx, shirt(), 1, "M", "#fff", "white")

	assert.Len(t, items, 2)
}

func TestAddToCart_PriceFallsBackToBasePrice(t *testing.T) {
	l := newTestLedger(nil)
	p := catalog.VariantedProduct{
		Base:     catalog.Base{ID: "P", Name: "Jacket", BasePrice: 40, SalePercent: 25},
		Variants: []catalog.Variant{{Size: "M", Color: "#000", Stock: 5}},
	}

	items, err := l.AddToCart(context.Background(), p, 1, "M", "#000", "")
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, 40.0, items[0].UnitPrice)
	assert.Equal(t, 30.0, items[0].SalePrice)
	assert.Equal(t, 5, items[0].StockAtSelection)
	assert.Equal(t, "#000", items[0].Color)
}

func TestAddToCart_VariantPrice(t *testing.T) {
	l := newTestLedger(nil)

	items, err := l.AddToCart(context.Background(), shirt(), 1, "M", "#000", "Black")
	require.NoError(t, err)

	assert.Equal(t, 55.0, items[0].UnitPrice)
	assert.Equal(t, 55.0, items[0].SalePrice)
	assert.Equal(t, 5, items[0].StockAtSelection)
}

func TestAddToCart_LegacyProductWithoutMetadata(t *testing.T) {
	l := newTestLedger(nil)
	p := catalog.LegacyProduct{Base: catalog.Base{ID: "bag", Name: "Tote", BasePrice: 20}}

	items, err := l.AddToCart(context.Background(), p, 1, "", "", "")
	require.NoError(t, err)

	require.Len(t, items, 1)
	item := items[0]
	assert.Equal(t, "ONE SIZE", item.Size)
	assert.Equal(t, catalog.StandardColor, item.Color)
	assert.Equal(t, 20.0, item.SalePrice)
	assert.Equal(t, catalog.SizeTable{{Label: catalog.OneSize, Stock: 1}}, item.SizeTable)
	assert.Equal(t, []catalog.Color{{Name: catalog.StandardColor, HexCode: catalog.StandardColor}}, item.ColorList)
	assert.Equal(t, []string{catalog.OneSize}, item.SizeOptions)
	assert.Equal(t, 1, item.StockAtSelection)
}

func TestAddToCart_LegacyProductStockWithoutSizes(t *testing.T) {
	l := newTestLedger(nil)
	p := catalog.LegacyProduct{Base: catalog.Base{ID: "bag", Name: "Tote", BasePrice: 20, Stock: 5}}

	items, err := l.AddToCart(context.Background(), p, 1, "", "", "")
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, catalog.SizeTable{{Label: catalog.OneSize, Stock: 5}}, items[0].SizeTable)
	assert.Equal(t, 5, items[0].StockAtSelection)
}

func TestAddToCart_LegacyDocumentSizeAndColorFields(t *testing.T) {
	l := newTestLedger(nil)
	var raw catalog.RawProduct
	require.NoError(t, json.Unmarshal([]byte(`{
		"_id": "bag", "price": 20, "countInStock": 5,
		"size": {"s": 3, "m": 0},
		"color": [{"name": "Red", "hexCode": "#f00"}]
	}`), &raw))

	items, err := l.AddToCart(context.Background(), raw.Snapshot(), 1, "s", "", "")
	require.NoError(t, err)

	require.Len(t, items, 1)
	item := items[0]
	assert.Equal(t, "S", item.Size)
	assert.Equal(t, "Red", item.Color)
	assert.Equal(t, 20.0, item.UnitPrice)
	assert.Equal(t, 20.0, item.SalePrice)
	assert.Equal(t, 3, item.StockAtSelection)
	assert.Equal(t, []catalog.Color{{Name: "Red", HexCode: "#f00"}}, item.ColorList)
}

func TestAddToCart_DefaultsSizeAndColor(t *testing.T) {
	l := newTestLedger(nil)

	items, err := l.AddToCart(context.Background(), shirt(), 1, "", "", "")
	require.NoError(t, err)

	assert.Equal(t, "M", items[0].Size)
	assert.Equal(t, "White", items[0].Color)
}

func TestAddToCart_QuantityCoercedToOne(t *testing.T) {
	l := newTestLedger(nil)

	items, err := l.AddToCart(context.Background(), shirt(), -3, "M", "#fff", "White")
	require.NoError(t, err)

	assert.Equal(t, 1, items[0].Quantity)
}

func TestAddToCart_NoStockCeiling(t *testing.T) {
	l := newTestLedger(nil)

	items, err := l.AddToCart(context.Background(), shirt(), 50, "M", "#fff", "White")
	require.NoError(t, err)

	assert.Equal(t, 50, items[0].Quantity)
	assert.Equal(t, 3, items[0].StockAtSelection)
}

func TestAddToCart_NewLineFields(t *testing.T) {
	l := newTestLedger(nil)

	items, err := l.AddToCart(context.Background(), shirt(), 1, "L", "#fff", "White")
	require.NoError(t, err)

	item := items[0]
	assert.Equal(t, "line-1", item.ID)
	assert.Equal(t, "P", item.ProductID)
	assert.Equal(t, "Oxford Shirt", item.Name)
	assert.Equal(t, "#fff", item.ColorHex)
	assert.True(t, item.Selected)
	assert.Equal(t, []string{"M", "L"}, item.SizeOptions)
	assert.Len(t, item.ColorOptions, 2)
	assert.Len(t, item.Variants, 3)
	require.NotNil(t, item.AddedAt)
	assert.True(t, item.AddedAt.Equal(fixedNow))
}

func TestAddToCart_DoesNotMutateSnapshot(t *testing.T) {
	l := newTestLedger(nil)
	p := shirt()

	items, err := l.AddToCart(context.Background(), p, 1, "M", "#fff", "White")
	require.NoError(t, err)
	items[0].Variants[0].Stock = 999

	assert.Equal(t, shirt(), p)
	stored, _ := l.Find(items[0].Identity())
	assert.Equal(t, 3, stored.Variants[0].Stock)
}

// ==================== RemoveFromCart ====================

func TestRemoveFromCart_Exact(t *testing.T) {
	l := newTestLedger(nil)
	ctx := context.Background()
	_, _ = l.AddToCart(ctx, shirt(), 1, "M", "#fff", "White")
	_, _ = l.AddToCart(ctx, shirt(), 1, "L", "#fff", "White")

	items, err := l.RemoveFromCart(ctx, "P", "M", "White")
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, "L", items[0].Size)
}

func TestRemoveFromCart_MissingIsNoop(t *testing.T) {
	store := new(MockStore)
	l := newTestLedger(store)

	items, err := l.RemoveFromCart(context.Background(), "P", "M", "White")

	require.NoError(t, err)
	assert.Empty(t, items)
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
}

// ==================== UpdateItemQty ====================

func TestUpdateItemQty(t *testing.T) {
	l := newTestLedger(nil)
	ctx := context.Background()
	_, _ = l.AddToCart(ctx, shirt(), 1, "M", "#fff", "White")

	items, err := l.UpdateItemQty(ctx, "P", "m", "White", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, items[0].Quantity)

	items, err = l.UpdateItemQty(ctx, "P", "M", "White", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Quantity)
}

func TestUpdateItemQty_MissingIsNoop(t *testing.T) {
	l := newTestLedger(nil)

	items, err := l.UpdateItemQty(context.Background(), "P", "M", "White", 3)

	require.NoError(t, err)
	assert.Empty(t, items)
}

// ==================== UpdateCartItem ====================

func TestUpdateCartItem_ChangesSize(t *testing.T) {
	l := newTestLedger(nil)
	ctx := context.Background()
	_, _ = l.AddToCart(ctx, shirt(), 2, "M", "#fff", "White")

	old := models.Identity{ProductID: "P", Size: "M", Color: "White"}
	items, err := l.UpdateCartItem(ctx, old, shirt(), 2, "L", "#fff", "White")
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, "L", items[0].Size)
	assert.Equal(t, 2, items[0].Quantity)
}

// Editing a line into the identity of another existing line merges the two.
// This is current behavior: the edit is not rejected and no warning is raised.
func TestUpdateCartItem_CollisionMergesSilently(t *testing.T) {
	l := newTestLedger(nil)
	ctx := context.Background()
	_, _ = l.AddToCart(ctx, shirt(), 2, "M", "#fff", "White")
	_, _ = l.AddToCart(ctx, shirt(), 3, "L", "#fff", "White")

	old := models.Identity{ProductID: "P", Size: "M", Color: "White"}
	items, err := l.UpdateCartItem(ctx, old, shirt(), 2, "L", "#fff", "White")
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, "L", items[0].Size)
	assert.Equal(t, 5, items[0].Quantity)
}

// ==================== Selection ====================

func TestToggleItemSelection_AffectsEveryVariant(t *testing.T) {
	l := newTestLedger(nil)
	ctx := context.Background()
	_, _ = l.AddToCart(ctx, shirt(), 1, "M", "#fff", "White")
	_, _ = l.AddToCart(ctx, shirt(), 1, "M", "#000", "Black")
	other := catalog.LegacyProduct{Base: catalog.Base{ID: "Q", BasePrice: 5}}
	_, _ = l.AddToCart(ctx, other, 1, "", "", "")

	items, err := l.ToggleItemSelection(ctx, "P")
	require.NoError(t, err)

	require.Len(t, items, 3)
	assert.False(t, items[0].Selected)
	assert.False(t, items[1].Selected)
	assert.True(t, items[2].Selected)

	items, _ = l.ToggleItemSelection(ctx, "P")
	assert.True(t, items[0].Selected)
	assert.True(t, items[1].Selected)
}

func TestSelectAllItems(t *testing.T) {
	l := newTestLedger(nil)
	ctx := context.Background()
	_, _ = l.AddToCart(ctx, shirt(), 1, "M", "#fff", "White")
	_, _ = l.AddToCart(ctx, shirt(), 1, "L", "#fff", "White")

	items, err := l.SelectAllItems(ctx, false)
	require.NoError(t, err)
	for _, item := range items {
		assert.False(t, item.Selected)
	}
	assert.Equal(t, 0, SelectedCount(items))

	items, _ = l.SelectAllItems(ctx, true)
	assert.Equal(t, 2, SelectedCount(items))
}

func TestClearCart(t *testing.T) {
	l := newTestLedger(nil)
	ctx := context.Background()
	_, _ = l.AddToCart(ctx, shirt(), 1, "M", "#fff", "White")

	items, err := l.ClearCart(ctx)
	require.NoError(t, err)

	assert.NotNil(t, items)
	assert.Empty(t, items)
}

// ==================== Totals ====================

func TestSubtotal_SelectedOnly(t *testing.T) {
	items := []models.LineItem{
		{Quantity: 2, SalePrice: 9.99, Selected: true},
		{Quantity: 1, SalePrice: 15.00, Selected: true},
		{Quantity: 4, SalePrice: 100, Selected: false},
	}

	total := Subtotal(items)

	assert.True(t, total.Equal(decimal.RequireFromString("34.98")), total.String())
	assert.Equal(t, "34.98", DisplaySubtotal(total))
	assert.Equal(t, 7, ItemCount(items))
}

func TestSubtotal_NoIntermediateRounding(t *testing.T) {
	items := []models.LineItem{
		{Quantity: 3, SalePrice: 0.1, Selected: true},
		{Quantity: 3, SalePrice: 0.2, Selected: true},
	}

	assert.Equal(t, "0.90", DisplaySubtotal(Subtotal(items)))
}

func TestLedgerSubtotal(t *testing.T) {
	l := newTestLedger(nil)
	ctx := context.Background()
	_, _ = l.AddToCart(ctx, shirt(), 2, "M", "#fff", "White")
	_, _ = l.AddToCart(ctx, shirt(), 1, "M", "#000", "Black")

	assert.Equal(t, "155.00", DisplaySubtotal(l.Subtotal()))
	assert.Equal(t, 3, l.ItemCount())
}

// ==================== Persistence ====================

func TestLedger_RoundTripThroughStore(t *testing.T) {
	store := repository.NewMemoryStore(0)
	ctx := context.Background()
	l := newTestLedger(store)

	_, _ = l.AddToCart(ctx, shirt(), 2, "M", "#fff", "White")
	_, _ = l.AddToCart(ctx, shirt(), 1, "M", "#000", "Black")
	legacy := catalog.LegacyProduct{
		Base:      catalog.Base{ID: "bag", Name: "Tote", BasePrice: 20, SalePercent: 10},
		SizeTable: catalog.SizeTable{{Label: "Small", Stock: 2}, {Label: "Large", Stock: 0}},
	}
	_, _ = l.AddToCart(ctx, legacy, 1, "Small", "", "")
	_, _ = l.ToggleItemSelection(ctx, "bag")
	require.NoError(t, l.SaveShippingAddress(ctx, models.ShippingAddress{FirstName: "Ana", City: "Porto"}))
	require.NoError(t, l.SavePaymentMethod(ctx, " card "))

	reloaded := newTestLedger(store)
	require.NoError(t, reloaded.Load(ctx))

	assert.Equal(t, l.State(), reloaded.State())
	assert.Equal(t, "card", reloaded.State().PaymentMethod)
}

func TestLedger_JSONRoundTrip(t *testing.T) {
	l := newTestLedger(nil)
	ctx := context.Background()
	_, _ = l.AddToCart(ctx, shirt(), 2, "M", "#fff", "White")
	_, _ = l.AddToCart(ctx, shirt(), 1, "L", "#fff", "White")

	data, err := json.Marshal(l.Items())
	require.NoError(t, err)

	var decoded []models.LineItem
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, l.Items(), decoded)
}

func TestLedger_LoadMissingCart(t *testing.T) {
	store := new(MockStore)
	store.On("Load", mock.Anything, "cart:t1:u1").Return(nil, repository.ErrNotFound)
	l := newTestLedger(store)

	require.NoError(t, l.Load(context.Background()))
	assert.Empty(t, l.Items())
	store.AssertExpectations(t)
}

func TestLedger_LoadError(t *testing.T) {
	store := new(MockStore)
	store.On("Load", mock.Anything, "cart:t1:u1").Return(nil, errors.New("connection refused"))
	l := newTestLedger(store)

	err := l.Load(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestLedger_LoadNormalizesStoredItems(t *testing.T) {
	store := new(MockStore)
	store.On("Load", mock.Anything, "cart:t1:u1").Return(&models.CartState{
		CartItems: []models.LineItem{
			{ProductID: "P", Size: "M", Color: "White", Quantity: 0, UnitPrice: 10.005, SalePrice: -1, Selected: true},
			{ID: "dup", ProductID: "P", Size: "m", Color: "White", Quantity: 2, Selected: true},
			{ID: "other", ProductID: "P", Size: "L", Color: "White", Quantity: 1, Selected: true},
		},
	}, nil)
	l := newTestLedger(store)

	require.NoError(t, l.Load(context.Background()))

	items := l.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "line-1", items[0].ID)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, 10.01, items[0].UnitPrice)
	assert.Equal(t, 0.0, items[0].SalePrice)
	assert.Equal(t, "other", items[1].ID)
}

func TestLedger_SavesAfterEveryMutation(t *testing.T) {
	store := new(MockStore)
	store.On("Save", mock.Anything, "cart:t1:u1", mock.AnythingOfType("*models.CartState")).Return(nil)
	l := newTestLedger(store)
	ctx := context.Background()

	_, _ = l.AddToCart(ctx, shirt(), 1, "M", "#fff", "White")
	_, _ = l.UpdateItemQty(ctx, "P", "M", "White", 2)
	_, _ = l.ToggleItemSelection(ctx, "P")
	_, _ = l.SelectAllItems(ctx, true)
	_, _ = l.RemoveFromCart(ctx, "P", "M", "White")
	_, _ = l.ClearCart(ctx)

	store.AssertNumberOfCalls(t, "Save", 6)
}

func TestLedger_SaveFailureKeepsChange(t *testing.T) {
	store := new(MockStore)
	store.On("Save", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("disk full"))
	l := newTestLedger(store)

	items, err := l.AddToCart(context.Background(), shirt(), 1, "M", "#fff", "White")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, items, 1)
	assert.Len(t, l.Items(), 1)
}

// ==================== Observers ====================

func TestLedger_NotifiesObservers(t *testing.T) {
	var changes []Change
	l := newTestLedger(nil, WithObserver(ObserverFunc(func(ctx context.Context, c Change) {
		changes = append(changes, c)
	})))
	ctx := context.Background()

	_, _ = l.AddToCart(ctx, shirt(), 1, "M", "#fff", "White")
	old := models.Identity{ProductID: "P", Size: "M", Color: "White"}
	_, _ = l.UpdateCartItem(ctx, old, shirt(), 1, "L", "#fff", "White")
	_, _ = l.ToggleItemSelection(ctx, "P")
	_, _ = l.RemoveFromCart(ctx, "nope", "M", "White")

	require.Len(t, changes, 3)
	assert.Equal(t, OpItemAdded, changes[0].Op)
	assert.Equal(t, "cart:t1:u1", changes[0].Key)
	assert.Equal(t, "M", changes[0].Identity.Size)
	assert.Len(t, changes[0].Items, 1)
	assert.Equal(t, fixedNow, changes[0].At)

	assert.Equal(t, OpItemUpdated, changes[1].Op)
	assert.Equal(t, "M", changes[1].Previous.Size)
	assert.Equal(t, "L", changes[1].Identity.Size)

	assert.Equal(t, OpSelectionToggled, changes[2].Op)
	assert.Equal(t, "P", changes[2].ProductID)
}

func TestLedger_ItemsAreCopies(t *testing.T) {
	l := newTestLedger(nil)
	items, _ := l.AddToCart(context.Background(), shirt(), 1, "M", "#fff", "White")

	items[0].Quantity = 42
	items[0].SizeOptions[0] = "XXL"

	fresh := l.Items()
	assert.Equal(t, 1, fresh[0].Quantity)
	assert.Equal(t, "M", fresh[0].SizeOptions[0])
}

// ==================== Invariants ====================

func TestLedger_NoDuplicateIdentitiesOrBadQuantities(t *testing.T) {
	l := newTestLedger(nil)
	ctx := context.Background()

	_, _ = l.AddToCart(ctx, shirt(), 0, "m", "#fff", "White")
	_, _ = l.AddToCart(ctx, shirt(), -5, "M", "#fff", "White")
	_, _ = l.AddToCart(ctx, shirt(), 2, "l", "#fff", "White")
	old := models.Identity{ProductID: "P", Size: "L", Color: "White"}
	_, _ = l.UpdateCartItem(ctx, old, shirt(), -1, "M", "#fff", "White")
	_, _ = l.UpdateItemQty(ctx, "P", "M", "White", -10)

	items := l.Items()
	seen := map[string]bool{}
	for _, item := range items {
		key := item.ProductID + "|" + item.Size + "|" + item.Color
		assert.False(t, seen[key], "duplicate identity %s", key)
		seen[key] = true
		assert.GreaterOrEqual(t, item.Quantity, 1)
	}
}
