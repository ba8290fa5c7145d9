package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cart-service/internal/models"
)

// ErrNotFound is returned when no cart is stored under a key
var ErrNotFound = errors.New("cart not found")

// Store persists whole cart documents under a key
type Store interface {
	Load(ctx context.Context, key string) (*models.CartState, error)
	Save(ctx context.Context, key string, state *models.CartState) error
	Delete(ctx context.Context, key string) error
}

// ExpiringStore is a Store whose entries expire and must be swept periodically
type ExpiringStore interface {
	Store
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

func encodeState(state *models.CartState) ([]byte, error) {
	if state == nil {
		state = &models.CartState{}
	}
	if state.CartItems == nil {
		copied := *state
		copied.CartItems = []models.LineItem{}
		state = &copied
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize cart: %w", err)
	}
	return data, nil
}

func decodeState(data []byte) (*models.CartState, error) {
	var state models.CartState
	if len(data) > 0 {
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, fmt.Errorf("failed to parse cart: %w", err)
		}
	}
	if state.CartItems == nil {
		state.CartItems = []models.LineItem{}
	}
	return &state, nil
}

// summarize returns the selected-item subtotal and total quantity of a cart
func summarize(state *models.CartState) (float64, int) {
	if state == nil {
		return 0, 0
	}
	total := decimal.Zero
	count := 0
	for _, item := range state.CartItems {
		count += item.Quantity
		if item.Selected {
			total = total.Add(decimal.NewFromFloat(item.SalePrice).Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
	}
	return total.Round(2).InexactFloat64(), count
}
