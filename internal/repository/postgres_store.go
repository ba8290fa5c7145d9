package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"cart-service/internal/models"
)

// PostgresStore keeps one storefront_carts row per cart key. The document
// column holds the serialized cart; subtotal and item count are denormalized
// for reporting queries.
type PostgresStore struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewPostgresStore creates a store over an open gorm connection. A zero ttl
// leaves expires_at unset.
func NewPostgresStore(db *gorm.DB, ttl time.Duration) *PostgresStore {
	return &PostgresStore{db: db, ttl: ttl, now: time.Now}
}

// AutoMigrate creates or updates the storefront_carts table
func (s *PostgresStore) AutoMigrate() error {
	return s.db.AutoMigrate(&models.StoredCart{})
}

// Load returns the cart stored under key
func (s *PostgresStore) Load(ctx context.Context, key string) (*models.CartState, error) {
	var row models.StoredCart
	err := s.db.WithContext(ctx).
		Where("cart_key = ?", key).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if row.ExpiresAt != nil && row.ExpiresAt.Before(s.now()) {
		return nil, ErrNotFound
	}
	return decodeState(row.Document)
}

// Save upserts the row for key. last_item_change only moves when the line
// items themselves changed, not on address or payment edits.
func (s *PostgresStore) Save(ctx context.Context, key string, state *models.CartState) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	subtotal, count := summarize(state)
	now := s.now()

	var expiresAt *time.Time
	if s.ttl > 0 {
		t := now.Add(s.ttl)
		expiresAt = &t
	}

	var row models.StoredCart
	err = s.db.WithContext(ctx).Where("cart_key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = models.StoredCart{
			CartKey:        key,
			Document:       models.JSONB(data),
			Subtotal:       subtotal,
			ItemCount:      count,
			LastItemChange: now,
			ExpiresAt:      expiresAt,
		}
		return s.db.WithContext(ctx).Create(&row).Error
	}
	if err != nil {
		return fmt.Errorf("failed to look up cart row: %w", err)
	}

	if itemsChanged(row.Document, state) {
		row.LastItemChange = now
	}
	row.Document = models.JSONB(data)
	row.Subtotal = subtotal
	row.ItemCount = count
	row.ExpiresAt = expiresAt
	return s.db.WithContext(ctx).Save(&row).Error
}

// Delete removes the row for key
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).
		Where("cart_key = ?", key).
		Delete(&models.StoredCart{}).Error
}

// DeleteExpired removes rows whose expires_at is before now
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", now).
		Delete(&models.StoredCart{})
	return result.RowsAffected, result.Error
}

// Ping checks the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func itemsChanged(previous models.JSONB, state *models.CartState) bool {
	old, err := decodeState(previous)
	if err != nil {
		return true
	}
	before, err := encodeState(&models.CartState{CartItems: old.CartItems})
	if err != nil {
		return true
	}
	var items []models.LineItem
	if state != nil {
		items = state.CartItems
	}
	after, err := encodeState(&models.CartState{CartItems: items})
	if err != nil {
		return true
	}
	return !bytes.Equal(before, after)
}
