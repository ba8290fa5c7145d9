package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StoredCart is the relational row holding a serialized CartState
type StoredCart struct {
	ID             uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CartKey        string     `json:"cartKey" gorm:"type:varchar(255);not null;uniqueIndex:idx_storefront_carts_key"`
	Document       JSONB      `json:"document" gorm:"type:jsonb;default:'{}'"`
	Subtotal       float64    `json:"subtotal" gorm:"type:decimal(12,2);default:0"` // Selected items only
	ItemCount      int        `json:"itemCount" gorm:"default:0"`
	LastItemChange time.Time  `json:"lastItemChange" gorm:"default:CURRENT_TIMESTAMP"`
	ExpiresAt      *time.Time `json:"expiresAt" gorm:"type:timestamp;index"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// TableName overrides the gorm default
func (StoredCart) TableName() string {
	return "storefront_carts"
}

// JSONB is a custom type for PostgreSQL JSONB fields
type JSONB json.RawMessage

// Value implements the driver.Valuer interface for JSONB
func (j JSONB) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements the sql.Scanner interface for JSONB
func (j *JSONB) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append(JSONB(nil), v...)
	case string:
		*j = JSONB(v)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", value)
	}
	return nil
}

// MarshalJSON implements json.Marshaler
func (j JSONB) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return []byte(j), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (j *JSONB) UnmarshalJSON(data []byte) error {
	*j = append(JSONB(nil), data...)
	return nil
}
