package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Wallet holds a user's tradable funds. Exactly one wallet exists per user,
// and its balance is only ever mutated through ledger operations that append
// a WalletTransaction in the same database transaction.
type Wallet struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID       `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	Balance       decimal.Decimal `gorm:"column:balance;type:numeric(30,6);not null;default:0"`
	FrozenBalance decimal.Decimal `gorm:"column:frozen_balance;type:numeric(30,6);not null;default:0"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
