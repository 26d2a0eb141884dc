package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forecastlabs/openbook-backend/pkg/enums"
)

// WalletTransaction is one immutable entry in a wallet's ledger.
// Amount is signed: credits are positive, debits negative. Each entry snapshots
// the balance on both sides so the chain can be audited independently:
// BalanceAfter = BalanceBefore + Amount, and consecutive entries on a wallet
// join exactly (next.BalanceBefore == prev.BalanceAfter).
type WalletTransaction struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	WalletID      uuid.UUID       `gorm:"column:wallet_id;type:uuid;not null;index"`
	Kind          enums.TxKind    `gorm:"column:kind;type:text;not null"`
	Amount        decimal.Decimal `gorm:"column:amount;type:numeric(30,6);not null"`
	BalanceBefore decimal.Decimal `gorm:"column:balance_before;type:numeric(30,6);not null"`
	BalanceAfter  decimal.Decimal `gorm:"column:balance_after;type:numeric(30,6);not null"`
	Description   string          `gorm:"column:description;type:text"`
	ReferenceID   *uuid.UUID      `gorm:"column:reference_id;type:uuid"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (t *WalletTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
