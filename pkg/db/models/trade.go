package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forecastlabs/openbook-backend/pkg/enums"
)

// Trade is the append-only record of one execution against the market maker.
// Cost is the money that changed hands: fee-inclusive for buys, net of fee for
// sells. The before/after share quantities reconcile the market's AMM state
// evolution trade by trade.
type Trade struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	UserID     uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index"`
	MarketID   uuid.UUID       `gorm:"column:market_id;type:uuid;not null;index"`
	Type       enums.TradeType `gorm:"column:type;type:text;not null"`
	Side       enums.TradeSide `gorm:"column:side;type:text;not null"`
	Shares     decimal.Decimal `gorm:"column:shares;type:numeric(30,6);not null"`
	Price      decimal.Decimal `gorm:"column:price;type:numeric(30,6);not null"`
	Cost       decimal.Decimal `gorm:"column:cost;type:numeric(30,6);not null"`
	Fee        decimal.Decimal `gorm:"column:fee;type:numeric(30,6);not null"`
	QYesBefore decimal.Decimal `gorm:"column:q_yes_before;type:numeric(30,6);not null"`
	QNoBefore  decimal.Decimal `gorm:"column:q_no_before;type:numeric(30,6);not null"`
	QYesAfter  decimal.Decimal `gorm:"column:q_yes_after;type:numeric(30,6);not null"`
	QNoAfter   decimal.Decimal `gorm:"column:q_no_after;type:numeric(30,6);not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (t *Trade) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
