package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Position is the per-(user, market) holding of YES and NO shares together
// with the volume-weighted average purchase price of each side. Average
// prices are zero whenever the corresponding share count is zero.
type Position struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	UserID      uuid.UUID       `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_positions_user_market"`
	MarketID    uuid.UUID       `gorm:"column:market_id;type:uuid;not null;uniqueIndex:idx_positions_user_market;index"`
	YesShares   decimal.Decimal `gorm:"column:yes_shares;type:numeric(30,6);not null;default:0"`
	NoShares    decimal.Decimal `gorm:"column:no_shares;type:numeric(30,6);not null;default:0"`
	AvgYesPrice decimal.Decimal `gorm:"column:avg_yes_price;type:numeric(30,6);not null;default:0"`
	AvgNoPrice  decimal.Decimal `gorm:"column:avg_no_price;type:numeric(30,6);not null;default:0"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Position) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
