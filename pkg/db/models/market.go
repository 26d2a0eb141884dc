package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forecastlabs/openbook-backend/pkg/enums"
)

// Market is a binary-outcome market priced by the LMSR market maker.
// QYes/QNo are the cumulative outstanding shares on each side; Liquidity is
// the LMSR b parameter, fixed at creation. Outcome and ResolvedAt are written
// exactly once, when the market resolves. SettledAt guards settlement
// idempotence.
type Market struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Title            string             `gorm:"column:title;type:text;not null"`
	Description      string             `gorm:"column:description;type:text"`
	Category         string             `gorm:"column:category;type:text;index"`
	ImageURL         string             `gorm:"column:image_url;type:text"`
	ResolutionSource string             `gorm:"column:resolution_source;type:text"`
	Status           enums.MarketStatus `gorm:"column:status;type:text;not null;default:'draft';index"`
	Outcome          *enums.Outcome     `gorm:"column:outcome;type:text"`
	QYes             decimal.Decimal    `gorm:"column:q_yes;type:numeric(30,6);not null;default:0"`
	QNo              decimal.Decimal    `gorm:"column:q_no;type:numeric(30,6);not null;default:0"`
	Liquidity        decimal.Decimal    `gorm:"column:liquidity;type:numeric(30,6);not null"`
	Volume           decimal.Decimal    `gorm:"column:volume;type:numeric(30,6);not null;default:0"`
	StartTime        time.Time          `gorm:"column:start_time;not null"`
	EndTime          time.Time          `gorm:"column:end_time;not null"`
	ResolvedAt       *time.Time         `gorm:"column:resolved_at"`
	SettledAt        *time.Time         `gorm:"column:settled_at"`
	CreatorID        uuid.UUID          `gorm:"column:creator_id;type:uuid;not null"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (m *Market) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
