package trades

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forecastlabs/openbook-backend/pkg/db/models"
	"github.com/forecastlabs/openbook-backend/pkg/pagination"
)

// Repository manages persistence for the append-only trade log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, trade *models.Trade) error
	ListByUser(ctx context.Context, userID uuid.UUID, page pagination.Params) ([]models.Trade, int64, error)
	ListByMarket(ctx context.Context, marketID uuid.UUID, page pagination.Params) ([]models.Trade, int64, error)
	ListAll(ctx context.Context, page pagination.Params) ([]models.Trade, int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a trade repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, trade *models.Trade) error {
	return r.db.WithContext(ctx).Create(trade).Error
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, page pagination.Params) ([]models.Trade, int64, error) {
	return r.list(ctx, page, "user_id = ?", userID)
}

func (r *repository) ListByMarket(ctx context.Context, marketID uuid.UUID, page pagination.Params) ([]models.Trade, int64, error) {
	return r.list(ctx, page, "market_id = ?", marketID)
}

func (r *repository) ListAll(ctx context.Context, page pagination.Params) ([]models.Trade, int64, error) {
	return r.list(ctx, page, "")
}

func (r *repository) list(ctx context.Context, page pagination.Params, cond string, args ...any) ([]models.Trade, int64, error) {
	page = page.Normalize()

	query := r.db.WithContext(ctx).Model(&models.Trade{})
	if cond != "" {
		query = query.Where(cond, args...)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Trade
	if err := query.
		Order("created_at DESC, id DESC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
