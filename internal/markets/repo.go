package markets

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	pkgdb "github.com/forecastlabs/openbook-backend/pkg/db"
	"github.com/forecastlabs/openbook-backend/pkg/db/models"
	"github.com/forecastlabs/openbook-backend/pkg/enums"
	"github.com/forecastlabs/openbook-backend/pkg/pagination"
)

// ListFilter narrows market listings.
type ListFilter struct {
	Status   *enums.MarketStatus
	Category string
}

// Repository manages persistence for markets.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, market *models.Market) error
	Get(ctx context.Context, id uuid.UUID) (*models.Market, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Market, error)
	Save(ctx context.Context, market *models.Market) error
	UpdateAMMState(ctx context.Context, id uuid.UUID, qYes, qNo, volume decimal.Decimal) error
	List(ctx context.Context, filter ListFilter, page pagination.Params) ([]models.Market, int64, error)
	Categories(ctx context.Context) ([]string, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a market repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, market *models.Market) error {
	return r.db.WithContext(ctx).Create(market).Error
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*models.Market, error) {
	var market models.Market
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&market).Error; err != nil {
		return nil, err
	}
	return &market, nil
}

func (r *repository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Market, error) {
	var market models.Market
	if err := pkgdb.LockForUpdate(r.db.WithContext(ctx)).
		Where("id = ?", id).
		First(&market).Error; err != nil {
		return nil, err
	}
	return &market, nil
}

func (r *repository) Save(ctx context.Context, market *models.Market) error {
	return r.db.WithContext(ctx).Save(market).Error
}

func (r *repository) UpdateAMMState(ctx context.Context, id uuid.UUID, qYes, qNo, volume decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Market{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"q_yes":  qYes,
			"q_no":   qNo,
			"volume": volume,
		}).Error
}

func (r *repository) List(ctx context.Context, filter ListFilter, page pagination.Params) ([]models.Market, int64, error) {
	page = page.Normalize()

	query := r.db.WithContext(ctx).Model(&models.Market{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Market
	if err := query.
		Order("created_at DESC, id DESC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *repository) Categories(ctx context.Context) ([]string, error) {
	var categories []string
	if err := r.db.WithContext(ctx).
		Model(&models.Market{}).
		Distinct("category").
		Where("category <> ''").
		Order("category ASC").
		Pluck("category", &categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}
