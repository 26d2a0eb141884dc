package positions

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgdb "github.com/forecastlabs/openbook-backend/pkg/db"
	"github.com/forecastlabs/openbook-backend/pkg/db/models"
	"github.com/forecastlabs/openbook-backend/pkg/pagination"
)

// Repository manages persistence for positions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, userID, marketID uuid.UUID) (*models.Position, error)
	GetForUpdate(ctx context.Context, userID, marketID uuid.UUID) (*models.Position, error)
	Create(ctx context.Context, position *models.Position) error
	Save(ctx context.Context, position *models.Position) error
	ListByUser(ctx context.Context, userID uuid.UUID, page pagination.Params) ([]models.Position, int64, error)
	ListByMarket(ctx context.Context, marketID uuid.UUID) ([]models.Position, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a position repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Get(ctx context.Context, userID, marketID uuid.UUID) (*models.Position, error) {
	var position models.Position
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND market_id = ?", userID, marketID).
		First(&position).Error; err != nil {
		return nil, err
	}
	return &position, nil
}

func (r *repository) GetForUpdate(ctx context.Context, userID, marketID uuid.UUID) (*models.Position, error) {
	var position models.Position
	if err := pkgdb.LockForUpdate(r.db.WithContext(ctx)).
		Where("user_id = ? AND market_id = ?", userID, marketID).
		First(&position).Error; err != nil {
		return nil, err
	}
	return &position, nil
}

func (r *repository) Create(ctx context.Context, position *models.Position) error {
	return r.db.WithContext(ctx).Create(position).Error
}

func (r *repository) Save(ctx context.Context, position *models.Position) error {
	return r.db.WithContext(ctx).Save(position).Error
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, page pagination.Params) ([]models.Position, int64, error) {
	page = page.Normalize()

	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.Position{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Position
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC, id DESC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *repository) ListByMarket(ctx context.Context, marketID uuid.UUID) ([]models.Position, error) {
	var rows []models.Position
	if err := r.db.WithContext(ctx).
		Where("market_id = ?", marketID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
