package markets

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forecastlabs/openbook-backend/internal/pricing"
	"github.com/forecastlabs/openbook-backend/internal/settlement"
	pkgdb "github.com/forecastlabs/openbook-backend/pkg/db"
	"github.com/forecastlabs/openbook-backend/pkg/db/models"
	"github.com/forecastlabs/openbook-backend/pkg/enums"
	pkgerrors "github.com/forecastlabs/openbook-backend/pkg/errors"
	"github.com/forecastlabs/openbook-backend/pkg/logger"
	"github.com/forecastlabs/openbook-backend/pkg/metrics"
	"github.com/forecastlabs/openbook-backend/pkg/pagination"
)

// allowedTransitions is the full lifecycle map. Resolution is excluded here:
// it needs an outcome and runs through Resolve.
var allowedTransitions = map[enums.MarketStatus][]enums.MarketStatus{
	enums.MarketStatusDraft:     {enums.MarketStatusActive, enums.MarketStatusCancelled},
	enums.MarketStatusActive:    {enums.MarketStatusSuspended, enums.MarketStatusCancelled},
	enums.MarketStatusSuspended: {enums.MarketStatusActive, enums.MarketStatusCancelled},
	enums.MarketStatusResolved:  {},
	enums.MarketStatusCancelled: {},
}

func transitionAllowed(from, to enums.MarketStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreateInput carries the fields an admin supplies for a new market.
type CreateInput struct {
	Title            string
	Description      string
	Category         string
	ImageURL         string
	ResolutionSource string
	Liquidity        *decimal.Decimal
	StartTime        time.Time
	EndTime          time.Time
	CreatorID        uuid.UUID
}

// UpdateInput carries the mutable descriptive fields.
type UpdateInput struct {
	Title            *string
	Description      *string
	Category         *string
	ImageURL         *string
	ResolutionSource *string
	StartTime        *time.Time
	EndTime          *time.Time
}

// View is a market joined with its live LMSR prices.
type View struct {
	models.Market
	PriceYes decimal.Decimal `json:"price_yes"`
	PriceNo  decimal.Decimal `json:"price_no"`
}

// Service owns the market lifecycle and read surface.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Market, error)
	Get(ctx context.Context, id uuid.UUID) (*View, error)
	List(ctx context.Context, filter ListFilter, page pagination.Params) (pagination.Page[View], error)
	Categories(ctx context.Context) ([]string, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Market, error)
	Transition(ctx context.Context, id uuid.UUID, target enums.MarketStatus) (*models.Market, error)
	Resolve(ctx context.Context, id uuid.UUID, outcome enums.Outcome) (*models.Market, int, error)
}

type service struct {
	repo       Repository
	tx         txRunner
	settlement settlement.Service
	logg       *logger.Logger
	metrics    *metrics.Exchange

	liquidityDefault decimal.Decimal
	liquidityMin     decimal.Decimal
}

// ServiceParams bundles the service dependencies.
type ServiceParams struct {
	Repo             Repository
	Tx               txRunner
	Settlement       settlement.Service
	Logger           *logger.Logger
	Metrics          *metrics.Exchange
	LiquidityDefault decimal.Decimal
	LiquidityMin     decimal.Decimal
}

// NewService builds a market service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("market repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Settlement == nil {
		return nil, fmt.Errorf("settlement service required")
	}
	if params.LiquidityMin.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("minimum liquidity must be positive")
	}
	if params.LiquidityDefault.LessThan(params.LiquidityMin) {
		return nil, fmt.Errorf("default liquidity below minimum")
	}
	return &service{
		repo:             params.Repo,
		tx:               params.Tx,
		settlement:       params.Settlement,
		logg:             params.Logger,
		metrics:          params.Metrics,
		liquidityDefault: params.LiquidityDefault,
		liquidityMin:     params.LiquidityMin,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Market, error) {
	if input.Title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title required")
	}
	if input.CreatorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "creator identity missing")
	}
	if input.StartTime.IsZero() || input.EndTime.IsZero() || input.EndTime.Before(input.StartTime) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "start time must not exceed end time")
	}

	liquidity := s.liquidityDefault
	if input.Liquidity != nil {
		liquidity = *input.Liquidity
	}
	if liquidity.LessThan(s.liquidityMin) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("liquidity must be at least %s", s.liquidityMin))
	}

	market := &models.Market{
		Title:            input.Title,
		Description:      input.Description,
		Category:         input.Category,
		ImageURL:         input.ImageURL,
		ResolutionSource: input.ResolutionSource,
		Status:           enums.MarketStatusDraft,
		QYes:             decimal.Zero,
		QNo:              decimal.Zero,
		Liquidity:        liquidity,
		Volume:           decimal.Zero,
		StartTime:        input.StartTime,
		EndTime:          input.EndTime,
		CreatorID:        input.CreatorID,
	}
	if err := s.repo.Create(ctx, market); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create market")
	}
	return market, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*View, error) {
	market, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	view := withPrices(*market)
	return &view, nil
}

func (s *service) List(ctx context.Context, filter ListFilter, page pagination.Params) (pagination.Page[View], error) {
	var out pagination.Page[View]
	page = page.Normalize()

	rows, total, err := s.repo.List(ctx, filter, page)
	if err != nil {
		return out, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list markets")
	}

	views := make([]View, 0, len(rows))
	for _, market := range rows {
		views = append(views, withPrices(market))
	}
	return pagination.Page[View]{
		Items: views,
		Page:  page.Page,
		Limit: page.Limit,
		Total: total,
	}, nil
}

func (s *service) Categories(ctx context.Context) ([]string, error) {
	categories, err := s.repo.Categories(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list categories")
	}
	return categories, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Market, error) {
	var updated *models.Market
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		market, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			if pkgdb.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "market not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load market")
		}
		if market.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "market is closed to edits")
		}

		if input.Title != nil {
			market.Title = *input.Title
		}
		if input.Description != nil {
			market.Description = *input.Description
		}
		if input.Category != nil {
			market.Category = *input.Category
		}
		if input.ImageURL != nil {
			market.ImageURL = *input.ImageURL
		}
		if input.ResolutionSource != nil {
			market.ResolutionSource = *input.ResolutionSource
		}
		if input.StartTime != nil {
			market.StartTime = *input.StartTime
		}
		if input.EndTime != nil {
			market.EndTime = *input.EndTime
		}
		if market.EndTime.Before(market.StartTime) {
			return pkgerrors.New(pkgerrors.CodeValidation, "start time must not exceed end time")
		}

		if err := repo.Save(ctx, market); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save market")
		}
		updated = market
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Transition(ctx context.Context, id uuid.UUID, target enums.MarketStatus) (*models.Market, error) {
	if !target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid market status %q", target))
	}
	if target == enums.MarketStatusResolved {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "resolution requires an outcome; use resolve")
	}

	var updated *models.Market
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		market, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			if pkgdb.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "market not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load market")
		}

		if !transitionAllowed(market.Status, target) {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition,
				fmt.Sprintf("cannot move market from %s to %s", market.Status, target))
		}

		market.Status = target
		if err := repo.Save(ctx, market); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save market")
		}
		updated = market
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Resolve moves a market to resolved, stamps the outcome exactly once, and
// settles every winning position inline within the same transaction.
func (s *service) Resolve(ctx context.Context, id uuid.UUID, outcome enums.Outcome) (*models.Market, int, error) {
	if !outcome.IsValid() {
		return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid outcome %q", outcome))
	}

	var resolved *models.Market
	var settled int
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		market, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			if pkgdb.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "market not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load market")
		}

		if market.Status != enums.MarketStatusActive && market.Status != enums.MarketStatusSuspended {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition,
				fmt.Sprintf("cannot resolve market from %s", market.Status))
		}

		now := time.Now().UTC()
		market.Status = enums.MarketStatusResolved
		market.Outcome = &outcome
		market.ResolvedAt = &now

		count, err := s.settlement.SettleMarket(ctx, tx, market)
		if err != nil {
			return err
		}
		settled = count

		market.SettledAt = &now
		if err := repo.Save(ctx, market); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save market")
		}
		resolved = market
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	if s.metrics != nil {
		s.metrics.MarketsResolved.Inc()
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"market_id":         resolved.ID.String(),
			"outcome":           outcome.String(),
			"settled_positions": settled,
		})
		s.logg.Info(logCtx, "market resolved")
	}
	return resolved, settled, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Market, error) {
	market, err := s.repo.Get(ctx, id)
	if err != nil {
		if pkgdb.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "market not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load market")
	}
	return market, nil
}

func withPrices(market models.Market) View {
	return View{
		Market:   market,
		PriceYes: pricing.PriceYes(market.QYes, market.QNo, market.Liquidity),
		PriceNo:  pricing.PriceNo(market.QYes, market.QNo, market.Liquidity),
	}
}
