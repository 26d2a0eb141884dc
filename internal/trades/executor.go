package trades

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forecastlabs/openbook-backend/internal/markets"
	"github.com/forecastlabs/openbook-backend/internal/positions"
	"github.com/forecastlabs/openbook-backend/internal/pricing"
	"github.com/forecastlabs/openbook-backend/internal/wallet"
	pkgdb "github.com/forecastlabs/openbook-backend/pkg/db"
	"github.com/forecastlabs/openbook-backend/pkg/db/models"
	"github.com/forecastlabs/openbook-backend/pkg/enums"
	pkgerrors "github.com/forecastlabs/openbook-backend/pkg/errors"
	"github.com/forecastlabs/openbook-backend/pkg/logger"
	"github.com/forecastlabs/openbook-backend/pkg/metrics"
	"github.com/forecastlabs/openbook-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service executes trades atomically: quote, funds movement, AMM state
// update, position update, and the trade record commit together or not at
// all. Locks are taken market first, wallet second, so concurrent trades on
// one market (or one wallet) serialize without deadlocking.
type Service interface {
	Execute(ctx context.Context, userID, marketID uuid.UUID, side enums.TradeSide, req Request) (*models.Trade, error)
	Quote(ctx context.Context, marketID uuid.UUID, side enums.TradeSide, req Request) (pricing.Quote, error)
	ListByUser(ctx context.Context, userID uuid.UUID, page pagination.Params) (pagination.Page[models.Trade], error)
	ListAll(ctx context.Context, page pagination.Params) (pagination.Page[models.Trade], error)
}

type service struct {
	repo       Repository
	marketRepo markets.Repository
	wallets    wallet.Service
	positions  *positions.Store
	engine     pricing.Engine
	tx         txRunner
	logg       *logger.Logger
	metrics    *metrics.Exchange
	now        func() time.Time
}

// ServiceParams bundles the executor dependencies.
type ServiceParams struct {
	Repo      Repository
	Markets   markets.Repository
	Wallets   wallet.Service
	Positions *positions.Store
	Engine    pricing.Engine
	Tx        txRunner
	Logger    *logger.Logger
	Metrics   *metrics.Exchange
	Now       func() time.Time
}

// NewService builds the trade executor with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("trade repository required")
	}
	if params.Markets == nil {
		return nil, fmt.Errorf("market repository required")
	}
	if params.Wallets == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if params.Positions == nil {
		return nil, fmt.Errorf("position store required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:       params.Repo,
		marketRepo: params.Markets,
		wallets:    params.Wallets,
		positions:  params.Positions,
		engine:     params.Engine,
		tx:         params.Tx,
		logg:       params.Logger,
		metrics:    params.Metrics,
		now:        now,
	}, nil
}

func (s *service) Execute(ctx context.Context, userID, marketID uuid.UUID, side enums.TradeSide, req Request) (*models.Trade, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if marketID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "market id required")
	}
	if !side.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTrade, "side must be yes or no")
	}
	if req == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTrade, "trade request required")
	}

	var trade *models.Trade
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		// Market row is locked before any wallet row; the wallet service
		// locks the wallet second. The fixed order keeps concurrent trades
		// deadlock-free.
		market, err := s.marketRepo.WithTx(tx).GetForUpdate(ctx, marketID)
		if err != nil {
			if pkgdb.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "market not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load market")
		}

		if market.Status != enums.MarketStatusActive {
			return pkgerrors.New(pkgerrors.CodeMarketClosed,
				fmt.Sprintf("market is %s", market.Status))
		}
		now := s.now()
		if now.Before(market.StartTime) || now.After(market.EndTime) {
			return pkgerrors.New(pkgerrors.CodeMarketNotOpen, "market is outside its trading window")
		}

		switch r := req.(type) {
		case BuyByAmount:
			trade, err = s.executeBuy(ctx, tx, userID, market, side, func() (pricing.Quote, error) {
				return s.engine.QuoteBuyAmount(side, r.Amount, market.QYes, market.QNo, market.Liquidity)
			})
		case BuyByShares:
			trade, err = s.executeBuy(ctx, tx, userID, market, side, func() (pricing.Quote, error) {
				return s.engine.QuoteBuyShares(side, r.Shares, market.QYes, market.QNo, market.Liquidity)
			})
		case SellByShares:
			trade, err = s.executeSell(ctx, tx, userID, market, side, r.Shares)
		default:
			err = pkgerrors.New(pkgerrors.CodeInvalidTrade, "unknown trade request shape")
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.observe(ctx, trade)
	return trade, nil
}

func (s *service) executeBuy(ctx context.Context, tx *gorm.DB, userID uuid.UUID, market *models.Market, side enums.TradeSide, quoteFn func() (pricing.Quote, error)) (*models.Trade, error) {
	quote, err := quoteFn()
	if err != nil {
		return nil, err
	}

	if _, err := s.wallets.DeductForTrade(ctx, tx, userID, quote.Total, market.ID); err != nil {
		return nil, err
	}

	if err := s.writeMarketState(ctx, tx, market, quote); err != nil {
		return nil, err
	}

	if _, err := s.positions.Apply(ctx, tx, userID, market.ID, side, quote.Shares, quote.AvgPrice, true); err != nil {
		return nil, err
	}

	return s.record(ctx, tx, userID, market, enums.TradeTypeBuy, side, quote)
}

func (s *service) executeSell(ctx context.Context, tx *gorm.DB, userID uuid.UUID, market *models.Market, side enums.TradeSide, shares decimal.Decimal) (*models.Trade, error) {
	position, err := s.positions.GetInTx(ctx, tx, userID, market.ID)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientShares, "no position on market")
		}
		return nil, err
	}
	held := position.YesShares
	if side == enums.TradeSideNo {
		held = position.NoShares
	}
	if shares.GreaterThan(held) {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientShares, "sell exceeds held shares").
			WithDetails(map[string]any{"held": held, "requested": shares})
	}

	quote, err := s.engine.QuoteSellShares(side, shares, market.QYes, market.QNo, market.Liquidity)
	if err != nil {
		return nil, err
	}

	if _, err := s.wallets.AddFromTrade(ctx, tx, userID, quote.Total, market.ID); err != nil {
		return nil, err
	}

	if err := s.writeMarketState(ctx, tx, market, quote); err != nil {
		return nil, err
	}

	if _, err := s.positions.Apply(ctx, tx, userID, market.ID, side, quote.Shares, quote.AvgPrice, false); err != nil {
		return nil, err
	}

	return s.record(ctx, tx, userID, market, enums.TradeTypeSell, side, quote)
}

func (s *service) writeMarketState(ctx context.Context, tx *gorm.DB, market *models.Market, quote pricing.Quote) error {
	newVolume := market.Volume.Add(quote.Total)
	if err := s.marketRepo.WithTx(tx).UpdateAMMState(ctx, market.ID, quote.NewQYes, quote.NewQNo, newVolume); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update market state")
	}
	return nil
}

func (s *service) record(ctx context.Context, tx *gorm.DB, userID uuid.UUID, market *models.Market, tradeType enums.TradeType, side enums.TradeSide, quote pricing.Quote) (*models.Trade, error) {
	trade := &models.Trade{
		UserID:     userID,
		MarketID:   market.ID,
		Type:       tradeType,
		Side:       side,
		Shares:     quote.Shares,
		Price:      quote.AvgPrice,
		Cost:       quote.Total,
		Fee:        quote.Fee,
		QYesBefore: market.QYes,
		QNoBefore:  market.QNo,
		QYesAfter:  quote.NewQYes,
		QNoAfter:   quote.NewQNo,
	}
	if err := s.repo.WithTx(tx).Create(ctx, trade); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record trade")
	}
	return trade, nil
}

func (s *service) observe(ctx context.Context, trade *models.Trade) {
	if trade == nil {
		return
	}
	if s.metrics != nil {
		s.metrics.TradesExecuted.WithLabelValues(trade.Type.String(), trade.Side.String()).Inc()
		cost, _ := trade.Cost.Float64()
		s.metrics.TradeVolume.WithLabelValues(trade.Type.String()).Add(cost)
		fee, _ := trade.Fee.Float64()
		s.metrics.FeesCollected.Add(fee)
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"trade_id":  trade.ID.String(),
			"market_id": trade.MarketID.String(),
			"type":      trade.Type.String(),
			"side":      trade.Side.String(),
			"shares":    trade.Shares.String(),
			"cost":      trade.Cost.String(),
		})
		s.logg.Info(logCtx, "trade executed")
	}
}

// Quote prices a prospective trade against the market's current state
// without moving any money.
func (s *service) Quote(ctx context.Context, marketID uuid.UUID, side enums.TradeSide, req Request) (pricing.Quote, error) {
	if !side.IsValid() {
		return pricing.Quote{}, pkgerrors.New(pkgerrors.CodeInvalidTrade, "side must be yes or no")
	}
	if req == nil {
		return pricing.Quote{}, pkgerrors.New(pkgerrors.CodeInvalidTrade, "trade request required")
	}

	market, err := s.marketRepo.Get(ctx, marketID)
	if err != nil {
		if pkgdb.IsNotFound(err) {
			return pricing.Quote{}, pkgerrors.New(pkgerrors.CodeNotFound, "market not found")
		}
		return pricing.Quote{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load market")
	}

	switch r := req.(type) {
	case BuyByAmount:
		return s.engine.QuoteBuyAmount(side, r.Amount, market.QYes, market.QNo, market.Liquidity)
	case BuyByShares:
		return s.engine.QuoteBuyShares(side, r.Shares, market.QYes, market.QNo, market.Liquidity)
	case SellByShares:
		return s.engine.QuoteSellShares(side, r.Shares, market.QYes, market.QNo, market.Liquidity)
	default:
		return pricing.Quote{}, pkgerrors.New(pkgerrors.CodeInvalidTrade, "unknown trade request shape")
	}
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID, page pagination.Params) (pagination.Page[models.Trade], error) {
	var out pagination.Page[models.Trade]
	page = page.Normalize()
	rows, total, err := s.repo.ListByUser(ctx, userID, page)
	if err != nil {
		return out, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list trades")
	}
	return pagination.Page[models.Trade]{Items: rows, Page: page.Page, Limit: page.Limit, Total: total}, nil
}

func (s *service) ListAll(ctx context.Context, page pagination.Params) (pagination.Page[models.Trade], error) {
	var out pagination.Page[models.Trade]
	page = page.Normalize()
	rows, total, err := s.repo.ListAll(ctx, page)
	if err != nil {
		return out, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list trades")
	}
	return pagination.Page[models.Trade]{Items: rows, Page: page.Page, Limit: page.Limit, Total: total}, nil
}
