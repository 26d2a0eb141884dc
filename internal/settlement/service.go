// Package settlement pays out winning positions when a market resolves.
package settlement

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forecastlabs/openbook-backend/internal/positions"
	"github.com/forecastlabs/openbook-backend/pkg/db/models"
	"github.com/forecastlabs/openbook-backend/pkg/enums"
	pkgerrors "github.com/forecastlabs/openbook-backend/pkg/errors"
	"github.com/forecastlabs/openbook-backend/pkg/logger"
	"github.com/forecastlabs/openbook-backend/pkg/metrics"
)

type walletCreditor interface {
	SettlePosition(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal, marketID uuid.UUID) (*models.WalletTransaction, error)
}

// Service credits winning shares at one unit each.
type Service interface {
	SettleMarket(ctx context.Context, tx *gorm.DB, market *models.Market) (int, error)
}

type service struct {
	positions positions.Repository
	wallets   walletCreditor
	logg      *logger.Logger
	metrics   *metrics.Exchange
}

// NewService wires a settlement service.
func NewService(positionRepo positions.Repository, wallets walletCreditor, logg *logger.Logger, m *metrics.Exchange) (Service, error) {
	if positionRepo == nil {
		return nil, fmt.Errorf("position repository required")
	}
	if wallets == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	return &service{positions: positionRepo, wallets: wallets, logg: logg, metrics: m}, nil
}

// SettleMarket walks every position on the market and credits holders of the
// winning side one unit per share. It must run inside the transaction that
// resolves the market. A market that already carries a settlement stamp is
// skipped so re-runs credit nothing. Positions are kept as historical record.
func (s *service) SettleMarket(ctx context.Context, tx *gorm.DB, market *models.Market) (int, error) {
	if tx == nil {
		return 0, pkgerrors.New(pkgerrors.CodeInternal, "settlement requires a transaction")
	}
	if market == nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "market required")
	}
	if market.Outcome == nil || !market.Outcome.IsValid() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "market has no outcome")
	}
	if market.SettledAt != nil {
		return 0, nil
	}

	rows, err := s.positions.WithTx(tx).ListByMarket(ctx, market.ID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list positions")
	}

	settled := 0
	total := decimal.Zero
	for _, position := range rows {
		winning := winningShares(position, *market.Outcome)
		if winning.LessThanOrEqual(decimal.Zero) {
			continue
		}
		// Each winning share pays exactly one unit.
		if _, err := s.wallets.SettlePosition(ctx, tx, position.UserID, winning, market.ID); err != nil {
			return 0, err
		}
		settled++
		total = total.Add(winning)
	}

	if s.metrics != nil && total.IsPositive() {
		payout, _ := total.Float64()
		s.metrics.SettlementCredits.Add(payout)
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"market_id":         market.ID.String(),
			"settled_positions": settled,
			"total_payout":      total.String(),
		})
		s.logg.Info(logCtx, "market settled")
	}
	return settled, nil
}

func winningShares(position models.Position, outcome enums.Outcome) decimal.Decimal {
	if outcome == enums.OutcomeNo {
		return position.NoShares
	}
	return position.YesShares
}
