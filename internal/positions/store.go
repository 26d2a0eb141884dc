package positions

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	pkgdb "github.com/forecastlabs/openbook-backend/pkg/db"
	"github.com/forecastlabs/openbook-backend/pkg/db/models"
	"github.com/forecastlabs/openbook-backend/pkg/enums"
	pkgerrors "github.com/forecastlabs/openbook-backend/pkg/errors"
	"github.com/forecastlabs/openbook-backend/pkg/pagination"
)

// avgScale keeps extra precision in the weighted-average intermediate before
// rounding back to the ledger scale on storage.
const (
	storeScale = 6
	avgScale   = 9
)

// Store maintains per-(user, market) holdings with volume-weighted average
// purchase prices.
type Store struct {
	repo Repository
}

// NewStore wires a position store with the provided repository.
func NewStore(repo Repository) (*Store, error) {
	if repo == nil {
		return nil, fmt.Errorf("position repository required")
	}
	return &Store{repo: repo}, nil
}

// Apply folds one execution into the caller's position inside the supplied
// transaction. Buys grow the side and reweight its average price; sells
// shrink the side, keep the average while shares remain, and clear it to
// zero when the side empties. The opposite side is untouched.
func (s *Store) Apply(ctx context.Context, tx *gorm.DB, userID, marketID uuid.UUID, side enums.TradeSide, delta, execPrice decimal.Decimal, isBuy bool) (*models.Position, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "position mutation requires a transaction")
	}
	if delta.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTrade, "share delta must be positive")
	}

	repo := s.repo.WithTx(tx)

	position, err := repo.GetForUpdate(ctx, userID, marketID)
	if err != nil {
		if !pkgdb.IsNotFound(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock position")
		}
		if !isBuy {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientShares, "no position on market")
		}
		position = &models.Position{
			UserID:   userID,
			MarketID: marketID,
		}
		applyBuy(position, side, delta, execPrice)
		if err := repo.Create(ctx, position); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create position")
		}
		return position, nil
	}

	if isBuy {
		applyBuy(position, side, delta, execPrice)
	} else {
		if err := applySell(position, side, delta); err != nil {
			return nil, err
		}
	}

	if err := repo.Save(ctx, position); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save position")
	}
	return position, nil
}

func applyBuy(position *models.Position, side enums.TradeSide, delta, execPrice decimal.Decimal) {
	shares, avg := sideOf(position, side)

	newShares := shares.Add(delta)
	// Volume-weighted average of the existing stake and the new fill.
	weighted := shares.Mul(avg).Add(delta.Mul(execPrice))
	newAvg := weighted.DivRound(newShares, avgScale).Round(storeScale)

	setSide(position, side, newShares, newAvg)
}

func applySell(position *models.Position, side enums.TradeSide, delta decimal.Decimal) error {
	shares, avg := sideOf(position, side)
	if delta.GreaterThan(shares) {
		return pkgerrors.New(pkgerrors.CodeInsufficientShares, "sell exceeds held shares").
			WithDetails(map[string]any{"held": shares, "requested": delta})
	}

	newShares := shares.Sub(delta)
	if newShares.IsZero() {
		avg = decimal.Zero
	}
	setSide(position, side, newShares, avg)
	return nil
}

func sideOf(position *models.Position, side enums.TradeSide) (shares, avg decimal.Decimal) {
	if side == enums.TradeSideNo {
		return position.NoShares, position.AvgNoPrice
	}
	return position.YesShares, position.AvgYesPrice
}

func setSide(position *models.Position, side enums.TradeSide, shares, avg decimal.Decimal) {
	if side == enums.TradeSideNo {
		position.NoShares = shares
		position.AvgNoPrice = avg
		return
	}
	position.YesShares = shares
	position.AvgYesPrice = avg
}

// GetInTx reads a position on the supplied transaction.
func (s *Store) GetInTx(ctx context.Context, tx *gorm.DB, userID, marketID uuid.UUID) (*models.Position, error) {
	position, err := s.repo.WithTx(tx).Get(ctx, userID, marketID)
	if err != nil {
		if pkgdb.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "position not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load position")
	}
	return position, nil
}

// Get returns the caller's position on a market, if any.
func (s *Store) Get(ctx context.Context, userID, marketID uuid.UUID) (*models.Position, error) {
	position, err := s.repo.Get(ctx, userID, marketID)
	if err != nil {
		if pkgdb.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "position not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load position")
	}
	return position, nil
}

// ListByUser pages through a user's positions.
func (s *Store) ListByUser(ctx context.Context, userID uuid.UUID, page pagination.Params) (pagination.Page[models.Position], error) {
	var out pagination.Page[models.Position]
	page = page.Normalize()
	rows, total, err := s.repo.ListByUser(ctx, userID, page)
	if err != nil {
		return out, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list positions")
	}
	return pagination.Page[models.Position]{
		Items: rows,
		Page:  page.Page,
		Limit: page.Limit,
		Total: total,
	}, nil
}
