package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/forecastlabs/openbook-backend/internal/positions"
	"github.com/forecastlabs/openbook-backend/internal/testutil"
	"github.com/forecastlabs/openbook-backend/internal/wallet"
	"github.com/forecastlabs/openbook-backend/pkg/db/models"
	"github.com/forecastlabs/openbook-backend/pkg/enums"
)

type harness struct {
	db      *gorm.DB
	svc     Service
	wallets wallet.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewDB(t)

	wallets, err := wallet.NewService(wallet.NewRepository(db), testutil.Runner{DB: db})
	require.NoError(t, err)

	svc, err := NewService(positions.NewRepository(db), wallets, nil, nil)
	require.NoError(t, err)

	return &harness{db: db, svc: svc, wallets: wallets}
}

func (h *harness) newUser(t *testing.T, name string) uuid.UUID {
	t.Helper()
	user := &models.User{
		Email:        name + "@example.com",
		Username:     name,
		PasswordHash: "digest",
		Role:         enums.UserRoleUser,
		IsActive:     true,
	}
	require.NoError(t, h.db.Create(user).Error)
	_, err := h.wallets.CreateForUser(context.Background(), h.db, user.ID)
	require.NoError(t, err)
	return user.ID
}

func (h *harness) newResolvedMarket(t *testing.T, outcome enums.Outcome) *models.Market {
	t.Helper()
	now := time.Now()
	market := &models.Market{
		Title:     "settles",
		Status:    enums.MarketStatusResolved,
		Outcome:   &outcome,
		Liquidity: decimal.NewFromInt(1000),
		StartTime: now.Add(-time.Hour),
		EndTime:   now.Add(time.Hour),
		CreatorID: h.newUser(t, "creator-"+uuid.NewString()[:8]),
	}
	require.NoError(t, h.db.Create(market).Error)
	return market
}

func (h *harness) addPosition(t *testing.T, userID, marketID uuid.UUID, yes, no int64) {
	t.Helper()
	require.NoError(t, h.db.Create(&models.Position{
		UserID:    userID,
		MarketID:  marketID,
		YesShares: decimal.NewFromInt(yes),
		NoShares:  decimal.NewFromInt(no),
	}).Error)
}

func (h *harness) balance(t *testing.T, userID uuid.UUID) decimal.Decimal {
	t.Helper()
	w, err := h.wallets.Get(context.Background(), userID)
	require.NoError(t, err)
	return w.Balance
}

func TestSettleMarket_PaysWinnersOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	market := h.newResolvedMarket(t, enums.OutcomeYes)
	alice := h.newUser(t, "alice")
	bob := h.newUser(t, "bob")
	h.addPosition(t, alice, market.ID, 50, 0)
	h.addPosition(t, bob, market.ID, 0, 50)

	var settled int
	require.NoError(t, h.db.Transaction(func(tx *gorm.DB) error {
		var err error
		settled, err = h.svc.SettleMarket(ctx, tx, market)
		return err
	}))

	require.Equal(t, 1, settled, "only the winning holder settles")
	require.True(t, h.balance(t, alice).Equal(decimal.NewFromInt(50)))
	require.True(t, h.balance(t, bob).IsZero())

	// Losing holders get no zero-amount ledger rows.
	var count int64
	require.NoError(t, h.db.
		Model(&models.WalletTransaction{}).
		Where("kind = ?", enums.TxKindSettlement).
		Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestSettleMarket_NoOutcomePaysNo(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	market := h.newResolvedMarket(t, enums.OutcomeNo)
	carol := h.newUser(t, "carol")
	h.addPosition(t, carol, market.ID, 20, 35)

	require.NoError(t, h.db.Transaction(func(tx *gorm.DB) error {
		_, err := h.svc.SettleMarket(ctx, tx, market)
		return err
	}))
	require.True(t, h.balance(t, carol).Equal(decimal.NewFromInt(35)))
}

func TestSettleMarket_IdempotentAfterStamp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	market := h.newResolvedMarket(t, enums.OutcomeYes)
	alice := h.newUser(t, "alice")
	h.addPosition(t, alice, market.ID, 50, 0)

	require.NoError(t, h.db.Transaction(func(tx *gorm.DB) error {
		_, err := h.svc.SettleMarket(ctx, tx, market)
		return err
	}))
	stamp := time.Now()
	market.SettledAt = &stamp

	var settled int
	require.NoError(t, h.db.Transaction(func(tx *gorm.DB) error {
		var err error
		settled, err = h.svc.SettleMarket(ctx, tx, market)
		return err
	}))
	require.Zero(t, settled, "second settlement must credit nothing")
	require.True(t, h.balance(t, alice).Equal(decimal.NewFromInt(50)))
}

func TestSettleMarket_PositionsSurviveSettlement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	market := h.newResolvedMarket(t, enums.OutcomeYes)
	alice := h.newUser(t, "alice")
	h.addPosition(t, alice, market.ID, 50, 0)

	require.NoError(t, h.db.Transaction(func(tx *gorm.DB) error {
		_, err := h.svc.SettleMarket(ctx, tx, market)
		return err
	}))

	var position models.Position
	require.NoError(t, h.db.First(&position, "user_id = ? AND market_id = ?", alice, market.ID).Error)
	require.True(t, position.YesShares.Equal(decimal.NewFromInt(50)), "positions remain as historical record")
}
