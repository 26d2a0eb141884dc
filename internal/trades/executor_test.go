package trades

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/forecastlabs/openbook-backend/internal/markets"
	"github.com/forecastlabs/openbook-backend/internal/positions"
	"github.com/forecastlabs/openbook-backend/internal/pricing"
	"github.com/forecastlabs/openbook-backend/internal/testutil"
	"github.com/forecastlabs/openbook-backend/internal/wallet"
	"github.com/forecastlabs/openbook-backend/pkg/db/models"
	"github.com/forecastlabs/openbook-backend/pkg/enums"
	pkgerrors "github.com/forecastlabs/openbook-backend/pkg/errors"
)

type harness struct {
	db        *gorm.DB
	svc       Service
	wallets   wallet.Service
	positions *positions.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	runner := testutil.Runner{DB: db}

	wallets, err := wallet.NewService(wallet.NewRepository(db), runner)
	require.NoError(t, err)
	store, err := positions.NewStore(positions.NewRepository(db))
	require.NoError(t, err)
	engine, err := pricing.NewEngine(decimal.NewFromFloat(0.02))
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:      NewRepository(db),
		Markets:   markets.NewRepository(db),
		Wallets:   wallets,
		Positions: store,
		Engine:    engine,
		Tx:        runner,
	})
	require.NoError(t, err)

	return &harness{db: db, svc: svc, wallets: wallets, positions: store}
}

func (h *harness) newUser(t *testing.T, name string, funds float64) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	user := &models.User{
		Email:        name + "@example.com",
		Username:     name,
		PasswordHash: "digest",
		Role:         enums.UserRoleUser,
		IsActive:     true,
	}
	require.NoError(t, h.db.Create(user).Error)
	_, err := h.wallets.CreateForUser(ctx, h.db, user.ID)
	require.NoError(t, err)
	if funds > 0 {
		_, err = h.wallets.Deposit(ctx, user.ID, decimal.NewFromFloat(funds))
		require.NoError(t, err)
	}
	return user.ID
}

func (h *harness) newMarket(t *testing.T, status enums.MarketStatus) *models.Market {
	t.Helper()
	now := time.Now()
	market := &models.Market{
		Title:     "Will the index close green?",
		Category:  "finance",
		Status:    status,
		Liquidity: decimal.NewFromInt(1000),
		StartTime: now.Add(-time.Hour),
		EndTime:   now.Add(24 * time.Hour),
		CreatorID: h.newUser(t, "creator-"+uuid.NewString()[:8], 0),
	}
	require.NoError(t, h.db.Create(market).Error)
	return market
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *models.Market {
	t.Helper()
	var market models.Market
	require.NoError(t, h.db.First(&market, "id = ?", id).Error)
	return &market
}

func (h *harness) balance(t *testing.T, userID uuid.UUID) decimal.Decimal {
	t.Helper()
	w, err := h.wallets.Get(context.Background(), userID)
	require.NoError(t, err)
	return w.Balance
}

func inDelta(t *testing.T, want float64, got decimal.Decimal, delta float64) {
	t.Helper()
	g, _ := got.Float64()
	require.InDelta(t, want, g, delta, "got %s", got)
}

func TestExecute_FirstBuyOnFreshMarket(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	market := h.newMarket(t, enums.MarketStatusActive)
	user := h.newUser(t, "alice", 100)

	amount := decimal.NewFromInt(10)
	trade, err := h.svc.Execute(ctx, user, market.ID, enums.TradeSideYes, BuyByAmount{Amount: amount})
	require.NoError(t, err)

	// Inverting b*ln((e^(x/b)+1)/2)*(1+fee) = 10 at b=1000 gives ~19.5127
	// shares at an average price of ~0.5125.
	inDelta(t, 19.5127, trade.Shares, 0.01)
	inDelta(t, 0.5125, trade.Price, 0.001)
	inDelta(t, 10, trade.Cost, 0.001)
	inDelta(t, 0.196078, trade.Fee, 0.001)
	require.True(t, trade.QYesBefore.IsZero())
	require.True(t, trade.QNoBefore.IsZero())
	require.True(t, trade.QYesAfter.Equal(trade.Shares))
	require.True(t, trade.QNoAfter.IsZero())

	inDelta(t, 90, h.balance(t, user), 0.001)

	current := h.reload(t, market.ID)
	require.True(t, current.QYes.Equal(trade.QYesAfter))
	require.True(t, current.QNo.IsZero())
	require.True(t, current.Volume.Equal(trade.Cost))

	position, err := h.positions.Get(ctx, user, market.ID)
	require.NoError(t, err)
	require.True(t, position.YesShares.Equal(trade.Shares))
	require.True(t, position.AvgYesPrice.Equal(trade.Price))
}

func TestExecute_RoundTripSell(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	market := h.newMarket(t, enums.MarketStatusActive)
	user := h.newUser(t, "alice", 100)

	buy, err := h.svc.Execute(ctx, user, market.ID, enums.TradeSideYes, BuyByAmount{Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)

	sell, err := h.svc.Execute(ctx, user, market.ID, enums.TradeSideYes, SellByShares{Shares: buy.Shares})
	require.NoError(t, err)

	// Selling back restores the pool; the raw return matches the raw cost
	// (~9.8039) and the trader receives it net of the 2% fee (~9.6078).
	inDelta(t, 9.6078, sell.Cost, 0.001)
	inDelta(t, 99.6078, h.balance(t, user), 0.001)

	current := h.reload(t, market.ID)
	inDelta(t, 0, current.QYes, 0.0001)

	position, err := h.positions.Get(ctx, user, market.ID)
	require.NoError(t, err)
	require.True(t, position.YesShares.IsZero())
	require.True(t, position.AvgYesPrice.IsZero())

	// The sell's before-state chains off the buy's after-state.
	require.True(t, sell.QYesBefore.Equal(buy.QYesAfter))
	require.True(t, sell.QNoBefore.Equal(buy.QNoAfter))
}

func TestExecute_InsufficientFundsLeavesNoSideEffects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	market := h.newMarket(t, enums.MarketStatusActive)
	user := h.newUser(t, "poor", 5)

	_, err := h.svc.Execute(ctx, user, market.ID, enums.TradeSideYes, BuyByAmount{Amount: decimal.NewFromInt(10)})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientFunds))

	current := h.reload(t, market.ID)
	require.True(t, current.QYes.IsZero())
	require.True(t, current.Volume.IsZero())

	var tradeCount int64
	require.NoError(t, h.db.Model(&models.Trade{}).Count(&tradeCount).Error)
	require.Zero(t, tradeCount)

	var txCount int64
	require.NoError(t, h.db.
		Model(&models.WalletTransaction{}).
		Where("kind = ?", enums.TxKindTrade).
		Count(&txCount).Error)
	require.Zero(t, txCount)

	require.True(t, h.balance(t, user).Equal(decimal.NewFromInt(5)))
}

func TestExecute_MarketStatusGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.newUser(t, "alice", 100)

	for _, status := range []enums.MarketStatus{
		enums.MarketStatusDraft,
		enums.MarketStatusSuspended,
		enums.MarketStatusResolved,
		enums.MarketStatusCancelled,
	} {
		market := h.newMarket(t, status)
		_, err := h.svc.Execute(ctx, user, market.ID, enums.TradeSideYes, BuyByShares{Shares: decimal.NewFromInt(1)})
		require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeMarketClosed), "status %s", status)
	}
}

func TestExecute_TradingWindowGuard(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.newUser(t, "alice", 100)

	market := h.newMarket(t, enums.MarketStatusActive)
	require.NoError(t, h.db.
		Model(&models.Market{}).
		Where("id = ?", market.ID).
		Updates(map[string]any{
			"start_time": time.Now().Add(time.Hour),
			"end_time":   time.Now().Add(2 * time.Hour),
		}).Error)

	_, err := h.svc.Execute(ctx, user, market.ID, enums.TradeSideYes, BuyByShares{Shares: decimal.NewFromInt(1)})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeMarketNotOpen))
}

func TestExecute_UnknownMarket(t *testing.T) {
	h := newHarness(t)
	user := h.newUser(t, "alice", 100)

	_, err := h.svc.Execute(context.Background(), user, uuid.New(), enums.TradeSideYes, BuyByShares{Shares: decimal.NewFromInt(1)})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestExecute_SellBeyondHoldings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	market := h.newMarket(t, enums.MarketStatusActive)
	user := h.newUser(t, "alice", 100)

	buy, err := h.svc.Execute(ctx, user, market.ID, enums.TradeSideYes, BuyByShares{Shares: decimal.NewFromInt(10)})
	require.NoError(t, err)

	_, err = h.svc.Execute(ctx, user, market.ID, enums.TradeSideYes, SellByShares{Shares: buy.Shares.Add(decimal.NewFromInt(1))})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientShares))

	_, err = h.svc.Execute(ctx, user, market.ID, enums.TradeSideNo, SellByShares{Shares: decimal.NewFromInt(1)})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientShares))
}

func TestExecute_SequentialTradesChain(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	market := h.newMarket(t, enums.MarketStatusActive)
	alice := h.newUser(t, "alice", 100)
	bob := h.newUser(t, "bob", 100)

	first, err := h.svc.Execute(ctx, alice, market.ID, enums.TradeSideYes, BuyByAmount{Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	second, err := h.svc.Execute(ctx, bob, market.ID, enums.TradeSideYes, BuyByAmount{Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)

	require.True(t, second.QYesBefore.Equal(first.QYesAfter), "q chain must be contiguous")
	require.True(t, second.QNoBefore.Equal(first.QNoAfter))

	current := h.reload(t, market.ID)
	require.True(t, current.QYes.Equal(second.QYesAfter))
	require.True(t, current.Volume.Equal(first.Cost.Add(second.Cost)))
	inDelta(t, 20, current.Volume, 0.01)

	// Both wallet ledgers stay contiguous.
	for _, userID := range []uuid.UUID{alice, bob} {
		w, err := h.wallets.Get(ctx, userID)
		require.NoError(t, err)
		var entries []models.WalletTransaction
		require.NoError(t, h.db.
			Where("wallet_id = ?", w.ID).
			Order("created_at ASC, id ASC").
			Find(&entries).Error)
		for i := 1; i < len(entries); i++ {
			require.True(t, entries[i].BalanceBefore.Equal(entries[i-1].BalanceAfter))
		}
	}
}

func TestExecute_QuoteMatchesExecution(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	market := h.newMarket(t, enums.MarketStatusActive)
	user := h.newUser(t, "alice", 100)

	amount := decimal.NewFromFloat(17.5)
	quote, err := h.svc.Quote(ctx, market.ID, enums.TradeSideNo, BuyByAmount{Amount: amount})
	require.NoError(t, err)

	trade, err := h.svc.Execute(ctx, user, market.ID, enums.TradeSideNo, BuyByAmount{Amount: amount})
	require.NoError(t, err)

	require.True(t, trade.Cost.Equal(quote.Total), "executed cost must match the quote")
	require.True(t, trade.Shares.Equal(quote.Shares))
}

func TestParseRequest_ExactlyOneOf(t *testing.T) {
	amount := decimal.NewFromInt(10)
	shares := decimal.NewFromInt(5)

	_, err := ParseRequest(enums.TradeTypeBuy, nil, nil)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTrade))

	_, err = ParseRequest(enums.TradeTypeBuy, &amount, &shares)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTrade))

	req, err := ParseRequest(enums.TradeTypeBuy, &amount, nil)
	require.NoError(t, err)
	require.IsType(t, BuyByAmount{}, req)

	req, err = ParseRequest(enums.TradeTypeBuy, nil, &shares)
	require.NoError(t, err)
	require.IsType(t, BuyByShares{}, req)

	// Sells ignore amount and require shares.
	req, err = ParseRequest(enums.TradeTypeSell, &amount, &shares)
	require.NoError(t, err)
	require.IsType(t, SellByShares{}, req)

	_, err = ParseRequest(enums.TradeTypeSell, &amount, nil)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTrade))

	zero := decimal.Zero
	_, err = ParseRequest(enums.TradeTypeSell, nil, &zero)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTrade))
}
