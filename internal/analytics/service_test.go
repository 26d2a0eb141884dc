package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/forecastlabs/openbook-backend/internal/testutil"
	"github.com/forecastlabs/openbook-backend/pkg/db/models"
	"github.com/forecastlabs/openbook-backend/pkg/enums"
)

type harness struct {
	db  *gorm.DB
	svc Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	svc, err := NewService(db, time.UTC)
	require.NoError(t, err)
	return &harness{db: db, svc: svc}
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
	return user.ID
}

func (h *harness) newMarket(t *testing.T, status enums.MarketStatus, outcome *enums.Outcome) uuid.UUID {
	t.Helper()
	now := time.Now()
	market := &models.Market{
		Title:     "market-" + uuid.NewString()[:8],
		Status:    status,
		Outcome:   outcome,
		Liquidity: decimal.NewFromInt(1000),
		StartTime: now.Add(-time.Hour),
		EndTime:   now.Add(time.Hour),
		CreatorID: h.newUser(t, "creator-"+uuid.NewString()[:8]),
	}
	require.NoError(t, h.db.Create(market).Error)
	return market.ID
}

func (h *harness) addTrade(t *testing.T, userID, marketID uuid.UUID, tradeType enums.TradeType, cost, fee float64, createdAt time.Time) {
	t.Helper()
	require.NoError(t, h.db.Create(&models.Trade{
		UserID:    userID,
		MarketID:  marketID,
		Type:      tradeType,
		Side:      enums.TradeSideYes,
		Shares:    decimal.NewFromInt(1),
		Price:     decimal.NewFromFloat(0.5),
		Cost:      decimal.NewFromFloat(cost),
		Fee:       decimal.NewFromFloat(fee),
		CreatedAt: createdAt,
	}).Error)
}

func (h *harness) addPosition(t *testing.T, userID, marketID uuid.UUID, yes, no float64) {
	t.Helper()
	require.NoError(t, h.db.Create(&models.Position{
		UserID:    userID,
		MarketID:  marketID,
		YesShares: decimal.NewFromFloat(yes),
		NoShares:  decimal.NewFromFloat(no),
	}).Error)
}

func TestFeeSummary_Windows(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.newUser(t, "alice")
	marketID := h.newMarket(t, enums.MarketStatusActive, nil)

	// Reference clock: Wednesday 2026-08-05 12:00 UTC. The week starts on
	// Sunday 2026-08-02 00:00, the month on Saturday 2026-08-01.
	now := time.Date(2026, 8, 5, 12, 0, 0, 0, time.UTC)

	h.addTrade(t, user, marketID, enums.TradeTypeBuy, 50, 1, now.Add(-2*time.Hour))                       // today
	h.addTrade(t, user, marketID, enums.TradeTypeBuy, 50, 2, time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)) // this week
	h.addTrade(t, user, marketID, enums.TradeTypeBuy, 50, 4, time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)) // this month
	h.addTrade(t, user, marketID, enums.TradeTypeBuy, 50, 8, time.Date(2026, 7, 10, 9, 0, 0, 0, time.UTC))

	summary, err := h.svc.FeeSummary(ctx, now)
	require.NoError(t, err)
	require.True(t, summary.Total.Equal(decimal.NewFromInt(15)), "total %s", summary.Total)
	require.True(t, summary.Today.Equal(decimal.NewFromInt(1)), "today %s", summary.Today)
	require.True(t, summary.ThisWeek.Equal(decimal.NewFromInt(3)), "week %s", summary.ThisWeek)
	require.True(t, summary.ThisMonth.Equal(decimal.NewFromInt(7)), "month %s", summary.ThisMonth)
}

func TestMarketPnL_Reconciliation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.newUser(t, "alice")

	outcome := enums.OutcomeYes
	resolved := h.newMarket(t, enums.MarketStatusResolved, &outcome)
	open := h.newMarket(t, enums.MarketStatusActive, nil)
	now := time.Now()

	// Resolved market: buys collected 100 net of 2 in fees, sells paid 30,
	// winners hold 40 YES shares.
	h.addTrade(t, user, resolved, enums.TradeTypeBuy, 102, 2, now)
	h.addTrade(t, user, resolved, enums.TradeTypeSell, 30, 0.5, now)
	h.addPosition(t, user, resolved, 40, 25)

	// Open market: only a buy so far.
	h.addTrade(t, user, open, enums.TradeTypeBuy, 51, 1, now)

	report, err := h.svc.MarketPnL(ctx)
	require.NoError(t, err)
	require.Len(t, report.Markets, 2)

	byID := map[uuid.UUID]MarketPnL{}
	for _, entry := range report.Markets {
		byID[entry.MarketID] = entry
	}

	res := byID[resolved]
	require.True(t, res.BuyVolume.Equal(decimal.NewFromInt(100)), "buy volume %s", res.BuyVolume)
	require.True(t, res.SellVolume.Equal(decimal.NewFromInt(30)))
	require.True(t, res.SettlementPayout.Equal(decimal.NewFromInt(40)))
	// 100 - 30 - 40 = 30
	require.True(t, res.PnL.Equal(decimal.NewFromInt(30)))

	op := byID[open]
	require.True(t, op.BuyVolume.Equal(decimal.NewFromInt(50)))
	require.True(t, op.SettlementPayout.IsZero(), "unresolved markets have no payout")

	require.True(t, report.ResolvedPnL.Equal(decimal.NewFromInt(30)))
	// (100 - 30) + (50 - 0) = 120
	require.True(t, report.TotalCashFlow.Equal(decimal.NewFromInt(120)))
}

func TestUnsettledExposure_WorstCasePerMarket(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.newUser(t, "alice")
	bob := h.newUser(t, "bob")

	outcome := enums.OutcomeYes
	open1 := h.newMarket(t, enums.MarketStatusActive, nil)
	open2 := h.newMarket(t, enums.MarketStatusSuspended, nil)
	resolved := h.newMarket(t, enums.MarketStatusResolved, &outcome)

	h.addPosition(t, alice, open1, 60, 10)
	h.addPosition(t, bob, open1, 20, 100)
	h.addPosition(t, alice, open2, 15, 5)
	h.addPosition(t, bob, resolved, 500, 0)

	report, err := h.svc.UnsettledExposure(ctx, 10)
	require.NoError(t, err)

	// open1: max(80, 110) = 110; open2: max(15, 5) = 15; resolved excluded.
	require.True(t, report.Total.Equal(decimal.NewFromInt(125)), "total %s", report.Total)
	require.Len(t, report.Markets, 2)
	require.Equal(t, open1, report.Markets[0].MarketID, "sorted by exposure descending")
	require.True(t, report.Markets[0].Exposure.Equal(decimal.NewFromInt(110)))
	require.True(t, report.Markets[1].Exposure.Equal(decimal.NewFromInt(15)))
}

func TestTopFeeContributors_SortedAndJoined(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.newUser(t, "alice")
	bob := h.newUser(t, "bob")
	marketID := h.newMarket(t, enums.MarketStatusActive, nil)
	now := time.Now()

	h.addTrade(t, alice, marketID, enums.TradeTypeBuy, 100, 2, now)
	h.addTrade(t, alice, marketID, enums.TradeTypeBuy, 50, 1, now)
	h.addTrade(t, bob, marketID, enums.TradeTypeBuy, 500, 10, now)

	contributors, err := h.svc.TopFeeContributors(ctx, 10)
	require.NoError(t, err)
	require.Len(t, contributors, 2)

	require.Equal(t, bob, contributors[0].UserID)
	require.Equal(t, "bob", contributors[0].Username)
	require.True(t, contributors[0].TotalFees.Equal(decimal.NewFromInt(10)))
	require.Equal(t, int64(1), contributors[0].TradeCount)

	require.Equal(t, alice, contributors[1].UserID)
	require.True(t, contributors[1].TotalFees.Equal(decimal.NewFromInt(3)))
	require.True(t, contributors[1].TotalCost.Equal(decimal.NewFromInt(150)))
	require.Equal(t, int64(2), contributors[1].TradeCount)
}

func TestOverview_ProfitIsFeesPlusResolvedPnL(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.newUser(t, "alice")

	outcome := enums.OutcomeNo
	resolved := h.newMarket(t, enums.MarketStatusResolved, &outcome)
	now := time.Now()

	h.addTrade(t, user, resolved, enums.TradeTypeBuy, 102, 2, now)
	h.addPosition(t, user, resolved, 40, 25)

	overview, err := h.svc.Overview(ctx, now)
	require.NoError(t, err)

	// fees = 2; resolved pnl = 100 - 0 - 25 = 75; profit = 77.
	require.True(t, overview.Fees.Total.Equal(decimal.NewFromInt(2)))
	require.True(t, overview.ResolvedPnL.Equal(decimal.NewFromInt(75)))
	require.True(t, overview.TotalProfit.Equal(decimal.NewFromInt(77)))
}
