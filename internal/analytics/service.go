// Package analytics derives the platform's fee, P&L, and exposure figures
// from the append-only trade and ledger logs.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forecastlabs/openbook-backend/pkg/enums"
	pkgerrors "github.com/forecastlabs/openbook-backend/pkg/errors"
)

// FeeSummary partitions collected fees into calendar windows.
type FeeSummary struct {
	Total     decimal.Decimal `json:"total"`
	Today     decimal.Decimal `json:"today"`
	ThisWeek  decimal.Decimal `json:"this_week"`
	ThisMonth decimal.Decimal `json:"this_month"`
}

// MarketPnL reconciles one market's cash flows against the market maker.
type MarketPnL struct {
	MarketID         uuid.UUID          `json:"market_id"`
	Title            string             `json:"title"`
	Status           enums.MarketStatus `json:"status"`
	Outcome          *enums.Outcome     `json:"outcome,omitempty"`
	BuyVolume        decimal.Decimal    `json:"buy_volume"`
	SellVolume       decimal.Decimal    `json:"sell_volume"`
	SettlementPayout decimal.Decimal    `json:"settlement_payout"`
	PnL              decimal.Decimal    `json:"pnl"`
}

// PnLReport aggregates per-market reconciliation.
type PnLReport struct {
	Markets       []MarketPnL     `json:"markets"`
	ResolvedPnL   decimal.Decimal `json:"resolved_pnl"`
	TotalCashFlow decimal.Decimal `json:"total_cash_flow"`
}

// MarketExposure is the worst-case payout obligation of one open market.
type MarketExposure struct {
	MarketID uuid.UUID          `json:"market_id"`
	Title    string             `json:"title"`
	Status   enums.MarketStatus `json:"status"`
	Exposure decimal.Decimal    `json:"exposure"`
}

// ExposureReport sums worst-case payouts across unresolved markets.
type ExposureReport struct {
	Total   decimal.Decimal  `json:"total"`
	Markets []MarketExposure `json:"markets"`
}

// FeeContributor is one user's aggregate trading activity.
type FeeContributor struct {
	UserID     uuid.UUID       `json:"user_id"`
	Username   string          `json:"username"`
	Email      string          `json:"email"`
	TotalFees  decimal.Decimal `json:"total_fees"`
	TotalCost  decimal.Decimal `json:"total_cost"`
	TradeCount int64           `json:"trade_count"`
}

// Overview is the headline dashboard figure set.
type Overview struct {
	Fees        FeeSummary      `json:"fees"`
	ResolvedPnL decimal.Decimal `json:"resolved_pnl"`
	TotalProfit decimal.Decimal `json:"total_profit"`
}

// Service exposes the read-only analytics derivations.
type Service interface {
	FeeSummary(ctx context.Context, now time.Time) (FeeSummary, error)
	MarketPnL(ctx context.Context) (PnLReport, error)
	UnsettledExposure(ctx context.Context, topN int) (ExposureReport, error)
	TopFeeContributors(ctx context.Context, topN int) ([]FeeContributor, error)
	Overview(ctx context.Context, now time.Time) (Overview, error)
}

type service struct {
	db  *gorm.DB
	loc *time.Location
}

// NewService builds the analytics reader. loc fixes the calendar windows
// (day / week / month boundaries) to one timezone.
func NewService(db *gorm.DB, loc *time.Location) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("database required")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &service{db: db, loc: loc}, nil
}

func (s *service) FeeSummary(ctx context.Context, now time.Time) (FeeSummary, error) {
	now = now.In(s.loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	// Weeks start Sunday 00:00.
	weekStart := dayStart.AddDate(0, 0, -int(now.Weekday()))
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)

	var out FeeSummary
	var err error
	if out.Total, err = s.sumFees(ctx, time.Time{}); err != nil {
		return out, err
	}
	if out.Today, err = s.sumFees(ctx, dayStart); err != nil {
		return out, err
	}
	if out.ThisWeek, err = s.sumFees(ctx, weekStart); err != nil {
		return out, err
	}
	if out.ThisMonth, err = s.sumFees(ctx, monthStart); err != nil {
		return out, err
	}
	return out, nil
}

func (s *service) sumFees(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	query := s.db.WithContext(ctx).Table("trades")
	if !since.IsZero() {
		query = query.Where("created_at >= ?", since)
	}
	var result struct {
		Total decimal.NullDecimal
	}
	if err := query.Select("SUM(fee) AS total").Scan(&result).Error; err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum fees")
	}
	if !result.Total.Valid {
		return decimal.Zero, nil
	}
	return result.Total.Decimal, nil
}

type pnlRow struct {
	MarketID   uuid.UUID
	BuyVolume  decimal.NullDecimal
	SellVolume decimal.NullDecimal
}

type shareRow struct {
	MarketID  uuid.UUID
	YesShares decimal.NullDecimal
	NoShares  decimal.NullDecimal
}

type marketRow struct {
	ID      uuid.UUID
	Title   string
	Status  enums.MarketStatus
	Outcome *enums.Outcome
}

func (s *service) MarketPnL(ctx context.Context) (PnLReport, error) {
	var report PnLReport
	report.ResolvedPnL = decimal.Zero
	report.TotalCashFlow = decimal.Zero

	var markets []marketRow
	if err := s.db.WithContext(ctx).
		Table("markets").
		Select("id, title, status, outcome").
		Order("created_at ASC").
		Scan(&markets).Error; err != nil {
		return report, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load markets")
	}

	var volumes []pnlRow
	if err := s.db.WithContext(ctx).
		Table("trades").
		Select(`market_id,
			SUM(CASE WHEN type = 'buy' THEN cost - fee ELSE 0 END) AS buy_volume,
			SUM(CASE WHEN type = 'sell' THEN cost ELSE 0 END) AS sell_volume`).
		Group("market_id").
		Scan(&volumes).Error; err != nil {
		return report, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate trade volumes")
	}
	volumeByMarket := make(map[uuid.UUID]pnlRow, len(volumes))
	for _, row := range volumes {
		volumeByMarket[row.MarketID] = row
	}

	shares, err := s.sharesByMarket(ctx)
	if err != nil {
		return report, err
	}

	for _, market := range markets {
		row := volumeByMarket[market.ID]
		entry := MarketPnL{
			MarketID:         market.ID,
			Title:            market.Title,
			Status:           market.Status,
			Outcome:          market.Outcome,
			BuyVolume:        orZero(row.BuyVolume),
			SellVolume:       orZero(row.SellVolume),
			SettlementPayout: decimal.Zero,
		}

		if market.Status == enums.MarketStatusResolved && market.Outcome != nil {
			sums := shares[market.ID]
			if *market.Outcome == enums.OutcomeNo {
				entry.SettlementPayout = orZero(sums.NoShares)
			} else {
				entry.SettlementPayout = orZero(sums.YesShares)
			}
		}

		entry.PnL = entry.BuyVolume.Sub(entry.SellVolume).Sub(entry.SettlementPayout)
		report.Markets = append(report.Markets, entry)

		report.TotalCashFlow = report.TotalCashFlow.Add(entry.BuyVolume).Sub(entry.SellVolume)
		if market.Status == enums.MarketStatusResolved {
			report.ResolvedPnL = report.ResolvedPnL.Add(entry.PnL)
		}
	}
	return report, nil
}

func (s *service) sharesByMarket(ctx context.Context) (map[uuid.UUID]shareRow, error) {
	var rows []shareRow
	if err := s.db.WithContext(ctx).
		Table("positions").
		Select("market_id, SUM(yes_shares) AS yes_shares, SUM(no_shares) AS no_shares").
		Group("market_id").
		Scan(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate positions")
	}
	out := make(map[uuid.UUID]shareRow, len(rows))
	for _, row := range rows {
		out[row.MarketID] = row
	}
	return out, nil
}

func (s *service) UnsettledExposure(ctx context.Context, topN int) (ExposureReport, error) {
	report := ExposureReport{Total: decimal.Zero}

	var markets []marketRow
	if err := s.db.WithContext(ctx).
		Table("markets").
		Select("id, title, status, outcome").
		Where("status IN ?", []enums.MarketStatus{
			enums.MarketStatusDraft,
			enums.MarketStatusActive,
			enums.MarketStatusSuspended,
		}).
		Scan(&markets).Error; err != nil {
		return report, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open markets")
	}

	shares, err := s.sharesByMarket(ctx)
	if err != nil {
		return report, err
	}

	for _, market := range markets {
		sums := shares[market.ID]
		exposure := decimal.Max(orZero(sums.YesShares), orZero(sums.NoShares))
		if exposure.IsZero() {
			continue
		}
		report.Total = report.Total.Add(exposure)
		report.Markets = append(report.Markets, MarketExposure{
			MarketID: market.ID,
			Title:    market.Title,
			Status:   market.Status,
			Exposure: exposure,
		})
	}

	sort.Slice(report.Markets, func(i, j int) bool {
		return report.Markets[i].Exposure.GreaterThan(report.Markets[j].Exposure)
	})
	if topN > 0 && len(report.Markets) > topN {
		report.Markets = report.Markets[:topN]
	}
	return report, nil
}

func (s *service) TopFeeContributors(ctx context.Context, topN int) ([]FeeContributor, error) {
	if topN <= 0 {
		topN = 10
	}

	var rows []FeeContributor
	if err := s.db.WithContext(ctx).
		Table("trades").
		Select(`trades.user_id,
			users.username,
			users.email,
			SUM(trades.fee) AS total_fees,
			SUM(trades.cost) AS total_cost,
			COUNT(*) AS trade_count`).
		Joins("JOIN users ON users.id = trades.user_id").
		Group("trades.user_id, users.username, users.email").
		Order("total_fees DESC").
		Limit(topN).
		Scan(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate contributors")
	}
	return rows, nil
}

func (s *service) Overview(ctx context.Context, now time.Time) (Overview, error) {
	var out Overview

	fees, err := s.FeeSummary(ctx, now)
	if err != nil {
		return out, err
	}
	pnl, err := s.MarketPnL(ctx)
	if err != nil {
		return out, err
	}

	out.Fees = fees
	out.ResolvedPnL = pnl.ResolvedPnL
	out.TotalProfit = fees.Total.Add(pnl.ResolvedPnL)
	return out, nil
}

func orZero(value decimal.NullDecimal) decimal.Decimal {
	if !value.Valid {
		return decimal.Zero
	}
	return value.Decimal
}
