package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/forecastlabs/openbook-backend/api/responses"
	"github.com/forecastlabs/openbook-backend/api/validators"
	"github.com/forecastlabs/openbook-backend/internal/analytics"
	"github.com/forecastlabs/openbook-backend/internal/trades"
	"github.com/forecastlabs/openbook-backend/internal/wallet"
	"github.com/forecastlabs/openbook-backend/pkg/logger"
)

func topNFromQuery(r *http.Request, fallback int) int {
	if raw := r.URL.Query().Get("top"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// AdminAnalyticsOverview returns the headline figures.
func AdminAnalyticsOverview(svc analytics.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.Overview(r.Context(), time.Now())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminAnalyticsFees returns the windowed fee totals.
func AdminAnalyticsFees(svc analytics.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.FeeSummary(r.Context(), time.Now())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminAnalyticsMarketsPnL returns the per-market reconciliation.
func AdminAnalyticsMarketsPnL(svc analytics.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.MarketPnL(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminAnalyticsExposure returns the worst-case payout obligations.
func AdminAnalyticsExposure(svc analytics.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.UnsettledExposure(r.Context(), topNFromQuery(r, 10))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminAnalyticsContributors returns the top fee payers.
func AdminAnalyticsContributors(svc analytics.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.TopFeeContributors(r.Context(), topNFromQuery(r, 10))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminTradesList pages through every trade on the platform.
func AdminTradesList(svc trades.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := validators.PaginationFromQuery(r)
		result, err := svc.ListAll(r.Context(), page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminWalletsList pages through every wallet.
func AdminWalletsList(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := validators.PaginationFromQuery(r)
		result, err := svc.ListAll(r.Context(), page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
