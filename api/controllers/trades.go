package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forecastlabs/openbook-backend/api/responses"
	"github.com/forecastlabs/openbook-backend/api/validators"
	"github.com/forecastlabs/openbook-backend/internal/positions"
	"github.com/forecastlabs/openbook-backend/internal/trades"
	"github.com/forecastlabs/openbook-backend/pkg/enums"
	pkgerrors "github.com/forecastlabs/openbook-backend/pkg/errors"
	"github.com/forecastlabs/openbook-backend/pkg/logger"
)

type tradeRequest struct {
	MarketID uuid.UUID        `json:"market_id" validate:"required"`
	Type     string           `json:"type" validate:"required,oneof=buy sell"`
	Side     string           `json:"side" validate:"required,oneof=yes no"`
	Amount   *decimal.Decimal `json:"amount,omitempty"`
	Shares   *decimal.Decimal `json:"shares,omitempty"`
}

type quoteRequest struct {
	Type   string           `json:"type" validate:"required,oneof=buy sell"`
	Side   string           `json:"side" validate:"required,oneof=yes no"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Shares *decimal.Decimal `json:"shares,omitempty"`
}

func parseTrade(tradeType, side string, amount, shares *decimal.Decimal) (enums.TradeSide, trades.Request, error) {
	parsedType, err := enums.ParseTradeType(tradeType)
	if err != nil {
		return "", nil, pkgerrors.New(pkgerrors.CodeInvalidTrade, err.Error())
	}
	parsedSide, err := enums.ParseTradeSide(side)
	if err != nil {
		return "", nil, pkgerrors.New(pkgerrors.CodeInvalidTrade, err.Error())
	}
	req, err := trades.ParseRequest(parsedType, amount, shares)
	if err != nil {
		return "", nil, err
	}
	return parsedSide, req, nil
}

// TradesExecute runs a trade for the caller.
func TradesExecute(svc trades.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body tradeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		side, req, err := parseTrade(body.Type, body.Side, body.Amount, body.Shares)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		trade, err := svc.Execute(r.Context(), userID, body.MarketID, side, req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, trade)
	}
}

// TradesQuote prices a prospective trade without executing it.
func TradesQuote(svc trades.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		marketID, err := pathID(r, "marketId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body quoteRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		side, req, err := parseTrade(body.Type, body.Side, body.Amount, body.Shares)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := svc.Quote(r.Context(), marketID, side, req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}

// TradesListMine pages through the caller's trades.
func TradesListMine(svc trades.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page := validators.PaginationFromQuery(r)
		result, err := svc.ListByUser(r.Context(), userID, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// PositionsListMine pages through the caller's positions.
func PositionsListMine(store *positions.Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page := validators.PaginationFromQuery(r)
		result, err := store.ListByUser(r.Context(), userID, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
