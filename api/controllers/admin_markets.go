package controllers

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/forecastlabs/openbook-backend/api/responses"
	"github.com/forecastlabs/openbook-backend/api/validators"
	"github.com/forecastlabs/openbook-backend/internal/markets"
	"github.com/forecastlabs/openbook-backend/pkg/enums"
	pkgerrors "github.com/forecastlabs/openbook-backend/pkg/errors"
	"github.com/forecastlabs/openbook-backend/pkg/logger"
)

type createMarketRequest struct {
	Title            string           `json:"title" validate:"required,max=200"`
	Description      string           `json:"description,omitempty"`
	Category         string           `json:"category,omitempty"`
	ImageURL         string           `json:"image_url,omitempty"`
	ResolutionSource string           `json:"resolution_source,omitempty"`
	Liquidity        *decimal.Decimal `json:"liquidity,omitempty"`
	StartTime        time.Time        `json:"start_time" validate:"required"`
	EndTime          time.Time        `json:"end_time" validate:"required"`
}

type updateMarketRequest struct {
	Title            *string    `json:"title,omitempty"`
	Description      *string    `json:"description,omitempty"`
	Category         *string    `json:"category,omitempty"`
	ImageURL         *string    `json:"image_url,omitempty"`
	ResolutionSource *string    `json:"resolution_source,omitempty"`
	StartTime        *time.Time `json:"start_time,omitempty"`
	EndTime          *time.Time `json:"end_time,omitempty"`
}

type transitionRequest struct {
	Status string `json:"status" validate:"required"`
}

type resolveRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=yes no"`
}

// AdminMarketsCreate creates a draft market.
func AdminMarketsCreate(svc markets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		creatorID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body createMarketRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		market, err := svc.Create(r.Context(), markets.CreateInput{
			Title:            body.Title,
			Description:      body.Description,
			Category:         body.Category,
			ImageURL:         body.ImageURL,
			ResolutionSource: body.ResolutionSource,
			Liquidity:        body.Liquidity,
			StartTime:        body.StartTime,
			EndTime:          body.EndTime,
			CreatorID:        creatorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, market)
	}
}

// AdminMarketsUpdate edits a market's descriptive fields.
func AdminMarketsUpdate(svc markets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "marketId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateMarketRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		market, err := svc.Update(r.Context(), id, markets.UpdateInput{
			Title:            body.Title,
			Description:      body.Description,
			Category:         body.Category,
			ImageURL:         body.ImageURL,
			ResolutionSource: body.ResolutionSource,
			StartTime:        body.StartTime,
			EndTime:          body.EndTime,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, market)
	}
}

// AdminMarketsTransition applies a lifecycle move.
func AdminMarketsTransition(svc markets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "marketId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body transitionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseMarketStatus(body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, err.Error()))
			return
		}
		market, err := svc.Transition(r.Context(), id, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, market)
	}
}

// AdminMarketsResolve resolves a market and settles winning positions.
func AdminMarketsResolve(svc markets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "marketId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body resolveRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		outcome, err := enums.ParseOutcome(body.Outcome)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, err.Error()))
			return
		}
		market, settled, err := svc.Resolve(r.Context(), id, outcome)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"market":            market,
			"settled_positions": settled,
		})
	}
}
