package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/forecastlabs/openbook-backend/api/responses"
	"github.com/forecastlabs/openbook-backend/api/validators"
	"github.com/forecastlabs/openbook-backend/internal/wallet"
	"github.com/forecastlabs/openbook-backend/pkg/logger"
)

type adminCreditRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Description string          `json:"description,omitempty"`
}

// AdminWalletsCredit credits a user's wallet out of band.
func AdminWalletsCredit(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := pathID(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body adminCreditRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.AdminCredit(r.Context(), userID, body.Amount, body.Description)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminWalletsAudit replays a wallet's ledger chain.
func AdminWalletsAudit(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := pathID(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.Audit(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
