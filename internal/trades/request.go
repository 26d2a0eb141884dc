package trades

import (
	"github.com/shopspring/decimal"

	"github.com/forecastlabs/openbook-backend/pkg/enums"
	pkgerrors "github.com/forecastlabs/openbook-backend/pkg/errors"
)

// Request is the tagged trade-request variant: exactly one of the three
// shapes reaches the executor, so the amount-vs-shares ambiguity of the wire
// format cannot survive past parsing.
type Request interface {
	isRequest()
}

// BuyByAmount spends a fixed amount of money on shares.
type BuyByAmount struct {
	Amount decimal.Decimal
}

// BuyByShares buys a fixed quantity of shares at market cost.
type BuyByShares struct {
	Shares decimal.Decimal
}

// SellByShares sells a fixed quantity of held shares.
type SellByShares struct {
	Shares decimal.Decimal
}

func (BuyByAmount) isRequest()  {}
func (BuyByShares) isRequest()  {}
func (SellByShares) isRequest() {}

// ParseRequest normalizes the wire shape {type, amount?, shares?} into the
// tagged variant, enforcing the exactly-one-of rule.
func ParseRequest(tradeType enums.TradeType, amount, shares *decimal.Decimal) (Request, error) {
	if !tradeType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTrade, "trade type must be buy or sell")
	}

	switch tradeType {
	case enums.TradeTypeSell:
		// Amount is ignored on sells; shares are mandatory.
		if shares == nil || shares.LessThanOrEqual(decimal.Zero) {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidTrade, "sell requires a positive share quantity")
		}
		return SellByShares{Shares: *shares}, nil
	default:
		if (amount == nil) == (shares == nil) {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidTrade, "supply exactly one of amount or shares")
		}
		if amount != nil {
			if amount.LessThanOrEqual(decimal.Zero) {
				return nil, pkgerrors.New(pkgerrors.CodeInvalidTrade, "amount must be positive")
			}
			return BuyByAmount{Amount: *amount}, nil
		}
		if shares.LessThanOrEqual(decimal.Zero) {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidTrade, "share quantity must be positive")
		}
		return BuyByShares{Shares: *shares}, nil
	}
}
