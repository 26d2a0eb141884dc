// Package pricing implements the Hanson Logarithmic Market Scoring Rule
// (LMSR) used to price every market on the exchange.
//
// The engine is a pure value type: market state (qYes, qNo, b) is passed per
// call and never stored. Monetary inputs and outputs are shopspring/decimal;
// the transcendental math runs in float64 using the log-sum-exp trick and is
// rounded back to the ledger scale on the way out.
package pricing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/forecastlabs/openbook-backend/pkg/enums"
	pkgerrors "github.com/forecastlabs/openbook-backend/pkg/errors"
)

// Scale is the number of fractional digits for every observable output.
const Scale int32 = 6

const (
	// bisection parameters for inverting cost -> shares.
	bisectionBracketFactor = 10
	bisectionMaxIterations = 100
	bisectionTolerance     = 1e-4
)

// Engine quotes trades against the LMSR cost function.
type Engine struct {
	feeRate decimal.Decimal
}

// NewEngine builds an engine with the platform fee rate, e.g. 0.02.
func NewEngine(feeRate decimal.Decimal) (Engine, error) {
	if feeRate.IsNegative() || feeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Engine{}, fmt.Errorf("fee rate must be in [0, 1), got %s", feeRate)
	}
	return Engine{feeRate: feeRate}, nil
}

// FeeRate returns the configured fee rate.
func (e Engine) FeeRate() decimal.Decimal {
	return e.feeRate
}

// Quote is the priced outcome of a prospective trade. Total is the money the
// trader pays (buy, fee included) or receives (sell, fee deducted).
type Quote struct {
	Shares      decimal.Decimal `json:"shares"`
	Raw         decimal.Decimal `json:"raw"`
	Fee         decimal.Decimal `json:"fee"`
	Total       decimal.Decimal `json:"total"`
	AvgPrice    decimal.Decimal `json:"avg_price"`
	NewQYes     decimal.Decimal `json:"new_q_yes"`
	NewQNo      decimal.Decimal `json:"new_q_no"`
	PriceImpact decimal.Decimal `json:"price_impact"`
}

// logSumExp computes ln(Σ exp(x_i)) without overflowing float64:
// LSE(x) = max(x) + ln(Σ exp(x_i - max(x))).
func logSumExp(xs ...float64) float64 {
	maxVal := xs[0]
	for _, x := range xs[1:] {
		if x > maxVal {
			maxVal = x
		}
	}
	if math.IsInf(maxVal, -1) {
		return math.Inf(-1)
	}
	var sum float64
	for _, x := range xs {
		sum += math.Exp(x - maxVal)
	}
	return maxVal + math.Log(sum)
}

func costFloat(qYes, qNo, b float64) float64 {
	return b * logSumExp(qYes/b, qNo/b)
}

func priceYesFloat(qYes, qNo, b float64) float64 {
	maxVal := math.Max(qYes/b, qNo/b)
	expYes := math.Exp(qYes/b - maxVal)
	expNo := math.Exp(qNo/b - maxVal)
	return expYes / (expYes + expNo)
}

// Cost evaluates the LMSR cost function C(q) = b * ln(e^(qYes/b) + e^(qNo/b)).
func Cost(qYes, qNo, b decimal.Decimal) decimal.Decimal {
	c := costFloat(qYes.InexactFloat64(), qNo.InexactFloat64(), b.InexactFloat64())
	return decimal.NewFromFloat(c).Round(Scale)
}

// PriceYes returns the instantaneous YES probability.
func PriceYes(qYes, qNo, b decimal.Decimal) decimal.Decimal {
	p := priceYesFloat(qYes.InexactFloat64(), qNo.InexactFloat64(), b.InexactFloat64())
	return decimal.NewFromFloat(p).Round(Scale)
}

// PriceNo returns the instantaneous NO probability, 1 - PriceYes.
func PriceNo(qYes, qNo, b decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(1).Sub(PriceYes(qYes, qNo, b))
}

// Price returns the instantaneous probability of the given side.
func Price(side enums.TradeSide, qYes, qNo, b decimal.Decimal) decimal.Decimal {
	if side == enums.TradeSideNo {
		return PriceNo(qYes, qNo, b)
	}
	return PriceYes(qYes, qNo, b)
}

func sidePriceFloat(side enums.TradeSide, qYes, qNo, b float64) float64 {
	p := priceYesFloat(qYes, qNo, b)
	if side == enums.TradeSideNo {
		return 1 - p
	}
	return p
}

// QuoteBuyShares prices a purchase of delta shares on the given side.
// raw = C(after) - C(before); fee = raw * feeRate; total = raw + fee.
func (e Engine) QuoteBuyShares(side enums.TradeSide, delta, qYes, qNo, b decimal.Decimal) (Quote, error) {
	if err := validateState(qYes, qNo, b); err != nil {
		return Quote{}, err
	}
	if delta.LessThanOrEqual(decimal.Zero) {
		return Quote{}, pkgerrors.New(pkgerrors.CodeInvalidTrade, "share quantity must be positive")
	}

	qy, qn, bf := qYes.InexactFloat64(), qNo.InexactFloat64(), b.InexactFloat64()
	df := delta.InexactFloat64()

	newQy, newQn := qy, qn
	if side == enums.TradeSideNo {
		newQn += df
	} else {
		newQy += df
	}

	raw := costFloat(newQy, newQn, bf) - costFloat(qy, qn, bf)
	if raw <= 0 || math.IsNaN(raw) || math.IsInf(raw, 0) {
		return Quote{}, pkgerrors.New(pkgerrors.CodeInvalidTrade, "trade cost is not representable")
	}

	rawD := decimal.NewFromFloat(raw).Round(Scale)
	fee := rawD.Mul(e.feeRate).Round(Scale)
	total := rawD.Add(fee)

	return Quote{
		Shares:      delta.Round(Scale),
		Raw:         rawD,
		Fee:         fee,
		Total:       total,
		AvgPrice:    total.Div(delta).Round(Scale),
		NewQYes:     decimal.NewFromFloat(newQy).Round(Scale),
		NewQNo:      decimal.NewFromFloat(newQn).Round(Scale),
		PriceImpact: priceImpact(side, qy, qn, newQy, newQn, bf),
	}, nil
}

// QuoteSellShares prices a sale of delta shares on the given side.
// raw = C(before) - C(after); fee = raw * feeRate; total = raw - fee.
// Selling more shares than the side carries would take the pool negative and
// is rejected.
func (e Engine) QuoteSellShares(side enums.TradeSide, delta, qYes, qNo, b decimal.Decimal) (Quote, error) {
	if err := validateState(qYes, qNo, b); err != nil {
		return Quote{}, err
	}
	if delta.LessThanOrEqual(decimal.Zero) {
		return Quote{}, pkgerrors.New(pkgerrors.CodeInvalidTrade, "share quantity must be positive")
	}

	pool := qYes
	if side == enums.TradeSideNo {
		pool = qNo
	}
	if delta.GreaterThan(pool) {
		return Quote{}, pkgerrors.New(pkgerrors.CodeInvalidTrade, "sell exceeds outstanding shares on side")
	}

	qy, qn, bf := qYes.InexactFloat64(), qNo.InexactFloat64(), b.InexactFloat64()
	df := delta.InexactFloat64()

	newQy, newQn := qy, qn
	if side == enums.TradeSideNo {
		newQn -= df
	} else {
		newQy -= df
	}

	raw := costFloat(qy, qn, bf) - costFloat(newQy, newQn, bf)
	if raw <= 0 || math.IsNaN(raw) || math.IsInf(raw, 0) {
		return Quote{}, pkgerrors.New(pkgerrors.CodeInvalidTrade, "sell return must be positive")
	}

	rawD := decimal.NewFromFloat(raw).Round(Scale)
	fee := rawD.Mul(e.feeRate).Round(Scale)
	net := rawD.Sub(fee)
	if net.LessThanOrEqual(decimal.Zero) {
		return Quote{}, pkgerrors.New(pkgerrors.CodeInvalidTrade, "sell return must be positive")
	}

	return Quote{
		Shares:      delta.Round(Scale),
		Raw:         rawD,
		Fee:         fee,
		Total:       net,
		AvgPrice:    net.Div(delta).Round(Scale),
		NewQYes:     decimal.NewFromFloat(newQy).Round(Scale),
		NewQNo:      decimal.NewFromFloat(newQn).Round(Scale),
		PriceImpact: priceImpact(side, qy, qn, newQy, newQn, bf),
	}, nil
}

// QuoteBuyAmount inverts the buy cost function: it finds the share quantity
// whose fee-inclusive cost is the given amount, by bisecting the raw cost
// over [0, amount*10]. Failure to converge is surfaced as an invalid trade
// rather than silently returning the midpoint.
func (e Engine) QuoteBuyAmount(side enums.TradeSide, amount, qYes, qNo, b decimal.Decimal) (Quote, error) {
	if err := validateState(qYes, qNo, b); err != nil {
		return Quote{}, err
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return Quote{}, pkgerrors.New(pkgerrors.CodeInvalidTrade, "amount must be positive")
	}

	qy, qn, bf := qYes.InexactFloat64(), qNo.InexactFloat64(), b.InexactFloat64()

	// The trader's amount covers raw cost plus the proportional fee.
	target := amount.Div(decimal.NewFromInt(1).Add(e.feeRate)).InexactFloat64()

	rawCost := func(delta float64) float64 {
		if side == enums.TradeSideNo {
			return costFloat(qy, qn+delta, bf) - costFloat(qy, qn, bf)
		}
		return costFloat(qy+delta, qn, bf) - costFloat(qy, qn, bf)
	}

	lo := 0.0
	hi := amount.InexactFloat64() * bisectionBracketFactor
	if rawCost(hi) < target {
		return Quote{}, pkgerrors.New(pkgerrors.CodeInvalidTrade, "amount cannot be priced within the share bracket on this market")
	}

	mid := hi / 2
	for i := 0; i < bisectionMaxIterations; i++ {
		mid = (lo + hi) / 2
		c := rawCost(mid)
		if math.Abs(c-target) < bisectionTolerance {
			break
		}
		if c < target {
			lo = mid
		} else {
			hi = mid
		}
	}
	if math.Abs(rawCost(mid)-target) >= bisectionTolerance {
		return Quote{}, pkgerrors.New(pkgerrors.CodeInvalidTrade, "amount inversion did not converge")
	}

	delta := decimal.NewFromFloat(mid).Round(Scale)
	if delta.LessThanOrEqual(decimal.Zero) {
		return Quote{}, pkgerrors.New(pkgerrors.CodeInvalidTrade, "amount buys no shares")
	}

	return e.QuoteBuyShares(side, delta, qYes, qNo, b)
}

func priceImpact(side enums.TradeSide, qy, qn, newQy, newQn, b float64) decimal.Decimal {
	oldP := sidePriceFloat(side, qy, qn, b)
	newP := sidePriceFloat(side, newQy, newQn, b)
	if oldP == 0 {
		return decimal.Zero
	}
	impact := math.Abs(newP-oldP) / oldP
	return decimal.NewFromFloat(impact).Round(Scale)
}

func validateState(qYes, qNo, b decimal.Decimal) error {
	if b.LessThanOrEqual(decimal.Zero) {
		return pkgerrors.New(pkgerrors.CodeInvalidTrade, "liquidity parameter must be positive")
	}
	if qYes.IsNegative() || qNo.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeInvalidTrade, "share quantities must be non-negative")
	}
	return nil
}
