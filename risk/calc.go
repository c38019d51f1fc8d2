package risk

import "math"

// Inputs for fixed-fractional position sizing on a linear futures
// contract (quantity denominated in base units, P/L in quote currency).
type Inputs struct {
	Equity     float64 // account equity in quote currency
	RiskPct    float64 // e.g. 0.005
	EntryPrice float64
	StopPrice  float64
}

type Result struct {
	Quantity     float64 // base units, full precision (round at submission)
	StopDistance float64 // quote currency per base unit
	RiskAmount   float64 // quote currency at risk if the stop fills
}

// Calculate sizes a position so a stop-out loses Equity*RiskPct. The
// result is full precision; the exchange client rounds at submission.
func Calculate(in Inputs) Result {
	dist := math.Abs(in.EntryPrice - in.StopPrice)
	riskAmt := in.Equity * in.RiskPct
	if dist == 0 {
		return Result{StopDistance: 0, RiskAmount: riskAmt}
	}
	return Result{
		Quantity:     riskAmt / dist,
		StopDistance: dist,
		RiskAmount:   riskAmt,
	}
}

// RR returns the reward:risk ratio of a planned trade.
func RR(entry, stop, takeProfit float64) float64 {
	risk := math.Abs(entry - stop)
	reward := math.Abs(takeProfit - entry)
	if risk == 0 {
		return 0
	}
	return reward / risk
}

// PlannedRisk computes the absolute quote-currency loss if the stop is
// hit for a position of qty base units.
func PlannedRisk(qty, entry, stop float64) float64 {
	return qty * math.Abs(entry-stop)
}

// RiskPct expresses a planned risk as a fraction of equity.
func RiskPct(plannedRisk, equity float64) float64 {
	if equity <= 0 {
		return math.Inf(1)
	}
	return plannedRisk / equity
}
