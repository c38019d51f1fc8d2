package risk

// Policy holds the account-level limits a trade must clear before the
// executor sees it.
type Policy struct {
	// Risk limits
	DefaultRiskPct float64 // 0.005
	MaxRiskPct     float64 // 0.01

	// Exposure limits
	MaxOpenTrades int // 3

	// Trade constraints
	MinRR float64 // 1.5
}

// TradeIntent is the planned trade under evaluation.
type TradeIntent struct {
	Symbol   string
	Quantity float64

	Entry      float64
	Stop       float64
	TakeProfit float64
}

// AccountSnapshot is the account state at evaluation time.
type AccountSnapshot struct {
	Equity     float64
	OpenTrades int
}
