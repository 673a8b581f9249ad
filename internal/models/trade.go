package models

// TradeSide indicates trade direction
type TradeSide string

const (
	TradeSideLong  TradeSide = "long"
	TradeSideShort TradeSide = "short"
)

// TradeOutcome is one realized trade produced by a strategy evaluation.
// PnL is in account currency. EntryIndex and ExitIndex refer to bar
// positions in the evaluated window; outcomes are ordered by exit.
type TradeOutcome struct {
	PnL         float64   `json:"pnl"`
	EntryIndex  int       `json:"entry_index"`
	ExitIndex   int       `json:"exit_index"`
	Side        TradeSide `json:"side"`
	HoldingBars int       `json:"holding_bars"`
}

// PnLs extracts the profit/loss series from a trade list
func PnLs(trades []TradeOutcome) []float64 {
	pnls := make([]float64, len(trades))
	for i, t := range trades {
		pnls[i] = t.PnL
	}
	return pnls
}

// AverageHoldingBars returns the mean holding period in bars, with a
// floor of minBars. Trades without holding data fall back to the floor.
func AverageHoldingBars(trades []TradeOutcome, minBars int) int {
	if len(trades) == 0 {
		return minBars
	}
	total := 0
	counted := 0
	for _, t := range trades {
		bars := t.HoldingBars
		if bars <= 0 && t.ExitIndex > t.EntryIndex {
			bars = t.ExitIndex - t.EntryIndex
		}
		if bars > 0 {
			total += bars
			counted++
		}
	}
	if counted == 0 {
		return minBars
	}
	avg := total / counted
	if avg < minBars {
		return minBars
	}
	return avg
}
