package model

// Decision is the outcome of one agent evaluation in a round.
// Keep these values stable; they are written to CSV exports and broadcast payloads.
type Decision string

const (
	DecisionHold Decision = "HOLD"
	DecisionBuy  Decision = "BUY"
	DecisionSell Decision = "SELL"
)

// IsTrade reports whether the decision changes a position.
func (d Decision) IsTrade() bool {
	return d == DecisionBuy || d == DecisionSell
}
