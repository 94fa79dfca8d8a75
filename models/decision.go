package models

// Action is the structured signal derived from the final decision text.
type Action string

const (
	ActionBuy     Action = "BUY"
	ActionSell    Action = "SELL"
	ActionHold    Action = "HOLD"
	ActionUnknown Action = "UNKNOWN"
)

// RunStatus is the terminal status of a run.
type RunStatus string

const (
	StatusRunning RunStatus = "running"
	StatusDone    RunStatus = "done"
	StatusFailed  RunStatus = "failed"
	StatusStopped RunStatus = "stopped"
)

// Terminal reports whether the status ends a run.
func (s RunStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusStopped
}

// TradingDecision is the persisted summary of one run.
type TradingDecision struct {
	Symbol       string  `json:"symbol"`
	Date         string  `json:"date"`
	Action       Action  `json:"action"`
	Reasoning    string  `json:"reasoning"`
	EntryPrice   float64 `json:"entry_price,omitempty"`
	StopLoss     float64 `json:"stop_loss,omitempty"`
	TakeProfit   float64 `json:"take_profit,omitempty"`
	PositionSize float64 `json:"position_size,omitempty"`
}
