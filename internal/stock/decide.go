package stock

import "math"

// Action is the correction applied to a cart line after a stock reading.
type Action string

const (
	ActionUnchanged Action = "unchanged"
	ActionClamp     Action = "clamp"
	ActionRemove    Action = "remove"
)

// Decision describes how a line quantity moves for a given stock level.
type Decision struct {
	Action Action  `json:"action"`
	From   float64 `json:"from"`
	To     float64 `json:"to"`
}

// Decide removes lines without stock, clamps lines above the available stock
// and leaves the rest alone.
func Decide(lineQty float64, stock int) Decision {
	if math.IsNaN(lineQty) || math.IsInf(lineQty, 0) {
		lineQty = 0
	}
	switch {
	case stock <= 0:
		return Decision{Action: ActionRemove, From: lineQty, To: 0}
	case lineQty > float64(stock):
		return Decision{Action: ActionClamp, From: lineQty, To: float64(stock)}
	default:
		return Decision{Action: ActionUnchanged, From: lineQty, To: lineQty}
	}
}
