package common

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade accounts for the two parties who matched. All fields are copies;
// a trade never holds a reference back into book state.
type Trade struct {
	Asset       string          `json:"asset"`
	Buyer       string          `json:"buyer"`
	Seller      string          `json:"seller"`
	BuyOrderID  string          `json:"buy_order_id"`
	SellOrderID string          `json:"sell_order_id"`
	Price       decimal.Decimal `json:"price"`
	Amount      decimal.Decimal `json:"matched_amount"`
	Timestamp   time.Time       `json:"timestamp"`
}

// OrderAck acknowledges an accepted order. It trails any trades the order
// produced on entry.
type OrderAck struct {
	OrderID   string          `json:"order_id"`
	UserID    string          `json:"user_id"`
	Asset     string          `json:"asset"`
	Side      Side            `json:"-"`
	SideName  string          `json:"side"`
	Sequence  uint64          `json:"sequence"`
	Status    OrderStatus     `json:"-"`
	State     string          `json:"status"`
	Remaining decimal.Decimal `json:"remaining_amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewOrderAck copies the terminal state of an order into an ack value.
func NewOrderAck(o *Order) OrderAck {
	status := o.Status()
	return OrderAck{
		OrderID:   o.ID,
		UserID:    o.UserID,
		Asset:     o.Asset,
		Side:      o.Side,
		SideName:  o.Side.String(),
		Sequence:  o.Sequence,
		Status:    status,
		State:     status.String(),
		Remaining: o.Remaining,
		Timestamp: time.Now(),
	}
}
