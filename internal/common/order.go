package common

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidSide = errors.New("invalid side")

type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	}
	return fmt.Sprintf("Side(%d)", int(s))
}

// ParseSide maps the wire spelling of a side onto its enum value.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidSide, s)
}

type OrderStatus int

const (
	// Resting orders sit in the book untouched.
	Resting OrderStatus = iota
	// PartiallyFilled orders sit in the book with a reduced remainder.
	PartiallyFilled
	// Filled orders are terminal and no longer in the book.
	Filled
)

func (s OrderStatus) String() string {
	switch s {
	case Resting:
		return "resting"
	case PartiallyFilled:
		return "partially_filled"
	case Filled:
		return "filled"
	}
	return fmt.Sprintf("OrderStatus(%d)", int(s))
}

// Order is a trade intent. Everything except Remaining is fixed at intake;
// Remaining is decremented by the match loop only.
type Order struct {
	ID        string          // Engine-assigned uuid
	UserID    string          // Opaque owner identifier
	Asset     string          // Symbol the order trades
	Side      Side            // Order side
	Price     decimal.Decimal // Limit price, strictly positive
	Remaining decimal.Decimal // Unfilled amount
	Original  decimal.Decimal // Amount requested at intake
	Sequence  uint64          // Per-asset arrival counter, time-priority tie-break
	Accepted  time.Time       // Time of arrival of order into the book
}

// Status derives the lifecycle state from the remaining amount.
func (o *Order) Status() OrderStatus {
	switch {
	case o.Remaining.IsZero():
		return Filled
	case o.Remaining.LessThan(o.Original):
		return PartiallyFilled
	}
	return Resting
}

func (o Order) String() string {
	return fmt.Sprintf("%s %s %s %s@%s (remaining %s, seq %d)",
		o.ID, o.UserID, o.Side, o.Original, o.Price, o.Remaining, o.Sequence)
}
