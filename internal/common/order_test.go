package common

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSide(t *testing.T) {
	for spelling, want := range map[string]Side{
		"buy":  Buy,
		"BUY":  Buy,
		"sell": Sell,
		"Sell": Sell,
	} {
		side, err := ParseSide(spelling)
		require.NoError(t, err, spelling)
		assert.Equal(t, want, side, spelling)
	}

	_, err := ParseSide("hold")
	assert.ErrorIs(t, err, ErrInvalidSide)
}

func TestOrderStatus(t *testing.T) {
	o := &Order{
		Original:  decimal.NewFromInt(10),
		Remaining: decimal.NewFromInt(10),
	}
	assert.Equal(t, Resting, o.Status())

	o.Remaining = decimal.NewFromInt(4)
	assert.Equal(t, PartiallyFilled, o.Status())

	o.Remaining = decimal.Zero
	assert.Equal(t, Filled, o.Status())
}

func TestNewOrderAck(t *testing.T) {
	o := &Order{
		ID:        "order-1",
		UserID:    "alice",
		Asset:     "BTC",
		Side:      Sell,
		Price:     decimal.NewFromInt(10),
		Original:  decimal.NewFromInt(5),
		Remaining: decimal.NewFromInt(2),
		Sequence:  7,
	}
	ack := NewOrderAck(o)
	assert.Equal(t, "order-1", ack.OrderID)
	assert.Equal(t, "sell", ack.SideName)
	assert.Equal(t, uint64(7), ack.Sequence)
	assert.Equal(t, PartiallyFilled, ack.Status)
	assert.Equal(t, "partially_filled", ack.State)
	assert.True(t, decimal.NewFromInt(2).Equal(ack.Remaining))
	assert.False(t, ack.Timestamp.IsZero())
}
