package net

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skoll/internal/common"
)

// recordingSubmitter captures what the shell hands to the engine.
type recordingSubmitter struct {
	userID string
	asset  string
	side   common.Side
	price  decimal.Decimal
	amount decimal.Decimal
	err    error
	calls  int
}

func (r *recordingSubmitter) SubmitOrder(userID, asset string, side common.Side, price, amount decimal.Decimal) (common.OrderAck, error) {
	r.calls++
	r.userID, r.asset, r.side, r.price, r.amount = userID, asset, side, price, amount
	if r.err != nil {
		return common.OrderAck{}, r.err
	}
	return common.OrderAck{OrderID: "order-1", UserID: userID, Asset: asset}, nil
}

func TestHandleRequest_SubmitsParsedOrder(t *testing.T) {
	sub := &recordingSubmitter{}
	srv := New("127.0.0.1", 0, 1, sub)

	err := srv.handleRequest([]byte(`{"user_id":"alice","asset":"BTC","side":"sell","price":"100.5","amount":"2"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, sub.calls)
	assert.Equal(t, "alice", sub.userID)
	assert.Equal(t, "BTC", sub.asset)
	assert.Equal(t, common.Sell, sub.side)
	assert.True(t, decimal.RequireFromString("100.5").Equal(sub.price))
	assert.True(t, decimal.RequireFromString("2").Equal(sub.amount))
}

func TestHandleRequest_RejectsBeforeSubmit(t *testing.T) {
	sub := &recordingSubmitter{}
	srv := New("127.0.0.1", 0, 1, sub)

	err := srv.handleRequest([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedRequest)

	err = srv.handleRequest([]byte(`{"user_id":"alice","asset":"BTC","side":"hold","price":"1","amount":"1"}`))
	assert.ErrorIs(t, err, common.ErrInvalidSide)

	assert.Zero(t, sub.calls, "invalid requests never reach the engine")
}
