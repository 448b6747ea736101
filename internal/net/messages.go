package net

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"skoll/internal/common"
)

var ErrMalformedRequest = errors.New("malformed request")

// OrderRequest is one line of intake: a JSON order intent. Identity and
// framing concerns stay out here; the engine only ever sees parsed values.
type OrderRequest struct {
	UserID string          `json:"user_id"`
	Asset  string          `json:"asset"`
	Side   string          `json:"side"`
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
}

// parseOrderRequest decodes and shape-checks one intake line. Price and
// amount bounds are the engine's call, not ours; only structural problems
// are rejected here.
func parseOrderRequest(line []byte) (OrderRequest, error) {
	var req OrderRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return OrderRequest{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if req.UserID == "" {
		return OrderRequest{}, fmt.Errorf("%w: missing user_id", ErrMalformedRequest)
	}
	if req.Asset == "" {
		return OrderRequest{}, fmt.Errorf("%w: missing asset", ErrMalformedRequest)
	}
	return req, nil
}

// SideValue resolves the request's side spelling.
func (r OrderRequest) SideValue() (common.Side, error) {
	return common.ParseSide(r.Side)
}

// eventMessage is the envelope broadcast back to connected sessions.
type eventMessage struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

func encodeTrade(trade common.Trade) ([]byte, error) {
	return encodeMessage(eventMessage{Type: "trade_executed", Data: trade})
}

func encodeAck(ack common.OrderAck) ([]byte, error) {
	return encodeMessage(eventMessage{Type: "order_accepted", Data: ack})
}

func encodeError(err error) ([]byte, error) {
	return encodeMessage(eventMessage{Type: "error", Error: err.Error()})
}

// encodeMessage renders one newline-terminated wire frame.
func encodeMessage(msg eventMessage) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return append(payload, '\n'), nil
}
