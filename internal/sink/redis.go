package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"skoll/internal/common"
)

const publishTimeout = 2 * time.Second

// StreamReporter appends events to a Redis Stream as JSON payloads, one
// XADD per event, so downstream consumers observe the engine's per-asset
// event order.
type StreamReporter struct {
	ctx    context.Context
	client *redis.Client
	stream string
}

// streamEvent is the wire envelope for one stream entry.
type streamEvent struct {
	Type string `json:"type"` // trade_executed / order_accepted
	Data any    `json:"data"`
}

func NewStreamReporter(ctx context.Context, client *redis.Client, stream string) *StreamReporter {
	return &StreamReporter{
		ctx:    ctx,
		client: client,
		stream: stream,
	}
}

func (r *StreamReporter) ReportTrade(trade common.Trade) error {
	return r.publish(streamEvent{Type: "trade_executed", Data: trade})
}

func (r *StreamReporter) ReportAck(ack common.OrderAck) error {
	return r.publish(streamEvent{Type: "order_accepted", Data: ack})
}

func (r *StreamReporter) publish(ev streamEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(r.ctx, publishTimeout)
	defer cancel()
	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"data": string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", r.stream, err)
	}
	return nil
}
