package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"skoll/internal/common"
	"skoll/internal/metrics"
)

var ErrEngineClosed = errors.New("engine closed")

// Reporter receives the engine's output events. Implementations must not
// reach back into the engine; every event is a detached copy.
type Reporter interface {
	ReportTrade(trade common.Trade) error
	ReportAck(ack common.OrderAck) error
}

// event is one entry of a shard's ordered output stream. Exactly one of the
// two fields is set.
type event struct {
	trade *common.Trade
	ack   *common.OrderAck
}

// shard is one mutual-exclusion domain: a single asset's book, its sequence
// counter and its ordered event stream. Orders for different assets land on
// different shards and never contend.
type shard struct {
	mu     sync.Mutex
	seq    uint64
	book   *OrderBook
	events chan event
	closed bool
}

// Engine routes orders to per-asset books. Books are created lazily on the
// first order for an asset; an unknown asset is not an error.
type Engine struct {
	mu     sync.RWMutex
	shards map[string]*shard
	closed bool

	reporter Reporter
	wg       sync.WaitGroup
}

const eventBufferSize = 4096

func New() *Engine {
	return &Engine{
		shards: make(map[string]*shard),
	}
}

// SetReporter installs the downstream event sink. It must be called before
// the first SubmitOrder.
func (e *Engine) SetReporter(r Reporter) {
	e.reporter = r
}

// SubmitOrder assigns an id and a per-asset sequence number to the intent,
// runs it through the asset's book and hands the resulting trades plus one
// acknowledgment to the reporter, in that order. The ack mirrors the
// order's state once matching settled. Invalid orders are rejected before
// any state changes and produce no events.
func (e *Engine) SubmitOrder(userID, asset string, side common.Side, price, amount decimal.Decimal) (common.OrderAck, error) {
	start := time.Now()

	// Validate up front so rejections never burn a sequence number.
	if price.Sign() <= 0 || amount.Sign() <= 0 || (side != common.Buy && side != common.Sell) {
		metrics.IncOrdersRejected()
		return common.OrderAck{}, fmt.Errorf("%w: side %v, %s@%s", ErrInvalidOrder, side, amount, price)
	}

	sh, err := e.shard(asset)
	if err != nil {
		return common.OrderAck{}, err
	}

	sh.mu.Lock()
	if sh.closed {
		sh.mu.Unlock()
		return common.OrderAck{}, ErrEngineClosed
	}

	sh.seq++
	order := &common.Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		Asset:     asset,
		Side:      side,
		Price:     price,
		Remaining: amount,
		Original:  amount,
		Sequence:  sh.seq,
	}

	trades, err := sh.book.AddOrder(order)
	if err != nil {
		// The book rejected what passed the cheap checks above; give the
		// sequence number back so the counter stays gapless.
		sh.seq--
		sh.mu.Unlock()
		metrics.IncOrdersRejected()
		return common.OrderAck{}, err
	}

	ack := common.NewOrderAck(order)
	nBids, nAsks := sh.book.Counts()

	// Queue events while still holding the shard lock. The buffered channel
	// is a memory handoff, not I/O: it pins the per-asset emission order to
	// the lock acquisition order without coupling matching to a slow
	// downstream consumer.
	for i := range trades {
		sh.events <- event{trade: &trades[i]}
	}
	sh.events <- event{ack: &ack}
	sh.mu.Unlock()

	metrics.IncOrdersAccepted(asset)
	metrics.AddTradesMatched(asset, len(trades))
	metrics.SetBookDepth(asset, "bids", float64(nBids))
	metrics.SetBookDepth(asset, "asks", float64(nAsks))
	metrics.ObserveMatchLatency(time.Since(start))

	return ack, nil
}

// Depth snapshots up to limit levels per side of an asset's book. A depth
// request for an asset nobody traded yet reports an empty book.
func (e *Engine) Depth(asset string, limit int) (bids, asks []PriceAmount, err error) {
	sh, err := e.shard(asset)
	if err != nil {
		return nil, nil, err
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	bids, asks = sh.book.Depth(limit)
	return bids, asks, nil
}

// Assets lists the assets with a live book, in no particular order.
func (e *Engine) Assets() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	assets := make([]string, 0, len(e.shards))
	for asset := range e.shards {
		assets = append(assets, asset)
	}
	return assets
}

// Close drains and stops every shard's event forwarder. Submissions racing
// with Close fail with ErrEngineClosed.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	for _, sh := range e.shards {
		sh.mu.Lock()
		if !sh.closed {
			sh.closed = true
			close(sh.events)
		}
		sh.mu.Unlock()
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// shard fetches the asset's shard, creating book, sequence counter and
// event forwarder on first use.
func (e *Engine) shard(asset string) (*shard, error) {
	e.mu.RLock()
	sh, ok := e.shards[asset]
	e.mu.RUnlock()
	if ok {
		return sh, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}
	// Double check; another submitter may have won the race.
	if sh, ok = e.shards[asset]; ok {
		return sh, nil
	}

	sh = &shard{
		book:   NewOrderBook(asset),
		events: make(chan event, eventBufferSize),
	}
	e.shards[asset] = sh
	e.wg.Add(1)
	go e.forward(asset, sh)

	log.Info().Str("asset", asset).Msg("order book created")
	return sh, nil
}

// forward delivers one shard's events to the reporter, preserving the order
// they were queued in. Reporter failures are logged and skipped; the engine
// never blocks matching on a broken sink.
func (e *Engine) forward(asset string, sh *shard) {
	defer e.wg.Done()
	for ev := range sh.events {
		var err error
		switch {
		case ev.trade != nil:
			err = e.reporter.ReportTrade(*ev.trade)
		case ev.ack != nil:
			err = e.reporter.ReportAck(*ev.ack)
		}
		if err != nil {
			log.Error().Err(err).Str("asset", asset).Msg("event report failed")
		}
	}
}
