package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"skoll/internal/common"
)

var ErrInvalidOrder = errors.New("invalid order")

// PriceLevel groups resting orders sharing a limit price. Orders within a
// level are kept in arrival order as they are push-back'd, which is what
// gives FIFO among equal prices.
type PriceLevel struct {
	Price  decimal.Decimal
	Orders []*common.Order
}

type PriceLevels = btree.BTreeG[*PriceLevel]

// OrderBook holds the two sides of a single asset's book. It performs no
// locking of its own; the owning engine serializes access per asset.
type OrderBook struct {
	asset string

	// Bids sorted best (highest) first, asks best (lowest) first.
	bids *PriceLevels
	asks *PriceLevels

	// Book keeping for depth reporting.
	nBids     uint64
	nAsks     uint64
	bidVolume decimal.Decimal
	askVolume decimal.Decimal
}

func NewOrderBook(asset string) *OrderBook {
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.GreaterThan(b.Price)
	})
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.LessThan(b.Price)
	})
	return &OrderBook{
		asset:     asset,
		bids:      bids,
		asks:      asks,
		bidVolume: decimal.Zero,
		askVolume: decimal.Zero,
	}
}

// AddOrder validates the order, rests it on its side and resolves any cross
// this creates. Returned trades are in execution order; the caller reads the
// inserted order's final state off the order itself. An invalid order leaves
// the book untouched and produces no trades.
//
// One incoming order may cross several resting orders over multiple price
// levels; the loop only stops once the best bid no longer reaches the best
// ask or one side empties.
func (book *OrderBook) AddOrder(order *common.Order) ([]common.Trade, error) {
	if order.Price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: price %s must be positive", ErrInvalidOrder, order.Price)
	}
	if order.Remaining.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount %s must be positive", ErrInvalidOrder, order.Remaining)
	}
	if order.Side != common.Buy && order.Side != common.Sell {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, order.Side)
	}

	order.Accepted = time.Now()
	book.insert(order)
	return book.match(), nil
}

// insert rests the order at its price level, creating the level if absent.
func (book *OrderBook) insert(order *common.Order) {
	levels := book.bids
	if order.Side == common.Sell {
		levels = book.asks
	}

	// The level comparator only looks at price, so a bare price is enough
	// for the lookup.
	level, ok := levels.GetMut(&PriceLevel{Price: order.Price})
	if ok {
		level.Orders = append(level.Orders, order)
	} else {
		levels.Set(&PriceLevel{
			Price:  order.Price,
			Orders: []*common.Order{order},
		})
	}

	if order.Side == common.Buy {
		book.nBids++
		book.bidVolume = book.bidVolume.Add(order.Remaining)
	} else {
		book.nAsks++
		book.askVolume = book.askVolume.Add(order.Remaining)
	}
}

// match consumes the top-of-book price levels while they cross (bid >= ask).
// Within crossing levels orders are walked in arrival order, so matching is
// strict price-time priority. The trade price is always the maker's price,
// the resting order being the one with the lower sequence number.
func (book *OrderBook) match() []common.Trade {
	var trades []common.Trade

	for {
		bestBid, bidOk := book.bids.MinMut()
		bestAsk, askOk := book.asks.MinMut()

		// If either side is empty, or prices don't cross, we are done.
		if !bidOk || !askOk || bestBid.Price.LessThan(bestAsk.Price) {
			break
		}

		// Move forward on the orders while both levels still have some.
		var aIdx, bIdx int
		for aIdx < len(bestAsk.Orders) && bIdx < len(bestBid.Orders) {
			ask := bestAsk.Orders[aIdx]
			bid := bestBid.Orders[bIdx]

			matched := decimal.Min(ask.Remaining, bid.Remaining)
			ask.Remaining = ask.Remaining.Sub(matched)
			bid.Remaining = bid.Remaining.Sub(matched)
			if ask.Remaining.Sign() < 0 || bid.Remaining.Sign() < 0 {
				// A negative remainder means the loop itself is broken and
				// the book can no longer be trusted.
				panic(fmt.Sprintf("orderbook %s: negative remaining after match of %s (ask %s, bid %s)",
					book.asset, matched, ask.ID, bid.ID))
			}

			// The earlier order was resting; the trade executes at its price.
			maker := ask
			if bid.Sequence < ask.Sequence {
				maker = bid
			}
			trades = append(trades, common.Trade{
				Asset:       book.asset,
				Buyer:       bid.UserID,
				Seller:      ask.UserID,
				BuyOrderID:  bid.ID,
				SellOrderID: ask.ID,
				Price:       maker.Price,
				Amount:      matched,
				Timestamp:   time.Now(),
			})

			book.askVolume = book.askVolume.Sub(matched)
			book.bidVolume = book.bidVolume.Sub(matched)

			if ask.Remaining.IsZero() {
				book.nAsks--
				aIdx++
			}
			if bid.Remaining.IsZero() {
				book.nBids--
				bIdx++
			}
		}

		// Slice off fully consumed orders and drop emptied levels. Partially
		// filled orders stay put with their reduced remainder.
		if aIdx > 0 {
			bestAsk.Orders = bestAsk.Orders[aIdx:]
		}
		if bIdx > 0 {
			bestBid.Orders = bestBid.Orders[bIdx:]
		}
		if len(bestAsk.Orders) == 0 {
			book.asks.Delete(bestAsk)
		}
		if len(bestBid.Orders) == 0 {
			book.bids.Delete(bestBid)
		}
	}

	return trades
}

// BestBid returns the highest bid price, if any bid rests in the book.
func (book *OrderBook) BestBid() (decimal.Decimal, bool) {
	level, ok := book.bids.Min()
	if !ok {
		return decimal.Zero, false
	}
	return level.Price, true
}

// BestAsk returns the lowest ask price, if any ask rests in the book.
func (book *OrderBook) BestAsk() (decimal.Decimal, bool) {
	level, ok := book.asks.Min()
	if !ok {
		return decimal.Zero, false
	}
	return level.Price, true
}

// Counts reports the number of resting orders on each side.
func (book *OrderBook) Counts() (bids, asks uint64) {
	return book.nBids, book.nAsks
}

// Volumes reports the total resting amount on each side.
func (book *OrderBook) Volumes() (bidVolume, askVolume decimal.Decimal) {
	return book.bidVolume, book.askVolume
}

// PriceAmount is one row of a depth snapshot.
type PriceAmount struct {
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
}

// Depth flattens up to limit levels per side into copied (price, amount)
// rows, bids best first and asks best first.
func (book *OrderBook) Depth(limit int) (bids, asks []PriceAmount) {
	bids = flattenDepth(book.bids, limit)
	asks = flattenDepth(book.asks, limit)
	return bids, asks
}

func flattenDepth(levels *PriceLevels, limit int) []PriceAmount {
	if limit <= 0 {
		return nil
	}
	rows := make([]PriceAmount, 0, limit)
	levels.Scan(func(level *PriceLevel) bool {
		total := decimal.Zero
		for _, order := range level.Orders {
			total = total.Add(order.Remaining)
		}
		rows = append(rows, PriceAmount{Price: level.Price, Amount: total})
		return len(rows) < limit
	})
	return rows
}

// Levels exposes a side's levels in priority order for tests and snapshots.
func (book *OrderBook) Levels(side common.Side) []*PriceLevel {
	if side == common.Buy {
		return book.bids.Items()
	}
	return book.asks.Items()
}
