package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skoll/internal/common"
	"skoll/internal/sink"
)

// --- Setup & Helpers --------------------------------------------------------

func newTestEngine(t *testing.T) (*Engine, *sink.ChannelReporter) {
	t.Helper()
	eng := New()
	rep := sink.NewChannelReporter(1024)
	eng.SetReporter(rep)
	t.Cleanup(eng.Close)
	return eng, rep
}

func nextEvent(t *testing.T, rep *sink.ChannelReporter) sink.Event {
	t.Helper()
	select {
	case ev := <-rep.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return sink.Event{}
	}
}

func requireNoEvent(t *testing.T, rep *sink.ChannelReporter) {
	t.Helper()
	select {
	case ev := <-rep.Events():
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

// --- Tests ------------------------------------------------------------------

func TestSubmitOrder_TradesBeforeAck(t *testing.T) {
	eng, rep := newTestEngine(t)

	sellAck, err := eng.SubmitOrder("alice", "BTC", common.Sell, dec("10"), dec("5"))
	require.NoError(t, err)
	assert.Equal(t, common.Resting, sellAck.Status)
	assert.Equal(t, uint64(1), sellAck.Sequence)

	ev := nextEvent(t, rep)
	require.NotNil(t, ev.Ack, "a quiet submission yields only its ack")
	assert.Equal(t, sellAck.OrderID, ev.Ack.OrderID)

	buyAck, err := eng.SubmitOrder("bob", "BTC", common.Buy, dec("10"), dec("3"))
	require.NoError(t, err)
	assert.Equal(t, common.Filled, buyAck.Status)
	assertDec(t, "0", buyAck.Remaining)

	ev = nextEvent(t, rep)
	require.NotNil(t, ev.Trade, "trades precede the submitter's ack")
	assert.Equal(t, "bob", ev.Trade.Buyer)
	assert.Equal(t, "alice", ev.Trade.Seller)
	assert.Equal(t, buyAck.OrderID, ev.Trade.BuyOrderID)
	assert.Equal(t, sellAck.OrderID, ev.Trade.SellOrderID)
	assertDec(t, "10", ev.Trade.Price)
	assertDec(t, "3", ev.Trade.Amount)

	ev = nextEvent(t, rep)
	require.NotNil(t, ev.Ack)
	assert.Equal(t, buyAck.OrderID, ev.Ack.OrderID)
}

func TestSubmitOrder_AssetIsolation(t *testing.T) {
	eng, rep := newTestEngine(t)

	_, err := eng.SubmitOrder("alice", "ETH", common.Sell, dec("10"), dec("5"))
	require.NoError(t, err)
	btcAck, err := eng.SubmitOrder("bob", "BTC", common.Buy, dec("10"), dec("5"))
	require.NoError(t, err)

	// A crossing price on a different asset must not trade.
	assert.Equal(t, common.Resting, btcAck.Status)
	for i := 0; i < 2; i++ {
		ev := nextEvent(t, rep)
		require.Nil(t, ev.Trade, "no trade may cross assets")
	}

	bids, asks, err := eng.Depth("BTC", 10)
	require.NoError(t, err)
	assert.Len(t, bids, 1)
	assert.Empty(t, asks)

	bids, asks, err = eng.Depth("ETH", 10)
	require.NoError(t, err)
	assert.Empty(t, bids)
	assert.Len(t, asks, 1)

	assert.ElementsMatch(t, []string{"BTC", "ETH"}, eng.Assets())
}

func TestSubmitOrder_RejectsInvalidOrder(t *testing.T) {
	eng, rep := newTestEngine(t)

	_, err := eng.SubmitOrder("alice", "BTC", common.Buy, dec("0"), dec("5"))
	assert.ErrorIs(t, err, ErrInvalidOrder)
	_, err = eng.SubmitOrder("alice", "BTC", common.Buy, dec("10"), dec("-5"))
	assert.ErrorIs(t, err, ErrInvalidOrder)
	_, err = eng.SubmitOrder("alice", "BTC", common.Side(9), dec("10"), dec("5"))
	assert.ErrorIs(t, err, ErrInvalidOrder)

	// Rejections reach the caller only; the sink stays silent.
	requireNoEvent(t, rep)

	// The book is untouched: the next clean pair still matches exactly once,
	// and the rejected orders burned no sequence numbers.
	sellAck, err := eng.SubmitOrder("alice", "BTC", common.Sell, dec("10"), dec("5"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), sellAck.Sequence)

	_, err = eng.SubmitOrder("bob", "BTC", common.Buy, dec("10"), dec("5"))
	require.NoError(t, err)

	nextEvent(t, rep) // sell ack
	ev := nextEvent(t, rep)
	require.NotNil(t, ev.Trade)
	assertDec(t, "5", ev.Trade.Amount)
}

func TestSubmitOrder_PerAssetSequences(t *testing.T) {
	eng, _ := newTestEngine(t)

	first, err := eng.SubmitOrder("alice", "BTC", common.Buy, dec("9"), dec("1"))
	require.NoError(t, err)
	second, err := eng.SubmitOrder("bob", "BTC", common.Buy, dec("8"), dec("1"))
	require.NoError(t, err)
	other, err := eng.SubmitOrder("carol", "ETH", common.Buy, dec("9"), dec("1"))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), first.Sequence)
	assert.Equal(t, uint64(2), second.Sequence)
	assert.Equal(t, uint64(1), other.Sequence, "sequences are scoped per asset")
}

func TestSubmitOrder_ConcurrentSameAsset(t *testing.T) {
	const n = 64
	eng, rep := newTestEngine(t)

	// Pre-seed n unit asks; every concurrent buy below consumes exactly one.
	for i := 0; i < n; i++ {
		_, err := eng.SubmitOrder("maker", "BTC", common.Sell, dec("10"), dec("1"))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.SubmitOrder("taker", "BTC", common.Buy, dec("10"), dec("1"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// n seed acks + n trades + n taker acks, no more, no less.
	trades, acks := 0, 0
	for i := 0; i < 3*n; i++ {
		ev := nextEvent(t, rep)
		if ev.Trade != nil {
			trades++
		} else {
			acks++
		}
	}
	requireNoEvent(t, rep)
	assert.Equal(t, n, trades, "each submission must match exactly once")
	assert.Equal(t, 2*n, acks)

	bids, asks, err := eng.Depth("BTC", 10)
	require.NoError(t, err)
	assert.Empty(t, bids, "all takers filled")
	assert.Empty(t, asks, "all makers lifted")
}

func TestSubmitOrder_ConcurrentDistinctAssets(t *testing.T) {
	const n = 32
	eng, rep := newTestEngine(t)

	assets := []string{"BTC", "ETH", "SOL", "DOGE"}
	for _, asset := range assets {
		_, err := eng.SubmitOrder("maker", asset, common.Sell, dec("10"), dec("32"))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		asset := assets[i%len(assets)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.SubmitOrder("taker", asset, common.Buy, dec("10"), dec("1"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	trades := 0
	for i := 0; i < len(assets)+2*n; i++ {
		ev := nextEvent(t, rep)
		if ev.Trade != nil {
			trades++
			assert.Contains(t, assets, ev.Trade.Asset)
		}
	}
	assert.Equal(t, n, trades)
}

func TestSubmitOrder_AfterClose(t *testing.T) {
	eng := New()
	eng.SetReporter(sink.NewChannelReporter(8))
	eng.Close()

	_, err := eng.SubmitOrder("alice", "BTC", common.Buy, dec("10"), dec("1"))
	assert.ErrorIs(t, err, ErrEngineClosed)
}
