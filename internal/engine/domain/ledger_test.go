package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestLedger() (*Ledger, *History) {
	h := NewHistory()
	// 10 个基点的手续费率
	return NewLedger(h, d("10")), h
}

func TestLedgerOpenCreatesRowPerFill(t *testing.T) {
	l, h := newTestLedger()
	now := time.Now()

	p1, err := l.Open("BTC-USD", SideLong, d("1"), d("50000"), now)
	require.NoError(t, err)
	p2, err := l.Open("BTC-USD", SideShort, d("2"), d("51000"), now)
	require.NoError(t, err)

	// 不做净额：同一标的两次开仓产生两条记录
	assert.Equal(t, 2, l.Count())
	assert.NotEqual(t, p1.ID, p2.ID)
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, ActionOpen, h.Query(p1.ID)[0].Action)

	// 初始估值以开仓价为当前价
	assert.True(t, p1.MarketValue.Equal(d("50000")))
	assert.True(t, p1.UnrealizedPnL.IsZero())
}

func TestLedgerOpenValidation(t *testing.T) {
	l, _ := newTestLedger()
	now := time.Now()

	_, err := l.Open("X", Side("UP"), d("1"), d("10"), now)
	assert.ErrorIs(t, err, ErrInvalidSide)
	_, err = l.Open("X", SideLong, d("0"), d("10"), now)
	assert.ErrorIs(t, err, ErrInvalidSize)
	_, err = l.Open("X", SideLong, d("1"), d("-10"), now)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestLedgerRevalueInvariants(t *testing.T) {
	l, _ := newTestLedger()
	now := time.Now()

	long, _ := l.Open("ETH-USD", SideLong, d("10"), d("2000"), now)
	short, _ := l.Open("ETH-USD", SideShort, d("4"), d("2100"), now)
	l.Open("BTC-USD", SideLong, d("1"), d("50000"), now)

	changed := l.Revalue(Tick{Symbol: "ETH-USD", Price: d("2050"), Timestamp: now})
	require.Len(t, changed, 2)

	for _, p := range l.Positions() {
		assert.True(t, p.MarketValue.Equal(p.Quantity.Mul(p.CurrentPrice)),
			"marketValue == |quantity| * currentPrice must hold for %s", p.ID)
		assert.True(t, p.CostBasis.Equal(p.Quantity.Mul(p.EntryPrice)))
	}

	// 多头涨则赚，空头跌则赚: 空头开仓 2100，现价 2050
	assert.True(t, long.UnrealizedPnL.Equal(d("500")))
	assert.True(t, short.UnrealizedPnL.Equal(d("200")))

	// 价格反弹到开仓价上方，空头转亏
	l.Revalue(Tick{Symbol: "ETH-USD", Price: d("2150"), Timestamp: now})
	assert.True(t, short.UnrealizedPnL.Equal(d("-200")))
	assert.True(t, long.UnrealizedPnL.Equal(d("1500")))
}

func TestLedgerRevalueUnknownSymbolIgnored(t *testing.T) {
	l, _ := newTestLedger()
	l.Open("BTC-USD", SideLong, d("1"), d("50000"), time.Now())

	changed := l.Revalue(Tick{Symbol: "DOGE-USD", Price: d("0.1"), Timestamp: time.Now()})
	assert.Empty(t, changed)
}

func TestLedgerFullClose(t *testing.T) {
	l, h := newTestLedger()
	now := time.Now()

	p, _ := l.Open("BTC-USD", SideLong, d("2"), d("50000"), now)
	l.Revalue(Tick{Symbol: "BTC-USD", Price: d("51000"), Timestamp: now})

	res, ok, err := l.Close(p.ID, decimal.Zero, ActionClose, "manual", now)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, res.Removed)

	// 名义金额 2*51000=102000，10bp 手续费 = 102
	assert.True(t, res.Entry.Commission.Equal(d("102")))
	assert.True(t, res.Entry.RealizedPnL.Equal(d("1898"))) // 2000 - 102
	assert.Equal(t, ActionClose, res.Entry.Action)

	assert.Equal(t, 0, l.Count())
	entries := h.Query(p.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, ActionClose, entries[0].Action) // 最近在前
	assert.Equal(t, ActionOpen, entries[1].Action)
}

func TestLedgerPartialClose(t *testing.T) {
	l, _ := newTestLedger()
	now := time.Now()

	p, _ := l.Open("ETH-USD", SideShort, d("10"), d("2000"), now)
	l.Revalue(Tick{Symbol: "ETH-USD", Price: d("1900"), Timestamp: now})

	res, ok, err := l.Close(p.ID, d("4"), ActionClose, "", now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, res.Removed)
	assert.Equal(t, ActionPartialClose, res.Entry.Action)

	// 空头下跌获利: (2000-1900)*4 = 400，手续费 4*1900*0.001 = 7.6
	assert.True(t, res.Entry.RealizedPnL.Equal(d("392.4")))

	// 剩余幅度减少，已实现盈亏累加
	assert.True(t, p.Quantity.Equal(d("6")))
	assert.True(t, p.RealizedPnL.Equal(d("392.4")))
	assert.True(t, p.MarketValue.Equal(d("11400")))
}

func TestLedgerCloseExceedingQuantityLeavesPositionUntouched(t *testing.T) {
	l, h := newTestLedger()
	now := time.Now()

	p, _ := l.Open("BTC-USD", SideLong, d("1"), d("50000"), now)
	before := *p
	histBefore := h.Len()

	_, ok, err := l.Close(p.ID, d("2"), ActionClose, "", now)
	assert.True(t, ok)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	after, _ := l.Get(p.ID)
	assert.Equal(t, before, *after)
	assert.Equal(t, histBefore, h.Len())
}

func TestLedgerCloseMissingPositionReturnsFalse(t *testing.T) {
	l, _ := newTestLedger()
	res, ok, err := l.Close("POS999", decimal.Zero, ActionClose, "", time.Now())
	assert.Nil(t, res)
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestLedgerCloseAll(t *testing.T) {
	l, h := newTestLedger()
	now := time.Now()

	l.Open("BTC-USD", SideLong, d("1"), d("50000"), now)
	l.Open("ETH-USD", SideShort, d("5"), d("2000"), now)
	l.Open("SOL-USD", SideLong, d("100"), d("150"), now)

	results := l.CloseAll("session stop", now)
	require.Len(t, results, 3)
	assert.Equal(t, 0, l.Count())

	for _, res := range results {
		assert.True(t, res.Removed)
		assert.Equal(t, "session stop", res.Entry.Reason)
	}
	// 3 次开仓 + 3 次平仓
	assert.Equal(t, 6, h.Len())
}

func TestLedgerSnapshotIsCopy(t *testing.T) {
	l, _ := newTestLedger()
	now := time.Now()
	p, _ := l.Open("BTC-USD", SideLong, d("1"), d("50000"), now)

	snap := l.SnapshotPositions()
	require.Len(t, snap, 1)
	snap[0].Quantity = d("999")

	assert.True(t, p.Quantity.Equal(d("1")), "mutating a snapshot must not touch the ledger")
}

func TestPositionDayPnLRollsAtDayBoundary(t *testing.T) {
	l, _ := newTestLedger()
	day1 := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	p, _ := l.Open("BTC-USD", SideLong, d("1"), d("50000"), day1)

	l.Revalue(Tick{Symbol: "BTC-USD", Price: d("51000"), Timestamp: day1.Add(time.Hour)})
	assert.True(t, p.DayPnL.Equal(d("1000")))

	// 跨日后以昨收 51000 作为当日参考价
	l.Revalue(Tick{Symbol: "BTC-USD", Price: d("51500"), Timestamp: day2})
	assert.True(t, p.DayPnL.Equal(d("500")))
	assert.True(t, p.UnrealizedPnL.Equal(d("1500")))
}
