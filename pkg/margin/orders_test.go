package margin

import (
	"errors"
	"math/big"
	"testing"
)

// 三市场快照，标记价分别 10 / 20 / 30 USD
func ordersSnapshot() *Snapshot {
	return &Snapshot{
		Account: AccountSnapshot{
			Collateral: []int64{0},
			Positions: []Position{
				{Key: AccountKey{1}, Size: 1_000_000},
				{Key: AccountKey{2}, Size: -2_000_000},
				{Key: AccountKey{3}, Size: 3_000_000},
			},
		},
		Collaterals: []CollateralConfig{
			{Asset: "USDC", OracleSymbol: "USDC", Weight: 1000},
		},
		PerpMarkets: []PerpMarketConfig{
			{Symbol: "A-PERP", AssetDecimals: 6, BaseImf: 100},
			{Symbol: "B-PERP", AssetDecimals: 6, BaseImf: 100},
			{Symbol: "C-PERP", AssetDecimals: 6, BaseImf: 100},
		},
		Borrows: []BorrowAccrual{
			{SupplyMultiplier: PricePrecision, BorrowMultiplier: PricePrecision},
		},
		Oracle: NewOracleSnapshot([]OracleEntry{{Symbol: "USDC", Price: 1_000_000}}),
		Marks: []MarkSnapshot{
			{Price: 10_000_000},
			{Price: 20_000_000},
			{Price: 30_000_000},
		},
		Funding:           []*big.Int{big.NewInt(0), big.NewInt(0), big.NewInt(0)},
		ActiveCollaterals: 1,
		ActiveMarkets:     3,
	}
}

// 零活跃持仓 → ErrNoPositions (错误，不是空结果)
func TestLargestOpenOrderNoPositions(t *testing.T) {
	snap := ordersSnapshot()
	snap.Account.Positions = []Position{}
	snap.ActiveMarkets = 0

	if _, _, err := LargestOpenOrder(snap); !errors.Is(err, ErrNoPositions) {
		t.Errorf("expected ErrNoPositions, got %v", err)
	}

	// 有槽位但全是空 key，同样算无持仓
	snap = ordersSnapshot()
	for i := range snap.Account.Positions {
		snap.Account.Positions[i].Key = AccountKey{}
	}
	if _, _, err := LargestOpenOrder(snap); !errors.Is(err, ErrNoPositions) {
		t.Errorf("all-empty slots: expected ErrNoPositions, got %v", err)
	}
}

// 有持仓但两侧挂单全为 0 → 空结果，不是错误
func TestLargestOpenOrderNoneSignificant(t *testing.T) {
	snap := ordersSnapshot()
	idx, ok, err := LargestOpenOrder(snap)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Errorf("no resting orders anywhere, got index %d", idx)
	}

	has, err := HasOpenOrders(snap)
	if err != nil || has {
		t.Errorf("HasOpenOrders = %v, %v; want false", has, err)
	}
}

// 严格占优的市场胜出: exposure = max(bids, asks) * mark
func TestLargestOpenOrderDominant(t *testing.T) {
	snap := ordersSnapshot()
	snap.Account.Positions[0].CoinOnBids = 10_000_000 // 10 * 10 = 100 USD
	snap.Account.Positions[1].CoinOnAsks = 3_000_000  // 3 * 20 = 60 USD
	snap.Account.Positions[2].CoinOnBids = 5_000_000  // max(5,1) * 30 = 150 USD
	snap.Account.Positions[2].CoinOnAsks = 1_000_000

	idx, ok, err := LargestOpenOrder(snap)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || idx != 2 {
		t.Errorf("got (%d, %v), want market 2", idx, ok)
	}
}
