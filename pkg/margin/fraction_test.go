package margin

import (
	"math/big"
	"testing"
)

// 单市场永续快照:
//   市场 0: BTC-PERP, baseImf 100‰, decimals 6, 标记价 100 USD
//   资产 0: USDC (weight 1000), 余额 = col
// 持仓: size 10 单位 (10_000_000 native), native_pc_total = -1000 USD
// → 未实现盈亏恰好为 0，账户价值 = col
func perpSnapshot(col int64) *Snapshot {
	return &Snapshot{
		Account: AccountSnapshot{
			Collateral: []int64{col},
			Positions: []Position{
				{
					Key:           AccountKey{1},
					Size:          10_000_000,
					NativePcTotal: -1_000_000_000,
					FundingIndex:  big.NewInt(0),
				},
			},
		},
		Collaterals: []CollateralConfig{
			{Asset: "USDC", OracleSymbol: "USDC", Weight: 1000, LiqFee: 20},
		},
		PerpMarkets: []PerpMarketConfig{
			{Symbol: "BTC-PERP", AssetDecimals: 6, BaseImf: 100},
		},
		Borrows: []BorrowAccrual{
			{SupplyMultiplier: PricePrecision, BorrowMultiplier: PricePrecision},
		},
		Oracle: NewOracleSnapshot([]OracleEntry{
			{Symbol: "USDC", Price: 1_000_000},
		}),
		Marks:             []MarkSnapshot{{Price: 100_000_000}},
		Funding:           []*big.Int{big.NewInt(0)},
		ActiveCollaterals: 1,
		ActiveMarkets:     1,
	}
}

// 名义敞口 1000 USD, imf 100‰ → 需要 100 USD 保证金。
// 抵押 > 100 USD 过，== 100 USD 恰好相等判不过，< 100 USD 不过。
func TestInitialRequirementRoundTrip(t *testing.T) {
	// 100 USD + 1 micro → 过
	r, err := CheckFractionRequirement(perpSnapshot(100_000_001), FractionInitial, 100_000_001)
	if err != nil {
		t.Fatal(err)
	}
	if !r.Satisfied {
		t.Errorf("collateral just above requirement should pass: %+v", r)
	}

	// 少 1 micro → 不过
	r, err = CheckFractionRequirement(perpSnapshot(99_999_999), FractionInitial, 99_999_999)
	if err != nil {
		t.Fatal(err)
	}
	if r.Satisfied {
		t.Errorf("collateral below requirement should fail: %+v", r)
	}
}

// 预算 == 加权和 判为不达标 —— 临界点语义必须精确保持
func TestEqualityFails(t *testing.T) {
	r, err := CheckFractionRequirement(perpSnapshot(100_000_000), FractionInitial, 100_000_000)
	if err != nil {
		t.Fatal(err)
	}
	if r.Budget != r.WeightedSum {
		t.Fatalf("fixture broken: budget %d != weightedSum %d", r.Budget, r.WeightedSum)
	}
	if r.Satisfied {
		t.Error("exact equality must fail the check")
	}
}

// 无任何敞口 → 任何档位都平凡满足
func TestNoExposureTriviallySatisfied(t *testing.T) {
	snap := perpSnapshot(5) // 抵押几乎为 0
	snap.Account.Positions = []Position{}
	snap.ActiveMarkets = 0

	for _, ft := range []FractionType{FractionInitial, FractionMaintenance, FractionCancel} {
		r, err := CheckFractionRequirement(snap, ft, 5)
		if err != nil {
			t.Fatal(err)
		}
		if !r.Satisfied || r.HasOpenNotional {
			t.Errorf("%v: empty account should trivially satisfy: %+v", ft, r)
		}
	}
}

// 三个档位的系数派生:
//   mmf = imf / 2 (整除向下), cmf = imf * 5 / 8
// 抵押 60 USD: Maintenance 过 (需 50)、Cancel 不过 (需 62)、Initial 不过 (需 100)
// 抵押 63 USD: Cancel 过、Initial 仍不过 → Cancel 介于两档之间
func TestFractionOrdering(t *testing.T) {
	check := func(col int64, ft FractionType) bool {
		r, err := CheckFractionRequirement(perpSnapshot(col), ft, col)
		if err != nil {
			t.Fatal(err)
		}
		return r.Satisfied
	}

	if !check(60_000_000, FractionMaintenance) {
		t.Error("60 USD should satisfy maintenance (needs 50)")
	}
	if check(60_000_000, FractionCancel) {
		t.Error("60 USD should fail cancel (needs 62)")
	}
	if check(60_000_000, FractionInitial) {
		t.Error("60 USD should fail initial (needs 100)")
	}
	if !check(63_000_000, FractionCancel) {
		t.Error("63 USD should satisfy cancel")
	}
	if check(63_000_000, FractionInitial) {
		t.Error("63 USD should still fail initial")
	}
}

// 系数向量直接校验: pmmf = pimf/2, pcmf = pimf*5/8 (整数除法)
func TestPerpFactorDerivation(t *testing.T) {
	snap := perpSnapshot(100_000_000)
	snap.PerpMarkets[0].BaseImf = 101 // 故意用不整除的值

	pp, err := perpParams(snap, 0, factorMmf)
	if err != nil {
		t.Fatal(err)
	}
	if len(pp.mmfVec) != 1 || pp.mmfVec[0] != 50 { // 101/2 = 50
		t.Errorf("mmf = %v, want [50]", pp.mmfVec)
	}

	pp, err = perpParams(snap, 0, factorCancel)
	if err != nil {
		t.Fatal(err)
	}
	if len(pp.cmfVec) != 1 || pp.cmfVec[0] != 63 { // 101*5/8 = 63
		t.Errorf("cmf = %v, want [63]", pp.cmfVec)
	}

	pp, err = perpParams(snap, 0, factorBoth)
	if err != nil {
		t.Fatal(err)
	}
	if len(pp.imfVec) != 1 || len(pp.mmfVec) != 1 {
		t.Errorf("both mode should fill imf and mmf: %+v", pp)
	}
}

// 资金费结算: size 2 单位, fundingDiff +500000, decimals 6
// → unrealizedFunding = floor(2e6 * -5e5 / 1e6) = -1_000_000 (多头付费)
func TestFundingSettlement(t *testing.T) {
	snap := perpSnapshot(100_000_000)
	snap.Account.Positions[0].Size = 2_000_000
	snap.Account.Positions[0].NativePcTotal = -200_000_000 // uPnL = 0
	snap.Funding[0] = big.NewInt(500_000)

	pp, err := perpParams(snap, 100_000_000, factorImf)
	if err != nil {
		t.Fatal(err)
	}
	// 账户价值 = 100 USD - 1 USD 资金费 = 99 USD
	if pp.totalAccValue != 99_000_000 {
		t.Errorf("accValue = %d, want 99_000_000", pp.totalAccValue)
	}
}

// 未实现盈亏方向: floor 取整，空头对称
func TestUnrealizedPnLDirection(t *testing.T) {
	// 多头 10 单位 @100 开仓，标记价涨到 110 → +100 USD
	snap := perpSnapshot(0)
	snap.Marks[0].Price = 110_000_000
	pp, err := perpParams(snap, 0, factorImf)
	if err != nil {
		t.Fatal(err)
	}
	if pp.totalAccValue != 100_000_000 {
		t.Errorf("long uPnL accValue = %d, want 100_000_000", pp.totalAccValue)
	}

	// 空头 10 单位 @100 开仓，标记价跌到 90 → +100 USD
	snap = perpSnapshot(0)
	snap.Account.Positions[0].Size = -10_000_000
	snap.Account.Positions[0].NativePcTotal = 1_000_000_000
	snap.Marks[0].Price = 90_000_000
	pp, err = perpParams(snap, 0, factorImf)
	if err != nil {
		t.Fatal(err)
	}
	if pp.totalAccValue != 100_000_000 {
		t.Errorf("short uPnL accValue = %d, want 100_000_000", pp.totalAccValue)
	}
}

// 挂单最坏敞口: max(|size+bids|, |size-asks|) * mark，向上取整
func TestOpenNotionalWorstSide(t *testing.T) {
	snap := perpSnapshot(100_000_000)
	pos := &snap.Account.Positions[0]
	pos.CoinOnBids = 5_000_000 // 多头再挂买单 → 更危险侧 15 单位
	pos.CoinOnAsks = 2_000_000

	pp, err := perpParams(snap, 100_000_000, factorImf)
	if err != nil {
		t.Fatal(err)
	}
	if pp.openNotionalVec[0] != 1_500_000_000 {
		t.Errorf("openNotional = %d, want 1_500_000_000", pp.openNotionalVec[0])
	}
	// 原始名义敞口不受挂单影响
	if pp.notionalVec[0] != 1_000_000_000 {
		t.Errorf("notional = %d, want 1_000_000_000", pp.notionalVec[0])
	}
}
