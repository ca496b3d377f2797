package margin

import (
	"errors"
	"testing"
)

// 基础快照: 资产 0 = USDC (weight 1000), 资产 1 = BTC (weight 500)
// 价格: USDC = 1 USD, BTC = 200 USD (micro 刻度)
// 计息倍率全部 1.0，先把利息因素隔离掉
func collateralSnapshot(usdc, btc int64) *Snapshot {
	return &Snapshot{
		Account: AccountSnapshot{
			Collateral: []int64{usdc, btc},
			Positions:  []Position{},
		},
		Collaterals: []CollateralConfig{
			{Asset: "USDC", OracleSymbol: "USDC", Weight: 1000, LiqFee: 20},
			{Asset: "BTC", OracleSymbol: "BTC", Weight: 500, LiqFee: 30},
		},
		Borrows: []BorrowAccrual{
			{SupplyMultiplier: PricePrecision, BorrowMultiplier: PricePrecision},
			{SupplyMultiplier: PricePrecision, BorrowMultiplier: PricePrecision},
		},
		Oracle: NewOracleSnapshot([]OracleEntry{
			{Symbol: "USDC", Price: 1_000_000},
			{Symbol: "BTC", Price: 200_000_000},
		}),
		ActiveCollaterals: 2,
	}
}

func TestCalcActualCollateral(t *testing.T) {
	// 正余额走 supply 倍率
	v, err := CalcActualCollateral(10_000_000, 1_100_000, 1_200_000)
	if err != nil || v != 11_000_000 {
		t.Fatalf("supply side = %d, %v; want 11_000_000", v, err)
	}

	// 负余额走 borrow 倍率
	v, err = CalcActualCollateral(-10_000_000, 1_100_000, 1_200_000)
	if err != nil || v != -12_000_000 {
		t.Fatalf("borrow side = %d, %v; want -12_000_000", v, err)
	}

	// 单调性: supply 倍率越大，正余额价值越大
	lo, _ := CalcActualCollateral(5_000_000, 1_000_000, 1_000_000)
	hi, _ := CalcActualCollateral(5_000_000, 1_500_000, 1_000_000)
	if hi <= lo {
		t.Errorf("supply monotonicity broken: %d <= %d", hi, lo)
	}

	// 单调性: borrow 倍率越大，负余额越负
	lo, _ = CalcActualCollateral(-5_000_000, 1_000_000, 1_500_000)
	hi, _ = CalcActualCollateral(-5_000_000, 1_000_000, 1_000_000)
	if lo >= hi {
		t.Errorf("borrow monotonicity broken: %d >= %d", lo, hi)
	}
}

func TestTotalCollateralUnweighted(t *testing.T) {
	// 1000 USDC + 0.5 BTC(=100 USD) = 1100 USD
	snap := collateralSnapshot(1_000_000_000, 500_000)
	total, err := TotalCollateral(snap, false)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1_100_000_000 {
		t.Errorf("total = %d, want 1_100_000_000", total)
	}
}

func TestTotalCollateralWeighted(t *testing.T) {
	// BTC 权重 500 → 0.5 BTC 只计一半: 1000 + 50 = 1050 USD
	snap := collateralSnapshot(1_000_000_000, 500_000)
	total, err := TotalCollateral(snap, true)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1_050_000_000 {
		t.Errorf("weighted total = %d, want 1_050_000_000", total)
	}
}

func TestNegativeCollateralNeverWeighted(t *testing.T) {
	// 负余额 (借款) 不打折: -100 USD 的 BTC 借款按全额计入
	snap := collateralSnapshot(1_000_000_000, -500_000)
	total, err := TotalCollateral(snap, true)
	if err != nil {
		t.Fatal(err)
	}
	if total != 900_000_000 {
		t.Errorf("weighted total = %d, want 900_000_000", total)
	}
}

func TestZeroBalanceNeedsNoPrice(t *testing.T) {
	// BTC 余额为 0，预言机里删掉 BTC 价格 → 必须不报错
	snap := collateralSnapshot(1_000_000_000, 0)
	snap.Oracle = NewOracleSnapshot([]OracleEntry{
		{Symbol: "USDC", Price: 1_000_000},
	})

	total, err := TotalCollateral(snap, false)
	if err != nil {
		t.Fatalf("zero balance should not be priced: %v", err)
	}
	if total != 1_000_000_000 {
		t.Errorf("total = %d, want 1_000_000_000", total)
	}
}

func TestMissingPriceIsError(t *testing.T) {
	// 非零余额查不到价格 → ErrPriceUnavailable，不能静默跳过
	snap := collateralSnapshot(1_000_000_000, 500_000)
	snap.Oracle = NewOracleSnapshot([]OracleEntry{
		{Symbol: "USDC", Price: 1_000_000},
	})

	if _, err := TotalCollateral(snap, false); !errors.Is(err, ErrPriceUnavailable) {
		t.Errorf("expected ErrPriceUnavailable, got %v", err)
	}
}

func TestActualCollateralVecAlignment(t *testing.T) {
	snap := collateralSnapshot(1_000_000_000, 500_000)
	vec, err := ActualCollateralVec(snap, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 2 {
		t.Fatalf("len = %d, want 2", len(vec))
	}
	if vec[0] != 1_000_000_000 || vec[1] != 100_000_000 {
		t.Errorf("vec = %v", vec)
	}
}
