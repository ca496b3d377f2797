package margin

import (
	"errors"
	"testing"
)

// 借款快照: 资产 0 = USDC (weight 1000) 余额可配，资产 1 = BTC (weight 500)
func borrowSnapshot(usdc, btc int64) *Snapshot {
	snap := collateralSnapshot(usdc, btc)
	snap.Account.Positions = []Position{}
	return snap
}

func TestSpotFactor(t *testing.T) {
	// weight 1000: imf = ceil(1000*1100/1000)-1000 = 100
	if f, err := spotFactor(SpotInitialMarginReq, 1000); err != nil || f != 100 {
		t.Errorf("imf(1000) = %d, %v; want 100", f, err)
	}
	// weight 1000: mmf = ceil(1000*1030/1000)-1000 = 30
	if f, err := spotFactor(SpotMaintMarginReq, 1000); err != nil || f != 30 {
		t.Errorf("mmf(1000) = %d, %v; want 30", f, err)
	}
	// weight 500: imf = ceil(1100000/500)-1000 = 1200
	if f, err := spotFactor(SpotInitialMarginReq, 500); err != nil || f != 1200 {
		t.Errorf("imf(500) = %d, %v; want 1200", f, err)
	}
	// 不整除时向上取整: weight 900 → ceil(1100000/900)=1223 → factor 223
	if f, err := spotFactor(SpotInitialMarginReq, 900); err != nil || f != 223 {
		t.Errorf("imf(900) = %d, %v; want 223", f, err)
	}
	// weight 0 是配置错误
	if _, err := spotFactor(SpotInitialMarginReq, 0); !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("expected ErrDivisionByZero, got %v", err)
	}
}

// 只有负余额参与借款聚合；正余额不产生任何系数项
func TestSpotBorrowsOnlyNegative(t *testing.T) {
	snap := borrowSnapshot(1_000_000_000, -500_000) // 借 0.5 BTC (= 100 USD)
	sb, err := spotBorrows(snap, factorImf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(sb.notionalVec) != 1 || len(sb.imfVec) != 1 {
		t.Fatalf("expected single borrow entry: %+v", sb)
	}
	if sb.notionalVec[0] != 100_000_000 {
		t.Errorf("notional = %d, want 100_000_000", sb.notionalVec[0])
	}
	if sb.imfVec[0] != 1200 {
		t.Errorf("imf = %d, want 1200", sb.imfVec[0])
	}
	if !sb.hasOpenNotional {
		t.Error("positive notional should mark open exposure")
	}
}

// 已实现盈亏并入 0 号资产之后再定价
func TestSpotBorrowRealizedPnLFold(t *testing.T) {
	snap := borrowSnapshot(-10_000_000, 0) // 借 10 USD
	sb, err := spotBorrows(snap, factorImf, 5_000_000)
	if err != nil {
		t.Fatal(err)
	}
	// actual = -10 + 5 = -5 USD → notional 5 USD
	if sb.notionalVec[0] != 5_000_000 {
		t.Errorf("notional = %d, want 5_000_000", sb.notionalVec[0])
	}
}

// 借款计息: borrow 倍率 1.2 → 10 USD 借款按 12 USD 计
func TestSpotBorrowAccrual(t *testing.T) {
	snap := borrowSnapshot(-10_000_000, 0)
	snap.Borrows[0].BorrowMultiplier = 1_200_000
	sb, err := spotBorrows(snap, factorImf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if sb.notionalVec[0] != 12_000_000 {
		t.Errorf("notional = %d, want 12_000_000", sb.notionalVec[0])
	}
}

// Cancel 档的现货系数复用 Initial 比例 (协议现状，刻意不"修复")
func TestSpotCancelReusesInitialRatio(t *testing.T) {
	snap := borrowSnapshot(-10_000_000, 0)

	imf, err := spotBorrows(snap, factorImf, 0)
	if err != nil {
		t.Fatal(err)
	}
	cancel, err := spotBorrows(snap, factorCancel, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(cancel.imfVec) != 1 || cancel.imfVec[0] != imf.imfVec[0] {
		t.Errorf("cancel spot factor %v should equal initial %v", cancel.imfVec, imf.imfVec)
	}
}

// 端到端: 纯借款账户的档位校验
// 借 100 USD BTC (weight 500 → imf 1200‰)，需要超额抵押 120 USD 作预算
func TestBorrowOnlyFractionCheck(t *testing.T) {
	check := func(usdc int64) bool {
		snap := borrowSnapshot(usdc, -500_000)
		col, err := TotalCollateral(snap, true)
		if err != nil {
			t.Fatal(err)
		}
		r, err := CheckFractionRequirement(snap, FractionInitial, col)
		if err != nil {
			t.Fatal(err)
		}
		return r.Satisfied
	}

	// weightedSum = 1200 * 1e8 = 1.2e11
	// budget = (usdc - 1e8) * 1000  (借款全额抵扣抵押价值)
	// → usdc > 220 USD 才过
	if check(220_000_000) {
		t.Error("220 USD collateral sits exactly on the boundary, must fail")
	}
	if !check(220_000_001) {
		t.Error("just above boundary should pass")
	}
}
