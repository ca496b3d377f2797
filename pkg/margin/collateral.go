// 文件: pkg/margin/collateral.go
// 抵押价值计算
//
// 【两步走】
// 1. 原始余额 → 计息后的"实际抵押" (actual collateral)
// 2. 实际抵押 → USD 计价、可选按权重打折的价值
//
// 【保守原则】
// 负值 (借款) 永远不打折 —— 债务按全额计入账户。

package margin

import (
	"math/big"

	"riskon.com/pkg/safemath"
)

// CalcActualCollateral 计息后的实际抵押
//
// 正余额按 supplyMult 计息 (出借方收益)，
// 负余额按 borrowMult 计息 (借入方欠息)。
// 两个倍率都 ≥ 1.0 且随时间增长，所以:
//   raw > 0 时结果随 supplyMult 单调增
//   raw < 0 时结果的绝对值随 borrowMult 单调增
//
// 取整向负无穷: 资产低估、债务高估，两个方向都保守。
func CalcActualCollateral(raw, supplyMult, borrowMult int64) (int64, error) {
	if raw > 0 {
		return safemath.MulFixedFloor(raw, supplyMult, PricePrecision)
	}
	return safemath.MulFixedFloor(raw, borrowMult, PricePrecision)
}

// ActualCollateralVec 每个活跃资产的 USD 价值向量
//
// 返回长度 = 活跃抵押资产数的切片，下标对齐资产索引。
// 余额恰好为 0 的资产不定价、贡献 0 (零余额不需要价格)；
// 余额非零但查不到价格 → ErrPriceUnavailable，整次计算失败。
//
// weighted = true 时，非负的 USD 价值按 Weight/1000 打折；
// 负值永不打折。
func ActualCollateralVec(snap *Snapshot, weighted bool) ([]int64, error) {
	n := snap.activeCollaterals()
	vec := make([]int64, n)

	for i := 0; i < n; i++ {
		raw := snap.Account.Collateral[i]
		if raw == 0 {
			continue
		}

		info := snap.Collaterals[i]
		accr := snap.Borrows[i]

		actual, err := CalcActualCollateral(raw, accr.SupplyMultiplier, accr.BorrowMultiplier)
		if err != nil {
			return nil, err
		}

		price, ok := snap.Oracle.Lookup(info.OracleSymbol)
		if !ok {
			return nil, ErrPriceUnavailable
		}

		v, err := usdValue(actual, price, info.Weight, weighted)
		if err != nil {
			return nil, err
		}
		vec[i] = v
	}

	return vec, nil
}

// TotalCollateral 账户抵押价值总和
//
// 这是账户的"头寸估值起点"：
// 永续敞口聚合以它为初始账户价值，清算规模估算也要用它。
func TotalCollateral(snap *Snapshot, weighted bool) (int64, error) {
	vec, err := ActualCollateralVec(snap, weighted)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, v := range vec {
		total, err = safemath.Add(total, v)
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}

// usdValue 实际抵押 × 价格，可选按权重打折
//
// 乘积在 big.Int 里展开，打折与缩刻度一次完成，
// 只在最后做一次 floor 取整，避免中间取整累积误差。
func usdValue(actual, price, weight int64, weighted bool) (int64, error) {
	prod := new(big.Int).Mul(big.NewInt(actual), big.NewInt(price))
	den := big.NewInt(PricePrecision)

	// 价值非负才打折；debt 全额计入
	if weighted && prod.Sign() >= 0 {
		prod.Mul(prod, big.NewInt(weight))
		den.Mul(den, big.NewInt(Permille))
	}

	q, err := safemath.FloorDivBig(prod, den)
	if err != nil {
		return 0, err
	}
	return safemath.ToInt64(q)
}
