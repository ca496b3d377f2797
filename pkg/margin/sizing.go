// 文件: pkg/margin/sizing.go
// 清算规模估算
//
// 问题: 账户跌破 Initial 档之后，最少要没收多少目标资产，
// 才能把加权保证金要求压回账户价值之下？
//
// 推导 (全部千分比/micro 刻度下的整数运算):
//
//	numerator   = Σ openNotional_i * imf_i - 1000 * min(max(加权抵押, 0), 账户价值)
//	denominator = price_asset * (imf_asset - numLf)
//	qty         = ceil(numerator / denominator)
//
// 其中 numLf 编码了"没收目标资产、贷记报价资产"不是费用中性的事实。

package margin

import (
	"math/big"

	"riskon.com/pkg/safemath"
)

// LiquidationSize 估算结果
type LiquidationSize struct {
	// AssetQty 需要没收的目标资产数量 (native 单位)，永不为负
	AssetQty int64

	// QuoteValue 折合报价资产的价值 (micro USD)，已含 fudge
	QuoteValue int64
}

// EstimateLiquidationSize 估算恢复 Initial 档所需的最小没收量
//
// assetIndex: 被没收的目标抵押资产索引
// quoteIndex: 清算人贷记的报价资产索引
// fudge: 可选滑点安全系数 (>1 放大结果)；<= 0 表示不用。
// fudge 是调用方的执行层参数，不属于核心公式。
func EstimateLiquidationSize(snap *Snapshot, assetIndex, quoteIndex int, fudge float64) (LiquidationSize, error) {
	n := snap.activeCollaterals()
	if assetIndex < 0 || assetIndex >= n || quoteIndex < 0 || quoteIndex >= n {
		return LiquidationSize{}, ErrBadLiquidationPair
	}
	asset := snap.Collaterals[assetIndex]
	quote := snap.Collaterals[quoteIndex]

	// 目标资产的有效系数，由权重派生 (与现货借款同一公式)
	imf, err := spotFactor(SpotInitialMarginReq, asset.Weight)
	if err != nil {
		return LiquidationSize{}, err
	}

	// numLf = weight_quote * (1000 + liqFee_asset) / (1000 - liqFee_quote) - 1000
	// 向上取整 → 分母 (imf - numLf) 偏小 → 没收量偏大，保守
	feeDen, err := safemath.Sub(Permille, quote.LiqFee)
	if err != nil {
		return LiquidationSize{}, err
	}
	if feeDen <= 0 {
		return LiquidationSize{}, ErrBadLiquidationPair
	}
	feeNum, err := safemath.Add(Permille, asset.LiqFee)
	if err != nil {
		return LiquidationSize{}, err
	}
	x, err := safemath.Mul(quote.Weight, feeNum)
	if err != nil {
		return LiquidationSize{}, err
	}
	x, err = safemath.CeilDiv(x, feeDen)
	if err != nil {
		return LiquidationSize{}, err
	}
	numLf, err := safemath.Sub(x, Permille)
	if err != nil {
		return LiquidationSize{}, err
	}

	imfDiff, err := safemath.Sub(imf, numLf)
	if err != nil {
		return LiquidationSize{}, err
	}
	// 分母退化 (≤ 0) 是配置/状态错误，不做静默 clamp
	if imfDiff <= 0 {
		return LiquidationSize{}, ErrBadLiquidationPair
	}

	price, ok := snap.Oracle.Lookup(asset.OracleSymbol)
	if !ok {
		return LiquidationSize{}, ErrPriceUnavailable
	}

	// 加权抵押总值，保留负值: 深度资不抵债的账户价值基数为负，
	// 折算出的没收量相应更大
	weightedCol, err := TotalCollateral(snap, true)
	if err != nil {
		return LiquidationSize{}, err
	}

	// Both 模式: 一次遍历同时拿到 Initial/Maintenance 系数与账户价值
	pp, err := perpParams(snap, weightedCol, factorBoth)
	if err != nil {
		return LiquidationSize{}, err
	}
	sb, err := spotBorrows(snap, factorBoth, pp.totalRealizedPnL)
	if err != nil {
		return LiquidationSize{}, err
	}

	imfVec := concat(pp.imfVec, sb.imfVec)
	openNotionalVec := concat(pp.openNotionalVec, sb.notionalVec)

	weightedSumImf, err := calcWeightedSum(imfVec, openNotionalVec)
	if err != nil {
		return LiquidationSize{}, err
	}

	// min 的抵押一侧才按 0 下夹 (账户价值一侧可为负)
	budget, err := safemath.Mul(safemath.Min(safemath.Max(weightedCol, 0), pp.totalAccValue), Permille)
	if err != nil {
		return LiquidationSize{}, err
	}
	numerator, err := safemath.Sub(weightedSumImf, budget)
	if err != nil {
		return LiquidationSize{}, err
	}

	// qty = ceil(numerator / (price * imfDiff / 1e6))
	//     = ceil(numerator * 1e6 / (price * imfDiff))
	num := new(big.Int).Mul(big.NewInt(numerator), big.NewInt(PricePrecision))
	den := new(big.Int).Mul(big.NewInt(price), big.NewInt(imfDiff))
	q, err := safemath.CeilDivBig(num, den)
	if err != nil {
		return LiquidationSize{}, err
	}
	qty, err := safemath.ToInt64(q)
	if err != nil {
		return LiquidationSize{}, err
	}
	// 账户本就达标时 numerator < 0：没收量为 0，而不是负数
	qty = safemath.Max(qty, 0)

	usd, err := safemath.MulFixedFloor(qty, price, PricePrecision)
	if err != nil {
		return LiquidationSize{}, err
	}
	if fudge > 0 {
		usd = int64(fudge * float64(usd))
	}

	return LiquidationSize{AssetQty: qty, QuoteValue: usd}, nil
}
