// 文件: pkg/margin/spot.go
// 现货借款聚合
//
// 只有"实际余额为负"的资产参与 —— 正余额不是借款，
// 它们已经折进抵押价值里了，这里不再产生保证金系数项。

package margin

import "riskon.com/pkg/safemath"

// spotBorrowParams 现货借款聚合输出
type spotBorrowParams struct {
	hasOpenNotional bool

	// 系数向量 (千分比)；Cancel 档复用 Initial 比例
	imfVec []int64
	mmfVec []int64

	// notionalVec 各借款资产的敞口 (micro USD)
	notionalVec []int64
}

// spotBorrows 遍历负余额资产做借款聚合
//
// totalRealizedPnL: 永续聚合算出的已实现盈亏合计。
// 交易盈亏以 0 号资产 (base/quote) 结算，所以在给
// 0 号资产定价之前要先并入这笔盈亏。
func spotBorrows(snap *Snapshot, opt factorOption, totalRealizedPnL int64) (spotBorrowParams, error) {
	var out spotBorrowParams
	n := snap.activeCollaterals()

	for i := 0; i < n; i++ {
		raw := snap.Account.Collateral[i]
		if raw >= 0 {
			continue
		}

		info := snap.Collaterals[i]
		accr := snap.Borrows[i]

		actual, err := CalcActualCollateral(raw, accr.SupplyMultiplier, accr.BorrowMultiplier)
		if err != nil {
			return spotBorrowParams{}, err
		}

		// 已实现盈亏结算进 0 号资产
		if i == 0 {
			actual, err = safemath.Add(actual, totalRealizedPnL)
			if err != nil {
				return spotBorrowParams{}, err
			}
		}

		price, ok := snap.Oracle.Lookup(info.OracleSymbol)
		if !ok {
			return spotBorrowParams{}, ErrPriceUnavailable
		}

		// notional = ceil(price * (-actual))，负债敞口向上取整
		neg, err := safemath.Neg(actual)
		if err != nil {
			return spotBorrowParams{}, err
		}
		notional, err := safemath.MulFixedCeil(price, neg, PricePrecision)
		if err != nil {
			return spotBorrowParams{}, err
		}
		if notional > 0 {
			out.hasOpenNotional = true
		}

		if err := out.pushFactors(info.Weight, opt); err != nil {
			return spotBorrowParams{}, err
		}
		out.notionalVec = append(out.notionalVec, notional)
	}

	return out, nil
}

// pushFactors 由资产权重派生借款保证金系数
//
//	factor = ceil(1000 * ratio / weight) - 1000
//
// ratio 是协议级的现货保证金要求 (Initial 1100‰ / Maint 1030‰)。
// weight = 0 是配置错误，直接以 ErrDivisionByZero 失败，
// 不做静默特判。
func (p *spotBorrowParams) pushFactors(weight int64, opt factorOption) error {
	switch opt {
	case factorImf, factorCancel:
		// Cancel 档复用 Initial 比例 (协议现状，保持不动)
		imf, err := spotFactor(SpotInitialMarginReq, weight)
		if err != nil {
			return err
		}
		p.imfVec = append(p.imfVec, imf)
	case factorMmf:
		mmf, err := spotFactor(SpotMaintMarginReq, weight)
		if err != nil {
			return err
		}
		p.mmfVec = append(p.mmfVec, mmf)
	case factorBoth:
		imf, err := spotFactor(SpotInitialMarginReq, weight)
		if err != nil {
			return err
		}
		p.imfVec = append(p.imfVec, imf)
		mmf, err := spotFactor(SpotMaintMarginReq, weight)
		if err != nil {
			return err
		}
		p.mmfVec = append(p.mmfVec, mmf)
	}
	return nil
}

// spotFactor factor = ceil(1000 * ratio / weight) - 1000
func spotFactor(ratio, weight int64) (int64, error) {
	num, err := safemath.Mul(Permille, ratio)
	if err != nil {
		return 0, err
	}
	q, err := safemath.CeilDiv(num, weight)
	if err != nil {
		return 0, err
	}
	return safemath.Sub(q, Permille)
}
