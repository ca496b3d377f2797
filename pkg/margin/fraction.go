// 文件: pkg/margin/fraction.go
// 保证金档位校验
//
// 把永续聚合和现货借款聚合的系数/敞口向量拼接
// (永续在前，现货追加)，做一次点积，与保证金预算比较。
//
// 【边界语义】预算 == 加权和 判为不达标。
// 这个不对称性决定了账户在临界点上是否可被撤单/清算，
// 必须精确保持。

package margin

import "riskon.com/pkg/safemath"

// MarginReport 一次档位校验的完整输出
//
// Satisfied 是最终结论；其余字段是中间量，
// 服务层用它们做风险分级与持久化。
type MarginReport struct {
	// Satisfied 是否满足该档位要求
	Satisfied bool

	// HasOpenNotional 是否存在任何敞口
	// false 时 Satisfied 恒为 true (没仓位就没什么可保证的)
	HasOpenNotional bool

	// AccountValue 折叠后的账户价值 (micro USD)
	AccountValue int64

	// TotalRealizedPnL 已实现盈亏合计
	TotalRealizedPnL int64

	// Budget 保证金预算 (千分比刻度: 价值 * 1000)
	Budget int64

	// WeightedSum Σ factor_i * notional_i
	WeightedSum int64
}

// CheckFractionRequirement 校验账户是否满足指定保证金档位
//
// weightedCollateral: 加权抵押总值 (TotalCollateral(snap, true))，
// 作为永续聚合的起始账户价值。
//
// 档位差异:
//   - Initial / Cancel: 预算 = min(账户价值, 抵押+已实现盈亏) * 1000，
//     点积用挂单最坏敞口 (open notional)
//   - Maintenance: 预算 = 账户价值 * 1000，
//     点积用当前持仓敞口 (维持档看现实风险，不看挂单)
func CheckFractionRequirement(snap *Snapshot, ft FractionType, weightedCollateral int64) (MarginReport, error) {
	var opt factorOption
	switch ft {
	case FractionInitial:
		opt = factorImf
	case FractionMaintenance:
		opt = factorMmf
	default:
		opt = factorCancel
	}

	pp, err := perpParams(snap, weightedCollateral, opt)
	if err != nil {
		return MarginReport{}, err
	}
	sb, err := spotBorrows(snap, opt, pp.totalRealizedPnL)
	if err != nil {
		return MarginReport{}, err
	}

	report := MarginReport{
		HasOpenNotional:  pp.hasOpenNotional || sb.hasOpenNotional,
		AccountValue:     pp.totalAccValue,
		TotalRealizedPnL: pp.totalRealizedPnL,
	}

	// 无敞口 → 平凡满足，任何档位都 true
	if !report.HasOpenNotional {
		report.Satisfied = true
		return report, nil
	}

	var factors, notionals []int64
	switch ft {
	case FractionInitial:
		factors = concat(pp.imfVec, sb.imfVec)
		notionals = concat(pp.openNotionalVec, sb.notionalVec)
		report.Budget, err = openBudget(pp.totalAccValue, weightedCollateral, pp.totalRealizedPnL)
	case FractionMaintenance:
		factors = concat(pp.mmfVec, sb.mmfVec)
		notionals = concat(pp.notionalVec, sb.notionalVec)
		report.Budget, err = safemath.Mul(pp.totalAccValue, Permille)
	case FractionCancel:
		// Cancel 档: 系数用 5/8 派生值，但现货侧复用 Initial 系数
		factors = concat(pp.cmfVec, sb.imfVec)
		notionals = concat(pp.openNotionalVec, sb.notionalVec)
		report.Budget, err = openBudget(pp.totalAccValue, weightedCollateral, pp.totalRealizedPnL)
	}
	if err != nil {
		return MarginReport{}, err
	}

	report.WeightedSum, err = calcWeightedSum(factors, notionals)
	if err != nil {
		return MarginReport{}, err
	}

	// 严格大于: 恰好相等 = 不达标
	report.Satisfied = report.Budget > report.WeightedSum
	return report, nil
}

// openBudget Initial/Cancel 档预算 = min(accValue, col + realizedPnL) * 1000
func openBudget(accValue, col, realizedPnL int64) (int64, error) {
	adj, err := safemath.Add(col, realizedPnL)
	if err != nil {
		return 0, err
	}
	return safemath.Mul(safemath.Min(accValue, adj), Permille)
}

// calcWeightedSum 点积 Σ factor_i * notional_i
// 每一项和累加都是 checked；没有额外取整
func calcWeightedSum(factors, notionals []int64) (int64, error) {
	var sum int64
	for i, f := range factors {
		term, err := safemath.Mul(f, notionals[i])
		if err != nil {
			return 0, err
		}
		sum, err = safemath.Add(sum, term)
		if err != nil {
			return 0, err
		}
	}
	return sum, nil
}

func concat(a, b []int64) []int64 {
	out := make([]int64, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
