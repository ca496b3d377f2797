// 文件: pkg/margin/orders.go
// 挂单敞口排名
//
// 清算目标选择的前置步骤: 找出挂单敞口最大的市场。
// "没有显著挂单" 是合法的空结果，不是错误；
// "根本没有持仓" 才是错误 (ErrNoPositions)。

package margin

import "riskon.com/pkg/safemath"

// LargestOpenOrder 挂单敞口最大的市场
//
// 每个活跃持仓计算 exposure = max(coinOnBids, coinOnAsks) * mark，
// 返回 (市场索引, 是否存在显著挂单, 错误)。
//
//   - 零活跃持仓          → ErrNoPositions
//   - 有持仓但敞口全为 0  → (0, false, nil)
//   - 否则                → (最大敞口的市场索引, true, nil)
func LargestOpenOrder(snap *Snapshot) (int, bool, error) {
	n := snap.activeMarkets()

	bestIdx := -1
	var bestExposure int64
	seen := 0

	for i := 0; i < n; i++ {
		pos := &snap.Account.Positions[i]
		if pos.IsEmpty() {
			continue
		}
		seen++

		qty := safemath.Max(pos.CoinOnBids, pos.CoinOnAsks)
		exposure, err := safemath.MulFixedCeil(qty, snap.Marks[i].Price, PricePrecision)
		if err != nil {
			return 0, false, err
		}

		if bestIdx < 0 || exposure > bestExposure {
			bestIdx = i
			bestExposure = exposure
		}
	}

	if seen == 0 {
		return 0, false, ErrNoPositions
	}
	if bestExposure == 0 {
		return 0, false, nil
	}
	return bestIdx, true, nil
}

// HasOpenOrders 账户是否存在显著挂单
func HasOpenOrders(snap *Snapshot) (bool, error) {
	_, ok, err := LargestOpenOrder(snap)
	if err != nil {
		return false, err
	}
	return ok, nil
}
