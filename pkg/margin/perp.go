// 文件: pkg/margin/perp.go
// 永续敞口聚合
//
// 按市场索引升序遍历账户的活跃持仓，串行折叠出:
// - 运行中的账户价值 (抵押 + 已实现盈亏 + 未实现盈亏 + 未结资金费)
// - 每个持仓的 (保证金系数, 名义敞口, 挂单最坏敞口) 三元组
//
// 索引顺序只为确定性 (运行值逐仓传递)，不含经济含义。

package margin

import (
	"math/big"

	"riskon.com/pkg/safemath"
)

// perpAccountParams 永续聚合输出
//
// 显式的折叠结果结构，而不是一把散落的局部变量:
// 每一步累加都可以作为纯函数单独测试。
type perpAccountParams struct {
	// totalAccValue 串行折叠后的账户价值
	totalAccValue int64

	// hasOpenNotional 任一持仓的挂单最坏敞口 > 0
	hasOpenNotional bool

	// totalRealizedPnL 所有持仓的已实现盈亏合计
	// 现货借款聚合会把它并入 0 号资产
	totalRealizedPnL int64

	// 系数向量 (按 factorOption 填充，千分比)
	imfVec []int64
	mmfVec []int64
	cmfVec []int64

	// 敞口向量 (micro USD)
	openNotionalVec []int64 // 挂单全部成交的最坏敞口
	notionalVec     []int64 // 当前持仓敞口
}

// perpParams 遍历活跃持仓做一次完整聚合
//
// collateral: 起始账户价值 (通常是加权抵押总值)
func perpParams(snap *Snapshot, collateral int64, opt factorOption) (perpAccountParams, error) {
	out := perpAccountParams{totalAccValue: collateral}
	n := snap.activeMarkets()

	for i := 0; i < n; i++ {
		pos := &snap.Account.Positions[i]
		if pos.IsEmpty() {
			continue
		}

		mark := snap.Marks[i].Price
		pm := snap.PerpMarkets[i]

		accVal, err := calcAccountValue(
			out.totalAccValue, mark, pos, snap.Funding[i], pm.AssetDecimals)
		if err != nil {
			return perpAccountParams{}, err
		}
		out.totalAccValue = accVal

		// 名义敞口 = ceil(|size| * mark)，风险永不低估
		absSize, err := safemath.Abs(pos.Size)
		if err != nil {
			return perpAccountParams{}, err
		}
		notional, err := safemath.MulFixedCeil(absSize, mark, PricePrecision)
		if err != nil {
			return perpAccountParams{}, err
		}

		openNotional, err := openPositionNotional(pos, mark)
		if err != nil {
			return perpAccountParams{}, err
		}
		if openNotional > 0 {
			out.hasOpenNotional = true
		}

		if err := out.pushFactors(pm.BaseImf, opt); err != nil {
			return perpAccountParams{}, err
		}
		out.openNotionalVec = append(out.openNotionalVec, openNotional)
		out.notionalVec = append(out.notionalVec, notional)

		out.totalRealizedPnL, err = safemath.Add(out.totalRealizedPnL, pos.RealizedPnL)
		if err != nil {
			return perpAccountParams{}, err
		}
	}

	return out, nil
}

// pushFactors 按档位从 BaseImf 派生保证金系数
//
//	Initial     = BaseImf
//	Maintenance = BaseImf / 2
//	Cancel      = BaseImf * 5 / 8
//
// 都是协议配置定义的小整数比例，用 checked 整数除法。
func (p *perpAccountParams) pushFactors(baseImf int64, opt factorOption) error {
	switch opt {
	case factorImf:
		p.imfVec = append(p.imfVec, baseImf)
	case factorMmf:
		mmf, err := safemath.Div(baseImf, 2)
		if err != nil {
			return err
		}
		p.mmfVec = append(p.mmfVec, mmf)
	case factorCancel:
		x, err := safemath.Mul(baseImf, 5)
		if err != nil {
			return err
		}
		cmf, err := safemath.Div(x, 8)
		if err != nil {
			return err
		}
		p.cmfVec = append(p.cmfVec, cmf)
	case factorBoth:
		p.imfVec = append(p.imfVec, baseImf)
		mmf, err := safemath.Div(baseImf, 2)
		if err != nil {
			return err
		}
		p.mmfVec = append(p.mmfVec, mmf)
	}
	return nil
}

// openPositionNotional 挂单全部成交时的最坏敞口
//
// 取 |size + coinOnBids| 与 |size - coinOnAsks| 的较大者:
// 买单全成会把仓位推向更多、卖单全成推向更空，
// 哪一侧更危险按哪一侧估。结果向上取整。
func openPositionNotional(pos *Position, mark int64) (int64, error) {
	up, err := safemath.Add(pos.Size, pos.CoinOnBids)
	if err != nil {
		return 0, err
	}
	up, err = safemath.Abs(up)
	if err != nil {
		return 0, err
	}

	down, err := safemath.Sub(pos.Size, pos.CoinOnAsks)
	if err != nil {
		return 0, err
	}
	down, err = safemath.Abs(down)
	if err != nil {
		return 0, err
	}

	return safemath.MulFixedCeil(safemath.Max(up, down), mark, PricePrecision)
}

// calcAccountValue 单个持仓对运行账户价值的折叠步骤
//
// 无持仓时只并入已实现盈亏；有持仓时再加上
// 未实现盈亏 (floor，价值永不高估) 和未结资金费。
func calcAccountValue(
	collateral, mark int64,
	pos *Position,
	marketFunding *big.Int,
	assetDecimals uint32,
) (int64, error) {
	if pos.Size == 0 {
		return safemath.Add(collateral, pos.RealizedPnL)
	}

	// 资金费结算: fundingDiff = 市场指数 - 持仓上次结算指数
	// unrealizedFunding = floor(size * (-fundingDiff) / 10^decimals)
	fundingDiff := new(big.Int).Sub(
		fundingIndex(marketFunding), fundingIndex(pos.FundingIndex))
	num := new(big.Int).Mul(
		big.NewInt(pos.Size), new(big.Int).Neg(fundingDiff))
	den := new(big.Int).Exp(
		big.NewInt(10), big.NewInt(int64(assetDecimals)), nil)
	q, err := safemath.FloorDivBig(num, den)
	if err != nil {
		return 0, err
	}
	unrealizedFunding, err := safemath.ToInt64(q)
	if err != nil {
		return 0, err
	}

	// 未实现盈亏，多空对称但都向下取整
	var unrealizedPnL int64
	if pos.Size > 0 {
		val, err := safemath.MulFixedFloor(pos.Size, mark, PricePrecision)
		if err != nil {
			return 0, err
		}
		bor, err := safemath.Neg(pos.NativePcTotal)
		if err != nil {
			return 0, err
		}
		unrealizedPnL, err = safemath.Sub(val, bor)
		if err != nil {
			return 0, err
		}
	} else {
		short, err := safemath.Neg(pos.Size)
		if err != nil {
			return 0, err
		}
		bor, err := safemath.MulFixedFloor(short, mark, PricePrecision)
		if err != nil {
			return 0, err
		}
		unrealizedPnL, err = safemath.Sub(pos.NativePcTotal, bor)
		if err != nil {
			return 0, err
		}
	}

	v, err := safemath.Add(collateral, pos.RealizedPnL)
	if err != nil {
		return 0, err
	}
	v, err = safemath.Add(v, unrealizedPnL)
	if err != nil {
		return 0, err
	}
	return safemath.Add(v, unrealizedFunding)
}
