// 文件: pkg/margin/errors.go
// 错误分类
//
// 四类错误都是"终态"：本次调用直接失败，没有局部恢复。
// 调用方自行决定是跳过该账户、换一份新快照重试、还是告警。
// 注意: "无敞口" 和 "无显著挂单" 是合法结果，不走错误通道。

package margin

import (
	"errors"

	"riskon.com/pkg/safemath"
)

var (
	// ErrOverflow 任何一步 checked 运算越界
	// 与 safemath 共用同一个哨兵，方便 errors.Is 贯穿判断
	ErrOverflow = safemath.ErrOverflow

	// ErrDivisionByZero 除零 (典型: 权重为 0 的配置错误)
	ErrDivisionByZero = safemath.ErrDivisionByZero

	// ErrPriceUnavailable 需要定价的非零余额资产查不到预言机价格
	ErrPriceUnavailable = errors.New("margin: oracle price unavailable")

	// ErrNoPositions 对零活跃持仓的账户做挂单排名
	ErrNoPositions = errors.New("margin: account has no positions")

	// ErrBadLiquidationPair 清算资产对非法 (索引越界或分母退化)
	ErrBadLiquidationPair = errors.New("margin: invalid liquidation pair")
)
