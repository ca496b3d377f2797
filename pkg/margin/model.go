// 文件: pkg/margin/model.go
// 保证金引擎数据模型
//
// 【设计原则】
// 1. 所有金额/价格用 int64 定点数 (micro-unit, 1 整单位 = 10^6)
//    → 浮点数有精度问题，金融系统必须用定点数
// 2. 权重/费率用千分比 (permille, 1000 = 100%)
// 3. Snapshot 是某一时刻的只读视图：引擎只读不改，
//    同一次调用内不允许看到同一资产的两个价格

package margin

import (
	"encoding/hex"
	"math/big"
)

// =============================================================================
// 精度与协议常量
// =============================================================================

const (
	// PricePrecision 价格/金额精度因子
	// 所有金额存储为 int64，乘以 10^6
	// 例: 1.5 USD = 1_500_000
	PricePrecision = 1_000_000

	// Permille 千分比因子 (1000 = 100%)
	// 权重、保证金系数、清算费率都用这个刻度
	Permille = 1000

	// MaxMarkets 协议最大合约市场数
	MaxMarkets = 50

	// MaxCollaterals 协议最大抵押资产数
	MaxCollaterals = 25

	// SpotInitialMarginReq 现货借款的初始保证金要求 (千分比)
	// 1100 = 要求 110% 的抵押覆盖率
	SpotInitialMarginReq = 1100

	// SpotMaintMarginReq 现货借款的维持保证金要求 (千分比)
	// 1030 = 要求 103% 的抵押覆盖率
	SpotMaintMarginReq = 1030
)

// =============================================================================
// FractionType 保证金档位
// =============================================================================

// FractionType 要校验的保证金档位
//
// - Initial:     开仓档。挂单敞口也计入 (open notional)
// - Maintenance: 维持档。只看当前持仓敞口，跌破即可强平
// - Cancel:      撤单档。介于两者之间，跌破先撤单
type FractionType int8

const (
	FractionInitial FractionType = iota
	FractionMaintenance
	FractionCancel
)

func (f FractionType) String() string {
	switch f {
	case FractionInitial:
		return "INITIAL"
	case FractionMaintenance:
		return "MAINTENANCE"
	case FractionCancel:
		return "CANCEL"
	}
	return "UNKNOWN"
}

// factorOption 内部系数选择
// both 模式在一次遍历里同时算出 Initial 和 Maintenance 系数，
// 清算规模估算需要用到
type factorOption int8

const (
	factorImf factorOption = iota
	factorMmf
	factorCancel
	factorBoth
)

// =============================================================================
// AccountKey 账户引用
// =============================================================================

// AccountKey 不透明的 32 字节账户引用
//
// 只做相等比较，不做排序、不做数值运算。
// 全零是"空槽"哨兵：固定容量数组里未使用的位置。
type AccountKey [32]byte

// IsZero 是否为空槽哨兵
func (k AccountKey) IsZero() bool {
	return k == AccountKey{}
}

// String 十六进制表示，用于日志和存储键
func (k AccountKey) String() string {
	return hex.EncodeToString(k[:])
}

// =============================================================================
// 协议配置 (per snapshot 不可变)
// =============================================================================

// CollateralConfig 抵押资产配置
type CollateralConfig struct {
	// Asset 资产标识 (如 "BTC")
	Asset string

	// OracleSymbol 预言机价格表里的符号
	OracleSymbol string

	// Weight 抵押权重 (千分比)
	// 计入抵押价值时按 Weight/1000 打折
	// 协议不变量: Weight > 0
	Weight int64

	// LiqFee 清算费率 (千分比)
	LiqFee int64
}

// PerpMarketConfig 永续市场配置
type PerpMarketConfig struct {
	// Symbol 市场标识 (如 "BTC-PERP")
	Symbol string

	// AssetDecimals 标的资产小数位数
	AssetDecimals uint32

	// BaseImf 基础初始保证金系数 (千分比)
	// 维持系数 = BaseImf / 2
	// 撤单系数 = BaseImf * 5 / 8
	BaseImf int64
}

// BorrowAccrual 计息倍率 (per asset, per snapshot)
//
// 正余额按 SupplyMultiplier 计息 (出借方)，
// 负余额按 BorrowMultiplier 计息 (借入方)。
// 两者都是 micro 刻度 (1_000_000 = 1.0)，只增不减。
type BorrowAccrual struct {
	SupplyMultiplier int64
	BorrowMultiplier int64
}

// MarkSnapshot 标记价格快照 (per market)
type MarkSnapshot struct {
	// Price 标记价格 (micro 刻度)
	Price int64
}

// =============================================================================
// 账户数据 (per account, 只读输入)
// =============================================================================

// Position 单个市场上的持仓
type Position struct {
	// Key 持仓账户引用，全零表示空槽
	Key AccountKey

	// Size 有符号持仓数量 (标的资产 native 单位，负 = 空头)
	Size int64

	// NativePcTotal 与持仓绑定的计价货币余额
	NativePcTotal int64

	// RealizedPnL 已实现盈亏累计
	RealizedPnL int64

	// CoinOnBids / CoinOnAsks 买卖两侧挂单中的数量
	CoinOnBids int64
	CoinOnAsks int64

	// FundingIndex 该持仓上次结算到的资金费率指数
	// 宽整数单调累加器，nil 视为 0
	FundingIndex *big.Int
}

// IsEmpty 空槽判断
func (p *Position) IsEmpty() bool {
	return p.Key.IsZero()
}

// AccountSnapshot 单个账户的时点快照
//
// Collateral[i] 是第 i 个抵押资产的原始余额 (正 = 存款, 负 = 借款)，
// Positions[i] 是第 i 个市场上的持仓。
// 两个切片都只有前 active count 个条目有意义。
type AccountSnapshot struct {
	Collateral []int64
	Positions  []Position
}

// =============================================================================
// Snapshot 完整评估输入
// =============================================================================

// Snapshot 一次评估所需的全部只读数据
//
// 由外部协作方 (RPC 拉取、二进制解码) 物化好之后传入。
// 引擎内部绝不修改任何字段，多个账户评估可以共享同一份
// 协议配置与价格缓存并发执行。
type Snapshot struct {
	Account AccountSnapshot

	// 协议配置
	Collaterals []CollateralConfig
	PerpMarkets []PerpMarketConfig

	// 快照缓存
	Borrows []BorrowAccrual
	Oracle  *OracleSnapshot
	Marks   []MarkSnapshot

	// Funding[i] 第 i 个市场当前的资金费率指数 (nil 视为 0)
	Funding []*big.Int

	// 活跃数量: 固定容量数组里只有前 N 个槽位有效
	ActiveCollaterals int
	ActiveMarkets     int
}

// activeMarkets 有效市场数，按各切片长度收紧，避免越界
func (s *Snapshot) activeMarkets() int {
	n := s.ActiveMarkets
	if n > MaxMarkets {
		n = MaxMarkets
	}
	for _, l := range []int{
		len(s.Account.Positions),
		len(s.PerpMarkets),
		len(s.Marks),
		len(s.Funding),
	} {
		if l < n {
			n = l
		}
	}
	return n
}

// activeCollaterals 有效抵押资产数，同上
func (s *Snapshot) activeCollaterals() int {
	n := s.ActiveCollaterals
	if n > MaxCollaterals {
		n = MaxCollaterals
	}
	for _, l := range []int{
		len(s.Account.Collateral),
		len(s.Collaterals),
		len(s.Borrows),
	} {
		if l < n {
			n = l
		}
	}
	return n
}

// fundingIndex 空指针按 0 处理
func fundingIndex(x *big.Int) *big.Int {
	if x == nil {
		return big.NewInt(0)
	}
	return x
}
