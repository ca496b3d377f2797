package liquidation

import (
	"math"
	"time"

	"riskon.com/pkg/margin"
)

// =============================================================================
// 风险等级定义
// =============================================================================

// RiskLevel 风险等级枚举
//
// 清算服务根据账户的保证金占用率，将账户分入不同的等级：
// - 安全区：不需要特别关注
// - 预警区：需要定期检查
// - 危险区：需要更频繁检查
// - 临界区：随时可能穿仓，需要价格触发
// - 清算区：维持保证金检查已失败，立即执行清算
type RiskLevel int

const (
	// RiskLevelSafe 安全区: 占用率 < 70%
	// 账户处于安全状态，不需要进入任何监控索引
	RiskLevelSafe RiskLevel = iota

	// RiskLevelWarning 预警区: 70% <= 占用率 < 80%
	// 账户风险偏高，需要进入 Level 1 索引，每 5 秒检查一次
	RiskLevelWarning

	// RiskLevelDanger 危险区: 80% <= 占用率 < 90%
	// 账户风险较高，需要进入 Level 2 索引，每 2 秒检查一次
	RiskLevelDanger

	// RiskLevelCritical 临界区: 90% <= 占用率 < 100%
	// 账户随时可能跌破维持线，需要进入 Level 3 索引（价格触发器）
	RiskLevelCritical

	// RiskLevelLiquidate 清算区: 占用率 >= 100%
	// 维持保证金检查失败，账户必须立即清算
	RiskLevelLiquidate
)

// String 返回风险等级的字符串表示（用于日志打印）
func (l RiskLevel) String() string {
	switch l {
	case RiskLevelSafe:
		return "SAFE"
	case RiskLevelWarning:
		return "WARNING"
	case RiskLevelDanger:
		return "DANGER"
	case RiskLevelCritical:
		return "CRITICAL"
	case RiskLevelLiquidate:
		return "LIQUIDATE"
	default:
		return "UNKNOWN"
	}
}

// =============================================================================
// 风险阈值常量
// =============================================================================

const (
	// ThresholdWarning 预警阈值: 70%
	ThresholdWarning = 0.70

	// ThresholdDanger 危险阈值: 80%
	ThresholdDanger = 0.80

	// ThresholdCritical 临界阈值: 90%
	ThresholdCritical = 0.90

	// ThresholdLiquidate 清算阈值: 100%
	// 占用率 >= 1.0 等价于维持保证金检查的严格不等式失败
	ThresholdLiquidate = 1.00
)

// =============================================================================
// 账户风险数据
// =============================================================================

// AccountRisk 账户风险数据
//
// 这是存储在各级索引中的核心数据结构。
// 包含了判断账户是否需要升降级、是否需要清算的所有信息。
//
// 设计原则：
// 1. 使用值类型而非指针，减少 GC 压力
// 2. 只包含必要字段，避免数据冗余
type AccountRisk struct {
	// ========== 身份信息 ==========

	// Key 账户引用
	Key margin.AccountKey

	// ========== 风险指标 ==========

	// Ratio 当前保证金占用率
	// 计算公式: 加权风险敞口 / 可用预算
	// 越高越危险，>= 1.0 意味着维持保证金检查失败
	Ratio float64

	// AccountValue 账户权益（micro 计价单位）
	AccountValue int64

	// Budget 维持保证金预算（千分比加权后）
	Budget int64

	// WeightedSum 加权风险敞口（千分比加权后）
	WeightedSum int64

	// ========== 元数据 ==========

	// Level 当前所处的风险等级
	Level RiskLevel

	// UpdatedAt 最后更新时间（Unix 纳秒时间戳）
	// 使用纳秒而非 time.Time，避免序列化开销
	UpdatedAt int64

	// ========== 持仓信息摘要 ==========

	// Symbols 账户持仓涉及的市场列表
	// 用于：行情变化时，快速判断该账户是否受影响
	Symbols []string
}

// NewAccountRisk 创建新的账户风险数据
func NewAccountRisk(key margin.AccountKey) AccountRisk {
	return AccountRisk{
		Key:       key,
		Symbols:   make([]string, 0),
		UpdatedAt: time.Now().UnixNano(),
	}
}

// =============================================================================
// 清算执行相关
// =============================================================================

// LiquidationTask 清算任务
//
// 当账户进入清算区时，会创建一个清算任务。
// 任务会被放入队列，由 Worker Pool 处理。
type LiquidationTask struct {
	// TaskID 任务唯一标识（snowflake）
	TaskID int64

	// Key 要清算的账户
	Key margin.AccountKey

	// Ratio 触发时的占用率
	Ratio float64

	// AssetIndex 被接管抵押品的资产下标
	AssetIndex int

	// QuoteIndex 偿还负债的计价资产下标
	QuoteIndex int

	// HasOpenOrders 账户是否还挂着未成交委托
	// 有挂单时执行器需要先撤单再平仓
	HasOpenOrders bool

	// Size 预估清算规模
	Size margin.LiquidationSize

	// CreatedAt 任务创建时间
	CreatedAt time.Time
}

// LiquidationResult 清算执行结果
type LiquidationResult struct {
	// TaskID 对应的任务
	TaskID int64

	// Key 被清算的账户
	Key margin.AccountKey

	// Success 是否成功
	Success bool

	// Error 错误信息（如果失败）
	Error error

	// Attempts 总共尝试的次数
	Attempts int

	// ExecutedAt 执行时间
	ExecutedAt time.Time
}

// =============================================================================
// 辅助函数
// =============================================================================

// CalculateRiskLevel 根据占用率计算风险等级
func CalculateRiskLevel(ratio float64) RiskLevel {
	switch {
	case ratio >= ThresholdLiquidate:
		return RiskLevelLiquidate
	case ratio >= ThresholdCritical:
		return RiskLevelCritical
	case ratio >= ThresholdDanger:
		return RiskLevelDanger
	case ratio >= ThresholdWarning:
		return RiskLevelWarning
	default:
		return RiskLevelSafe
	}
}

// RiskRatio 把保证金检查结果折算为占用率
//
// 检查本身是严格不等式（预算 > 加权敞口），占用率是它的连续化：
// - 没有敞口: 0，账户天然安全
// - 预算 <= 0 但有敞口: +Inf，必然处于清算区
// - 其他: 加权敞口 / 预算，>= 1.0 即检查失败
func RiskRatio(report *margin.MarginReport) float64 {
	if report.Satisfied && report.WeightedSum <= 0 {
		return 0
	}
	var ratio float64
	if report.Budget <= 0 {
		ratio = math.Inf(1)
	} else {
		ratio = float64(report.WeightedSum) / float64(report.Budget)
	}
	// 占用率等级必须和严格不等式检查给出同一个结论
	if !report.Satisfied && ratio < ThresholdLiquidate {
		ratio = ThresholdLiquidate
	}
	return ratio
}
