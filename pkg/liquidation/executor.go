package liquidation

import (
	"context"
	"log"
	"time"
)

// =============================================================================
// RetryExecutor - 带重试的执行器包装
// =============================================================================

const (
	// DefaultMaxAttempts 默认最大尝试次数
	DefaultMaxAttempts = 5

	// DefaultRetryDelay 默认重试间隔
	DefaultRetryDelay = 300 * time.Millisecond
)

// RetryExecutor 带重试的清算执行器
//
// 清算指令的提交经常因为临时原因失败（节点拥堵、价格瞬时偏移），
// 直接放弃会让账户在下一轮扫描前继续恶化。
// RetryExecutor 包装任意 Executor，失败后按固定间隔重试。
type RetryExecutor struct {
	inner       Executor
	maxAttempts int
	delay       time.Duration
}

// NewRetryExecutor 创建重试执行器
func NewRetryExecutor(inner Executor, maxAttempts int, delay time.Duration) *RetryExecutor {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	return &RetryExecutor{
		inner:       inner,
		maxAttempts: maxAttempts,
		delay:       delay,
	}
}

// Execute 执行清算，失败后重试
//
// 退出条件：成功、尝试次数耗尽、或 ctx 被取消。
// Attempts 字段记录实际尝试的总次数。
func (r *RetryExecutor) Execute(ctx context.Context, task LiquidationTask) LiquidationResult {
	var result LiquidationResult

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		result = r.inner.Execute(ctx, task)
		result.Attempts = attempt

		if result.Success {
			return result
		}

		log.Printf("[RetryExecutor] Attempt %d/%d failed: task=%d, account=%s, err=%v",
			attempt, r.maxAttempts, task.TaskID, task.Key, result.Error)

		if attempt == r.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			result.Error = ctx.Err()
			return result
		case <-time.After(r.delay):
		}
	}

	return result
}

var _ Executor = (*RetryExecutor)(nil)
