// 文件路径: pkg/liquidation/engine.go

package liquidation

import (
	"context"
	"log"
	"sync"
	"time"

	"riskon.com/pkg/margin"
)

// =============================================================================
// 配置常量
// =============================================================================

const (
	// Level 检查间隔
	CheckIntervalWarning  = 5 * time.Second        // Level 1: 每 5 秒
	CheckIntervalDanger   = 2 * time.Second        // Level 2: 每 2 秒
	CheckIntervalCritical = 500 * time.Millisecond // Level 3: 每 500ms

	// 清算执行器配置
	LiquidationWorkers   = 10  // Worker 数量
	LiquidationQueueSize = 100 // 任务队列大小

	// DefaultSizeFudge 清算规模的安全放大系数
	// 平仓略多于刚好达标的量，避免价格继续移动时立刻再次跌破
	DefaultSizeFudge = 1.01
)

// =============================================================================
// Engine 清算引擎
// =============================================================================

// Engine 清算引擎
//
// 这是整个清算服务的核心入口，负责:
// 1. 管理风险等级索引
// 2. 启动和协调扫描器与各级检查器
// 3. 处理标记价格变化（针对 Level 3 账户）
// 4. 管理清算任务队列和 Worker Pool
//
// 架构:
//
//	┌─────────────────────────────────────────────────┐
//	│                    Engine                       │
//	│                                                 │
//	│  ┌─────────┐  ┌─────────┐  ┌─────────┐         │
//	│  │ Scanner │  │ Checkers│  │Executor │         │
//	│  └────┬────┘  └────┬────┘  └────┬────┘         │
//	│       │            │            │               │
//	│       └────────────┴────────────┘               │
//	│                    │                            │
//	│              RiskLevelIndex                     │
//	└─────────────────────────────────────────────────┘
type Engine struct {
	// ========== 核心组件 ==========

	// index: 风险等级索引
	index *RiskLevelIndex

	// scanner: 全量扫描器
	scanner *Scanner

	// provider: 账户数据提供者
	provider AccountProvider

	// ========== 清算执行 ==========

	// liquidationQueue: 清算任务队列
	liquidationQueue chan LiquidationTask

	// executor: 清算执行器接口（由外部实现）
	executor Executor

	// publisher: 清算事件发布器（可选）
	publisher Publisher

	// recorder: 清算记录持久化（可选）
	recorder Recorder

	// sizeFudge: 清算规模放大系数
	sizeFudge float64

	// ========== 生命周期 ==========

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
}

// Executor 清算执行器接口
//
// 由外部实现，负责真正把清算指令提交出去（撤单、接管仓位、转移抵押品）。
// Engine 不关心清算如何执行，只负责调度。
type Executor interface {
	// Execute 执行清算
	Execute(ctx context.Context, task LiquidationTask) LiquidationResult
}

// =============================================================================
// 引擎生命周期
// =============================================================================

// NewEngine 创建清算引擎
func NewEngine(provider AccountProvider, executor Executor) *Engine {
	index := NewRiskLevelIndex()
	scanner := NewScanner(index, provider)

	e := &Engine{
		index:            index,
		scanner:          scanner,
		provider:         provider,
		liquidationQueue: make(chan LiquidationTask, LiquidationQueueSize),
		executor:         executor,
		sizeFudge:        DefaultSizeFudge,
		stopCh:           make(chan struct{}),
	}

	// 扫描器发现清算区账户时，直接进队列
	scanner.SetLiquidateCallback(e.triggerLiquidation)

	return e
}

// SetPublisher 设置清算事件发布器
func (e *Engine) SetPublisher(p Publisher) {
	e.publisher = p
}

// SetRecorder 设置清算记录持久化
func (e *Engine) SetRecorder(r Recorder) {
	e.recorder = r
}

// SetSizeFudge 设置清算规模放大系数
func (e *Engine) SetSizeFudge(f float64) {
	if f >= 1.0 {
		e.sizeFudge = f
	}
}

// Scanner 暴露内部扫描器（用于调整扫描参数）
func (e *Engine) Scanner() *Scanner {
	return e.scanner
}

// Index 暴露风险等级索引（只读用途）
func (e *Engine) Index() *RiskLevelIndex {
	return e.index
}

// Start 启动引擎
//
// 会启动以下组件:
// 1. 全量扫描器 (每 5 秒)
// 2. Level 1 检查器 (每 5 秒)
// 3. Level 2 检查器 (每 2 秒)
// 4. Level 3 检查器 (每 500ms)
// 5. 清算执行 Worker Pool
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}

	e.running = true
	e.stopCh = make(chan struct{})

	e.scanner.Start()

	e.startChecker(RiskLevelWarning, CheckIntervalWarning)
	e.startChecker(RiskLevelDanger, CheckIntervalDanger)
	e.startChecker(RiskLevelCritical, CheckIntervalCritical)

	e.startWorkers()

	log.Println("[Engine] Started")
	return nil
}

// Stop 停止引擎
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}

	// 队列永不 close: 检查器/价格回调可能在停机瞬间还在入队，
	// 向已关闭 channel 发送会 panic。Worker 通过 stopCh 退出，
	// 停机时未消费的任务丢弃，下一轮扫描会重新发现这些账户。
	close(e.stopCh)
	e.scanner.Stop()
	e.wg.Wait()

	e.running = false
	log.Println("[Engine] Stopped")
}

// =============================================================================
// 检查器
// =============================================================================

// startChecker 启动指定等级的检查器
func (e *Engine) startChecker(level RiskLevel, interval time.Duration) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runChecker(level, interval)
	}()
	log.Printf("[Engine] Checker started: level=%s, interval=%v", level, interval)
}

// runChecker 检查器主循环
//
// 定期检查指定等级的账户，判断是否需要升降级或清算
func (e *Engine) runChecker(level RiskLevel, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.checkLevel(level)
		}
	}
}

// checkLevel 检查指定等级的所有账户
func (e *Engine) checkLevel(level RiskLevel) {
	ctx := context.Background()

	accounts := e.index.GetByLevel(level)
	if len(accounts) == 0 {
		return
	}

	log.Printf("[Checker] Checking level=%s, accounts=%d", level, len(accounts))

	now := time.Now().UnixNano()
	for _, acct := range accounts {
		snap, err := e.provider.GetSnapshot(ctx, acct.Key)
		if err != nil {
			log.Printf("[Checker] Failed to get snapshot for account %s: %v", acct.Key, err)
			continue
		}

		fresh, err := EvaluateAccount(acct.Key, snap, now)
		if err != nil {
			log.Printf("[Checker] Failed to evaluate account %s: %v", acct.Key, err)
			continue
		}

		e.handleLevelChange(acct, fresh)
	}
}

// handleLevelChange 处理账户等级变化
func (e *Engine) handleLevelChange(old AccountRisk, fresh AccountRisk) {
	oldLevel := old.Level
	newLevel := fresh.Level

	if newLevel == oldLevel {
		// 等级没变，只更新数据
		e.index.UpdateAccount(fresh)
		return
	}

	log.Printf("[Checker] Account %s level changed: %s -> %s (ratio=%.4f)",
		old.Key, oldLevel, newLevel, fresh.Ratio)

	if newLevel == RiskLevelLiquidate {
		// 维持保证金检查失败，进入清算队列
		e.triggerLiquidation(fresh)
		// 从索引中移除
		e.index.UpdateAccount(AccountRisk{Key: old.Key, Level: RiskLevelSafe})
	} else if newLevel == RiskLevelSafe {
		// 脱离危险，从索引中移除
		e.index.UpdateAccount(AccountRisk{Key: old.Key, Level: RiskLevelSafe})
	} else {
		e.index.UpdateAccount(fresh)
	}
}

// =============================================================================
// 清算触发
// =============================================================================

// triggerLiquidation 为清算区账户构建任务并入队
func (e *Engine) triggerLiquidation(data AccountRisk) {
	task, err := e.buildTask(context.Background(), data)
	if err != nil {
		log.Printf("[Engine] Failed to build liquidation task: account=%s, err=%v",
			data.Key, err)
		return
	}

	// 非阻塞发送到队列
	select {
	case e.liquidationQueue <- task:
		log.Printf("[Engine] Liquidation task queued: task=%d, account=%s, ratio=%.4f",
			task.TaskID, data.Key, data.Ratio)
	default:
		// 队列满了，丢弃并告警；账户会在下一轮扫描中再次进入清算区
		log.Printf("[Engine] WARNING: Liquidation queue full, task dropped: account=%s",
			data.Key)
	}
}

// buildTask 根据最新快照构建清算任务
//
// 规模预估失败不阻塞清算：任务仍然入队，由执行器自行决定规模。
func (e *Engine) buildTask(ctx context.Context, data AccountRisk) (LiquidationTask, error) {
	snap, err := e.provider.GetSnapshot(ctx, data.Key)
	if err != nil {
		return LiquidationTask{}, err
	}

	task := LiquidationTask{
		TaskID:    GenerateTaskID(),
		Key:       data.Key,
		Ratio:     data.Ratio,
		CreatedAt: time.Now(),
	}

	if hasOrders, err := margin.HasOpenOrders(snap); err == nil {
		task.HasOpenOrders = hasOrders
	}

	asset, quote, ok := chooseCollateralPair(snap)
	if !ok {
		return task, nil
	}
	task.AssetIndex = asset
	task.QuoteIndex = quote

	size, err := margin.EstimateLiquidationSize(snap, asset, quote, e.sizeFudge)
	if err != nil {
		log.Printf("[Engine] Size estimate failed: account=%s, asset=%d, quote=%d, err=%v",
			data.Key, asset, quote, err)
		return task, nil
	}
	task.Size = size

	return task, nil
}

// chooseCollateralPair 选择清算时接管的抵押资产和偿还的计价资产
//
// 计价资产固定为下标 0；接管资产选择加权价值最大的正余额抵押品。
// 这和"从价值最高的抵押品开始扣"的直觉一致，也让折价后的回收最划算。
func chooseCollateralPair(snap *margin.Snapshot) (asset, quote int, ok bool) {
	vec, err := margin.ActualCollateralVec(snap, true)
	if err != nil {
		return 0, 0, false
	}
	if len(vec) == 0 {
		return 0, 0, false
	}

	best := 0
	for i, v := range vec {
		if v > vec[best] {
			best = i
		}
	}
	if vec[best] <= 0 {
		return 0, 0, false
	}
	return best, 0, true
}

// =============================================================================
// 清算执行 Worker Pool
// =============================================================================

// startWorkers 启动 Worker Pool
func (e *Engine) startWorkers() {
	for i := 0; i < LiquidationWorkers; i++ {
		e.wg.Add(1)
		go func(workerID int) {
			defer e.wg.Done()
			e.runWorker(workerID)
		}(i)
	}
	log.Printf("[Engine] %d liquidation workers started", LiquidationWorkers)
}

// runWorker 单个 Worker 的主循环
func (e *Engine) runWorker(workerID int) {
	for {
		select {
		case <-e.stopCh:
			return
		case task := <-e.liquidationQueue:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

			log.Printf("[Worker-%d] Processing liquidation: task=%d, account=%s",
				workerID, task.TaskID, task.Key)

			result := e.executor.Execute(ctx, task)

			if result.Success {
				log.Printf("[Worker-%d] Liquidation success: task=%d, account=%s, attempts=%d",
					workerID, task.TaskID, task.Key, result.Attempts)
			} else {
				log.Printf("[Worker-%d] Liquidation failed: task=%d, account=%s, error=%v",
					workerID, task.TaskID, task.Key, result.Error)
			}

			e.afterExecute(ctx, task, result)
			cancel()
		}
	}
}

// afterExecute 执行后的发布与落库，失败不影响主流程
func (e *Engine) afterExecute(ctx context.Context, task LiquidationTask, result LiquidationResult) {
	if e.publisher != nil {
		if err := e.publisher.PublishLiquidation(NewLiquidationEvent(task, result)); err != nil {
			log.Printf("[Engine] Failed to publish liquidation event: task=%d, err=%v",
				task.TaskID, err)
		}
	}

	if e.recorder != nil {
		if err := e.recorder.Save(ctx, NewLiquidationRecord(task, result)); err != nil {
			log.Printf("[Engine] Failed to save liquidation record: task=%d, err=%v",
				task.TaskID, err)
		}
	}
}

// =============================================================================
// 行情事件处理 (用于 Level 3 的价格触发)
// =============================================================================

// OnPriceChange 标记价格变化事件处理
//
// 由行情系统调用，当价格变化时检查 Level 3 账户
// 这实现了毫秒级的清算触发
func (e *Engine) OnPriceChange(symbol string, price int64) {
	keys := e.index.GetAccountsBySymbol(symbol)
	if len(keys) == 0 {
		return
	}

	ctx := context.Background()
	now := time.Now().UnixNano()

	for _, key := range keys {
		// 只检查 Level 3 (Critical) 账户
		acct, ok := e.index.GetAccount(key)
		if !ok || acct.Level != RiskLevelCritical {
			continue
		}

		snap, err := e.provider.GetSnapshot(ctx, key)
		if err != nil {
			continue
		}

		fresh, err := EvaluateAccount(key, snap, now)
		if err != nil {
			continue
		}

		if fresh.Level == RiskLevelLiquidate {
			log.Printf("[Engine] Price trigger liquidation: account=%s, symbol=%s, price=%d",
				key, symbol, price)
			e.triggerLiquidation(fresh)
			e.index.UpdateAccount(AccountRisk{Key: key, Level: RiskLevelSafe})
		}
	}
}

// =============================================================================
// 监控接口
// =============================================================================

// GetStats 获取引擎统计信息
func (e *Engine) GetStats() EngineStats {
	return EngineStats{
		TotalHighRiskAccounts: e.index.TotalCount(),
		WarningAccounts:       len(e.index.GetByLevel(RiskLevelWarning)),
		DangerAccounts:        len(e.index.GetByLevel(RiskLevelDanger)),
		CriticalAccounts:      len(e.index.GetByLevel(RiskLevelCritical)),
		QueuedTasks:           len(e.liquidationQueue),
	}
}

// EngineStats 引擎统计信息
type EngineStats struct {
	TotalHighRiskAccounts int
	WarningAccounts       int
	DangerAccounts        int
	CriticalAccounts      int
	QueuedTasks           int
}
