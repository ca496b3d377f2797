package liquidation

import (
	"context"
	"encoding/binary"
	"log"
	"sync"
	"time"

	"riskon.com/pkg/margin"
)

// =============================================================================
// 配置常量
// =============================================================================

const (
	// DefaultScanInterval 默认全量扫描间隔
	DefaultScanInterval = 5 * time.Second

	// DefaultNumShards 默认分片数量
	// 根据 CPU 核数调整，通常设为核数的 1-2 倍
	DefaultNumShards = 4

	// DefaultShardCapacity 每个分片 Map 的预分配容量
	DefaultShardCapacity = 50000
)

// =============================================================================
// 对象池（优化内存分配）
// =============================================================================

// shardResultPool 分片结果 Map 的对象池
// 优化效果: 减少每次扫描时的 Map 分配开销
var shardResultPool = sync.Pool{
	New: func() interface{} {
		return make(map[margin.AccountKey]AccountRisk, DefaultShardCapacity)
	},
}

func getShardResultMap() map[margin.AccountKey]AccountRisk {
	return shardResultPool.Get().(map[margin.AccountKey]AccountRisk)
}

// putShardResultMap 将 Map 归还对象池
// 注意: 归还前会清空 Map
func putShardResultMap(m map[margin.AccountKey]AccountRisk) {
	clear(m)
	shardResultPool.Put(m)
}

// =============================================================================
// 接口定义
// =============================================================================

// AccountProvider 账户数据提供者接口
//
// 由外部实现，负责提供账户快照（抵押余额、持仓、预言机价格）。
// 扫描器不关心数据从哪里来（链上订阅、数据库、内存等）。
type AccountProvider interface {
	// ListAccounts 获取当前所有需要监控的账户引用
	ListAccounts(ctx context.Context) ([]margin.AccountKey, error)

	// GetSnapshot 获取指定账户的时点快照
	GetSnapshot(ctx context.Context, key margin.AccountKey) (*margin.Snapshot, error)
}

// =============================================================================
// Scanner 扫描器
// =============================================================================

// Scanner 风险扫描器
//
// 职责:
// 1. 定期全量扫描所有被监控账户
// 2. 对每个账户做维持保证金检查，折算出占用率
// 3. 将账户分配到对应的风险等级索引
//
// 设计思想:
// - 使用分片并行处理，加速扫描
// - 全量扫描作为"兜底"，保证数据一致性
// - 增量检查由各级检查器和价格触发器驱动（在 engine.go 中实现）
type Scanner struct {
	index        *RiskLevelIndex
	provider     AccountProvider
	numShards    int
	scanInterval time.Duration
	running      bool
	stopCh       chan struct{}
	wg           sync.WaitGroup

	// onLiquidate 扫描中发现清算区账户时的回调
	// 由 Engine 注入，把账户送进清算队列
	onLiquidate func(AccountRisk)
}

// NewScanner 创建新的扫描器
func NewScanner(index *RiskLevelIndex, provider AccountProvider) *Scanner {
	return &Scanner{
		index:        index,
		provider:     provider,
		numShards:    DefaultNumShards,
		scanInterval: DefaultScanInterval,
		stopCh:       make(chan struct{}),
	}
}

// SetNumShards 设置分片数量
func (s *Scanner) SetNumShards(n int) {
	if n > 0 {
		s.numShards = n
	}
}

// SetScanInterval 设置扫描间隔
func (s *Scanner) SetScanInterval(d time.Duration) {
	if d > 0 {
		s.scanInterval = d
	}
}

// SetLiquidateCallback 设置清算回调
func (s *Scanner) SetLiquidateCallback(fn func(AccountRisk)) {
	s.onLiquidate = fn
}

// =============================================================================
// 扫描器生命周期
// =============================================================================

// Start 启动扫描器
//
// 启动后会在后台定期执行全量扫描
func (s *Scanner) Start() {
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runLoop()
	}()

	log.Printf("[Scanner] Started with interval=%v, shards=%d",
		s.scanInterval, s.numShards)
}

// Stop 停止扫描器
func (s *Scanner) Stop() {
	if !s.running {
		return
	}
	close(s.stopCh)
	s.wg.Wait()
	s.running = false
	log.Println("[Scanner] Stopped")
}

// runLoop 扫描主循环
func (s *Scanner) runLoop() {
	// 启动时立即执行一次扫描
	s.Scan(context.Background())

	ticker := time.NewTicker(s.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Scan(context.Background())
		}
	}
}

// =============================================================================
// 核心扫描逻辑
// =============================================================================

// Scan 执行一次全量扫描
//
// 步骤:
// 1. 获取所有被监控账户
// 2. 将账户分片
// 3. 并行计算每个分片的风险数据
// 4. 合并结果，按等级分组
// 5. 批量更新索引，清算区账户交给回调
func (s *Scanner) Scan(ctx context.Context) {
	startTime := time.Now()

	keys, err := s.provider.ListAccounts(ctx)
	if err != nil {
		log.Printf("[Scanner] Failed to list accounts: %v", err)
		return
	}

	if len(keys) == 0 {
		log.Println("[Scanner] No accounts to scan")
		return
	}

	// 扫描开始时间（复用，避免每个账户都调用 time.Now()）
	scanTime := startTime.UnixNano()

	shards := s.shardAccounts(keys)
	results := s.processShards(ctx, shards, scanTime)

	levelWarning := make([]AccountRisk, 0)
	levelDanger := make([]AccountRisk, 0)
	levelCritical := make([]AccountRisk, 0)
	liquidateCount := 0

	for _, result := range results {
		for _, data := range result {
			switch data.Level {
			case RiskLevelWarning:
				levelWarning = append(levelWarning, data)
			case RiskLevelDanger:
				levelDanger = append(levelDanger, data)
			case RiskLevelCritical:
				levelCritical = append(levelCritical, data)
			case RiskLevelLiquidate:
				liquidateCount++
				if s.onLiquidate != nil {
					s.onLiquidate(data)
				}
			}
		}
		// 归还 Map 到对象池
		putShardResultMap(result)
	}

	s.index.BatchUpdateLevel(RiskLevelWarning, levelWarning)
	s.index.BatchUpdateLevel(RiskLevelDanger, levelDanger)
	s.index.BatchUpdateLevel(RiskLevelCritical, levelCritical)

	// 更新市场索引
	allHighRisk := make([]AccountRisk, 0,
		len(levelWarning)+len(levelDanger)+len(levelCritical))
	allHighRisk = append(allHighRisk, levelWarning...)
	allHighRisk = append(allHighRisk, levelDanger...)
	allHighRisk = append(allHighRisk, levelCritical...)
	s.index.UpdateSymbolIndex(allHighRisk)

	elapsed := time.Since(startTime)
	log.Printf("[Scanner] Scan completed: accounts=%d, warning=%d, danger=%d, critical=%d, liquidate=%d, elapsed=%v",
		len(keys), len(levelWarning), len(levelDanger),
		len(levelCritical), liquidateCount, elapsed)
}

// shardAccounts 将账户分片
//
// 对账户引用的前 8 字节取模，保证同一账户始终在同一分片
func (s *Scanner) shardAccounts(keys []margin.AccountKey) [][]margin.AccountKey {
	shards := make([][]margin.AccountKey, s.numShards)
	for i := range shards {
		shards[i] = make([]margin.AccountKey, 0, len(keys)/s.numShards+1)
	}

	for _, key := range keys {
		shardIdx := int(binary.BigEndian.Uint64(key[:8]) % uint64(s.numShards))
		shards[shardIdx] = append(shards[shardIdx], key)
	}

	return shards
}

// processShards 并行处理所有分片
//
// 每个分片由一个独立的 Goroutine 处理
// 使用 WaitGroup 等待所有分片完成
func (s *Scanner) processShards(ctx context.Context, shards [][]margin.AccountKey, scanTime int64) []map[margin.AccountKey]AccountRisk {
	results := make([]map[margin.AccountKey]AccountRisk, s.numShards)
	var wg sync.WaitGroup

	for i, shard := range shards {
		wg.Add(1)
		go func(shardIdx int, keys []margin.AccountKey) {
			defer wg.Done()
			results[shardIdx] = s.processShard(ctx, keys, scanTime)
		}(i, shard)
	}

	wg.Wait()
	return results
}

// processShard 处理单个分片
// scanTime: 扫描开始时间戳，避免每个账户都调用 time.Now()
func (s *Scanner) processShard(ctx context.Context, keys []margin.AccountKey, scanTime int64) map[margin.AccountKey]AccountRisk {
	result := getShardResultMap()

	for _, key := range keys {
		select {
		case <-ctx.Done():
			return result
		default:
		}

		snap, err := s.provider.GetSnapshot(ctx, key)
		if err != nil {
			log.Printf("[Scanner] Failed to get snapshot for account %s: %v", key, err)
			continue
		}

		data, err := EvaluateAccount(key, snap, scanTime)
		if err != nil {
			log.Printf("[Scanner] Failed to evaluate account %s: %v", key, err)
			continue
		}

		// 只存储有风险的账户
		if data.Level != RiskLevelSafe {
			result[key] = data
		}
	}

	return result
}

// EvaluateAccount 对单个账户快照做维持保证金检查，折算风险数据
//
// scanTime: 复用的扫描时间戳
func EvaluateAccount(key margin.AccountKey, snap *margin.Snapshot, scanTime int64) (AccountRisk, error) {
	weightedCol, err := margin.TotalCollateral(snap, true)
	if err != nil {
		return AccountRisk{}, err
	}

	report, err := margin.CheckFractionRequirement(snap, margin.FractionMaintenance, weightedCol)
	if err != nil {
		return AccountRisk{}, err
	}

	ratio := RiskRatio(&report)

	data := AccountRisk{
		Key:          key,
		Ratio:        ratio,
		AccountValue: report.AccountValue,
		Budget:       report.Budget,
		WeightedSum:  report.WeightedSum,
		Level:        CalculateRiskLevel(ratio),
		UpdatedAt:    scanTime,
		Symbols:      activeSymbols(snap),
	}
	return data, nil
}

// activeSymbols 提取账户持仓涉及的市场符号
func activeSymbols(snap *margin.Snapshot) []string {
	n := snap.ActiveMarkets
	if n > len(snap.Account.Positions) {
		n = len(snap.Account.Positions)
	}
	if n > len(snap.PerpMarkets) {
		n = len(snap.PerpMarkets)
	}

	symbols := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if snap.Account.Positions[i].IsEmpty() {
			continue
		}
		symbols = append(symbols, snap.PerpMarkets[i].Symbol)
	}
	return symbols
}
