// 文件: cmd/liqsim/main.go
// 清算服务全链路模拟
//
// 不依赖任何外部系统即可运行:
// - Mock 账户数据提供者 (内存快照)
// - Mock 清算执行器 (打日志代替真实提交)
// - 行情模拟器: 随机波动 + 强制暴跌，驱动价格触发器
//
// 设置环境变量可接入真实依赖:
// - NATS_URL:   清算事件发布到 NATS
// - REDIS_ADDR: 风险状态同步到 Redis
// - MYSQL_DSN:  清算记录落库

package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"riskon.com/pkg/liquidation"
	"riskon.com/pkg/margin"
	"riskon.com/pkg/riskstore"
)

// =============================================================================
// Mock 组件实现
// =============================================================================

// MockAccountProvider 模拟账户数据
//
// 每个账户一个 BTC-PERP 多头仓位，标记价变化时重算快照
type MockAccountProvider struct {
	mu        sync.RWMutex
	accounts  map[margin.AccountKey]accountState
	markPrice int64 // BTC-PERP 标记价 (micro USD)
}

type accountState struct {
	collateral int64 // USDC 余额 (micro)
	size       int64 // 持仓数量 (native, 1e6 = 1 单位)
	entryCost  int64 // 开仓成本 (micro USD, 正数)
}

func NewMockAccountProvider(markPrice int64) *MockAccountProvider {
	return &MockAccountProvider{
		accounts:  make(map[margin.AccountKey]accountState),
		markPrice: markPrice,
	}
}

func (p *MockAccountProvider) AddAccount(key margin.AccountKey, collateral, size, entryCost int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts[key] = accountState{collateral: collateral, size: size, entryCost: entryCost}
}

func (p *MockAccountProvider) SetMarkPrice(price int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.markPrice = price
}

func (p *MockAccountProvider) MarkPrice() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.markPrice
}

func (p *MockAccountProvider) ListAccounts(ctx context.Context) ([]margin.AccountKey, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	keys := make([]margin.AccountKey, 0, len(p.accounts))
	for k := range p.accounts {
		keys = append(keys, k)
	}
	return keys, nil
}

func (p *MockAccountProvider) GetSnapshot(ctx context.Context, key margin.AccountKey) (*margin.Snapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st, ok := p.accounts[key]
	if !ok {
		return nil, fmt.Errorf("account %s not found", key)
	}

	return &margin.Snapshot{
		Account: margin.AccountSnapshot{
			Collateral: []int64{st.collateral},
			Positions: []margin.Position{
				{
					Key:           key,
					Size:          st.size,
					NativePcTotal: -st.entryCost,
					FundingIndex:  big.NewInt(0),
				},
			},
		},
		Collaterals: []margin.CollateralConfig{
			{Asset: "USDC", OracleSymbol: "USDC", Weight: 1000, LiqFee: 20},
		},
		PerpMarkets: []margin.PerpMarketConfig{
			{Symbol: "BTC-PERP", AssetDecimals: 6, BaseImf: 100},
		},
		Borrows: []margin.BorrowAccrual{
			{SupplyMultiplier: margin.PricePrecision, BorrowMultiplier: margin.PricePrecision},
		},
		Oracle: margin.NewOracleSnapshot([]margin.OracleEntry{
			{Symbol: "USDC", Price: 1_000_000},
		}),
		Marks:             []margin.MarkSnapshot{{Price: p.markPrice}},
		Funding:           []*big.Int{big.NewInt(0)},
		ActiveCollaterals: 1,
		ActiveMarkets:     1,
	}, nil
}

// MockExecutor 模拟清算执行器
//
// 真实实现会撤单、接管仓位、转移折价抵押品；
// 这里打日志并随机失败，演示 RetryExecutor 的重试路径
type MockExecutor struct{}

func (e *MockExecutor) Execute(ctx context.Context, task liquidation.LiquidationTask) liquidation.LiquidationResult {
	log.Printf("[Liquidation] ⚡️ TRIGGERED: task=%d | account=%s | ratio=%.4f | qty=%d | quote=%d",
		task.TaskID, task.Key, task.Ratio, task.Size.AssetQty, task.Size.QuoteValue)

	result := liquidation.LiquidationResult{
		TaskID:     task.TaskID,
		Key:        task.Key,
		ExecutedAt: time.Now(),
	}

	// 模拟 20% 的瞬时失败
	if rand.Float32() < 0.2 {
		result.Error = fmt.Errorf("submit rejected: price moved")
		return result
	}

	result.Success = true
	return result
}

// =============================================================================
// 主程序
// =============================================================================

func main() {
	log.SetFlags(log.Ltime | log.Lmicroseconds)
	log.Println("🚀 Starting Liquidation Simulation...")

	const startPrice = int64(100_000_000) // 100 USD

	// 1. Mock 账户: 不同杠杆水平
	// -------------------------------------------------------------------------
	provider := NewMockAccountProvider(startPrice)

	// 敞口固定 10 单位 (1000 USD @ 100)，维持保证金 50 USD
	// 余额越低，离清算越近
	provider.AddAccount(margin.AccountKey{1}, 500_000_000, 10_000_000, 1_000_000_000) // 安全
	provider.AddAccount(margin.AccountKey{2}, 70_000_000, 10_000_000, 1_000_000_000)  // 预警
	provider.AddAccount(margin.AccountKey{3}, 58_000_000, 10_000_000, 1_000_000_000)  // 危险
	provider.AddAccount(margin.AccountKey{4}, 53_000_000, 10_000_000, 1_000_000_000)  // 临界

	// 2. 清算引擎
	// -------------------------------------------------------------------------
	executor := liquidation.NewRetryExecutor(&MockExecutor{}, 3, 200*time.Millisecond)
	engine := liquidation.NewEngine(provider, executor)
	engine.Scanner().SetScanInterval(2 * time.Second)

	if url := os.Getenv("NATS_URL"); url != "" {
		pub, err := liquidation.NewNATSPublisher(url)
		if err != nil {
			log.Fatalf("Failed to connect NATS: %v", err)
		}
		defer pub.Close()
		engine.SetPublisher(pub)
		log.Println("✅ NATS publisher attached")
	}

	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		rec, err := liquidation.OpenMySQLRecorder(dsn)
		if err != nil {
			log.Fatalf("Failed to open MySQL: %v", err)
		}
		engine.SetRecorder(rec)
		log.Println("✅ MySQL recorder attached")
	}

	var store *riskstore.Store
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		store = riskstore.NewStore(addr)
		if err := store.Ping(context.Background()); err != nil {
			log.Fatalf("Failed to connect Redis: %v", err)
		}
		defer store.Close()
		log.Println("✅ Redis risk store attached")
	}

	if err := engine.Start(); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}
	defer engine.Stop()
	log.Println("✅ Liquidation Engine Started")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. 行情模拟器: 随机波动 5 秒后强制暴跌
	// -------------------------------------------------------------------------
	go func() {
		price := startPrice
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		startTime := time.Now()
		crashed := false

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !crashed && time.Since(startTime) > 5*time.Second {
					price = 95_000_000 // 暴跌 5%
					crashed = true
					log.Printf("[Market] 📉 FORCED CRASH! Mark price dropped to %d", price)
				} else {
					// ±0.05% 随机波动
					price += int64((rand.Float64() - 0.5) * 100_000)
				}

				provider.SetMarkPrice(price)

				// 推送给价格触发器 (生产环境由 NATS/Kafka 价格订阅驱动)
				engine.OnPriceChange("BTC-PERP", price)
			}
		}
	}()

	// 4. 周期性输出统计 + 同步 Redis 风险视图
	// -------------------------------------------------------------------------
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := engine.GetStats()
				log.Printf("[Stats] highRisk=%d (warn=%d danger=%d critical=%d) queued=%d | mark=%d",
					stats.TotalHighRiskAccounts, stats.WarningAccounts,
					stats.DangerAccounts, stats.CriticalAccounts,
					stats.QueuedTasks, provider.MarkPrice())

				if store != nil {
					syncRiskStore(ctx, store, engine)
				}
			}
		}
	}()

	// 等待信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("🛑 Shutting down...")
}

// syncRiskStore 把当前索引里的高风险账户同步到 Redis
func syncRiskStore(ctx context.Context, store *riskstore.Store, engine *liquidation.Engine) {
	levels := []liquidation.RiskLevel{
		liquidation.RiskLevelWarning,
		liquidation.RiskLevelDanger,
		liquidation.RiskLevelCritical,
	}
	for _, level := range levels {
		for _, data := range engine.Index().GetByLevel(level) {
			if err := store.Upsert(ctx, data); err != nil {
				log.Printf("[RiskStore] upsert failed: account=%s, err=%v", data.Key, err)
			}
		}
	}
}
