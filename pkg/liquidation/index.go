package liquidation

import (
	"sync"
	"sync/atomic"

	"riskon.com/pkg/margin"
)

// =============================================================================
// CowMap - Copy-on-Write Map
// =============================================================================

// CowMap Copy-on-Write Map
//
// 核心特性:
// 1. 读操作完全无锁 (Lock-Free Read)
// 2. 写操作会加锁，但不阻塞读操作
// 3. 适用于读多写少的场景
//
// 工作原理:
// - 内部维护一个指向 Map 的原子指针
// - 读取时，直接原子加载指针，读取 Map 内容
// - 写入时，先复制一份旧 Map，在副本上修改，然后原子替换指针
// - 旧 Map 在没有读者引用后，会被 GC 自动回收
//
// 在清算服务里，读操作（各级检查器）每秒上千次，
// 写操作（全量扫描后的批量更新）只有几次，正好是读多写少。
//
// 注意事项:
// - 写操作会复制整个 Map，内存开销较大
// - 适合 Map 较小 (< 10000 条) 的场景
// - 高风险账户通常只有几百到几千，非常适合
type CowMap struct {
	// data: 原子指针，指向当前的 Map
	// AccountKey -> AccountRisk
	data atomic.Pointer[map[margin.AccountKey]AccountRisk]

	// writeMu: 写锁
	//
	// 只保护写操作之间的互斥，不影响读操作
	// 防止多个 Goroutine 同时复制、同时替换，导致数据丢失
	writeMu sync.Mutex
}

// NewCowMap 创建新的 CowMap
func NewCowMap() *CowMap {
	m := &CowMap{}
	emptyMap := make(map[margin.AccountKey]AccountRisk)
	m.data.Store(&emptyMap)
	return m
}

// =============================================================================
// 读操作 (无锁!)
// =============================================================================

// Get 获取指定账户的风险数据
//
// 特性:
//   - 完全无锁
//   - 可被多个 Goroutine 并发调用
//   - 读取的是调用时的快照，即使同时有写操作也不受影响
func (m *CowMap) Get(key margin.AccountKey) (AccountRisk, bool) {
	currentMap := m.data.Load()

	// 写操作修改的是副本，这个 Map 在读取期间不会变化
	data, ok := (*currentMap)[key]
	return data, ok
}

// GetAll 获取所有账户的风险数据
//
// 返回的是调用时的快照
func (m *CowMap) GetAll() []AccountRisk {
	currentMap := m.data.Load()

	result := make([]AccountRisk, 0, len(*currentMap))
	for _, v := range *currentMap {
		result = append(result, v)
	}
	return result
}

// Len 获取 Map 的大小
func (m *CowMap) Len() int {
	currentMap := m.data.Load()
	return len(*currentMap)
}

// Contains 检查账户是否存在
func (m *CowMap) Contains(key margin.AccountKey) bool {
	currentMap := m.data.Load()
	_, ok := (*currentMap)[key]
	return ok
}

// BatchUpdate 批量更新账户数据
//
// 参数:
//
//	updates: 要更新或新增的账户数据
//	removes: 要删除的账户列表
//
// 特性:
//   - 写操作之间互斥（通过 writeMu）
//   - 不阻塞读操作
//   - 原子替换，读者要么看到旧数据，要么看到新数据，不会看到中间状态
func (m *CowMap) BatchUpdate(updates []AccountRisk, removes []margin.AccountKey) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	oldMap := m.data.Load()

	// Copy-on-Write 的核心步骤：在副本上修改
	newMap := make(map[margin.AccountKey]AccountRisk, len(*oldMap)+len(updates))
	for k, v := range *oldMap {
		newMap[k] = v
	}

	// 先删除再更新，避免删除新增的数据
	for _, key := range removes {
		delete(newMap, key)
	}
	for _, data := range updates {
		newMap[data.Key] = data
	}

	// 原子替换指针（纳秒级）
	// 正在进行的读操作仍然读取旧 Map，之后的读操作读取新 Map
	m.data.Store(&newMap)
}

// Set 设置单个账户数据
//
// 注意：频繁调用此方法会产生大量复制，推荐使用 BatchUpdate 批量操作
func (m *CowMap) Set(data AccountRisk) {
	m.BatchUpdate([]AccountRisk{data}, nil)
}

// Remove 删除单个账户
//
// 注意：同上，推荐 BatchUpdate
func (m *CowMap) Remove(key margin.AccountKey) {
	m.BatchUpdate(nil, []margin.AccountKey{key})
}

// =============================================================================
// RiskLevelIndex - 风险等级索引
// =============================================================================

// RiskLevelIndex 风险等级索引
//
// 管理所有风险等级的账户数据
// 每个等级使用独立的 CowMap，互不影响
//
// 结构:
//
//	levels[0] = Level 1 (Warning, 70%-80%)
//	levels[1] = Level 2 (Danger, 80%-90%)
//	levels[2] = Level 3 (Critical, 90%-100%)
//
// 为什么不存储 Safe 和 Liquidate？
//   - Safe: 账户数量太多，不需要频繁检查
//   - Liquidate: 触发后立即进入清算队列，不需要存储
type RiskLevelIndex struct {
	// levels: 各等级的账户索引
	//   index 0 = Warning
	//   index 1 = Danger
	//   index 2 = Critical
	levels [3]*CowMap

	// symbolToAccounts: 市场 → 账户列表
	// 用于：标记价格变化时，快速找到持有该市场仓位的高风险账户
	//
	// 例如 BTC 标记价变化时，只需要检查持有 BTC 永续仓位的账户
	symbolToAccounts atomic.Pointer[map[string][]margin.AccountKey]

	// accountLevelIndex: AccountKey -> level 的快速查找索引
	accountLevelIndex atomic.Pointer[map[margin.AccountKey]RiskLevel]

	// symbolMu: 保护 symbolToAccounts / accountLevelIndex 的更新
	symbolMu sync.Mutex
}

// NewRiskLevelIndex 创建新的风险等级索引
func NewRiskLevelIndex() *RiskLevelIndex {
	idx := &RiskLevelIndex{
		levels: [3]*CowMap{
			NewCowMap(), // Warning
			NewCowMap(), // Danger
			NewCowMap(), // Critical
		},
	}

	emptySymbolMap := make(map[string][]margin.AccountKey)
	idx.symbolToAccounts.Store(&emptySymbolMap)

	emptyLevelMap := make(map[margin.AccountKey]RiskLevel)
	idx.accountLevelIndex.Store(&emptyLevelMap)

	return idx
}

// levelToIndex 将 RiskLevel 转换为 levels 数组的索引
func levelToIndex(level RiskLevel) int {
	switch level {
	case RiskLevelWarning:
		return 0
	case RiskLevelDanger:
		return 1
	case RiskLevelCritical:
		return 2
	default:
		return -1 // Safe 或 Liquidate，不存储
	}
}

// GetByLevel 获取指定等级的所有账户
func (idx *RiskLevelIndex) GetByLevel(level RiskLevel) []AccountRisk {
	i := levelToIndex(level)
	if i < 0 {
		return nil
	}
	return idx.levels[i].GetAll()
}

// GetAccount 获取指定账户（从所有等级中查找）
func (idx *RiskLevelIndex) GetAccount(key margin.AccountKey) (AccountRisk, bool) {
	levelMap := idx.accountLevelIndex.Load()
	level, ok := (*levelMap)[key]
	if !ok {
		return AccountRisk{}, false
	}

	// 直接去对应 level 查找，O(1)
	i := levelToIndex(level)
	if i < 0 {
		return AccountRisk{}, false
	}
	return idx.levels[i].Get(key)
}

// UpdateAccount 更新账户数据（自动处理等级变化）
//
// 逻辑:
//  1. 根据新的占用率计算新等级
//  2. 如果等级变化，从旧等级移除，加入新等级
//  3. 如果等级不变，直接更新数据
func (idx *RiskLevelIndex) UpdateAccount(data AccountRisk) {
	newLevel := CalculateRiskLevel(data.Ratio)
	newIndex := levelToIndex(newLevel)

	// 从旧等级中移除（如果存在且等级变化）
	for i, level := range idx.levels {
		if level.Contains(data.Key) && i != newIndex {
			level.Remove(data.Key)
		}
	}

	idx.updateAccountLevelIndex(data.Key, newLevel)

	// 加入新等级（Safe 和 Liquidate 不存储）
	if newIndex >= 0 {
		data.Level = newLevel
		idx.levels[newIndex].Set(data)
	}
}

func (idx *RiskLevelIndex) updateAccountLevelIndex(key margin.AccountKey, level RiskLevel) {
	idx.symbolMu.Lock()
	defer idx.symbolMu.Unlock()

	oldMap := idx.accountLevelIndex.Load()
	newMap := make(map[margin.AccountKey]RiskLevel, len(*oldMap)+1)
	for k, v := range *oldMap {
		newMap[k] = v
	}

	if level == RiskLevelSafe || level == RiskLevelLiquidate {
		delete(newMap, key)
	} else {
		newMap[key] = level
	}

	idx.accountLevelIndex.Store(&newMap)
}

// BatchUpdateLevel 批量更新指定等级的数据
//
// 用于全量扫描后的批量更新
// 直接替换整个等级的数据，而不是逐个更新
func (idx *RiskLevelIndex) BatchUpdateLevel(level RiskLevel, accounts []AccountRisk) {
	i := levelToIndex(level)
	if i < 0 {
		return
	}

	// 提取要删除的账户（现在在这个等级，但不在新数据中）
	current := idx.levels[i].GetAll()
	newSet := make(map[margin.AccountKey]struct{}, len(accounts))
	for _, a := range accounts {
		newSet[a.Key] = struct{}{}
	}

	var removes []margin.AccountKey
	for _, a := range current {
		if _, exists := newSet[a.Key]; !exists {
			removes = append(removes, a.Key)
		}
	}

	idx.levels[i].BatchUpdate(accounts, removes)

	// 同步维护 level 快查索引
	idx.symbolMu.Lock()
	oldMap := idx.accountLevelIndex.Load()
	newMap := make(map[margin.AccountKey]RiskLevel, len(*oldMap)+len(accounts))
	for k, v := range *oldMap {
		newMap[k] = v
	}
	for _, key := range removes {
		if newMap[key] == level {
			delete(newMap, key)
		}
	}
	for _, a := range accounts {
		newMap[a.Key] = level
	}
	idx.accountLevelIndex.Store(&newMap)
	idx.symbolMu.Unlock()
}

// GetAccountsBySymbol 获取持有指定市场仓位的高风险账户
//
// 用于：标记价格变化时，快速找到受影响的账户
func (idx *RiskLevelIndex) GetAccountsBySymbol(symbol string) []margin.AccountKey {
	symbolMap := idx.symbolToAccounts.Load()
	if accounts, ok := (*symbolMap)[symbol]; ok {
		return accounts
	}
	return nil
}

// UpdateSymbolIndex 更新市场索引
//
// 在全量扫描后调用，重建市场 → 账户的映射
func (idx *RiskLevelIndex) UpdateSymbolIndex(all []AccountRisk) {
	idx.symbolMu.Lock()
	defer idx.symbolMu.Unlock()

	newMap := make(map[string][]margin.AccountKey)
	for _, a := range all {
		for _, symbol := range a.Symbols {
			newMap[symbol] = append(newMap[symbol], a.Key)
		}
	}

	idx.symbolToAccounts.Store(&newMap)
}

// TotalCount 获取所有等级的账户总数
func (idx *RiskLevelIndex) TotalCount() int {
	total := 0
	for _, level := range idx.levels {
		total += level.Len()
	}
	return total
}
