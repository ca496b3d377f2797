// 文件: pkg/margin/oracle.go
// 预言机价格表
//
// 快照里的价格表按符号排序，查找用二分。
// "查不到" 是合法结果: 市场可能暂时没有活跃报价，
// 由调用点决定这是不是错误 (给非零余额定价时才是)。

package margin

import "sort"

// OracleEntry 单条预言机报价
type OracleEntry struct {
	Symbol string

	// Price 价格 (micro 刻度)，正数
	Price int64
}

// OracleSnapshot 符号 → 价格 的只读映射
type OracleSnapshot struct {
	// entries 按 Symbol 升序
	entries []OracleEntry
}

// NewOracleSnapshot 构建价格表 (入参会被拷贝并排序)
func NewOracleSnapshot(entries []OracleEntry) *OracleSnapshot {
	es := make([]OracleEntry, len(entries))
	copy(es, entries)
	sort.Slice(es, func(i, j int) bool { return es[i].Symbol < es[j].Symbol })
	return &OracleSnapshot{entries: es}
}

// Lookup 精确匹配查价
//
// 返回 (价格, 是否命中)。空符号直接视为未命中。
func (o *OracleSnapshot) Lookup(symbol string) (int64, bool) {
	if o == nil || symbol == "" {
		return 0, false
	}
	i := sort.Search(len(o.entries), func(i int) bool {
		return o.entries[i].Symbol >= symbol
	})
	if i < len(o.entries) && o.entries[i].Symbol == symbol {
		return o.entries[i].Price, true
	}
	return 0, false
}

// Len 表内条目数
func (o *OracleSnapshot) Len() int {
	if o == nil {
		return 0
	}
	return len(o.entries)
}
