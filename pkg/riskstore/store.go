// 文件: pkg/riskstore/store.go
// 账户风险状态的 Redis 存储
//
// 【设计】
// - 详情用 String 存 JSON: risk:acct:{account}
// - 排名用 ZSet, score = 占用率: risk:ranked
// - 写入 / 删除用 Lua 保证两个结构的原子性
//
// 用途:
// - 运维查询"当前最危险的 N 个账户"
// - 多实例部署时共享风险视图

package riskstore

import (
	"context"
	"encoding/json"
	"math"
	"strconv"

	"github.com/redis/go-redis/v9"

	"riskon.com/pkg/liquidation"
	"riskon.com/pkg/margin"
)

const (
	detailKeyPrefix = "risk:acct:"
	rankedKey       = "risk:ranked"
)

// RiskState 存入 Redis 的账户风险状态
type RiskState struct {
	Account      string  `json:"account"` // 账户引用的十六进制表示
	Ratio        float64 `json:"ratio"`
	AccountValue int64   `json:"account_value"`
	Budget       int64   `json:"budget"`
	WeightedSum  int64   `json:"weighted_sum"`
	Level        string  `json:"level"`
	UpdatedAt    int64   `json:"updated_at"` // Unix 纳秒
}

// newRiskState 从风险数据构建存储对象
//
// 占用率可能是 +Inf (预算非正但仍有敞口)，JSON 不接受非有限数，
// 落库前压到 MaxFloat64，排名语义不变 (仍然排最前)。
func newRiskState(data liquidation.AccountRisk) RiskState {
	ratio := data.Ratio
	if math.IsInf(ratio, 1) || math.IsNaN(ratio) {
		ratio = math.MaxFloat64
	}
	return RiskState{
		Account:      data.Key.String(),
		Ratio:        ratio,
		AccountValue: data.AccountValue,
		Budget:       data.Budget,
		WeightedSum:  data.WeightedSum,
		Level:        data.Level.String(),
		UpdatedAt:    data.UpdatedAt,
	}
}

// Store 账户风险状态存储
type Store struct {
	client *redis.Client
}

// NewStore 创建存储
func NewStore(addr string) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &Store{client: rdb}
}

// NewStoreWithClient 使用已有连接创建存储
func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Ping 检查连接
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close 关闭连接
func (s *Store) Close() error {
	return s.client.Close()
}

// luaUpsert 写入脚本
// KEYS[1]: detailKey (risk:acct:{account})
// KEYS[2]: rankedKey (risk:ranked)
// ARGV[1]: account
// ARGV[2]: score (占用率)
// ARGV[3]: stateJSON
const luaUpsert = `
	redis.call('SET', KEYS[1], ARGV[3])
	redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
	return 1
`

// Upsert 写入或更新账户的风险状态 (Redis Lua 实现)
func (s *Store) Upsert(ctx context.Context, data liquidation.AccountRisk) error {
	state := newRiskState(data)
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}

	detailKey := detailKeyPrefix + state.Account
	return s.client.Eval(ctx, luaUpsert, []string{detailKey, rankedKey},
		state.Account, state.Ratio, raw).Err()
}

// luaRemove 删除脚本
// KEYS[1]: detailKey (risk:acct:{account})
// KEYS[2]: rankedKey (risk:ranked)
// ARGV[1]: account
const luaRemove = `
	redis.call('ZREM', KEYS[2], ARGV[1])
	return redis.call('DEL', KEYS[1])
`

// Remove 删除账户的风险状态 (Redis Lua 实现)
func (s *Store) Remove(ctx context.Context, key margin.AccountKey) error {
	account := key.String()
	detailKey := detailKeyPrefix + account
	return s.client.Eval(ctx, luaRemove, []string{detailKey, rankedKey}, account).Err()
}

// Get 查询单个账户的风险状态
//
// 不存在时返回 (nil, nil)
func (s *Store) Get(ctx context.Context, key margin.AccountKey) (*RiskState, error) {
	raw, err := s.client.Get(ctx, detailKeyPrefix+key.String()).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var state RiskState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// TopRiskiest 查询占用率最高的 N 个账户（按占用率降序）
func (s *Store) TopRiskiest(ctx context.Context, n int) ([]RiskState, error) {
	if n <= 0 {
		n = 10
	}

	accounts, err := s.client.ZRevRange(ctx, rankedKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, nil
	}

	// 批量取详情
	keys := make([]string, len(accounts))
	for i, a := range accounts {
		keys[i] = detailKeyPrefix + a
	}
	raws, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	result := make([]RiskState, 0, len(raws))
	for _, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			continue // 详情已过期或被删除，跳过
		}
		var state RiskState
		if err := json.Unmarshal([]byte(str), &state); err != nil {
			continue
		}
		result = append(result, state)
	}
	return result, nil
}

// CountAbove 统计占用率不低于阈值的账户数量
func (s *Store) CountAbove(ctx context.Context, ratio float64) (int64, error) {
	min := strconv.FormatFloat(ratio, 'f', -1, 64)
	return s.client.ZCount(ctx, rankedKey, min, "+inf").Result()
}
