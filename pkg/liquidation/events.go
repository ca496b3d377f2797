// 文件: pkg/liquidation/events.go
// 清算事件的对外发布
//
// 支持两条通道:
// - NATS: 轻量，适合本地开发和内部服务间通知
// - Kafka: 高吞吐，适合对接下游的清算审计/对账系统

package liquidation

import (
	"encoding/json"
	"time"

	"riskon.com/pkg/kafka"
	natspkg "riskon.com/pkg/nats"
)

// =============================================================================
// 主题常量
// =============================================================================

const (
	// SubjectLiquidations NATS 清算事件主题
	SubjectLiquidations = "risk.liquidations"

	// SubjectMarkPrices NATS 标记价格主题
	SubjectMarkPrices = "risk.markprices"

	// TopicLiquidations Kafka 清算事件 topic
	TopicLiquidations = "risk-liquidations"

	// TopicMarkPrices Kafka 标记价格 topic
	TopicMarkPrices = "risk-markprices"
)

// =============================================================================
// 事件类型
// =============================================================================

// LiquidationEvent 清算事件
//
// 每次清算尝试结束后发布一条，无论成功与否
type LiquidationEvent struct {
	TaskID        int64   `json:"task_id"`
	Account       string  `json:"account"` // 账户引用的十六进制表示
	Ratio         float64 `json:"ratio"`
	AssetIndex    int     `json:"asset_index"`
	QuoteIndex    int     `json:"quote_index"`
	AssetQty      int64   `json:"asset_qty"`
	QuoteValue    int64   `json:"quote_value"`
	HasOpenOrders bool    `json:"has_open_orders"`
	Success       bool    `json:"success"`
	Error         string  `json:"error,omitempty"`
	Attempts      int     `json:"attempts"`
	ExecutedAt    int64   `json:"executed_at"` // Unix 毫秒
}

// NewLiquidationEvent 从任务和执行结果构建事件
func NewLiquidationEvent(task LiquidationTask, result LiquidationResult) *LiquidationEvent {
	ev := &LiquidationEvent{
		TaskID:        task.TaskID,
		Account:       task.Key.String(),
		Ratio:         task.Ratio,
		AssetIndex:    task.AssetIndex,
		QuoteIndex:    task.QuoteIndex,
		AssetQty:      task.Size.AssetQty,
		QuoteValue:    task.Size.QuoteValue,
		HasOpenOrders: task.HasOpenOrders,
		Success:       result.Success,
		Attempts:      result.Attempts,
		ExecutedAt:    result.ExecutedAt.UnixMilli(),
	}
	if result.Error != nil {
		ev.Error = result.Error.Error()
	}
	return ev
}

// Topic 实现 kafka.Message
func (e *LiquidationEvent) Topic() string {
	return TopicLiquidations
}

// Key 实现 kafka.Message
// 用账户引用做分区 key，同一账户的事件保证顺序
func (e *LiquidationEvent) Key() string {
	return e.Account
}

// Value 实现 kafka.Message
func (e *LiquidationEvent) Value() ([]byte, error) {
	return json.Marshal(e)
}

var _ kafka.Message = (*LiquidationEvent)(nil)

// MarkPriceEvent 标记价格事件
//
// 由行情服务发布，价格触发器订阅
type MarkPriceEvent struct {
	Symbol    string `json:"symbol"`
	Price     int64  `json:"price"` // micro 计价单位
	Timestamp int64  `json:"ts"`    // Unix 毫秒
}

// NewMarkPriceEvent 构建标记价格事件
func NewMarkPriceEvent(symbol string, price int64) *MarkPriceEvent {
	return &MarkPriceEvent{
		Symbol:    symbol,
		Price:     price,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Topic 实现 kafka.Message
func (e *MarkPriceEvent) Topic() string {
	return TopicMarkPrices
}

// Key 实现 kafka.Message
func (e *MarkPriceEvent) Key() string {
	return e.Symbol
}

// Value 实现 kafka.Message
func (e *MarkPriceEvent) Value() ([]byte, error) {
	return json.Marshal(e)
}

var _ kafka.Message = (*MarkPriceEvent)(nil)

// =============================================================================
// Publisher 接口与实现
// =============================================================================

// Publisher 清算事件发布器接口
type Publisher interface {
	PublishLiquidation(ev *LiquidationEvent) error
}

// NATSPublisher 基于 NATS 的发布器
type NATSPublisher struct {
	pub *natspkg.Publisher
}

// NewNATSPublisher 创建 NATS 发布器
func NewNATSPublisher(url string) (*NATSPublisher, error) {
	pub, err := natspkg.NewPublisher(url)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{pub: pub}, nil
}

// PublishLiquidation 发布清算事件
func (p *NATSPublisher) PublishLiquidation(ev *LiquidationEvent) error {
	return p.pub.Publish(SubjectLiquidations, ev)
}

// Close 关闭连接
func (p *NATSPublisher) Close() {
	p.pub.Close()
}

var _ Publisher = (*NATSPublisher)(nil)

// KafkaPublisher 基于 Kafka 的发布器
type KafkaPublisher struct {
	producer *kafka.Producer
}

// NewKafkaPublisher 创建 Kafka 发布器
func NewKafkaPublisher(brokers []string) (*KafkaPublisher, error) {
	producer, err := kafka.NewProducer(kafka.DefaultProducerConfig(brokers))
	if err != nil {
		return nil, err
	}
	return &KafkaPublisher{producer: producer}, nil
}

// PublishLiquidation 发布清算事件 (异步)
func (p *KafkaPublisher) PublishLiquidation(ev *LiquidationEvent) error {
	return p.producer.Send(ev)
}

// Close 关闭生产者
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

var _ Publisher = (*KafkaPublisher)(nil)
