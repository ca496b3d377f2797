// 文件: pkg/liquidation/pricefeed.go
// 标记价格订阅
//
// 行情服务把标记价格推到 NATS / Kafka，
// 这里订阅后喂给 Engine.OnPriceChange，驱动 Level 3 的价格触发检查。

package liquidation

import (
	"encoding/json"
	"fmt"
	"log"

	"riskon.com/pkg/kafka"
	natspkg "riskon.com/pkg/nats"
)

// PriceSink 价格事件的接收方
//
// Engine 实现了这个接口
type PriceSink interface {
	OnPriceChange(symbol string, price int64)
}

// =============================================================================
// NATS 价格订阅
// =============================================================================

// NATSPriceFeed 基于 NATS 的标记价格订阅
type NATSPriceFeed struct {
	sub *natspkg.Subscriber
}

// NewNATSPriceFeed 创建并启动 NATS 价格订阅
func NewNATSPriceFeed(url string, sink PriceSink) (*NATSPriceFeed, error) {
	sub, err := natspkg.NewSubscriber(url, func(subject string, data []byte) error {
		ev, err := natspkg.UnmarshalJSON[MarkPriceEvent](data)
		if err != nil {
			return fmt.Errorf("decode mark price: %w", err)
		}
		sink.OnPriceChange(ev.Symbol, ev.Price)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := sub.Subscribe(SubjectMarkPrices); err != nil {
		sub.Close()
		return nil, err
	}

	log.Printf("[PriceFeed] NATS subscribed: subject=%s", SubjectMarkPrices)
	return &NATSPriceFeed{sub: sub}, nil
}

// Close 关闭订阅
func (f *NATSPriceFeed) Close() error {
	return f.sub.Close()
}

// =============================================================================
// Kafka 价格订阅
// =============================================================================

// KafkaPriceFeed 基于 Kafka 消费者组的标记价格订阅
type KafkaPriceFeed struct {
	consumer *kafka.Consumer
}

// NewKafkaPriceFeed 创建并启动 Kafka 价格订阅
//
// groupID 区分不同的清算实例，同组内分区负载均衡
func NewKafkaPriceFeed(brokers []string, groupID string, sink PriceSink) (*KafkaPriceFeed, error) {
	cfg := kafka.DefaultConsumerConfig(brokers, groupID, []string{TopicMarkPrices})

	consumer, err := kafka.NewConsumer(cfg, func(topic string, partition int32, offset int64, key, value []byte) error {
		var ev MarkPriceEvent
		if err := json.Unmarshal(value, &ev); err != nil {
			return fmt.Errorf("decode mark price: %w", err)
		}
		sink.OnPriceChange(ev.Symbol, ev.Price)
		return nil
	})
	if err != nil {
		return nil, err
	}

	consumer.Start()
	log.Printf("[PriceFeed] Kafka subscribed: topic=%s, group=%s", TopicMarkPrices, groupID)
	return &KafkaPriceFeed{consumer: consumer}, nil
}

// Close 停止消费
func (f *KafkaPriceFeed) Close() error {
	return f.consumer.Stop()
}
