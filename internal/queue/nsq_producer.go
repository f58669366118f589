package queue

import (
	"context"
	"fmt"

	"github.com/nsqio/go-nsq"
)

// Producer 投递请求入队接口
type Producer interface {
	Enqueue(ctx context.Context, payload []byte) error
	Close()
}

// NSQProducer NSQ 生产者
type NSQProducer struct {
	producer *nsq.Producer
	topic    string
}

// NewNSQProducer 创建一个新的 NSQ 生产者
func NewNSQProducer(nsqdAddress string, topic string) (*NSQProducer, error) {
	producer, err := nsq.NewProducer(nsqdAddress, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create nsq producer: %w", err)
	}
	return &NSQProducer{producer: producer, topic: topic}, nil
}

// Enqueue 发布一条投递请求
// nsqio/go-nsq 的 Publish 不接收 context,但这里仍保持 ctx 以满足接口规范
func (n *NSQProducer) Enqueue(ctx context.Context, payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("empty payload")
	}
	return n.producer.Publish(n.topic, payload)
}

// Close 停止生产者
func (n *NSQProducer) Close() {
	if n.producer != nil {
		n.producer.Stop()
	}
}
