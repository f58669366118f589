package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/nsqio/go-nsq"
)

// ==================== 常量定义 ====================

const (
	defaultMessageHandleTimeout = 30 * time.Second
	defaultUserAgent            = "messaging-gateway"
	logPrefix                   = "[nsq] "
)

// ==================== 类型定义 ====================

// HandlerFunc 消息处理函数类型
// 返回非 nil 错误时 NSQ 按退避策略重投
type HandlerFunc func(ctx context.Context, payload []byte, attempts uint16) error

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Topic                string
	Channel              string
	MaxInFlight          int
	Concurrency          int
	NsqdAddresses        []string
	LookupdAddresses     []string
	DLQTopic             string
	MaxAttemptsBeforeDLQ uint16
	MessageHandleTimeout time.Duration
	Handler              HandlerFunc
}

// NSQConsumer NSQ 消费者
// 超过最大尝试次数的消息转入死信队列,不再重投
type NSQConsumer struct {
	config      ConsumerConfig
	consumer    *nsq.Consumer
	dlqProducer *nsq.Producer
}

// ==================== 构造函数 ====================

// NewNSQConsumer 创建 NSQ 消费者
func NewNSQConsumer(config ConsumerConfig) (*NSQConsumer, error) {
	if err := validateConsumerConfig(config); err != nil {
		return nil, err
	}

	if config.MessageHandleTimeout <= 0 {
		config.MessageHandleTimeout = defaultMessageHandleTimeout
	}

	nsqConfig := nsq.NewConfig()
	nsqConfig.UserAgent = defaultUserAgent
	if config.MaxInFlight > 0 {
		nsqConfig.MaxInFlight = config.MaxInFlight
	}

	consumer, err := nsq.NewConsumer(config.Topic, config.Channel, nsqConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create NSQ consumer: %w", err)
	}
	consumer.SetLogger(log.New(os.Stdout, logPrefix, log.LstdFlags), nsq.LogLevelInfo)

	return &NSQConsumer{
		config:   config,
		consumer: consumer,
	}, nil
}

// validateConsumerConfig 验证消费者配置
func validateConsumerConfig(config ConsumerConfig) error {
	if config.Topic == "" {
		return errors.New("topic is required")
	}
	if config.Channel == "" {
		return errors.New("channel is required")
	}
	if config.Handler == nil {
		return errors.New("handler is required")
	}
	if len(config.NsqdAddresses) == 0 && len(config.LookupdAddresses) == 0 {
		return errors.New("no nsqd address or lookupd configured")
	}
	return nil
}

// ==================== DLQ 配置 ====================

// AttachDLQProducer 附加死信队列生产者
// DLQ 主题或地址未配置时静默跳过
func (consumer *NSQConsumer) AttachDLQProducer(nsqdAddress string) error {
	if consumer.config.DLQTopic == "" || nsqdAddress == "" {
		return nil
	}

	producer, err := nsq.NewProducer(nsqdAddress, nsq.NewConfig())
	if err != nil {
		return fmt.Errorf("failed to create DLQ producer: %w", err)
	}

	consumer.dlqProducer = producer
	return nil
}

// ==================== 消息处理 ====================

// Run 启动消费者并阻塞直到停止
func (consumer *NSQConsumer) Run() error {
	consumer.consumer.AddConcurrentHandlers(
		nsq.HandlerFunc(consumer.handleMessage),
		consumer.config.Concurrency,
	)

	if err := consumer.connect(); err != nil {
		return err
	}

	<-consumer.consumer.StopChan
	return nil
}

// handleMessage 处理单条消息
func (consumer *NSQConsumer) handleMessage(message *nsq.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), consumer.config.MessageHandleTimeout)
	defer cancel()

	err := consumer.config.Handler(ctx, message.Body, message.Attempts)
	if err == nil {
		return nil
	}

	if !consumer.shouldSendToDLQ(message) {
		return err
	}

	if dlqErr := consumer.dlqProducer.Publish(consumer.config.DLQTopic, message.Body); dlqErr != nil {
		log.Printf("%s死信队列写入失败: %v, 原始错误: %v", logPrefix, dlqErr, err)
		return err
	}

	// 成功转入 DLQ,返回 nil 告诉 NSQ 不再重投
	log.Printf("%s消息在 %d 次尝试后转入死信队列", logPrefix, message.Attempts)
	return nil
}

// shouldSendToDLQ 判断消息是否应转入死信队列
func (consumer *NSQConsumer) shouldSendToDLQ(message *nsq.Message) bool {
	return consumer.dlqProducer != nil &&
		consumer.config.DLQTopic != "" &&
		message.Attempts >= consumer.config.MaxAttemptsBeforeDLQ
}

// ==================== 连接与生命周期 ====================

// connect 连接到 NSQD 与 Lookupd 节点
func (consumer *NSQConsumer) connect() error {
	for _, address := range consumer.config.NsqdAddresses {
		if err := consumer.consumer.ConnectToNSQD(address); err != nil {
			return fmt.Errorf("failed to connect to nsqd %s: %w", address, err)
		}
		log.Printf("%s已连接 nsqd: %s", logPrefix, address)
	}

	for _, address := range consumer.config.LookupdAddresses {
		if err := consumer.consumer.ConnectToNSQLookupd(address); err != nil {
			return fmt.Errorf("failed to connect to lookupd %s: %w", address, err)
		}
		log.Printf("%s已连接 lookupd: %s", logPrefix, address)
	}

	return nil
}

// Stop 停止消费者与 DLQ 生产者
func (consumer *NSQConsumer) Stop() {
	if consumer.consumer != nil {
		log.Printf("%s停止消费者 topic=%s", logPrefix, consumer.config.Topic)
		consumer.consumer.Stop()
	}
	if consumer.dlqProducer != nil {
		consumer.dlqProducer.Stop()
	}
}

// IsConnected 检查是否已连接
func (consumer *NSQConsumer) IsConnected() bool {
	return consumer.consumer.Stats().Connections > 0
}
