package messaging

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"
)

// ==================== 接口定义 ====================

// ChannelAdapter 通道适配器接口
// 每个提供者对接一个外部投递服务,无状态(仅持有自身客户端句柄,
// 客户端不跨适配器共享);重试与退避由编排器负责,
// SendSingle 只执行恰好一次投递尝试
type ChannelAdapter interface {
	// Name 返回适配器名称(用于日志与结果元数据)
	Name() string

	// Channel 返回适配器所属通道
	Channel() ChannelType

	// ValidateRecipient 校验收件人,纯函数不发起 I/O
	// 返回 (false, 原因) 而非错误 —— 校验失败是预期内结果
	ValidateRecipient(recipient Recipient) (bool, string)

	// SendSingle 执行恰好一次投递尝试,内部不得重试
	// 成功时结果 Metadata 含 provider 键;失败时 ErrorKind 区分瞬时/永久
	SendSingle(ctx context.Context, recipient Recipient, message Message) DeliveryResult

	// SendBatch 批量投递,必须按输入顺序返回每个收件人一条结果
	SendBatch(ctx context.Context, recipients []Recipient, message Message) []DeliveryResult

	// GetDeliveryStatus 尽力而为的状态查询
	// 大多数提供者无法同步回答,实现可返回占位 SENT 结果
	GetDeliveryStatus(ctx context.Context, messageID string) DeliveryResult
}

// ==================== 结果构造辅助 ====================

// NewSentResult 构造成功结果
// Metadata.provider 标识实际完成投递的提供者,供可观测性使用
func NewSentResult(adapterName string, channel ChannelType, recipientID string, providerMessageID string, config ChannelConfig) DeliveryResult {
	return DeliveryResult{
		MessageID:   providerMessageID,
		RecipientID: recipientID,
		Status:      StatusSent,
		Channel:     channel,
		SentAt:      time.Now(),
		Cost:        config.CostPerMessage,
		Metadata: map[string]any{
			"provider":      adapterName,
			"cost_currency": config.CostCurrency,
		},
	}
}

// NewFailedResult 构造失败结果,保留结构化错误分类
func NewFailedResult(adapterName string, channel ChannelType, recipientID string, sendError *SendError) DeliveryResult {
	return DeliveryResult{
		MessageID:    GenerateMessageID(string(channel)),
		RecipientID:  recipientID,
		Status:       StatusFailed,
		Channel:      channel,
		SentAt:       time.Now(),
		ErrorMessage: sendError.Error(),
		ErrorKind:    sendError.Kind,
		Metadata: map[string]any{
			"provider": adapterName,
		},
	}
}

// NewStatusPlaceholder 构造状态查询的占位结果
// 真实投递状态来自回执回调,不在核心范围内
func NewStatusPlaceholder(adapterName string, channel ChannelType, messageID string) DeliveryResult {
	return DeliveryResult{
		MessageID: messageID,
		Status:    StatusSent,
		Channel:   channel,
		Metadata: map[string]any{
			"provider": adapterName,
			"note":     "synchronous status unavailable, delivery receipts arrive via webhook",
		},
	}
}

// ==================== 批量发送辅助 ====================

// SendBatchSequential 默认的批量发送实现
// 按顺序逐个调用 SendSingle,收件人之间插入限速休眠;
// 拥有真正批量 API 的提供者可自行覆盖 SendBatch
func SendBatchSequential(
	ctx context.Context,
	adapter ChannelAdapter,
	config ChannelConfig,
	recipients []Recipient,
	message Message,
) []DeliveryResult {
	results := make([]DeliveryResult, 0, len(recipients))

	for index, recipient := range recipients {
		if index > 0 {
			if err := ApplyRateLimit(ctx, config.RateLimit); err != nil {
				results = append(results, NewFailedResult(
					adapter.Name(),
					adapter.Channel(),
					recipient.ID,
					NewTransientError("batch send canceled", err),
				))
				continue
			}
		}

		results = append(results, adapter.SendSingle(ctx, recipient, message))
	}

	return results
}

// ApplyRateLimit 适配器级限速
// 简单的 sleep(1/rate) 节奏控制,不是令牌桶:
// 并发调用方各自独立休眠时,聚合吞吐会超过名义限制
func ApplyRateLimit(ctx context.Context, rateLimit float64) error {
	if rateLimit <= 0 {
		return nil
	}

	interval := time.Duration(float64(time.Second) / rateLimit)

	select {
	case <-time.After(interval):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ==================== 消息ID生成 ====================

// GenerateMessageID 生成唯一的消息ID
func GenerateMessageID(prefix string) string {
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano(), generateRandomUint32())
}

// generateRandomUint32 生成随机的 uint32 数字
func generateRandomUint32() uint32 {
	var randomBytes [4]byte
	_, _ = rand.Read(randomBytes[:])
	return binary.LittleEndian.Uint32(randomBytes[:])
}
