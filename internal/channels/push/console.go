package push

import (
	"context"
	"log"

	"messaging-gateway/internal/config"
	"messaging-gateway/internal/messaging"
)

// AdapterNameConsole 控制台推送适配器名称
const AdapterNameConsole = "push_console"

// ConsoleAdapter 控制台推送适配器
// 推送通道目前只有这一个日志实现,真实推送服务接入后
// 它退为兜底提供者
type ConsoleAdapter struct {
	channelConfig messaging.ChannelConfig
}

// NewConsoleAdapter 创建控制台推送适配器
func NewConsoleAdapter(consoleConfig config.ConsoleProvider) *ConsoleAdapter {
	return &ConsoleAdapter{
		channelConfig: consoleConfig.ChannelConfig(),
	}
}

// Name 返回适配器名称
func (adapter *ConsoleAdapter) Name() string {
	return AdapterNameConsole
}

// Channel 返回适配器所属通道
func (adapter *ConsoleAdapter) Channel() messaging.ChannelType {
	return messaging.ChannelPush
}

// ValidateRecipient 校验收件人推送令牌
func (adapter *ConsoleAdapter) ValidateRecipient(recipient messaging.Recipient) (bool, string) {
	return messaging.ValidatePushRecipient(recipient)
}

// SendSingle "发送"单条推送
// 除校验失败外永远成功,成本恒为零
func (adapter *ConsoleAdapter) SendSingle(ctx context.Context, recipient messaging.Recipient, message messaging.Message) messaging.DeliveryResult {
	if valid, reason := adapter.ValidateRecipient(recipient); !valid {
		return messaging.NewFailedResult(adapter.Name(), adapter.Channel(), recipient.ID, messaging.NewValidationError(reason))
	}

	log.Printf("[ConsolePush] token=%s... subject=%s content=%s",
		truncateToken(recipient.PushToken), message.Subject, message.Content)

	result := messaging.NewSentResult(adapter.Name(), adapter.Channel(), recipient.ID,
		messaging.GenerateMessageID("console-push"), adapter.channelConfig)
	result.Cost = 0
	return result
}

// SendBatch 批量发送
func (adapter *ConsoleAdapter) SendBatch(ctx context.Context, recipients []messaging.Recipient, message messaging.Message) []messaging.DeliveryResult {
	return messaging.SendBatchSequential(ctx, adapter, adapter.channelConfig, recipients, message)
}

// GetDeliveryStatus 控制台投递没有真实状态
func (adapter *ConsoleAdapter) GetDeliveryStatus(ctx context.Context, messageID string) messaging.DeliveryResult {
	return messaging.NewStatusPlaceholder(adapter.Name(), adapter.Channel(), messageID)
}

// truncateToken 截断令牌,避免完整令牌落入日志
func truncateToken(token string) string {
	const visibleLength = 8
	if len(token) <= visibleLength {
		return token
	}
	return token[:visibleLength]
}
