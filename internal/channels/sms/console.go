package sms

import (
	"context"
	"log"

	"messaging-gateway/internal/config"
	"messaging-gateway/internal/messaging"
)

// AdapterNameConsole 控制台短信适配器名称
const AdapterNameConsole = "sms_console"

// ConsoleAdapter 控制台短信适配器
// 短信通道的兜底提供者:不发起任何网络调用,只把消息打到日志;
// 在无真实凭证的开发环境里,它让整条故障转移链可以走通
type ConsoleAdapter struct {
	channelConfig messaging.ChannelConfig
}

// NewConsoleAdapter 创建控制台短信适配器
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
	return messaging.ChannelSMS
}

// ValidateRecipient 校验收件人手机号
func (adapter *ConsoleAdapter) ValidateRecipient(recipient messaging.Recipient) (bool, string) {
	return messaging.ValidateSMSRecipient(recipient)
}

// SendSingle "发送"单条短信
// 除校验失败外永远成功,成本恒为零
func (adapter *ConsoleAdapter) SendSingle(ctx context.Context, recipient messaging.Recipient, message messaging.Message) messaging.DeliveryResult {
	if valid, reason := adapter.ValidateRecipient(recipient); !valid {
		return messaging.NewFailedResult(adapter.Name(), adapter.Channel(), recipient.ID, messaging.NewValidationError(reason))
	}

	normalizedPhone, _ := messaging.NormalizePhoneE164(recipient.Phone)
	log.Printf("[ConsoleSMS] to=%s content=%s", normalizedPhone, message.Content)

	result := messaging.NewSentResult(adapter.Name(), adapter.Channel(), recipient.ID,
		messaging.GenerateMessageID("console"), adapter.channelConfig)
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
