package email

import (
	"context"
	"log"

	"messaging-gateway/internal/config"
	"messaging-gateway/internal/messaging"
)

// AdapterNameSMTP SMTP 适配器名称
const AdapterNameSMTP = "email_smtp"

// SMTPAdapter SMTP 直连邮件适配器
// 邮件通道的最后手段:不依赖任何云服务商,
// 只要有一台可达的 SMTP 服务器就能投递
type SMTPAdapter struct {
	smtpConfig    config.SMTPProvider
	channelConfig messaging.ChannelConfig
	transport     *SMTPTransport
}

// NewSMTPAdapter 创建 SMTP 适配器
func NewSMTPAdapter(smtpConfig config.SMTPProvider) *SMTPAdapter {
	return &SMTPAdapter{
		smtpConfig:    smtpConfig,
		channelConfig: smtpConfig.ChannelConfig(),
		transport:     NewSMTPTransport(smtpConfig),
	}
}

// Name 返回适配器名称
func (adapter *SMTPAdapter) Name() string {
	return AdapterNameSMTP
}

// Channel 返回适配器所属通道
func (adapter *SMTPAdapter) Channel() messaging.ChannelType {
	return messaging.ChannelEmail
}

// ValidateRecipient 校验收件人邮箱
func (adapter *SMTPAdapter) ValidateRecipient(recipient messaging.Recipient) (bool, string) {
	return messaging.ValidateEmailRecipient(recipient)
}

// SendSingle 通过 SMTP 发送单封邮件
func (adapter *SMTPAdapter) SendSingle(ctx context.Context, recipient messaging.Recipient, message messaging.Message) messaging.DeliveryResult {
	if valid, reason := adapter.ValidateRecipient(recipient); !valid {
		return messaging.NewFailedResult(adapter.Name(), adapter.Channel(), recipient.ID, messaging.NewValidationError(reason))
	}

	if adapter.channelConfig.SandboxMode {
		log.Printf("[SMTPAdapter] 沙箱模式,跳过真实发送 to=%s subject=%s", recipient.Email, message.Subject)
		return messaging.NewSentResult(adapter.Name(), adapter.Channel(), recipient.ID,
			messaging.GenerateMessageID("smtp-sandbox"), adapter.channelConfig)
	}

	rawMessage := BuildMIME(BuildParams{
		From:        adapter.smtpConfig.From,
		FromName:    adapter.senderName(message),
		To:          recipient.Email,
		ReplyTo:     message.ReplyTo,
		Subject:     message.Subject,
		BodyHTML:    message.Content,
		Priority:    message.Priority,
		Attachments: message.Attachments,
	})

	if err := adapter.transport.SendRaw(ctx, rawMessage, []string{recipient.Email}); err != nil {
		log.Printf("[SMTPAdapter] 发送失败 to=%s err=%v", recipient.Email, err)
		return messaging.NewFailedResult(adapter.Name(), adapter.Channel(), recipient.ID, classifySMTPError(err))
	}

	// SMTP 协议不返回消息ID,本地合成一个
	messageID := messaging.GenerateMessageID("smtp")
	log.Printf("[SMTPAdapter] 发送成功 to=%s message_id=%s", recipient.Email, messageID)

	return messaging.NewSentResult(adapter.Name(), adapter.Channel(), recipient.ID, messageID, adapter.channelConfig)
}

// SendBatch 批量发送
func (adapter *SMTPAdapter) SendBatch(ctx context.Context, recipients []messaging.Recipient, message messaging.Message) []messaging.DeliveryResult {
	return messaging.SendBatchSequential(ctx, adapter, adapter.channelConfig, recipients, message)
}

// GetDeliveryStatus SMTP 无法同步查询投递状态
func (adapter *SMTPAdapter) GetDeliveryStatus(ctx context.Context, messageID string) messaging.DeliveryResult {
	return messaging.NewStatusPlaceholder(adapter.Name(), adapter.Channel(), messageID)
}

// senderName 解析发件人显示名称
// 消息级覆盖优先于配置
func (adapter *SMTPAdapter) senderName(message messaging.Message) string {
	if message.SenderName != "" {
		return message.SenderName
	}
	return adapter.smtpConfig.FromName
}

// classifySMTPError 归类 SMTP 错误
// 认证失败是永久错误,连接与协议层面的失败默认瞬时
func classifySMTPError(err error) *messaging.SendError {
	kind := messaging.ClassifyErrorText(err.Error())
	if kind == messaging.ErrorKindPermanent {
		return messaging.NewPermanentError("smtp send rejected", err)
	}
	return messaging.NewTransientError("smtp send failed", err)
}
