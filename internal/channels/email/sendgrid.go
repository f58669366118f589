package email

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"messaging-gateway/internal/config"
	"messaging-gateway/internal/messaging"
)

// AdapterNameSendGrid SendGrid 适配器名称
const AdapterNameSendGrid = "email_sendgrid"

// SendGridAdapter SendGrid 邮件适配器
// 邮件通道的次级提供者,SES 不可用时顶上
type SendGridAdapter struct {
	sendGridConfig config.SendGridProvider
	channelConfig  messaging.ChannelConfig
	client         *sendgrid.Client
}

// NewSendGridAdapter 创建 SendGrid 适配器
func NewSendGridAdapter(sendGridConfig config.SendGridProvider) *SendGridAdapter {
	return &SendGridAdapter{
		sendGridConfig: sendGridConfig,
		channelConfig:  sendGridConfig.ChannelConfig(),
		client:         sendgrid.NewSendClient(sendGridConfig.APIKey),
	}
}

// Name 返回适配器名称
func (adapter *SendGridAdapter) Name() string {
	return AdapterNameSendGrid
}

// Channel 返回适配器所属通道
func (adapter *SendGridAdapter) Channel() messaging.ChannelType {
	return messaging.ChannelEmail
}

// ValidateRecipient 校验收件人邮箱
func (adapter *SendGridAdapter) ValidateRecipient(recipient messaging.Recipient) (bool, string) {
	return messaging.ValidateEmailRecipient(recipient)
}

// SendSingle 通过 SendGrid 发送单封邮件
func (adapter *SendGridAdapter) SendSingle(ctx context.Context, recipient messaging.Recipient, message messaging.Message) messaging.DeliveryResult {
	if valid, reason := adapter.ValidateRecipient(recipient); !valid {
		return messaging.NewFailedResult(adapter.Name(), adapter.Channel(), recipient.ID, messaging.NewValidationError(reason))
	}

	if adapter.channelConfig.SandboxMode {
		log.Printf("[SendGridAdapter] 沙箱模式,跳过真实发送 to=%s subject=%s", recipient.Email, message.Subject)
		return messaging.NewSentResult(adapter.Name(), adapter.Channel(), recipient.ID,
			messaging.GenerateMessageID("sendgrid-sandbox"), adapter.channelConfig)
	}

	response, err := adapter.client.SendWithContext(ctx, adapter.buildMail(recipient, message))
	if err != nil {
		log.Printf("[SendGridAdapter] 发送失败 to=%s err=%v", recipient.Email, err)
		return messaging.NewFailedResult(adapter.Name(), adapter.Channel(), recipient.ID,
			messaging.NewTransientError("sendgrid request failed", err))
	}

	if response.StatusCode >= http.StatusBadRequest {
		log.Printf("[SendGridAdapter] 发送被拒 to=%s status=%d body=%s", recipient.Email, response.StatusCode, response.Body)
		return messaging.NewFailedResult(adapter.Name(), adapter.Channel(), recipient.ID,
			classifySendGridStatus(response.StatusCode, response.Body))
	}

	messageID := extractSendGridMessageID(response.Headers)
	if messageID == "" {
		messageID = messaging.GenerateMessageID("sendgrid")
	}
	log.Printf("[SendGridAdapter] 发送成功 to=%s message_id=%s", recipient.Email, messageID)

	return messaging.NewSentResult(adapter.Name(), adapter.Channel(), recipient.ID, messageID, adapter.channelConfig)
}

// SendBatch 批量发送
func (adapter *SendGridAdapter) SendBatch(ctx context.Context, recipients []messaging.Recipient, message messaging.Message) []messaging.DeliveryResult {
	return messaging.SendBatchSequential(ctx, adapter, adapter.channelConfig, recipients, message)
}

// GetDeliveryStatus SendGrid 的投递事件走 Event Webhook,无法同步查询
func (adapter *SendGridAdapter) GetDeliveryStatus(ctx context.Context, messageID string) messaging.DeliveryResult {
	return messaging.NewStatusPlaceholder(adapter.Name(), adapter.Channel(), messageID)
}

// buildMail 构造 SendGrid 邮件对象
func (adapter *SendGridAdapter) buildMail(recipient messaging.Recipient, message messaging.Message) *mail.SGMailV3 {
	from := mail.NewEmail(adapter.senderName(message), adapter.senderEmail(message))
	to := mail.NewEmail(recipient.Name, recipient.Email)

	mailMessage := mail.NewSingleEmail(from, message.Subject, to, "", message.Content)

	if message.ReplyTo != "" {
		mailMessage.SetReplyTo(mail.NewEmail("", message.ReplyTo))
	}

	for _, attachment := range message.Attachments {
		sgAttachment := mail.NewAttachment()
		sgAttachment.SetFilename(attachment.FileName)
		sgAttachment.SetType(attachmentMimeType(attachment))
		sgAttachment.SetContent(base64.StdEncoding.EncodeToString(attachment.Content))
		sgAttachment.SetDisposition("attachment")
		mailMessage.AddAttachment(sgAttachment)
	}

	return mailMessage
}

// senderEmail 解析发件人地址,消息级覆盖优先于配置
func (adapter *SendGridAdapter) senderEmail(message messaging.Message) string {
	if message.SenderEmail != "" {
		return message.SenderEmail
	}
	return adapter.sendGridConfig.From
}

// senderName 解析发件人显示名称
func (adapter *SendGridAdapter) senderName(message messaging.Message) string {
	if message.SenderName != "" {
		return message.SenderName
	}
	return adapter.sendGridConfig.FromName
}

// classifySendGridStatus 根据 HTTP 状态码归类错误
// 401/403 是凭证问题,4xx 是请求本身的问题,都属永久;
// 429 限流与 5xx 服务端异常归为瞬时
func classifySendGridStatus(statusCode int, body string) *messaging.SendError {
	err := fmt.Errorf("sendgrid responded %d: %s", statusCode, body)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return messaging.NewTransientError("sendgrid rate limited", err)
	case statusCode >= http.StatusInternalServerError:
		return messaging.NewTransientError("sendgrid server error", err)
	default:
		return messaging.NewPermanentError("sendgrid rejected message", err)
	}
}

// extractSendGridMessageID 从响应头中提取消息ID
func extractSendGridMessageID(headers map[string][]string) string {
	for _, headerName := range []string{"X-Message-Id", "X-Message-ID"} {
		if values, ok := headers[headerName]; ok && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}
