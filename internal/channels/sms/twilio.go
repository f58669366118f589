package sms

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"messaging-gateway/internal/config"
	"messaging-gateway/internal/messaging"
)

// AdapterNameTwilio Twilio 适配器名称
const AdapterNameTwilio = "sms_twilio"

// TwilioAdapter Twilio 短信适配器
// 短信通道的次级提供者,SNS 不可用时顶上
type TwilioAdapter struct {
	twilioConfig  config.TwilioProvider
	channelConfig messaging.ChannelConfig
	client        *twilio.RestClient
}

// NewTwilioAdapter 创建 Twilio 适配器
func NewTwilioAdapter(twilioConfig config.TwilioProvider) *TwilioAdapter {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: twilioConfig.AccountSID,
		Password: twilioConfig.AuthToken,
	})

	return &TwilioAdapter{
		twilioConfig:  twilioConfig,
		channelConfig: twilioConfig.ChannelConfig(),
		client:        client,
	}
}

// Name 返回适配器名称
func (adapter *TwilioAdapter) Name() string {
	return AdapterNameTwilio
}

// Channel 返回适配器所属通道
func (adapter *TwilioAdapter) Channel() messaging.ChannelType {
	return messaging.ChannelSMS
}

// ValidateRecipient 校验收件人手机号
func (adapter *TwilioAdapter) ValidateRecipient(recipient messaging.Recipient) (bool, string) {
	return messaging.ValidateSMSRecipient(recipient)
}

// SendSingle 通过 Twilio 发送单条短信
func (adapter *TwilioAdapter) SendSingle(ctx context.Context, recipient messaging.Recipient, message messaging.Message) messaging.DeliveryResult {
	if valid, reason := adapter.ValidateRecipient(recipient); !valid {
		return messaging.NewFailedResult(adapter.Name(), adapter.Channel(), recipient.ID, messaging.NewValidationError(reason))
	}

	normalizedPhone, _ := messaging.NormalizePhoneE164(recipient.Phone)

	if adapter.channelConfig.SandboxMode {
		log.Printf("[TwilioAdapter] 沙箱模式,跳过真实发送 to=%s", normalizedPhone)
		return messaging.NewSentResult(adapter.Name(), adapter.Channel(), recipient.ID,
			messaging.GenerateMessageID("twilio-sandbox"), adapter.channelConfig)
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetTo(normalizedPhone)
	params.SetFrom(adapter.senderPhone(message))
	params.SetBody(message.Content)

	response, err := adapter.client.Api.CreateMessage(params)
	if err != nil {
		log.Printf("[TwilioAdapter] 发送失败 to=%s err=%v", normalizedPhone, err)
		return messaging.NewFailedResult(adapter.Name(), adapter.Channel(), recipient.ID, classifyTwilioError(err))
	}

	messageID := ""
	if response.Sid != nil {
		messageID = *response.Sid
	}
	if messageID == "" {
		messageID = messaging.GenerateMessageID("twilio")
	}
	log.Printf("[TwilioAdapter] 发送成功 to=%s message_id=%s", normalizedPhone, messageID)

	return messaging.NewSentResult(adapter.Name(), adapter.Channel(), recipient.ID, messageID, adapter.channelConfig)
}

// SendBatch 批量发送
func (adapter *TwilioAdapter) SendBatch(ctx context.Context, recipients []messaging.Recipient, message messaging.Message) []messaging.DeliveryResult {
	return messaging.SendBatchSequential(ctx, adapter, adapter.channelConfig, recipients, message)
}

// GetDeliveryStatus Twilio 的投递状态走 StatusCallback 回调,无法同步查询
func (adapter *TwilioAdapter) GetDeliveryStatus(ctx context.Context, messageID string) messaging.DeliveryResult {
	return messaging.NewStatusPlaceholder(adapter.Name(), adapter.Channel(), messageID)
}

// senderPhone 解析发送号码,消息级覆盖优先于配置
func (adapter *TwilioAdapter) senderPhone(message messaging.Message) string {
	if message.SenderPhone != "" {
		return message.SenderPhone
	}
	return adapter.twilioConfig.FromNumber
}

// classifyTwilioError 归类 Twilio 错误
// 根据 REST 错误的 HTTP 状态码判断:401/403 与其它 4xx 属永久,
// 429 限流与 5xx 归为瞬时
func classifyTwilioError(err error) *messaging.SendError {
	var restError *twilioclient.TwilioRestError
	if errors.As(err, &restError) {
		switch {
		case restError.Status == http.StatusTooManyRequests:
			return messaging.NewTransientError("twilio rate limited", err)
		case restError.Status >= http.StatusInternalServerError:
			return messaging.NewTransientError("twilio server error", err)
		default:
			return messaging.NewPermanentError("twilio rejected message", err)
		}
	}

	if kind := messaging.ClassifyErrorText(err.Error()); kind == messaging.ErrorKindPermanent {
		return messaging.NewPermanentError("twilio send rejected", err)
	}

	return messaging.NewTransientError("twilio send failed", err)
}
