package email

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"messaging-gateway/internal/config"
	"messaging-gateway/internal/messaging"
)

// AdapterNameSES AWS SES 适配器名称
const AdapterNameSES = "email_aws_ses"

// SESAdapter AWS SES 邮件适配器
// 邮件通道的主力提供者,走 SESv2 API
type SESAdapter struct {
	sesConfig     config.SESProvider
	channelConfig messaging.ChannelConfig
	client        *sesv2.Client
}

// NewSESAdapter 创建 SES 适配器
// 配置了静态凭证时优先使用,否则走 AWS 默认凭证链
func NewSESAdapter(ctx context.Context, sesConfig config.SESProvider) (*SESAdapter, error) {
	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(sesConfig.Region),
	}

	if sesConfig.AccessKeyID != "" && sesConfig.SecretAccessKey != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(sesConfig.AccessKeyID, sesConfig.SecretAccessKey, ""),
		))
	}

	awsConfiguration, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config for ses: %w", err)
	}

	return &SESAdapter{
		sesConfig:     sesConfig,
		channelConfig: sesConfig.ChannelConfig(),
		client:        sesv2.NewFromConfig(awsConfiguration),
	}, nil
}

// Name 返回适配器名称
func (adapter *SESAdapter) Name() string {
	return AdapterNameSES
}

// Channel 返回适配器所属通道
func (adapter *SESAdapter) Channel() messaging.ChannelType {
	return messaging.ChannelEmail
}

// ValidateRecipient 校验收件人邮箱
func (adapter *SESAdapter) ValidateRecipient(recipient messaging.Recipient) (bool, string) {
	return messaging.ValidateEmailRecipient(recipient)
}

// SendSingle 通过 SES 发送单封邮件
func (adapter *SESAdapter) SendSingle(ctx context.Context, recipient messaging.Recipient, message messaging.Message) messaging.DeliveryResult {
	if valid, reason := adapter.ValidateRecipient(recipient); !valid {
		return messaging.NewFailedResult(adapter.Name(), adapter.Channel(), recipient.ID, messaging.NewValidationError(reason))
	}

	if adapter.channelConfig.SandboxMode {
		log.Printf("[SESAdapter] 沙箱模式,跳过真实发送 to=%s subject=%s", recipient.Email, message.Subject)
		return messaging.NewSentResult(adapter.Name(), adapter.Channel(), recipient.ID,
			messaging.GenerateMessageID("ses-sandbox"), adapter.channelConfig)
	}

	output, err := adapter.client.SendEmail(ctx, adapter.buildSendInput(recipient, message))
	if err != nil {
		log.Printf("[SESAdapter] 发送失败 to=%s err=%v", recipient.Email, err)
		return messaging.NewFailedResult(adapter.Name(), adapter.Channel(), recipient.ID, classifySESError(err))
	}

	messageID := aws.ToString(output.MessageId)
	log.Printf("[SESAdapter] 发送成功 to=%s message_id=%s", recipient.Email, messageID)

	return messaging.NewSentResult(adapter.Name(), adapter.Channel(), recipient.ID, messageID, adapter.channelConfig)
}

// SendBatch 批量发送
func (adapter *SESAdapter) SendBatch(ctx context.Context, recipients []messaging.Recipient, message messaging.Message) []messaging.DeliveryResult {
	return messaging.SendBatchSequential(ctx, adapter, adapter.channelConfig, recipients, message)
}

// GetDeliveryStatus SES 的投递回执走 SNS/EventBridge 回调,无法同步查询
func (adapter *SESAdapter) GetDeliveryStatus(ctx context.Context, messageID string) messaging.DeliveryResult {
	return messaging.NewStatusPlaceholder(adapter.Name(), adapter.Channel(), messageID)
}

// buildSendInput 构造 SESv2 发送请求
func (adapter *SESAdapter) buildSendInput(recipient messaging.Recipient, message messaging.Message) *sesv2.SendEmailInput {
	fromAddress := formatAddress(adapter.senderName(message), adapter.senderEmail(message))

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{recipient.Email},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(message.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(message.Content),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	if message.ReplyTo != "" {
		input.ReplyToAddresses = []string{message.ReplyTo}
	}

	if adapter.sesConfig.ConfigurationSet != "" {
		input.ConfigurationSetName = aws.String(adapter.sesConfig.ConfigurationSet)
	}

	return input
}

// senderEmail 解析发件人地址,消息级覆盖优先于配置
func (adapter *SESAdapter) senderEmail(message messaging.Message) string {
	if message.SenderEmail != "" {
		return message.SenderEmail
	}
	return adapter.sesConfig.From
}

// senderName 解析发件人显示名称
func (adapter *SESAdapter) senderName(message messaging.Message) string {
	if message.SenderName != "" {
		return message.SenderName
	}
	return adapter.sesConfig.FromName
}

// classifySESError 归类 SES 错误
// 硬性拒绝与账号级限制是永久错误,限流与服务端异常归为瞬时
func classifySESError(err error) *messaging.SendError {
	var messageRejected *types.MessageRejected
	if errors.As(err, &messageRejected) {
		return messaging.NewPermanentError("ses rejected message", err)
	}

	var domainNotVerified *types.MailFromDomainNotVerifiedException
	if errors.As(err, &domainNotVerified) {
		return messaging.NewPermanentError("ses sender domain not verified", err)
	}

	var accountSuspended *types.SendingPausedException
	if errors.As(err, &accountSuspended) {
		return messaging.NewPermanentError("ses account sending paused", err)
	}

	var badRequest *types.BadRequestException
	if errors.As(err, &badRequest) {
		return messaging.NewPermanentError("ses bad request", err)
	}

	if kind := messaging.ClassifyErrorText(err.Error()); kind == messaging.ErrorKindPermanent {
		return messaging.NewPermanentError("ses send rejected", err)
	}

	return messaging.NewTransientError("ses send failed", err)
}
