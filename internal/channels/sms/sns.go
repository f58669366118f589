package sms

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"messaging-gateway/internal/config"
	"messaging-gateway/internal/messaging"
)

// AdapterNameSNS AWS SNS 适配器名称
const AdapterNameSNS = "sms_aws_sns"

// SNS 短信类型属性值
const (
	smsTypeTransactional = "Transactional"
	smsTypePromotional   = "Promotional"
)

// SNSAdapter AWS SNS 短信适配器
// 短信通道的主力提供者,直接向手机号 Publish
type SNSAdapter struct {
	snsConfig     config.SNSProvider
	channelConfig messaging.ChannelConfig
	client        *sns.Client
}

// NewSNSAdapter 创建 SNS 适配器
// 配置了静态凭证时优先使用,否则走 AWS 默认凭证链
func NewSNSAdapter(ctx context.Context, snsConfig config.SNSProvider) (*SNSAdapter, error) {
	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(snsConfig.Region),
	}

	if snsConfig.AccessKeyID != "" && snsConfig.SecretAccessKey != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(snsConfig.AccessKeyID, snsConfig.SecretAccessKey, ""),
		))
	}

	awsConfiguration, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config for sns: %w", err)
	}

	return &SNSAdapter{
		snsConfig:     snsConfig,
		channelConfig: snsConfig.ChannelConfig(),
		client:        sns.NewFromConfig(awsConfiguration),
	}, nil
}

// Name 返回适配器名称
func (adapter *SNSAdapter) Name() string {
	return AdapterNameSNS
}

// Channel 返回适配器所属通道
func (adapter *SNSAdapter) Channel() messaging.ChannelType {
	return messaging.ChannelSMS
}

// ValidateRecipient 校验收件人手机号
func (adapter *SNSAdapter) ValidateRecipient(recipient messaging.Recipient) (bool, string) {
	return messaging.ValidateSMSRecipient(recipient)
}

// SendSingle 通过 SNS 发送单条短信
func (adapter *SNSAdapter) SendSingle(ctx context.Context, recipient messaging.Recipient, message messaging.Message) messaging.DeliveryResult {
	if valid, reason := adapter.ValidateRecipient(recipient); !valid {
		return messaging.NewFailedResult(adapter.Name(), adapter.Channel(), recipient.ID, messaging.NewValidationError(reason))
	}

	normalizedPhone, _ := messaging.NormalizePhoneE164(recipient.Phone)

	if adapter.channelConfig.SandboxMode {
		log.Printf("[SNSAdapter] 沙箱模式,跳过真实发送 to=%s", normalizedPhone)
		return messaging.NewSentResult(adapter.Name(), adapter.Channel(), recipient.ID,
			messaging.GenerateMessageID("sns-sandbox"), adapter.channelConfig)
	}

	output, err := adapter.client.Publish(ctx, adapter.buildPublishInput(normalizedPhone, message))
	if err != nil {
		log.Printf("[SNSAdapter] 发送失败 to=%s err=%v", normalizedPhone, err)
		return messaging.NewFailedResult(adapter.Name(), adapter.Channel(), recipient.ID, classifySNSError(err))
	}

	messageID := aws.ToString(output.MessageId)
	log.Printf("[SNSAdapter] 发送成功 to=%s message_id=%s", normalizedPhone, messageID)

	return messaging.NewSentResult(adapter.Name(), adapter.Channel(), recipient.ID, messageID, adapter.channelConfig)
}

// SendBatch 批量发送
func (adapter *SNSAdapter) SendBatch(ctx context.Context, recipients []messaging.Recipient, message messaging.Message) []messaging.DeliveryResult {
	return messaging.SendBatchSequential(ctx, adapter, adapter.channelConfig, recipients, message)
}

// GetDeliveryStatus SNS 的投递回执走 CloudWatch 日志,无法同步查询
func (adapter *SNSAdapter) GetDeliveryStatus(ctx context.Context, messageID string) messaging.DeliveryResult {
	return messaging.NewStatusPlaceholder(adapter.Name(), adapter.Channel(), messageID)
}

// buildPublishInput 构造 SNS 发布请求
// 高优先级消息标记为 Transactional,运营商会优先保障投递
func (adapter *SNSAdapter) buildPublishInput(phone string, message messaging.Message) *sns.PublishInput {
	attributes := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String(smsTypeForPriority(message.Priority)),
		},
	}

	if adapter.snsConfig.SenderID != "" {
		attributes["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(adapter.snsConfig.SenderID),
		}
	}

	return &sns.PublishInput{
		PhoneNumber:       aws.String(phone),
		Message:           aws.String(message.Content),
		MessageAttributes: attributes,
	}
}

// smsTypeForPriority 将消息优先级映射为 SNS 短信类型
func smsTypeForPriority(priority messaging.Priority) string {
	switch priority {
	case messaging.PriorityHigh, messaging.PriorityUrgent:
		return smsTypeTransactional
	default:
		return smsTypePromotional
	}
}

// classifySNSError 归类 SNS 错误
// 授权与参数类错误属永久,限流与服务端异常归为瞬时
func classifySNSError(err error) *messaging.SendError {
	var authorizationError *types.AuthorizationErrorException
	if errors.As(err, &authorizationError) {
		return messaging.NewPermanentError("sns authorization failed", err)
	}

	var invalidParameter *types.InvalidParameterException
	if errors.As(err, &invalidParameter) {
		return messaging.NewPermanentError("sns invalid parameter", err)
	}

	var optedOut *types.OptedOutException
	if errors.As(err, &optedOut) {
		return messaging.NewPermanentError("sns recipient opted out", err)
	}

	var throttled *types.ThrottledException
	if errors.As(err, &throttled) {
		return messaging.NewTransientError("sns throttled", err)
	}

	if kind := messaging.ClassifyErrorText(err.Error()); kind == messaging.ErrorKindPermanent {
		return messaging.NewPermanentError("sns publish rejected", err)
	}

	return messaging.NewTransientError("sns publish failed", err)
}
