package messaging

import "time"

// ChannelType 投递通道类型
type ChannelType string

const (
	ChannelEmail ChannelType = "email" // 邮件
	ChannelSMS   ChannelType = "sms"   // 短信
	ChannelPush  ChannelType = "push"  // 推送
)

// Priority 消息优先级
// 仅作为提供者级别的提示(如 SNS 的 SMSType、SMTP 的 X-Priority),
// 不影响编排器的提供者顺序
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ProviderPriority 提供者优先级
// 仅用于构建尝试序列时的排序,数值越小越先尝试
type ProviderPriority int

const (
	ProviderPrimary   ProviderPriority = 1 // 主提供者
	ProviderSecondary ProviderPriority = 2 // 次提供者
	ProviderTertiary  ProviderPriority = 3 // 三级提供者
	ProviderFallback  ProviderPriority = 4 // 兜底提供者
)

// DeliveryStatus 投递状态
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusSent      DeliveryStatus = "sent"
	StatusFailed    DeliveryStatus = "failed"
	StatusDelivered DeliveryStatus = "delivered" // 由回执回调设置,核心不产生
)

// Recipient 单通道的投递目标
// 合法性校验由各适配器的 ValidateRecipient 执行,
// 构造时不强制任何地址字段存在
type Recipient struct {
	ID          string          `json:"id"`                    // 调用方提供的关联键
	Email       string          `json:"email,omitempty"`       // 邮箱地址
	Phone       string          `json:"phone,omitempty"`       // 手机号码
	PushToken   string          `json:"push_token,omitempty"`  // 推送设备令牌
	Name        string          `json:"name,omitempty"`        // 显示名称
	Metadata    map[string]any  `json:"metadata,omitempty"`    // 自由格式元数据
	Preferences map[string]bool `json:"preferences,omitempty"` // 按通道的订阅偏好
}

// Attachment 邮件附件
type Attachment struct {
	FileName string `json:"file_name"`         // 文件名称
	FileType string `json:"file_type"`         // MIME 类型
	Content  []byte `json:"content,omitempty"` // 文件内容
}

// Message 不可变的消息内容
// 适配器只读借用,不得修改(因此各接口均按值传递)
type Message struct {
	Subject           string         `json:"subject,omitempty"` // 仅邮件使用
	Content           string         `json:"content"`           // 通道适用的正文
	TemplateID        string         `json:"template_id,omitempty"`
	TemplateVariables map[string]any `json:"template_variables,omitempty"`
	Attachments       []Attachment   `json:"attachments,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	Priority          Priority       `json:"priority,omitempty"`

	// 通道级发件人覆盖
	SenderName  string `json:"sender_name,omitempty"`
	SenderEmail string `json:"sender_email,omitempty"`
	SenderPhone string `json:"sender_phone,omitempty"`
	ReplyTo     string `json:"reply_to,omitempty"`
}

// ChannelConfig 单个适配器的可调参数
// 在适配器初始化时构造一次,进程内不可变
type ChannelConfig struct {
	Enabled        bool          `json:"enabled"`
	RateLimit      float64       `json:"rate_limit"`     // 每秒消息数
	RetryAttempts  int           `json:"retry_attempts"` // 同提供者瞬时错误重试次数
	RetryDelay     time.Duration `json:"retry_delay"`    // 指数退避基准间隔
	BatchSize      int           `json:"batch_size"`
	Timeout        time.Duration `json:"timeout"` // 单次网络尝试上限
	CostPerMessage float64       `json:"cost_per_message"`
	CostCurrency   string        `json:"cost_currency"`
	SandboxMode    bool          `json:"sandbox_mode"`
}

// DeliveryResult 统一的投递结果
// 无论最终由哪个适配器完成,调用方拿到的都是这一结构
type DeliveryResult struct {
	MessageID    string         `json:"message_id"`             // 提供者返回或合成的消息ID
	RecipientID  string         `json:"recipient_id"`           // 收件人关联键
	Status       DeliveryStatus `json:"status"`                 // 最终状态
	Channel      ChannelType    `json:"channel"`                // 投递通道
	SentAt       time.Time      `json:"sent_at"`                // 发出时间
	DeliveredAt  *time.Time     `json:"delivered_at,omitempty"` // 由回执回调填充,核心不设置
	ErrorMessage string         `json:"error_message,omitempty"`
	ErrorKind    ErrorKind      `json:"error_kind,omitempty"` // 结构化错误分类
	Cost         float64        `json:"cost"`
	Metadata     map[string]any `json:"metadata,omitempty"` // 必含 provider 键,标识实际完成的提供者
}

// SendRequest 异步投递请求
// 入队后由消费者还原并驱动编排器
type SendRequest struct {
	Recipient Recipient   `json:"recipient"`
	Message   Message     `json:"message"`
	Channel   ChannelType `json:"channel"`
}
