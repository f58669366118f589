package config

import (
	"fmt"
	"os"
	"time"

	"messaging-gateway/internal/messaging"

	"gopkg.in/yaml.v3"
)

// 默认配置常量
const (
	// 应用默认配置
	DefaultHTTPAddress    = ":8080"
	DefaultRequestTimeout = 5 * time.Second

	// 存储默认配置
	DefaultRedisNamespace = "messaging"
	DefaultStatusTTL      = 24 * time.Hour

	// NSQ 队列默认配置
	DefaultNSQTopic       = "delivery-requests"
	DefaultNSQChannel     = "delivery-workers"
	DefaultNSQMaxInFlight = 128
	DefaultNSQConcurrency = 8
	DefaultNSQMaxAttempts = 5
	DefaultDLQTopicSuffix = ".DLQ"

	// 通道默认配置
	DefaultChannelTimeout = 30 * time.Second
	DefaultRetryDelay     = time.Second
	DefaultBatchSize      = 50
	DefaultCostCurrency   = "USD"

	// 故障转移默认配置
	DefaultInterProviderDelay = 2 * time.Second

	// 兜底提供者的熔断阈值
	// 配置成一个天文数字,确保 console 兜底永远不会被自身熔断器跳过
	FallbackFailureThreshold = 1 << 30
)

// ChannelSettings 单个适配器的通用可调参数
type ChannelSettings struct {
	Enabled        bool          `yaml:"Enabled"`        // 是否启用
	RateLimit      float64       `yaml:"RateLimit"`      // 每秒消息数
	RetryAttempts  int           `yaml:"RetryAttempts"`  // 瞬时错误重试次数
	RetryDelay     time.Duration `yaml:"RetryDelay"`     // 退避基准间隔
	BatchSize      int           `yaml:"BatchSize"`      // 批量大小
	Timeout        time.Duration `yaml:"Timeout"`        // 单次尝试超时
	CostPerMessage float64       `yaml:"CostPerMessage"` // 单条成本
	CostCurrency   string        `yaml:"CostCurrency"`   // 成本币种
	SandboxMode    bool          `yaml:"SandboxMode"`    // 沙箱模式(不发起真实调用)
}

// ChannelConfig 转换为核心层的通道配置
func (settings ChannelSettings) ChannelConfig() messaging.ChannelConfig {
	return messaging.ChannelConfig{
		Enabled:        settings.Enabled,
		RateLimit:      settings.RateLimit,
		RetryAttempts:  settings.RetryAttempts,
		RetryDelay:     settings.RetryDelay,
		BatchSize:      settings.BatchSize,
		Timeout:        settings.Timeout,
		CostPerMessage: settings.CostPerMessage,
		CostCurrency:   settings.CostCurrency,
		SandboxMode:    settings.SandboxMode,
	}
}

// BreakerSettings 单个适配器的熔断器参数
type BreakerSettings struct {
	FailureThreshold int           `yaml:"FailureThreshold"` // 连续失败多少次后熔断
	SuccessThreshold int           `yaml:"SuccessThreshold"` // 半开状态连续成功多少次后恢复
	Timeout          time.Duration `yaml:"Timeout"`          // 熔断后多久进入半开
}

// BreakerConfig 转换为核心层的熔断器配置
func (settings BreakerSettings) BreakerConfig() messaging.BreakerConfig {
	return messaging.BreakerConfig{
		FailureThreshold: settings.FailureThreshold,
		SuccessThreshold: settings.SuccessThreshold,
		Timeout:          settings.Timeout,
	}
}

// SESProvider AWS SES 邮件服务配置
type SESProvider struct {
	Region           string `yaml:"Region"`           // AWS 区域
	AccessKeyID      string `yaml:"AccessKeyID"`      // 静态凭证(留空则走默认凭证链)
	SecretAccessKey  string `yaml:"SecretAccessKey"`  // 静态凭证
	From             string `yaml:"From"`             // 已验证的发件人地址
	FromName         string `yaml:"FromName"`         // 发件人显示名称
	ConfigurationSet string `yaml:"ConfigurationSet"` // SES 配置集(可选)
	ChannelSettings  `yaml:",inline"`
	Breaker          BreakerSettings `yaml:"Breaker"`
}

// SendGridProvider SendGrid 邮件服务配置
type SendGridProvider struct {
	APIKey          string `yaml:"APIKey"`
	From            string `yaml:"From"`
	FromName        string `yaml:"FromName"`
	ChannelSettings `yaml:",inline"`
	Breaker         BreakerSettings `yaml:"Breaker"`
}

// SMTPProvider SMTP 直连邮件服务配置
// 作为邮件通道的最后手段,默认限速到约 1 条/秒
type SMTPProvider struct {
	SMTPHost        string `yaml:"SMTPHost"` // SMTP 服务器主机名
	SMTPPort        int    `yaml:"SMTPPort"` // SMTP 服务器端口
	Username        string `yaml:"Username"` // 认证用户名
	Password        string `yaml:"Password"` // 认证密码
	UseTLS          bool   `yaml:"UseTLS"`   // 是否启用 STARTTLS
	UseSSL          bool   `yaml:"UseSSL"`   // 是否使用 SSL 直连
	From            string `yaml:"From"`     // 发件人地址
	FromName        string `yaml:"FromName"` // 发件人显示名称
	ChannelSettings `yaml:",inline"`
	Breaker         BreakerSettings `yaml:"Breaker"`
}

// SNSProvider AWS SNS 短信服务配置
type SNSProvider struct {
	Region          string `yaml:"Region"`
	AccessKeyID     string `yaml:"AccessKeyID"`
	SecretAccessKey string `yaml:"SecretAccessKey"`
	SenderID        string `yaml:"SenderID"` // 发送方标识(部分地区支持)
	ChannelSettings `yaml:",inline"`
	Breaker         BreakerSettings `yaml:"Breaker"`
}

// TwilioProvider Twilio 短信服务配置
type TwilioProvider struct {
	AccountSID      string `yaml:"AccountSID"`
	AuthToken       string `yaml:"AuthToken"`
	FromNumber      string `yaml:"FromNumber"` // E.164 格式的发送号码
	ChannelSettings `yaml:",inline"`
	Breaker         BreakerSettings `yaml:"Breaker"`
}

// ConsoleProvider 控制台兜底通道配置
// 无真实凭证的环境下仍可"投递",仅打印日志
type ConsoleProvider struct {
	ChannelSettings `yaml:",inline"`
}

// Providers 所有提供者配置集合
type Providers struct {
	SES         SESProvider      `yaml:"SES"`
	SendGrid    SendGridProvider `yaml:"SendGrid"`
	SMTP        SMTPProvider     `yaml:"SMTP"`
	SNS         SNSProvider      `yaml:"SNS"`
	Twilio      TwilioProvider   `yaml:"Twilio"`
	ConsoleSMS  ConsoleProvider  `yaml:"ConsoleSMS"`
	ConsolePush ConsoleProvider  `yaml:"ConsolePush"`
}

// Failover 故障转移策略配置
type Failover struct {
	InterProviderDelay time.Duration `yaml:"InterProviderDelay"` // 提供者间固定延迟
}

// App 应用全局配置
type App struct {
	Addr           string        `yaml:"Addr"`           // HTTP 监听地址
	RequestTimeout time.Duration `yaml:"RequestTimeout"` // HTTP 请求超时
}

// MySQLConfig MySQL 数据库连接配置
type MySQLConfig struct {
	DSN             string        `yaml:"DSN"`             // 数据源配置(留空则禁用归档)
	MaxOpenConns    int           `yaml:"MaxOpenConns"`    // 最大打开连接数
	MaxIdleConns    int           `yaml:"MaxIdleConns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `yaml:"ConnMaxLifetime"` // 连接最大生命周期
}

// Storage 存储配置
type Storage struct {
	RedisAddr string        `yaml:"RedisAddr"` // Redis 地址(留空则禁用状态追踪)
	Namespace string        `yaml:"Namespace"` // Redis 键前缀
	StatusTTL time.Duration `yaml:"StatusTTL"` // 状态记录过期时间
	MySQL     MySQLConfig   `yaml:"MySQL"`     // MySQL 归档配置
}

// NSQ 消息队列配置
// 用于异步投递请求的入队与消费
type NSQ struct {
	Topic                       string   `yaml:"Topic"`                       // 投递请求主题
	Channel                     string   `yaml:"Channel"`                     // 消费者通道
	NsqdTCPAddrs                []string `yaml:"NsqdTCPAddrs"`                // NSQD TCP 地址列表
	LookupdHTTPAddrs            []string `yaml:"LookupdHTTPAddrs"`            // Lookupd HTTP 地址列表
	MaxInFlight                 int      `yaml:"MaxInFlight"`                 // 最大并发消息数
	Concurrency                 int      `yaml:"Concurrency"`                 // 处理并发数
	ProducerAddr                string   `yaml:"ProducerAddr"`                // 生产者地址(留空则禁用异步发送)
	ConsumerEnabled             bool     `yaml:"ConsumerEnabled"`             // 是否启用消费
	DLQTopic                    string   `yaml:"DLQTopic"`                    // 死信队列主题
	MaxConsumeAttemptsBeforeDLQ int      `yaml:"MaxConsumeAttemptsBeforeDLQ"` // 进入死信队列前最大尝试次数
}

// Config 应用完整配置
type Config struct {
	App       App       `yaml:"App"`
	Storage   Storage   `yaml:"Storage"`
	NSQ       NSQ       `yaml:"NSQ"`
	Providers Providers `yaml:"Providers"`
	Failover  Failover  `yaml:"Failover"`
}

// MustLoad 加载 YAML 配置文件
// 加载失败时直接 panic(用于应用启动阶段)
func MustLoad(configPath string) Config {
	fileContent, err := os.ReadFile(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to read config file: %v", err))
	}

	config, err := Parse(fileContent)
	if err != nil {
		panic(err.Error())
	}

	return config
}

// Parse 解析配置内容并应用默认值
func Parse(content []byte) (Config, error) {
	var config Config
	if err := yaml.Unmarshal(content, &config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()
	return config, nil
}

// applyDefaults 校验配置并设置默认值
func (config *Config) applyDefaults() {
	config.applyAppDefaults()
	config.applyStorageDefaults()
	config.applyNSQDefaults()
	config.applyFailoverDefaults()
	config.applyProviderDefaults()
}

// applyAppDefaults 应用配置默认值
func (config *Config) applyAppDefaults() {
	if config.App.Addr == "" {
		config.App.Addr = DefaultHTTPAddress
	}
	if config.App.RequestTimeout <= 0 {
		config.App.RequestTimeout = DefaultRequestTimeout
	}
}

// applyStorageDefaults 存储配置默认值
func (config *Config) applyStorageDefaults() {
	if config.Storage.Namespace == "" {
		config.Storage.Namespace = DefaultRedisNamespace
	}
	if config.Storage.StatusTTL <= 0 {
		config.Storage.StatusTTL = DefaultStatusTTL
	}
}

// applyNSQDefaults NSQ 配置默认值
func (config *Config) applyNSQDefaults() {
	if config.NSQ.Topic == "" {
		config.NSQ.Topic = DefaultNSQTopic
	}
	if config.NSQ.Channel == "" {
		config.NSQ.Channel = DefaultNSQChannel
	}
	if config.NSQ.MaxInFlight <= 0 {
		config.NSQ.MaxInFlight = DefaultNSQMaxInFlight
	}
	if config.NSQ.Concurrency <= 0 {
		config.NSQ.Concurrency = DefaultNSQConcurrency
	}
	if config.NSQ.MaxConsumeAttemptsBeforeDLQ <= 0 {
		config.NSQ.MaxConsumeAttemptsBeforeDLQ = DefaultNSQMaxAttempts
	}
	if config.NSQ.DLQTopic == "" {
		config.NSQ.DLQTopic = config.NSQ.Topic + DefaultDLQTopicSuffix
	}
}

// applyFailoverDefaults 故障转移配置默认值
func (config *Config) applyFailoverDefaults() {
	if config.Failover.InterProviderDelay <= 0 {
		config.Failover.InterProviderDelay = DefaultInterProviderDelay
	}
}

// applyProviderDefaults 各提供者通用参数默认值
func (config *Config) applyProviderDefaults() {
	applyChannelDefaults(&config.Providers.SES.ChannelSettings)
	applyChannelDefaults(&config.Providers.SendGrid.ChannelSettings)
	applyChannelDefaults(&config.Providers.SMTP.ChannelSettings)
	applyChannelDefaults(&config.Providers.SNS.ChannelSettings)
	applyChannelDefaults(&config.Providers.Twilio.ChannelSettings)
	applyChannelDefaults(&config.Providers.ConsoleSMS.ChannelSettings)
	applyChannelDefaults(&config.Providers.ConsolePush.ChannelSettings)

	// SMTP 是邮件通道的最后手段,默认限速约 1 条/秒
	if config.Providers.SMTP.RateLimit <= 0 {
		config.Providers.SMTP.RateLimit = 1
	}
}

// applyChannelDefaults 单个通道的默认值
func applyChannelDefaults(settings *ChannelSettings) {
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultChannelTimeout
	}
	if settings.RetryDelay <= 0 {
		settings.RetryDelay = DefaultRetryDelay
	}
	if settings.BatchSize <= 0 {
		settings.BatchSize = DefaultBatchSize
	}
	if settings.CostCurrency == "" {
		settings.CostCurrency = DefaultCostCurrency
	}
}
