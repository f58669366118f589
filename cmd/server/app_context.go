package main

import (
	"context"
	"log"

	redis "github.com/redis/go-redis/v9"

	"messaging-gateway/internal/channels/email"
	"messaging-gateway/internal/channels/push"
	"messaging-gateway/internal/channels/sms"
	"messaging-gateway/internal/config"
	"messaging-gateway/internal/database"
	"messaging-gateway/internal/messaging"
	"messaging-gateway/internal/queue"
	"messaging-gateway/internal/recorder"
	"messaging-gateway/internal/status"
)

// AppContext 应用运行时上下文
// 聚合所有运行期依赖,统一管理生命周期
type AppContext struct {
	Config      config.Config
	RedisClient *redis.Client
	MySQL       *database.MySQLDB
	StatusStore status.Store
	Service     *messaging.UnifiedMessagingService
	Producer    queue.Producer
	Consumer    *queue.NSQConsumer
}

// InitAppContext 初始化应用上下文
// 按配置逐个装配提供者;可选依赖(Redis/MySQL/NSQ)未配置时对应能力降级
func InitAppContext(configuration config.Config) *AppContext {
	appContext := &AppContext{Config: configuration}

	appContext.initStorage()
	appContext.initService()
	appContext.initQueue()

	return appContext
}

// initStorage 初始化 Redis 状态存储与 MySQL 归档
func (appContext *AppContext) initStorage() {
	storageConfig := appContext.Config.Storage

	if storageConfig.RedisAddr != "" {
		appContext.RedisClient = redis.NewClient(&redis.Options{Addr: storageConfig.RedisAddr})
		appContext.StatusStore = status.NewRedisStore(
			appContext.RedisClient, storageConfig.Namespace, storageConfig.StatusTTL)
		log.Printf("[AppContext] Redis 状态存储已启用: %s", storageConfig.RedisAddr)
	} else {
		log.Println("[AppContext] 未配置 Redis,状态追踪已禁用")
	}

	if storageConfig.MySQL.DSN != "" {
		mysqlDatabase, err := database.NewMySQLDB(storageConfig.MySQL)
		if err != nil {
			log.Fatalf("[AppContext] MySQL 连接失败: %v", err)
		}
		if err := mysqlDatabase.InitTables(); err != nil {
			log.Fatalf("[AppContext] MySQL 表初始化失败: %v", err)
		}
		appContext.MySQL = mysqlDatabase
	} else {
		log.Println("[AppContext] 未配置 MySQL,投递记录归档已禁用")
	}
}

// initService 初始化编排器并装配各通道的故障转移链
func (appContext *AppContext) initService() {
	service := messaging.NewUnifiedMessagingService()
	service.SetInterProviderDelay(appContext.Config.Failover.InterProviderDelay)

	if appContext.StatusStore != nil {
		service.SetStatusSink(appContext.StatusStore)
	}
	if appContext.MySQL != nil {
		service.SetRecordSink(recorder.NewMySQLRecorder(appContext.MySQL))
	}

	appContext.registerEmailProviders(service)
	appContext.registerSMSProviders(service)
	appContext.registerPushProviders(service)

	appContext.Service = service
}

// registerEmailProviders 装配邮件通道
// SES 主力,SendGrid 次级,SMTP 直连兜底
func (appContext *AppContext) registerEmailProviders(service *messaging.UnifiedMessagingService) {
	providers := appContext.Config.Providers

	if providers.SES.Enabled {
		sesAdapter, err := email.NewSESAdapter(context.Background(), providers.SES)
		if err != nil {
			log.Printf("[AppContext] SES 适配器初始化失败,跳过注册: %v", err)
		} else {
			service.Register(sesAdapter, messaging.ProviderPrimary,
				providers.SES.ChannelConfig(), providers.SES.Breaker.BreakerConfig())
		}
	}

	if providers.SendGrid.Enabled {
		service.Register(email.NewSendGridAdapter(providers.SendGrid), messaging.ProviderSecondary,
			providers.SendGrid.ChannelConfig(), providers.SendGrid.Breaker.BreakerConfig())
	}

	if providers.SMTP.Enabled {
		service.Register(email.NewSMTPAdapter(providers.SMTP), messaging.ProviderTertiary,
			providers.SMTP.ChannelConfig(), providers.SMTP.Breaker.BreakerConfig())
	}
}

// registerSMSProviders 装配短信通道
// SNS 主力,Twilio 次级,控制台兜底(兜底的熔断阈值配置为天文数字,
// 保证它永远不会被自身熔断器跳过)
func (appContext *AppContext) registerSMSProviders(service *messaging.UnifiedMessagingService) {
	providers := appContext.Config.Providers

	if providers.SNS.Enabled {
		snsAdapter, err := sms.NewSNSAdapter(context.Background(), providers.SNS)
		if err != nil {
			log.Printf("[AppContext] SNS 适配器初始化失败,跳过注册: %v", err)
		} else {
			service.Register(snsAdapter, messaging.ProviderPrimary,
				providers.SNS.ChannelConfig(), providers.SNS.Breaker.BreakerConfig())
		}
	}

	if providers.Twilio.Enabled {
		service.Register(sms.NewTwilioAdapter(providers.Twilio), messaging.ProviderSecondary,
			providers.Twilio.ChannelConfig(), providers.Twilio.Breaker.BreakerConfig())
	}

	if providers.ConsoleSMS.Enabled {
		service.Register(sms.NewConsoleAdapter(providers.ConsoleSMS), messaging.ProviderFallback,
			providers.ConsoleSMS.ChannelConfig(), fallbackBreakerConfig())
	}
}

// registerPushProviders 装配推送通道
func (appContext *AppContext) registerPushProviders(service *messaging.UnifiedMessagingService) {
	providers := appContext.Config.Providers

	if providers.ConsolePush.Enabled {
		service.Register(push.NewConsoleAdapter(providers.ConsolePush), messaging.ProviderFallback,
			providers.ConsolePush.ChannelConfig(), fallbackBreakerConfig())
	}
}

// fallbackBreakerConfig 兜底提供者的熔断配置
func fallbackBreakerConfig() messaging.BreakerConfig {
	return messaging.BreakerConfig{
		FailureThreshold: config.FallbackFailureThreshold,
	}
}

// initQueue 初始化 NSQ 生产者与消费者
func (appContext *AppContext) initQueue() {
	nsqConfig := appContext.Config.NSQ

	if nsqConfig.ProducerAddr != "" {
		producer, err := queue.NewNSQProducer(nsqConfig.ProducerAddr, nsqConfig.Topic)
		if err != nil {
			log.Fatalf("[AppContext] NSQ 生产者初始化失败: %v", err)
		}
		appContext.Producer = producer
		log.Printf("[AppContext] NSQ 生产者已启用: %s topic=%s", nsqConfig.ProducerAddr, nsqConfig.Topic)
	} else {
		log.Println("[AppContext] 未配置 NSQ 生产者,异步发送已禁用")
	}

	if !nsqConfig.ConsumerEnabled {
		return
	}

	handler := queue.NewDeliveryHandler(appContext.Service)
	consumer, err := queue.NewNSQConsumer(queue.ConsumerConfig{
		Topic:                nsqConfig.Topic,
		Channel:              nsqConfig.Channel,
		MaxInFlight:          nsqConfig.MaxInFlight,
		Concurrency:          nsqConfig.Concurrency,
		NsqdAddresses:        nsqConfig.NsqdTCPAddrs,
		LookupdAddresses:     nsqConfig.LookupdHTTPAddrs,
		DLQTopic:             nsqConfig.DLQTopic,
		MaxAttemptsBeforeDLQ: uint16(nsqConfig.MaxConsumeAttemptsBeforeDLQ),
		Handler:              handler.Handle,
	})
	if err != nil {
		log.Fatalf("[AppContext] NSQ 消费者初始化失败: %v", err)
	}

	if err := consumer.AttachDLQProducer(nsqConfig.ProducerAddr); err != nil {
		log.Printf("[AppContext] 死信队列生产者初始化失败: %v", err)
	}

	appContext.Consumer = consumer
}

// Close 释放应用上下文持有的所有资源
// 按照依赖关系倒序释放,避免资源泄漏
func (appContext *AppContext) Close() {
	if appContext.Consumer != nil {
		appContext.Consumer.Stop()
	}

	if appContext.Producer != nil {
		appContext.Producer.Close()
	}

	if appContext.MySQL != nil {
		appContext.MySQL.Close()
	}

	if appContext.RedisClient != nil {
		appContext.RedisClient.Close()
	}
}
