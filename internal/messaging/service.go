package messaging

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
)

// ==================== 常量定义 ====================

const (
	// DefaultInterProviderDelay 提供者之间的固定间隔
	// 立即切换会在真实故障时造成对外部服务的同时冲击,
	// 固定延迟既平滑了故障转移风暴,也给短暂的网络抖动留出恢复窗口
	DefaultInterProviderDelay = 2 * time.Second

	// 同提供者重试的默认退避基准
	defaultRetryBackoff = 300 * time.Millisecond

	// 合成结果的消息ID前缀
	allFailedIDPrefix = "all-failed-"
)

// ==================== 接口定义 ====================

// StatusSink 投递状态写入接口(可选注入)
type StatusSink interface {
	UpdateStatus(ctx context.Context, messageID string, newStatus string, errorMessage string) error
}

// RecordSink 投递记录持久化接口(可选注入)
type RecordSink interface {
	SaveResult(ctx context.Context, result DeliveryResult) error
}

// ==================== 核心数据结构 ====================

// providerEntry 编排器持有的 (适配器, 优先级, 熔断器) 三元组
// 熔断器由编排器条目独占,不跨适配器、不跨进程共享
type providerEntry struct {
	adapter  ChannelAdapter
	priority ProviderPriority
	breaker  *CircuitBreaker
	config   ChannelConfig
}

// ProviderHealth 单个提供者的健康快照
type ProviderHealth struct {
	AdapterName  string           `json:"adapter_name"`
	Priority     ProviderPriority `json:"priority"`
	CircuitState CircuitState     `json:"circuit_state"`
	IsHealthy    bool             `json:"is_healthy"`
	FailureCount int              `json:"failure_count"`
}

// ==================== UnifiedMessagingService ====================

// UnifiedMessagingService 多提供者投递编排器
// 按通道类型维护优先级有序的适配器列表,驱动尝试序列、
// 提供者间延迟与终止策略;Send 永不向调用方抛出错误,
// 所有失败模式都编码在返回的 DeliveryResult 中
type UnifiedMessagingService struct {
	mu      sync.RWMutex
	entries map[ChannelType][]*providerEntry

	interProviderDelay time.Duration

	// sleep 可注入,便于测试验证延迟策略而无需真实等待
	sleep func(ctx context.Context, duration time.Duration) error

	statusSink StatusSink
	recordSink RecordSink
}

// NewUnifiedMessagingService 创建投递编排器
// 适配器列表通过 Register 构造注入,而非内部读取环境变量,
// 以便用 mock 适配器进行测试
func NewUnifiedMessagingService() *UnifiedMessagingService {
	return &UnifiedMessagingService{
		entries:            make(map[ChannelType][]*providerEntry),
		interProviderDelay: DefaultInterProviderDelay,
		sleep:              sleepContext,
	}
}

// SetInterProviderDelay 覆盖提供者间延迟(主要用于测试)
func (service *UnifiedMessagingService) SetInterProviderDelay(delay time.Duration) {
	service.interProviderDelay = delay
}

// SetStatusSink 注入状态存储(可选)
func (service *UnifiedMessagingService) SetStatusSink(sink StatusSink) {
	service.statusSink = sink
}

// SetRecordSink 注入记录存储(可选)
func (service *UnifiedMessagingService) SetRecordSink(sink RecordSink) {
	service.recordSink = sink
}

// Register 注册一个适配器到指定通道的故障转移链
// 列表按 ProviderPriority 升序保持有序(PRIMARY 最先尝试)
func (service *UnifiedMessagingService) Register(
	adapter ChannelAdapter,
	priority ProviderPriority,
	config ChannelConfig,
	breakerConfig BreakerConfig,
) {
	service.mu.Lock()
	defer service.mu.Unlock()

	channel := adapter.Channel()
	service.entries[channel] = append(service.entries[channel], &providerEntry{
		adapter:  adapter,
		priority: priority,
		breaker:  NewCircuitBreaker(breakerConfig),
		config:   config,
	})

	sort.SliceStable(service.entries[channel], func(left, right int) bool {
		return service.entries[channel][left].priority < service.entries[channel][right].priority
	})

	log.Printf("[Messaging] 注册提供者: channel=%s adapter=%s priority=%d", channel, adapter.Name(), priority)
}

// ==================== 公共发送接口 ====================

// Send 通过指定通道投递一条消息
// 按优先级依次尝试各提供者直到成功或链路耗尽;
// 始终返回 DeliveryResult,永不 panic、永不返回 Go error,
// 因此可安全用于 fire-and-forget 场景
func (service *UnifiedMessagingService) Send(
	ctx context.Context,
	recipient Recipient,
	message Message,
	channel ChannelType,
) DeliveryResult {
	entries := service.entriesForChannel(channel)

	// 配置错误:立即返回,不尝试、不触碰熔断器
	if len(entries) == 0 {
		result := service.configurationFailure(recipient, channel)
		service.recordOutcome(ctx, result)
		return result
	}

	// 校验错误:终止,不发起尝试、不计入熔断器
	if result, rejected := service.rejectInvalidRecipient(entries[0].adapter, recipient, channel); rejected {
		service.recordOutcome(ctx, result)
		return result
	}

	result := service.runFailoverChain(ctx, entries, recipient, message, channel)
	service.recordOutcome(ctx, result)
	return result
}

// entriesForChannel 返回某通道按优先级有序的条目快照
func (service *UnifiedMessagingService) entriesForChannel(channel ChannelType) []*providerEntry {
	service.mu.RLock()
	defer service.mu.RUnlock()

	entries := make([]*providerEntry, len(service.entries[channel]))
	copy(entries, service.entries[channel])
	return entries
}

// SendEmail 邮件通道便捷入口
func (service *UnifiedMessagingService) SendEmail(
	ctx context.Context,
	recipientID string,
	emailAddress string,
	subject string,
	content string,
) DeliveryResult {
	recipient := Recipient{ID: recipientID, Email: emailAddress}
	message := Message{Subject: subject, Content: content, Priority: PriorityNormal}
	return service.Send(ctx, recipient, message, ChannelEmail)
}

// SendSMS 短信通道便捷入口
func (service *UnifiedMessagingService) SendSMS(
	ctx context.Context,
	recipientID string,
	phone string,
	content string,
) DeliveryResult {
	recipient := Recipient{ID: recipientID, Phone: phone}
	message := Message{Content: content, Priority: PriorityNormal}
	return service.Send(ctx, recipient, message, ChannelSMS)
}

// ==================== 故障转移链核心逻辑 ====================

// runFailoverChain 驱动一次完整的故障转移尝试序列
func (service *UnifiedMessagingService) runFailoverChain(
	ctx context.Context,
	entries []*providerEntry,
	recipient Recipient,
	message Message,
	channel ChannelType,
) DeliveryResult {
	var errorList []string
	attemptedProviders := 0

	// 链路被非瞬时错误终止时,合成结果继承该分类,
	// 避免下游把注定失败的消息当作瞬时故障反复重投
	terminalKind := ErrorKindTransient

	for _, entry := range entries {
		// 熔断打开:整体跳过该适配器,不计延迟
		if !entry.breaker.CanAttempt() {
			log.Printf("[Messaging] 跳过熔断中的提供者: %s (channel=%s)", entry.adapter.Name(), channel)
			continue
		}

		// 从第二个实际尝试的适配器起,插入固定的提供者间延迟
		if attemptedProviders > 0 {
			if err := service.sleep(ctx, service.interProviderDelay); err != nil {
				errorList = append(errorList, fmt.Sprintf("%s: %v", entry.adapter.Name(), err))
				break
			}
		}

		attemptedProviders++
		result, sendError := service.attemptWithRetry(ctx, entry, recipient, message)

		if sendError == nil {
			entry.breaker.RecordSuccess()
			// 适配器可能返回裸结果,元数据缺失时补建
			if result.Metadata == nil {
				result.Metadata = map[string]any{}
			}
			result.Metadata["attempted_providers"] = attemptedProviders
			log.Printf("[Messaging] 投递成功: channel=%s provider=%s message_id=%s",
				channel, entry.adapter.Name(), result.MessageID)
			return result
		}

		// 适配器内部的校验失败:终止链路,不计入熔断器
		// (收件人的问题,不是提供者的故障)
		if sendError.Kind == ErrorKindValidation {
			log.Printf("[Messaging] 收件人校验失败: provider=%s reason=%s", entry.adapter.Name(), sendError.Message)
			if result.Metadata == nil {
				result.Metadata = map[string]any{}
			}
			result.Metadata["attempted_providers"] = attemptedProviders
			return result
		}

		entry.breaker.RecordFailure()
		errorList = append(errorList, fmt.Sprintf("%s: %s", entry.adapter.Name(), sendError.Error()))
		log.Printf("[Messaging] 提供者失败: channel=%s provider=%s kind=%s error=%s",
			channel, entry.adapter.Name(), sendError.Kind, sendError.Error())

		// 非瞬时错误且已越过 PRIMARY:提前终止
		// 兜底提供者上的永久错误大概率意味着收件人级的系统性问题,
		// 继续升级只会白白消耗 TERTIARY/FALLBACK 的配额;
		// PRIMARY 自身失败时仍然继续(它可能只是单独配置错误)
		if sendError.Kind != ErrorKindTransient && entry.priority >= ProviderSecondary {
			log.Printf("[Messaging] 永久错误越过主提供者,提前终止故障转移链 (channel=%s)", channel)
			terminalKind = sendError.Kind
			break
		}
	}

	return service.allFailedResult(recipient, channel, errorList, attemptedProviders, terminalKind)
}

// attemptWithRetry 对单个适配器执行一次带退避的尝试
// 同提供者的瞬时错误重试属于编排器这一层(单一重试层,
// 适配器自身绝不重试);永久/校验错误不做同提供者重试
func (service *UnifiedMessagingService) attemptWithRetry(
	ctx context.Context,
	entry *providerEntry,
	recipient Recipient,
	message Message,
) (DeliveryResult, *SendError) {
	maxAttempts := 1 + entry.config.RetryAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	backoff := entry.config.RetryDelay
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}

	var lastResult DeliveryResult
	var lastError *SendError

	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastResult = service.attemptOnce(ctx, entry, recipient, message)

		if lastResult.Status == StatusSent {
			return lastResult, nil
		}

		lastError = sendErrorFromResult(lastResult)

		// 仅瞬时错误值得在同一提供者上重试
		if lastError.Kind != ErrorKindTransient || attempt == maxAttempts-1 {
			return lastResult, lastError
		}

		if err := service.sleep(ctx, jitteredDelay(backoff)); err != nil {
			return lastResult, lastError
		}
		backoff *= 2
	}

	return lastResult, lastError
}

// attemptOnce 执行恰好一次适配器调用
// 单次尝试受适配器自身的 Timeout 约束(可取消而非仅竞速);
// 从适配器逃逸的 panic 一律折算为瞬时失败
func (service *UnifiedMessagingService) attemptOnce(
	ctx context.Context,
	entry *providerEntry,
	recipient Recipient,
	message Message,
) (result DeliveryResult) {
	attemptCtx := ctx
	if entry.config.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, entry.config.Timeout)
		defer cancel()
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			result = NewFailedResult(
				entry.adapter.Name(),
				entry.adapter.Channel(),
				recipient.ID,
				NewTransientError(fmt.Sprintf("adapter panic: %v", recovered), nil),
			)
		}
	}()

	return entry.adapter.SendSingle(attemptCtx, recipient, message)
}

// ==================== 前置检查 ====================

// rejectInvalidRecipient 发起任何尝试前的收件人校验
// 同一通道的所有适配器共享同一套地址校验规则,
// 取链路中第一个适配器做纯校验即可
func (service *UnifiedMessagingService) rejectInvalidRecipient(
	adapter ChannelAdapter,
	recipient Recipient,
	channel ChannelType,
) (DeliveryResult, bool) {
	if optedOut(recipient, channel) {
		return NewFailedResult("orchestrator", channel, recipient.ID,
			NewValidationError(ErrRecipientOptedOut.Error())), true
	}

	valid, reason := adapter.ValidateRecipient(recipient)
	if valid {
		return DeliveryResult{}, false
	}

	log.Printf("[Messaging] 收件人校验失败,跳过全部提供者: channel=%s recipient=%s reason=%s",
		channel, recipient.ID, reason)
	return NewFailedResult("orchestrator", channel, recipient.ID, NewValidationError(reason)), true
}

// optedOut 检查收件人是否显式退订了该通道
func optedOut(recipient Recipient, channel ChannelType) bool {
	if recipient.Preferences == nil {
		return false
	}
	enabled, exists := recipient.Preferences[string(channel)]
	return exists && !enabled
}

// ==================== 合成结果 ====================

// configurationFailure 通道无任何提供者时的合成结果
func (service *UnifiedMessagingService) configurationFailure(recipient Recipient, channel ChannelType) DeliveryResult {
	log.Printf("[Messaging] 配置错误: 通道 %s 未注册任何提供者", channel)
	return DeliveryResult{
		MessageID:    GenerateMessageID(string(channel)),
		RecipientID:  recipient.ID,
		Status:       StatusFailed,
		Channel:      channel,
		SentAt:       time.Now(),
		ErrorMessage: fmt.Sprintf("%s: %s", ErrNoProvidersConfigured.Error(), channel),
		ErrorKind:    ErrorKindPermanent,
		Metadata: map[string]any{
			"attempted_providers": 0,
		},
	}
}

// allFailedResult 链路耗尽后的聚合失败结果
// attempted_providers 只统计实际发起过尝试的适配器,
// 被熔断器跳过的不计入;errorKind 取链路的终止原因
// (提前终止继承永久分类,瞬时耗尽保持瞬时)
func (service *UnifiedMessagingService) allFailedResult(
	recipient Recipient,
	channel ChannelType,
	errorList []string,
	attemptedProviders int,
	errorKind ErrorKind,
) DeliveryResult {
	errorMessage := strings.Join(errorList, "; ")
	if errorMessage == "" {
		errorMessage = "all providers unavailable (circuits open)"
	}

	return DeliveryResult{
		MessageID:    allFailedIDPrefix + GenerateMessageID(string(channel)),
		RecipientID:  recipient.ID,
		Status:       StatusFailed,
		Channel:      channel,
		SentAt:       time.Now(),
		ErrorMessage: errorMessage,
		ErrorKind:    errorKind,
		Metadata: map[string]any{
			"attempted_providers": attemptedProviders,
		},
	}
}

// ==================== 健康巡检 ====================

// GetProviderHealth 返回各通道提供者的只读健康快照
// 供运维面板使用
func (service *UnifiedMessagingService) GetProviderHealth() map[ChannelType][]ProviderHealth {
	service.mu.RLock()
	defer service.mu.RUnlock()

	health := make(map[ChannelType][]ProviderHealth, len(service.entries))

	for channel, entries := range service.entries {
		snapshots := make([]ProviderHealth, 0, len(entries))
		for _, entry := range entries {
			snapshot := entry.breaker.Snapshot()
			snapshots = append(snapshots, ProviderHealth{
				AdapterName:  entry.adapter.Name(),
				Priority:     entry.priority,
				CircuitState: snapshot.State,
				IsHealthy:    snapshot.State == StateClosed,
				FailureCount: snapshot.FailureCount,
			})
		}
		health[channel] = snapshots
	}

	return health
}

// ==================== 状态与记录落地 ====================

// recordOutcome 投递结束后落地状态与记录(尽力而为,失败仅记日志)
func (service *UnifiedMessagingService) recordOutcome(ctx context.Context, result DeliveryResult) {
	if service.statusSink != nil {
		if err := service.statusSink.UpdateStatus(ctx, result.MessageID, string(result.Status), result.ErrorMessage); err != nil {
			log.Printf("[Messaging] 警告: 写入投递状态失败 (message_id=%s): %v", result.MessageID, err)
		}
	}

	if service.recordSink != nil {
		if err := service.recordSink.SaveResult(ctx, result); err != nil {
			log.Printf("[Messaging] 警告: 写入投递记录失败 (message_id=%s): %v", result.MessageID, err)
		}
	}
}

// ==================== 工具函数 ====================

// sendErrorFromResult 从失败结果还原结构化错误
// 未分类的结果退回文本匹配兜底
func sendErrorFromResult(result DeliveryResult) *SendError {
	kind := result.ErrorKind
	if kind == "" {
		kind = ClassifyErrorText(result.ErrorMessage)
	}
	return &SendError{Kind: kind, Message: result.ErrorMessage}
}

// jitteredDelay 计算带抖动的退避延迟
func jitteredDelay(baseDelay time.Duration) time.Duration {
	jitter := time.Duration(generateRandomUint32() % uint32(baseDelay/2+1))
	return baseDelay + jitter
}

// sleepContext 可被 context 取消的休眠
func sleepContext(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}
	select {
	case <-time.After(duration):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
