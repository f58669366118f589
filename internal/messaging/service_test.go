package messaging

import (
	"context"
	"strings"
	"testing"
	"time"
)

// ==================== 测试辅助 ====================

// mockAdapter 可编程的测试适配器
// sendResponses 按调用次数依次返回;耗尽后重复最后一个
type mockAdapter struct {
	name          string
	channel       ChannelType
	validateValid bool
	validateWhy   string
	sendResponses []DeliveryResult
	sendCalls     int
	panicMessage  string
}

func newMockAdapter(name string, channel ChannelType) *mockAdapter {
	return &mockAdapter{name: name, channel: channel, validateValid: true}
}

func (adapter *mockAdapter) Name() string         { return adapter.name }
func (adapter *mockAdapter) Channel() ChannelType { return adapter.channel }

func (adapter *mockAdapter) ValidateRecipient(recipient Recipient) (bool, string) {
	return adapter.validateValid, adapter.validateWhy
}

func (adapter *mockAdapter) SendSingle(ctx context.Context, recipient Recipient, message Message) DeliveryResult {
	adapter.sendCalls++
	if adapter.panicMessage != "" {
		panic(adapter.panicMessage)
	}

	index := adapter.sendCalls - 1
	if index >= len(adapter.sendResponses) {
		index = len(adapter.sendResponses) - 1
	}
	return adapter.sendResponses[index]
}

func (adapter *mockAdapter) SendBatch(ctx context.Context, recipients []Recipient, message Message) []DeliveryResult {
	results := make([]DeliveryResult, 0, len(recipients))
	for _, recipient := range recipients {
		results = append(results, adapter.SendSingle(ctx, recipient, message))
	}
	return results
}

func (adapter *mockAdapter) GetDeliveryStatus(ctx context.Context, messageID string) DeliveryResult {
	return NewStatusPlaceholder(adapter.name, adapter.channel, messageID)
}

// respondSent 让适配器返回成功结果
func (adapter *mockAdapter) respondSent(messageID string) *mockAdapter {
	adapter.sendResponses = append(adapter.sendResponses,
		NewSentResult(adapter.name, adapter.channel, "r1", messageID, ChannelConfig{CostPerMessage: 0.01, CostCurrency: "USD"}))
	return adapter
}

// respondError 让适配器返回指定分类的失败结果
func (adapter *mockAdapter) respondError(kind ErrorKind, text string) *mockAdapter {
	sendError := &SendError{Kind: kind, Message: text}
	adapter.sendResponses = append(adapter.sendResponses,
		NewFailedResult(adapter.name, adapter.channel, "r1", sendError))
	return adapter
}

// newTestService 创建一个休眠被录制而非真实等待的编排器
func newTestService() (*UnifiedMessagingService, *[]time.Duration) {
	service := NewUnifiedMessagingService()
	sleeps := &[]time.Duration{}
	service.sleep = func(ctx context.Context, duration time.Duration) error {
		*sleeps = append(*sleeps, duration)
		return nil
	}
	return service, sleeps
}

func emailRecipient() Recipient {
	return Recipient{ID: "r1", Email: "user@example.com"}
}

func textMessage() Message {
	return Message{Subject: "hello", Content: "world", Priority: PriorityNormal}
}

// ==================== 成功路径 ====================

func TestSendSucceedsOnPrimaryWithoutDelay(t *testing.T) {
	service, sleeps := newTestService()
	primary := newMockAdapter("primary", ChannelEmail).respondSent("msg-1")
	secondary := newMockAdapter("secondary", ChannelEmail).respondSent("msg-2")

	service.Register(primary, ProviderPrimary, ChannelConfig{}, BreakerConfig{})
	service.Register(secondary, ProviderSecondary, ChannelConfig{}, BreakerConfig{})

	result := service.Send(context.Background(), emailRecipient(), textMessage(), ChannelEmail)

	if result.Status != StatusSent {
		t.Fatalf("应投递成功,实际 %s: %s", result.Status, result.ErrorMessage)
	}
	if result.MessageID != "msg-1" {
		t.Fatalf("应由主提供者完成,message_id=%s", result.MessageID)
	}
	if result.Metadata["provider"] != "primary" {
		t.Fatalf("provider 元数据不符: %v", result.Metadata["provider"])
	}
	if result.Metadata["attempted_providers"] != 1 {
		t.Fatalf("attempted_providers 应为 1,实际 %v", result.Metadata["attempted_providers"])
	}
	if secondary.sendCalls != 0 {
		t.Fatal("主提供者成功后不应再尝试次提供者")
	}
	if len(*sleeps) != 0 {
		t.Fatalf("首个提供者前不应有延迟,实际录到 %v", *sleeps)
	}
}

func TestSendRegistrationOrderDoesNotMatter(t *testing.T) {
	service, _ := newTestService()
	primary := newMockAdapter("primary", ChannelEmail).respondSent("msg-1")
	fallback := newMockAdapter("fallback", ChannelEmail).respondSent("msg-4")

	// 先注册兜底再注册主力,尝试顺序仍按优先级
	service.Register(fallback, ProviderFallback, ChannelConfig{}, BreakerConfig{})
	service.Register(primary, ProviderPrimary, ChannelConfig{}, BreakerConfig{})

	result := service.Send(context.Background(), emailRecipient(), textMessage(), ChannelEmail)

	if result.MessageID != "msg-1" {
		t.Fatalf("应按优先级先尝试主提供者,实际 message_id=%s", result.MessageID)
	}
	if fallback.sendCalls != 0 {
		t.Fatal("兜底提供者不应被调用")
	}
}

// ==================== 故障转移 ====================

func TestFailoverToSecondaryAfterTransientFailure(t *testing.T) {
	service, sleeps := newTestService()
	primary := newMockAdapter("primary", ChannelEmail).respondError(ErrorKindTransient, "connection timeout")
	secondary := newMockAdapter("secondary", ChannelEmail).respondSent("msg-2")

	service.Register(primary, ProviderPrimary, ChannelConfig{}, BreakerConfig{})
	service.Register(secondary, ProviderSecondary, ChannelConfig{}, BreakerConfig{})

	result := service.Send(context.Background(), emailRecipient(), textMessage(), ChannelEmail)

	if result.Status != StatusSent || result.MessageID != "msg-2" {
		t.Fatalf("应故障转移到次提供者,实际 %+v", result)
	}
	if result.Metadata["attempted_providers"] != 2 {
		t.Fatalf("attempted_providers 应为 2,实际 %v", result.Metadata["attempted_providers"])
	}

	// 次提供者尝试前恰有一次固定的提供者间延迟
	if len(*sleeps) != 1 || (*sleeps)[0] != DefaultInterProviderDelay {
		t.Fatalf("应录到一次 %v 延迟,实际 %v", DefaultInterProviderDelay, *sleeps)
	}

	// 主提供者失败计入其熔断器
	snapshot := service.entriesForChannel(ChannelEmail)[0].breaker.Snapshot()
	if snapshot.FailureCount != 1 {
		t.Fatalf("主提供者失败应计入熔断器,实际 %d", snapshot.FailureCount)
	}
}

func TestPermanentFailureOnPrimaryStillContinues(t *testing.T) {
	service, _ := newTestService()
	primary := newMockAdapter("primary", ChannelEmail).respondError(ErrorKindPermanent, "invalid credentials")
	secondary := newMockAdapter("secondary", ChannelEmail).respondSent("msg-2")

	service.Register(primary, ProviderPrimary, ChannelConfig{}, BreakerConfig{})
	service.Register(secondary, ProviderSecondary, ChannelConfig{}, BreakerConfig{})

	result := service.Send(context.Background(), emailRecipient(), textMessage(), ChannelEmail)

	// 主提供者的永久错误可能只是它单独配置坏了,链路继续
	if result.Status != StatusSent || result.MessageID != "msg-2" {
		t.Fatalf("主提供者永久错误后仍应继续,实际 %+v", result)
	}
}

func TestPermanentFailureBeyondPrimaryStopsChain(t *testing.T) {
	service, _ := newTestService()
	primary := newMockAdapter("primary", ChannelEmail).respondError(ErrorKindTransient, "timeout")
	secondary := newMockAdapter("secondary", ChannelEmail).respondError(ErrorKindPermanent, "recipient suppressed")
	tertiary := newMockAdapter("tertiary", ChannelEmail).respondSent("msg-3")

	service.Register(primary, ProviderPrimary, ChannelConfig{}, BreakerConfig{})
	service.Register(secondary, ProviderSecondary, ChannelConfig{}, BreakerConfig{})
	service.Register(tertiary, ProviderTertiary, ChannelConfig{}, BreakerConfig{})

	result := service.Send(context.Background(), emailRecipient(), textMessage(), ChannelEmail)

	if result.Status != StatusFailed {
		t.Fatalf("次提供者的永久错误应提前终止链路,实际 %+v", result)
	}
	if tertiary.sendCalls != 0 {
		t.Fatal("提前终止后不应再尝试三级提供者")
	}
	if result.Metadata["attempted_providers"] != 2 {
		t.Fatalf("attempted_providers 应为 2,实际 %v", result.Metadata["attempted_providers"])
	}
}

func TestSkipOpenBreakerWithoutDelay(t *testing.T) {
	service, sleeps := newTestService()
	primary := newMockAdapter("primary", ChannelEmail).respondError(ErrorKindTransient, "timeout")
	secondary := newMockAdapter("secondary", ChannelEmail).respondSent("msg-2")

	service.Register(primary, ProviderPrimary, ChannelConfig{}, BreakerConfig{FailureThreshold: 1})
	service.Register(secondary, ProviderSecondary, ChannelConfig{}, BreakerConfig{})

	// 预先打开主提供者的熔断器
	service.entriesForChannel(ChannelEmail)[0].breaker.RecordFailure()

	result := service.Send(context.Background(), emailRecipient(), textMessage(), ChannelEmail)

	if result.Status != StatusSent || result.MessageID != "msg-2" {
		t.Fatalf("应跳过熔断中的主提供者直达次提供者,实际 %+v", result)
	}
	if primary.sendCalls != 0 {
		t.Fatal("熔断中的提供者不应被调用")
	}
	// 跳过熔断不消耗提供者间延迟,次提供者是第一个实际尝试者
	if len(*sleeps) != 0 {
		t.Fatalf("跳过熔断不应产生延迟,实际 %v", *sleeps)
	}
	if result.Metadata["attempted_providers"] != 1 {
		t.Fatalf("被跳过的提供者不计入 attempted_providers,实际 %v", result.Metadata["attempted_providers"])
	}
}

// ==================== 全链路失败 ====================

func TestAllProvidersFailed(t *testing.T) {
	service, _ := newTestService()
	primary := newMockAdapter("primary", ChannelEmail).respondError(ErrorKindTransient, "timeout")
	secondary := newMockAdapter("secondary", ChannelEmail).respondError(ErrorKindTransient, "503 unavailable")

	service.Register(primary, ProviderPrimary, ChannelConfig{}, BreakerConfig{})
	service.Register(secondary, ProviderSecondary, ChannelConfig{}, BreakerConfig{})

	result := service.Send(context.Background(), emailRecipient(), textMessage(), ChannelEmail)

	if result.Status != StatusFailed {
		t.Fatalf("全链路失败应返回 failed,实际 %s", result.Status)
	}
	if !strings.HasPrefix(result.MessageID, "all-failed-") {
		t.Fatalf("合成消息ID应带 all-failed- 前缀,实际 %s", result.MessageID)
	}
	if !strings.Contains(result.ErrorMessage, "primary") || !strings.Contains(result.ErrorMessage, "secondary") {
		t.Fatalf("聚合错误应包含每个提供者,实际 %q", result.ErrorMessage)
	}
	if !strings.Contains(result.ErrorMessage, "; ") {
		t.Fatalf("聚合错误应以分号连接,实际 %q", result.ErrorMessage)
	}
	if result.Metadata["attempted_providers"] != 2 {
		t.Fatalf("attempted_providers 应为 2,实际 %v", result.Metadata["attempted_providers"])
	}
	// 全部是瞬时错误,合成结果保持瞬时分类(下游可重投)
	if result.ErrorKind != ErrorKindTransient {
		t.Fatalf("瞬时耗尽应为瞬时分类,实际 %s", result.ErrorKind)
	}
}

func TestAllFailedInheritsPermanentKindOnEarlyStop(t *testing.T) {
	service, _ := newTestService()
	primary := newMockAdapter("primary", ChannelEmail).respondError(ErrorKindTransient, "timeout")
	secondary := newMockAdapter("secondary", ChannelEmail).respondError(ErrorKindPermanent, "recipient suppressed")

	service.Register(primary, ProviderPrimary, ChannelConfig{}, BreakerConfig{})
	service.Register(secondary, ProviderSecondary, ChannelConfig{}, BreakerConfig{})

	result := service.Send(context.Background(), emailRecipient(), textMessage(), ChannelEmail)

	if result.Status != StatusFailed {
		t.Fatalf("应返回 failed,实际 %s", result.Status)
	}
	// 链路被永久错误提前终止,合成结果继承永久分类,
	// 否则队列消费方会把注定失败的消息一路重投到死信
	if result.ErrorKind != ErrorKindPermanent {
		t.Fatalf("永久错误终止的链路应为永久分类,实际 %s", result.ErrorKind)
	}
	if !strings.Contains(result.ErrorMessage, "recipient suppressed") {
		t.Fatalf("聚合错误应包含终止原因,实际 %q", result.ErrorMessage)
	}
}

func TestAllBreakersOpenYieldsSyntheticMessage(t *testing.T) {
	service, _ := newTestService()
	primary := newMockAdapter("primary", ChannelEmail).respondSent("msg-1")

	service.Register(primary, ProviderPrimary, ChannelConfig{}, BreakerConfig{FailureThreshold: 1})
	service.entriesForChannel(ChannelEmail)[0].breaker.RecordFailure()

	result := service.Send(context.Background(), emailRecipient(), textMessage(), ChannelEmail)

	if result.Status != StatusFailed {
		t.Fatalf("全部熔断应返回 failed,实际 %s", result.Status)
	}
	if result.ErrorMessage != "all providers unavailable (circuits open)" {
		t.Fatalf("错误文本不符: %q", result.ErrorMessage)
	}
	if result.Metadata["attempted_providers"] != 0 {
		t.Fatalf("无实际尝试时 attempted_providers 应为 0,实际 %v", result.Metadata["attempted_providers"])
	}
}

// ==================== 校验与配置错误 ====================

func TestInvalidRecipientShortCircuits(t *testing.T) {
	service, _ := newTestService()
	primary := newMockAdapter("primary", ChannelEmail).respondSent("msg-1")
	primary.validateValid = false
	primary.validateWhy = "Invalid email format"

	service.Register(primary, ProviderPrimary, ChannelConfig{}, BreakerConfig{})

	result := service.Send(context.Background(),
		Recipient{ID: "r1", Email: "not-an-email"}, textMessage(), ChannelEmail)

	if result.Status != StatusFailed {
		t.Fatalf("校验失败应返回 failed,实际 %s", result.Status)
	}
	if result.ErrorKind != ErrorKindValidation {
		t.Fatalf("应为校验分类,实际 %s", result.ErrorKind)
	}
	if !strings.Contains(result.ErrorMessage, "Invalid email format") {
		t.Fatalf("错误文本不符: %q", result.ErrorMessage)
	}
	if primary.sendCalls != 0 {
		t.Fatal("校验失败不应发起任何尝试")
	}

	// 校验失败不触碰熔断器
	snapshot := service.entriesForChannel(ChannelEmail)[0].breaker.Snapshot()
	if snapshot.FailureCount != 0 {
		t.Fatalf("校验失败不应计入熔断器,实际 %d", snapshot.FailureCount)
	}
}

func TestOptedOutRecipientRejected(t *testing.T) {
	service, _ := newTestService()
	primary := newMockAdapter("primary", ChannelEmail).respondSent("msg-1")
	service.Register(primary, ProviderPrimary, ChannelConfig{}, BreakerConfig{})

	recipient := emailRecipient()
	recipient.Preferences = map[string]bool{"email": false}

	result := service.Send(context.Background(), recipient, textMessage(), ChannelEmail)

	if result.Status != StatusFailed || result.ErrorKind != ErrorKindValidation {
		t.Fatalf("退订收件人应被校验拒绝,实际 %+v", result)
	}
	if primary.sendCalls != 0 {
		t.Fatal("退订收件人不应发起尝试")
	}
}

func TestNoProvidersConfigured(t *testing.T) {
	service, _ := newTestService()

	result := service.Send(context.Background(), emailRecipient(), textMessage(), ChannelEmail)

	if result.Status != StatusFailed {
		t.Fatalf("无提供者应返回 failed,实际 %s", result.Status)
	}
	if result.ErrorKind != ErrorKindPermanent {
		t.Fatalf("配置错误应为永久分类,实际 %s", result.ErrorKind)
	}
	if !strings.Contains(result.ErrorMessage, "no providers configured") {
		t.Fatalf("错误文本不符: %q", result.ErrorMessage)
	}
}

// ==================== 同提供者重试 ====================

func TestRetryTransientErrorOnSameProvider(t *testing.T) {
	service, sleeps := newTestService()
	primary := newMockAdapter("primary", ChannelEmail).
		respondError(ErrorKindTransient, "timeout").
		respondError(ErrorKindTransient, "timeout").
		respondSent("msg-1")

	service.Register(primary, ProviderPrimary,
		ChannelConfig{RetryAttempts: 2, RetryDelay: 100 * time.Millisecond}, BreakerConfig{})

	result := service.Send(context.Background(), emailRecipient(), textMessage(), ChannelEmail)

	if result.Status != StatusSent {
		t.Fatalf("重试后应成功,实际 %+v", result)
	}
	if primary.sendCalls != 3 {
		t.Fatalf("应尝试 3 次,实际 %d", primary.sendCalls)
	}

	// 两次重试各有一次退避休眠,且带抖动不短于基准
	if len(*sleeps) != 2 {
		t.Fatalf("应录到 2 次退避休眠,实际 %v", *sleeps)
	}
	if (*sleeps)[0] < 100*time.Millisecond || (*sleeps)[1] < 200*time.Millisecond {
		t.Fatalf("退避应按指数增长,实际 %v", *sleeps)
	}

	// 整个重试序列最终成功,不应给熔断器记失败
	snapshot := service.entriesForChannel(ChannelEmail)[0].breaker.Snapshot()
	if snapshot.FailureCount != 0 {
		t.Fatalf("重试成功不应累计失败,实际 %d", snapshot.FailureCount)
	}
}

func TestNoRetryOnPermanentError(t *testing.T) {
	service, _ := newTestService()
	primary := newMockAdapter("primary", ChannelEmail).respondError(ErrorKindPermanent, "unauthorized")

	service.Register(primary, ProviderPrimary, ChannelConfig{RetryAttempts: 3}, BreakerConfig{})

	service.Send(context.Background(), emailRecipient(), textMessage(), ChannelEmail)

	if primary.sendCalls != 1 {
		t.Fatalf("永久错误不应重试,实际尝试 %d 次", primary.sendCalls)
	}
}

// ==================== 健壮性 ====================

func TestAdapterPanicIsContained(t *testing.T) {
	service, _ := newTestService()
	primary := newMockAdapter("primary", ChannelEmail)
	primary.panicMessage = "nil pointer dereference"
	secondary := newMockAdapter("secondary", ChannelEmail).respondSent("msg-2")

	service.Register(primary, ProviderPrimary, ChannelConfig{}, BreakerConfig{})
	service.Register(secondary, ProviderSecondary, ChannelConfig{}, BreakerConfig{})

	result := service.Send(context.Background(), emailRecipient(), textMessage(), ChannelEmail)

	// panic 折算为瞬时失败,链路继续
	if result.Status != StatusSent || result.MessageID != "msg-2" {
		t.Fatalf("适配器 panic 后应故障转移,实际 %+v", result)
	}
}

func TestSentResultWithNilMetadataDoesNotPanic(t *testing.T) {
	service, _ := newTestService()
	primary := newMockAdapter("primary", ChannelEmail)
	// 适配器返回未初始化元数据的裸结果
	primary.sendResponses = append(primary.sendResponses,
		DeliveryResult{Status: StatusSent, MessageID: "msg-raw", RecipientID: "r1"})

	service.Register(primary, ProviderPrimary, ChannelConfig{}, BreakerConfig{})

	result := service.Send(context.Background(), emailRecipient(), textMessage(), ChannelEmail)

	if result.Status != StatusSent || result.MessageID != "msg-raw" {
		t.Fatalf("裸结果应原样成功返回,实际 %+v", result)
	}
	if result.Metadata["attempted_providers"] != 1 {
		t.Fatalf("元数据应被补建并打上 attempted_providers,实际 %v", result.Metadata)
	}
}

func TestMidChainValidationFailureCarriesAttemptCount(t *testing.T) {
	service, _ := newTestService()
	primary := newMockAdapter("primary", ChannelEmail).respondError(ErrorKindTransient, "timeout")
	secondary := newMockAdapter("secondary", ChannelEmail).respondError(ErrorKindValidation, "address rejected by provider")
	tertiary := newMockAdapter("tertiary", ChannelEmail).respondSent("msg-3")

	service.Register(primary, ProviderPrimary, ChannelConfig{}, BreakerConfig{})
	service.Register(secondary, ProviderSecondary, ChannelConfig{}, BreakerConfig{})
	service.Register(tertiary, ProviderTertiary, ChannelConfig{}, BreakerConfig{})

	result := service.Send(context.Background(), emailRecipient(), textMessage(), ChannelEmail)

	if result.Status != StatusFailed || result.ErrorKind != ErrorKindValidation {
		t.Fatalf("链路中途的校验失败应终止并保持校验分类,实际 %+v", result)
	}
	if tertiary.sendCalls != 0 {
		t.Fatal("校验失败后不应继续尝试后续提供者")
	}
	// 与其他终态路径一致,带上实际尝试计数
	if result.Metadata["attempted_providers"] != 2 {
		t.Fatalf("attempted_providers 应为 2,实际 %v", result.Metadata["attempted_providers"])
	}
}

func TestRecordOutcomeInvokedOnEveryPath(t *testing.T) {
	service, _ := newTestService()
	primary := newMockAdapter("primary", ChannelEmail).respondSent("msg-1")
	service.Register(primary, ProviderPrimary, ChannelConfig{}, BreakerConfig{})

	recorded := 0
	service.SetRecordSink(recordSinkFunc(func(ctx context.Context, result DeliveryResult) error {
		recorded++
		return nil
	}))

	// 成功路径
	service.Send(context.Background(), emailRecipient(), textMessage(), ChannelEmail)
	// 校验失败路径
	service.Send(context.Background(), Recipient{ID: "r2"}, textMessage(), ChannelEmail)
	// 配置错误路径
	service.Send(context.Background(), Recipient{ID: "r3", Phone: "5551234567"}, textMessage(), ChannelSMS)

	if recorded != 3 {
		t.Fatalf("三条路径都应落记录,实际 %d", recorded)
	}
}

// recordSinkFunc 函数式 RecordSink
type recordSinkFunc func(ctx context.Context, result DeliveryResult) error

func (f recordSinkFunc) SaveResult(ctx context.Context, result DeliveryResult) error {
	return f(ctx, result)
}

func TestGetProviderHealth(t *testing.T) {
	service, _ := newTestService()
	primary := newMockAdapter("primary", ChannelEmail).respondError(ErrorKindTransient, "timeout")
	service.Register(primary, ProviderPrimary, ChannelConfig{}, BreakerConfig{FailureThreshold: 1})

	service.Send(context.Background(), emailRecipient(), textMessage(), ChannelEmail)

	health := service.GetProviderHealth()
	entries := health[ChannelEmail]
	if len(entries) != 1 {
		t.Fatalf("应有 1 个提供者,实际 %d", len(entries))
	}
	if entries[0].AdapterName != "primary" {
		t.Fatalf("名称不符: %s", entries[0].AdapterName)
	}
	if entries[0].IsHealthy {
		t.Fatal("熔断打开后不应标记健康")
	}
	if entries[0].CircuitState != StateOpen {
		t.Fatalf("状态不符: %s", entries[0].CircuitState)
	}
}
