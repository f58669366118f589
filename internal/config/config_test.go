package config

import (
	"testing"
	"time"
)

func TestParseAppliesDefaults(t *testing.T) {
	config, err := Parse([]byte("App:\n  Addr: \"\"\n"))
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}

	if config.App.Addr != DefaultHTTPAddress {
		t.Errorf("Addr 默认值不符: %s", config.App.Addr)
	}
	if config.Storage.Namespace != DefaultRedisNamespace {
		t.Errorf("Namespace 默认值不符: %s", config.Storage.Namespace)
	}
	if config.Storage.StatusTTL != DefaultStatusTTL {
		t.Errorf("StatusTTL 默认值不符: %v", config.Storage.StatusTTL)
	}
	if config.NSQ.Topic != DefaultNSQTopic {
		t.Errorf("Topic 默认值不符: %s", config.NSQ.Topic)
	}
	if config.NSQ.DLQTopic != DefaultNSQTopic+DefaultDLQTopicSuffix {
		t.Errorf("DLQTopic 默认值不符: %s", config.NSQ.DLQTopic)
	}
	if config.Failover.InterProviderDelay != DefaultInterProviderDelay {
		t.Errorf("InterProviderDelay 默认值不符: %v", config.Failover.InterProviderDelay)
	}
	if config.Providers.SES.Timeout != DefaultChannelTimeout {
		t.Errorf("通道超时默认值不符: %v", config.Providers.SES.Timeout)
	}
	if config.Providers.SES.CostCurrency != DefaultCostCurrency {
		t.Errorf("币种默认值不符: %s", config.Providers.SES.CostCurrency)
	}

	// SMTP 是最后手段,默认限速约 1 条/秒
	if config.Providers.SMTP.RateLimit != 1 {
		t.Errorf("SMTP 默认限速不符: %f", config.Providers.SMTP.RateLimit)
	}
}

func TestParseProviderSettings(t *testing.T) {
	content := `
Providers:
  SES:
    Enabled: true
    Region: "eu-west-1"
    From: "noreply@example.com"
    RateLimit: 14
    RetryAttempts: 2
    Timeout: 10s
    CostPerMessage: 0.0001
    Breaker:
      FailureThreshold: 3
      SuccessThreshold: 1
      Timeout: 30s
`
	config, err := Parse([]byte(content))
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}

	ses := config.Providers.SES
	if !ses.Enabled || ses.Region != "eu-west-1" || ses.RateLimit != 14 {
		t.Fatalf("SES 配置解析不符: %+v", ses)
	}
	if ses.Timeout != 10*time.Second {
		t.Fatalf("超时解析不符: %v", ses.Timeout)
	}

	channelConfig := ses.ChannelConfig()
	if channelConfig.RetryAttempts != 2 || channelConfig.CostPerMessage != 0.0001 {
		t.Fatalf("ChannelConfig 转换不符: %+v", channelConfig)
	}

	breakerConfig := ses.Breaker.BreakerConfig()
	if breakerConfig.FailureThreshold != 3 || breakerConfig.Timeout != 30*time.Second {
		t.Fatalf("BreakerConfig 转换不符: %+v", breakerConfig)
	}
}

func TestParseRejectsInvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("App: [not a map")); err == nil {
		t.Fatal("非法 YAML 应返回错误")
	}
}
